// Package router is the supervisor: a deterministic decision table from a
// ticket classification to an ordered worker plan, the executor of that plan
// and the composition of worker output into one reply.
package router

import (
	"support-router/internal/domain"
	"support-router/internal/workers"
)

// Condition gates a plan step on what earlier steps produced.
type Condition string

const (
	Always        Condition = "always"
	IfUnanswered  Condition = "if_unanswered"
	IfWriteIntent Condition = "if_write_intent"
)

type Step struct {
	Worker workers.Name
	When   Condition
}

// Plan is the routing decision for one message.
type Plan struct {
	Steps []Step
	// Escalate bypasses dispatch and hands the ticket to a human.
	Escalate bool
	// NeedsIdentity is set when account data was needed but no verified
	// email or user id exists in the conversation.
	NeedsIdentity bool
	// Acknowledge prefixes the reply with an acknowledgment of frustration.
	Acknowledge bool
	// SoftEscalation offers a human handoff without forcing it.
	SoftEscalation bool
	Priority       domain.Priority
}

// Workers lists the planned workers in order.
func (p Plan) Workers() []workers.Name {
	out := make([]workers.Name, 0, len(p.Steps))
	for _, s := range p.Steps {
		out = append(out, s.Worker)
	}
	return out
}

// Input is everything the decision table reads.
type Input struct {
	Classification domain.TicketClassification
	Intent         domain.Intent
	// HasIdentity reports whether an email or verified user id is known.
	HasIdentity bool
}

// Decide maps a classification onto a plan. It is pure and performs no I/O.
func Decide(in Input) Plan {
	c := in.Classification
	p := Plan{
		Priority:       c.Priority,
		Acknowledge:    c.Sentiment.Upset(),
		SoftEscalation: c.Sentiment.Upset() && c.Priority.Elevated(),
	}
	if c.RequiresHuman {
		p.Escalate = true
		p.SoftEscalation = false
		return p
	}

	switch c.IssueType {
	case domain.IssueAccount:
		if !in.HasIdentity {
			return withoutIdentity(p)
		}
		p.Steps = []Step{{workers.Account, Always}, {workers.Knowledge, IfUnanswered}}
	case domain.IssueSubscription, domain.IssueReservation:
		if !in.HasIdentity {
			return withoutIdentity(p)
		}
		p.Steps = []Step{{workers.Account, Always}, {workers.Action, IfWriteIntent}}
	case domain.IssueBilling:
		p.Steps = []Step{{workers.Knowledge, Always}}
		if in.Intent.Write() {
			if !in.HasIdentity {
				p.NeedsIdentity = true
				return p
			}
			p.Steps = append(p.Steps, Step{workers.Action, IfWriteIntent})
		}
	default:
		// general, technical and anything unrecognised take the read-only branch.
		p.Steps = []Step{{workers.Knowledge, Always}}
	}
	return p
}

// withoutIdentity falls back to the knowledge branch and asks for an email.
func withoutIdentity(p Plan) Plan {
	p.Steps = []Step{{workers.Knowledge, Always}}
	p.NeedsIdentity = true
	return p
}
