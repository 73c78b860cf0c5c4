package router

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"support-router/internal/audit"
	"support-router/internal/domain"
	"support-router/internal/tools"
	"support-router/internal/workers"
)

const (
	statusResolved  = "resolved"
	statusEscalated = "escalated"
)

type Classifier interface {
	Classify(ctx context.Context, message, ticketID string) (domain.TicketClassification, error)
}

// ResolutionRecorder persists the single resolution of a closed ticket.
type ResolutionRecorder interface {
	RecordResolution(ctx context.Context, in tools.ResolutionInput) tools.Result[tools.Ack]
}

// Tickets is the ticket bookkeeping the supervisor performs. Failures are
// logged and never change the reply.
type Tickets interface {
	LinkTicketUser(ctx context.Context, ticketID, userID string) error
	SetTicketStatus(ctx context.Context, ticketID, status string) error
}

// Turn is one inbound customer message with its conversation context.
type Turn struct {
	TicketID string
	Message  string
	// Earlier holds the customer's previous messages, oldest first.
	Earlier []string
	// UserID is the identity verified earlier in the session, if any.
	UserID string
}

// Decision is the full result of one routing cycle.
type Decision struct {
	Reply          string
	Classification domain.TicketClassification
	Plan           Plan
	Outcomes       []workers.Outcome
	UserID         string
}

type Supervisor struct {
	classifier Classifier
	team       map[workers.Name]workers.Worker
	recorder   ResolutionRecorder
	tickets    Tickets
	events     *audit.Emitter
	logger     *slog.Logger
}

func NewSupervisor(classifier Classifier, team []workers.Worker, recorder ResolutionRecorder, tickets Tickets, events *audit.Emitter, logger *slog.Logger) (*Supervisor, error) {
	if classifier == nil {
		return nil, errors.New("router: classifier must not be nil")
	}
	if recorder == nil {
		return nil, errors.New("router: resolution recorder must not be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	byName := make(map[workers.Name]workers.Worker, len(team))
	for _, w := range team {
		if w == nil {
			return nil, errors.New("router: worker must not be nil")
		}
		byName[w.Name()] = w
	}
	for _, name := range []workers.Name{workers.Account, workers.Action, workers.Knowledge} {
		if _, ok := byName[name]; !ok {
			return nil, fmt.Errorf("router: missing %s worker", name)
		}
	}
	return &Supervisor{
		classifier: classifier,
		team:       byName,
		recorder:   recorder,
		tickets:    tickets,
		events:     events,
		logger:     logger,
	}, nil
}

// Handle runs one decision cycle: classify, decide, dispatch, compose. Only a
// classification failure is returned as an error.
func (s *Supervisor) Handle(ctx context.Context, t Turn) (Decision, error) {
	start := time.Now()
	cls, err := s.classifier.Classify(ctx, t.Message, t.TicketID)
	if err != nil {
		return Decision{}, fmt.Errorf("router: classify: %w", err)
	}

	intent := DetectIntent(t.Message, t.Earlier)
	plan := Decide(Input{
		Classification: cls,
		Intent:         intent,
		HasIdentity:    t.UserID != "" || intent.Email != "",
	})

	c := workers.Case{
		TicketID:       t.TicketID,
		Message:        t.Message,
		Classification: cls,
		Intent:         intent,
		UserID:         t.UserID,
	}
	outcomes := s.execute(ctx, plan, &c)
	reply := Compose(cls, plan, outcomes)

	if c.UserID != "" && c.UserID != t.UserID {
		s.bookkeep("link_ticket_user", t.TicketID, func() error {
			return s.tickets.LinkTicketUser(ctx, t.TicketID, c.UserID)
		})
	}
	resolution := s.close(ctx, t.TicketID, cls, plan, outcomes)

	executed := make([]string, 0, len(outcomes))
	for _, o := range outcomes {
		executed = append(executed, string(o.Worker))
	}
	s.events.Emit(ctx, audit.Event{
		Agent:    "supervisor",
		Action:   "route_ticket",
		TicketID: t.TicketID,
		Details: map[string]any{
			"issue_type":      cls.IssueType,
			"priority":        cls.Priority,
			"sentiment":       cls.Sentiment,
			"requires_human":  cls.RequiresHuman,
			"planned":         plan.Workers(),
			"executed":        executed,
			"escalate":        plan.Escalate,
			"soft_escalation": plan.SoftEscalation,
			"needs_identity":  plan.NeedsIdentity,
			"write_intent":    intent.Write(),
			"resolution_type": resolution,
		},
	})
	s.logger.Info("ticket routed",
		"ticket_id", t.TicketID,
		"issue_type", cls.IssueType,
		"workers", executed,
		"duration_ms", time.Since(start).Milliseconds(),
	)

	return Decision{
		Reply:          reply,
		Classification: cls,
		Plan:           plan,
		Outcomes:       outcomes,
		UserID:         c.UserID,
	}, nil
}

// execute runs the plan in order. A verified identity found by one worker is
// passed on to the next.
func (s *Supervisor) execute(ctx context.Context, p Plan, c *workers.Case) []workers.Outcome {
	var outcomes []workers.Outcome
	answered, identityRejected := false, false
	for _, step := range p.Steps {
		switch step.When {
		case IfUnanswered:
			if answered {
				continue
			}
		case IfWriteIntent:
			if !c.Intent.Write() || identityRejected {
				continue
			}
		}
		o := s.team[step.Worker].Handle(ctx, *c)
		if o.UserID != "" {
			c.UserID = o.UserID
		}
		if step.Worker == workers.Account && o.UserID == "" {
			identityRejected = true
		}
		answered = answered || o.Answered
		outcomes = append(outcomes, o)
	}
	return outcomes
}

// close records exactly one resolution: the forced handoff, or the last
// worker that produced one.
func (s *Supervisor) close(ctx context.Context, ticketID string, cls domain.TicketClassification, p Plan, outcomes []workers.Outcome) domain.ResolutionType {
	if ticketID == "" {
		return ""
	}
	in := tools.ResolutionInput{TicketID: ticketID}
	status := statusResolved
	switch closing, ok := closingOutcome(outcomes); {
	case p.Escalate:
		in.ResolutionType = string(domain.ResolutionEscalation)
		in.Agent = "supervisor"
		in.Summary = "Escalated to human support: " + cls.Summary
		status = statusEscalated
	case ok:
		in.ResolutionType = string(closing.ResolutionType)
		in.Agent = string(closing.Worker)
		in.Summary = closing.Summary
		in.ArticlesUsed = closing.ArticlesUsed
		in.ToolsUsed = closing.ToolsUsed
	default:
		if anyEscalation(outcomes) {
			s.bookkeep("set_ticket_status", ticketID, func() error {
				return s.tickets.SetTicketStatus(ctx, ticketID, statusEscalated)
			})
		}
		return ""
	}

	if res := s.recorder.RecordResolution(ctx, in); !res.OK() {
		s.logger.Error("failed to record resolution", "ticket_id", ticketID, "error", res.Err)
		return ""
	}
	s.bookkeep("set_ticket_status", ticketID, func() error {
		return s.tickets.SetTicketStatus(ctx, ticketID, status)
	})
	return domain.ResolutionType(in.ResolutionType)
}

func closingOutcome(outcomes []workers.Outcome) (workers.Outcome, bool) {
	for i := len(outcomes) - 1; i >= 0; i-- {
		if outcomes[i].ResolutionType != "" {
			return outcomes[i], true
		}
	}
	return workers.Outcome{}, false
}

func (s *Supervisor) bookkeep(action, ticketID string, fn func() error) {
	if s.tickets == nil || ticketID == "" {
		return
	}
	if err := fn(); err != nil {
		s.logger.Warn("ticket bookkeeping failed", "action", action, "ticket_id", ticketID, "error", err)
	}
}
