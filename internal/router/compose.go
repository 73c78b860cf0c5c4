package router

import (
	"strings"

	"support-router/internal/domain"
	"support-router/internal/workers"
)

const (
	acknowledgment  = "I'm really sorry for the frustration this has caused, and I appreciate your patience."
	escalationReply = "I understand this needs personal attention, so I've flagged your ticket for our human support team. A member of the team will follow up with you shortly."
	identityRequest = "To help with your account, please share the email address registered with CultPass."
	softEscalation  = "If you'd prefer, I can connect you with a member of our human support team right away."
	fallbackReply   = "I wasn't able to resolve this automatically. I recommend escalating to our human support team, who can help further."
	positiveOpening = "Thanks for the kind words!"
)

// Compose joins worker outcomes into one customer-facing reply.
func Compose(c domain.TicketClassification, p Plan, outcomes []workers.Outcome) string {
	var parts []string
	if p.Acknowledge {
		parts = append(parts, acknowledgment)
	}
	if p.Escalate {
		if s := strings.TrimSpace(c.Summary); s != "" {
			parts = append(parts, escalationReply+" Summary of your request: "+s)
		} else {
			parts = append(parts, escalationReply)
		}
		return strings.Join(parts, "\n\n")
	}
	if c.Sentiment == domain.SentimentPositive {
		parts = append(parts, positiveOpening)
	}

	var body []string
	for _, o := range outcomes {
		if t := strings.TrimSpace(o.Text); t != "" {
			body = append(body, t)
		}
	}
	if len(body) == 0 && !p.NeedsIdentity {
		body = append(body, fallbackReply)
	}
	parts = append(parts, body...)

	if p.NeedsIdentity {
		parts = append(parts, identityRequest)
	}
	if p.SoftEscalation && !anyEscalation(outcomes) {
		parts = append(parts, softEscalation)
	}
	return strings.Join(parts, "\n\n")
}

func anyEscalation(outcomes []workers.Outcome) bool {
	for _, o := range outcomes {
		if o.NeedsEscalation {
			return true
		}
	}
	return false
}
