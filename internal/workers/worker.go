// Package workers holds the account, action and knowledge specialists. Each
// turns a Case into an Outcome by calling tools; tool failures become reply
// text, never errors.
package workers

import (
	"context"

	"support-router/internal/domain"
)

// Name identifies a specialist worker.
type Name string

const (
	Account   Name = "account"
	Action    Name = "action"
	Knowledge Name = "knowledge"
)

// Case is everything a worker knows about the message it is handling.
type Case struct {
	TicketID       string
	Message        string
	Classification domain.TicketClassification
	Intent         domain.Intent
	// UserID is set once the customer's identity has been verified.
	UserID string
}

// Outcome is one worker's contribution to the reply.
type Outcome struct {
	Worker Name
	// Answered reports whether the worker addressed the customer's request.
	Answered        bool
	Text            string
	ResolutionType  domain.ResolutionType
	Summary         string
	ToolsUsed       []string
	ArticlesUsed    []string
	NeedsEscalation bool
	// UserID is the customer identity the worker verified, if any.
	UserID string
}

type Worker interface {
	Name() Name
	Handle(ctx context.Context, c Case) Outcome
}
