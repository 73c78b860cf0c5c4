// Package classify maps a customer message onto a TicketClassification via a
// text-to-structured-output backend and validates every enumerated field.
package classify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"support-router/internal/audit"
	"support-router/internal/domain"
)

const defaultMaxAttempts = 2

// Backend performs one completion call and returns the raw model output.
type Backend interface {
	Complete(ctx context.Context, system, user string) (string, error)
}

// MetadataWriter persists the classification onto a ticket record.
type MetadataWriter interface {
	UpdateTicketClassification(ctx context.Context, ticketID, issueType, tags string) error
}

// ErrMalformedOutput is returned when every attempt produced output that does
// not decode into a valid classification.
var ErrMalformedOutput = fmt.Errorf("malformed classification output: %w", domain.ErrBackendUnavailable)

type Classifier struct {
	backend     Backend
	meta        MetadataWriter
	events      *audit.Emitter
	logger      *slog.Logger
	maxAttempts int
}

type Option func(*Classifier)

// WithMaxAttempts bounds how many times malformed output is retried.
func WithMaxAttempts(n int) Option {
	return func(c *Classifier) {
		if n > 0 {
			c.maxAttempts = n
		}
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(c *Classifier) {
		if l != nil {
			c.logger = l
		}
	}
}

// New builds a Classifier. meta may be nil, in which case nothing is
// persisted.
func New(backend Backend, meta MetadataWriter, events *audit.Emitter, opts ...Option) (*Classifier, error) {
	if backend == nil {
		return nil, errors.New("classify: backend must not be nil")
	}
	c := &Classifier{
		backend:     backend,
		meta:        meta,
		events:      events,
		logger:      slog.Default(),
		maxAttempts: defaultMaxAttempts,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Classify returns the structured classification of message. When ticketID
// is set the ticket metadata is updated; that write is best-effort.
func (c *Classifier) Classify(ctx context.Context, message, ticketID string) (domain.TicketClassification, error) {
	start := time.Now()
	prompt := userPrompt(message)

	var lastErr error
	for attempt := 1; attempt <= c.maxAttempts; attempt++ {
		raw, err := c.backend.Complete(ctx, systemPrompt, prompt)
		if err != nil {
			return domain.TicketClassification{}, fmt.Errorf("classify: backend: %w: %w", domain.ErrBackendUnavailable, err)
		}
		out, err := parseClassification(raw)
		if err == nil {
			c.persist(ctx, ticketID, out)
			c.events.Emit(ctx, audit.Event{
				Agent:    "triage",
				Action:   "classify_ticket",
				TicketID: ticketID,
				Details: map[string]any{
					"issue_type":     out.IssueType,
					"priority":       out.Priority,
					"sentiment":      out.Sentiment,
					"requires_human": out.RequiresHuman,
					"summary":        out.Summary,
					"attempts":       attempt,
				},
			})
			c.logger.Debug("ticket classified",
				"ticket_id", ticketID,
				"issue_type", out.IssueType,
				"duration_ms", time.Since(start).Milliseconds(),
			)
			return out, nil
		}
		lastErr = err
		c.logger.Warn("rejected classification output", "ticket_id", ticketID, "attempt", attempt, "error", err)
	}
	return domain.TicketClassification{}, fmt.Errorf("classify: %w: %w", ErrMalformedOutput, lastErr)
}

func (c *Classifier) persist(ctx context.Context, ticketID string, out domain.TicketClassification) {
	if ticketID == "" || c.meta == nil {
		return
	}
	if err := c.meta.UpdateTicketClassification(ctx, ticketID, string(out.IssueType), out.Tags()); err != nil {
		c.logger.Error("failed to update ticket metadata",
			"agent", "triage", "action", "update_metadata", "ticket_id", ticketID, "error", err)
		return
	}
	c.logger.Debug("updated ticket metadata", "ticket_id", ticketID)
}
