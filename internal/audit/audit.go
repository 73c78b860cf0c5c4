// Package audit records structured observability events for retrieval,
// classification, routing and tool actions.
package audit

import (
	"context"
	"log/slog"
	"time"
)

// Event is one audit trail entry.
type Event struct {
	Time     time.Time      `json:"time"`
	Agent    string         `json:"agent"`
	Action   string         `json:"action"`
	TicketID string         `json:"ticket_id,omitempty"`
	Details  map[string]any `json:"details,omitempty"`
}

// Sink delivers events somewhere durable or visible.
type Sink interface {
	Emit(ctx context.Context, e Event) error
}

// Emitter fans events out to every sink. Sink failures are logged and
// dropped; Emit never fails the caller.
type Emitter struct {
	sinks  []Sink
	logger *slog.Logger
}

func NewEmitter(logger *slog.Logger, sinks ...Sink) *Emitter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Emitter{sinks: sinks, logger: logger}
}

type ticketKey struct{}

// WithTicket attaches a ticket id that Emit stamps on events lacking one.
func WithTicket(ctx context.Context, ticketID string) context.Context {
	return context.WithValue(ctx, ticketKey{}, ticketID)
}

// TicketFrom returns the ticket id attached by WithTicket.
func TicketFrom(ctx context.Context) string {
	id, _ := ctx.Value(ticketKey{}).(string)
	return id
}

func (e *Emitter) Emit(ctx context.Context, ev Event) {
	if e == nil {
		return
	}
	if ev.TicketID == "" {
		ev.TicketID = TicketFrom(ctx)
	}
	if ev.Time.IsZero() {
		ev.Time = time.Now().UTC()
	}
	for _, s := range e.sinks {
		if err := s.Emit(ctx, ev); err != nil {
			e.logger.Warn("audit sink failed", "agent", ev.Agent, "action", ev.Action, "error", err)
		}
	}
}

// LogSink writes events to a slog logger.
type LogSink struct {
	Logger *slog.Logger
}

func (s LogSink) Emit(ctx context.Context, e Event) error {
	attrs := []any{"agent", e.Agent, "action", e.Action}
	if e.TicketID != "" {
		attrs = append(attrs, "ticket_id", e.TicketID)
	}
	if len(e.Details) > 0 {
		attrs = append(attrs, "details", e.Details)
	}
	s.Logger.InfoContext(ctx, e.Action, attrs...)
	return nil
}

// Truncate shortens s to at most n runes.
func Truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
