// Package tools is the tool call surface shared by the specialist workers.
// Every tool returns a Result; failures become an {"error": ...} payload
// instead of escaping the tool boundary.
package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"support-router/internal/audit"
	"support-router/internal/domain"
)

// CustomerStore is the customer-domain store the account and action tools use.
type CustomerStore interface {
	UserByEmail(ctx context.Context, email string) (domain.User, error)
	User(ctx context.Context, userID string) (domain.User, error)
	SubscriptionByUser(ctx context.Context, userID string) (domain.Subscription, error)
	ReservationsByUser(ctx context.Context, userID string) ([]domain.Reservation, error)
	Reservation(ctx context.Context, reservationID string) (domain.Reservation, error)
	CancelReservation(ctx context.Context, reservationID string) (domain.Reservation, error)
	RefundReservation(ctx context.Context, reservationID, reason string) (domain.Refund, error)
	UpdateSubscriptionStatus(ctx context.Context, userID string, action domain.SubscriptionAction) (domain.Subscription, error)
}

// SupportStore holds articles and cross-session memory.
type SupportStore interface {
	Article(ctx context.Context, articleID string) (domain.Article, error)
	ResolutionsForUser(ctx context.Context, userID string, limit int) ([]domain.Resolution, error)
	Preferences(ctx context.Context, userID string) ([]domain.CustomerPreference, error)
	SavePreference(ctx context.Context, userID, key, value string) error
	SaveResolution(ctx context.Context, r domain.Resolution) error
}

// Searcher is the knowledge retriever.
type Searcher interface {
	SearchAboveThreshold(ctx context.Context, query string, topK int) ([]domain.RetrievalResult, bool, error)
}

// Result is the outcome of one tool call.
type Result[T any] struct {
	Tool  string
	Value T
	Err   error
}

func (r Result[T]) OK() bool {
	return r.Err == nil
}

type errorPayload struct {
	Error string `json:"error"`
}

// JSON renders the success payload or {"error": message}.
func (r Result[T]) JSON() string {
	if r.Err != nil {
		raw, _ := json.Marshal(errorPayload{Error: r.Err.Error()})
		return string(raw)
	}
	raw, err := json.Marshal(r.Value)
	if err != nil {
		return fmt.Sprintf(`{"error":"%s: encode result"}`, r.Tool)
	}
	return string(raw)
}

// Error is a tool failure with a customer-presentable message. The wrapped
// error keeps the domain taxonomy visible to errors.Is.
type Error struct {
	Message string
	Err     error
}

func (e *Error) Error() string {
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Ack is the success payload of write tools.
type Ack struct {
	Status        string                    `json:"status"`
	Message       string                    `json:"message"`
	ReservationID string                    `json:"reservation_id,omitempty"`
	RefundID      string                    `json:"refund_id,omitempty"`
	Reason        string                    `json:"reason,omitempty"`
	UserID        string                    `json:"user_id,omitempty"`
	NewStatus     domain.SubscriptionStatus `json:"new_status,omitempty"`
	EndedAt       string                    `json:"ended_at,omitempty"`
}

type Toolbox struct {
	customers CustomerStore
	support   SupportStore
	search    Searcher
	events    *audit.Emitter
	logger    *slog.Logger
}

func New(customers CustomerStore, support SupportStore, search Searcher, events *audit.Emitter, logger *slog.Logger) (*Toolbox, error) {
	if customers == nil {
		return nil, errors.New("tools: customer store must not be nil")
	}
	if support == nil {
		return nil, errors.New("tools: support store must not be nil")
	}
	if search == nil {
		return nil, errors.New("tools: searcher must not be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Toolbox{customers: customers, support: support, search: search, events: events, logger: logger}, nil
}

func ok[T any](tool string, v T) Result[T] {
	return Result[T]{Tool: tool, Value: v}
}

// fail classifies err: business outcomes keep their message, anything else is
// logged and reported generically.
func fail[T any](ctx context.Context, tb *Toolbox, tool string, err error, format string, args ...any) Result[T] {
	switch {
	case errors.Is(err, domain.ErrNotFound),
		errors.Is(err, domain.ErrInvalidState),
		errors.Is(err, domain.ErrInvalidArgument):
		return Result[T]{Tool: tool, Err: &Error{Message: fmt.Sprintf(format, args...), Err: err}}
	}
	tb.logger.ErrorContext(ctx, "tool failed", "tool", tool, "error", err)
	return Result[T]{Tool: tool, Err: &Error{Message: fmt.Sprintf("%s failed, please try again later", tool), Err: err}}
}

func invalid[T any](tool, message string) Result[T] {
	return Result[T]{Tool: tool, Err: &Error{Message: message, Err: domain.ErrInvalidArgument}}
}

func (tb *Toolbox) emit(ctx context.Context, agent, action string, details map[string]any) {
	tb.events.Emit(ctx, audit.Event{Agent: agent, Action: action, Details: details})
}
