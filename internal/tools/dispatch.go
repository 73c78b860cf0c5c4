package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"support-router/internal/domain"
)

type handlerFunc func(ctx context.Context, tb *Toolbox, args json.RawMessage) Result[any]

var registry = map[string]handlerFunc{
	ToolLookupUser: bind(func(ctx context.Context, tb *Toolbox, a struct {
		Email string `json:"email"`
	}) Result[any] {
		return erase(tb.LookupUser(ctx, a.Email))
	}),
	ToolGetUser: bind(func(ctx context.Context, tb *Toolbox, a userArgs) Result[any] {
		return erase(tb.GetUser(ctx, a.UserID))
	}),
	ToolGetSubscription: bind(func(ctx context.Context, tb *Toolbox, a userArgs) Result[any] {
		return erase(tb.GetSubscription(ctx, a.UserID))
	}),
	ToolGetReservations: bind(func(ctx context.Context, tb *Toolbox, a userArgs) Result[any] {
		return erase(tb.GetReservations(ctx, a.UserID))
	}),
	ToolCancelReservation: bind(func(ctx context.Context, tb *Toolbox, a reservationArgs) Result[any] {
		return erase(tb.CancelReservation(ctx, a.ReservationID))
	}),
	ToolProcessRefund: bind(func(ctx context.Context, tb *Toolbox, a reservationArgs) Result[any] {
		return erase(tb.ProcessRefund(ctx, a.ReservationID, a.Reason))
	}),
	ToolUpdateSubscription: bind(func(ctx context.Context, tb *Toolbox, a struct {
		UserID string `json:"user_id"`
		Action string `json:"action"`
	}) Result[any] {
		return erase(tb.UpdateSubscription(ctx, a.UserID, a.Action))
	}),
	ToolSearchKnowledge: bind(func(ctx context.Context, tb *Toolbox, a struct {
		Query string `json:"query"`
		TopK  int    `json:"top_k"`
	}) Result[any] {
		return erase(tb.SearchKnowledge(ctx, a.Query, a.TopK))
	}),
	ToolGetArticle: bind(func(ctx context.Context, tb *Toolbox, a struct {
		ArticleID string `json:"article_id"`
	}) Result[any] {
		return erase(tb.GetArticle(ctx, a.ArticleID))
	}),
	ToolGetCustomerContext: bind(func(ctx context.Context, tb *Toolbox, a struct {
		ExternalUserID string `json:"external_user_id"`
	}) Result[any] {
		return erase(tb.GetCustomerContext(ctx, a.ExternalUserID))
	}),
	ToolRecordCustomerPreference: bind(func(ctx context.Context, tb *Toolbox, a struct {
		ExternalUserID string `json:"external_user_id"`
		Key            string `json:"key"`
		Value          string `json:"value"`
	}) Result[any] {
		return erase(tb.RecordCustomerPreference(ctx, a.ExternalUserID, a.Key, a.Value))
	}),
	ToolRecordResolution: bind(func(ctx context.Context, tb *Toolbox, a ResolutionInput) Result[any] {
		return erase(tb.RecordResolution(ctx, a))
	}),
}

type userArgs struct {
	UserID string `json:"user_id"`
}

type reservationArgs struct {
	ReservationID string `json:"reservation_id"`
	Reason        string `json:"reason"`
}

func bind[A any](fn func(ctx context.Context, tb *Toolbox, args A) Result[any]) handlerFunc {
	return func(ctx context.Context, tb *Toolbox, raw json.RawMessage) Result[any] {
		var args A
		if len(bytes.TrimSpace(raw)) > 0 {
			dec := json.NewDecoder(bytes.NewReader(raw))
			dec.DisallowUnknownFields()
			if err := dec.Decode(&args); err != nil {
				return Result[any]{Err: &Error{Message: fmt.Sprintf("malformed arguments: %v", err), Err: domain.ErrInvalidArgument}}
			}
		}
		return fn(ctx, tb, args)
	}
}

func erase[T any](r Result[T]) Result[any] {
	return Result[any]{Tool: r.Tool, Value: r.Value, Err: r.Err}
}

// Names lists every callable tool in sorted order.
func Names() []string {
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Call invokes a tool by name with JSON arguments. Unknown tools and
// malformed arguments yield an error payload.
func (tb *Toolbox) Call(ctx context.Context, name string, args json.RawMessage) Result[any] {
	h, found := registry[name]
	if !found {
		return Result[any]{Tool: name, Err: &Error{Message: "unknown tool: " + name, Err: domain.ErrInvalidArgument}}
	}
	out := h(ctx, tb, args)
	out.Tool = name
	return out
}
