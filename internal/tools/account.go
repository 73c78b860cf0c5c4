package tools

import (
	"context"
	"strings"

	"support-router/internal/domain"
)

const (
	ToolLookupUser      = "lookup_user"
	ToolGetUser         = "get_user"
	ToolGetSubscription = "get_subscription"
	ToolGetReservations = "get_reservations"
)

// Reservations is the get_reservations payload.
type Reservations struct {
	Reservations []domain.Reservation `json:"reservations"`
	Message      string               `json:"message,omitempty"`
}

func (tb *Toolbox) LookupUser(ctx context.Context, email string) Result[domain.User] {
	email = strings.TrimSpace(email)
	if email == "" {
		return invalid[domain.User](ToolLookupUser, "An email address is required")
	}
	u, err := tb.customers.UserByEmail(ctx, email)
	if err != nil {
		return fail[domain.User](ctx, tb, ToolLookupUser, err, "No user found with email: %s", email)
	}
	return ok(ToolLookupUser, u)
}

// GetUser loads a profile for a user id already verified in the session.
func (tb *Toolbox) GetUser(ctx context.Context, userID string) Result[domain.User] {
	u, err := tb.customers.User(ctx, userID)
	if err != nil {
		return fail[domain.User](ctx, tb, ToolGetUser, err, "No user found with id: %s", userID)
	}
	return ok(ToolGetUser, u)
}

func (tb *Toolbox) GetSubscription(ctx context.Context, userID string) Result[domain.Subscription] {
	sub, err := tb.customers.SubscriptionByUser(ctx, userID)
	if err != nil {
		return fail[domain.Subscription](ctx, tb, ToolGetSubscription, err, "No subscription found for user: %s", userID)
	}
	return ok(ToolGetSubscription, sub)
}

func (tb *Toolbox) GetReservations(ctx context.Context, userID string) Result[Reservations] {
	list, err := tb.customers.ReservationsByUser(ctx, userID)
	if err != nil {
		return fail[Reservations](ctx, tb, ToolGetReservations, err, "Could not load reservations for user: %s", userID)
	}
	out := Reservations{Reservations: list}
	if len(list) == 0 {
		out.Message = "No reservations found for user: " + userID
	}
	return ok(ToolGetReservations, out)
}
