package tools

import (
	"context"
	"errors"
	"time"

	"support-router/internal/domain"
)

const (
	ToolCancelReservation  = "cancel_reservation"
	ToolProcessRefund      = "process_refund"
	ToolUpdateSubscription = "update_subscription"
)

// CancelReservation fails with domain.ErrAlreadyCancelled on a second call.
func (tb *Toolbox) CancelReservation(ctx context.Context, reservationID string) Result[Ack] {
	res, err := tb.customers.CancelReservation(ctx, reservationID)
	if err != nil {
		if errors.Is(err, domain.ErrAlreadyCancelled) {
			return fail[Ack](ctx, tb, ToolCancelReservation, err, "Reservation %s is already cancelled", reservationID)
		}
		if errors.Is(err, domain.ErrNotFound) {
			return fail[Ack](ctx, tb, ToolCancelReservation, err, "Reservation %s not found", reservationID)
		}
		return fail[Ack](ctx, tb, ToolCancelReservation, err, "Reservation %s cannot be cancelled: %s", reservationID, statusOf(err))
	}
	tb.emit(ctx, "action", ToolCancelReservation, map[string]any{"reservation_id": reservationID})
	return ok(ToolCancelReservation, Ack{
		Status:        "success",
		Message:       "Reservation " + res.ReservationID + " has been cancelled",
		ReservationID: res.ReservationID,
	})
}

// ProcessRefund requires the reservation to be cancelled first.
func (tb *Toolbox) ProcessRefund(ctx context.Context, reservationID, reason string) Result[Ack] {
	refund, err := tb.customers.RefundReservation(ctx, reservationID, reason)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return fail[Ack](ctx, tb, ToolProcessRefund, err, "Reservation %s not found", reservationID)
		}
		return fail[Ack](ctx, tb, ToolProcessRefund, err, "Reservation %s must be cancelled before refund", reservationID)
	}
	tb.emit(ctx, "action", ToolProcessRefund, map[string]any{
		"reservation_id": reservationID,
		"refund_id":      refund.RefundID,
	})
	return ok(ToolProcessRefund, Ack{
		Status:        "success",
		Message:       "Refund processed for reservation " + reservationID,
		ReservationID: reservationID,
		RefundID:      refund.RefundID,
		Reason:        reason,
	})
}

// UpdateSubscription accepts "pause" or "cancel"; anything else is rejected
// before the record is read.
func (tb *Toolbox) UpdateSubscription(ctx context.Context, userID, action string) Result[Ack] {
	a, err := domain.ParseSubscriptionAction(action)
	if err != nil {
		return fail[Ack](ctx, tb, ToolUpdateSubscription, err, "Invalid action: %s. Must be 'pause' or 'cancel'", action)
	}
	sub, err := tb.customers.UpdateSubscriptionStatus(ctx, userID, a)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrNotFound):
			return fail[Ack](ctx, tb, ToolUpdateSubscription, err, "No subscription found for user: %s", userID)
		case errors.Is(err, domain.ErrAlreadyInState):
			return fail[Ack](ctx, tb, ToolUpdateSubscription, err, "Subscription is already %s", a.Target())
		}
		return fail[Ack](ctx, tb, ToolUpdateSubscription, err, "Subscription cannot be %s: it is cancelled", a.Target())
	}
	tb.emit(ctx, "action", ToolUpdateSubscription, map[string]any{"user_id": userID, "new_status": sub.Status})

	out := Ack{
		Status:    "success",
		Message:   "Subscription " + string(sub.Status) + " for user " + userID,
		UserID:    userID,
		NewStatus: sub.Status,
	}
	if sub.EndedAt != nil {
		out.EndedAt = sub.EndedAt.UTC().Format(time.RFC3339)
	}
	return ok(ToolUpdateSubscription, out)
}

func statusOf(err error) string {
	if errors.Is(err, domain.ErrInvalidState) {
		return "it has already been refunded"
	}
	return "unexpected state"
}
