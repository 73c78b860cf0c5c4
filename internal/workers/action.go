package workers

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"support-router/internal/domain"
	"support-router/internal/tools"
)

const refundPolicy = "Per our refund policy, cancellations made at least 24 hours before the event receive a full refund; later cancellations receive account credit."

// ActionTools is the write tool set of the action worker.
type ActionTools interface {
	LookupUser(ctx context.Context, email string) tools.Result[domain.User]
	GetReservations(ctx context.Context, userID string) tools.Result[tools.Reservations]
	CancelReservation(ctx context.Context, reservationID string) tools.Result[tools.Ack]
	ProcessRefund(ctx context.Context, reservationID, reason string) tools.Result[tools.Ack]
	UpdateSubscription(ctx context.Context, userID, action string) tools.Result[tools.Ack]
}

// ActionWorker executes the state changes a customer asked for on their own
// records.
type ActionWorker struct {
	tools ActionTools
}

func NewActionWorker(t ActionTools) (*ActionWorker, error) {
	if t == nil {
		return nil, errors.New("workers: action tools must not be nil")
	}
	return &ActionWorker{tools: t}, nil
}

func (w *ActionWorker) Name() Name { return Action }

func (w *ActionWorker) Handle(ctx context.Context, c Case) Outcome {
	out := Outcome{Worker: Action}
	if !c.Intent.Write() {
		return out
	}
	if !w.verify(ctx, &c, &out) {
		return out
	}

	var lines, done []string
	if c.Intent.SubscriptionAction != "" {
		text, summary := w.updateSubscription(ctx, c, &out)
		lines = append(lines, text)
		done = appendNonEmpty(done, summary)
	}
	if c.Intent.CancelReservation || c.Intent.Refund {
		text, summary := w.handleReservation(ctx, c, &out)
		lines = append(lines, text)
		done = appendNonEmpty(done, summary)
	}

	out.Answered = true
	out.Text = strings.Join(lines, " ")
	if len(done) > 0 {
		out.ResolutionType = domain.ResolutionAction
		out.Summary = strings.Join(done, "; ")
	}
	return out
}

// verify resolves the customer from the conversation email when no earlier
// worker has.
func (w *ActionWorker) verify(ctx context.Context, c *Case, out *Outcome) bool {
	if c.UserID == "" && c.Intent.Email != "" {
		res := w.tools.LookupUser(ctx, c.Intent.Email)
		out.ToolsUsed = append(out.ToolsUsed, res.Tool)
		if !res.OK() {
			out.Text = fmt.Sprintf("I couldn't verify a CultPass account for %s, so I haven't made any changes.", c.Intent.Email)
			return false
		}
		c.UserID = res.Value.UserID
	}
	if c.UserID == "" {
		out.Text = "I need to verify your account before making any changes. Please share the email address registered with CultPass."
		return false
	}
	out.UserID = c.UserID
	return true
}

func (w *ActionWorker) updateSubscription(ctx context.Context, c Case, out *Outcome) (string, string) {
	action := c.Intent.SubscriptionAction
	res := w.tools.UpdateSubscription(ctx, c.UserID, string(action))
	out.ToolsUsed = append(out.ToolsUsed, res.Tool)
	if !res.OK() {
		switch {
		case errors.Is(res.Err, domain.ErrAlreadyInState):
			return fmt.Sprintf("Your subscription is already %s, so no change was needed.", action.Target()), ""
		case errors.Is(res.Err, domain.ErrNotFound):
			return "I couldn't find a subscription on your account to update.", ""
		case errors.Is(res.Err, domain.ErrInvalidState):
			return "Your subscription has already been cancelled, so it can't be paused.", ""
		}
		out.NeedsEscalation = true
		return "I wasn't able to update your subscription right now.", ""
	}
	if action == domain.ActionCancel {
		return "Your subscription has been cancelled. You won't be charged again.", "Cancelled subscription"
	}
	return "Your subscription has been paused. You can resume it any time from the app.", "Paused subscription"
}

func (w *ActionWorker) handleReservation(ctx context.Context, c Case, out *Outcome) (string, string) {
	res, msg := w.resolveReservation(ctx, c, out)
	if msg != "" {
		return msg, ""
	}

	var lines, done []string
	if c.Intent.CancelReservation && res.Status == domain.ReservationReserved {
		cancel := w.tools.CancelReservation(ctx, res.ReservationID)
		out.ToolsUsed = append(out.ToolsUsed, cancel.Tool)
		if !cancel.OK() {
			return w.reservationFailure(cancel.Err, res), ""
		}
		res.Status = domain.ReservationCancelled
		lines = append(lines, fmt.Sprintf("I've cancelled your reservation for %s (%s).", res.ExperienceTitle, res.ReservationID))
		done = append(done, "Cancelled reservation "+res.ReservationID)
	} else if c.Intent.CancelReservation && !c.Intent.Refund {
		return fmt.Sprintf("Your reservation for %s (%s) is already %s.", res.ExperienceTitle, res.ReservationID, res.Status), ""
	}

	if c.Intent.Refund {
		refund := w.tools.ProcessRefund(ctx, res.ReservationID, refundReason(c))
		out.ToolsUsed = append(out.ToolsUsed, refund.Tool)
		if !refund.OK() {
			lines = append(lines, w.reservationFailure(refund.Err, res))
		} else {
			lines = append(lines, fmt.Sprintf("Your refund %s for %s is being processed. %s",
				refund.Value.RefundID, res.ExperienceTitle, refundPolicy))
			done = append(done, "Refunded reservation "+res.ReservationID)
		}
	}
	return strings.Join(lines, " "), strings.Join(done, "; ")
}

// resolveReservation finds the target reservation among the customer's own.
// Without an explicit id a single eligible reservation is used.
func (w *ActionWorker) resolveReservation(ctx context.Context, c Case, out *Outcome) (domain.Reservation, string) {
	list := w.tools.GetReservations(ctx, c.UserID)
	out.ToolsUsed = append(out.ToolsUsed, list.Tool)
	if !list.OK() {
		out.NeedsEscalation = true
		return domain.Reservation{}, "I wasn't able to load your reservations right now."
	}

	if id := c.Intent.ReservationID; id != "" {
		for _, r := range list.Value.Reservations {
			if strings.EqualFold(r.ReservationID, id) {
				return r, ""
			}
		}
		return domain.Reservation{}, fmt.Sprintf("I couldn't find reservation %s on your account.", id)
	}

	want := domain.ReservationReserved
	if c.Intent.Refund && !c.Intent.CancelReservation {
		want = domain.ReservationCancelled
	}
	var candidates []domain.Reservation
	for _, r := range list.Value.Reservations {
		if r.Status == want {
			candidates = append(candidates, r)
		}
	}
	switch len(candidates) {
	case 0:
		return domain.Reservation{}, fmt.Sprintf("I couldn't find a %s reservation on your account.", want)
	case 1:
		return candidates[0], ""
	}
	ids := make([]string, 0, len(candidates))
	for _, r := range candidates {
		ids = append(ids, fmt.Sprintf("%s (%s)", r.ReservationID, r.ExperienceTitle))
	}
	return domain.Reservation{}, "Which reservation do you mean? I found: " + strings.Join(ids, ", ") + "."
}

func (w *ActionWorker) reservationFailure(err error, r domain.Reservation) string {
	switch {
	case errors.Is(err, domain.ErrAlreadyCancelled):
		return fmt.Sprintf("Your reservation %s was already cancelled.", r.ReservationID)
	case errors.Is(err, domain.ErrInvalidState):
		return fmt.Sprintf("Reservation %s needs to be cancelled before a refund can be issued, and it is currently %s. Would you like me to cancel it?", r.ReservationID, r.Status)
	case errors.Is(err, domain.ErrNotFound):
		return fmt.Sprintf("I couldn't find reservation %s.", r.ReservationID)
	}
	return fmt.Sprintf("I wasn't able to update reservation %s right now.", r.ReservationID)
}

func refundReason(c Case) string {
	if s := strings.TrimSpace(c.Classification.Summary); s != "" {
		return s
	}
	return "customer request"
}

func appendNonEmpty(list []string, s string) []string {
	if s == "" {
		return list
	}
	return append(list, s)
}
