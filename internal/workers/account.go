package workers

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"support-router/internal/domain"
	"support-router/internal/tools"
)

// AccountTools is the read-only tool set of the account worker.
type AccountTools interface {
	LookupUser(ctx context.Context, email string) tools.Result[domain.User]
	GetUser(ctx context.Context, userID string) tools.Result[domain.User]
	GetSubscription(ctx context.Context, userID string) tools.Result[domain.Subscription]
	GetReservations(ctx context.Context, userID string) tools.Result[tools.Reservations]
	GetCustomerContext(ctx context.Context, userID string) tools.Result[tools.CustomerContext]
	RecordCustomerPreference(ctx context.Context, userID, key, value string) tools.Result[tools.Ack]
}

// accountStateQuestion matches questions the account record itself answers.
var accountStateQuestion = regexp.MustCompile(`(?i)\b(blocked|locked|status|profile|details|my account|account info|tier|plan|quota)\b`)

// AccountWorker verifies identity and reports on customer records. It never
// writes customer records; preferences are the only thing it stores.
type AccountWorker struct {
	tools AccountTools
}

func NewAccountWorker(t AccountTools) (*AccountWorker, error) {
	if t == nil {
		return nil, errors.New("workers: account tools must not be nil")
	}
	return &AccountWorker{tools: t}, nil
}

func (w *AccountWorker) Name() Name { return Account }

func (w *AccountWorker) Handle(ctx context.Context, c Case) Outcome {
	out := Outcome{Worker: Account}

	user, ok := w.identify(ctx, c, &out)
	if !ok {
		return out
	}
	out.UserID = user.UserID

	var lines []string
	lines = append(lines, w.greeting(ctx, user, &out))
	if note := w.recordPreferences(ctx, user.UserID, c.Intent.Preferences, &out); note != "" {
		lines = append(lines, note)
	}
	if user.IsBlocked {
		lines = append(lines, "Please note that your account is currently blocked, so reservations are unavailable until our team reviews it.")
	}

	switch c.Classification.IssueType {
	case domain.IssueReservation:
		text, answered := w.describeReservations(ctx, user.UserID, &out)
		lines = append(lines, text)
		out.Answered = answered
	case domain.IssueSubscription, domain.IssueBilling:
		text, answered := w.describeSubscription(ctx, user.UserID, &out)
		lines = append(lines, text)
		out.Answered = answered
	default:
		text, _ := w.describeSubscription(ctx, user.UserID, &out)
		lines = append(lines, fmt.Sprintf("Your account (%s) is %s.", user.Email, standing(user)), text)
		out.Answered = accountStateQuestion.MatchString(c.Message)
	}
	out.Text = strings.Join(lines, " ")
	return out
}

func (w *AccountWorker) identify(ctx context.Context, c Case, out *Outcome) (domain.User, bool) {
	var res tools.Result[domain.User]
	switch {
	case c.UserID != "":
		res = w.tools.GetUser(ctx, c.UserID)
	case c.Intent.Email != "":
		res = w.tools.LookupUser(ctx, c.Intent.Email)
	default:
		out.Text = "To look into your account, please share the email address registered with CultPass."
		return domain.User{}, false
	}
	out.ToolsUsed = append(out.ToolsUsed, res.Tool)
	if !res.OK() {
		if errors.Is(res.Err, domain.ErrNotFound) {
			out.Text = fmt.Sprintf("I couldn't find a CultPass account for %s. Could you double-check the email address?", c.Intent.Email)
		} else {
			out.Text = "I wasn't able to access your account details right now."
			out.NeedsEscalation = true
		}
		return domain.User{}, false
	}
	return res.Value, true
}

func (w *AccountWorker) greeting(ctx context.Context, u domain.User, out *Outcome) string {
	name := firstName(u.FullName)
	res := w.tools.GetCustomerContext(ctx, u.UserID)
	out.ToolsUsed = append(out.ToolsUsed, res.Tool)
	if res.OK() && len(res.Value.PastResolutions) > 0 {
		return fmt.Sprintf("Welcome back, %s! Last time we helped you with: %s.", name, res.Value.PastResolutions[0].Summary)
	}
	return fmt.Sprintf("Hi %s, thanks for reaching out.", name)
}

func (w *AccountWorker) recordPreferences(ctx context.Context, userID string, prefs map[string]string, out *Outcome) string {
	var saved []string
	for _, key := range sortedKeys(prefs) {
		res := w.tools.RecordCustomerPreference(ctx, userID, key, prefs[key])
		out.ToolsUsed = append(out.ToolsUsed, res.Tool)
		if res.OK() {
			saved = append(saved, strings.ReplaceAll(key, "_", " "))
		}
	}
	if len(saved) == 0 {
		return ""
	}
	return "I've noted your preferred " + strings.Join(saved, " and ") + " for future conversations."
}

func (w *AccountWorker) describeSubscription(ctx context.Context, userID string, out *Outcome) (string, bool) {
	res := w.tools.GetSubscription(ctx, userID)
	out.ToolsUsed = append(out.ToolsUsed, res.Tool)
	if !res.OK() {
		return "I couldn't find an active subscription on your account.", errors.Is(res.Err, domain.ErrNotFound)
	}
	sub := res.Value
	return fmt.Sprintf("Your %s subscription is currently %s (monthly quota: %d experiences).",
		sub.Tier, sub.Status, sub.MonthlyQuota), true
}

func (w *AccountWorker) describeReservations(ctx context.Context, userID string, out *Outcome) (string, bool) {
	res := w.tools.GetReservations(ctx, userID)
	out.ToolsUsed = append(out.ToolsUsed, res.Tool)
	if !res.OK() {
		return "I wasn't able to load your reservations right now.", false
	}
	if len(res.Value.Reservations) == 0 {
		return "You don't have any reservations at the moment.", true
	}
	parts := make([]string, 0, len(res.Value.Reservations))
	for _, r := range res.Value.Reservations {
		parts = append(parts, fmt.Sprintf("%s (%s, %s)", r.ExperienceTitle, r.ReservationID, r.Status))
	}
	return "Your reservations: " + strings.Join(parts, "; ") + ".", true
}

func standing(u domain.User) string {
	if u.IsBlocked {
		return "blocked"
	}
	return "in good standing"
}

func firstName(full string) string {
	fields := strings.Fields(full)
	if len(fields) == 0 {
		return "there"
	}
	return fields[0]
}
