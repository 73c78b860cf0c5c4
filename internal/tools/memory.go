package tools

import (
	"context"
	"strings"

	"support-router/internal/domain"
)

const (
	ToolGetCustomerContext       = "get_customer_context"
	ToolRecordCustomerPreference = "record_customer_preference"
	ToolRecordResolution         = "record_resolution"

	contextResolutions = 5
)

// PastResolution is the trimmed resolution shown in customer context.
type PastResolution struct {
	TicketID string                `json:"ticket_id"`
	Summary  string                `json:"summary"`
	Type     domain.ResolutionType `json:"type"`
	Agent    string                `json:"agent"`
}

// CustomerContext is the get_customer_context payload.
type CustomerContext struct {
	PastResolutions []PastResolution  `json:"past_resolutions,omitempty"`
	Preferences     map[string]string `json:"preferences,omitempty"`
	Message         string            `json:"message,omitempty"`
}

// Returning reports whether any prior history exists.
func (c CustomerContext) Returning() bool {
	return len(c.PastResolutions) > 0 || len(c.Preferences) > 0
}

func (tb *Toolbox) GetCustomerContext(ctx context.Context, userID string) Result[CustomerContext] {
	resolutions, err := tb.support.ResolutionsForUser(ctx, userID, contextResolutions)
	if err != nil {
		return fail[CustomerContext](ctx, tb, ToolGetCustomerContext, err, "Could not load history for user: %s", userID)
	}
	prefs, err := tb.support.Preferences(ctx, userID)
	if err != nil {
		return fail[CustomerContext](ctx, tb, ToolGetCustomerContext, err, "Could not load preferences for user: %s", userID)
	}

	var out CustomerContext
	for _, r := range resolutions {
		out.PastResolutions = append(out.PastResolutions, PastResolution{
			TicketID: r.TicketID, Summary: r.Summary, Type: r.Type, Agent: r.Agent,
		})
	}
	if len(prefs) > 0 {
		out.Preferences = make(map[string]string, len(prefs))
		for _, p := range prefs {
			out.Preferences[p.Key] = p.Value
		}
	}
	if !out.Returning() {
		out.Message = "No prior history found for this customer. This appears to be a new customer."
	}
	tb.emit(ctx, "memory", ToolGetCustomerContext, map[string]any{
		"user_id":           userID,
		"resolutions_count": len(resolutions),
		"preferences_count": len(prefs),
	})
	return ok(ToolGetCustomerContext, out)
}

func (tb *Toolbox) RecordCustomerPreference(ctx context.Context, userID, key, value string) Result[Ack] {
	if err := tb.support.SavePreference(ctx, userID, key, value); err != nil {
		return fail[Ack](ctx, tb, ToolRecordCustomerPreference, err, "Preference requires a user id and key")
	}
	tb.emit(ctx, "memory", ToolRecordCustomerPreference, map[string]any{"user_id": userID, "key": key})
	return ok(ToolRecordCustomerPreference, Ack{
		Status:  "success",
		Message: "Saved preference '" + key + "' = '" + value + "' for user " + userID,
		UserID:  userID,
	})
}

// ResolutionInput is the record_resolution argument set.
type ResolutionInput struct {
	TicketID       string   `json:"ticket_id"`
	Summary        string   `json:"summary"`
	ResolutionType string   `json:"resolution_type"`
	Agent          string   `json:"agent"`
	ArticlesUsed   []string `json:"articles_used"`
	ToolsUsed      []string `json:"tools_used"`
}

func (tb *Toolbox) RecordResolution(ctx context.Context, in ResolutionInput) Result[Ack] {
	typ, err := domain.ParseResolutionType(in.ResolutionType)
	if err != nil {
		return fail[Ack](ctx, tb, ToolRecordResolution, err,
			"Invalid resolution_type: %s. Must be 'kb_article', 'action' or 'escalation'", in.ResolutionType)
	}
	if strings.TrimSpace(in.Summary) == "" {
		return invalid[Ack](ToolRecordResolution, "A resolution summary is required")
	}
	err = tb.support.SaveResolution(ctx, domain.Resolution{
		TicketID:     in.TicketID,
		Summary:      in.Summary,
		Agent:        in.Agent,
		Type:         typ,
		ArticlesUsed: in.ArticlesUsed,
		ToolsUsed:    in.ToolsUsed,
	})
	if err != nil {
		return fail[Ack](ctx, tb, ToolRecordResolution, err, "A ticket id is required to record a resolution")
	}
	tb.emit(ctx, in.Agent, ToolRecordResolution, map[string]any{"ticket_id": in.TicketID, "resolution_type": typ})
	return ok(ToolRecordResolution, Ack{Status: "success", Message: "Resolution recorded for ticket " + in.TicketID})
}
