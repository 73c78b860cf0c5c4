package domain

import "time"

type ResolutionType string

const (
	ResolutionKBArticle  ResolutionType = "kb_article"
	ResolutionAction     ResolutionType = "action"
	ResolutionEscalation ResolutionType = "escalation"
)

func ParseResolutionType(s string) (ResolutionType, error) {
	switch t := ResolutionType(s); t {
	case ResolutionKBArticle, ResolutionAction, ResolutionEscalation:
		return t, nil
	}
	return "", invalidValue("resolution_type", s)
}

// Resolution is the durable record of how a ticket was closed.
type Resolution struct {
	TicketID     string         `json:"ticket_id"`
	Summary      string         `json:"summary"`
	Agent        string         `json:"resolution_agent"`
	Type         ResolutionType `json:"resolution_type"`
	ArticlesUsed []string       `json:"articles_used"`
	ToolsUsed    []string       `json:"tools_used"`
	CreatedAt    time.Time      `json:"created_at"`
}

type CustomerPreference struct {
	PreferenceID   string    `json:"preference_id"`
	ExternalUserID string    `json:"external_user_id"`
	AccountID      string    `json:"account_id"`
	Key            string    `json:"preference_key"`
	Value          string    `json:"preference_value"`
	UpdatedAt      time.Time `json:"updated_at"`
}

type TicketMetadata struct {
	TicketID      string
	MainIssueType string
	Tags          string
	Status        string
}
