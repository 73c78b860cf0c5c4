package domain

import "time"

// Role identifies who authored a conversation message.
type Role string

const (
	RoleUser   Role = "user"
	RoleAgent  Role = "agent"
	RoleAI     Role = "ai"
	RoleSystem Role = "system"
)

// ParseRole maps a raw role string onto a Role.
func ParseRole(s string) (Role, error) {
	switch r := Role(s); r {
	case RoleUser, RoleAgent, RoleAI, RoleSystem:
		return r, nil
	}
	return "", invalidValue("role", s)
}

// TicketMessage is a single message persisted against a ticket.
type TicketMessage struct {
	MessageID string
	TicketID  string
	Role      Role
	Content   string
	CreatedAt time.Time
}

// Turn is one completed exchange in a session, as persisted by the
// durable transcript backends.
type Turn struct {
	PK        string
	SK        string
	SessionID string
	Message   string
	Reply     string
	IssueType string
	Status    string
	TTL       int64
}

// SessionMeta stores aggregate session state.
type SessionMeta struct {
	PK           string
	SK           string
	SessionID    string
	UserID       string
	LastActivity string
	Turns        int
	TTL          int64
}
