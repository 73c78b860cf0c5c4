package session

import (
	"context"
	"errors"
	"fmt"

	"support-router/internal/domain"
)

// MessageStore is the slice of the support store that holds ticket
// messages. The session id doubles as the ticket id.
type MessageStore interface {
	SaveMessages(ctx context.Context, ticketID string, msgs ...domain.ChatMessage) ([]string, error)
	ConversationHistory(ctx context.Context, ticketID string, limit int) ([]domain.TicketMessage, error)
	TicketUser(ctx context.Context, ticketID string) (string, error)
}

// StoreTranscript keeps the transcript in the support store's message table.
type StoreTranscript struct {
	store MessageStore
}

func NewStoreTranscript(store MessageStore) (*StoreTranscript, error) {
	if store == nil {
		return nil, errors.New("session: message store must not be nil")
	}
	return &StoreTranscript{store: store}, nil
}

func (t *StoreTranscript) Load(ctx context.Context, sessionID string, limit int) (Snapshot, error) {
	all, err := t.store.ConversationHistory(ctx, sessionID, 0)
	if err != nil {
		return Snapshot{}, fmt.Errorf("session: Load: %w", err)
	}
	userID, err := t.store.TicketUser(ctx, sessionID)
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return Snapshot{}, fmt.Errorf("session: Load: %w", err)
	}

	snap := Snapshot{UserID: userID}
	for _, m := range all {
		if m.Role == domain.RoleUser {
			snap.Turns++
		}
	}
	if limit > 0 && len(all) > limit {
		all = all[len(all)-limit:]
	}
	snap.Messages = make([]domain.ChatMessage, 0, len(all))
	for _, m := range all {
		snap.Messages = append(snap.Messages, domain.ChatMessage{Role: string(m.Role), Content: m.Content})
	}
	return snap, nil
}

// SaveTurn appends the customer message and the reply atomically. Linking
// the ticket to a user is done by the router once identity is verified.
func (t *StoreTranscript) SaveTurn(ctx context.Context, sessionID string, ex Exchange, _ int) error {
	_, err := t.store.SaveMessages(ctx, sessionID,
		domain.ChatMessage{Role: string(domain.RoleUser), Content: ex.Message},
		domain.ChatMessage{Role: string(domain.RoleAI), Content: ex.Reply},
	)
	if err != nil {
		return fmt.Errorf("session: SaveTurn: %w", err)
	}
	return nil
}
