package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"support-router/internal/domain"
)

const supportSchema = `
CREATE TABLE IF NOT EXISTS tickets (
	ticket_id  TEXT PRIMARY KEY,
	account_id TEXT NOT NULL,
	user_id    TEXT NOT NULL DEFAULT '',
	channel    TEXT NOT NULL DEFAULT '',
	created_at DATETIME NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_tickets_user ON tickets(user_id);

CREATE TABLE IF NOT EXISTS ticket_metadata (
	ticket_id       TEXT PRIMARY KEY REFERENCES tickets(ticket_id),
	status          TEXT NOT NULL DEFAULT 'open',
	main_issue_type TEXT NOT NULL DEFAULT '',
	tags            TEXT NOT NULL DEFAULT '',
	updated_at      DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS ticket_messages (
	seq        INTEGER PRIMARY KEY AUTOINCREMENT,
	message_id TEXT NOT NULL UNIQUE,
	ticket_id  TEXT NOT NULL,
	role       TEXT NOT NULL,
	content    TEXT NOT NULL,
	created_at DATETIME NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_ticket_messages_ticket ON ticket_messages(ticket_id, seq);

CREATE TABLE IF NOT EXISTS ticket_resolutions (
	ticket_id          TEXT PRIMARY KEY,
	resolution_summary TEXT NOT NULL,
	resolution_agent   TEXT NOT NULL,
	resolution_type    TEXT NOT NULL,
	articles_used      TEXT NOT NULL DEFAULT '[]',
	tools_used         TEXT NOT NULL DEFAULT '[]',
	created_at         DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS customer_preferences (
	preference_id    TEXT PRIMARY KEY,
	external_user_id TEXT NOT NULL,
	account_id       TEXT NOT NULL,
	preference_key   TEXT NOT NULL,
	preference_value TEXT NOT NULL,
	updated_at       DATETIME NOT NULL,
	UNIQUE (external_user_id, account_id, preference_key)
);

CREATE TABLE IF NOT EXISTS knowledge (
	article_id TEXT PRIMARY KEY,
	account_id TEXT NOT NULL,
	title      TEXT NOT NULL,
	content    TEXT NOT NULL,
	tags       TEXT NOT NULL DEFAULT ''
);
`

// SupportStore is the SQLite-backed support domain store: tickets, their
// messages and resolutions, customer preferences and the knowledge base.
type SupportStore struct {
	db        *sql.DB
	accountID string
}

// OpenSupportStore opens (and creates if needed) the support database scoped
// to accountID.
func OpenSupportStore(path, accountID string) (*SupportStore, error) {
	if strings.TrimSpace(accountID) == "" {
		return nil, errors.New("store: account id must not be empty")
	}
	db, err := openDB(path, supportSchema)
	if err != nil {
		return nil, fmt.Errorf("store: open support db %s: %w", path, err)
	}
	return &SupportStore{db: db, accountID: accountID}, nil
}

func (s *SupportStore) Close() error {
	return s.db.Close()
}

// EnsureTicket creates the ticket and an open metadata record if missing.
func (s *SupportStore) EnsureTicket(ctx context.Context, ticketID, channel string) error {
	if strings.TrimSpace(ticketID) == "" {
		return fmt.Errorf("store: EnsureTicket: %w: ticket id is required", domain.ErrInvalidArgument)
	}
	return withTx(ctx, s.db, func(tx *sql.Tx) error {
		ts := now()
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO tickets (ticket_id, account_id, channel, created_at) VALUES (?, ?, ?, ?)
			 ON CONFLICT(ticket_id) DO NOTHING`,
			ticketID, s.accountID, channel, ts); err != nil {
			return persistErr("EnsureTicket", err)
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO ticket_metadata (ticket_id, updated_at) VALUES (?, ?)
			 ON CONFLICT(ticket_id) DO NOTHING`,
			ticketID, ts); err != nil {
			return persistErr("EnsureTicket", err)
		}
		return nil
	})
}

// LinkTicketUser records the verified customer a ticket belongs to.
func (s *SupportStore) LinkTicketUser(ctx context.Context, ticketID, userID string) error {
	res, err := s.db.ExecContext(ctx, `UPDATE tickets SET user_id = ? WHERE ticket_id = ?`, userID, ticketID)
	if err != nil {
		return persistErr("LinkTicketUser", err)
	}
	return requireRow(res, "LinkTicketUser", "ticket")
}

// TicketUser returns the customer linked to a ticket, or "" when none is.
func (s *SupportStore) TicketUser(ctx context.Context, ticketID string) (string, error) {
	var userID string
	err := s.db.QueryRowContext(ctx, `SELECT user_id FROM tickets WHERE ticket_id = ?`, ticketID).Scan(&userID)
	if errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("store: TicketUser: ticket %w", domain.ErrNotFound)
	}
	if err != nil {
		return "", persistErr("TicketUser", err)
	}
	return userID, nil
}

// UpdateTicketClassification overwrites the ticket's main issue type and tags.
func (s *SupportStore) UpdateTicketClassification(ctx context.Context, ticketID, issueType, tags string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE ticket_metadata SET main_issue_type = ?, tags = ?, updated_at = ? WHERE ticket_id = ?`,
		issueType, tags, now(), ticketID)
	if err != nil {
		return persistErr("UpdateTicketClassification", err)
	}
	return requireRow(res, "UpdateTicketClassification", "ticket metadata")
}

func (s *SupportStore) TicketMetadata(ctx context.Context, ticketID string) (domain.TicketMetadata, error) {
	var m domain.TicketMetadata
	err := s.db.QueryRowContext(ctx,
		`SELECT ticket_id, main_issue_type, tags, status FROM ticket_metadata WHERE ticket_id = ?`, ticketID,
	).Scan(&m.TicketID, &m.MainIssueType, &m.Tags, &m.Status)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.TicketMetadata{}, fmt.Errorf("store: TicketMetadata: %w", domain.ErrNotFound)
	}
	if err != nil {
		return domain.TicketMetadata{}, persistErr("TicketMetadata", err)
	}
	return m, nil
}

// SetTicketStatus records the ticket's lifecycle status (open, resolved, escalated).
func (s *SupportStore) SetTicketStatus(ctx context.Context, ticketID, status string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE ticket_metadata SET status = ?, updated_at = ? WHERE ticket_id = ?`, status, now(), ticketID)
	if err != nil {
		return persistErr("SetTicketStatus", err)
	}
	return requireRow(res, "SetTicketStatus", "ticket metadata")
}

// SaveMessage appends a message to the ticket's history and returns its id.
func (s *SupportStore) SaveMessage(ctx context.Context, ticketID, role, content string) (string, error) {
	ids, err := s.SaveMessages(ctx, ticketID, domain.ChatMessage{Role: role, Content: content})
	if err != nil {
		return "", err
	}
	return ids[0], nil
}

// SaveMessages appends messages in order within one transaction: either all
// of them are stored or none is.
func (s *SupportStore) SaveMessages(ctx context.Context, ticketID string, msgs ...domain.ChatMessage) ([]string, error) {
	roles := make([]domain.Role, len(msgs))
	for i, m := range msgs {
		r, err := domain.ParseRole(m.Role)
		if err != nil {
			return nil, fmt.Errorf("store: SaveMessages: %w", err)
		}
		roles[i] = r
	}

	ids := make([]string, 0, len(msgs))
	err := withTx(ctx, s.db, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx,
			`INSERT INTO ticket_messages (message_id, ticket_id, role, content, created_at) VALUES (?, ?, ?, ?, ?)`)
		if err != nil {
			return persistErr("SaveMessages", err)
		}
		defer stmt.Close()

		for i, m := range msgs {
			id := newID()
			if _, err := stmt.ExecContext(ctx, id, ticketID, roles[i], m.Content, now()); err != nil {
				return persistErr("SaveMessages", err)
			}
			ids = append(ids, id)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return ids, nil
}

// ConversationHistory returns the ticket's most recent messages in arrival
// order. A limit <= 0 returns every message.
func (s *SupportStore) ConversationHistory(ctx context.Context, ticketID string, limit int) ([]domain.TicketMessage, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT message_id, ticket_id, role, content, created_at FROM (
			SELECT seq, message_id, ticket_id, role, content, created_at
			FROM ticket_messages WHERE ticket_id = ? ORDER BY seq DESC LIMIT ?
		 ) ORDER BY seq ASC`, ticketID, limit)
	if err != nil {
		return nil, persistErr("ConversationHistory", err)
	}
	defer rows.Close()

	out := []domain.TicketMessage{}
	for rows.Next() {
		var m domain.TicketMessage
		if err := rows.Scan(&m.MessageID, &m.TicketID, &m.Role, &m.Content, &m.CreatedAt); err != nil {
			return nil, persistErr("ConversationHistory", err)
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, persistErr("ConversationHistory", err)
	}
	return out, nil
}

// SaveResolution upserts the resolution keyed by ticket id; the latest wins.
func (s *SupportStore) SaveResolution(ctx context.Context, r domain.Resolution) error {
	if _, err := domain.ParseResolutionType(string(r.Type)); err != nil {
		return fmt.Errorf("store: SaveResolution: %w", err)
	}
	if strings.TrimSpace(r.TicketID) == "" {
		return fmt.Errorf("store: SaveResolution: %w: ticket id is required", domain.ErrInvalidArgument)
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = now()
	}
	articles, err := json.Marshal(nonNil(r.ArticlesUsed))
	if err != nil {
		return fmt.Errorf("store: SaveResolution: marshal articles: %w", err)
	}
	tools, err := json.Marshal(nonNil(r.ToolsUsed))
	if err != nil {
		return fmt.Errorf("store: SaveResolution: marshal tools: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO ticket_resolutions
			(ticket_id, resolution_summary, resolution_agent, resolution_type, articles_used, tools_used, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(ticket_id) DO UPDATE SET
			resolution_summary = excluded.resolution_summary,
			resolution_agent = excluded.resolution_agent,
			resolution_type = excluded.resolution_type,
			articles_used = excluded.articles_used,
			tools_used = excluded.tools_used,
			created_at = excluded.created_at`,
		r.TicketID, r.Summary, r.Agent, r.Type, string(articles), string(tools), r.CreatedAt)
	if err != nil {
		return persistErr("SaveResolution", err)
	}
	return nil
}

const resolutionColumns = `r.ticket_id, r.resolution_summary, r.resolution_agent, r.resolution_type, r.articles_used, r.tools_used, r.created_at`

func (s *SupportStore) Resolution(ctx context.Context, ticketID string) (domain.Resolution, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+resolutionColumns+` FROM ticket_resolutions r WHERE r.ticket_id = ?`, ticketID)
	if err != nil {
		return domain.Resolution{}, persistErr("Resolution", err)
	}
	out, err := scanResolutions(rows)
	if err != nil {
		return domain.Resolution{}, err
	}
	if len(out) == 0 {
		return domain.Resolution{}, fmt.Errorf("store: Resolution: %w", domain.ErrNotFound)
	}
	return out[0], nil
}

// ResolutionsForUser returns the user's most recent resolutions, newest first.
func (s *SupportStore) ResolutionsForUser(ctx context.Context, userID string, limit int) ([]domain.Resolution, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+resolutionColumns+`
		 FROM ticket_resolutions r JOIN tickets t ON t.ticket_id = r.ticket_id
		 WHERE t.user_id = ? AND t.account_id = ?
		 ORDER BY r.created_at DESC LIMIT ?`, userID, s.accountID, limit)
	if err != nil {
		return nil, persistErr("ResolutionsForUser", err)
	}
	return scanResolutions(rows)
}

func scanResolutions(rows *sql.Rows) ([]domain.Resolution, error) {
	defer rows.Close()
	out := []domain.Resolution{}
	for rows.Next() {
		var (
			r              domain.Resolution
			articles, tool string
		)
		if err := rows.Scan(&r.TicketID, &r.Summary, &r.Agent, &r.Type, &articles, &tool, &r.CreatedAt); err != nil {
			return nil, persistErr("scan resolution", err)
		}
		if err := json.Unmarshal([]byte(articles), &r.ArticlesUsed); err != nil {
			return nil, fmt.Errorf("store: decode articles_used: %w", err)
		}
		if err := json.Unmarshal([]byte(tool), &r.ToolsUsed); err != nil {
			return nil, fmt.Errorf("store: decode tools_used: %w", err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, persistErr("scan resolution", err)
	}
	return out, nil
}

// SavePreference upserts a preference keyed by (user, account, key).
func (s *SupportStore) SavePreference(ctx context.Context, userID, key, value string) error {
	key = strings.TrimSpace(key)
	if strings.TrimSpace(userID) == "" || key == "" {
		return fmt.Errorf("store: SavePreference: %w: user id and key are required", domain.ErrInvalidArgument)
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO customer_preferences
			(preference_id, external_user_id, account_id, preference_key, preference_value, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT(external_user_id, account_id, preference_key) DO UPDATE SET
			preference_value = excluded.preference_value,
			updated_at = excluded.updated_at`,
		newID(), userID, s.accountID, key, value, now())
	if err != nil {
		return persistErr("SavePreference", err)
	}
	return nil
}

func (s *SupportStore) Preferences(ctx context.Context, userID string) ([]domain.CustomerPreference, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT preference_id, external_user_id, account_id, preference_key, preference_value, updated_at
		 FROM customer_preferences WHERE external_user_id = ? AND account_id = ?
		 ORDER BY preference_key`, userID, s.accountID)
	if err != nil {
		return nil, persistErr("Preferences", err)
	}
	defer rows.Close()

	out := []domain.CustomerPreference{}
	for rows.Next() {
		var p domain.CustomerPreference
		if err := rows.Scan(&p.PreferenceID, &p.ExternalUserID, &p.AccountID, &p.Key, &p.Value, &p.UpdatedAt); err != nil {
			return nil, persistErr("Preferences", err)
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, persistErr("Preferences", err)
	}
	return out, nil
}

// Articles lists the account's knowledge base ordered by id.
func (s *SupportStore) Articles(ctx context.Context) ([]domain.Article, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT article_id, title, content, tags FROM knowledge WHERE account_id = ? ORDER BY article_id`, s.accountID)
	if err != nil {
		return nil, persistErr("Articles", err)
	}
	defer rows.Close()

	out := []domain.Article{}
	for rows.Next() {
		var a domain.Article
		if err := rows.Scan(&a.ArticleID, &a.Title, &a.Content, &a.Tags); err != nil {
			return nil, persistErr("Articles", err)
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, persistErr("Articles", err)
	}
	return out, nil
}

func (s *SupportStore) Article(ctx context.Context, articleID string) (domain.Article, error) {
	var a domain.Article
	err := s.db.QueryRowContext(ctx,
		`SELECT article_id, title, content, tags FROM knowledge WHERE article_id = ? AND account_id = ?`,
		articleID, s.accountID,
	).Scan(&a.ArticleID, &a.Title, &a.Content, &a.Tags)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Article{}, fmt.Errorf("store: article %q %w", articleID, domain.ErrNotFound)
	}
	if err != nil {
		return domain.Article{}, persistErr("Article", err)
	}
	return a, nil
}

func (s *SupportStore) UpsertArticle(ctx context.Context, a domain.Article) error {
	if strings.TrimSpace(a.ArticleID) == "" {
		return fmt.Errorf("store: UpsertArticle: %w: article id is required", domain.ErrInvalidArgument)
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO knowledge (article_id, account_id, title, content, tags) VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(article_id) DO UPDATE SET title = excluded.title, content = excluded.content, tags = excluded.tags`,
		a.ArticleID, s.accountID, a.Title, a.Content, a.Tags)
	if err != nil {
		return persistErr("UpsertArticle", err)
	}
	return nil
}

func requireRow(res sql.Result, op, entity string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return persistErr(op, err)
	}
	if n == 0 {
		return fmt.Errorf("store: %s: %s %w", op, entity, domain.ErrNotFound)
	}
	return nil
}

func nonNil(v []string) []string {
	if v == nil {
		return []string{}
	}
	return v
}
