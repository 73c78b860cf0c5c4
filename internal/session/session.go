// Package session keeps per-session conversation state in memory and
// serialises message processing within a session.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"support-router/internal/domain"
)

const (
	roleUser = "user"
	roleAI   = "ai"
)

// Snapshot is the durable view of a session used to rehydrate a cold one.
type Snapshot struct {
	UserID   string
	Messages []domain.ChatMessage
	Turns    int
}

// Exchange is one completed customer message and its reply.
type Exchange struct {
	Message   string
	Reply     string
	UserID    string
	IssueType string
}

// Transcript persists completed exchanges beyond the process lifetime.
type Transcript interface {
	Load(ctx context.Context, sessionID string, limit int) (Snapshot, error)
	SaveTurn(ctx context.Context, sessionID string, ex Exchange, turns int) error
}

// State is the conversation state of one session. Messages are append-only.
type State struct {
	ID       string
	UserID   string
	Messages []domain.ChatMessage
	Turns    int
}

// CustomerMessages returns the customer's messages, oldest first.
func (s State) CustomerMessages() []string {
	var out []string
	for _, m := range s.Messages {
		if m.Role == roleUser {
			out = append(out, m.Content)
		}
	}
	return out
}

const (
	defaultIdleSessions = 1024
	defaultIdleTTL      = 30 * time.Minute
)

type entry struct {
	lock chan struct{}
	// refs counts holders and waiters; guarded by Manager.mu.
	refs   int
	state  State
	loaded bool
}

// Manager hands out exclusive access to sessions. Independent sessions
// proceed concurrently; messages within one session are processed one at a
// time. Released sessions stay warm in a bounded idle cache and are reloaded
// from the transcript once evicted.
type Manager struct {
	transcript   Transcript
	historyLimit int
	idleSize     int
	idleTTL      time.Duration

	mu     sync.Mutex
	active map[string]*entry
	idle   *expirable.LRU[string, State]
}

type Option func(*Manager)

// WithIdleCache bounds how many released sessions are kept in memory and for
// how long. Non-positive values keep the defaults.
func WithIdleCache(size int, ttl time.Duration) Option {
	return func(m *Manager) {
		if size > 0 {
			m.idleSize = size
		}
		if ttl > 0 {
			m.idleTTL = ttl
		}
	}
}

func NewManager(transcript Transcript, historyLimit int, opts ...Option) (*Manager, error) {
	if transcript == nil {
		return nil, errors.New("session: transcript must not be nil")
	}
	m := &Manager{
		transcript:   transcript,
		historyLimit: historyLimit,
		idleSize:     defaultIdleSessions,
		idleTTL:      defaultIdleTTL,
		active:       make(map[string]*entry),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.idle = expirable.NewLRU[string, State](m.idleSize, nil, m.idleTTL)
	return m, nil
}

// claim registers interest in a session, reviving it from the idle cache
// when possible.
func (m *Manager) claim(id string) *entry {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.active[id]
	if !ok {
		e = &entry{lock: make(chan struct{}, 1), state: State{ID: id}}
		if st, warm := m.idle.Get(id); warm {
			m.idle.Remove(id)
			e.state, e.loaded = st, true
		}
		m.active[id] = e
	}
	e.refs++
	return e
}

// unclaim drops interest in a session. The last one out parks the state in
// the idle cache.
func (m *Manager) unclaim(id string, e *entry) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e.refs--
	if e.refs > 0 {
		return
	}
	delete(m.active, id)
	if e.loaded {
		m.idle.Add(id, e.state)
	}
}

// Len reports how many sessions are held in memory, active or idle.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.active) + m.idle.Len()
}

// Acquire blocks until the session is free or ctx is done. The caller must
// Release the returned Session.
func (m *Manager) Acquire(ctx context.Context, id string) (*Session, error) {
	if id == "" {
		return nil, fmt.Errorf("session: Acquire: %w: session id is required", domain.ErrInvalidArgument)
	}
	e := m.claim(id)
	select {
	case e.lock <- struct{}{}:
	case <-ctx.Done():
		m.unclaim(id, e)
		return nil, fmt.Errorf("session: Acquire: %w", ctx.Err())
	}

	if !e.loaded {
		snap, err := m.transcript.Load(ctx, id, m.historyLimit)
		if err != nil {
			<-e.lock
			m.unclaim(id, e)
			return nil, fmt.Errorf("session: Acquire: %w", err)
		}
		e.state = State{ID: id, UserID: snap.UserID, Messages: snap.Messages, Turns: snap.Turns}
		e.loaded = true
	}
	return &Session{m: m, e: e, id: id}, nil
}

// Session is exclusive access to one session's state.
type Session struct {
	m        *Manager
	e        *entry
	id       string
	released bool
}

// State returns a copy of the current conversation state.
func (s *Session) State() State {
	st := s.e.state
	st.Messages = append([]domain.ChatMessage(nil), st.Messages...)
	return st
}

// Commit persists the exchange and appends it to the in-memory state. The
// in-memory state is unchanged when persistence fails.
func (s *Session) Commit(ctx context.Context, ex Exchange) error {
	st := &s.e.state
	turns := st.Turns + 1
	if ex.UserID == "" {
		ex.UserID = st.UserID
	}
	if err := s.m.transcript.SaveTurn(ctx, st.ID, ex, turns); err != nil {
		return fmt.Errorf("session: Commit: %w", err)
	}
	st.Messages = append(st.Messages,
		domain.ChatMessage{Role: roleUser, Content: ex.Message},
		domain.ChatMessage{Role: roleAI, Content: ex.Reply},
	)
	if n := s.m.historyLimit; n > 0 && len(st.Messages) > n {
		st.Messages = append([]domain.ChatMessage(nil), st.Messages[len(st.Messages)-n:]...)
	}
	st.UserID = ex.UserID
	st.Turns = turns
	return nil
}

// Release returns the session to the manager. It is safe to call twice.
func (s *Session) Release() {
	if s.released {
		return
	}
	s.released = true
	<-s.e.lock
	s.m.unclaim(s.id, s.e)
}
