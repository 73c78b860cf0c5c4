// Package usecase is the session entry point: one customer message in, one
// composed reply out.
package usecase

import (
	"context"
	"errors"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"

	"support-router/internal/audit"
	"support-router/internal/domain"
	"support-router/internal/router"
	"support-router/internal/session"
)

const (
	defaultMaxMessage = 2000
	channelChat       = "chat"
)

type Router interface {
	Handle(ctx context.Context, t router.Turn) (router.Decision, error)
}

type Sessions interface {
	Acquire(ctx context.Context, id string) (*session.Session, error)
}

type TicketOpener interface {
	EnsureTicket(ctx context.Context, ticketID, channel string) error
}

type SupportService struct {
	router        Router
	sessions      Sessions
	tickets       TicketOpener
	maxMessageLen int
	maxTurns      int
}

type ProcessInput struct {
	Message   string
	SessionID string
}

type ProcessOutput struct {
	Reply     string
	SessionID string
}

// NewSupportService wires the router to session state. maxTurns <= 0 means
// sessions are unbounded.
func NewSupportService(r Router, s Sessions, t TicketOpener, maxMessageLen, maxTurns int) (*SupportService, error) {
	if r == nil {
		return nil, errors.New("usecase: router must not be nil")
	}
	if s == nil {
		return nil, errors.New("usecase: sessions must not be nil")
	}
	if t == nil {
		return nil, errors.New("usecase: ticket opener must not be nil")
	}
	if maxMessageLen <= 0 {
		maxMessageLen = defaultMaxMessage
	}
	return &SupportService{
		router:        r,
		sessions:      s,
		tickets:       t,
		maxMessageLen: maxMessageLen,
		maxTurns:      maxTurns,
	}, nil
}

// Process handles one customer message. An empty session id starts a new
// session; the returned id continues it.
func (s *SupportService) Process(ctx context.Context, in ProcessInput) (ProcessOutput, error) {
	message := strings.TrimSpace(in.Message)
	if message == "" {
		return ProcessOutput{}, newError(ErrorInvalidInput, "empty_message", nil)
	}
	if utf8.RuneCountInString(message) > s.maxMessageLen {
		return ProcessOutput{}, newError(ErrorInvalidInput, "message_too_long", nil)
	}
	sessionID := strings.TrimSpace(in.SessionID)
	if sessionID == "" {
		sessionID = newUUID()
	}

	sess, err := s.sessions.Acquire(ctx, sessionID)
	if err != nil {
		if errors.Is(err, domain.ErrInvalidArgument) {
			return ProcessOutput{}, newError(ErrorInvalidInput, "invalid_session", err)
		}
		return ProcessOutput{}, newError(ErrorInternal, "session_load_error", err)
	}
	defer sess.Release()

	state := sess.State()
	if s.maxTurns > 0 && state.Turns >= s.maxTurns {
		return ProcessOutput{}, newError(ErrorInvalidInput, "session_turn_limit", nil)
	}
	if err := s.tickets.EnsureTicket(ctx, sessionID, channelChat); err != nil {
		return ProcessOutput{}, newError(ErrorInternal, "ticket_open_error", err)
	}

	ctx = audit.WithTicket(ctx, sessionID)
	decision, err := s.router.Handle(ctx, router.Turn{
		TicketID: sessionID,
		Message:  message,
		Earlier:  state.CustomerMessages(),
		UserID:   state.UserID,
	})
	if err != nil {
		return ProcessOutput{}, routingError(err)
	}

	if err := sess.Commit(ctx, session.Exchange{
		Message:   message,
		Reply:     decision.Reply,
		UserID:    decision.UserID,
		IssueType: string(decision.Classification.IssueType),
	}); err != nil {
		return ProcessOutput{}, newError(ErrorInternal, "transcript_write_error", err)
	}

	return ProcessOutput{Reply: decision.Reply, SessionID: sessionID}, nil
}

var newUUID = func() string {
	return uuid.NewString()
}
