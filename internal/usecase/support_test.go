package usecase

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"support-router/internal/audit"
	"support-router/internal/domain"
	"support-router/internal/integrations/openai"
	"support-router/internal/router"
	"support-router/internal/session"
)

type stubRouter struct {
	decision router.Decision
	err      error
	turns    []router.Turn
	tickets  []string
}

func (s *stubRouter) Handle(ctx context.Context, t router.Turn) (router.Decision, error) {
	s.turns = append(s.turns, t)
	s.tickets = append(s.tickets, audit.TicketFrom(ctx))
	return s.decision, s.err
}

type memTranscript struct {
	snaps map[string]session.Snapshot
	saved []session.Exchange
	err   error
}

func (m *memTranscript) Load(_ context.Context, id string, _ int) (session.Snapshot, error) {
	return m.snaps[id], nil
}

func (m *memTranscript) SaveTurn(_ context.Context, _ string, ex session.Exchange, _ int) error {
	if m.err != nil {
		return m.err
	}
	m.saved = append(m.saved, ex)
	return nil
}

type fakeTickets struct {
	opened []string
	err    error
}

func (f *fakeTickets) EnsureTicket(_ context.Context, ticketID, _ string) error {
	f.opened = append(f.opened, ticketID)
	return f.err
}

type fixture struct {
	svc        *SupportService
	router     *stubRouter
	transcript *memTranscript
	tickets    *fakeTickets
}

func newFixture(t *testing.T, maxTurns int) fixture {
	t.Helper()
	f := fixture{
		router: &stubRouter{decision: router.Decision{
			Reply:          "Here you go.",
			Classification: domain.TicketClassification{IssueType: domain.IssueGeneral},
		}},
		transcript: &memTranscript{snaps: map[string]session.Snapshot{}},
		tickets:    &fakeTickets{},
	}
	sessions, err := session.NewManager(f.transcript, 20)
	require.NoError(t, err)
	svc, err := NewSupportService(f.router, sessions, f.tickets, 50, maxTurns)
	require.NoError(t, err)
	f.svc = svc
	return f
}

func requireCode(t *testing.T, err error, code ErrorCode) *Error {
	t.Helper()
	var ucErr *Error
	require.True(t, errors.As(err, &ucErr), "expected usecase error, got %v", err)
	require.Equal(t, code, ucErr.Code)
	return ucErr
}

func TestNewSupportService_ValidatesDependencies(t *testing.T) {
	sessions, err := session.NewManager(&memTranscript{}, 0)
	require.NoError(t, err)

	_, err = NewSupportService(nil, sessions, &fakeTickets{}, 0, 0)
	require.Error(t, err)
	_, err = NewSupportService(&stubRouter{}, nil, &fakeTickets{}, 0, 0)
	require.Error(t, err)
	_, err = NewSupportService(&stubRouter{}, sessions, nil, 0, 0)
	require.Error(t, err)
}

func TestProcess_NewSession(t *testing.T) {
	f := newFixture(t, 0)
	orig := newUUID
	newUUID = func() string { return "sess-1" }
	t.Cleanup(func() { newUUID = orig })

	out, err := f.svc.Process(context.Background(), ProcessInput{Message: "  How do I reserve?  "})
	require.NoError(t, err)
	require.Equal(t, ProcessOutput{Reply: "Here you go.", SessionID: "sess-1"}, out)

	require.Equal(t, []string{"sess-1"}, f.tickets.opened)
	require.Equal(t, "How do I reserve?", f.router.turns[0].Message)
	require.Equal(t, "sess-1", f.router.turns[0].TicketID)
	require.Equal(t, "sess-1", f.router.tickets[0])
	require.Equal(t, []session.Exchange{{Message: "How do I reserve?", Reply: "Here you go.", IssueType: "general"}}, f.transcript.saved)
}

func TestProcess_CarriesSessionContext(t *testing.T) {
	f := newFixture(t, 0)
	f.transcript.snaps["sess-1"] = session.Snapshot{
		UserID: "u-1",
		Messages: []domain.ChatMessage{
			{Role: "user", Content: "my email is alice@example.com"},
			{Role: "ai", Content: "Hi Alice."},
		},
		Turns: 1,
	}
	f.router.decision.UserID = "u-1"

	_, err := f.svc.Process(context.Background(), ProcessInput{Message: "cancel my booking r-1", SessionID: "sess-1"})
	require.NoError(t, err)
	_, err = f.svc.Process(context.Background(), ProcessInput{Message: "thanks", SessionID: "sess-1"})
	require.NoError(t, err)

	require.Equal(t, "u-1", f.router.turns[0].UserID)
	require.Equal(t, []string{"my email is alice@example.com"}, f.router.turns[0].Earlier)
	require.Equal(t, []string{"my email is alice@example.com", "cancel my booking r-1"}, f.router.turns[1].Earlier)
}

func TestProcess_SessionsAreIsolated(t *testing.T) {
	f := newFixture(t, 0)
	f.router.decision.UserID = "u-1"

	_, err := f.svc.Process(context.Background(), ProcessInput{Message: "I'm alice@example.com", SessionID: "a"})
	require.NoError(t, err)
	f.router.decision.UserID = ""
	_, err = f.svc.Process(context.Background(), ProcessInput{Message: "hello", SessionID: "b"})
	require.NoError(t, err)

	require.Empty(t, f.router.turns[1].UserID)
	require.Empty(t, f.router.turns[1].Earlier)
}

func TestProcess_InvalidInput(t *testing.T) {
	f := newFixture(t, 0)

	_, err := f.svc.Process(context.Background(), ProcessInput{Message: "   "})
	require.Equal(t, "empty_message", requireCode(t, err, ErrorInvalidInput).Reason)

	_, err = f.svc.Process(context.Background(), ProcessInput{Message: strings.Repeat("á", 51)})
	require.Equal(t, "message_too_long", requireCode(t, err, ErrorInvalidInput).Reason)

	_, err = f.svc.Process(context.Background(), ProcessInput{Message: strings.Repeat("á", 50)})
	require.NoError(t, err)
	require.Len(t, f.router.turns, 1)
}

func TestProcess_TurnLimit(t *testing.T) {
	f := newFixture(t, 1)

	_, err := f.svc.Process(context.Background(), ProcessInput{Message: "hi", SessionID: "s"})
	require.NoError(t, err)
	_, err = f.svc.Process(context.Background(), ProcessInput{Message: "again", SessionID: "s"})
	require.Equal(t, "session_turn_limit", requireCode(t, err, ErrorInvalidInput).Reason)
	require.Len(t, f.router.turns, 1)
}

func TestProcess_MapsRouterErrors(t *testing.T) {
	cases := []struct {
		name string
		err  error
		code ErrorCode
	}{
		{
			name: "backend unavailable",
			err:  fmt.Errorf("router: classify: %w", domain.ErrBackendUnavailable),
			code: ErrorUpstream,
		},
		{
			name: "rate limited",
			err: fmt.Errorf("router: classify: %w: %w", domain.ErrBackendUnavailable,
				&openai.HTTPStatusError{StatusCode: http.StatusTooManyRequests, URL: "https://api.openai.com", Body: "slow down"}),
			code: ErrorRateLimited,
		},
		{
			name: "unexpected",
			err:  errors.New("boom"),
			code: ErrorInternal,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t, 0)
			f.router.err = tc.err

			_, err := f.svc.Process(context.Background(), ProcessInput{Message: "hi", SessionID: "s"})
			ucErr := requireCode(t, err, tc.code)
			require.Equal(t, tc.code != ErrorInternal, ucErr.Retryable())
			require.Empty(t, f.transcript.saved)
		})
	}
}

func TestProcess_PersistenceFailures(t *testing.T) {
	f := newFixture(t, 0)
	f.tickets.err = errors.New("locked")
	_, err := f.svc.Process(context.Background(), ProcessInput{Message: "hi", SessionID: "s"})
	require.Equal(t, "ticket_open_error", requireCode(t, err, ErrorInternal).Reason)

	f = newFixture(t, 0)
	f.transcript.err = errors.New("disk full")
	_, err = f.svc.Process(context.Background(), ProcessInput{Message: "hi", SessionID: "s"})
	require.Equal(t, "transcript_write_error", requireCode(t, err, ErrorInternal).Reason)
}
