package session

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"support-router/internal/domain"
	"support-router/internal/store"
)

type fakeTranscript struct {
	mu      sync.Mutex
	snaps   map[string]Snapshot
	saved   []Exchange
	loads   int
	saveErr error
}

func newFakeTranscript() *fakeTranscript {
	return &fakeTranscript{snaps: map[string]Snapshot{}}
}

func (f *fakeTranscript) Load(_ context.Context, id string, _ int) (Snapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.loads++
	return f.snaps[id], nil
}

func (f *fakeTranscript) SaveTurn(_ context.Context, _ string, ex Exchange, _ int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.saveErr != nil {
		return f.saveErr
	}
	f.saved = append(f.saved, ex)
	return nil
}

func TestManager_CommitAppends(t *testing.T) {
	tr := newFakeTranscript()
	m, err := NewManager(tr, 0)
	require.NoError(t, err)
	ctx := context.Background()

	s, err := m.Acquire(ctx, "s-1")
	require.NoError(t, err)
	require.NoError(t, s.Commit(ctx, Exchange{Message: "hi", Reply: "hello", UserID: "u-1"}))
	s.Release()

	s, err = m.Acquire(ctx, "s-1")
	require.NoError(t, err)
	defer s.Release()
	st := s.State()
	require.Equal(t, "u-1", st.UserID)
	require.Equal(t, 1, st.Turns)
	require.Equal(t, []domain.ChatMessage{{Role: "user", Content: "hi"}, {Role: "ai", Content: "hello"}}, st.Messages)
	require.Equal(t, []string{"hi"}, st.CustomerMessages())
	require.Equal(t, 1, tr.loads)
}

func TestManager_KeepsUserIDWhenUnset(t *testing.T) {
	tr := newFakeTranscript()
	tr.snaps["s-1"] = Snapshot{UserID: "u-1", Turns: 3}
	m, err := NewManager(tr, 0)
	require.NoError(t, err)
	ctx := context.Background()

	s, err := m.Acquire(ctx, "s-1")
	require.NoError(t, err)
	require.NoError(t, s.Commit(ctx, Exchange{Message: "and now?", Reply: "done"}))
	require.Equal(t, "u-1", s.State().UserID)
	require.Equal(t, 4, s.State().Turns)
	require.Equal(t, "u-1", tr.saved[0].UserID)
	s.Release()
}

func TestManager_CommitFailureLeavesState(t *testing.T) {
	tr := newFakeTranscript()
	tr.saveErr = errors.New("disk full")
	m, err := NewManager(tr, 0)
	require.NoError(t, err)
	ctx := context.Background()

	s, err := m.Acquire(ctx, "s-1")
	require.NoError(t, err)
	defer s.Release()
	require.Error(t, s.Commit(ctx, Exchange{Message: "hi", Reply: "hello"}))
	require.Empty(t, s.State().Messages)
	require.Zero(t, s.State().Turns)
}

func TestManager_HistoryLimit(t *testing.T) {
	m, err := NewManager(newFakeTranscript(), 2)
	require.NoError(t, err)
	ctx := context.Background()

	s, err := m.Acquire(ctx, "s-1")
	require.NoError(t, err)
	defer s.Release()
	require.NoError(t, s.Commit(ctx, Exchange{Message: "one", Reply: "1"}))
	require.NoError(t, s.Commit(ctx, Exchange{Message: "two", Reply: "2"}))
	require.Equal(t, []string{"two"}, s.State().CustomerMessages())
	require.Equal(t, 2, s.State().Turns)
}

func TestManager_SerialisesSession(t *testing.T) {
	m, err := NewManager(newFakeTranscript(), 0)
	require.NoError(t, err)
	ctx := context.Background()

	first, err := m.Acquire(ctx, "s-1")
	require.NoError(t, err)

	waitCtx, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
	defer cancel()
	_, err = m.Acquire(waitCtx, "s-1")
	require.ErrorIs(t, err, context.DeadlineExceeded)

	other, err := m.Acquire(ctx, "s-2")
	require.NoError(t, err)
	other.Release()

	first.Release()
	first.Release()
	again, err := m.Acquire(ctx, "s-1")
	require.NoError(t, err)
	again.Release()
}

func TestManager_ConcurrentCommits(t *testing.T) {
	tr := newFakeTranscript()
	m, err := NewManager(tr, 0)
	require.NoError(t, err)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s, err := m.Acquire(ctx, "s-1")
			if err != nil {
				return
			}
			defer s.Release()
			_ = s.Commit(ctx, Exchange{Message: "m", Reply: "r"})
		}()
	}
	wg.Wait()

	s, err := m.Acquire(ctx, "s-1")
	require.NoError(t, err)
	defer s.Release()
	require.Equal(t, 20, s.State().Turns)
	require.Len(t, s.State().Messages, 40)
}

func TestManager_EvictsIdleSessions(t *testing.T) {
	tr := newFakeTranscript()
	m, err := NewManager(tr, 0, WithIdleCache(1, time.Hour))
	require.NoError(t, err)
	ctx := context.Background()

	s, err := m.Acquire(ctx, "s-1")
	require.NoError(t, err)
	require.NoError(t, s.Commit(ctx, Exchange{Message: "hi", Reply: "hello"}))
	s.Release()
	require.Equal(t, 1, m.Len())

	other, err := m.Acquire(ctx, "s-2")
	require.NoError(t, err)
	other.Release()
	require.Equal(t, 1, m.Len())
	require.Empty(t, m.active)

	// s-1 was pushed out, so it comes back from the transcript
	s, err = m.Acquire(ctx, "s-1")
	require.NoError(t, err)
	defer s.Release()
	require.Equal(t, 3, tr.loads)
	require.Empty(t, s.State().Messages)
}

func TestManager_IdleSessionsExpire(t *testing.T) {
	m, err := NewManager(newFakeTranscript(), 0, WithIdleCache(10, 20*time.Millisecond))
	require.NoError(t, err)
	ctx := context.Background()

	for _, id := range []string{"s-1", "s-2", "s-3"} {
		s, err := m.Acquire(ctx, id)
		require.NoError(t, err)
		s.Release()
	}
	require.Eventually(t, func() bool { return m.Len() == 0 }, time.Second, 10*time.Millisecond)
}

func TestManager_AbandonedWaitDoesNotLeak(t *testing.T) {
	m, err := NewManager(newFakeTranscript(), 0)
	require.NoError(t, err)
	ctx := context.Background()

	held, err := m.Acquire(ctx, "s-1")
	require.NoError(t, err)
	waitCtx, cancel := context.WithTimeout(ctx, 10*time.Millisecond)
	defer cancel()
	_, err = m.Acquire(waitCtx, "s-1")
	require.Error(t, err)

	held.Release()
	m.mu.Lock()
	defer m.mu.Unlock()
	require.Empty(t, m.active)
	require.Equal(t, 1, m.idle.Len())
}

func TestManager_RejectsEmptyID(t *testing.T) {
	m, err := NewManager(newFakeTranscript(), 0)
	require.NoError(t, err)
	_, err = m.Acquire(context.Background(), "")
	require.ErrorIs(t, err, domain.ErrInvalidArgument)
}

func TestStoreTranscript_RoundTrip(t *testing.T) {
	ctx := context.Background()
	support, err := store.OpenSupportStore(filepath.Join(t.TempDir(), "udahub.db"), domain.AccountID)
	require.NoError(t, err)
	t.Cleanup(func() { _ = support.Close() })
	require.NoError(t, support.EnsureTicket(ctx, "s-1", "chat"))

	tr, err := NewStoreTranscript(support)
	require.NoError(t, err)
	require.NoError(t, tr.SaveTurn(ctx, "s-1", Exchange{Message: "hi", Reply: "hello"}, 1))
	require.NoError(t, tr.SaveTurn(ctx, "s-1", Exchange{Message: "again", Reply: "sure"}, 2))
	require.NoError(t, support.LinkTicketUser(ctx, "s-1", "u-1"))

	snap, err := tr.Load(ctx, "s-1", 2)
	require.NoError(t, err)
	require.Equal(t, "u-1", snap.UserID)
	require.Equal(t, 2, snap.Turns)
	require.Equal(t, []domain.ChatMessage{{Role: "user", Content: "again"}, {Role: "ai", Content: "sure"}}, snap.Messages)

	snap, err = tr.Load(ctx, "unknown", 0)
	require.NoError(t, err)
	require.Empty(t, snap.Messages)
	require.Empty(t, snap.UserID)
}

type failingMessages struct {
	calls [][]domain.ChatMessage
}

func (f *failingMessages) SaveMessages(_ context.Context, _ string, msgs ...domain.ChatMessage) ([]string, error) {
	f.calls = append(f.calls, msgs)
	return nil, errors.New("store: SaveMessages: locked")
}

func (f *failingMessages) ConversationHistory(context.Context, string, int) ([]domain.TicketMessage, error) {
	return nil, nil
}

func (f *failingMessages) TicketUser(context.Context, string) (string, error) {
	return "", domain.ErrNotFound
}

func TestStoreTranscript_SavesTurnInOneWrite(t *testing.T) {
	msgs := &failingMessages{}
	tr, err := NewStoreTranscript(msgs)
	require.NoError(t, err)

	err = tr.SaveTurn(context.Background(), "s-1", Exchange{Message: "hi", Reply: "hello"}, 1)
	require.ErrorContains(t, err, "locked")
	require.Equal(t, [][]domain.ChatMessage{{
		{Role: "user", Content: "hi"},
		{Role: "ai", Content: "hello"},
	}}, msgs.calls)
}
