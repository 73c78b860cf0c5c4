package audit

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"
)

type captureSink struct {
	events []Event
	err    error
}

func (c *captureSink) Emit(_ context.Context, e Event) error {
	c.events = append(c.events, e)
	return c.err
}

func TestEmitter_FansOutAndSwallowsFailures(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))
	failing := &captureSink{err: errors.New("broker down")}
	ok := &captureSink{}

	NewEmitter(logger, failing, ok).Emit(context.Background(), Event{Agent: "router", Action: "route_ticket"})

	require.Len(t, failing.events, 1)
	require.Len(t, ok.events, 1)
	require.False(t, ok.events[0].Time.IsZero())
	require.Contains(t, buf.String(), "audit sink failed")
}

func TestEmitter_StampsTicketFromContext(t *testing.T) {
	sink := &captureSink{}
	ctx := WithTicket(context.Background(), "t-9")
	NewEmitter(nil, sink).Emit(ctx, Event{Agent: "classifier", Action: "classify_ticket"})
	require.Equal(t, "t-9", sink.events[0].TicketID)
	require.Equal(t, "t-9", TicketFrom(ctx))
}

func TestEmitter_NilIsNoop(t *testing.T) {
	var e *Emitter
	require.NotPanics(t, func() { e.Emit(context.Background(), Event{}) })
}

func TestLogSink(t *testing.T) {
	var buf bytes.Buffer
	s := LogSink{Logger: slog.New(slog.NewJSONHandler(&buf, nil))}
	require.NoError(t, s.Emit(context.Background(), Event{
		Agent: "knowledge", Action: "rag_search", TicketID: "t-1",
		Details: map[string]any{"results_count": 2},
	}))
	require.Contains(t, buf.String(), `"ticket_id":"t-1"`)
	require.Contains(t, buf.String(), `"results_count":2`)
}

func TestTruncate(t *testing.T) {
	require.Equal(t, "abc", Truncate("abc", 5))
	require.Equal(t, "ab", Truncate("abc", 2))
	require.Equal(t, "çã", Truncate("çãé", 2))
}
