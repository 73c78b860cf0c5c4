package classify

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"

	"support-router/internal/audit"
	"support-router/internal/domain"
	"support-router/internal/integrations/openai"
)

type scriptedBackend struct {
	outputs []string
	err     error
	calls   int
	system  string
	user    string
}

func (b *scriptedBackend) Complete(_ context.Context, system, user string) (string, error) {
	b.system, b.user = system, user
	if b.err != nil {
		return "", b.err
	}
	idx := b.calls
	if idx >= len(b.outputs) {
		idx = len(b.outputs) - 1
	}
	b.calls++
	return b.outputs[idx], nil
}

type fakeMeta struct {
	ticketID, issueType, tags string
	err                       error
}

func (m *fakeMeta) UpdateTicketClassification(_ context.Context, ticketID, issueType, tags string) error {
	m.ticketID, m.issueType, m.tags = ticketID, issueType, tags
	return m.err
}

type recordingSink struct{ events []audit.Event }

func (s *recordingSink) Emit(_ context.Context, e audit.Event) error {
	s.events = append(s.events, e)
	return nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

const validOutput = `{"issue_type":"billing","priority":"high","sentiment":"frustrated","requires_human":false,"summary":"Customer wants a refund."}`

func newTestClassifier(t *testing.T, b Backend, meta MetadataWriter, sink *recordingSink) *Classifier {
	t.Helper()
	c, err := New(b, meta, audit.NewEmitter(discardLogger(), sink), WithLogger(discardLogger()))
	require.NoError(t, err)
	return c
}

func TestNew_ValidatesBackend(t *testing.T) {
	_, err := New(nil, nil, nil)
	require.Error(t, err)
}

func TestClassify_PersistsAndEmits(t *testing.T) {
	b := &scriptedBackend{outputs: []string{validOutput}}
	meta := &fakeMeta{}
	sink := &recordingSink{}
	c := newTestClassifier(t, b, meta, sink)

	out, err := c.Classify(context.Background(), "I want my money back!", "t-1")
	require.NoError(t, err)
	require.Equal(t, domain.IssueBilling, out.IssueType)
	require.Equal(t, domain.PriorityHigh, out.Priority)
	require.Equal(t, domain.SentimentFrustrated, out.Sentiment)
	require.Contains(t, b.user, "I want my money back!")

	require.Equal(t, "t-1", meta.ticketID)
	require.Equal(t, "billing", meta.issueType)
	require.Equal(t, "billing, high, frustrated", meta.tags)

	require.Len(t, sink.events, 1)
	require.Equal(t, "classify_ticket", sink.events[0].Action)
	require.Equal(t, "t-1", sink.events[0].TicketID)
}

func TestClassify_NoTicketSkipsPersistence(t *testing.T) {
	meta := &fakeMeta{}
	c := newTestClassifier(t, &scriptedBackend{outputs: []string{validOutput}}, meta, &recordingSink{})
	_, err := c.Classify(context.Background(), "hello", "")
	require.NoError(t, err)
	require.Empty(t, meta.ticketID)
}

func TestClassify_MetadataFailureIsSwallowed(t *testing.T) {
	meta := &fakeMeta{err: domain.ErrPersistence}
	c := newTestClassifier(t, &scriptedBackend{outputs: []string{validOutput}}, meta, &recordingSink{})
	out, err := c.Classify(context.Background(), "refund please", "t-1")
	require.NoError(t, err)
	require.Equal(t, domain.IssueBilling, out.IssueType)
}

func TestClassify_RetriesInvalidLiteral(t *testing.T) {
	b := &scriptedBackend{outputs: []string{
		`{"issue_type":"refunds","priority":"high","sentiment":"neutral","requires_human":false,"summary":"x"}`,
		validOutput,
	}}
	c := newTestClassifier(t, b, nil, &recordingSink{})
	out, err := c.Classify(context.Background(), "refund", "")
	require.NoError(t, err)
	require.Equal(t, 2, b.calls)
	require.Equal(t, domain.IssueBilling, out.IssueType)
}

func TestClassify_GivesUpAfterMaxAttempts(t *testing.T) {
	b := &scriptedBackend{outputs: []string{`not json`}}
	c, err := New(b, nil, nil, WithMaxAttempts(3), WithLogger(discardLogger()))
	require.NoError(t, err)

	_, err = c.Classify(context.Background(), "hi", "")
	require.ErrorIs(t, err, ErrMalformedOutput)
	require.ErrorIs(t, err, domain.ErrBackendUnavailable)
	require.Equal(t, 3, b.calls)
}

func TestClassify_BackendErrorIsUnavailable(t *testing.T) {
	upstream := &openai.HTTPStatusError{StatusCode: 429, Body: "slow down"}
	c := newTestClassifier(t, &scriptedBackend{err: upstream}, nil, &recordingSink{})
	_, err := c.Classify(context.Background(), "hi", "")
	require.ErrorIs(t, err, domain.ErrBackendUnavailable)

	var statusErr *openai.HTTPStatusError
	require.ErrorAs(t, err, &statusErr)
	require.Equal(t, 429, statusErr.StatusCode)
}

func TestParseClassification(t *testing.T) {
	cases := []struct {
		name string
		raw  string
		ok   bool
	}{
		{name: "valid", raw: validOutput, ok: true},
		{name: "fenced", raw: "```json\n" + validOutput + "\n```", ok: true},
		{name: "unknown field", raw: `{"issue_type":"billing","priority":"high","sentiment":"neutral","requires_human":false,"summary":"x","extra":1}`},
		{name: "empty summary", raw: `{"issue_type":"billing","priority":"high","sentiment":"neutral","requires_human":false,"summary":"  "}`},
		{name: "bad priority", raw: `{"issue_type":"billing","priority":"critical","sentiment":"neutral","requires_human":false,"summary":"x"}`},
		{name: "trailing data", raw: validOutput + ` {}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := parseClassification(tc.raw)
			if tc.ok {
				require.NoError(t, err)
				return
			}
			require.Error(t, err)
		})
	}
}

func TestSchema_ListsEveryLiteral(t *testing.T) {
	var parsed struct {
		Properties map[string]struct {
			Enum []string `json:"enum"`
		} `json:"properties"`
	}
	require.NoError(t, json.Unmarshal(schema, &parsed))
	require.Len(t, parsed.Properties["issue_type"].Enum, len(domain.IssueTypes))
	require.Contains(t, parsed.Properties["sentiment"].Enum, "frustrated")
}

type fakeChat struct {
	req openai.ChatRequest
	out string
	err error
}

func (f *fakeChat) Chat(_ context.Context, in openai.ChatRequest) (string, error) {
	f.req = in
	return f.out, f.err
}

func TestOpenAIBackend_StrictSchemaAtZeroTemperature(t *testing.T) {
	_, err := NewOpenAIBackend(nil, "gpt-4o-mini")
	require.Error(t, err)
	_, err = NewOpenAIBackend(&fakeChat{}, " ")
	require.Error(t, err)

	chat := &fakeChat{out: validOutput}
	b, err := NewOpenAIBackend(chat, "gpt-4o-mini")
	require.NoError(t, err)

	out, err := b.Complete(context.Background(), "sys", "usr")
	require.NoError(t, err)
	require.Equal(t, validOutput, out)
	require.Equal(t, "gpt-4o-mini", chat.req.Model)
	require.NotNil(t, chat.req.Temperature)
	require.Zero(t, *chat.req.Temperature)
	require.NotNil(t, chat.req.ResponseFormat)
	require.True(t, chat.req.ResponseFormat.JSONSchema.Strict)
	require.Len(t, chat.req.Messages, 2)

	chat.err = errors.New("boom")
	_, err = b.Complete(context.Background(), "sys", "usr")
	require.Error(t, err)
}
