package index

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"support-router/internal/domain"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// fakeEmbedder maps known texts to fixed vectors; unknown texts embed to the
// zero vector.
type fakeEmbedder struct {
	mu       sync.Mutex
	vectors  map[string][]float32
	dim      int
	docErr   error
	queryErr error
	calls    int
}

func (f *fakeEmbedder) vector(text string) []float32 {
	if v, ok := f.vectors[text]; ok {
		return v
	}
	return make([]float32, f.dim)
}

func (f *fakeEmbedder) EmbedDocuments(_ context.Context, texts []string) ([][]float32, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	if f.docErr != nil {
		return nil, f.docErr
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = f.vector(t)
	}
	return out, nil
}

func (f *fakeEmbedder) EmbedQuery(_ context.Context, text string) ([]float32, error) {
	if f.queryErr != nil {
		return nil, f.queryErr
	}
	return f.vector(text), nil
}

func newFakeEmbedder() *fakeEmbedder {
	return &fakeEmbedder{
		dim: 2,
		vectors: map[string][]float32{
			"reserve": {1, 0},
			"refund":  {0, 1},
			"wifi":    {3, 3},
			"q-near":  {1, 0.1},
		},
	}
}

func newTestIndex(t *testing.T, e Embedder, opts ...Option) *Index {
	t.Helper()
	x, err := Open(filepath.Join(t.TempDir(), "index-test.db"), e, opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = x.Close() })
	return x
}

func testDocs() []Document {
	return []Document{
		{ID: "kb-reserve", Text: "reserve", Metadata: map[string]string{"title": "Reserve"}},
		{ID: "kb-refund", Text: "refund", Metadata: map[string]string{"title": "Refund"}},
		{ID: "kb-wifi", Text: "wifi", Metadata: map[string]string{"title": "Wifi"}},
	}
}

func TestOpen_NilEmbedder(t *testing.T) {
	_, err := Open(filepath.Join(t.TempDir(), "x.db"), nil)
	require.Error(t, err)
}

func TestQuery_BeforeReindex(t *testing.T) {
	x := newTestIndex(t, newFakeEmbedder())
	_, err := x.Query(context.Background(), "reserve", 3)
	require.ErrorIs(t, err, domain.ErrNotFound)

	_, err = x.Count(context.Background())
	require.ErrorIs(t, err, domain.ErrNotFound)
}

func TestReindexAndQuery_OrderedByDistance(t *testing.T) {
	x := newTestIndex(t, newFakeEmbedder(), WithBatchSize(1))
	ctx := context.Background()

	n, err := x.Reindex(ctx, testDocs())
	require.NoError(t, err)
	require.Equal(t, 3, n)

	matches, err := x.Query(ctx, "q-near", 2)
	require.NoError(t, err)
	require.Len(t, matches, 2)
	require.Equal(t, "kb-reserve", matches[0].ID)
	require.InDelta(t, 0.01, matches[0].Distance, 1e-6)
	require.Equal(t, "kb-refund", matches[1].ID)
	require.InDelta(t, 1.81, matches[1].Distance, 1e-6)
	require.Equal(t, "Reserve", matches[0].Metadata["title"])
	require.Equal(t, "reserve", matches[0].Document)

	exact, err := x.Query(ctx, "refund", 1)
	require.NoError(t, err)
	require.Equal(t, "kb-refund", exact[0].ID)
	require.Zero(t, exact[0].Distance)
}

func TestReindex_FullReplace(t *testing.T) {
	x := newTestIndex(t, newFakeEmbedder())
	ctx := context.Background()

	_, err := x.Reindex(ctx, testDocs())
	require.NoError(t, err)
	_, err = x.Reindex(ctx, testDocs()[:1])
	require.NoError(t, err)

	matches, err := x.Query(ctx, "refund", 3)
	require.NoError(t, err)
	require.Len(t, matches, 1)
	require.Equal(t, "kb-reserve", matches[0].ID)

	n, err := x.Count(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, n)
}

func TestReindex_EmptyCollectionQueriesEmpty(t *testing.T) {
	e := newFakeEmbedder()
	e.queryErr = errors.New("should not be called")
	x := newTestIndex(t, e)
	ctx := context.Background()

	n, err := x.Reindex(ctx, nil)
	require.NoError(t, err)
	require.Zero(t, n)

	matches, err := x.Query(ctx, "anything", 3)
	require.NoError(t, err)
	require.Empty(t, matches)
}

func TestReindex_BackendFailureKeepsPreviousCollection(t *testing.T) {
	e := newFakeEmbedder()
	x := newTestIndex(t, e, WithBatchSize(2))
	ctx := context.Background()

	_, err := x.Reindex(ctx, testDocs())
	require.NoError(t, err)

	e.docErr = errors.New("connection refused")
	_, err = x.Reindex(ctx, testDocs()[:1])
	require.ErrorIs(t, err, domain.ErrBackendUnavailable)

	n, err := x.Count(ctx)
	require.NoError(t, err)
	require.Equal(t, 3, n)
}

func TestReindex_RejectsDuplicateIDs(t *testing.T) {
	x := newTestIndex(t, newFakeEmbedder())
	docs := append(testDocs(), Document{ID: "kb-wifi", Text: "wifi"})
	_, err := x.Reindex(context.Background(), docs)
	require.ErrorIs(t, err, domain.ErrInvalidArgument)
}

func TestReindex_BatchesEmbeddings(t *testing.T) {
	e := newFakeEmbedder()
	x := newTestIndex(t, e, WithBatchSize(2), WithConcurrency(2))
	_, err := x.Reindex(context.Background(), testDocs())
	require.NoError(t, err)
	require.Equal(t, 2, e.calls)
}

func TestQuery_EmbedFailure(t *testing.T) {
	e := newFakeEmbedder()
	x := newTestIndex(t, e)
	ctx := context.Background()
	_, err := x.Reindex(ctx, testDocs())
	require.NoError(t, err)

	e.queryErr = errors.New("timeout")
	_, err = x.Query(ctx, "reserve", 3)
	require.ErrorIs(t, err, domain.ErrBackendUnavailable)

	_, err = x.Query(ctx, "reserve", 0)
	require.ErrorIs(t, err, domain.ErrInvalidArgument)
}

func TestQuery_TiesBrokenByID(t *testing.T) {
	e := &fakeEmbedder{dim: 1, vectors: map[string][]float32{"a": {1}, "b": {-1}, "q": {0}}}
	x := newTestIndex(t, e)
	ctx := context.Background()
	_, err := x.Reindex(ctx, []Document{{ID: "z", Text: "a"}, {ID: "m", Text: "b"}})
	require.NoError(t, err)

	matches, err := x.Query(ctx, "q", 2)
	require.NoError(t, err)
	require.Equal(t, "m", matches[0].ID)
	require.Equal(t, "z", matches[1].ID)
}
