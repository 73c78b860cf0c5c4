package embedder

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

type fakeModel struct {
	docs  [][]float32
	query []float32
	err   error
}

func (f *fakeModel) EmbedDocuments(_ context.Context, _ []string) ([][]float32, error) {
	return f.docs, f.err
}

func (f *fakeModel) EmbedQuery(_ context.Context, _ string) ([]float32, error) {
	return f.query, f.err
}

func wrap(m *fakeModel) *Embedder {
	return &Embedder{model: m, modelName: "test-embed", logger: discardLogger()}
}

func TestNew_Validates(t *testing.T) {
	_, err := New(Config{Provider: "bedrock"}, nil)
	require.ErrorContains(t, err, "unsupported provider")

	_, err = New(Config{Provider: ProviderOpenAI, Model: "text-embedding-3-small"}, nil)
	require.ErrorContains(t, err, "API key required")
}

func TestNew_OpenAI(t *testing.T) {
	e, err := New(Config{Provider: ProviderOpenAI, Model: "text-embedding-3-small", OpenAIKey: "sk-test"}, nil)
	require.NoError(t, err)
	require.Equal(t, "text-embedding-3-small", e.Model())
}

func TestEmbedDocuments_CountMismatch(t *testing.T) {
	e := wrap(&fakeModel{docs: [][]float32{{1}}})
	_, err := e.EmbedDocuments(context.Background(), []string{"a", "b"})
	require.ErrorContains(t, err, "count mismatch")
}

func TestEmbedDocuments_Empty(t *testing.T) {
	e := wrap(&fakeModel{err: errors.New("must not be called")})
	got, err := e.EmbedDocuments(context.Background(), nil)
	require.NoError(t, err)
	require.Empty(t, got)
}

func TestEmbedQuery(t *testing.T) {
	e := wrap(&fakeModel{query: []float32{0.1, 0.2}})
	v, err := e.EmbedQuery(context.Background(), "q")
	require.NoError(t, err)
	require.Len(t, v, 2)

	e = wrap(&fakeModel{err: errors.New("refused")})
	_, err = e.EmbedQuery(context.Background(), "q")
	require.ErrorContains(t, err, "refused")
}
