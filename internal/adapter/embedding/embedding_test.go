package embedding

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"agrirec/config"
	"agrirec/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type stubEmbedder struct {
	vecs  [][]float32
	err   error
	block bool
}

func (s *stubEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if s.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	return s.vecs, s.err
}

func (s *stubEmbedder) Dimension() int    { return 3 }
func (s *stubEmbedder) ModelName() string { return "stub" }

func norm(v []float32) float64 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	return math.Sqrt(sum)
}

func dot(a, b []float32) float64 {
	var sum float64
	for i := range a {
		sum += float64(a[i]) * float64(b[i])
	}
	return sum
}

func TestHashEmbedderDeterministicAndNormalized(t *testing.T) {
	e := NewHashEmbedder(384, "")
	texts := []string{"Trái cây | Sầu riêng Ri6", "|", "Rau | Cải ngọt"}

	first, err := e.Embed(context.Background(), texts)
	require.NoError(t, err)
	second, err := e.Embed(context.Background(), texts)
	require.NoError(t, err)

	require.Len(t, first, 3)
	for i := range first {
		assert.Len(t, first[i], 384)
		assert.InDelta(t, 1.0, norm(first[i]), 1e-5, "text %q", texts[i])
		assert.Equal(t, first[i], second[i])
	}
	assert.Equal(t, "hash-trigram", e.ModelName())
}

func TestHashEmbedderSimilarity(t *testing.T) {
	e := NewHashEmbedder(384, "")
	vecs, err := e.Embed(context.Background(), []string{
		"Tiền Giang | Trái cây | Sầu riêng",
		"Trái cây | Sầu riêng Ri6",
		"Rau | Cải ngọt",
	})
	require.NoError(t, err)

	assert.Greater(t, dot(vecs[0], vecs[1]), dot(vecs[0], vecs[2]))
}

func TestHashEmbedderFoldsDiacritics(t *testing.T) {
	e := NewHashEmbedder(384, "")
	vecs, err := e.Embed(context.Background(), []string{
		"xoai cat hoa loc",
		"Xoài cát Hòa Lộc",
		"Rau | Cải ngọt",
	})
	require.NoError(t, err)

	assert.InDelta(t, 1.0, dot(vecs[0], vecs[1]), 1e-5)
	assert.Greater(t, dot(vecs[0], vecs[1]), dot(vecs[0], vecs[2]))
}

func TestHashEmbedderHonoursContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewHashEmbedder(8, "").Embed(ctx, []string{"a"})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestGuardNormalizes(t *testing.T) {
	g := NewGuard(&stubEmbedder{vecs: [][]float32{{3, 4, 0}}}, GuardOptions{Dimension: 3}, zap.NewNop())

	out, err := g.Embed(context.Background(), []string{"x"})
	require.NoError(t, err)
	assert.InDelta(t, 0.6, out[0][0], 1e-6)
	assert.InDelta(t, 0.8, out[0][1], 1e-6)
	assert.InDelta(t, 1.0, norm(out[0]), 1e-5)
}

func TestGuardFailures(t *testing.T) {
	boom := errors.New("boom")
	cases := []struct {
		name  string
		inner *stubEmbedder
		check func(t *testing.T, err error)
	}{
		{
			name:  "provider error",
			inner: &stubEmbedder{err: boom},
			check: func(t *testing.T, err error) { assert.ErrorIs(t, err, boom) },
		},
		{
			name:  "wrong dimension",
			inner: &stubEmbedder{vecs: [][]float32{{1, 0}}},
			check: func(t *testing.T, err error) {
				var dme *domain.DimensionMismatchError
				require.ErrorAs(t, err, &dme)
				assert.Equal(t, 3, dme.Expected)
				assert.Equal(t, 2, dme.Actual)
			},
		},
		{
			name:  "zero vector",
			inner: &stubEmbedder{vecs: [][]float32{{0, 0, 0}}},
			check: func(t *testing.T, err error) { assert.ErrorIs(t, err, errZeroVector) },
		},
		{
			name:  "count mismatch",
			inner: &stubEmbedder{vecs: [][]float32{}},
			check: func(t *testing.T, err error) { assert.Error(t, err) },
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			g := NewGuard(tc.inner, GuardOptions{Dimension: 3}, zap.NewNop())
			out, err := g.Embed(context.Background(), []string{"x"})
			assert.Nil(t, out)

			var ee *domain.EncodingError
			require.ErrorAs(t, err, &ee)
			assert.Equal(t, "stub", ee.Model)
			tc.check(t, err)
		})
	}
}

func TestGuardTimeout(t *testing.T) {
	g := NewGuard(&stubEmbedder{block: true}, GuardOptions{Dimension: 3, Timeout: 20 * time.Millisecond}, nil)

	_, err := g.Embed(context.Background(), []string{"x"})
	var ee *domain.EncodingError
	require.ErrorAs(t, err, &ee)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestGuardRateLimit(t *testing.T) {
	g := NewGuard(&stubEmbedder{vecs: [][]float32{{1, 0, 0}}}, GuardOptions{Dimension: 3, RequestsPerSecond: 1}, nil)

	_, err := g.Embed(context.Background(), []string{"x"})
	require.NoError(t, err)

	// The burst is spent; the next call cannot get a token before the deadline.
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err = g.Embed(ctx, []string{"x"})
	var ee *domain.EncodingError
	assert.ErrorAs(t, err, &ee)
}

func TestOpenAICompatibleEmbedder(t *testing.T) {
	var gotAuth string
	var gotReq embeddingRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		assert.Equal(t, "/embeddings", r.URL.Path)
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&gotReq))

		// Out of order on purpose; the index decides placement.
		json.NewEncoder(w).Encode(embeddingResponse{Data: []embeddingData{
			{Index: 1, Embedding: []float32{0, 1}},
			{Index: 0, Embedding: []float32{1, 0}},
		}})
	}))
	defer srv.Close()

	t.Setenv("TEST_EMBED_KEY", "secret")
	e, err := NewOpenAICompatibleEmbedder("TEST_EMBED_KEY", "text-embedding-3-small", srv.URL, 2)
	require.NoError(t, err)

	vecs, err := e.Embed(context.Background(), []string{"a", "b"})
	require.NoError(t, err)
	assert.Equal(t, [][]float32{{1, 0}, {0, 1}}, vecs)
	assert.Equal(t, "Bearer secret", gotAuth)
	assert.Equal(t, 2, gotReq.Dimensions)
	assert.Equal(t, []string{"a", "b"}, gotReq.Input)
}

func TestOpenAICompatibleEmbedderErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "quota exceeded", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	t.Setenv("TEST_EMBED_KEY", "secret")
	e, err := NewOpenAICompatibleEmbedder("TEST_EMBED_KEY", "m", srv.URL, 0)
	require.NoError(t, err)
	assert.Equal(t, 1536, e.Dimension())

	_, err = e.Embed(context.Background(), []string{"a"})
	assert.ErrorContains(t, err, "429")

	t.Setenv("TEST_EMBED_KEY", "")
	_, err = NewOpenAICompatibleEmbedder("TEST_EMBED_KEY", "m", srv.URL, 0)
	assert.Error(t, err)
}

func TestFactory(t *testing.T) {
	cfg := config.DefaultConfig().Embedding
	cfg.Dimension = 16

	g, err := New(context.Background(), cfg, zap.NewNop())
	require.NoError(t, err)
	assert.Equal(t, 16, g.Dimension())

	cfg.Provider = "mock"
	_, err = New(context.Background(), cfg, nil)
	assert.NoError(t, err)

	cfg.Provider = "word2vec"
	_, err = New(context.Background(), cfg, nil)
	assert.ErrorContains(t, err, "unknown embedding provider")

	cfg.Provider = "gemini"
	cfg.APIKeyEnv = "TEST_GEMINI_KEY_UNSET"
	t.Setenv("TEST_GEMINI_KEY_UNSET", "")
	_, err = New(context.Background(), cfg, nil)
	assert.Error(t, err)
}
