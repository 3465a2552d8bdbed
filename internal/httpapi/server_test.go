package httpapi

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"agrirec/config"
	"agrirec/internal/adapter/cache"
	"agrirec/internal/adapter/embedding"
	"agrirec/internal/adapter/store"
	"agrirec/internal/domain"
	"agrirec/internal/usecase"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

const (
	testDim = 64
	testKey = "secret-key"
)

type testServer struct {
	server  *Server
	handler http.Handler
	catalog *usecase.Catalog
}

func newTestServer(t *testing.T, apiKey string, load bool) *testServer {
	t.Helper()
	dir := t.TempDir()

	journal, err := store.NewBoltJournal(filepath.Join(dir, "journal.db"))
	require.NoError(t, err)
	t.Cleanup(func() { journal.Close() })

	enc := embedding.NewGuard(embedding.NewHashEmbedder(testDim, ""), embedding.GuardOptions{Dimension: testDim}, nil)
	catalog := usecase.NewCatalog(
		store.NewNpyEmbeddingStore(filepath.Join(dir, "vectors.npy"), testDim),
		store.NewCSVMetadataTable(filepath.Join(dir, "metadata.csv")),
		journal, enc, nil,
	)
	if load {
		require.NoError(t, catalog.Reload())
	}

	cfg := config.DefaultConfig()
	rec := usecase.NewRecommendUseCase(catalog, usecase.RecommendOptions{
		TopK:          cfg.Ranking.TopK,
		CandidatePool: cfg.Ranking.CandidatePool,
		MaxDistanceKm: cfg.Ranking.MaxDistanceKm,
		Weights:       cfg.Ranking.Weights,
	}, cache.NewQueryCache(16, time.Minute), nil)

	srv := New(cfg.Server, apiKey, Deps{
		Catalog:   catalog,
		Recommend: rec,
		Ingest:    usecase.NewIngestUseCase(catalog, usecase.IngestOptions{}, nil),
	}, nil)
	return &testServer{server: srv, handler: srv.Handler(), catalog: catalog}
}

func (ts *testServer) do(t *testing.T, method, target, body string, header map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	for k, v := range header {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	ts.handler.ServeHTTP(rec, req)
	return rec
}

func authed() map[string]string {
	return map[string]string{HeaderAPIKey: testKey}
}

const itemA = `{"id":"A","title":"t","content":"c","latitude":21.0,"longitude":105.8,
"address":"Xã A, Huyện B, Tỉnh C","categoryName":"Rau củ","productName":"cà chua",
"price":"10.000 đ/kg","quantity":"100 kg"}`

const itemC = `{"id":"C","latitude":10.0,"longitude":106.0,"address":"Xã A, Huyện B, Tỉnh C",
"categoryName":"Cây ăn quả","productName":"xoài","price":"30.000 đ/kg","quantity":"100 kg"}`

func TestAddItemThenRecommend(t *testing.T) {
	ts := newTestServer(t, testKey, true)

	for _, body := range []string{itemA, itemC} {
		rec := ts.do(t, http.MethodPost, "/api/recommend/add-item", body, authed())
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		var result domain.IngestResult
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
		assert.Equal(t, domain.StatusSuccess, result.Status)
		assert.Equal(t, testDim, result.EmbeddingDim)
	}

	query := `{"categoryName":"Rau củ","productName":"cà chua","price":"10.000 đ/kg",
"latitude":21.0,"longitude":105.8,"address":"Hà Nội"}`
	rec := ts.do(t, http.MethodPost, "/api/recommend/?top_k=1", query, authed())
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp recommendResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.TopResults, 1)
	assert.Equal(t, "A", resp.TopResults[0].ID)

	rec = ts.do(t, http.MethodPost, "/api/recommend", query, authed())
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Len(t, resp.TopResults, 2)
}

func TestRecommendEmptyCorpus(t *testing.T) {
	ts := newTestServer(t, "", true)

	rec := ts.do(t, http.MethodPost, "/api/recommend/", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"top_results":[]}`, rec.Body.String())
}

func TestRecommendErrors(t *testing.T) {
	ts := newTestServer(t, "", false)

	rec := ts.do(t, http.MethodPost, "/api/recommend/", `{}`, nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	rec = ts.do(t, http.MethodPost, "/api/recommend/?top_k=abc", `{}`, nil)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	rec = ts.do(t, http.MethodPost, "/api/recommend/?top_k=0", `{}`, nil)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	rec = ts.do(t, http.MethodPost, "/api/recommend/", `{"price":`, nil)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	rec = ts.do(t, http.MethodGet, "/api/recommend/", "", nil)
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestAddItemRejectsInvalidPayload(t *testing.T) {
	ts := newTestServer(t, "", true)

	rec := ts.do(t, http.MethodPost, "/api/recommend/add-item", `{"id":"  ","productName":"x"}`, nil)
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	var result domain.IngestResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	assert.Equal(t, domain.StatusError, result.Status)
	assert.NotEmpty(t, result.Message)

	rec = ts.do(t, http.MethodPost, "/api/recommend/add-item", `not json`, nil)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestBodyLimit(t *testing.T) {
	ts := newTestServer(t, "", true)

	body := `{"id":"A","productName":"` + strings.Repeat("x", 2<<20) + `"}`
	rec := ts.do(t, http.MethodPost, "/api/recommend/add-item", body, nil)
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
}

func TestAPIKey(t *testing.T) {
	ts := newTestServer(t, testKey, true)

	tests := []struct {
		name   string
		method string
		path   string
		header map[string]string
		want   int
	}{
		{"missing key", http.MethodPost, "/api/recommend/", nil, http.StatusForbidden},
		{"wrong key", http.MethodPost, "/api/recommend/", map[string]string{HeaderAPIKey: "nope"}, http.StatusForbidden},
		{"valid key", http.MethodPost, "/api/recommend/", authed(), http.StatusOK},
		{"stats needs key", http.MethodGet, "/api/recommend/stats", nil, http.StatusForbidden},
		{"health is public", http.MethodGet, "/health", nil, http.StatusOK},
		{"health prefix is not public", http.MethodGet, "/healthz", nil, http.StatusForbidden},
		{"health subpath is not public", http.MethodGet, "/health/../api/recommend/stats", nil, http.StatusForbidden},
		{"docs need key", http.MethodGet, "/docs", nil, http.StatusForbidden},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := ts.do(t, tt.method, tt.path, "", tt.header)
			assert.Equal(t, tt.want, rec.Code, rec.Body.String())
		})
	}
}

func TestHealthAndStats(t *testing.T) {
	ts := newTestServer(t, "", false)

	rec := ts.do(t, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	require.NoError(t, ts.catalog.Reload())
	rec = ts.do(t, http.MethodPost, "/api/recommend/add-item", itemA, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = ts.do(t, http.MethodGet, "/health", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var health healthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &health))
	assert.Equal(t, "ok", health.Status)
	assert.Equal(t, 1, health.Items)
	assert.Equal(t, uint64(2), health.Generation)

	rec = ts.do(t, http.MethodGet, "/api/recommend/stats", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var stats domain.Stats
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &stats))
	assert.Equal(t, 1, stats.MetadataRows)
	assert.Equal(t, 1, stats.EmbeddingRows)
	assert.Equal(t, testDim, stats.Dimension)
	assert.True(t, stats.Aligned)
}

func TestRequestID(t *testing.T) {
	ts := newTestServer(t, "", true)

	rec := ts.do(t, http.MethodGet, "/health", "", nil)
	assert.NotEmpty(t, rec.Header().Get(HeaderRequestID))

	rec = ts.do(t, http.MethodGet, "/health", "", map[string]string{HeaderRequestID: "req-42"})
	assert.Equal(t, "req-42", rec.Header().Get(HeaderRequestID))
}

func TestPanicRecovery(t *testing.T) {
	ts := newTestServer(t, "", true)
	h := ts.server.assignRequestID(ts.server.logRequests(ts.server.recoverPanics(
		http.HandlerFunc(func(http.ResponseWriter, *http.Request) { panic("kaboom") }),
	)))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/boom", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.JSONEq(t, `{"detail":"internal server error"}`, rec.Body.String())
}

func TestServeShutsDownOnCancel(t *testing.T) {
	ts := newTestServer(t, "", true)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- ts.server.Serve(ctx, ln) }()

	url := "http://" + ln.Addr().String() + "/health"
	require.Eventually(t, func() bool {
		resp, err := http.Get(url)
		if err != nil {
			return false
		}
		resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 5*time.Second, 20*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not shut down")
	}
	http.DefaultClient.CloseIdleConnections()
}
