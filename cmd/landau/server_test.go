package main

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/BaSui01/landau/config"
	"github.com/BaSui01/landau/rag"
)

func testConfig() *config.Config {
	cfg := config.DefaultConfig()
	cfg.LLM.APIKey = "sk-test"
	cfg.Embedding.APIKey = "sk-test"
	cfg.Store.Type = "memory"
	return cfg
}

func newTestServer(t *testing.T, cfg *config.Config) (*Server, *httptest.Server) {
	t.Helper()
	srv, err := NewServer(cfg, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(srv.Close)

	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return srv, ts
}

func readyChecks(t *testing.T, ts *httptest.Server) (int, map[string]any) {
	t.Helper()
	resp, err := http.Get(ts.URL + "/ready")
	require.NoError(t, err)
	defer resp.Body.Close()

	var body struct {
		Checks map[string]any `json:"checks"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	return resp.StatusCode, body.Checks
}

func TestServer_MemoryStoreRoutes(t *testing.T) {
	srv, ts := newTestServer(t, testConfig())
	assert.IsType(t, &rag.Pipeline{}, srv.searcher)

	for _, path := range []string{"/health", "/healthz", "/ready", "/readyz", "/version"} {
		resp, err := http.Get(ts.URL + path)
		require.NoError(t, err, path)
		resp.Body.Close()
		assert.Equal(t, http.StatusOK, resp.StatusCode, path)
		assert.NotEmpty(t, resp.Header.Get("X-Request-ID"), path)
	}

	// 内存库中还没有任何集合
	resp, err := http.Post(ts.URL+"/api/v1/toc", "application/json",
		strings.NewReader(`{"document_id":"FEYNMANI","collection_name":"default"}`))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, err = http.Get(ts.URL + "/api/v1/unknown")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestServer_Catalog(t *testing.T) {
	cfg := testConfig()
	cfg.Documents = []config.DocumentConfig{{ID: "QM", Name: "Quantenmechanik", Default: true}}
	srv, _ := newTestServer(t, cfg)
	assert.Equal(t, []string{"QM"}, srv.loop.Catalog().IDs())

	cfg = testConfig()
	cfg.Documents = nil
	srv, _ = newTestServer(t, cfg)
	assert.Len(t, srv.loop.Catalog().IDs(), 3)
}

func TestServer_MetricsPerInstance(t *testing.T) {
	srvA, tsA := newTestServer(t, testConfig())
	srvB, _ := newTestServer(t, testConfig())
	assert.NotSame(t, srvA.registry, srvB.registry)

	resp, err := http.Get(tsA.URL + "/health")
	require.NoError(t, err)
	resp.Body.Close()

	w := httptest.NewRecorder()
	srvA.MetricsHandler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `landau_http_requests_total{method="GET",path="/health",status="2xx"} 1`)

	w = httptest.NewRecorder()
	srvB.MetricsHandler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.NotContains(t, w.Body.String(), `path="/health"`)
}

func TestServer_SQLiteStore(t *testing.T) {
	cfg := testConfig()
	cfg.Store.Type = "sqlite"
	cfg.Store.DSN = "file:landau_server_test?mode=memory&cache=shared"
	cfg.Store.AutoMigrate = true
	cfg.Store.MaxOpenConns = 2
	srv, ts := newTestServer(t, cfg)
	require.NotNil(t, srv.pool)

	status, checks := readyChecks(t, ts)
	assert.Equal(t, http.StatusOK, status)
	assert.Contains(t, checks, "database")
	assert.LessOrEqual(t, srv.pool.Stats().MaxOpenConnections, 2)
}

func TestServer_RetrievalCache(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := testConfig()
	cfg.Cache.Enabled = true
	cfg.Cache.Addr = mr.Addr()
	srv, ts := newTestServer(t, cfg)
	assert.IsType(t, &rag.CachedSearcher{}, srv.searcher)

	status, checks := readyChecks(t, ts)
	assert.Equal(t, http.StatusOK, status)
	assert.Contains(t, checks, "cache")
}

func TestServer_CacheUnavailable(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()

	cfg := testConfig()
	cfg.Cache.Enabled = true
	cfg.Cache.Addr = addr
	srv, _ := newTestServer(t, cfg)
	assert.Nil(t, srv.cache)
	assert.IsType(t, &rag.Pipeline{}, srv.searcher)
}

func TestServer_ChromaReadiness(t *testing.T) {
	chroma := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer chroma.Close()

	cfg := testConfig()
	cfg.Store.Type = "chroma"
	cfg.Store.ChromaURL = chroma.URL
	_, ts := newTestServer(t, cfg)

	status, checks := readyChecks(t, ts)
	assert.Equal(t, http.StatusServiceUnavailable, status)
	assert.Contains(t, checks, "chroma")
}

func TestNewServer_Errors(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*config.Config)
		want   string
	}{
		{"unknown provider", func(c *config.Config) { c.LLM.Provider = "nope" }, "init llm provider"},
		{"azure without version", func(c *config.Config) { c.LLM.Provider = "azure"; c.LLM.BaseURL = "https://x" }, "api_version"},
		{"unknown store", func(c *config.Config) { c.Store.Type = "mongo" }, `unsupported store type "mongo"`},
		{"sqlite without dsn", func(c *config.Config) { c.Store.Type = "sqlite"; c.Store.DSN = "" }, "init passage store"},
		{"unsupported language", func(c *config.Config) { c.App.Language = "fr" }, "language 'fr' not supported"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig()
			tt.mutate(cfg)
			_, err := NewServer(cfg, zap.NewNop())
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestInitLogger(t *testing.T) {
	dir := t.TempDir()
	cfg := config.DefaultLogConfig()
	cfg.Level = "debug"
	cfg.Format = "console"
	cfg.OutputPaths = []string{"stderr"}
	cfg.File = dir + "/landau.log"

	logger := initLogger(cfg)
	require.NotNil(t, logger)
	assert.True(t, logger.Core().Enabled(zap.DebugLevel))
	logger.Info("hello")
	_ = logger.Sync()

	assert.FileExists(t, cfg.File)
}
