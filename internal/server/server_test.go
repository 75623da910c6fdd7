package server

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GriffinCanCode/readcomic/internal/api/middleware"
	"github.com/GriffinCanCode/readcomic/internal/infrastructure/config"
	"github.com/GriffinCanCode/readcomic/internal/infrastructure/logging"
)

func newSite(t *testing.T) *httptest.Server {
	t.Helper()
	listing, err := os.ReadFile(filepath.Join("..", "providers", "readcomic", "testdata", "listing.html"))
	require.NoError(t, err)

	mux := http.NewServeMux()
	mux.HandleFunc("/ComicList/MostPopular", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write(listing)
	})
	site := httptest.NewServer(mux)
	t.Cleanup(site.Close)
	return site
}

func newTestServer(t *testing.T, siteURL string) *Server {
	t.Helper()
	dir := t.TempDir()

	cfg := config.Default()
	cfg.Site.BaseURL = siteURL
	cfg.Server.Host = "127.0.0.1"
	cfg.Cache.Dir = filepath.Join(dir, "cache")
	cfg.Preferences.File = filepath.Join(dir, "preferences.toml")
	cfg.Sandbox.PoolSize = 1
	cfg.HTTP.Retries = 0
	cfg.HTTP.RequestsPerSecond = 0
	cfg.RateLimit.Enabled = false

	srv, err := New(cfg, Options{Logger: logging.Nop(), Registry: prometheus.NewRegistry()})
	require.NoError(t, err)
	t.Cleanup(func() { _ = srv.Close() })
	return srv
}

func get(t *testing.T, srv *Server, target string) *httptest.ResponseRecorder {
	t.Helper()
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, target, nil))
	return w
}

func TestServerHealth(t *testing.T) {
	srv := newTestServer(t, newSite(t).URL)

	w := get(t, srv, "/health")
	require.Equal(t, http.StatusOK, w.Code)
	assert.NotEmpty(t, w.Header().Get(middleware.RequestIDHeader))

	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, "closed", body["site_breaker"])
	assert.EqualValues(t, 0, body["bootstrap_builds"])
	assert.NotContains(t, body, "bootstrap_id")
}

func TestServerServesListing(t *testing.T) {
	srv := newTestServer(t, newSite(t).URL)

	w := get(t, srv, "/comics/popular?page=2")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var body struct {
		Comics []struct {
			Title string `json:"title"`
		} `json:"comics"`
		HasNext bool `json:"has_next"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.Len(t, body.Comics, 2)
	assert.Equal(t, "Saga", body.Comics[0].Title)
	assert.True(t, body.HasNext)
}

func TestServerMetrics(t *testing.T) {
	srv := newTestServer(t, newSite(t).URL)

	get(t, srv, "/health")
	w := get(t, srv, "/metrics")

	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "readcomic_http_requests_total")
}

func TestServerPreferencesPersist(t *testing.T) {
	srv := newTestServer(t, newSite(t).URL)

	req := httptest.NewRequest(http.MethodPut, "/preferences", strings.NewReader(`{"quality":"lq","server":"s2"}`))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	data, err := os.ReadFile(srv.config.Preferences.File)
	require.NoError(t, err)
	assert.Contains(t, string(data), "s2")
}

func TestServerRunShutsDown(t *testing.T) {
	srv := newTestServer(t, newSite(t).URL)

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	srv.http.Addr = listener.Addr().String()
	require.NoError(t, listener.Close())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Run(ctx) }()

	require.Eventually(t, func() bool {
		resp, err := http.Get("http://" + srv.http.Addr + "/health")
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
}
