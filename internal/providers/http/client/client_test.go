package client

import (
	"context"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"net/netip"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GriffinCanCode/readcomic/internal/infrastructure/cache"
	"github.com/GriffinCanCode/readcomic/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/readcomic/internal/infrastructure/resilience"
)

var pngHeader = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR\x00\x00\x00\x01\x00\x00\x00\x01\x08\x06\x00\x00\x00")

func testConfig(baseURL string) Config {
	return Config{
		BaseURL:      baseURL,
		UserAgent:    "readcomic-test",
		Timeout:      5 * time.Second,
		Retries:      0,
		RetryWaitMin: time.Millisecond,
		RetryWaitMax: 5 * time.Millisecond,

		AllowPrivateImageHosts: true,
	}
}

func newTestClient(t *testing.T, handler http.Handler, store *cache.Store) (*Client, *httptest.Server, *monitoring.Metrics) {
	t.Helper()

	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	metrics := monitoring.NewMetrics(prometheus.NewRegistry())
	return New(testConfig(server.URL), store, nil, metrics), server, metrics
}

func newTestStore(t *testing.T) *cache.Store {
	t.Helper()
	store, err := cache.Open(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestGetPageDecodesCharset(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/latin1", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=iso-8859-1")
		w.Write([]byte("<html><body><p>caf\xe9</p></body></html>"))
	})
	mux.HandleFunc("/utf8", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "readcomic-test", r.Header.Get("User-Agent"))
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Write([]byte("<html><body><p>café</p></body></html>"))
	})

	c, server, _ := newTestClient(t, mux, nil)

	page, err := c.GetPage(context.Background(), server.URL+"/latin1")
	require.NoError(t, err)
	assert.Contains(t, string(page.Body), "café")

	page, err = c.GetPage(context.Background(), server.URL+"/utf8")
	require.NoError(t, err)
	assert.Contains(t, string(page.Body), "café")
	assert.Equal(t, server.URL+"/utf8", page.URL)
}

func TestCaptchaRedirect(t *testing.T) {
	var captchaHits atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("/Comic/Saga", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/Special/AreYouHuman?reUrl=/Comic/Saga", http.StatusFound)
	})
	mux.HandleFunc("/Special/AreYouHuman", func(w http.ResponseWriter, r *http.Request) {
		captchaHits.Add(1)
	})

	c, server, metrics := newTestClient(t, mux, nil)

	_, err := c.GetPage(context.Background(), server.URL+"/Comic/Saga")
	require.ErrorIs(t, err, ErrCaptchaRequired)

	var captcha *CaptchaError
	require.ErrorAs(t, err, &captcha)
	assert.Equal(t, server.URL+CaptchaPath, captcha.URL)
	assert.Equal(t, int32(0), captchaHits.Load())

	assert.Equal(t, resilience.StateClosed, c.BreakerState())
	assert.Equal(t, uint32(0), c.BreakerCounts().TotalFailures)
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.SiteRequests.WithLabelValues("page", "captcha")))
}

func TestStatusErrors(t *testing.T) {
	var hits atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("/missing", func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		http.NotFound(w, r)
	})
	mux.HandleFunc("/broken", func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	})

	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	cfg := testConfig(server.URL)
	cfg.Retries = 2
	c := New(cfg, nil, nil, nil)

	_, err := c.GetPage(context.Background(), server.URL+"/missing")
	var status *StatusError
	require.ErrorAs(t, err, &status)
	assert.Equal(t, http.StatusNotFound, status.Code)
	assert.Equal(t, int32(1), hits.Load(), "4xx is not retried")
	assert.Equal(t, uint32(0), c.BreakerCounts().TotalFailures)

	hits.Store(0)
	_, err = c.GetPage(context.Background(), server.URL+"/broken")
	require.ErrorAs(t, err, &status)
	assert.Equal(t, http.StatusBadGateway, status.Code)
	assert.Equal(t, int32(3), hits.Load(), "5xx is retried")
	assert.Equal(t, uint32(1), c.BreakerCounts().TotalFailures)
}

func TestBreakerOpens(t *testing.T) {
	var hits atomic.Int32
	c, server, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}), nil)

	for i := 0; i < 5; i++ {
		_, err := c.GetPage(context.Background(), server.URL)
		require.Error(t, err)
	}
	assert.Equal(t, resilience.StateOpen, c.BreakerState())

	_, err := c.GetPage(context.Background(), server.URL)
	assert.ErrorIs(t, err, resilience.ErrCircuitOpen)
	assert.Equal(t, int32(5), hits.Load())
}

func TestFetchScriptUsesCache(t *testing.T) {
	var hits atomic.Int32
	var failing atomic.Bool
	c, server, metrics := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		if failing.Load() {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/javascript")
		w.Write([]byte("var guard = 1;"))
	}), newTestStore(t))

	url := server.URL + "/Scripts/rguard.min.js"

	for i := 0; i < 2; i++ {
		body, err := c.FetchScript(context.Background(), url, time.Hour)
		require.NoError(t, err)
		assert.Equal(t, "var guard = 1;", string(body))
	}
	assert.Equal(t, int32(1), hits.Load())
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.CacheLookups.WithLabelValues("hit")))

	// Expired entry plus a failing site falls back to the stale body.
	failing.Store(true)
	time.Sleep(2 * time.Millisecond)
	body, err := c.FetchScript(context.Background(), url, time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, "var guard = 1;", string(body))
	assert.Equal(t, int32(2), hits.Load())
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.CacheLookups.WithLabelValues("stale")))
}

func TestFetchScriptWithoutCache(t *testing.T) {
	var hits atomic.Int32
	c, server, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.Write([]byte("var guard = 1;"))
	}), nil)

	for i := 0; i < 2; i++ {
		_, err := c.FetchScript(context.Background(), server.URL, time.Hour)
		require.NoError(t, err)
	}
	assert.Equal(t, int32(2), hits.Load())
}

func TestFetchImage(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/page.png", func(w http.ResponseWriter, r *http.Request) {
		w.Write(pngHeader)
	})
	mux.HandleFunc("/page.html", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("<html></html>"))
	})

	c, server, _ := newTestClient(t, mux, nil)

	img, err := c.FetchImage(context.Background(), server.URL+"/page.png")
	require.NoError(t, err)
	assert.Equal(t, "image/png", img.ContentType)
	assert.Equal(t, ".png", img.Extension)

	_, err = c.FetchImage(context.Background(), server.URL+"/page.html")
	assert.ErrorIs(t, err, ErrNotImage)
}

func TestImageFailuresLeaveSiteBreakerClosed(t *testing.T) {
	var pageHits atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("/cdn/", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	})
	mux.HandleFunc("/Comic/Saga", func(w http.ResponseWriter, r *http.Request) {
		pageHits.Add(1)
		w.Write([]byte("<html></html>"))
	})

	c, server, _ := newTestClient(t, mux, nil)

	for i := 0; i < 10; i++ {
		_, err := c.FetchImage(context.Background(), server.URL+"/cdn/page.png")
		require.Error(t, err)
	}
	assert.Equal(t, resilience.StateOpen, c.ImageBreakerState())
	assert.Equal(t, resilience.StateClosed, c.BreakerState())
	assert.Zero(t, c.BreakerCounts().TotalFailures)

	_, err := c.GetPage(context.Background(), server.URL+"/Comic/Saga")
	require.NoError(t, err)
	assert.Equal(t, int32(1), pageHits.Load())
}

func TestFetchImageRejectsPrivateHosts(t *testing.T) {
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.Write(pngHeader)
	}))
	t.Cleanup(server.Close)

	cfg := testConfig(server.URL)
	cfg.AllowPrivateImageHosts = false
	cfg.Retries = 2
	c := New(cfg, nil, nil, monitoring.NewMetrics(prometheus.NewRegistry()))

	_, err := c.FetchImage(context.Background(), server.URL+"/page.png")
	assert.ErrorIs(t, err, ErrForbiddenHost)

	_, port, err := net.SplitHostPort(server.Listener.Addr().String())
	require.NoError(t, err)
	_, err = c.FetchImage(context.Background(), "http://localhost:"+port+"/page.png")
	assert.ErrorIs(t, err, ErrForbiddenHost)

	assert.Zero(t, hits.Load())
	assert.Equal(t, resilience.StateClosed, c.ImageBreakerState())

	// Site pages on the same host are unaffected.
	_, err = c.GetPage(context.Background(), server.URL)
	require.NoError(t, err)
	assert.Equal(t, int32(1), hits.Load())
}

func TestIsPublicAddr(t *testing.T) {
	tests := []struct {
		addr string
		want bool
	}{
		{"8.8.8.8", true},
		{"2606:4700::1111", true},
		{"127.0.0.1", false},
		{"::1", false},
		{"10.1.2.3", false},
		{"172.16.0.1", false},
		{"192.168.1.1", false},
		{"169.254.169.254", false},
		{"fe80::1", false},
		{"fd00::1", false},
		{"0.0.0.0", false},
		{"0.1.2.3", false},
		{"100.64.0.1", false},
		{"::ffff:127.0.0.1", false},
		{"224.0.0.1", false},
	}

	for _, tt := range tests {
		t.Run(tt.addr, func(t *testing.T) {
			assert.Equal(t, tt.want, IsPublicAddr(netip.MustParseAddr(tt.addr)))
		})
	}
}

func TestResponseBodyLimit(t *testing.T) {
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.Write(make([]byte, 4096))
	}))
	t.Cleanup(server.Close)

	cfg := testConfig(server.URL)
	cfg.Retries = 2
	cfg.MaxPageSize = 1024
	cfg.MaxImageSize = 2048
	c := New(cfg, nil, nil, monitoring.NewMetrics(prometheus.NewRegistry()))

	_, err := c.GetPage(context.Background(), server.URL)
	assert.ErrorIs(t, err, resty.ErrResponseBodyTooLarge)

	_, err = c.FetchImage(context.Background(), server.URL)
	assert.ErrorIs(t, err, resty.ErrResponseBodyTooLarge)

	assert.Equal(t, int32(2), hits.Load(), "oversized bodies are not retried")
	assert.Zero(t, c.BreakerCounts().TotalFailures)
}

func TestShouldRetry(t *testing.T) {
	assert.False(t, shouldRetry(nil, &CaptchaError{URL: "x"}))
	assert.False(t, shouldRetry(nil, context.Canceled))
	assert.False(t, shouldRetry(nil, ErrForbiddenHost))
	assert.False(t, shouldRetry(nil, resty.ErrResponseBodyTooLarge))
	assert.True(t, shouldRetry(nil, errors.New("connection reset")))
}

func TestIsFailure(t *testing.T) {
	tests := []struct {
		err  error
		want bool
	}{
		{nil, false},
		{&CaptchaError{URL: "x"}, false},
		{context.Canceled, false},
		{&StatusError{Code: 404}, false},
		{&StatusError{Code: 429}, true},
		{&StatusError{Code: 503}, true},
		{errors.New("dial tcp: refused"), true},
		{ErrForbiddenHost, false},
		{resty.ErrResponseBodyTooLarge, false},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, isFailure(tt.err), "%v", tt.err)
	}
}
