package client

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/hashicorp/go-retryablehttp"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/GriffinCanCode/readcomic/internal/infrastructure/cache"
	"github.com/GriffinCanCode/readcomic/internal/infrastructure/logging"
	"github.com/GriffinCanCode/readcomic/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/readcomic/internal/infrastructure/resilience"
)

// CaptchaPath is where the site redirects clients it wants to challenge
const CaptchaPath = "/Special/AreYouHuman"

// Config defines the site client settings
type Config struct {
	BaseURL           string
	UserAgent         string
	Timeout           time.Duration
	Retries           int
	RetryWaitMin      time.Duration
	RetryWaitMax      time.Duration
	RequestsPerSecond float64 // <= 0 disables the limiter
	MaxPageSize       int     // body limit for pages and scripts
	MaxImageSize      int     // body limit for proxied images

	// AllowPrivateImageHosts lets image fetches dial loopback and private
	// addresses. Only for tests and local mirrors.
	AllowPrivateImageHosts bool
}

// DefaultConfig returns settings polite enough for the live site
func DefaultConfig() Config {
	return Config{
		BaseURL:           "https://readcomiconline.li",
		UserAgent:         "Mozilla/5.0 (Windows NT 6.3; WOW64)",
		Timeout:           30 * time.Second,
		Retries:           3,
		RetryWaitMin:      time.Second,
		RetryWaitMax:      30 * time.Second,
		RequestsPerSecond: 2,
		MaxPageSize:       MaxHTMLSize,
		MaxImageSize:      MaxImageSize,
	}
}

// Client wraps resty with rate limiting, circuit breakers and a script cache.
// Site pages and proxied images travel separate lanes so a dead image host
// never opens the site breaker.
type Client struct {
	site    lane
	images  lane
	limiter *rate.Limiter
	scripts *cache.Store
	baseURL string
	logger  *logging.Logger
	metrics *monitoring.Metrics
}

// lane pairs a resty client with the breaker guarding it
type lane struct {
	resty   *resty.Client
	breaker *resilience.Breaker
}

// New creates the site client. scripts may be nil to disable the disk cache.
func New(cfg Config, scripts *cache.Store, logger *logging.Logger, metrics *monitoring.Metrics) *Client {
	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if cfg.MaxPageSize <= 0 {
		cfg.MaxPageSize = MaxHTMLSize
	}
	if cfg.MaxImageSize <= 0 {
		cfg.MaxImageSize = MaxImageSize
	}

	limiter := rate.NewLimiter(rate.Inf, 0)
	if cfg.RequestsPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), max(int(cfg.RequestsPerSecond), 1))
	}

	logger = logging.OrNop(logger).Named("site")

	// Pooled transport tuned by go-retryablehttp; retries are driven by resty.
	siteTransport := retryablehttp.NewClient().HTTPClient.Transport
	imageTransport := retryablehttp.NewClient().HTTPClient.Transport
	if !cfg.AllowPrivateImageHosts {
		imageTransport = publicOnly(imageTransport)
	}

	return &Client{
		site: lane{
			resty:   newResty(cfg, baseURL, siteTransport, cfg.MaxPageSize),
			breaker: newBreaker("site", logger),
		},
		images: lane{
			resty:   newResty(cfg, baseURL, imageTransport, cfg.MaxImageSize),
			breaker: newBreaker("images", logger),
		},
		limiter: limiter,
		scripts: scripts,
		baseURL: baseURL,
		logger:  logger,
		metrics: metrics,
	}
}

func newResty(cfg Config, baseURL string, transport http.RoundTripper, bodyLimit int) *resty.Client {
	return resty.New().
		SetTransport(transport).
		SetTimeout(cfg.Timeout).
		SetRetryCount(cfg.Retries).
		SetRetryWaitTime(cfg.RetryWaitMin).
		SetRetryMaxWaitTime(cfg.RetryWaitMax).
		SetResponseBodyLimit(bodyLimit).
		SetHeader("User-Agent", cfg.UserAgent).
		SetHeader("Referer", baseURL+"/").
		SetRedirectPolicy(captchaPolicy(baseURL), resty.FlexibleRedirectPolicy(10)).
		AddRetryCondition(shouldRetry)
}

func newBreaker(name string, logger *logging.Logger) *resilience.Breaker {
	return resilience.New(name, resilience.Settings{
		MaxRequests: 3,
		Interval:    60 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts resilience.Counts) bool {
			return counts.ConsecutiveFailures >= 5 ||
				(counts.Requests >= 20 && float64(counts.TotalFailures)/float64(counts.Requests) > 0.6)
		},
		IsFailure: isFailure,
		OnStateChange: func(name string, from, to resilience.State) {
			logger.Warn("Circuit breaker state changed",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()))
		},
	})
}

// BaseURL returns the site root without a trailing slash
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Request creates a new request after the breaker and rate limiter admit it
func (c *Client) Request(ctx context.Context) (*resty.Request, error) {
	if c.site.breaker.State() == resilience.StateOpen {
		return nil, resilience.ErrCircuitOpen
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit error: %w", err)
	}

	return c.site.resty.R().SetContext(ctx), nil
}

// BreakerState returns the site circuit breaker state
func (c *Client) BreakerState() resilience.State {
	return c.site.breaker.State()
}

// BreakerCounts returns site circuit breaker statistics
func (c *Client) BreakerCounts() resilience.Counts {
	return c.site.breaker.Counts()
}

// ImageBreakerState returns the image circuit breaker state
func (c *Client) ImageBreakerState() resilience.State {
	return c.images.breaker.State()
}

// get fetches a site url through the site breaker and rate limiter
func (c *Client) get(ctx context.Context, kind, url string) (*resty.Response, error) {
	return c.fetch(ctx, c.site, kind, url, c.Request)
}

// fetch runs one GET on l and returns the successful response
func (c *Client) fetch(ctx context.Context, l lane, kind, url string, request func(context.Context) (*resty.Request, error)) (*resty.Response, error) {
	resp, err := resilience.Do(l.breaker, func() (*resty.Response, error) {
		req, err := request(ctx)
		if err != nil {
			return nil, err
		}
		resp, err := req.Get(url)
		if err != nil {
			return nil, unwrapCaptcha(err)
		}
		if IsCaptchaURL(resp.RawResponse.Request.URL.Path) {
			return nil, &CaptchaError{URL: c.baseURL + CaptchaPath}
		}
		if resp.IsError() {
			return nil, &StatusError{URL: url, Code: resp.StatusCode()}
		}
		return resp, nil
	})

	c.metrics.RecordSiteRequest(kind, requestStatus(err))
	if err != nil {
		c.logger.Debug("Site request failed",
			zap.String("kind", kind),
			zap.String("url", url),
			zap.Error(err))
		return nil, err
	}
	return resp, nil
}

// GetPage fetches an HTML page and returns it decoded to UTF-8
func (c *Client) GetPage(ctx context.Context, url string) (*Page, error) {
	resp, err := c.get(ctx, "page", url)
	if err != nil {
		return nil, err
	}

	body, err := decodeHTML(resp.Body(), resp.Header().Get("Content-Type"))
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", url, err)
	}
	return &Page{URL: resp.RawResponse.Request.URL.String(), Body: body}, nil
}

// FetchScript returns a script body, served from the disk cache when an
// entry younger than maxAge exists. A stale entry is used if the site cannot
// be reached.
func (c *Client) FetchScript(ctx context.Context, url string, maxAge time.Duration) ([]byte, error) {
	if c.scripts != nil {
		body, _, err := c.scripts.Get(url, maxAge)
		switch {
		case err == nil:
			c.metrics.RecordCacheLookup("hit")
			return body, nil
		case errors.Is(err, cache.ErrMiss):
			c.metrics.RecordCacheLookup("miss")
		default:
			c.metrics.RecordCacheLookup("error")
			c.logger.Warn("Script cache read failed", zap.String("url", url), zap.Error(err))
		}
	}

	resp, err := c.get(ctx, "script", url)
	if err != nil {
		if stale := c.staleScript(url); stale != nil {
			c.logger.Warn("Serving stale script", zap.String("url", url), zap.Error(err))
			return stale, nil
		}
		return nil, err
	}

	body := resp.Body()
	if c.scripts != nil {
		if err := c.scripts.Put(url, body, resp.Header().Get("Content-Type")); err != nil {
			c.logger.Warn("Script cache write failed", zap.String("url", url), zap.Error(err))
		}
	}
	return body, nil
}

func (c *Client) staleScript(url string) []byte {
	if c.scripts == nil {
		return nil
	}
	body, _, err := c.scripts.Get(url, 0)
	if err != nil {
		return nil
	}
	c.metrics.RecordCacheLookup("stale")
	return body
}

// FetchImage downloads an image and sniffs its type. Images bypass the site
// rate limiter and breaker, and by default may only be fetched from public
// addresses.
func (c *Client) FetchImage(ctx context.Context, url string) (*Image, error) {
	resp, err := c.fetch(ctx, c.images, "image", url, func(ctx context.Context) (*resty.Request, error) {
		return c.images.resty.R().SetContext(ctx), nil
	})
	if err != nil {
		return nil, err
	}
	return newImage(resp.Body())
}

func captchaPolicy(baseURL string) resty.RedirectPolicy {
	return resty.RedirectPolicyFunc(func(req *http.Request, via []*http.Request) error {
		if IsCaptchaURL(req.URL.Path) {
			return &CaptchaError{URL: baseURL + CaptchaPath}
		}
		return nil
	})
}

// IsCaptchaURL reports whether path is the site's captcha wall
func IsCaptchaURL(path string) bool {
	return strings.HasPrefix(path, CaptchaPath)
}

func shouldRetry(resp *resty.Response, err error) bool {
	if err != nil {
		var captcha *CaptchaError
		return !errors.As(err, &captcha) &&
			!errors.Is(err, context.Canceled) &&
			!errors.Is(err, ErrForbiddenHost) &&
			!errors.Is(err, resty.ErrResponseBodyTooLarge)
	}
	if resp == nil {
		return false
	}
	code := resp.StatusCode()
	return code == http.StatusTooManyRequests || code >= http.StatusInternalServerError
}

// isFailure keeps answers that prove the site is up out of the breaker counts
func isFailure(err error) bool {
	if err == nil {
		return false
	}
	var captcha *CaptchaError
	if errors.As(err, &captcha) || errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, ErrForbiddenHost) || errors.Is(err, resty.ErrResponseBodyTooLarge) {
		return false
	}
	var status *StatusError
	if errors.As(err, &status) {
		return status.Code >= http.StatusInternalServerError || status.Code == http.StatusTooManyRequests
	}
	return true
}

func unwrapCaptcha(err error) error {
	var captcha *CaptchaError
	if errors.As(err, &captcha) {
		return captcha
	}
	return err
}

func requestStatus(err error) string {
	var (
		captcha *CaptchaError
		status  *StatusError
	)
	switch {
	case err == nil:
		return "ok"
	case errors.As(err, &captcha):
		return "captcha"
	case errors.As(err, &status):
		return fmt.Sprintf("%d", status.Code)
	case errors.Is(err, resilience.ErrCircuitOpen):
		return "circuit_open"
	case errors.Is(err, ErrForbiddenHost):
		return "forbidden_host"
	case errors.Is(err, resty.ErrResponseBodyTooLarge):
		return "too_large"
	default:
		return "error"
	}
}

func readAllLimited(r io.Reader, limit int64) ([]byte, error) {
	var buf bytes.Buffer
	n, err := buf.ReadFrom(io.LimitReader(r, limit+1))
	if err != nil {
		return nil, err
	}
	if n > limit {
		return nil, fmt.Errorf("body exceeds %d bytes", limit)
	}
	return buf.Bytes(), nil
}
