package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	apihttp "github.com/GriffinCanCode/readcomic/internal/api/http"
	"github.com/GriffinCanCode/readcomic/internal/api/middleware"
	"github.com/GriffinCanCode/readcomic/internal/bootstrap"
	"github.com/GriffinCanCode/readcomic/internal/extractor"
	"github.com/GriffinCanCode/readcomic/internal/infrastructure/cache"
	"github.com/GriffinCanCode/readcomic/internal/infrastructure/config"
	"github.com/GriffinCanCode/readcomic/internal/infrastructure/logging"
	"github.com/GriffinCanCode/readcomic/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/readcomic/internal/preferences"
	"github.com/GriffinCanCode/readcomic/internal/providers/http/client"
	"github.com/GriffinCanCode/readcomic/internal/providers/readcomic"
	"github.com/GriffinCanCode/readcomic/internal/sandbox"
)

const shutdownTimeout = 15 * time.Second

// Server wraps the HTTP server and dependencies
type Server struct {
	router  *gin.Engine
	http    *http.Server
	config  *config.Config
	logger  *logging.Logger
	metrics *monitoring.Metrics
	scripts *cache.Store
	pool    *sandbox.Pool
	site    *client.Client
	boot    *bootstrap.Cache
}

// Options overrides process-wide defaults, mostly for tests
type Options struct {
	Logger   *logging.Logger
	Registry *prometheus.Registry // nil uses the default registry
}

// New wires every component from cfg
func New(cfg *config.Config, opts Options) (*Server, error) {
	logger := logging.OrNop(opts.Logger)
	logger.Info("Initializing readcomic server",
		zap.String("site", cfg.Site.BaseURL),
		zap.Int("sandbox_pool", cfg.Sandbox.PoolSize),
		zap.Duration("sandbox_timeout", cfg.Sandbox.Timeout),
	)

	var (
		registerer prometheus.Registerer = prometheus.DefaultRegisterer
		gatherer   prometheus.Gatherer   = prometheus.DefaultGatherer
	)
	if opts.Registry != nil {
		registerer, gatherer = opts.Registry, opts.Registry
	}
	metrics := monitoring.NewMetrics(registerer)

	var scripts *cache.Store
	if cfg.Cache.Enabled {
		store, err := cache.Open(cfg.Cache.Dir)
		if err != nil {
			return nil, fmt.Errorf("failed to open script cache: %w", err)
		}
		scripts = store
		if cfg.Cache.PruneAfter > 0 {
			removed, err := scripts.Prune(cfg.Cache.PruneAfter)
			if err != nil {
				logger.Warn("Failed to prune script cache", zap.Error(err))
			} else if removed > 0 {
				logger.Info("Pruned script cache", zap.Int("removed", removed))
			}
		}
	}

	siteCfg := client.DefaultConfig()
	siteCfg.BaseURL = cfg.Site.BaseURL
	siteCfg.UserAgent = cfg.Site.UserAgent
	siteCfg.Timeout = cfg.HTTP.Timeout
	siteCfg.Retries = cfg.HTTP.Retries
	siteCfg.RequestsPerSecond = cfg.HTTP.RequestsPerSecond
	site := client.New(siteCfg, scripts, logger, metrics)

	boot := bootstrap.NewCache(site, cfg.Site.BootstrapURL(), logger, metrics)

	pool, err := sandbox.NewPool(sandbox.Config{
		Timeout:        cfg.Sandbox.Timeout,
		MaxCallStack:   cfg.Sandbox.MaxCallStack,
		AcquireTimeout: cfg.Sandbox.AcquireTimeout,
		Logger:         logger,
	}, cfg.Sandbox.PoolSize)
	if err != nil {
		closeStore(scripts, logger)
		return nil, fmt.Errorf("failed to create sandbox pool: %w", err)
	}

	prefs, err := preferences.Open(cfg.Preferences.File)
	if err != nil {
		pool.Close()
		closeStore(scripts, logger)
		return nil, fmt.Errorf("failed to load preferences: %w", err)
	}

	source := readcomic.New(readcomic.Config{
		BaseURL:       cfg.Site.BaseURL,
		PayloadMarker: cfg.Site.PayloadMarker,
	}, site, extractor.New(boot, pool, logger, metrics), boot, prefs, logger)

	s := &Server{
		config:  cfg,
		logger:  logger,
		metrics: metrics,
		scripts: scripts,
		pool:    pool,
		site:    site,
		boot:    boot,
	}

	if !cfg.Logging.Development {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.RequestID())
	router.Use(middleware.Logger(logger))
	router.Use(monitoring.Middleware(metrics))
	router.Use(middleware.CORS(middleware.DefaultCORSConfig()))
	if cfg.RateLimit.Enabled {
		logger.Info("Rate limiting enabled",
			zap.Int("rps", cfg.RateLimit.RequestsPerSecond),
			zap.Int("burst", cfg.RateLimit.Burst),
		)
		limits := middleware.DefaultRateLimitConfig()
		limits.RequestsPerSecond = cfg.RateLimit.RequestsPerSecond
		limits.Burst = cfg.RateLimit.Burst
		router.Use(middleware.RateLimit(limits))
	}

	apihttp.NewHandlers(source, site, prefs, s.health, logger).Register(router)
	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))

	s.router = router
	s.http = &http.Server{
		Addr:              net.JoinHostPort(cfg.Server.Host, cfg.Server.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	logger.Info("Server initialized successfully")
	return s, nil
}

// Handler returns the router, for tests
func (s *Server) Handler() http.Handler {
	return s.router
}

// health reports the site breaker, the bootstrap program and the pool
func (s *Server) health() gin.H {
	body := gin.H{
		"site_breaker":     s.site.BreakerState().String(),
		"bootstrap_source": s.boot.SourceURL(),
		"bootstrap_builds": s.boot.Builds(),
		"sandbox_pool":     s.pool.Stats(),
	}
	if program := s.boot.Current(); program != nil {
		body["bootstrap_id"] = program.ID
		body["bootstrap_built_at"] = program.BuiltAt
	}
	return body
}

// Run serves until ctx is canceled, then shuts down gracefully
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("Starting HTTP server", zap.String("addr", s.http.Addr))
		errCh <- s.http.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	s.logger.Info("Shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := s.http.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shut down http server: %w", err)
	}
	return nil
}

// Close releases the sandbox pool and the script cache
func (s *Server) Close() error {
	var errs []error
	if err := s.pool.Close(); err != nil {
		s.logger.Error("Failed to close sandbox pool", zap.Error(err))
		errs = append(errs, err)
	}
	if s.scripts != nil {
		if err := s.scripts.Close(); err != nil {
			s.logger.Error("Failed to close script cache", zap.Error(err))
			errs = append(errs, err)
		}
	}
	_ = s.logger.Sync()
	return errors.Join(errs...)
}

func closeStore(store *cache.Store, logger *logging.Logger) {
	if store == nil {
		return
	}
	if err := store.Close(); err != nil {
		logger.Warn("Failed to close script cache", zap.Error(err))
	}
}
