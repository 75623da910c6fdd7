package monitoring

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics
type Metrics struct {
	// HTTP metrics
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec

	// Extraction metrics
	ExtractionsTotal   *prometheus.CounterVec
	ExtractionDuration prometheus.Histogram
	Candidates         prometheus.Histogram
	ProbesTotal        *prometheus.CounterVec

	// Bootstrap metrics
	BootstrapBuilds  *prometheus.CounterVec
	BootstrapHits    prometheus.Counter
	BootstrapSources *prometheus.CounterVec

	// Sandbox metrics
	SandboxDuration *prometheus.HistogramVec

	// Site metrics
	SiteRequests *prometheus.CounterVec
	CacheLookups *prometheus.CounterVec
}

// NewMetrics registers all collectors with reg. Tests pass a fresh
// prometheus.NewRegistry(); the server passes prometheus.DefaultRegisterer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		RequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "readcomic_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		RequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "readcomic_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"method", "path"},
		),

		ExtractionsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "readcomic_extractions_total",
				Help: "Page list extractions by outcome",
			},
			[]string{"outcome"},
		),
		ExtractionDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "readcomic_extraction_duration_seconds",
				Help:    "Time spent extracting a page list",
				Buckets: []float64{.01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
		),
		Candidates: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "readcomic_extraction_candidates",
				Help:    "Number of push-receiving variables found in a payload",
				Buckets: []float64{0, 1, 2, 4, 8, 16, 32, 64},
			},
		),
		ProbesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "readcomic_probes_total",
				Help: "Array probes run against candidate variables",
			},
			[]string{"result"},
		),

		BootstrapBuilds: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "readcomic_bootstrap_builds_total",
				Help: "Bootstrap compilations by status",
			},
			[]string{"status"},
		),
		BootstrapHits: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "readcomic_bootstrap_cache_hits_total",
				Help: "Bootstrap requests served from the compiled cache",
			},
		),
		BootstrapSources: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "readcomic_bootstrap_builds_by_source_total",
				Help: "Successful bootstrap builds by loader source (default or observed)",
			},
			[]string{"kind"},
		),

		SandboxDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "readcomic_sandbox_duration_seconds",
				Help:    "Sandbox evaluation time by stage",
				Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
			},
			[]string{"stage"},
		),

		SiteRequests: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "readcomic_site_requests_total",
				Help: "Requests sent to the comic site",
			},
			[]string{"kind", "status"},
		),
		CacheLookups: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "readcomic_script_cache_lookups_total",
				Help: "On-disk script cache lookups",
			},
			[]string{"result"},
		),
	}
}

// All Record* methods accept a nil receiver so components can run without metrics.

// RecordHTTPRequest records an API request
func (m *Metrics) RecordHTTPRequest(method, path, status string, duration time.Duration) {
	if m == nil {
		return
	}
	m.RequestsTotal.WithLabelValues(method, path, status).Inc()
	m.RequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// RecordExtraction records the outcome of one page list extraction
func (m *Metrics) RecordExtraction(outcome string, duration time.Duration) {
	if m == nil {
		return
	}
	m.ExtractionsTotal.WithLabelValues(outcome).Inc()
	m.ExtractionDuration.Observe(duration.Seconds())
}

// RecordCandidates records how many candidates a payload produced
func (m *Metrics) RecordCandidates(count int) {
	if m == nil {
		return
	}
	m.Candidates.Observe(float64(count))
}

// RecordProbe records a probe result: "true", "false" or "error"
func (m *Metrics) RecordProbe(result string) {
	if m == nil {
		return
	}
	m.ProbesTotal.WithLabelValues(result).Inc()
}

// RecordBootstrapBuild records a bootstrap compilation attempt
func (m *Metrics) RecordBootstrapBuild(status string) {
	if m == nil {
		return
	}
	m.BootstrapBuilds.WithLabelValues(status).Inc()
}

// RecordBootstrapHit records a bootstrap served from cache
func (m *Metrics) RecordBootstrapHit() {
	if m == nil {
		return
	}
	m.BootstrapHits.Inc()
}

// RecordBootstrapSource records a new ("set") or changed ("replaced") source URL
func (m *Metrics) RecordBootstrapSource(kind string) {
	if m == nil {
		return
	}
	m.BootstrapSources.WithLabelValues(kind).Inc()
}

// RecordSandbox records time spent in one sandbox stage
func (m *Metrics) RecordSandbox(stage string, duration time.Duration) {
	if m == nil {
		return
	}
	m.SandboxDuration.WithLabelValues(stage).Observe(duration.Seconds())
}

// RecordSiteRequest records a request to the comic site
func (m *Metrics) RecordSiteRequest(kind, status string) {
	if m == nil {
		return
	}
	m.SiteRequests.WithLabelValues(kind, status).Inc()
}

// RecordCacheLookup records a script cache "hit", "miss" or "expired"
func (m *Metrics) RecordCacheLookup(result string) {
	if m == nil {
		return
	}
	m.CacheLookups.WithLabelValues(result).Inc()
}
