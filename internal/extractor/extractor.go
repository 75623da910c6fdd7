package extractor

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/GriffinCanCode/readcomic/internal/bootstrap"
	"github.com/GriffinCanCode/readcomic/internal/infrastructure/logging"
	"github.com/GriffinCanCode/readcomic/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/readcomic/internal/sandbox"
	"github.com/GriffinCanCode/readcomic/internal/script"
	"github.com/GriffinCanCode/readcomic/internal/shared/id"
)

// Bootstrapper supplies the compiled bootstrap program
type Bootstrapper interface {
	Get(ctx context.Context) (*bootstrap.Program, error)
}

// Result describes a successful extraction
type Result struct {
	ID         id.ExtractionID
	Images     []string
	Variable   string
	Candidates []script.Candidate
	Probes     int
	Bootstrap  id.BuildID
}

// Extractor recovers image URLs from obfuscated payload scripts
type Extractor struct {
	bootstrap Bootstrapper
	pool      *sandbox.Pool
	logger    *logging.Logger
	metrics   *monitoring.Metrics
}

// New creates an extractor. Each call borrows one runtime from pool.
func New(boot Bootstrapper, pool *sandbox.Pool, logger *logging.Logger, metrics *monitoring.Metrics) *Extractor {
	return &Extractor{
		bootstrap: boot,
		pool:      pool,
		logger:    logging.OrNop(logger).Named("extractor"),
		metrics:   metrics,
	}
}

// Extract returns the image URLs built by payload, in page order
func (e *Extractor) Extract(ctx context.Context, payload string) ([]string, error) {
	res, err := e.ExtractResult(ctx, payload)
	if err != nil {
		return nil, err
	}
	return res.Images, nil
}

// ExtractResult is Extract with the details of how the list was found
func (e *Extractor) ExtractResult(ctx context.Context, payload string) (*Result, error) {
	start := time.Now()
	res := &Result{ID: id.NewExtractionID()}
	logger := e.logger.With(zap.String("extraction_id", res.ID.String()))

	err := e.run(ctx, payload, res)

	elapsed := time.Since(start)
	e.metrics.RecordExtraction(outcome(err), elapsed)
	if err != nil {
		logger.Warn("Extraction failed",
			zap.Int("candidates", len(res.Candidates)),
			zap.Int("probes", res.Probes),
			zap.Duration("duration", elapsed),
			zap.Error(err))
		return nil, err
	}

	logger.Info("Extraction complete",
		zap.String("variable", res.Variable),
		zap.Int("candidates", len(res.Candidates)),
		zap.Int("probes", res.Probes),
		zap.Int("pages", len(res.Images)),
		zap.Duration("duration", elapsed))
	return res, nil
}

func (e *Extractor) run(ctx context.Context, payload string, res *Result) error {
	if strings.TrimSpace(payload) == "" {
		return ErrScriptNotFound
	}

	res.Candidates = script.RankCandidates(script.StripComments(payload))
	e.metrics.RecordCandidates(len(res.Candidates))
	if len(res.Candidates) == 0 {
		return ErrNoImagesFound
	}

	program, err := e.bootstrap.Get(ctx)
	if err != nil {
		return sandboxError(StageBootstrap, err)
	}
	res.Bootstrap = program.ID

	err = e.pool.Run(ctx, func(rt *sandbox.Runtime) error {
		return e.evaluate(ctx, rt, program, payload, res)
	})
	if err != nil && !errors.Is(err, ErrNoImagesFound) {
		return sandboxError(StageAcquire, err)
	}
	return err
}

// evaluate loads the bootstrap, runs payload once and probes candidates in
// rank order, stopping at the first array.
func (e *Extractor) evaluate(ctx context.Context, rt *sandbox.Runtime, program *bootstrap.Program, payload string, res *Result) error {
	timer := monitoring.NewTimer(e.metrics, string(StageBootstrap))
	err := rt.Load(ctx, program.Compiled())
	timer.Stop()
	if err != nil {
		return sandboxError(StageBootstrap, err)
	}

	// The payload runs as served; the stripped copy only feeds the ranking.
	timer = monitoring.NewTimer(e.metrics, string(StagePayload))
	err = rt.Exec(ctx, payload)
	timer.Stop()
	if err != nil {
		return sandboxError(StagePayload, err)
	}

	timer = monitoring.NewTimer(e.metrics, string(StageProbe))
	defer timer.Stop()

	for _, candidate := range res.Candidates {
		res.Probes++
		ok, err := probe(ctx, rt, candidate.Name)
		if err != nil {
			e.metrics.RecordProbe("error")
			return sandboxError(StageProbe, err)
		}
		if !ok {
			e.metrics.RecordProbe("false")
			continue
		}
		e.metrics.RecordProbe("true")

		images, err := collect(ctx, rt, candidate.Name)
		if err != nil {
			return sandboxError(StageExtract, err)
		}
		if len(images) == 0 {
			return ErrNoImagesFound
		}
		res.Variable = candidate.Name
		res.Images = images
		return nil
	}

	return ErrNoImagesFound
}

func outcome(err error) string {
	var sandboxErr *SandboxError
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrScriptNotFound):
		return "script_not_found"
	case errors.Is(err, ErrNoImagesFound):
		return "no_images"
	case errors.As(err, &sandboxErr):
		return "sandbox_" + string(sandboxErr.Stage)
	default:
		return "error"
	}
}
