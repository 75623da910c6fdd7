// Package logging provides structured logging using uber/zap.
//
// Two modes are supported:
//   - Production: JSON output for machine parsing
//   - Development: Colored console output for human readability
//
// Components receive a *Logger and derive a named child from it. A nil
// *Logger is accepted everywhere and replaced with OrNop, so tests and
// library callers never have to build one.
//
// Example Usage:
//
//	logger, err := logging.New(logging.Config{Level: "info"})
//	if err != nil {
//		return err
//	}
//	logger = logger.Named("extractor")
//	logger.Info("pages extracted", zap.Int("count", len(pages)))
//	logger.Error("bootstrap fetch failed", zap.Error(err))
package logging
