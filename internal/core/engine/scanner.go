package engine

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/fulmenhq/gofulmen/logging"
	"github.com/google/uuid"
	"github.com/sourcegraph/conc/pool"
	"go.uber.org/zap"

	"github.com/idscout/idscout/internal/core"
	"github.com/idscout/idscout/internal/metrics"
)

// Backend is the transport a scan runs against. Implementations must be safe
// for concurrent use by every probe of a run.
type Backend interface {
	ListDatabases(ctx context.Context) ([]string, error)
	ListContainers(ctx context.Context, database string) ([]string, error)

	// ProbeOnce reports whether target holds a document whose identifier is
	// longer than core.MaxIDLength. batchSize 0 leaves the page size to the
	// backend. Throttling is reported as *core.RateLimitedError.
	ProbeOnce(ctx context.Context, target core.ScanTarget, batchSize int64, indexAssist bool) (bool, error)

	// CountRecords returns the number of documents in target.
	CountRecords(ctx context.Context, target core.ScanTarget) (int64, error)
}

// Scanner fans a probe out over every discovered partition and reduces the
// outcomes into one verdict.
type Scanner struct {
	Logger *logging.Logger
	Clock  func() time.Time
	Sleep  func(ctx context.Context, d time.Duration) error
}

type logFunc func(msg string, fields ...zap.Field)

// RunScan runs one scan with a default Scanner and returns its verdict.
func RunScan(ctx context.Context, backend Backend, opts core.ScanOptions) core.ScanVerdict {
	return (&Scanner{}).Run(ctx, backend, opts).Verdict
}

// Run discovers targets, probes them concurrently and returns the report.
// A confirmed violation or a fatal probe cancels every other probe.
func (s *Scanner) Run(ctx context.Context, backend Backend, opts core.ScanOptions) *core.ScanReport {
	if ctx == nil {
		ctx = context.Background()
	}

	report := &core.ScanReport{
		RunID:     uuid.New().String(),
		StartedAt: s.now(),
	}
	defer func() {
		report.FinishedAt = s.now()
		metrics.RecordScan(report.Verdict.String(), report.FinishedAt.Sub(report.StartedAt))
	}()

	if backend == nil {
		report.Verdict = core.VerdictUnexpectedFailure
		report.Cause = "backend is not configured"
		return report
	}

	targets, err := DiscoverTargets(ctx, backend, opts.MaxConcurrency)
	if err != nil {
		metrics.RecordDiscoveryFailure()
		s.logger().Error("target discovery failed", zap.String("run_id", report.RunID), zap.Error(err))
		report.Verdict = core.VerdictUnexpectedFailure
		report.DiscoveryError = err.Error()
		report.Cause = err.Error()
		return report
	}
	report.Targets = len(targets)
	s.debug("targets discovered", zap.String("run_id", report.RunID), zap.Int("targets", len(targets)))

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	agg := &aggregator{cancel: cancel}
	p := &prober{
		backend:  backend,
		throttle: NewThrottleState(),
		opts:     opts,
		sleep:    s.sleeper(),
		now:      s.now,
		log:      s.debug,
	}

	outcomes := make([]core.ProbeOutcome, len(targets))
	workers := pool.New()
	if opts.MaxConcurrency > 0 {
		workers = workers.WithMaxGoroutines(opts.MaxConcurrency)
	}
	for i, target := range targets {
		workers.Go(func() {
			if runCtx.Err() != nil {
				outcomes[i] = core.ProbeOutcome{Target: target, Status: core.ProbeCancelled}
				return
			}
			outcome := p.probe(runCtx, target)
			outcomes[i] = outcome
			if agg.observe(outcome) {
				s.debug("run decided", zap.String("run_id", report.RunID),
					zap.String("target", target.ID()),
					zap.String("status", string(outcome.Status)))
			}
		})
	}
	workers.Wait()

	report.Outcomes = outcomes
	report.Verdict, report.Cause = agg.verdict(ctx, outcomes)

	s.logger().Info("scan finished",
		zap.String("run_id", report.RunID),
		zap.String("verdict", report.Verdict.String()),
		zap.Int("targets", report.Targets),
		zap.Int("violations", report.Count(core.ProbeViolation)),
		zap.Int("fatal", report.Count(core.ProbeFatal)),
		zap.Int("cancelled", report.Count(core.ProbeCancelled)))

	return report
}

// aggregator holds the run-scoped verdict flags. Each flag is set once by the
// first writer; the first flag to be set cancels the run.
type aggregator struct {
	violationFound  atomic.Bool
	unexpectedError atomic.Bool
	firstFailure    atomic.Pointer[core.ProbeOutcome]
	cancel          context.CancelFunc
}

// observe folds one outcome into the flags and reports whether it was the
// first writer of its flag.
func (a *aggregator) observe(outcome core.ProbeOutcome) bool {
	switch outcome.Status {
	case core.ProbeViolation:
		if a.violationFound.CompareAndSwap(false, true) {
			a.cancel()
			return true
		}
	case core.ProbeFatal:
		if a.unexpectedError.CompareAndSwap(false, true) {
			a.firstFailure.Store(&outcome)
			a.cancel()
			return true
		}
	}
	return false
}

func (a *aggregator) verdict(parent context.Context, outcomes []core.ProbeOutcome) (core.ScanVerdict, string) {
	if a.violationFound.Load() {
		return core.VerdictViolationFound, ""
	}
	if a.unexpectedError.Load() {
		if failure := a.firstFailure.Load(); failure != nil && failure.Err != nil {
			return core.VerdictUnexpectedFailure, failure.Err.Error()
		}
		return core.VerdictUnexpectedFailure, "probe failed"
	}
	if err := parent.Err(); err != nil {
		for _, outcome := range outcomes {
			if outcome.Status == core.ProbeCancelled {
				return core.VerdictUnexpectedFailure, interruptedCause(err)
			}
		}
	}
	return core.VerdictNoViolationFound, ""
}

func interruptedCause(err error) string {
	if errors.Is(err, context.DeadlineExceeded) {
		return "scan timed out before every partition was probed"
	}
	return "scan interrupted before every partition was probed"
}

func (s *Scanner) now() time.Time {
	if s != nil && s.Clock != nil {
		return s.Clock()
	}
	return time.Now().UTC()
}

func (s *Scanner) sleeper() func(ctx context.Context, d time.Duration) error {
	if s != nil && s.Sleep != nil {
		return s.Sleep
	}
	return sleepContext
}

func (s *Scanner) debug(msg string, fields ...zap.Field) {
	if s == nil || s.Logger == nil {
		return
	}
	s.Logger.Debug(msg, fields...)
}

// logger returns a logger that is safe to call when none is configured.
func (s *Scanner) logger() scanLogger {
	if s == nil || s.Logger == nil {
		return nopLogger{}
	}
	return s.Logger
}

type scanLogger interface {
	Info(msg string, fields ...zap.Field)
	Error(msg string, fields ...zap.Field)
}

type nopLogger struct{}

func (nopLogger) Info(string, ...zap.Field)  {}
func (nopLogger) Error(string, ...zap.Field) {}
