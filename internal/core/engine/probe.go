package engine

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/idscout/idscout/internal/core"
	"github.com/idscout/idscout/internal/metrics"
)

// prober runs the size predicate against one partition with throttle-aware
// retries. One prober serves every target of a run.
type prober struct {
	backend  Backend
	throttle *ThrottleState
	opts     core.ScanOptions
	sleep    func(ctx context.Context, d time.Duration) error
	now      func() time.Time
	log      logFunc
}

func (p *prober) probe(ctx context.Context, target core.ScanTarget) core.ProbeOutcome {
	started := p.now()
	outcome := core.ProbeOutcome{Target: target}
	finish := func(status core.ProbeStatus, err error) core.ProbeOutcome {
		outcome.Status = status
		if err != nil {
			outcome.Err = &core.ProbeError{Target: target, Err: err}
			outcome.Error = outcome.Err.Error()
		}
		outcome.Duration = p.now().Sub(started)
		metrics.RecordProbeOutcome(string(status), outcome.Duration)
		return outcome
	}

	id := target.ID()
	var batch int64

	for {
		if ctx.Err() != nil {
			return finish(core.ProbeCancelled, nil)
		}

		found, err := p.backend.ProbeOnce(ctx, target, batch, p.opts.IndexAssist)
		if err == nil {
			if found {
				return finish(core.ProbeViolation, nil)
			}
			return finish(core.ProbeClean, nil)
		}
		if ctx.Err() != nil {
			return finish(core.ProbeCancelled, nil)
		}

		limited, ok := core.IsRateLimited(err)
		if !ok {
			return finish(core.ProbeFatal, err)
		}

		outcome.Retries++
		metrics.RecordThrottle()

		total, known := p.throttle.Get(id)
		if !known {
			count, err := p.countRecords(ctx, target)
			if err != nil {
				if ctx.Err() != nil {
					return finish(core.ProbeCancelled, nil)
				}
				return finish(core.ProbeFatal, err)
			}
			total, err = p.throttle.record(id, count)
			if err != nil {
				return finish(core.ProbeFatal, err)
			}
		}

		batch = ShrinkBatch(total, p.opts.Base(), outcome.Retries)
		outcome.BatchSize = batch
		if batch <= 1 {
			return finish(core.ProbeFatal, core.ErrRetriesExhausted)
		}

		p.log("partition throttled, narrowing batch",
			zap.String("target", id),
			zap.Int("retry", outcome.Retries),
			zap.Int64("records", total),
			zap.Int64("batch_size", batch),
			zap.Duration("retry_after", limited.RetryAfter))

		if err := p.sleep(ctx, limited.RetryAfter); err != nil {
			return finish(core.ProbeCancelled, nil)
		}
	}
}

// maxCountAttempts bounds how often a throttled count request is retried
// before the partition is given up.
const maxCountAttempts = 3

// countRecords fetches the partition total, waiting out throttle windows
// the way probe attempts do. Any other failure is returned as is.
func (p *prober) countRecords(ctx context.Context, target core.ScanTarget) (int64, error) {
	for attempt := 1; ; attempt++ {
		count, err := p.backend.CountRecords(ctx, target)
		if err == nil {
			return count, nil
		}
		limited, ok := core.IsRateLimited(err)
		if !ok || attempt >= maxCountAttempts || ctx.Err() != nil {
			return 0, err
		}
		metrics.RecordThrottle()
		p.log("record count throttled, retrying",
			zap.String("target", target.ID()),
			zap.Int("attempt", attempt),
			zap.Duration("retry_after", limited.RetryAfter))
		if err := p.sleep(ctx, limited.RetryAfter); err != nil {
			return 0, err
		}
	}
}

// sleepContext waits for d or until ctx is done, whichever comes first.
func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
