package engine

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/idscout/idscout/internal/core"
)

type stubBackend struct {
	databases  []string
	containers map[string][]string
	listErr    map[string]error
	dbErr      error

	probe func(ctx context.Context, target core.ScanTarget, batchSize int64) (bool, error)
	count func(ctx context.Context, target core.ScanTarget) (int64, error)

	probeCalls atomic.Int64
	countCalls atomic.Int64

	mu          sync.Mutex
	batches     map[string][]int64
	indexAssist []bool
}

func (s *stubBackend) ListDatabases(ctx context.Context) ([]string, error) {
	if s.dbErr != nil {
		return nil, s.dbErr
	}
	return s.databases, nil
}

func (s *stubBackend) ListContainers(ctx context.Context, database string) ([]string, error) {
	if err := s.listErr[database]; err != nil {
		return nil, err
	}
	return s.containers[database], nil
}

func (s *stubBackend) ProbeOnce(ctx context.Context, target core.ScanTarget, batchSize int64, indexAssist bool) (bool, error) {
	s.probeCalls.Add(1)
	s.mu.Lock()
	if s.batches == nil {
		s.batches = make(map[string][]int64)
	}
	s.batches[target.ID()] = append(s.batches[target.ID()], batchSize)
	s.indexAssist = append(s.indexAssist, indexAssist)
	s.mu.Unlock()

	if s.probe == nil {
		return false, nil
	}
	return s.probe(ctx, target, batchSize)
}

func (s *stubBackend) CountRecords(ctx context.Context, target core.ScanTarget) (int64, error) {
	s.countCalls.Add(1)
	if s.count == nil {
		return 0, nil
	}
	return s.count(ctx, target)
}

func (s *stubBackend) batchesFor(id string) []int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]int64(nil), s.batches[id]...)
}

// flatAccount builds a backend with the given databases, each holding the
// given containers.
func flatAccount(databases []string, containers ...string) *stubBackend {
	b := &stubBackend{
		databases:  databases,
		containers: make(map[string][]string, len(databases)),
	}
	for _, db := range databases {
		b.containers[db] = containers
	}
	return b
}

type sleepRecorder struct {
	mu    sync.Mutex
	waits []time.Duration
}

func (r *sleepRecorder) sleep(ctx context.Context, d time.Duration) error {
	r.mu.Lock()
	r.waits = append(r.waits, d)
	r.mu.Unlock()
	return ctx.Err()
}

func (r *sleepRecorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.waits)
}

func nopLog(string, ...zap.Field) {}

func newTestProber(b Backend, opts core.ScanOptions, sleep func(context.Context, time.Duration) error) *prober {
	return &prober{
		backend:  b,
		throttle: NewThrottleState(),
		opts:     opts,
		sleep:    sleep,
		now:      time.Now,
		log:      nopLog,
	}
}
