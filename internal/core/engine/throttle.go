package engine

import (
	"github.com/puzpuzpuz/xsync/v4"

	"github.com/idscout/idscout/internal/core"
)

// maxRecordAttempts bounds how often a probe retries recording a partition
// total before treating the throttle state as broken.
const maxRecordAttempts = 3

// ThrottleState remembers, per partition, the total record count observed on
// the first throttled request. It lives for exactly one scan run.
type ThrottleState struct {
	totals *xsync.Map[string, int64]
}

// NewThrottleState returns an empty run-scoped throttle state.
func NewThrottleState() *ThrottleState {
	return &ThrottleState{totals: xsync.NewMap[string, int64]()}
}

// TryRecord stores count for partitionID if no count is recorded yet.
// It reports whether this call won the insert.
func (s *ThrottleState) TryRecord(partitionID string, count int64) bool {
	_, loaded := s.totals.LoadOrStore(partitionID, count)
	return !loaded
}

// Get returns the recorded count for partitionID.
func (s *ThrottleState) Get(partitionID string) (int64, bool) {
	return s.totals.Load(partitionID)
}

// Len returns the number of partitions that hit throttling.
func (s *ThrottleState) Len() int {
	return s.totals.Size()
}

// record inserts count and returns the authoritative total, which is the
// first successfully recorded value regardless of which caller stored it.
func (s *ThrottleState) record(partitionID string, count int64) (int64, error) {
	for attempt := 0; attempt < maxRecordAttempts; attempt++ {
		s.TryRecord(partitionID, count)
		if total, ok := s.Get(partitionID); ok {
			return total, nil
		}
	}
	return 0, core.ErrContentionExhausted
}
