package engine

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestThrottleStateFirstRecordWins(t *testing.T) {
	state := NewThrottleState()

	require.True(t, state.TryRecord("db/a", 1000))
	require.False(t, state.TryRecord("db/a", 5))

	total, ok := state.Get("db/a")
	require.True(t, ok)
	require.Equal(t, int64(1000), total)

	_, ok = state.Get("db/b")
	require.False(t, ok)
	require.Equal(t, 1, state.Len())
}

func TestThrottleStateConcurrentTryRecord(t *testing.T) {
	for round := 0; round < 50; round++ {
		state := NewThrottleState()
		counts := []int64{100, 200}
		won := make([]bool, len(counts))
		seen := make([]int64, len(counts))

		var wg sync.WaitGroup
		start := make(chan struct{})
		for i, count := range counts {
			wg.Add(1)
			go func() {
				defer wg.Done()
				<-start
				won[i] = state.TryRecord("db/shared", count)
				seen[i], _ = state.Get("db/shared")
			}()
		}
		close(start)
		wg.Wait()

		require.NotEqual(t, won[0], won[1], "exactly one caller must win")
		winner := counts[0]
		if won[1] {
			winner = counts[1]
		}
		require.Equal(t, winner, seen[0])
		require.Equal(t, winner, seen[1])
	}
}

func TestThrottleStateRecordReturnsAuthoritativeTotal(t *testing.T) {
	state := NewThrottleState()

	total, err := state.record("db/a", 42)
	require.NoError(t, err)
	require.Equal(t, int64(42), total)

	total, err = state.record("db/a", 7)
	require.NoError(t, err)
	require.Equal(t, int64(42), total)
}
