package engine

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestShrinkBatchHalvingSequence(t *testing.T) {
	want := []int64{1000, 500, 250, 125, 63, 32, 16, 8, 4, 2, 1, 1}
	for retries, expected := range want {
		require.Equal(t, expected, ShrinkBatch(1000, 2, retries), "retry %d", retries)
	}
}

func TestShrinkBatchRoundsUp(t *testing.T) {
	require.Equal(t, int64(334), ShrinkBatch(1000, 3, 1))
	require.Equal(t, int64(112), ShrinkBatch(1000, 3, 2))
	require.Equal(t, int64(1), ShrinkBatch(3, 2, 2))
	require.Equal(t, int64(2), ShrinkBatch(3, 2, 1))
}

func TestShrinkBatchEdgeCases(t *testing.T) {
	require.Equal(t, int64(0), ShrinkBatch(0, 2, 1))
	require.Equal(t, int64(0), ShrinkBatch(-5, 2, 1))
	require.Equal(t, int64(500), ShrinkBatch(1000, 1, 1), "base below 2 falls back to 2")
	require.Equal(t, int64(1), ShrinkBatch(math.MaxInt64, 2, 200))
}
