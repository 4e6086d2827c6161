package engine

import "math"

// ShrinkBatch returns ceil(total / base^retries), the per-request batch size
// after the given number of throttled retries. A result of 1 or less means
// the partition cannot be narrowed further.
func ShrinkBatch(total int64, base int, retries int) int64 {
	if total <= 0 {
		return 0
	}
	if base < 2 {
		base = 2
	}
	if retries <= 0 {
		return total
	}

	divisor := int64(1)
	for i := 0; i < retries; i++ {
		if divisor > math.MaxInt64/int64(base) || divisor*int64(base) >= total {
			// Every further step rounds up to a single record.
			return 1
		}
		divisor *= int64(base)
	}

	return (total + divisor - 1) / divisor
}
