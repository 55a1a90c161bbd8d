package calc

import (
	"fmt"
	"math"
	"strconv"
)

// Format renders a finite evaluation result for display: mathematical
// integers print without a fraction (plain decimal while they fit a 64-bit
// range, scientific notation with two fractional digits beyond that), and
// everything else prints with exactly two fractional digits.
func Format(v float64) string {
	if v == math.Trunc(v) {
		// The upper bound is exclusive: float64 rounds MaxInt64 up to
		// 2^63, which int64 cannot hold.
		if v >= math.MinInt64 && v < 1<<63 {
			return strconv.FormatInt(int64(v), 10)
		}
		return fmt.Sprintf("%.2e", v)
	}
	return fmt.Sprintf("%.2f", v)
}
