package indicator

import "signal-systemv1/internal/model"

// SMA computes the simple moving average series. Output index i is defined
// for i >= period-1 as the mean of values[i-period+1 .. i].
// O(n) via a running sum, no per-index window rescans.
func SMA(values []float64, period int) []model.Value {
	out := undefinedSeries(len(values))
	if period <= 0 || len(values) < period {
		return out
	}

	sum := 0.0
	for i, v := range values {
		sum += v
		if i >= period {
			sum -= values[i-period]
		}
		if i >= period-1 {
			out[i] = model.Val(sum / float64(period))
		}
	}
	return out
}
