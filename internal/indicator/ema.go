package indicator

import "signal-systemv1/internal/model"

// EMA computes the exponential moving average series with an SMA seed:
// ema[period-1] = mean(values[0..period-1]), then for i >= period
// ema[i] = values[i]*k + ema[i-1]*(1-k) with k = 2/(period+1).
// Undefined before the seed index. The SMA-seed policy is used everywhere
// in this codebase; the "seed from the first value" variant is not.
func EMA(values []float64, period int) []model.Value {
	out := undefinedSeries(len(values))
	if period <= 0 || len(values) < period {
		return out
	}

	k := 2.0 / float64(period+1)

	seed := 0.0
	for _, v := range values[:period] {
		seed += v
	}
	prev := seed / float64(period)
	out[period-1] = model.Val(prev)

	for i := period; i < len(values); i++ {
		prev = values[i]*k + prev*(1-k)
		out[i] = model.Val(prev)
	}
	return out
}

// emaOver runs the EMA recursion over an already-defined sub-series and
// realigns the result to the full series length: indices [offset, len) of
// the output correspond to sub[0..], everything before offset stays
// undefined. Used by MACD to compute the signal line over the defined
// portion of the MACD line.
func emaOver(sub []float64, period, offset, total int) []model.Value {
	out := undefinedSeries(total)
	for i, v := range EMA(sub, period) {
		out[offset+i] = v
	}
	return out
}
