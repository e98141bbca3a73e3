package indicator

import "signal-systemv1/internal/model"

// RSI computes the Relative Strength Index using Wilder's smoothing.
// Per-step gains/losses come from consecutive closes; the first averages
// are the simple mean of the first `period` gains/losses, after which
// avgGain = (avgGain*(period-1) + gain) / period (same for loss).
// Output is defined from index `period` on (one bar after the seed window,
// since the first delta needs a prior close). avgLoss == 0 is an explicit
// branch yielding 100, not a division error. Result is always in [0,100].
func RSI(closes []float64, period int) []model.Value {
	out := undefinedSeries(len(closes))
	if period <= 0 || len(closes) < period+1 {
		return out
	}

	avgGain, avgLoss := 0.0, 0.0
	for i := 1; i <= period; i++ {
		delta := closes[i] - closes[i-1]
		if delta > 0 {
			avgGain += delta
		} else {
			avgLoss -= delta
		}
	}
	avgGain /= float64(period)
	avgLoss /= float64(period)
	out[period] = model.Val(rsiValue(avgGain, avgLoss))

	p := float64(period)
	for i := period + 1; i < len(closes); i++ {
		delta := closes[i] - closes[i-1]
		gain, loss := 0.0, 0.0
		if delta > 0 {
			gain = delta
		} else {
			loss = -delta
		}
		avgGain = (avgGain*(p-1) + gain) / p
		avgLoss = (avgLoss*(p-1) + loss) / p
		out[i] = model.Val(rsiValue(avgGain, avgLoss))
	}
	return out
}

func rsiValue(avgGain, avgLoss float64) float64 {
	if avgLoss == 0 {
		return 100.0
	}
	rs := avgGain / avgLoss
	return 100.0 - (100.0 / (1.0 + rs))
}
