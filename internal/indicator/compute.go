package indicator

import "signal-systemv1/internal/model"

// ComputeIndicators derives one Snapshot per input bar, aligned 1:1 with
// the bar series. Bars must be ordered by TS ascending for one
// (symbol, timeframe) stream. Safe to call fresh on every tick: the cost
// is a handful of O(n) passes over the trailing history window.
func ComputeIndicators(bars []model.Bar, p Params) []model.Snapshot {
	n := len(bars)
	snaps := make([]model.Snapshot, n)
	if n == 0 {
		return snaps
	}

	closes := make([]float64, n)
	volumes := make([]float64, n)
	for i, b := range bars {
		closes[i] = b.Close
		volumes[i] = b.Volume
	}

	sma := SMA(closes, p.SMAPeriod)
	ema := EMA(closes, p.EMAPeriod)
	rsi := RSI(closes, p.RSIPeriod)
	macd, macdSignal, hist := MACD(closes, p.MACDFast, p.MACDSlow, p.MACDSignal)
	volSMA := SMA(volumes, p.VolumePeriod)

	for i := range bars {
		snaps[i] = model.Snapshot{
			Symbol:        bars[i].Symbol,
			Timeframe:     bars[i].Timeframe,
			TS:            bars[i].TS,
			SMA:           sma[i],
			EMA:           ema[i],
			RSI:           rsi[i],
			MACD:          macd[i],
			MACDSignal:    macdSignal[i],
			MACDHistogram: hist[i],
			VolumeSMA:     volSMA[i],
		}
	}
	return snaps
}
