package indicator

import "signal-systemv1/internal/model"

// MACD computes the MACD line, its signal line and the histogram.
//
// macd[i] = EMA(closes,fast)[i] - EMA(closes,slow)[i], undefined wherever
// either EMA is. The signal line is an EMA over the defined portion of the
// MACD line only, left-padded with undefined to keep 1:1 alignment with
// the input. hist[i] = macd[i] - signal[i] wherever both are defined.
func MACD(closes []float64, fast, slow, signal int) (macd, signalLine, hist []model.Value) {
	n := len(closes)
	macd = undefinedSeries(n)
	signalLine = undefinedSeries(n)
	hist = undefinedSeries(n)
	if fast <= 0 || slow <= 0 || signal <= 0 {
		return macd, signalLine, hist
	}

	fastEMA := EMA(closes, fast)
	slowEMA := EMA(closes, slow)

	// First index where both EMAs are defined. With fast < slow this is
	// slow-1, but derive it rather than assume the ordering.
	offset := -1
	for i := 0; i < n; i++ {
		if fastEMA[i].Defined && slowEMA[i].Defined {
			if offset < 0 {
				offset = i
			}
			macd[i] = model.Val(fastEMA[i].V - slowEMA[i].V)
		}
	}
	if offset < 0 {
		return macd, signalLine, hist
	}

	defined := make([]float64, 0, n-offset)
	for i := offset; i < n; i++ {
		defined = append(defined, macd[i].V)
	}
	signalLine = emaOver(defined, signal, offset, n)

	for i := offset; i < n; i++ {
		if macd[i].Defined && signalLine[i].Defined {
			hist[i] = model.Val(macd[i].V - signalLine[i].V)
		}
	}
	return macd, signalLine, hist
}
