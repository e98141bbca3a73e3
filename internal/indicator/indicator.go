// Package indicator provides technical indicator calculations over bar data.
//
// All functions are pure series transforms: an ordered slice of closes (or
// volumes) in, an equally-long slice of model.Value out, aligned index by
// index with the input. A value is undefined until the indicator's warm-up
// window is filled, never zero and never an error. Short input is not an
// error either: the result is simply all-undefined.
package indicator

import "signal-systemv1/internal/model"

// Params groups the periods used to derive one snapshot series.
// Validation happens at config-acceptance time (see internal/engine);
// functions here assume positive periods.
type Params struct {
	SMAPeriod    int // trailing close SMA, context only
	EMAPeriod    int // trailing close EMA, context only
	RSIPeriod    int
	MACDFast     int
	MACDSlow     int
	MACDSignal   int
	VolumePeriod int // trailing volume SMA for confirmation scoring
}

// DefaultParams are the conventional periods (12/26/9 MACD, RSI 14).
func DefaultParams() Params {
	return Params{
		SMAPeriod:    20,
		EMAPeriod:    9,
		RSIPeriod:    14,
		MACDFast:     12,
		MACDSlow:     26,
		MACDSignal:   9,
		VolumePeriod: 20,
	}
}

// undefinedSeries returns an all-undefined series of length n.
func undefinedSeries(n int) []model.Value {
	return make([]model.Value, n)
}
