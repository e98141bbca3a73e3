package indicator

import (
	"math"
	"math/rand"
	"testing"

	"signal-systemv1/internal/model"
)

// ────────────────────────────────────────────────────────────
// Helpers
// ────────────────────────────────────────────────────────────

func assertClose(t *testing.T, label string, got, want, tol float64) {
	t.Helper()
	if math.Abs(got-want) > tol {
		t.Errorf("%s: got %.6f, want %.6f (tol=%.6f, diff=%.6f)", label, got, want, tol, math.Abs(got-want))
	}
}

func assertUndefined(t *testing.T, label string, v model.Value) {
	t.Helper()
	if v.Defined {
		t.Errorf("%s: expected undefined, got %.6f", label, v.V)
	}
}

// warmupBoundary checks the monotonic warm-up property: every index before
// firstDefined is undefined, every index at/after it is defined, no gaps.
func warmupBoundary(t *testing.T, label string, series []model.Value, firstDefined int) {
	t.Helper()
	for i, v := range series {
		if i < firstDefined && v.Defined {
			t.Errorf("%s: index %d defined before warm-up boundary %d", label, i, firstDefined)
		}
		if i >= firstDefined && !v.Defined {
			t.Errorf("%s: index %d undefined after warm-up boundary %d", label, i, firstDefined)
		}
	}
}

// ────────────────────────────────────────────────────────────
// SMA
// ────────────────────────────────────────────────────────────

func TestSMA_Correctness_Period3(t *testing.T) {
	// Hand-calculated SMA(3):
	// Prices: 100, 102, 104, 103, 105
	// index 2: (100+102+104)/3 = 102.0
	// index 3: (102+104+103)/3 = 103.0
	// index 4: (104+103+105)/3 = 104.0
	out := SMA([]float64{100, 102, 104, 103, 105}, 3)

	warmupBoundary(t, "SMA(3)", out, 2)
	assertClose(t, "SMA(3)[2]", out[2].V, 102.0, 0.0001)
	assertClose(t, "SMA(3)[3]", out[3].V, 103.0, 0.0001)
	assertClose(t, "SMA(3)[4]", out[4].V, 104.0, 0.0001)
}

func TestSMA_ShortInput_AllUndefined(t *testing.T) {
	out := SMA([]float64{100, 102}, 5)
	if len(out) != 2 {
		t.Fatalf("expected output length 2, got %d", len(out))
	}
	assertUndefined(t, "SMA short[0]", out[0])
	assertUndefined(t, "SMA short[1]", out[1])
}

func TestSMA_RunningSum_MatchesNaive(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	values := make([]float64, 400)
	for i := range values {
		values[i] = 100 + rng.Float64()*10
	}

	const period = 14
	out := SMA(values, period)
	for i := period - 1; i < len(values); i++ {
		sum := 0.0
		for j := i - period + 1; j <= i; j++ {
			sum += values[j]
		}
		assertClose(t, "SMA vs naive", out[i].V, sum/period, 1e-9)
	}
}

// ────────────────────────────────────────────────────────────
// EMA
// ────────────────────────────────────────────────────────────

func TestEMA_Correctness_Period3(t *testing.T) {
	// EMA(3): k = 2/(3+1) = 0.5
	// Prices: 100, 102, 104, 103, 105
	// index 2: SMA seed = (100+102+104)/3 = 102.0
	// index 3: 103*0.5 + 102.0*0.5 = 102.5
	// index 4: 105*0.5 + 102.5*0.5 = 103.75
	out := EMA([]float64{100, 102, 104, 103, 105}, 3)

	warmupBoundary(t, "EMA(3)", out, 2)
	assertClose(t, "EMA(3) seed", out[2].V, 102.0, 0.0001)
	assertClose(t, "EMA(3)[3]", out[3].V, 102.5, 0.0001)
	assertClose(t, "EMA(3)[4]", out[4].V, 103.75, 0.0001)
}

func TestEMA_RecursionHolds(t *testing.T) {
	rng := rand.New(rand.NewSource(11))
	values := make([]float64, 300)
	for i := range values {
		values[i] = 50 + rng.Float64()*5
	}

	const period = 9
	k := 2.0 / float64(period+1)
	out := EMA(values, period)

	warmupBoundary(t, "EMA(9)", out, period-1)
	for i := period; i < len(values); i++ {
		want := values[i]*k + out[i-1].V*(1-k)
		assertClose(t, "EMA recursion", out[i].V, want, 1e-9)
	}
}

func TestEMA_ShortInput_AllUndefined(t *testing.T) {
	out := EMA([]float64{1, 2, 3}, 10)
	for i, v := range out {
		if v.Defined {
			t.Errorf("EMA short input: index %d unexpectedly defined", i)
		}
	}
}

// ────────────────────────────────────────────────────────────
// RSI
// ────────────────────────────────────────────────────────────

func TestRSI_Correctness_Period3(t *testing.T) {
	// Closes: 10, 11, 12, 11, 12
	// Deltas:   +1, +1, -1, +1
	// Seed over first 3 deltas: avgGain = 2/3, avgLoss = 1/3
	// index 3: RS = 2 → RSI = 100 - 100/3 = 66.6667
	// index 4 (gain 1): avgGain = (2/3*2 + 1)/3 = 7/9, avgLoss = (1/3*2)/3 = 2/9
	//            RS = 3.5 → RSI = 100 - 100/4.5 = 77.7778
	out := RSI([]float64{10, 11, 12, 11, 12}, 3)

	warmupBoundary(t, "RSI(3)", out, 3)
	assertClose(t, "RSI(3)[3]", out[3].V, 66.6667, 0.001)
	assertClose(t, "RSI(3)[4]", out[4].V, 77.7778, 0.001)
}

func TestRSI_AllGains_Is100(t *testing.T) {
	// Strictly rising closes: avgLoss stays 0, RSI pegs at 100 via the
	// explicit zero-loss branch.
	closes := []float64{1, 2, 3, 4, 5, 6, 7, 8}
	out := RSI(closes, 4)
	for i := 4; i < len(out); i++ {
		assertClose(t, "RSI all-gains", out[i].V, 100.0, 1e-9)
	}
}

func TestRSI_Bounds(t *testing.T) {
	rng := rand.New(rand.NewSource(99))
	closes := make([]float64, 1000)
	price := 100.0
	for i := range closes {
		price += (rng.Float64() - 0.5) * 4
		closes[i] = price
	}

	out := RSI(closes, 14)
	warmupBoundary(t, "RSI(14)", out, 14)
	for i, v := range out {
		if !v.Defined {
			continue
		}
		if v.V < 0 || v.V > 100 {
			t.Errorf("RSI[%d] = %.6f out of [0,100]", i, v.V)
		}
	}
}

func TestRSI_ShortInput_AllUndefined(t *testing.T) {
	// period+1 closes are needed for the first value; period closes are not enough.
	out := RSI([]float64{1, 2, 3}, 3)
	for i, v := range out {
		if v.Defined {
			t.Errorf("RSI short input: index %d unexpectedly defined", i)
		}
	}
}

// ────────────────────────────────────────────────────────────
// MACD
// ────────────────────────────────────────────────────────────

func TestMACD_Alignment_And_Warmup(t *testing.T) {
	rng := rand.New(rand.NewSource(3))
	closes := make([]float64, 120)
	price := 1.0
	for i := range closes {
		price += (rng.Float64() - 0.5) * 0.01
		closes[i] = price
	}

	const fast, slow, signal = 12, 26, 9
	macd, sig, hist := MACD(closes, fast, slow, signal)

	if len(macd) != len(closes) || len(sig) != len(closes) || len(hist) != len(closes) {
		t.Fatalf("output series not aligned with input length %d", len(closes))
	}

	// MACD line defined from slow-1; signal line needs `signal` defined
	// MACD values on top of that.
	warmupBoundary(t, "MACD line", macd, slow-1)
	warmupBoundary(t, "MACD signal", sig, slow-1+signal-1)
	warmupBoundary(t, "MACD hist", hist, slow-1+signal-1)
}

func TestMACD_HistogramIdentity(t *testing.T) {
	rng := rand.New(rand.NewSource(5))
	closes := make([]float64, 200)
	price := 42.0
	for i := range closes {
		price *= 1 + (rng.Float64()-0.5)*0.02
		closes[i] = price
	}

	macd, sig, hist := MACD(closes, 12, 26, 9)
	for i := range closes {
		if macd[i].Defined && sig[i].Defined {
			if !hist[i].Defined {
				t.Errorf("hist[%d] undefined while macd and signal are defined", i)
				continue
			}
			if hist[i].V != macd[i].V-sig[i].V {
				t.Errorf("hist[%d] = %v, want exactly macd-signal = %v", i, hist[i].V, macd[i].V-sig[i].V)
			}
		} else if hist[i].Defined {
			t.Errorf("hist[%d] defined while macd or signal is not", i)
		}
	}
}

func TestMACD_ShortInput_AllUndefined(t *testing.T) {
	macd, sig, hist := MACD([]float64{1, 2, 3, 4, 5}, 12, 26, 9)
	for i := range macd {
		assertUndefined(t, "macd short", macd[i])
		assertUndefined(t, "signal short", sig[i])
		assertUndefined(t, "hist short", hist[i])
	}
}
