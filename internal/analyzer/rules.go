package analyzer

import (
	"fmt"

	"signal-systemv1/internal/model"
)

// ruleVerdict is the outcome of one decision rule: a signal type plus a
// human-readable reason, or the zero value for "no setup".
type ruleVerdict struct {
	signalType model.SignalType
	reason     string
}

// crossoverRule emits on a strict two-bar MACD/signal-line crossover with
// RSI strictly inside (RSILower, RSIUpper). No previous snapshot, or a
// previous snapshot still in warm-up, means no crossover can be judged.
func (a *Analyzer) crossoverRule(cur, prev model.Snapshot) ruleVerdict {
	if !prev.MACD.Defined || !prev.MACDSignal.Defined {
		return ruleVerdict{}
	}

	rsi := cur.RSI.V
	inBand := rsi > a.cfg.RSILower && rsi < a.cfg.RSIUpper

	crossedUp := prev.MACD.V < prev.MACDSignal.V && cur.MACD.V > cur.MACDSignal.V
	crossedDown := prev.MACD.V > prev.MACDSignal.V && cur.MACD.V < cur.MACDSignal.V

	switch {
	case crossedUp && inBand:
		return ruleVerdict{
			signalType: model.SignalBuy,
			reason: fmt.Sprintf("MACD crossed above signal (%.6f > %.6f), RSI %.1f in band",
				cur.MACD.V, cur.MACDSignal.V, rsi),
		}
	case crossedDown && inBand:
		return ruleVerdict{
			signalType: model.SignalSell,
			reason: fmt.Sprintf("MACD crossed below signal (%.6f < %.6f), RSI %.1f in band",
				cur.MACD.V, cur.MACDSignal.V, rsi),
		}
	}
	return ruleVerdict{}
}

// rsiZoneWidth is the width of the oversold/overbought confirmation zones
// measured from the configured band edges.
const rsiZoneWidth = 10.0

// macdDeepFrac scales the bar close into the deep-zone cutoff. MACD is in
// price units, so the cutoff must be too: a MACD more than this fraction
// of price below zero is still in free fall, and crossing above the signal
// line down there is a dead-cat bounce, not a buy. The sell side mirrors
// the cutoff for blow-off tops.
const macdDeepFrac = 0.005

// scoringRule counts independent single-bar confirmations for each side
// and emits when a side reaches MinScore. On a tie neither side wins: a
// simultaneous BUY+SELL would be contradictory, so the bar is skipped.
//
// Buy confirmations:
//   - MACD positioned bullish: above its signal line and no deeper below
//     zero than macdDeepFrac of the bar close.
//   - RSI inside the oversold zone [RSILower, RSILower+10].
//   - Volume above its trailing moving average.
//
// Sell confirmations are symmetric.
func (a *Analyzer) scoringRule(cur model.Snapshot, bar model.Bar) ruleVerdict {
	macd, macdSig, rsi := cur.MACD.V, cur.MACDSignal.V, cur.RSI.V

	deep := macdDeepFrac * bar.Close
	buyScore, sellScore := 0, 0
	var buyWhy, sellWhy string

	if macd > macdSig && macd > -deep {
		buyScore++
		buyWhy += "macd bullish; "
	}
	if macd < macdSig && macd < deep {
		sellScore++
		sellWhy += "macd bearish; "
	}

	if rsi >= a.cfg.RSILower && rsi <= a.cfg.RSILower+rsiZoneWidth {
		buyScore++
		buyWhy += fmt.Sprintf("rsi %.1f oversold; ", rsi)
	}
	if rsi >= a.cfg.RSIUpper-rsiZoneWidth && rsi <= a.cfg.RSIUpper {
		sellScore++
		sellWhy += fmt.Sprintf("rsi %.1f overbought; ", rsi)
	}

	if cur.VolumeSMA.Defined && bar.Volume > cur.VolumeSMA.V {
		buyScore++
		sellScore++
		buyWhy += "volume above average; "
		sellWhy += "volume above average; "
	}

	buyQualifies := buyScore >= a.cfg.MinScore
	sellQualifies := sellScore >= a.cfg.MinScore

	switch {
	case buyQualifies && (!sellQualifies || buyScore > sellScore):
		return ruleVerdict{
			signalType: model.SignalBuy,
			reason:     fmt.Sprintf("confirmation score %d/%d: %s", buyScore, a.cfg.MinScore, buyWhy),
		}
	case sellQualifies && (!buyQualifies || sellScore > buyScore):
		return ruleVerdict{
			signalType: model.SignalSell,
			reason:     fmt.Sprintf("confirmation score %d/%d: %s", sellScore, a.cfg.MinScore, sellWhy),
		}
	}
	return ruleVerdict{}
}
