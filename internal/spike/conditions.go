package spike

import (
	"strings"

	"spikeingest/internal/model"
)

// conditionMatch evaluates every condition type except "series", which
// needs the caller's series history and is handled by evaluateStrategy.
func conditionMatch(cond Condition, c model.Candle, m CandleMetrics) bool {
	switch cond.Type {
	case "delta":
		if cond.ValueMin != nil && m.AbsDelta.InexactFloat64() < *cond.ValueMin {
			return false
		}
		if cond.ValueMax != nil && m.AbsDelta.InexactFloat64() > *cond.ValueMax {
			return false
		}
		return true
	case "volume":
		return cond.Value != nil && m.VolumeUSDT.InexactFloat64() >= *cond.Value
	case "wick_pct":
		return cond.ValueMin != nil && m.WickPct.InexactFloat64() >= *cond.ValueMin
	case "direction":
		if cond.Direction == "up" {
			return m.Up
		}
		if cond.Direction == "down" {
			return !m.Up
		}
		return false
	case "symbol":
		return cond.Symbol != "" && NormalizeBase(cond.Symbol) == NormalizeBase(c.Symbol)
	case "exchange_market":
		return matchesExchangeMarket(cond, c)
	default:
		// Unknown condition types fail closed: the strategy cannot match
		// on a condition it doesn't understand.
		return false
	}
}

func matchesExchangeMarket(cond Condition, c model.Candle) bool {
	want := cond.Exchange + "_" + cond.Market
	got := string(c.Exchange) + "_" + string(c.Market)
	// "linear" is equivalent to "futures" on the user-facing side.
	want = strings.ReplaceAll(strings.ToLower(want), "futures", "linear")
	return want == got
}

// evaluateStrategy returns whether the Strategy matches this candle for
// this user, recording into series as a side effect for any
// non-series conditions that passed (spec §4.4: series history is
// filtered by the strategy's own non-series conditions).
func evaluateStrategy(strat Strategy, userSeries map[int]*Series, stratIdx int, c model.Candle, m CandleMetrics) bool {
	var seriesConds []Condition
	nonSeriesMatch := true
	for _, cond := range strat.Conditions {
		if cond.Type == "series" {
			seriesConds = append(seriesConds, cond)
			continue
		}
		if !conditionMatch(cond, c, m) {
			nonSeriesMatch = false
		}
	}
	if !nonSeriesMatch {
		return false
	}
	if len(seriesConds) == 0 {
		return true
	}

	s := userSeries[stratIdx]
	if s == nil {
		s = NewSeries()
		userSeries[stratIdx] = s
	}

	maxWindowMs := int64(0)
	for _, sc := range seriesConds {
		w := int64(sc.TimeWindowSeconds) * 1000
		if w > maxWindowMs {
			maxWindowMs = w
		}
	}
	s.Record(c.Symbol, c.TsMs, maxWindowMs)

	for _, sc := range seriesConds {
		windowMs := int64(sc.TimeWindowSeconds) * 1000
		if s.CountSince(c.Symbol, c.TsMs, windowMs) < sc.Count {
			return false
		}
	}
	return true
}

// baseThresholdsMatch implements spec §4.4 step 3.
func baseThresholdsMatch(p PairSettings, m CandleMetrics) bool {
	return m.AbsDelta.InexactFloat64() >= p.DeltaMin &&
		m.VolumeUSDT.InexactFloat64() >= p.VolumeMin &&
		m.WickPct.InexactFloat64() >= p.WickMin
}
