// Package spike implements the Spike Detector (spec §4.4): per closed
// candle, it computes delta/wick/volume metrics, loads each enrolled
// user's cached options, evaluates base thresholds and Strategies, and
// emits a Detection for each user that matches.
//
// Grounded on other_examples' alert-engine.go: a symbol-keyed user
// index refreshed independently of the hot path, evaluated inline as
// price/candle events arrive, with a trigger callback decoupled from
// persistence.
package spike

import (
	"sync"

	"spikeingest/internal/model"
)

// UserIndex resolves which enrolled user ids should be evaluated for a
// given exchange, keeping the detector from scanning every user on
// every candle. Backed by the Alert Store's users table.
type UserIndex interface {
	EnrolledUserIDs(exchange model.Exchange) []int64
}

// OnDetection is invoked once per matching (candle, user) pair.
type OnDetection func(model.Detection)

// Detector is the per-candle evaluation pipeline.
type Detector struct {
	cache   *OptionsCache
	users   UserIndex
	onMatch OnDetection

	seriesLock sync.Mutex
}

func NewDetector(cache *OptionsCache, users UserIndex, onMatch OnDetection) *Detector {
	return &Detector{cache: cache, users: users, onMatch: onMatch}
}

// Invalidate forwards to the options cache; exposed so the HTTP layer's
// cache-invalidate IPC can reach the detector without importing spike's
// internals directly.
func (d *Detector) Invalidate(userID int64) { d.cache.Invalidate(userID) }

// LookupOptions exposes a user's cached, parsed options to the
// Notification Dispatcher, so template selection reuses the same
// cache instead of loading options a second time.
func (d *Detector) LookupOptions(userID int64) (Options, bool) {
	entry, ok := d.cache.Get(userID)
	if !ok {
		return Options{}, false
	}
	return entry.Options(), true
}

// HandleCandle runs the full per-candle pipeline for every enrolled
// user of the candle's exchange. Safe to call concurrently for
// different candles; per-user state is internally synchronized.
func (d *Detector) HandleCandle(c model.Candle) {
	metrics := ComputeMetrics(c)
	_, quote := SplitSymbol(c.Symbol)

	for _, userID := range d.users.EnrolledUserIDs(c.Exchange) {
		entry, ok := d.cache.Get(userID)
		if !ok {
			continue
		}
		if enabled, set := entry.options.Exchanges[string(c.Exchange)]; set && !enabled {
			continue
		}

		detection, matched := d.evaluateUser(userID, entry, c, metrics, quote)
		if matched {
			d.onMatch(detection)
		}
	}
}

func (d *Detector) evaluateUser(userID int64, entry *userEntry, c model.Candle, metrics CandleMetrics, quote string) (model.Detection, bool) {
	opts := entry.options

	var enabledStrategies []int
	for i, s := range opts.ConditionalTemplates {
		if s.Enabled {
			enabledStrategies = append(enabledStrategies, i)
		}
	}

	var matchedNames []string

	if len(enabledStrategies) == 0 {
		pair, ok := opts.PairSettings[PairKey(string(c.Exchange), string(c.Market), quote)]
		if !ok || !baseThresholdsMatch(pair, metrics) {
			return model.Detection{}, false
		}
	} else {
		anyMatched := false
		d.seriesLock.Lock()
		for _, idx := range enabledStrategies {
			strat := opts.ConditionalTemplates[idx]
			if strat.UseGlobalFilters {
				pair, ok := opts.PairSettings[PairKey(string(c.Exchange), string(c.Market), quote)]
				if !ok || !baseThresholdsMatch(pair, metrics) {
					continue
				}
			}
			if evaluateStrategy(strat, entry.series, idx, c, metrics) {
				anyMatched = true
				matchedNames = append(matchedNames, strat.Name)
			}
		}
		d.seriesLock.Unlock()
		if !anyMatched {
			return model.Detection{}, false
		}
	}

	return model.Detection{
		Candle:     c,
		UserID:     userID,
		Delta:      metrics.Delta,
		WickPct:    metrics.WickPct,
		VolumeUSDT: metrics.VolumeUSDT,
		Matched:    matchedNames,
	}, true
}
