package spike

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"spikeingest/internal/model"
)

type staticUserIndex struct{ ids []int64 }

func (u staticUserIndex) EnrolledUserIDs(model.Exchange) []int64 { return u.ids }

func candle(symbol string, tsMs int64, volumeUSDT float64) model.Candle {
	// open/close/high/low chosen so delta and wick_pct are both above
	// any threshold used in these tests; volume is tuned via Close*Volume.
	return model.Candle{
		TsMs: tsMs, Exchange: model.ExchangeBinance, Market: model.MarketSpot, Symbol: symbol,
		Open: dec("100"), High: dec("110"), Low: dec("90"), Close: dec("105"),
		Volume: decimal.NewFromFloat(volumeUSDT / 105.0),
	}
}

func TestDetector_BaseThresholdsOnly(t *testing.T) {
	optionsJSON := `{
		"exchanges": {"binance": true},
		"pairSettings": {"binance_spot_USDT": {"deltaMin": 1, "volumeMin": 100, "wickMin": 1}}
	}`
	var fetched bool
	loader := func(userID int64) (string, bool, error) {
		fetched = true
		return optionsJSON, true, nil
	}
	cache := NewOptionsCache(time.Minute, loader)
	var got []model.Detection
	d := NewDetector(cache, staticUserIndex{ids: []int64{1}}, func(det model.Detection) { got = append(got, det) })

	d.HandleCandle(candle("BTCUSDT", 1000, 5000))

	require.True(t, fetched)
	require.Len(t, got, 1)
	assert.Equal(t, int64(1), got[0].UserID)
}

func TestDetector_BelowBaseThresholdsNoDetection(t *testing.T) {
	optionsJSON := `{
		"exchanges": {"binance": true},
		"pairSettings": {"binance_spot_USDT": {"deltaMin": 50, "volumeMin": 100, "wickMin": 1}}
	}`
	loader := func(userID int64) (string, bool, error) { return optionsJSON, true, nil }
	cache := NewOptionsCache(time.Minute, loader)
	var got []model.Detection
	d := NewDetector(cache, staticUserIndex{ids: []int64{1}}, func(det model.Detection) { got = append(got, det) })

	d.HandleCandle(candle("BTCUSDT", 1000, 5000))

	assert.Empty(t, got)
}

func TestDetector_DisabledExchangeSkipsUser(t *testing.T) {
	optionsJSON := `{"exchanges": {"binance": false}, "pairSettings": {}}`
	loader := func(userID int64) (string, bool, error) { return optionsJSON, true, nil }
	cache := NewOptionsCache(time.Minute, loader)
	var got []model.Detection
	d := NewDetector(cache, staticUserIndex{ids: []int64{1}}, func(det model.Detection) { got = append(got, det) })

	d.HandleCandle(candle("BTCUSDT", 1000, 5000))

	assert.Empty(t, got)
}

func TestDetector_UseGlobalFiltersFalseBypassesBaseThresholds(t *testing.T) {
	// Base thresholds are unreachable (deltaMin 1000), but the strategy
	// has useGlobalFilters=false with its own low volume condition.
	optionsJSON := `{
		"exchanges": {"binance": true},
		"pairSettings": {"binance_spot_USDT": {"deltaMin": 1000, "volumeMin": 1000000, "wickMin": 1000}},
		"conditionalTemplates": [
			{"name": "custom", "enabled": true, "useGlobalFilters": false,
			 "conditions": [{"type": "volume", "value": 100}]}
		]
	}`
	loader := func(userID int64) (string, bool, error) { return optionsJSON, true, nil }
	cache := NewOptionsCache(time.Minute, loader)
	var got []model.Detection
	d := NewDetector(cache, staticUserIndex{ids: []int64{1}}, func(det model.Detection) { got = append(got, det) })

	d.HandleCandle(candle("BTCUSDT", 1000, 5000))

	require.Len(t, got, 1)
	assert.Equal(t, []string{"custom"}, got[0].Matched)
}

func TestDetector_SeriesCondition_S5(t *testing.T) {
	optionsJSON := `{
		"exchanges": {"binance": true},
		"pairSettings": {"binance_spot_USDT": {"deltaMin": 0, "volumeMin": 0, "wickMin": 0}},
		"conditionalTemplates": [
			{"name": "series-strat", "enabled": true, "useGlobalFilters": false,
			 "conditions": [
			   {"type": "volume", "value": 1000},
			   {"type": "series", "count": 3, "timeWindowSeconds": 60}
			 ]}
		]
	}`
	loader := func(userID int64) (string, bool, error) { return optionsJSON, true, nil }
	cache := NewOptionsCache(time.Minute, loader)
	var got []model.Detection
	d := NewDetector(cache, staticUserIndex{ids: []int64{1}}, func(det model.Detection) { got = append(got, det) })

	d.HandleCandle(candle("BTCUSDT", 0, 1500))
	assert.Empty(t, got)

	d.HandleCandle(candle("BTCUSDT", 20_000, 1500))
	assert.Empty(t, got)

	d.HandleCandle(candle("BTCUSDT", 40_000, 1500))
	require.Len(t, got, 1)
}

func TestDetector_CacheInvalidateForcesReload(t *testing.T) {
	calls := 0
	loader := func(userID int64) (string, bool, error) {
		calls++
		return `{"exchanges":{"binance":true},"pairSettings":{"binance_spot_USDT":{"deltaMin":1,"volumeMin":1,"wickMin":1}}}`, true, nil
	}
	cache := NewOptionsCache(time.Hour, loader)
	d := NewDetector(cache, staticUserIndex{ids: []int64{1}}, func(model.Detection) {})

	d.HandleCandle(candle("BTCUSDT", 1000, 5000))
	d.HandleCandle(candle("BTCUSDT", 2000, 5000))
	assert.Equal(t, 1, calls)

	d.Invalidate(1)
	d.HandleCandle(candle("BTCUSDT", 3000, 5000))
	assert.Equal(t, 2, calls)
}
