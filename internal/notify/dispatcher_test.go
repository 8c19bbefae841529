package notify

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"spikeingest/internal/model"
	"spikeingest/internal/spike"
)

func TestSelectTemplate_PrefersMatchedStrategyTemplate(t *testing.T) {
	d := &Dispatcher{
		lookupOptions: func(userID int64) (spike.Options, bool) {
			return spike.Options{
				MessageTemplate: "default {symbol}",
				ConditionalTemplates: []spike.Strategy{
					{Name: "pump", Enabled: true, MessageTemplate: "PUMP {symbol}"},
				},
			}, true
		},
	}
	det := model.Detection{
		Candle:  model.Candle{Exchange: model.ExchangeBinance, Market: model.MarketSpot, Symbol: "BTCUSDT"},
		Matched: []string{"pump"},
	}
	text, _ := d.selectTemplate(det, spike.CandleMetrics{Delta: decimal.NewFromInt(3)})
	assert.Contains(t, text, "PUMP")
}

func TestSelectTemplate_FallsBackToUserDefault(t *testing.T) {
	d := &Dispatcher{
		lookupOptions: func(userID int64) (spike.Options, bool) {
			return spike.Options{MessageTemplate: "default {symbol}"}, true
		},
	}
	det := model.Detection{
		Candle:  model.Candle{Exchange: model.ExchangeBinance, Market: model.MarketSpot, Symbol: "BTCUSDT"},
		Matched: nil,
	}
	text, _ := d.selectTemplate(det, spike.CandleMetrics{})
	assert.Contains(t, text, "default")
}

func TestSelectTemplate_FallsBackToFixedMessage(t *testing.T) {
	d := &Dispatcher{
		lookupOptions: func(userID int64) (spike.Options, bool) { return spike.Options{}, false },
	}
	det := model.Detection{Candle: model.Candle{Exchange: model.ExchangeBinance, Market: model.MarketSpot, Symbol: "ETHUSDT"}}
	text, chart := d.selectTemplate(det, spike.CandleMetrics{})
	assert.False(t, chart)
	assert.Contains(t, text, "ETH-USDT")
}

func TestPairWantsChart(t *testing.T) {
	opts := spike.Options{PairSettings: map[string]spike.PairSettings{
		spike.PairKey("binance", "spot", "USDT"): {SendChart: true},
	}}
	c := model.Candle{Exchange: model.ExchangeBinance, Market: model.MarketSpot, Symbol: "BTCUSDT"}
	assert.True(t, pairWantsChart(opts, c))

	c2 := model.Candle{Exchange: model.ExchangeBybit, Market: model.MarketSpot, Symbol: "BTCUSDT"}
	assert.False(t, pairWantsChart(opts, c2))
}
