package notify

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"spikeingest/internal/model"
	"spikeingest/internal/spike"
)

func TestRender_S6(t *testing.T) {
	d := model.Detection{Candle: model.Candle{
		TsMs: 1000, Exchange: model.ExchangeBinance, Market: model.MarketSpot, Symbol: "BTCUSDT",
	}}
	m := spike.CandleMetrics{Delta: decimal.NewFromFloat(2.5), Up: true}

	got := Render("{symbol} {direction} {delta_formatted}", d, m, "")

	assert.Contains(t, got, "BTC-USDT")
	assert.Contains(t, got, "2.50%")
}
