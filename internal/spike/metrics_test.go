package spike

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"spikeingest/internal/model"
)

func dec(s string) decimal.Decimal {
	d, _ := decimal.NewFromString(s)
	return d
}

func TestComputeMetrics_S3(t *testing.T) {
	c := model.Candle{
		Open: dec("100"), High: dec("120"), Low: dec("95"), Close: dec("118"), Volume: dec("10"),
	}
	m := ComputeMetrics(c)

	assert.True(t, m.Delta.Equal(dec("18")))
	assert.True(t, m.WickPct.Equal(dec("20")))
	assert.True(t, m.VolumeUSDT.Equal(dec("1180")))
}

func TestComputeMetrics_ZeroRangeWickPctIsZero(t *testing.T) {
	c := model.Candle{Open: dec("100"), High: dec("100"), Low: dec("100"), Close: dec("100"), Volume: dec("1")}
	m := ComputeMetrics(c)
	assert.True(t, m.WickPct.IsZero())
}

func TestSplitSymbol(t *testing.T) {
	base, quote := SplitSymbol("BTCUSDT")
	assert.Equal(t, "BTC", base)
	assert.Equal(t, "USDT", quote)
}
