package notify

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestRenderChart_ProducesValidPNG(t *testing.T) {
	ticks := []Tick{
		{Price: decimal.NewFromFloat(100), IsBuy: true, TsMs: 1},
		{Price: decimal.NewFromFloat(102), IsBuy: true, TsMs: 2},
		{Price: decimal.NewFromFloat(99), IsBuy: false, TsMs: 3},
	}
	png, err := RenderChart(ticks, decimal.NewFromFloat(100))
	assert.NoError(t, err)
	assert.True(t, len(png) > 8)
	assert.Equal(t, []byte{0x89, 'P', 'N', 'G'}, png[:4])
}

func TestRenderChart_EmptyTicks(t *testing.T) {
	png, err := RenderChart(nil, decimal.NewFromFloat(100))
	assert.NoError(t, err)
	assert.True(t, len(png) > 0)
}

func TestChartCache_PutGetRoundTrip(t *testing.T) {
	c := NewChartCache()
	_, ok := c.Get("k")
	assert.False(t, ok)

	c.Put("k", []byte{1, 2, 3})
	v, ok := c.Get("k")
	assert.True(t, ok)
	assert.Equal(t, []byte{1, 2, 3}, v)
}
