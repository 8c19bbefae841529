package spike

import (
	"github.com/shopspring/decimal"

	"spikeingest/internal/model"
)

// CandleMetrics is the per-candle computed shape from spec §4.4 step 1,
// shared by the base-threshold check and every Condition evaluation.
type CandleMetrics struct {
	Delta      decimal.Decimal // signed, percent
	AbsDelta   decimal.Decimal
	WickPct    decimal.Decimal
	VolumeUSDT decimal.Decimal
	Up         bool
}

var hundred = decimal.NewFromInt(100)

// ComputeMetrics implements S3: delta/upper_wick/lower_wick/wick_pct/
// volume_usdt, with wick_pct defined as 0 when high == low.
func ComputeMetrics(c model.Candle) CandleMetrics {
	delta := decimal.Zero
	if !c.Open.IsZero() {
		delta = c.Close.Sub(c.Open).Div(c.Open).Mul(hundred)
	}

	maxOC := decimal.Max(c.Open, c.Close)
	minOC := decimal.Min(c.Open, c.Close)
	upperWick := c.High.Sub(maxOC)
	lowerWick := minOC.Sub(c.Low)

	wickPct := decimal.Zero
	if !c.High.Equal(c.Low) {
		wickPct = decimal.Max(upperWick, lowerWick).Div(c.High.Sub(c.Low)).Mul(hundred)
	}

	return CandleMetrics{
		Delta:      delta,
		AbsDelta:   delta.Abs(),
		WickPct:    wickPct,
		VolumeUSDT: c.Volume.Mul(c.Close),
		Up:         c.Close.GreaterThanOrEqual(c.Open),
	}
}
