package candle

import (
	"sync"
	"testing"
	"time"

	"github.com/agiledragon/gomonkey/v2"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"spikeingest/internal/model"
)

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

// S1: candle from a sequence of trades within and across seconds.
func TestAddTrade_S1_CandleFromTrades(t *testing.T) {
	var mu sync.Mutex
	var emitted []model.Candle
	b := New(func(c model.Candle) {
		mu.Lock()
		defer mu.Unlock()
		emitted = append(emitted, c)
	}, func(error) {})

	b.AddTrade(model.ExchangeBinance, model.MarketSpot, "BTCUSDT", dec("100"), dec("1"), 1_000)
	b.AddTrade(model.ExchangeBinance, model.MarketSpot, "BTCUSDT", dec("110"), dec("2"), 1_400)
	b.AddTrade(model.ExchangeBinance, model.MarketSpot, "BTCUSDT", dec("90"), dec("1"), 1_900)
	c, ok := b.AddTrade(model.ExchangeBinance, model.MarketSpot, "BTCUSDT", dec("95"), dec("1"), 2_050)

	require.True(t, ok)
	assert.Equal(t, int64(1_000), c.TsMs)
	assert.True(t, dec("100").Equal(c.Open))
	assert.True(t, dec("110").Equal(c.High))
	assert.True(t, dec("90").Equal(c.Low))
	assert.True(t, dec("90").Equal(c.Close))
	assert.True(t, dec("4").Equal(c.Volume))
}

// S2: forced close emits a candle for a sole trade, with no further
// trades. On the real clock the trade's deadline (6_000 ms since epoch)
// is long past, so the timer fires at once.
func TestAddTrade_S2_ForcedClose(t *testing.T) {
	done := make(chan model.Candle, 1)
	b := New(func(c model.Candle) { done <- c }, func(error) {})

	b.AddTrade(model.ExchangeBinance, model.MarketSpot, "ETHUSDT", dec("50"), dec("1"), 5_000)

	select {
	case c := <-done:
		assert.Equal(t, int64(5_000), c.TsMs)
		assert.True(t, dec("50").Equal(c.Open))
		assert.True(t, dec("50").Equal(c.High))
		assert.True(t, dec("50").Equal(c.Low))
		assert.True(t, dec("50").Equal(c.Close))
		assert.True(t, dec("1").Equal(c.Volume))
	case <-time.After(2 * time.Second):
		t.Fatal("forced close did not fire")
	}
}

// S2b: same forced-close path as S2, but on a fixed clock: nowMs is
// patched to 10_000, so the candle's deadline (6_000) is already past
// and the forced-close timer must fire at delay 0.
func TestAddTrade_S2b_ForcedCloseFiresImmediatelyWhenDeadlineAlreadyPassed(t *testing.T) {
	patches := gomonkey.ApplyGlobalVar(&nowMs, func() int64 { return 10_000 })
	defer patches.Reset()

	done := make(chan model.Candle, 1)
	b := New(func(c model.Candle) { done <- c }, func(error) {})

	b.AddTrade(model.ExchangeBinance, model.MarketSpot, "ETHUSDT", dec("50"), dec("1"), 5_000)

	select {
	case c := <-done:
		assert.Equal(t, int64(5_000), c.TsMs)
	case <-time.After(200 * time.Millisecond):
		t.Fatal("forced close did not fire promptly with an already-past deadline")
	}
}

func TestAddTrade_InvariantOneActiveCandlePerKey(t *testing.T) {
	b := New(func(model.Candle) {}, func(error) {})
	b.AddTrade(model.ExchangeBybit, model.MarketLinear, "BTCUSDT", dec("1"), dec("1"), 1_000)
	b.mu.Lock()
	n := len(b.slots)
	b.mu.Unlock()
	assert.Equal(t, 1, n)
}

func TestAddTrade_RejectsNonPositive(t *testing.T) {
	var gotErr bool
	b := New(func(model.Candle) {}, func(error) { gotErr = true })
	b.AddTrade(model.ExchangeBinance, model.MarketSpot, "BTCUSDT", dec("0"), dec("1"), 1_000)
	assert.True(t, gotErr)
}

func TestAddCandle_DirectPath(t *testing.T) {
	var got model.Candle
	b := New(func(c model.Candle) { got = c }, func(error) {})
	c := model.Candle{
		TsMs: 1000, Open: dec("1"), High: dec("2"), Low: dec("1"), Close: dec("1.5"),
		Volume: dec("10"), Exchange: model.ExchangeBinance, Market: model.MarketLinear, Symbol: "BTCUSDT",
	}
	b.AddCandle(c)
	assert.Equal(t, c.TsMs, got.TsMs)
}
