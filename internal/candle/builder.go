// Package candle implements the Candle Builder: one active candle per
// (exchange, market, symbol) key, promoted to a closed Candle either by
// a trade rolling the second or by a forced-close timer firing one
// second after the active candle's ts_ms (the start of its second).
package candle

import (
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"spikeingest/internal/errs"
	"spikeingest/internal/model"
)

const bucketMs = int64(1000)

// OnCandle is invoked for every candle the Builder emits, whether
// promoted by trade flow or by forced close.
type OnCandle func(model.Candle)

// OnError is invoked for malformed or stale input the Builder rejects.
type OnError func(error)

type active struct {
	mu      sync.Mutex
	candle  model.ActiveCandle
	timer   *time.Timer
	emitted bool // guards against a timer firing after promotion
}

// Builder aggregates trades into one-second candles, keyed by
// (exchange, market, symbol). It is safe for concurrent use by many
// producer goroutines, one per connection.
type Builder struct {
	onCandle OnCandle
	onError  OnError

	mu    sync.Mutex
	slots map[model.Key]*active
}

// New creates a Builder. onCandle and onError must be non-nil and must
// not block, since they are invoked from producer goroutines and from
// the forced-close timer goroutine.
func New(onCandle OnCandle, onError OnError) *Builder {
	return &Builder{
		onCandle: onCandle,
		onError:  onError,
		slots:    make(map[model.Key]*active),
	}
}

func bucketOf(tsMs int64) int64 {
	return tsMs - (tsMs % bucketMs)
}

// AddTrade folds one trade into the active candle for its key. It
// returns the promoted Candle when the trade rolls the active candle to
// a new second, or the zero Candle and false otherwise.
//
// Out-of-order trades (ts_ms older than the active candle's bucket) are
// merged into the current active candle if they fall within one bucket
// of it; trades older than that are dropped as DataError (see
// SPEC_FULL.md §9, Open Question decision 1).
func (b *Builder) AddTrade(exchange model.Exchange, market model.Market, symbol string, price, qty decimal.Decimal, tsMs int64) (model.Candle, bool) {
	if tsMs <= 0 || price.Sign() <= 0 || qty.Sign() <= 0 {
		b.onError(errs.NewDataError(nil, errs.Fields{Exchange: string(exchange), Market: string(market), Symbol: symbol}))
		return model.Candle{}, false
	}

	key := model.Key{Exchange: exchange, Market: market, Symbol: symbol}
	slot := b.slotFor(key)

	slot.mu.Lock()
	defer slot.mu.Unlock()

	bucket := bucketOf(tsMs)

	if !slot.candle.FirstTradeSeen {
		b.startLocked(slot, key, bucket, price, qty)
		return model.Candle{}, false
	}

	current := bucketOf(slot.candle.TsMs)
	switch {
	case bucket == current:
		mergeLocked(&slot.candle, price, qty)
		return model.Candle{}, false
	case bucket < current:
		if current-bucket <= bucketMs {
			mergeLocked(&slot.candle, price, qty)
			return model.Candle{}, false
		}
		b.onError(errs.NewDataError(nil, errs.Fields{Exchange: string(exchange), Market: string(market), Symbol: symbol}))
		return model.Candle{}, false
	default:
		promoted := slot.candle.Candle
		slot.emitted = true
		if slot.timer != nil {
			slot.timer.Stop()
		}
		b.startLocked(slot, key, bucket, price, qty)
		return promoted, true
	}
}

// AddCandle is the direct path for exchanges that deliver pre-built
// one-second candles (Binance kline stream); it bypasses trade
// aggregation and emits immediately.
func (b *Builder) AddCandle(c model.Candle) {
	if c.High.LessThan(c.Open) || c.High.LessThan(c.Close) || c.Low.GreaterThan(c.Open) || c.Low.GreaterThan(c.Close) || c.Volume.Sign() < 0 {
		b.onError(errs.NewDataError(nil, errs.Fields{Exchange: string(c.Exchange), Market: string(c.Market), Symbol: c.Symbol}))
		return
	}
	b.onCandle(c)
}

func (b *Builder) slotFor(key model.Key) *active {
	b.mu.Lock()
	defer b.mu.Unlock()
	s, ok := b.slots[key]
	if !ok {
		s = &active{}
		b.slots[key] = s
	}
	return s
}

// startLocked begins a new active candle at bucket, arming its
// forced-close timer. Caller must hold slot.mu.
func (b *Builder) startLocked(slot *active, key model.Key, bucket int64, price, qty decimal.Decimal) {
	slot.candle = model.ActiveCandle{
		Candle: model.Candle{
			TsMs: bucket, Open: price, High: price, Low: price, Close: price,
			Volume: qty, Exchange: key.Exchange, Market: key.Market, Symbol: key.Symbol,
		},
		FirstTradeSeen: true,
	}
	slot.emitted = false

	deadline := bucket + bucketMs
	delay := time.Duration(deadline-nowMs()) * time.Millisecond
	if delay < 0 {
		delay = 0
	}
	slot.timer = time.AfterFunc(delay, func() { b.forceClose(slot, key, bucket) })
}

func mergeLocked(c *model.ActiveCandle, price, qty decimal.Decimal) {
	if price.GreaterThan(c.High) {
		c.High = price
	}
	if price.LessThan(c.Low) {
		c.Low = price
	}
	c.Close = price
	c.Volume = c.Volume.Add(qty)
}

// forceClose promotes the active candle for key if it is still the one
// started at bucket and has not already been promoted by trade flow.
// Idempotent: a stray timer firing after promotion is a no-op.
func (b *Builder) forceClose(slot *active, key model.Key, bucket int64) {
	slot.mu.Lock()
	if slot.emitted || !slot.candle.FirstTradeSeen || bucketOf(slot.candle.TsMs) != bucket {
		slot.mu.Unlock()
		return
	}
	promoted := slot.candle.Candle
	slot.emitted = true
	slot.mu.Unlock()

	b.onCandle(promoted)
}

// nowMs is a var so tests can monkeypatch it (gomonkey) without
// touching the real time package, matching the forced-close timer's
// need for deterministic tests.
var nowMs = func() int64 {
	return time.Now().UnixMilli()
}
