// Package decode implements the Trade Decoder: one pure function per
// exchange mapping a raw WebSocket frame into canonical trades or
// pre-built candles. Parsing is defensive: any non-numeric or
// non-positive price/qty discards the record, and ts_ms must be
// positive, per SPEC_FULL.md §4.3.
package decode

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"spikeingest/internal/model"
)

// Result is the outcome of decoding one frame: zero or more trades,
// zero or more pre-built candles (for kline-style feeds), or an error.
type Result struct {
	Trades  []model.Trade
	Candles []model.Candle
}

// parseDecimal defensively converts a JSON-decoded value to decimal,
// accepting both string and float64 encodings (exchanges are
// inconsistent about this). Grounded on market/data.go's parseFloat.
func parseDecimal(v interface{}) (decimal.Decimal, bool) {
	switch t := v.(type) {
	case string:
		d, err := decimal.NewFromString(t)
		if err != nil {
			return decimal.Zero, false
		}
		return d, true
	case float64:
		return decimal.NewFromFloat(t), true
	case json.Number:
		d, err := decimal.NewFromString(t.String())
		if err != nil {
			return decimal.Zero, false
		}
		return d, true
	default:
		return decimal.Zero, false
	}
}

func positive(d decimal.Decimal) bool { return d.Sign() > 0 }

// Binance kline stream (spot, combined-stream data payload already
// unwrapped from {stream,data}):
// {"e":"kline","s":"BTCUSDT","k":{"t":...,"o":"..","h":"..","l":"..","c":"..","v":"..","x":bool}}
type binanceKlineFrame struct {
	Event  string `json:"e"`
	Symbol string `json:"s"`
	Kline  struct {
		StartTime int64  `json:"t"`
		Open      string `json:"o"`
		High      string `json:"h"`
		Low       string `json:"l"`
		Close     string `json:"c"`
		Volume    string `json:"v"`
		Closed    bool   `json:"x"`
	} `json:"k"`
}

// Binance decodes a spot combined-stream kline payload into a closed
// candle; Binance delivers already-built 1-second candles, so the
// Trade stage never runs for this exchange (spec.md §3).
func Binance(market model.Market, raw []byte) (Result, error) {
	var f binanceKlineFrame
	if err := json.Unmarshal(raw, &f); err != nil {
		return Result{}, fmt.Errorf("binance kline: %w", err)
	}
	if f.Event != "kline" || !f.Kline.Closed {
		return Result{}, nil
	}
	o, ok1 := parseDecimal(f.Kline.Open)
	h, ok2 := parseDecimal(f.Kline.High)
	l, ok3 := parseDecimal(f.Kline.Low)
	c, ok4 := parseDecimal(f.Kline.Close)
	v, ok5 := parseDecimal(f.Kline.Volume)
	if !ok1 || !ok2 || !ok3 || !ok4 || !ok5 || !positive(o) || !positive(h) || !positive(l) || !positive(c) || f.Kline.StartTime <= 0 {
		return Result{}, nil
	}
	return Result{Candles: []model.Candle{{
		TsMs: f.Kline.StartTime, Open: o, High: h, Low: l, Close: c, Volume: v,
		Exchange: model.ExchangeBinance, Market: market, Symbol: f.Symbol,
	}}}, nil
}

// Binance continuous-contract kline stream (linear, delivered raw over
// the /ws endpoint, no {stream,data} wrapper):
// {"e":"continuous_kline","ps":"BTCUSDT","ct":"PERPETUAL","k":{"t":...,"T":...,"o":"..","h":"..","l":"..","c":"..","q":"..","x":bool}}
// The close-time field ("T") is used as the candle's ts_ms, matching
// the closed-candle-arrival timestamp the Candle Builder expects; "q"
// is quote-asset volume, converted to base-asset volume by dividing by
// the close price.
type binanceContinuousKlineFrame struct {
	Event  string `json:"e"`
	Pair   string `json:"ps"`
	Kline  struct {
		CloseTime int64  `json:"T"`
		Open      string `json:"o"`
		High      string `json:"h"`
		Low       string `json:"l"`
		Close     string `json:"c"`
		QuoteVol  string `json:"q"`
		Closed    bool   `json:"x"`
	} `json:"k"`
}

func BinanceContinuousKline(raw []byte) (Result, error) {
	var f binanceContinuousKlineFrame
	if err := json.Unmarshal(raw, &f); err != nil {
		return Result{}, fmt.Errorf("binance continuous kline: %w", err)
	}
	if f.Event != "continuous_kline" || !f.Kline.Closed || f.Pair == "" {
		return Result{}, nil
	}
	o, ok1 := parseDecimal(f.Kline.Open)
	h, ok2 := parseDecimal(f.Kline.High)
	l, ok3 := parseDecimal(f.Kline.Low)
	c, ok4 := parseDecimal(f.Kline.Close)
	q, ok5 := parseDecimal(f.Kline.QuoteVol)
	if !ok1 || !ok2 || !ok3 || !ok4 || !ok5 || !positive(o) || !positive(h) || !positive(l) || !positive(c) || f.Kline.CloseTime <= 0 {
		return Result{}, nil
	}
	return Result{Candles: []model.Candle{{
		TsMs: f.Kline.CloseTime, Open: o, High: h, Low: l, Close: c, Volume: q.Div(c),
		Exchange: model.ExchangeBinance, Market: model.MarketLinear, Symbol: f.Pair,
	}}}, nil
}

// Bybit public trade stream payload: {"topic":"publicTrade.BTCUSDT","data":[{"s":"BTCUSDT","p":"100","v":"1","T":1700000000000}]}
type bybitTradeEnvelope struct {
	Topic string `json:"topic"`
	Data  []struct {
		Symbol string `json:"s"`
		Price  string `json:"p"`
		Size   string `json:"v"`
		TsMs   int64  `json:"T"`
	} `json:"data"`
}

func Bybit(market model.Market, raw []byte) (Result, error) {
	var env bybitTradeEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return Result{}, fmt.Errorf("bybit: %w", err)
	}
	if !strings.HasPrefix(env.Topic, "publicTrade.") {
		return Result{}, nil
	}
	var trades []model.Trade
	for _, d := range env.Data {
		price, ok1 := parseDecimal(d.Price)
		qty, ok2 := parseDecimal(d.Size)
		if !ok1 || !ok2 || !positive(price) || !positive(qty) || d.TsMs <= 0 {
			continue
		}
		trades = append(trades, model.Trade{
			Exchange: model.ExchangeBybit, Market: market, Symbol: d.Symbol,
			Price: price, Qty: qty, TsMs: d.TsMs,
		})
	}
	return Result{Trades: trades}, nil
}

// Bitget trade stream: {"action":"update","arg":{"instType":"SPOT","channel":"trade","instId":"BTCUSDT"},
//   "data":[{"ts":"1700000000000","price":"100","size":"1","side":"buy"}]}
// The first frame per symbol carries historical snapshot data and must
// be discarded by the caller (internal/pool tracks "seen" per symbol).
type bitgetTradeEnvelope struct {
	Action string `json:"action"`
	Arg    struct {
		InstID string `json:"instId"`
	} `json:"arg"`
	Data []struct {
		TsMs  string `json:"ts"`
		Price string `json:"price"`
		Size  string `json:"size"`
	} `json:"data"`
}

func Bitget(market model.Market, raw []byte) (Result, error) {
	var env bitgetTradeEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return Result{}, fmt.Errorf("bitget: %w", err)
	}
	var trades []model.Trade
	for _, d := range env.Data {
		tsMs, err := strconv.ParseInt(d.TsMs, 10, 64)
		if err != nil || tsMs <= 0 {
			continue
		}
		price, ok1 := parseDecimal(d.Price)
		qty, ok2 := parseDecimal(d.Size)
		if !ok1 || !ok2 || !positive(price) || !positive(qty) {
			continue
		}
		trades = append(trades, model.Trade{
			Exchange: model.ExchangeBitget, Market: market, Symbol: env.Arg.InstID,
			Price: price, Qty: qty, TsMs: tsMs,
		})
	}
	return Result{Trades: trades}, nil
}

// Gate.io trade stream: {"channel":"spot.trades","event":"update","result":{"currency_pair":"BTC_USDT","price":"100","amount":"1","create_time_ms":"1700000000000"}}
// Linear (futures) trade size is USDT and must be divided by price to
// obtain base-currency quantity.
type gateioTradeEnvelope struct {
	Channel string `json:"channel"`
	Event   string `json:"event"`
	Result  json.RawMessage `json:"result"`
}

type gateioSpotResult struct {
	Pair     string `json:"currency_pair"`
	Price    string `json:"price"`
	Amount   string `json:"amount"`
	CreateMs string `json:"create_time_ms"`
}

type gateioLinearResult struct {
	Contract string  `json:"contract"`
	Price    string  `json:"price"`
	Size     float64 `json:"size"`
	CreateMs float64 `json:"create_time_ms"`
}

func Gateio(market model.Market, raw []byte) (Result, error) {
	var env gateioTradeEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return Result{}, fmt.Errorf("gateio: %w", err)
	}
	if env.Event != "update" || env.Result == nil {
		return Result{}, nil
	}

	if market == model.MarketSpot {
		var r gateioSpotResult
		if err := json.Unmarshal(env.Result, &r); err != nil {
			return Result{}, nil
		}
		tsMs, err := strconv.ParseInt(r.CreateMs, 10, 64)
		if err != nil || tsMs <= 0 {
			return Result{}, nil
		}
		price, ok1 := parseDecimal(r.Price)
		qty, ok2 := parseDecimal(r.Amount)
		if !ok1 || !ok2 || !positive(price) || !positive(qty) {
			return Result{}, nil
		}
		return Result{Trades: []model.Trade{{
			Exchange: model.ExchangeGateio, Market: market, Symbol: r.Pair,
			Price: price, Qty: qty, TsMs: tsMs,
		}}}, nil
	}

	var r gateioLinearResult
	if err := json.Unmarshal(env.Result, &r); err != nil {
		return Result{}, nil
	}
	tsMs := int64(r.CreateMs)
	price, ok := parseDecimal(r.Price)
	if !ok || !positive(price) || tsMs <= 0 || r.Size <= 0 {
		return Result{}, nil
	}
	qty := decimal.NewFromFloat(r.Size).Div(price)
	return Result{Trades: []model.Trade{{
		Exchange: model.ExchangeGateio, Market: market, Symbol: r.Contract,
		Price: price, Qty: qty, TsMs: tsMs,
	}}}, nil
}

// Hyperliquid trade stream: {"channel":"trades","data":[{"coin":"BTC","side":"B","px":"100","sz":"1","time":1700000000000}]}
type hyperliquidTradeEnvelope struct {
	Channel string `json:"channel"`
	Data    []struct {
		Coin string `json:"coin"`
		Px   string `json:"px"`
		Sz   string `json:"sz"`
		Time int64  `json:"time"`
	} `json:"data"`
}

func Hyperliquid(market model.Market, raw []byte) (Result, error) {
	var env hyperliquidTradeEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return Result{}, fmt.Errorf("hyperliquid: %w", err)
	}
	if env.Channel != "trades" {
		return Result{}, nil
	}
	var trades []model.Trade
	for _, d := range env.Data {
		price, ok1 := parseDecimal(d.Px)
		qty, ok2 := parseDecimal(d.Sz)
		if !ok1 || !ok2 || !positive(price) || !positive(qty) || d.Time <= 0 {
			continue
		}
		trades = append(trades, model.Trade{
			Exchange: model.ExchangeHyperliquid, Market: market, Symbol: NormalizeHyperliquidSymbol(d.Coin),
			Price: price, Qty: qty, TsMs: d.Time,
		})
	}
	return Result{Trades: trades}, nil
}

// NormalizeHyperliquidSymbol maps the three shapes Hyperliquid uses for
// a coin name ("BTC", "BTC/USDC", "@index") into "{base}USDC", per
// spec §4.2. Idempotent per invariant 10.
func NormalizeHyperliquidSymbol(coin string) string {
	coin = strings.TrimPrefix(coin, "@")
	if idx := strings.Index(coin, "/"); idx >= 0 {
		coin = coin[:idx]
	}
	coin = strings.TrimSuffix(coin, "USDC")
	return coin + "USDC"
}
