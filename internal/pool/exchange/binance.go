// Package exchange provides the five per-exchange pool.Driver
// implementations: wire formats vary, the state machine in
// internal/pool does not.
package exchange

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"spikeingest/internal/decode"
	"spikeingest/internal/model"
)

// Binance adapts the combined-streams subscribe/unsubscribe protocol
// from the teacher's market/combined_streams.go (subscribeStreams,
// handleBinanceMessage) to the pool.Driver interface.
type Binance struct{}

func (Binance) Exchange() model.Exchange { return model.ExchangeBinance }

// Binance already delivers pre-built 1-second candles (spec.md §3), so
// this driver subscribes to kline streams rather than @trade: spot
// combined streams deliver "{symbol}@kline_1s" over the /stream
// endpoint; linear (continuous perpetual contracts) instead delivers
// "{symbol}_perpetual@continuousKline_1s" over the raw /ws endpoint,
// matching the original implementation's _symbol_to_stream/ws_handler
// split between the two endpoints.
func (Binance) DialURL(market model.Market) string {
	if market == model.MarketLinear {
		return "wss://fstream.binance.com/ws"
	}
	return "wss://stream.binance.com:9443/stream"
}

func streamName(market model.Market, symbol string) string {
	lower := strings.ToLower(symbol)
	if market == model.MarketLinear {
		return lower + "_perpetual@continuousKline_1s"
	}
	return lower + "@kline_1s"
}

func (Binance) SubscribeFrames(market model.Market, symbols []string) [][]byte {
	if len(symbols) == 0 {
		return nil
	}
	streams := make([]string, len(symbols))
	for i, s := range symbols {
		streams[i] = streamName(market, s)
	}
	frame := map[string]interface{}{
		"method": "SUBSCRIBE",
		"params": streams,
		"id":     time.Now().UnixNano(),
	}
	b, _ := json.Marshal(frame)
	return [][]byte{b}
}

func (Binance) UnsubscribeFrame(market model.Market, symbols []string) []byte {
	streams := make([]string, len(symbols))
	for i, s := range symbols {
		streams[i] = streamName(market, s)
	}
	frame := map[string]interface{}{
		"method": "UNSUBSCRIBE",
		"params": streams,
		"id":     time.Now().UnixNano(),
	}
	b, _ := json.Marshal(frame)
	return b
}

func (Binance) PingInterval() time.Duration { return 0 } // relies on transport-level WS ping

func (Binance) PingMessage(model.Market) []byte { return nil }

func (Binance) OutboundMessageLimit() (int, time.Duration) { return 0, 0 } // unlimited

type binanceAck struct {
	Result interface{} `json:"result"`
	ID     int64       `json:"id"`
}

func (Binance) IsControlFrame(raw []byte) (bool, string) {
	var ack binanceAck
	if err := json.Unmarshal(raw, &ack); err == nil && ack.ID != 0 {
		return true, ""
	}
	return false, ""
}

type combinedFrame struct {
	Stream string          `json:"stream"`
	Data   json.RawMessage `json:"data"`
}

func (Binance) Decode(market model.Market, raw []byte) (decode.Result, error) {
	if market == model.MarketLinear {
		// The /ws endpoint delivers continuous_kline events unwrapped,
		// with no {stream,data} envelope.
		return decode.BinanceContinuousKline(raw)
	}
	var cf combinedFrame
	if err := json.Unmarshal(raw, &cf); err != nil || cf.Data == nil {
		return decode.Result{}, fmt.Errorf("binance: not a combined-stream frame: %w", err)
	}
	return decode.Binance(market, cf.Data)
}

func (Binance) StreamsPerConnection(market model.Market) int { return 150 }

func (Binance) SubscribeBatchSize() int { return 0 } // no sub-batching

func (Binance) ScheduledReconnectInterval() time.Duration { return 23 * time.Hour }

func (Binance) SubscribeAckDeadline() time.Duration { return 10 * time.Second }
