package exchange

import (
	"encoding/json"
	"time"

	"spikeingest/internal/decode"
	"spikeingest/internal/model"
)

// Bybit adapts the JSON-RPC subscribe protocol observed in the
// teacher's market/combined_streams.go (subscribeBybitKlines) and
// romanzzaa's market_stream.go (ping/pong cadence), generalized from
// kline topics to publicTrade topics.
type Bybit struct{}

func (Bybit) Exchange() model.Exchange { return model.ExchangeBybit }

func (Bybit) DialURL(market model.Market) string {
	if market == model.MarketLinear {
		return "wss://stream.bybit.com/v5/public/linear"
	}
	return "wss://stream.bybit.com/v5/public/spot"
}

func bybitTopic(symbol string) string { return "publicTrade." + symbol }

func (Bybit) SubscribeFrames(market model.Market, symbols []string) [][]byte {
	if len(symbols) == 0 {
		return nil
	}
	topics := make([]string, len(symbols))
	for i, s := range symbols {
		topics[i] = bybitTopic(s)
	}
	frame := map[string]interface{}{"op": "subscribe", "args": topics}
	b, _ := json.Marshal(frame)
	return [][]byte{b}
}

func (Bybit) UnsubscribeFrame(market model.Market, symbols []string) []byte {
	topics := make([]string, len(symbols))
	for i, s := range symbols {
		topics[i] = bybitTopic(s)
	}
	frame := map[string]interface{}{"op": "unsubscribe", "args": topics}
	b, _ := json.Marshal(frame)
	return b
}

func (Bybit) PingInterval() time.Duration { return 20 * time.Second }

func (Bybit) PingMessage(model.Market) []byte {
	b, _ := json.Marshal(map[string]string{"op": "ping"})
	return b
}

func (Bybit) OutboundMessageLimit() (int, time.Duration) { return 0, 0 } // unlimited

type bybitOpFrame struct {
	Op      string `json:"op"`
	Success *bool  `json:"success"`
	RetMsg  string `json:"ret_msg"`
}

func (Bybit) IsControlFrame(raw []byte) (bool, string) {
	var f bybitOpFrame
	if err := json.Unmarshal(raw, &f); err == nil && f.Op != "" {
		if f.Success != nil && !*f.Success {
			return true, "" // subscribe rejection without a specific symbol in the ack
		}
		return true, ""
	}
	return false, ""
}

func (Bybit) Decode(market model.Market, raw []byte) (decode.Result, error) {
	return decode.Bybit(market, raw)
}

func (Bybit) StreamsPerConnection(market model.Market) int {
	if market == model.MarketLinear {
		return 100
	}
	return 86
}

func (Bybit) SubscribeBatchSize() int { return 10 }

func (Bybit) ScheduledReconnectInterval() time.Duration { return 12 * time.Hour }

func (Bybit) SubscribeAckDeadline() time.Duration { return 10 * time.Second }
