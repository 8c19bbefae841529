package exchange

import (
	"encoding/json"
	"time"

	"spikeingest/internal/decode"
	"spikeingest/internal/model"
)

// Hyperliquid adapts the per-symbol subscribe frame and coin
// normalization from the teacher's market/hyperliquid.go and
// websocket_client.go's handleHyperliquidMessage branch.
type Hyperliquid struct{}

func (Hyperliquid) Exchange() model.Exchange { return model.ExchangeHyperliquid }

func (Hyperliquid) DialURL(market model.Market) string {
	return "wss://api.hyperliquid.xyz/ws"
}

func hyperliquidCoin(symbol string) string {
	// Hyperliquid subscribes by coin, not by the normalized BASEUSDC
	// symbol; strip the USDC suffix the registry normalized on.
	if len(symbol) > 4 && symbol[len(symbol)-4:] == "USDC" {
		return symbol[:len(symbol)-4]
	}
	return symbol
}

// Hyperliquid subscribes one symbol per frame (spec §4.2), so
// SubscribeFrames returns one frame per input symbol.
func (Hyperliquid) SubscribeFrames(market model.Market, symbols []string) [][]byte {
	frames := make([][]byte, 0, len(symbols))
	for _, s := range symbols {
		frame := map[string]interface{}{
			"method":       "subscribe",
			"subscription": map[string]string{"type": "trades", "coin": hyperliquidCoin(s)},
		}
		b, _ := json.Marshal(frame)
		frames = append(frames, b)
	}
	return frames
}

func (Hyperliquid) UnsubscribeFrame(market model.Market, symbols []string) []byte {
	// Only ever called with one symbol by internal/pool's per-symbol
	// removal path; a single frame naming the first symbol is correct
	// for that caller.
	coin := ""
	if len(symbols) > 0 {
		coin = hyperliquidCoin(symbols[0])
	}
	frame := map[string]interface{}{
		"method":       "unsubscribe",
		"subscription": map[string]string{"type": "trades", "coin": coin},
	}
	b, _ := json.Marshal(frame)
	return b
}

func (Hyperliquid) PingInterval() time.Duration { return 30 * time.Second }

func (Hyperliquid) PingMessage(model.Market) []byte {
	b, _ := json.Marshal(map[string]string{"method": "ping"})
	return b
}

// OutboundMessageLimit enforces Hyperliquid's 2000-messages-per-minute
// cap (spec.md §4.2, §5); PING bypasses it by construction, since
// doRun's ping goroutine calls writeMessage directly rather than
// writeMessageRateLimited.
func (Hyperliquid) OutboundMessageLimit() (int, time.Duration) { return 2000, time.Minute }

func (Hyperliquid) IsControlFrame(raw []byte) (bool, string) {
	var f struct {
		Channel string `json:"channel"`
	}
	if err := json.Unmarshal(raw, &f); err == nil && (f.Channel == "pong" || f.Channel == "subscriptionResponse") {
		return true, ""
	}
	return false, ""
}

func (Hyperliquid) Decode(market model.Market, raw []byte) (decode.Result, error) {
	return decode.Hyperliquid(market, raw)
}

func (Hyperliquid) StreamsPerConnection(market model.Market) int { return 50 }

func (Hyperliquid) SubscribeBatchSize() int { return 0 }

func (Hyperliquid) ScheduledReconnectInterval() time.Duration { return 12 * time.Hour }

func (Hyperliquid) SubscribeAckDeadline() time.Duration { return 10 * time.Second }
