package exchange

import (
	"encoding/json"
	"time"

	"spikeingest/internal/decode"
	"spikeingest/internal/model"
)

// Gateio, like Bitget, has no direct teacher/pack grounding (the only
// trace in _examples is a bare GATEIO_WS_URL constant with no handler
// body) and is authored from spec.md §4.2's explicit description:
// spot.ping/futures.ping heartbeats and the linear-market
// size-in-USDT-divided-by-price conversion (handled in
// internal/decode.Gateio).
type Gateio struct{}

func (Gateio) Exchange() model.Exchange { return model.ExchangeGateio }

func (Gateio) DialURL(market model.Market) string {
	if market == model.MarketLinear {
		return "wss://fx-ws.gateio.ws/v4/ws/usdt"
	}
	return "wss://api.gateio.ws/ws/v4/"
}

func gateioChannel(market model.Market) string {
	if market == model.MarketLinear {
		return "futures.trades"
	}
	return "spot.trades"
}

func (Gateio) SubscribeFrames(market model.Market, symbols []string) [][]byte {
	if len(symbols) == 0 {
		return nil
	}
	frame := map[string]interface{}{
		"time":    time.Now().Unix(),
		"channel": gateioChannel(market),
		"event":   "subscribe",
		"payload": symbols,
	}
	b, _ := json.Marshal(frame)
	return [][]byte{b}
}

func (Gateio) UnsubscribeFrame(market model.Market, symbols []string) []byte {
	frame := map[string]interface{}{
		"time":    time.Now().Unix(),
		"channel": gateioChannel(market),
		"event":   "unsubscribe",
		"payload": symbols,
	}
	b, _ := json.Marshal(frame)
	return b
}

func (Gateio) PingInterval() time.Duration { return 30 * time.Second }

// PingMessage picks the heartbeat channel by socket: the spot and linear
// WebSocket endpoints each require their own ping channel name
// (spec.md §4.2), split by the same "futures."/"spot." prefix as the
// futures.trades/spot.trades subscribe channels.
func (Gateio) PingMessage(market model.Market) []byte {
	channel := "spot.ping"
	if market == model.MarketLinear {
		channel = "futures.ping"
	}
	frame := map[string]interface{}{"time": time.Now().Unix(), "channel": channel}
	b, _ := json.Marshal(frame)
	return b
}

func (Gateio) OutboundMessageLimit() (int, time.Duration) { return 0, 0 } // unlimited

type gateioAck struct {
	Event  string `json:"event"`
	Error  *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func (Gateio) IsControlFrame(raw []byte) (bool, string) {
	var f gateioAck
	if err := json.Unmarshal(raw, &f); err == nil && (f.Event == "subscribe" || f.Event == "unsubscribe" || f.Event == "pong") {
		return true, ""
	}
	return false, ""
}

func (Gateio) Decode(market model.Market, raw []byte) (decode.Result, error) {
	return decode.Gateio(market, raw)
}

func (Gateio) StreamsPerConnection(market model.Market) int {
	if market == model.MarketLinear {
		return 100
	}
	return 135
}

func (Gateio) SubscribeBatchSize() int { return 0 }

func (Gateio) ScheduledReconnectInterval() time.Duration { return 12 * time.Hour }

func (Gateio) SubscribeAckDeadline() time.Duration { return 10 * time.Second }
