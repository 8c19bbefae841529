package exchange

import (
	"encoding/json"
	"sync"
	"time"

	"spikeingest/internal/decode"
	"spikeingest/internal/model"
)

// Bitget has no grounding in the retrieved example pack (neither a WS
// client nor a combined-streams analog exists there for it); it is
// authored directly from the quirks spec.md §4.2 names: per-instType
// subscribe args, a discarded first (historical-snapshot) frame per
// symbol, and string-millisecond trade timestamps (handled by
// internal/decode.Bitget).
type Bitget struct {
	seen sync.Map // "market|instId" -> bool, cleared for a symbol by each subscribe frame built for it
}

// NewBitget constructs a driver instance. Each Connection Pool gets its
// own instance; because SubscribeFrames clears a symbol's seen entry,
// the "first frame discarded" rule applies to every (re)subscription,
// matching "first trade frame per symbol carries historical data"
// rather than once for the process lifetime.
func NewBitget() *Bitget { return &Bitget{} }

func (*Bitget) Exchange() model.Exchange { return model.ExchangeBitget }

func (*Bitget) DialURL(market model.Market) string {
	return "wss://ws.bitget.com/v2/ws/public"
}

func instType(market model.Market) string {
	if market == model.MarketLinear {
		return "USDT-FUTURES"
	}
	return "SPOT"
}

func (b *Bitget) SubscribeFrames(market model.Market, symbols []string) [][]byte {
	if len(symbols) == 0 {
		return nil
	}
	args := make([]map[string]string, len(symbols))
	for i, s := range symbols {
		args[i] = map[string]string{"instType": instType(market), "channel": "trade", "instId": s}
		b.seen.Delete(string(market) + "|" + s)
	}
	frame := map[string]interface{}{"op": "subscribe", "args": args}
	b, _ := json.Marshal(frame)
	return [][]byte{b}
}

func (*Bitget) UnsubscribeFrame(market model.Market, symbols []string) []byte {
	args := make([]map[string]string, len(symbols))
	for i, s := range symbols {
		args[i] = map[string]string{"instType": instType(market), "channel": "trade", "instId": s}
	}
	frame := map[string]interface{}{"op": "unsubscribe", "args": args}
	b, _ := json.Marshal(frame)
	return b
}

func (*Bitget) PingInterval() time.Duration { return 25 * time.Second }

func (*Bitget) PingMessage(model.Market) []byte { return []byte("ping") }

func (*Bitget) OutboundMessageLimit() (int, time.Duration) { return 0, 0 } // unlimited

func (*Bitget) IsControlFrame(raw []byte) (bool, string) {
	if len(raw) > 0 && raw[0] != '{' && raw[0] != '[' {
		return true, "" // "pong" or similar bare-text control replies
	}
	var ack struct {
		Event string `json:"event"`
		Arg   struct {
			InstID string `json:"instId"`
		} `json:"arg"`
		Code int `json:"code"`
	}
	if err := json.Unmarshal(raw, &ack); err == nil && ack.Event != "" {
		if ack.Event == "error" {
			return true, ack.Arg.InstID
		}
		return true, ""
	}
	return false, ""
}

func (b *Bitget) Decode(market model.Market, raw []byte) (decode.Result, error) {
	var envelope struct {
		Arg struct {
			InstID string `json:"instId"`
		} `json:"arg"`
	}
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return decode.Result{}, err
	}

	if envelope.Arg.InstID != "" {
		if _, alreadySeen := b.seen.LoadOrStore(string(market)+"|"+envelope.Arg.InstID, true); !alreadySeen {
			return decode.Result{}, nil // discard the historical-snapshot first frame
		}
	}

	return decode.Bitget(market, raw)
}

func (*Bitget) StreamsPerConnection(market model.Market) int {
	if market == model.MarketLinear {
		return 49
	}
	return 39
}

func (*Bitget) SubscribeBatchSize() int { return 0 }

func (*Bitget) ScheduledReconnectInterval() time.Duration { return 12 * time.Hour }

func (*Bitget) SubscribeAckDeadline() time.Duration { return 10 * time.Second }
