// Package pool implements the Connection Pool (§4.2): one shared
// per-connection state machine (Connecting → Subscribing → Running →
// ReconnectBackoff → Closing) parameterized by a small per-exchange
// Driver, so exchange-specific quirks never leak into the state
// machine itself (per SPEC_FULL.md §4.2 design note).
package pool

import (
	"time"

	"spikeingest/internal/decode"
	"spikeingest/internal/model"
)

// Driver implements the wire-level specifics of one exchange: URLs,
// subscribe/unsubscribe frame formats, ping cadence, and decoding.
type Driver interface {
	Exchange() model.Exchange

	// DialURL returns the WebSocket URL to connect to for a market.
	DialURL(market model.Market) string

	// SubscribeFrames builds the frame(s) needed to subscribe to
	// symbols, already split into the exchange's per-frame topic cap
	// (e.g. Bybit: 10 topics per frame).
	SubscribeFrames(market model.Market, symbols []string) [][]byte

	// UnsubscribeFrame builds one frame unsubscribing from symbols.
	UnsubscribeFrame(market model.Market, symbols []string) []byte

	// PingInterval returns how often to send an application-level
	// ping; zero means rely on transport-level WS pings only.
	PingInterval() time.Duration

	// PingMessage returns the ping frame to send for market, if
	// PingInterval > 0 (Gate.io's spot/futures.ping channel depends on
	// which socket it's sent over; every other driver ignores market).
	PingMessage(market model.Market) []byte

	// IsControlFrame reports whether raw is a protocol-level frame
	// (ack, pong, error) rather than trade/candle data, and whether it
	// indicates the given symbol was rejected by the exchange.
	IsControlFrame(raw []byte) (handled bool, rejectedSymbol string)

	// Decode maps one data frame to canonical trades or candles.
	Decode(market model.Market, raw []byte) (decode.Result, error)

	// StreamsPerConnection returns the symbol cap per connection for a
	// market, per the per-exchange defaults in SPEC_FULL.md §4.2.
	StreamsPerConnection(market model.Market) int

	// SubscribeBatchSize returns how many symbols may be packed into
	// one subscribe frame (Bybit: 10; most others: no sub-batching).
	SubscribeBatchSize() int

	// ScheduledReconnectInterval returns the lifetime after which a
	// Running connection proactively recycles itself, per Open
	// Question decision 3 in SPEC_FULL.md §9.
	ScheduledReconnectInterval() time.Duration

	// SubscribeAckDeadline bounds how long Subscribing waits for
	// confirmation before giving up and backing off.
	SubscribeAckDeadline() time.Duration

	// OutboundMessageLimit bounds non-ping outbound messages (subscribe
	// and unsubscribe frames) to max per sliding window, shared across
	// every connection the Pool holds for this exchange; PING frames
	// always bypass it. max<=0 means unlimited.
	OutboundMessageLimit() (max int, window time.Duration)
}
