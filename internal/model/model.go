// Package model holds the transient and persisted shapes shared across
// the ingestion pipeline: trades, candles, alerts, and the connection and
// statistics records the pool and metrics components track.
package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Exchange identifies one of the five supported venues.
type Exchange string

const (
	ExchangeBinance     Exchange = "binance"
	ExchangeBybit       Exchange = "bybit"
	ExchangeBitget      Exchange = "bitget"
	ExchangeGateio      Exchange = "gateio"
	ExchangeHyperliquid Exchange = "hyperliquid"
)

// Market identifies spot or linear (perpetual futures).
type Market string

const (
	MarketSpot   Market = "spot"
	MarketLinear Market = "linear"
)

// Key identifies one (exchange, market, symbol) candle/active-candle slot.
type Key struct {
	Exchange Exchange
	Market   Market
	Symbol   string // exchange-native casing
}

// Trade is a single executed trade, never persisted.
type Trade struct {
	Exchange Exchange
	Market   Market
	Symbol   string
	Price    decimal.Decimal
	Qty      decimal.Decimal
	TsMs     int64
}

// Candle is a closed one-second OHLCV aggregate.
type Candle struct {
	TsMs     int64
	Open     decimal.Decimal
	High     decimal.Decimal
	Low      decimal.Decimal
	Close    decimal.Decimal
	Volume   decimal.Decimal
	Exchange Exchange
	Market   Market
	Symbol   string
}

// Key returns the (exchange, market, symbol) key this candle belongs to.
func (c Candle) Key() Key {
	return Key{Exchange: c.Exchange, Market: c.Market, Symbol: c.Symbol}
}

// ActiveCandle is the in-progress, in-memory candle for one key.
type ActiveCandle struct {
	Candle
	FirstTradeSeen bool
}

// Alert is a persisted, deduplicated detection, unique by its seven
// canonical fields.
type Alert struct {
	ID         int64
	TsMs       int64
	Exchange   Exchange
	Market     Market
	Symbol     string
	Delta      decimal.Decimal
	WickPct    decimal.Decimal
	VolumeUSDT decimal.Decimal
	Meta       string // JSON blob, optional
	CreatedAt  time.Time
}

// UserAlertLink joins a User to an Alert, unique per (alert_id, user_id).
type UserAlertLink struct {
	ID        int64
	AlertID   int64
	UserID    int64
	CreatedAt time.Time
}

// User is owned by the external account subsystem; this process only
// reads it to drive detection and notification.
type User struct {
	ID           int64
	Login        string
	PasswordHash string
	TgToken      string
	ChatID       int64
	OptionsJSON  string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// ExchangeStatistics is one persisted row per (exchange, market),
// refreshed by the metrics snapshot task.
type ExchangeStatistics struct {
	ID             int64
	Exchange       Exchange
	Market         Market
	SymbolsCount   int
	WSConnections  int
	BatchesPerWS   int
	Reconnects     int64
	CandlesCount   int64
	LastCandleTime int64
	TicksPerSecond float64
	UpdatedAt      time.Time
}

// Detection is what the Spike Detector emits for one (candle, user) match.
type Detection struct {
	Candle     Candle
	UserID     int64
	Delta      decimal.Decimal
	WickPct    decimal.Decimal
	VolumeUSDT decimal.Decimal
	Matched    []string // names of matched strategies, for template selection
}
