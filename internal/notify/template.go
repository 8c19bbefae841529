package notify

import (
	"fmt"
	"strings"
	"time"

	"spikeingest/internal/model"
	"spikeingest/internal/spike"
)

// Render substitutes the placeholders spec §4.6 names into template,
// given a detection and the resolved metrics, per S6.
func Render(template string, d model.Detection, m spike.CandleMetrics, timezone string) string {
	loc, err := time.LoadLocation(timezone)
	if err != nil || timezone == "" {
		loc = time.UTC
	}
	ts := time.UnixMilli(d.Candle.TsMs).In(loc)

	direction := "🔴"
	if m.Up {
		direction = "🟢"
	}

	base, quote := spike.SplitSymbol(d.Candle.Symbol)
	symbolFmt := base
	if quote != "" {
		symbolFmt = base + "-" + quote
	}

	exchangeMarket := string(d.Candle.Exchange) + "_" + string(d.Candle.Market)
	exchangeMarketShort := shortExchange(d.Candle.Exchange) + shortMarket(d.Candle.Market)

	replacer := strings.NewReplacer(
		"{delta_formatted}", fmt.Sprintf("%.2f%%", m.Delta.InexactFloat64()),
		"{volume_formatted}", fmt.Sprintf("%.2f", m.VolumeUSDT.InexactFloat64()),
		"{wick_formatted}", fmt.Sprintf("%.2f%%", m.WickPct.InexactFloat64()),
		"{timestamp}", fmt.Sprintf("%d", d.Candle.TsMs),
		"{direction}", direction,
		"{exchange_market}", exchangeMarket,
		"{exchange_market_short}", exchangeMarketShort,
		"{symbol}", symbolFmt,
		"{time}", ts.Format("15:04:05"),
	)
	return replacer.Replace(template)
}

func shortExchange(e model.Exchange) string {
	switch e {
	case model.ExchangeBinance:
		return "BIN"
	case model.ExchangeBybit:
		return "BYB"
	case model.ExchangeBitget:
		return "BGT"
	case model.ExchangeGateio:
		return "GIO"
	case model.ExchangeHyperliquid:
		return "HL"
	default:
		return strings.ToUpper(string(e))
	}
}

func shortMarket(m model.Market) string {
	if m == model.MarketLinear {
		return "-P"
	}
	return "-S"
}

// DefaultMessage synthesizes the fixed HTML message spec §4.6 calls for
// when a user's default messageTemplate is empty.
func DefaultMessage(d model.Detection, m spike.CandleMetrics) string {
	base, quote := spike.SplitSymbol(d.Candle.Symbol)
	symbol := base
	if quote != "" {
		symbol = base + "-" + quote
	}
	direction := "📉"
	if m.Up {
		direction = "📈"
	}
	return fmt.Sprintf("<b>%s</b> %s %s: delta %.2f%%, wick %.2f%%, volume %.2f USDT",
		symbol, string(d.Candle.Exchange), direction, m.Delta.InexactFloat64(), m.WickPct.InexactFloat64(), m.VolumeUSDT.InexactFloat64())
}
