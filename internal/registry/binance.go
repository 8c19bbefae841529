package registry

import (
	"context"

	binance "github.com/adshao/go-binance/v2"
	"github.com/adshao/go-binance/v2/futures"

	"spikeingest/internal/model"
)

// BinanceLister uses the official SDK's exchangeInfo services (spot and
// futures clients), grounded on the client.NewExchangeInfoService()
// usage pattern observed across the example pack.
type BinanceLister struct {
	spot    *binance.Client
	futures *futures.Client
}

func NewBinanceLister() *BinanceLister {
	return &BinanceLister{
		spot:    binance.NewClient("", ""),
		futures: futures.NewClient("", ""),
	}
}

var binanceAllowedQuotes = map[string]bool{"USDT": true, "USDC": true}

func (l *BinanceLister) List(ctx context.Context, market model.Market) ([]string, error) {
	if market == model.MarketLinear {
		info, err := l.futures.NewExchangeInfoService().Do(ctx)
		if err != nil {
			return nil, err
		}
		var symbols []string
		for _, s := range info.Symbols {
			if s.Status == "TRADING" && binanceAllowedQuotes[s.QuoteAsset] {
				symbols = append(symbols, s.Symbol)
			}
		}
		return symbols, nil
	}

	info, err := l.spot.NewExchangeInfoService().Do(ctx)
	if err != nil {
		return nil, err
	}
	var symbols []string
	for _, s := range info.Symbols {
		if s.Status == "TRADING" && binanceAllowedQuotes[s.QuoteAsset] {
			symbols = append(symbols, s.Symbol)
		}
	}
	return symbols, nil
}
