package registry

import (
	"context"
	"net/http"

	"spikeingest/internal/model"
)

// BybitLister has no SDK or teacher grounding in the example pack (only
// a bare BaseURL/WSURL table exists in market/data_source.go); it calls
// Bybit's public instruments-info REST endpoint directly via
// httpGetJSON, per DESIGN.md's stdlib justification for exchanges the
// corpus never wires a client library for.
type BybitLister struct {
	client  *http.Client
	baseURL string
}

func NewBybitLister() *BybitLister {
	return &BybitLister{client: &http.Client{}, baseURL: "https://api.bybit.com"}
}

type bybitInstrumentsResponse struct {
	Result struct {
		List []struct {
			Symbol    string `json:"symbol"`
			Status    string `json:"status"`
			QuoteCoin string `json:"quoteCoin"`
		} `json:"list"`
	} `json:"result"`
}

var bybitAllowedQuotes = map[string]bool{"USDT": true, "USDC": true}

func (l *BybitLister) List(ctx context.Context, market model.Market) ([]string, error) {
	category := "linear"
	if market == model.MarketSpot {
		category = "spot"
	}
	url := l.baseURL + "/v5/market/instruments-info?category=" + category

	var resp bybitInstrumentsResponse
	if err := httpGetJSON(ctx, l.client, url, &resp); err != nil {
		return nil, err
	}

	symbols := make([]string, 0, len(resp.Result.List))
	for _, s := range resp.Result.List {
		if s.Status == "Trading" && bybitAllowedQuotes[s.QuoteCoin] {
			symbols = append(symbols, s.Symbol)
		}
	}
	return symbols, nil
}
