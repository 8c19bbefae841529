package registry

import (
	"context"
	"net/http"

	"spikeingest/internal/model"
)

// BitgetLister, like BybitLister, has no corpus-grounded SDK and calls
// Bitget's public symbols/contracts REST endpoints directly.
type BitgetLister struct {
	client  *http.Client
	baseURL string
}

func NewBitgetLister() *BitgetLister {
	return &BitgetLister{client: &http.Client{}, baseURL: "https://api.bitget.com"}
}

type bitgetSpotSymbolsResponse struct {
	Data []struct {
		Symbol     string `json:"symbol"`
		QuoteCoin  string `json:"quoteCoin"`
		Status     string `json:"status"`
	} `json:"data"`
}

type bitgetContractsResponse struct {
	Data []struct {
		Symbol      string `json:"symbol"`
		QuoteCoin   string `json:"quoteCoin"`
		SymbolStatus string `json:"symbolStatus"`
	} `json:"data"`
}

var bitgetAllowedQuotes = map[string]bool{"USDT": true, "USDC": true}

func (l *BitgetLister) List(ctx context.Context, market model.Market) ([]string, error) {
	if market == model.MarketLinear {
		url := l.baseURL + "/api/v2/mix/market/contracts?productType=usdt-futures"
		var resp bitgetContractsResponse
		if err := httpGetJSON(ctx, l.client, url, &resp); err != nil {
			return nil, err
		}
		symbols := make([]string, 0, len(resp.Data))
		for _, s := range resp.Data {
			if s.SymbolStatus == "normal" && bitgetAllowedQuotes[s.QuoteCoin] {
				symbols = append(symbols, s.Symbol)
			}
		}
		return symbols, nil
	}

	url := l.baseURL + "/api/v2/spot/public/symbols"
	var resp bitgetSpotSymbolsResponse
	if err := httpGetJSON(ctx, l.client, url, &resp); err != nil {
		return nil, err
	}
	symbols := make([]string, 0, len(resp.Data))
	for _, s := range resp.Data {
		if s.Status == "online" && bitgetAllowedQuotes[s.QuoteCoin] {
			symbols = append(symbols, s.Symbol)
		}
	}
	return symbols, nil
}
