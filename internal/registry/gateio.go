package registry

import (
	"context"
	"net/http"

	"spikeingest/internal/model"
)

// GateioLister, like BybitLister and BitgetLister, has no corpus-grounded
// SDK and calls Gate.io's public currency-pairs/contracts REST endpoints
// directly.
type GateioLister struct {
	client  *http.Client
	baseURL string
}

func NewGateioLister() *GateioLister {
	return &GateioLister{client: &http.Client{}, baseURL: "https://api.gateio.ws"}
}

type gateioCurrencyPair struct {
	ID        string `json:"id"`
	Quote     string `json:"quote"`
	TradeStatus string `json:"trade_status"`
}

type gateioContract struct {
	Name    string `json:"name"`
	InDelisting bool `json:"in_delisting"`
}

var gateioAllowedQuotes = map[string]bool{"USDT": true, "USDC": true}

func (l *GateioLister) List(ctx context.Context, market model.Market) ([]string, error) {
	if market == model.MarketLinear {
		url := l.baseURL + "/api/v4/futures/usdt/contracts"
		var resp []gateioContract
		if err := httpGetJSON(ctx, l.client, url, &resp); err != nil {
			return nil, err
		}
		symbols := make([]string, 0, len(resp))
		for _, c := range resp {
			if !c.InDelisting {
				symbols = append(symbols, c.Name)
			}
		}
		return symbols, nil
	}

	url := l.baseURL + "/api/v4/spot/currency_pairs"
	var resp []gateioCurrencyPair
	if err := httpGetJSON(ctx, l.client, url, &resp); err != nil {
		return nil, err
	}
	symbols := make([]string, 0, len(resp))
	for _, p := range resp {
		if p.TradeStatus == "tradable" && gateioAllowedQuotes[p.Quote] {
			symbols = append(symbols, p.ID)
		}
	}
	return symbols, nil
}
