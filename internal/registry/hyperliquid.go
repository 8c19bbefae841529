package registry

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"

	"spikeingest/internal/decode"
	"spikeingest/internal/errs"
	"spikeingest/internal/model"
)

// HyperliquidLister lists perpetual assets via a POST to the /info
// endpoint, grounded on market/api_client.go's HyperliquidRequest{Type:
// "meta"} POST and market/hyperliquid.go's HyperliquidMeta/Asset shapes.
// Hyperliquid has no spot market in this pipeline's scope (spec §4.1
// treats it as linear-only); List returns empty for MarketSpot.
// NormalizationRecorder persists one (original, normalized) symbol
// mapping, typically store.DB.RecordNormalization bound to the
// symbol_normalization file. Left nil, List skips recording.
type NormalizationRecorder func(exchange, market, original, normalized string)

type HyperliquidLister struct {
	client   *http.Client
	endpoint string

	recordNormalization NormalizationRecorder
}

func NewHyperliquidLister() *HyperliquidLister {
	return &HyperliquidLister{
		client:   &http.Client{},
		endpoint: "https://api.hyperliquid.xyz/info",
	}
}

// SetNormalizationRecorder wires an operator-auditable record of every
// Hyperliquid coin name this lister maps to a normalized symbol, stored
// in the separate symbol_normalization file (spec §6).
func (l *HyperliquidLister) SetNormalizationRecorder(rec NormalizationRecorder) {
	l.recordNormalization = rec
}

type hyperliquidMetaRequest struct {
	Type string `json:"type"`
}

type hyperliquidMeta struct {
	Universe []hyperliquidAsset `json:"universe"`
}

type hyperliquidAsset struct {
	Name       string `json:"name"`
	IsDelisted bool   `json:"isDelisted"`
}

func (l *HyperliquidLister) List(ctx context.Context, market model.Market) ([]string, error) {
	if market != model.MarketLinear {
		return nil, nil
	}

	body, _ := json.Marshal(hyperliquidMetaRequest{Type: "meta"})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, l.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, errs.NewDataError(err, errs.Fields{Exchange: string(model.ExchangeHyperliquid)})
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := l.client.Do(req)
	if err != nil {
		return nil, errs.NewTransientNetworkError(err, errs.Fields{Exchange: string(model.ExchangeHyperliquid)})
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errs.NewTransientNetworkError(err, errs.Fields{Exchange: string(model.ExchangeHyperliquid)})
	}

	var meta hyperliquidMeta
	if err := json.Unmarshal(respBody, &meta); err != nil {
		return nil, errs.NewDataError(err, errs.Fields{Exchange: string(model.ExchangeHyperliquid)})
	}

	symbols := make([]string, 0, len(meta.Universe))
	for _, asset := range meta.Universe {
		if asset.IsDelisted {
			continue
		}
		normalized := decode.NormalizeHyperliquidSymbol(asset.Name)
		if l.recordNormalization != nil && normalized != asset.Name {
			l.recordNormalization(string(model.ExchangeHyperliquid), string(model.MarketLinear), asset.Name, normalized)
		}
		symbols = append(symbols, normalized)
	}
	return symbols, nil
}
