package spike

import (
	"encoding/json"
	"fmt"
)

// PairSettings holds the per-(exchange,market,quote) thresholds used by
// the base-filter step, keyed in Options.PairSettings by
// "<exchange>_<market>_<quote>".
type PairSettings struct {
	DeltaMin  float64 `json:"deltaMin"`
	VolumeMin float64 `json:"volumeMin"`
	WickMin   float64 `json:"wickMin"`
	SendChart bool    `json:"sendChart"`
}

// Condition is one leaf of a Strategy's AND-combined condition list.
// Type selects which of the optional fields apply; unused fields are
// left zero.
type Condition struct {
	Type string `json:"type"`

	ValueMin *float64 `json:"valueMin,omitempty"`
	ValueMax *float64 `json:"valueMax,omitempty"`
	Value    *float64 `json:"value,omitempty"`

	Direction string `json:"direction,omitempty"` // "up" | "down"
	Symbol    string `json:"symbol,omitempty"`
	Exchange  string `json:"exchange,omitempty"`
	Market    string `json:"market,omitempty"`

	Count             int `json:"count,omitempty"`
	TimeWindowSeconds int `json:"timeWindowSeconds,omitempty"`
}

// Strategy is a named list of AND-combined Conditions, optionally
// replacing the user's base thresholds entirely.
type Strategy struct {
	Name              string      `json:"name"`
	Enabled           bool        `json:"enabled"`
	UseGlobalFilters  bool        `json:"useGlobalFilters"`
	Conditions        []Condition `json:"conditions"`
	MessageTemplate   string      `json:"messageTemplate,omitempty"`
}

// Options is the decoded shape of one user's options_json column.
type Options struct {
	Exchanges            map[string]bool         `json:"exchanges"`
	PairSettings         map[string]PairSettings `json:"pairSettings"`
	ConditionalTemplates []Strategy              `json:"conditionalTemplates"`
	Timezone             string                  `json:"timezone"`
	MessageTemplate      string                  `json:"messageTemplate"`
}

// ParseOptions decodes a user's options_json. A parse failure is the
// caller's cue to log once and skip that user for the affected candle
// (spec §4.4 failure semantics), not to crash the pipeline.
func ParseOptions(raw string) (Options, error) {
	if raw == "" {
		return Options{}, fmt.Errorf("empty options")
	}
	var o Options
	if err := json.Unmarshal([]byte(raw), &o); err != nil {
		return Options{}, err
	}
	return o, nil
}

// PairKey builds the pairSettings lookup key for an exchange/market/quote
// triple, e.g. "binance_spot_USDT".
func PairKey(exchange, market, quote string) string {
	return exchange + "_" + market + "_" + quote
}
