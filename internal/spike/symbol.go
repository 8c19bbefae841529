package spike

import "strings"

// knownQuotes is checked longest-first so "USDT" doesn't shadow a coin
// whose base name happens to end the same way.
var knownQuotes = []string{"USDT", "USDC", "BUSD", "USD"}

// SplitSymbol splits an exchange-native symbol like "BTCUSDT" into its
// base and quote currency. Symbols whose quote isn't recognized return
// the whole symbol as base with an empty quote.
func SplitSymbol(symbol string) (base, quote string) {
	upper := strings.ToUpper(symbol)
	for _, q := range knownQuotes {
		if strings.HasSuffix(upper, q) && len(upper) > len(q) {
			return upper[:len(upper)-len(q)], q
		}
	}
	return upper, ""
}

// NormalizeBase returns just the base currency, used by the "symbol"
// condition type to compare across exchanges regardless of quote.
func NormalizeBase(symbol string) string {
	base, _ := SplitSymbol(symbol)
	return base
}
