package store

import (
	"context"

	"spikeingest/internal/errs"
)

// RecordNormalization upserts one (exchange, market, original_symbol)
// mapping in the separate symbol_normalization file (spec §6). Its one
// caller is the Hyperliquid lister, which records each coin name it
// rewrites to BASEUSDC; no other exchange's symbols are recorded.
func (db *DB) RecordNormalization(ctx context.Context, exchange, market, original, normalized string) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO symbol_normalization (exchange, market, original_symbol, normalized_symbol)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(exchange, market, original_symbol) DO UPDATE SET
			normalized_symbol = excluded.normalized_symbol,
			updated_at = CURRENT_TIMESTAMP
	`, exchange, market, original, normalized)
	if err != nil {
		return errs.NewDBError(err, errs.Fields{Exchange: exchange, Market: market, Symbol: original})
	}
	return nil
}
