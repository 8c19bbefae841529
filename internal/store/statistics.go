package store

import (
	"context"

	"spikeingest/internal/errs"
	"spikeingest/internal/model"
)

// UpsertStatistics implements the Metrics & Health snapshot task's
// every-15-seconds write (spec §4.7) of one row per (exchange, market).
func (db *DB) UpsertStatistics(ctx context.Context, s model.ExchangeStatistics) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO exchange_statistics (
			exchange, market, symbols_count, ws_connections, batches_per_ws,
			reconnects, candles_count, last_candle_time, ticks_per_second, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(exchange, market) DO UPDATE SET
			symbols_count = excluded.symbols_count,
			ws_connections = excluded.ws_connections,
			batches_per_ws = excluded.batches_per_ws,
			reconnects = excluded.reconnects,
			candles_count = excluded.candles_count,
			last_candle_time = excluded.last_candle_time,
			ticks_per_second = excluded.ticks_per_second,
			updated_at = CURRENT_TIMESTAMP
	`, string(s.Exchange), string(s.Market), s.SymbolsCount, s.WSConnections, s.BatchesPerWS,
		s.Reconnects, s.CandlesCount, s.LastCandleTime, s.TicksPerSecond)
	if err != nil {
		return errs.NewDBError(err, errs.Fields{Exchange: string(s.Exchange), Market: string(s.Market)})
	}
	return nil
}
