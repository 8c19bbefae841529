package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"spikeingest/internal/errs"
	"spikeingest/internal/model"
)

// AlertFilters narrows get_alerts/count_alerts/delete_user_links, all
// fields optional.
type AlertFilters struct {
	UserID   *int64
	Exchange string
	Market   string
	Symbol   string
	SinceTs  *int64
	UntilTs  *int64
}

func (f AlertFilters) whereClause(joinUserAlerts bool) (string, []interface{}) {
	var clauses []string
	var args []interface{}

	if f.UserID != nil && joinUserAlerts {
		clauses = append(clauses, "ua.user_id = ?")
		args = append(args, *f.UserID)
	}
	if f.Exchange != "" {
		clauses = append(clauses, "a.exchange = ?")
		args = append(args, f.Exchange)
	}
	if f.Market != "" {
		clauses = append(clauses, "a.market = ?")
		args = append(args, f.Market)
	}
	if f.Symbol != "" {
		clauses = append(clauses, "a.symbol = ?")
		args = append(args, f.Symbol)
	}
	if f.SinceTs != nil {
		clauses = append(clauses, "a.ts >= ?")
		args = append(args, *f.SinceTs)
	}
	if f.UntilTs != nil {
		clauses = append(clauses, "a.ts <= ?")
		args = append(args, *f.UntilTs)
	}
	if len(clauses) == 0 {
		return "", args
	}
	return "WHERE " + strings.Join(clauses, " AND "), args
}

// AddAlert implements spec §4.5's add_alert: insert-or-find the
// canonical Alert by its seven-field unique key, then insert-or-ignore
// the (alert_id, user_id) link. Idempotent per user (invariant 3).
func (db *DB) AddAlert(ctx context.Context, c model.Candle, delta, wickPct, volumeUSDT float64, userID int64, meta string) (int64, error) {
	var alertID int64
	err := withRetry(ctx, func() error {
		tx, err := db.BeginTx(ctx, nil)
		if err != nil {
			return err
		}
		defer tx.Rollback()

		res, err := tx.ExecContext(ctx, `
			INSERT INTO alerts (ts, exchange, market, symbol, delta, wick_pct, volume_usdt, meta)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(ts, exchange, market, symbol, delta, wick_pct, volume_usdt) DO NOTHING
		`, c.TsMs, string(c.Exchange), string(c.Market), c.Symbol, delta, wickPct, volumeUSDT, meta)
		if err != nil {
			return fmt.Errorf("insert alert: %w", err)
		}

		// After DO NOTHING, LastInsertId still reports the connection's
		// previous insert, so it is trusted only when a row was inserted.
		n, _ := res.RowsAffected()
		if id, err := res.LastInsertId(); err == nil && n == 1 && id != 0 {
			alertID = id
		} else {
			row := tx.QueryRowContext(ctx, `
				SELECT id FROM alerts
				WHERE ts = ? AND exchange = ? AND market = ? AND symbol = ?
				  AND delta = ? AND wick_pct = ? AND volume_usdt = ?
			`, c.TsMs, string(c.Exchange), string(c.Market), c.Symbol, delta, wickPct, volumeUSDT)
			if err := row.Scan(&alertID); err != nil {
				return fmt.Errorf("find existing alert: %w", err)
			}
		}

		if _, err := tx.ExecContext(ctx, `
			INSERT INTO user_alerts (alert_id, user_id) VALUES (?, ?)
			ON CONFLICT(alert_id, user_id) DO NOTHING
		`, alertID, userID); err != nil {
			return fmt.Errorf("insert user_alert link: %w", err)
		}

		return tx.Commit()
	})
	if err != nil {
		return 0, errs.NewDBError(err, errs.Fields{Exchange: string(c.Exchange), Market: string(c.Market), Symbol: c.Symbol})
	}
	return alertID, nil
}

// GetAlerts implements spec §4.5's get_alerts: when UserID is set the
// join against user_alerts is inner, otherwise the read is the global
// alerts set.
func (db *DB) GetAlerts(ctx context.Context, f AlertFilters, limit, offset int, orderDesc bool) ([]model.Alert, error) {
	joinUserAlerts := f.UserID != nil
	from := "alerts a"
	if joinUserAlerts {
		from = "alerts a JOIN user_alerts ua ON ua.alert_id = a.id"
	}
	where, args := f.whereClause(joinUserAlerts)

	order := "ASC"
	if orderDesc {
		order = "DESC"
	}

	query := fmt.Sprintf(`
		SELECT a.id, a.ts, a.exchange, a.market, a.symbol, a.delta, a.wick_pct, a.volume_usdt, a.meta, a.created_at
		FROM %s
		%s
		ORDER BY a.ts %s
		LIMIT ? OFFSET ?
	`, from, where, order)
	args = append(args, limit, offset)

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errs.NewDBError(err, errs.Fields{})
	}
	defer rows.Close()

	var alerts []model.Alert
	for rows.Next() {
		var a model.Alert
		var exchange, market string
		var meta sql.NullString
		if err := rows.Scan(&a.ID, &a.TsMs, &exchange, &market, &a.Symbol, &a.Delta, &a.WickPct, &a.VolumeUSDT, &meta, &a.CreatedAt); err != nil {
			return nil, errs.NewDBError(err, errs.Fields{})
		}
		a.Exchange = model.Exchange(exchange)
		a.Market = model.Market(market)
		a.Meta = meta.String
		alerts = append(alerts, a)
	}
	return alerts, nil
}

// CountAlerts implements spec §4.5's count_alerts.
func (db *DB) CountAlerts(ctx context.Context, f AlertFilters) (int64, error) {
	joinUserAlerts := f.UserID != nil
	from := "alerts a"
	if joinUserAlerts {
		from = "alerts a JOIN user_alerts ua ON ua.alert_id = a.id"
	}
	where, args := f.whereClause(joinUserAlerts)

	query := fmt.Sprintf("SELECT COUNT(*) FROM %s %s", from, where)
	var count int64
	if err := db.QueryRowContext(ctx, query, args...).Scan(&count); err != nil {
		return 0, errs.NewDBError(err, errs.Fields{})
	}
	return count, nil
}

// DeleteUserLinks implements spec §4.5's delete_user_links: deletes the
// user's links matching filters, then garbage-collects any Alert left
// with zero remaining links (invariant 4).
func (db *DB) DeleteUserLinks(ctx context.Context, userID int64, f AlertFilters) error {
	f.UserID = &userID
	where, args := f.whereClause(true)

	return withRetry(ctx, func() error {
		tx, err := db.BeginTx(ctx, nil)
		if err != nil {
			return err
		}
		defer tx.Rollback()

		delQuery := fmt.Sprintf(`
			DELETE FROM user_alerts
			WHERE id IN (
				SELECT ua.id FROM user_alerts ua JOIN alerts a ON a.id = ua.alert_id %s
			)
		`, where)
		if _, err := tx.ExecContext(ctx, delQuery, args...); err != nil {
			return fmt.Errorf("delete user_alerts: %w", err)
		}

		if _, err := tx.ExecContext(ctx, `
			DELETE FROM alerts WHERE id NOT IN (SELECT DISTINCT alert_id FROM user_alerts)
		`); err != nil {
			return fmt.Errorf("garbage-collect orphaned alerts: %w", err)
		}

		return tx.Commit()
	})
}
