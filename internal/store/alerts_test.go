package store

import (
	"context"
	"database/sql"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"spikeingest/internal/model"
)

func dec(s string) decimal.Decimal {
	d, _ := decimal.NewFromString(s)
	return d
}

func openTestDB(t *testing.T) *DB {
	t.Helper()
	sqlDB, err := sql.Open("sqlite", "file::memory:?cache=shared")
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	_, err = sqlDB.Exec(mainSchema)
	require.NoError(t, err)
	db := &DB{sqlDB}
	t.Cleanup(func() { db.Close() })
	return db
}

func insertUser(t *testing.T, db *DB, login string) int64 {
	t.Helper()
	res, err := db.Exec(`INSERT INTO users (user, password_hash) VALUES (?, 'x')`, login)
	require.NoError(t, err)
	id, err := res.LastInsertId()
	require.NoError(t, err)
	return id
}

func sampleCandle() model.Candle {
	return model.Candle{
		TsMs: 1000, Exchange: model.ExchangeBinance, Market: model.MarketSpot, Symbol: "BTCUSDT",
		Open: dec("100"), High: dec("110"), Low: dec("90"), Close: dec("105"), Volume: dec("2"),
	}
}

func TestAddAlert_DedupAcrossUsers_S4(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	u1 := insertUser(t, db, "u1")
	u2 := insertUser(t, db, "u2")
	c := sampleCandle()

	id1, err := db.AddAlert(ctx, c, 5.0, 20.0, 1180.0, u1, "")
	require.NoError(t, err)
	id2, err := db.AddAlert(ctx, c, 5.0, 20.0, 1180.0, u2, "")
	require.NoError(t, err)
	require.Equal(t, id1, id2)

	count, err := db.CountAlerts(ctx, AlertFilters{})
	require.NoError(t, err)
	require.Equal(t, int64(1), count)

	var links int64
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM user_alerts WHERE alert_id = ?`, id1).Scan(&links))
	require.Equal(t, int64(2), links)
}

func TestAddAlert_IdempotentPerUser(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	u1 := insertUser(t, db, "u1")
	c := sampleCandle()

	id1, err := db.AddAlert(ctx, c, 5.0, 20.0, 1180.0, u1, "")
	require.NoError(t, err)
	id2, err := db.AddAlert(ctx, c, 5.0, 20.0, 1180.0, u1, "")
	require.NoError(t, err)
	require.Equal(t, id1, id2)

	var links int64
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM user_alerts WHERE alert_id = ?`, id1).Scan(&links))
	require.Equal(t, int64(1), links)
}

func TestDeleteUserLinks_GarbageCollectsOrphanedAlert(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	u1 := insertUser(t, db, "u1")
	u2 := insertUser(t, db, "u2")
	c := sampleCandle()

	alertID, err := db.AddAlert(ctx, c, 5.0, 20.0, 1180.0, u1, "")
	require.NoError(t, err)
	_, err = db.AddAlert(ctx, c, 5.0, 20.0, 1180.0, u2, "")
	require.NoError(t, err)

	require.NoError(t, db.DeleteUserLinks(ctx, u1, AlertFilters{}))

	count, err := db.CountAlerts(ctx, AlertFilters{})
	require.NoError(t, err)
	require.Equal(t, int64(1), count, "alert survives while u2 still links it")

	require.NoError(t, db.DeleteUserLinks(ctx, u2, AlertFilters{}))
	count, err = db.CountAlerts(ctx, AlertFilters{})
	require.NoError(t, err)
	require.Equal(t, int64(0), count, "alert garbage-collected once no user links remain")

	var exists int
	err = db.QueryRow(`SELECT 1 FROM alerts WHERE id = ?`, alertID).Scan(&exists)
	require.ErrorIs(t, err, sql.ErrNoRows)
}

func TestGetAlerts_FiltersByUser(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	u1 := insertUser(t, db, "u1")
	u2 := insertUser(t, db, "u2")
	c := sampleCandle()
	c2 := sampleCandle()
	c2.TsMs = 2000

	_, err := db.AddAlert(ctx, c, 5.0, 20.0, 1180.0, u1, "")
	require.NoError(t, err)
	_, err = db.AddAlert(ctx, c2, 5.0, 20.0, 1180.0, u2, "")
	require.NoError(t, err)

	alerts, err := db.GetAlerts(ctx, AlertFilters{UserID: &u1}, 10, 0, false)
	require.NoError(t, err)
	require.Len(t, alerts, 1)
	require.Equal(t, int64(1000), alerts[0].TsMs)

	all, err := db.GetAlerts(ctx, AlertFilters{}, 10, 0, false)
	require.NoError(t, err)
	require.Len(t, all, 2)
}
