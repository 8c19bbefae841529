package store

import (
	"context"
	"database/sql"

	"spikeingest/internal/errs"
	"spikeingest/internal/model"
)

// GetUserOptions returns a user's options_json, used by
// internal/spike.OptionsLoader. The bool is false if the user doesn't
// exist (an OptionsCache miss, not an error).
func (db *DB) GetUserOptions(ctx context.Context, userID int64) (string, bool, error) {
	var options sql.NullString
	err := db.QueryRowContext(ctx, `SELECT options_json FROM users WHERE id = ?`, userID).Scan(&options)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, errs.NewDBError(err, errs.Fields{})
	}
	return options.String, true, nil
}

// GetUser loads a full user row, used by the Notification Dispatcher's
// user lookup, which passes on its chat_id and tg_token.
func (db *DB) GetUser(ctx context.Context, userID int64) (model.User, bool, error) {
	var u model.User
	var tgToken sql.NullString
	var chatID sql.NullInt64
	var options sql.NullString

	err := db.QueryRowContext(ctx, `
		SELECT id, user, password_hash, tg_token, chat_id, options_json, created_at, updated_at
		FROM users WHERE id = ?
	`, userID).Scan(&u.ID, &u.Login, &u.PasswordHash, &tgToken, &chatID, &options, &u.CreatedAt, &u.UpdatedAt)
	if err == sql.ErrNoRows {
		return model.User{}, false, nil
	}
	if err != nil {
		return model.User{}, false, errs.NewDBError(err, errs.Fields{})
	}
	u.TgToken = tgToken.String
	u.ChatID = chatID.Int64
	u.OptionsJSON = options.String
	return u, true, nil
}

// ListEnrolledUserIDs returns every user id with a non-empty options
// blob, the backing query for internal/spike.UserIndex.
func (db *DB) ListEnrolledUserIDs(ctx context.Context) ([]int64, error) {
	rows, err := db.QueryContext(ctx, `SELECT id FROM users WHERE options_json IS NOT NULL AND options_json != ''`)
	if err != nil {
		return nil, errs.NewDBError(err, errs.Fields{})
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, errs.NewDBError(err, errs.Fields{})
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// SetUserOptions writes a user's options_json, used by the HTTP layer;
// callers are responsible for invoking the detector's cache-invalidate
// afterward (spec §4.4's cache-invalidate signal).
func (db *DB) SetUserOptions(ctx context.Context, userID int64, optionsJSON string) error {
	_, err := db.ExecContext(ctx, `
		UPDATE users SET options_json = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?
	`, optionsJSON, userID)
	if err != nil {
		return errs.NewDBError(err, errs.Fields{})
	}
	return nil
}
