package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"salonbot/internal/model"
)

// GetSession returns the stored session of a user, or nil when there is none.
func (db *DB) GetSession(ctx context.Context, userID int64) (*model.Session, error) {
	var data string
	err := db.QueryRowContext(ctx, `SELECT data FROM sessions WHERE user_id = ?`, userID).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var s model.Session
	if err := json.Unmarshal([]byte(data), &s); err != nil {
		return nil, fmt.Errorf("decode session %d: %w", userID, err)
	}
	return &s, nil
}

// PutSession stores a user's session.
func (db *DB) PutSession(ctx context.Context, s *model.Session) error {
	data, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("encode session %d: %w", s.UserID, err)
	}
	_, err = db.ExecContext(ctx, `
		INSERT INTO sessions (user_id, data, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET data = excluded.data, updated_at = excluded.updated_at`,
		s.UserID, string(data), s.UpdatedAt,
	)
	return err
}

// DeleteSession removes a user's session. Deleting a missing session is not an error.
func (db *DB) DeleteSession(ctx context.Context, userID int64) error {
	_, err := db.ExecContext(ctx, `DELETE FROM sessions WHERE user_id = ?`, userID)
	return err
}
