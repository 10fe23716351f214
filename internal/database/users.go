package database

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"salonbot/internal/model"
)

// UpsertUser creates the user or refreshes its name and last activity.
func (db *DB) UpsertUser(ctx context.Context, u model.User) error {
	now := time.Now()
	_, err := db.ExecContext(ctx, `
		INSERT INTO users (id, name, phone, last_activity, created_at) VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			phone = CASE WHEN excluded.phone != '' THEN excluded.phone ELSE users.phone END,
			last_activity = excluded.last_activity`,
		u.ID, u.Name, u.Phone, now, now,
	)
	return err
}

// GetUser returns a user by Telegram id.
func (db *DB) GetUser(ctx context.Context, id int64) (*model.User, error) {
	var u model.User
	err := db.QueryRowContext(ctx, `SELECT id, name, phone, created_at FROM users WHERE id = ?`, id).
		Scan(&u.ID, &u.Name, &u.Phone, &u.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}
