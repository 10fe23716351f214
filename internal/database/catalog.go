package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"salonbot/internal/model"
)

const serviceColumns = `id, name, description, price, duration_minutes, active`

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// SearchServices returns active services whose name or description contains term.
func (db *DB) SearchServices(ctx context.Context, term string) ([]model.Service, error) {
	pattern := "%" + likeEscaper.Replace(strings.ToLower(strings.TrimSpace(term))) + "%"
	rows, err := db.QueryContext(ctx, `
		SELECT `+serviceColumns+` FROM services
		WHERE active = 1
		  AND (LOWER(name) LIKE ? ESCAPE '\' OR LOWER(description) LIKE ? ESCAPE '\')
		ORDER BY name`, pattern, pattern)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanServices(rows)
}

// GetServiceByID returns the service with id, or nil when it does not exist.
func (db *DB) GetServiceByID(ctx context.Context, id int64) (*model.Service, error) {
	row := db.QueryRowContext(ctx, `SELECT `+serviceColumns+` FROM services WHERE id = ?`, id)
	return scanService(row)
}

// GetServiceByName returns the service named name (case-insensitive), or nil.
func (db *DB) GetServiceByName(ctx context.Context, name string) (*model.Service, error) {
	row := db.QueryRowContext(ctx, `SELECT `+serviceColumns+` FROM services WHERE name = ? COLLATE NOCASE`, name)
	return scanService(row)
}

// ListActiveServices returns all active services ordered by name.
func (db *DB) ListActiveServices(ctx context.Context) ([]model.Service, error) {
	rows, err := db.QueryContext(ctx, `SELECT `+serviceColumns+` FROM services WHERE active = 1 ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanServices(rows)
}

// SyncCatalog upserts services by name and deactivates services missing from the list.
func (db *DB) SyncCatalog(ctx context.Context, services []model.Service) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	now := time.Now()
	names := make([]any, 0, len(services))
	for _, s := range services {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO services (name, description, price, duration_minutes, active, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(name) DO UPDATE SET
				description = excluded.description,
				price = excluded.price,
				duration_minutes = excluded.duration_minutes,
				active = excluded.active,
				updated_at = excluded.updated_at`,
			s.Name, s.Description, s.Price, s.DurationMinutes, s.Active, now, now,
		); err != nil {
			return fmt.Errorf("upsert service %q: %w", s.Name, err)
		}
		names = append(names, s.Name)
	}

	query := `UPDATE services SET active = 0, updated_at = ? WHERE active = 1`
	args := []any{now}
	if len(names) > 0 {
		query += ` AND name COLLATE NOCASE NOT IN (?` + strings.Repeat(`, ?`, len(names)-1) + `)`
		args = append(args, names...)
	}
	res, err := tx.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("deactivate removed services: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}

	deactivated, _ := res.RowsAffected()
	db.logger.Info().Int("services", len(services)).Int64("deactivated", deactivated).Msg("Catalog synced")
	return nil
}

func scanService(row *sql.Row) (*model.Service, error) {
	var s model.Service
	err := row.Scan(&s.ID, &s.Name, &s.Description, &s.Price, &s.DurationMinutes, &s.Active)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func scanServices(rows *sql.Rows) ([]model.Service, error) {
	var out []model.Service
	for rows.Next() {
		var s model.Service
		if err := rows.Scan(&s.ID, &s.Name, &s.Description, &s.Price, &s.DurationMinutes, &s.Active); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}
