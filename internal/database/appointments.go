package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"salonbot/internal/model"

	"github.com/mattn/go-sqlite3"
)

const (
	dateLayout = "2006-01-02"
	timeLayout = "15:04"
)

// QueryBookedIntervals returns the active appointment intervals of a date.
func (db *DB) QueryBookedIntervals(ctx context.Context, date string) ([]model.Interval, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT start_time, end_time FROM appointments
		WHERE date = ? AND status != ?
		ORDER BY start_time`, date, model.StatusCancelled)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Interval
	for rows.Next() {
		var start, end string
		if err := rows.Scan(&start, &end); err != nil {
			return nil, err
		}
		s, err := time.ParseInLocation(dateLayout+" "+timeLayout, date+" "+start, db.loc)
		if err != nil {
			return nil, fmt.Errorf("parse start %q: %w", start, err)
		}
		e, err := time.ParseInLocation(dateLayout+" "+timeLayout, date+" "+end, db.loc)
		if err != nil {
			return nil, fmt.Errorf("parse end %q: %w", end, err)
		}
		out = append(out, model.Interval{Start: s, End: e})
	}
	return out, rows.Err()
}

// InsertAppointment atomically checks that [start_time, end_time) is free on the date and
// inserts the appointment. It returns ErrSlotTaken when another active appointment overlaps.
func (db *DB) InsertAppointment(ctx context.Context, appt *model.Appointment) (int64, error) {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var overlapping int64
	err = tx.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM appointments
		WHERE date = ? AND status != ? AND start_time < ? AND ? < end_time`,
		appt.Date, model.StatusCancelled, appt.EndTime, appt.StartTime,
	).Scan(&overlapping)
	if err != nil {
		return 0, fmt.Errorf("check overlap: %w", err)
	}
	if overlapping > 0 {
		return 0, ErrSlotTaken
	}

	if appt.Status == "" {
		appt.Status = model.StatusScheduled
	}
	now := time.Now()
	result, err := tx.ExecContext(ctx, `
		INSERT INTO appointments (user_id, service_id, date, start_time, end_time, status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		appt.UserID, appt.ServiceID, appt.Date, appt.StartTime, appt.EndTime, appt.Status, now, now,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return 0, ErrSlotTaken
		}
		return 0, fmt.Errorf("insert appointment: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("get last id: %w", err)
	}
	if err := tx.Commit(); err != nil {
		if isUniqueViolation(err) {
			return 0, ErrSlotTaken
		}
		return 0, fmt.Errorf("commit: %w", err)
	}

	appt.ID = id
	appt.CreatedAt = now
	return id, nil
}

func isUniqueViolation(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique
	}
	return false
}

const appointmentSelect = `
	SELECT a.id, a.user_id, a.service_id, COALESCE(s.name, ''), a.date, a.start_time, a.end_time, a.status, a.created_at
	FROM appointments a LEFT JOIN services s ON s.id = a.service_id`

// GetAppointment returns an appointment by id.
func (db *DB) GetAppointment(ctx context.Context, id int64) (*model.Appointment, error) {
	row := db.QueryRowContext(ctx, appointmentSelect+` WHERE a.id = ?`, id)
	var a model.Appointment
	err := row.Scan(&a.ID, &a.UserID, &a.ServiceID, &a.ServiceName, &a.Date, &a.StartTime, &a.EndTime, &a.Status, &a.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &a, nil
}

// ListUserAppointments returns a user's scheduled appointments on or after fromDate.
func (db *DB) ListUserAppointments(ctx context.Context, userID int64, fromDate string) ([]model.Appointment, error) {
	rows, err := db.QueryContext(ctx, appointmentSelect+`
		WHERE a.user_id = ? AND a.status = ? AND a.date >= ?
		ORDER BY a.date, a.start_time`, userID, model.StatusScheduled, fromDate)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanAppointments(rows)
}

// ListAppointmentsBetween returns appointments with dates in [fromDate, toDate], any status.
func (db *DB) ListAppointmentsBetween(ctx context.Context, fromDate, toDate string) ([]model.Appointment, error) {
	rows, err := db.QueryContext(ctx, appointmentSelect+`
		WHERE a.date >= ? AND a.date <= ?
		ORDER BY a.date, a.start_time`, fromDate, toDate)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanAppointments(rows)
}

// CancelAppointment cancels one of the user's scheduled appointments and returns it.
func (db *DB) CancelAppointment(ctx context.Context, userID, id int64) (*model.Appointment, error) {
	result, err := db.ExecContext(ctx, `
		UPDATE appointments SET status = ?, updated_at = ?
		WHERE id = ? AND user_id = ? AND status = ?`,
		model.StatusCancelled, time.Now(), id, userID, model.StatusScheduled,
	)
	if err != nil {
		return nil, err
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return nil, err
	}
	if rowsAffected == 0 {
		return nil, ErrNotFound
	}
	return db.GetAppointment(ctx, id)
}

// CompletePastAppointments marks scheduled appointments that ended before now as completed.
func (db *DB) CompletePastAppointments(ctx context.Context, now time.Time) (int64, error) {
	now = now.In(db.loc)
	result, err := db.ExecContext(ctx, `
		UPDATE appointments SET status = ?, updated_at = ?
		WHERE status = ? AND (date < ? OR (date = ? AND end_time <= ?))`,
		model.StatusCompleted, now, model.StatusScheduled,
		now.Format(dateLayout), now.Format(dateLayout), now.Format(timeLayout),
	)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

func scanAppointments(rows *sql.Rows) ([]model.Appointment, error) {
	var out []model.Appointment
	for rows.Next() {
		var a model.Appointment
		if err := rows.Scan(&a.ID, &a.UserID, &a.ServiceID, &a.ServiceName, &a.Date, &a.StartTime, &a.EndTime, &a.Status, &a.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}
