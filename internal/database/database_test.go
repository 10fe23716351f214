package database

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"salonbot/internal/config"
	"salonbot/internal/model"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestDB(t *testing.T) *DB {
	t.Helper()
	logger := zerolog.Nop()
	db, err := NewDB(filepath.Join(t.TempDir(), "test.db"), &logger)
	require.NoError(t, err)
	db.SetLocation(time.UTC)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

var seed = []model.Service{
	{Name: "Haircut Men", Description: "Classic cut", Price: 40, DurationMinutes: 30, Active: true},
	{Name: "Haircut Women", Description: "Cut and finish", Price: 70, DurationMinutes: 60, Active: true},
	{Name: "Beard Trim", Description: "Shape and line-up", Price: 30, DurationMinutes: 30, Active: true},
}

func seededDB(t *testing.T) *DB {
	db := newTestDB(t)
	require.NoError(t, db.SyncCatalog(context.Background(), seed))
	return db
}

func TestCatalogQueries(t *testing.T) {
	ctx := context.Background()
	db := seededDB(t)

	found, err := db.SearchServices(ctx, "HAIRCUT")
	require.NoError(t, err)
	require.Len(t, found, 2)
	assert.Equal(t, "Haircut Men", found[0].Name)
	assert.Equal(t, "Haircut Women", found[1].Name)

	found, err = db.SearchServices(ctx, "line-up")
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, "Beard Trim", found[0].Name)

	found, err = db.SearchServices(ctx, "%")
	require.NoError(t, err)
	assert.Empty(t, found)

	svc, err := db.GetServiceByName(ctx, "beard trim")
	require.NoError(t, err)
	require.NotNil(t, svc)
	assert.Equal(t, 30, svc.DurationMinutes)

	byID, err := db.GetServiceByID(ctx, svc.ID)
	require.NoError(t, err)
	assert.Equal(t, svc, byID)

	missing, err := db.GetServiceByID(ctx, 999)
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestSyncCatalogUpdatesAndDeactivates(t *testing.T) {
	ctx := context.Background()
	db := seededDB(t)

	updated := []model.Service{
		{Name: "haircut men", Description: "Classic cut", Price: 45, DurationMinutes: 30, Active: true},
		{Name: "Manicure", Price: 35, DurationMinutes: 45, Active: true},
	}
	require.NoError(t, db.SyncCatalog(ctx, updated))

	active, err := db.ListActiveServices(ctx)
	require.NoError(t, err)
	require.Len(t, active, 2)
	assert.Equal(t, 45.0, active[0].Price)
	assert.Equal(t, "Manicure", active[1].Name)

	beard, err := db.GetServiceByName(ctx, "Beard Trim")
	require.NoError(t, err)
	require.NotNil(t, beard)
	assert.False(t, beard.Active)
}

func insertAt(t *testing.T, db *DB, userID, serviceID int64, date, start, end string) (int64, error) {
	t.Helper()
	return db.InsertAppointment(context.Background(), &model.Appointment{
		UserID: userID, ServiceID: serviceID, Date: date, StartTime: start, EndTime: end,
	})
}

func TestInsertAppointmentRejectsOverlap(t *testing.T) {
	ctx := context.Background()
	db := seededDB(t)

	id, err := insertAt(t, db, 1, 1, "2030-01-07", "14:00", "14:30")
	require.NoError(t, err)
	assert.Positive(t, id)

	_, err = insertAt(t, db, 2, 1, "2030-01-07", "14:00", "14:30")
	assert.ErrorIs(t, err, ErrSlotTaken)

	_, err = insertAt(t, db, 2, 2, "2030-01-07", "13:30", "14:30")
	assert.ErrorIs(t, err, ErrSlotTaken, "overlapping interval of another service")

	_, err = insertAt(t, db, 2, 2, "2030-01-07", "14:30", "15:30")
	assert.NoError(t, err, "touching intervals do not overlap")

	intervals, err := db.QueryBookedIntervals(ctx, "2030-01-07")
	require.NoError(t, err)
	require.Len(t, intervals, 2)
	assert.Equal(t, time.Date(2030, 1, 7, 14, 0, 0, 0, time.UTC), intervals[0].Start)
	assert.Equal(t, time.Date(2030, 1, 7, 15, 30, 0, 0, time.UTC), intervals[1].End)
}

func TestInsertAppointmentConcurrent(t *testing.T) {
	db := seededDB(t)

	const workers = 8
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		success int
		taken   int
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(user int64) {
			defer wg.Done()
			_, err := insertAt(t, db, user, 1, "2030-01-08", "10:00", "10:30")
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				success++
			case errors.Is(err, ErrSlotTaken):
				taken++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}(int64(i + 1))
	}
	wg.Wait()

	assert.Equal(t, 1, success)
	assert.Equal(t, workers-1, taken)
}

func TestCancelFreesSlot(t *testing.T) {
	ctx := context.Background()
	db := seededDB(t)

	id, err := insertAt(t, db, 7, 1, "2030-01-09", "09:00", "09:30")
	require.NoError(t, err)

	_, err = db.CancelAppointment(ctx, 8, id)
	assert.ErrorIs(t, err, ErrNotFound, "other users cannot cancel")

	appt, err := db.CancelAppointment(ctx, 7, id)
	require.NoError(t, err)
	assert.Equal(t, model.StatusCancelled, appt.Status)
	assert.Equal(t, "Haircut Men", appt.ServiceName)

	_, err = db.CancelAppointment(ctx, 7, id)
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = insertAt(t, db, 8, 1, "2030-01-09", "09:00", "09:30")
	assert.NoError(t, err)
}

func TestListAppointments(t *testing.T) {
	ctx := context.Background()
	db := seededDB(t)

	_, err := insertAt(t, db, 5, 1, "2030-01-10", "11:00", "11:30")
	require.NoError(t, err)
	_, err = insertAt(t, db, 5, 3, "2030-01-09", "16:00", "16:30")
	require.NoError(t, err)
	_, err = insertAt(t, db, 6, 1, "2030-01-09", "09:00", "09:30")
	require.NoError(t, err)

	mine, err := db.ListUserAppointments(ctx, 5, "2030-01-01")
	require.NoError(t, err)
	require.Len(t, mine, 2)
	assert.Equal(t, "2030-01-09", mine[0].Date)
	assert.Equal(t, "Beard Trim", mine[0].ServiceName)

	all, err := db.ListAppointmentsBetween(ctx, "2030-01-09", "2030-01-09")
	require.NoError(t, err)
	assert.Len(t, all, 2)

	n, err := db.CompletePastAppointments(ctx, time.Date(2030, 1, 9, 12, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestSessionsRoundTrip(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)

	got, err := db.GetSession(ctx, 42)
	require.NoError(t, err)
	assert.Nil(t, got)

	now := time.Date(2030, 1, 7, 10, 0, 0, 0, time.UTC)
	s := model.NewSession(42, now)
	s.Intent = model.IntentBook
	s.State = model.StateCollecting
	s.Slots.ServiceID = 1
	s.Ambiguity = &model.AmbiguityContext{OriginalTerm: "haircut", CandidateIDs: []int64{1, 2}}
	require.NoError(t, db.PutSession(ctx, s))

	got, err = db.GetSession(ctx, 42)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, model.StateCollecting, got.State)
	assert.Equal(t, []int64{1, 2}, got.Ambiguity.CandidateIDs)
	assert.True(t, now.Equal(got.UpdatedAt))

	require.NoError(t, db.DeleteSession(ctx, 42))
	require.NoError(t, db.DeleteSession(ctx, 42))
	got, err = db.GetSession(ctx, 42)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestUpsertUser(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)

	require.NoError(t, db.UpsertUser(ctx, model.User{ID: 9, Name: "Ana", Phone: "+55 11 9999"}))
	require.NoError(t, db.UpsertUser(ctx, model.User{ID: 9, Name: "Ana Paula"}))

	u, err := db.GetUser(ctx, 9)
	require.NoError(t, err)
	assert.Equal(t, "Ana Paula", u.Name)
	assert.Equal(t, "+55 11 9999", u.Phone)

	_, err = db.GetUser(ctx, 10)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestBackupAndCleanup(t *testing.T) {
	ctx := context.Background()
	db := seededDB(t)
	dir := filepath.Join(t.TempDir(), "backups")
	logger := zerolog.Nop()

	svc := NewBackupService(db, config.BackupConfig{Enabled: true, Path: dir, RetentionDays: 7}, &logger)
	path, err := svc.PerformBackup(ctx)
	require.NoError(t, err)
	assert.FileExists(t, path)

	snapshot, err := NewDB(path, &logger)
	require.NoError(t, err)
	defer snapshot.Close()
	services, err := snapshot.ListActiveServices(ctx)
	require.NoError(t, err)
	assert.Len(t, services, 3)

	old := time.Now().AddDate(0, 0, -30)
	require.NoError(t, os.Chtimes(path, old, old))
	assert.Equal(t, 1, svc.CleanupOldBackups(time.Now()))
	assert.NoFileExists(t, path)
}
