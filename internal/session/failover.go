package session

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"salonbot/internal/model"

	"github.com/rs/zerolog"
)

const recheckInterval = time.Minute

// FailoverStore uses primary while it is healthy and fallback otherwise. After a primary
// failure, the primary is retried once per recheckInterval.
type FailoverStore struct {
	primary  Store
	fallback Store
	logger   *zerolog.Logger

	isDown    atomic.Bool
	mu        sync.Mutex
	lastCheck time.Time
}

func NewFailoverStore(primary, fallback Store, logger *zerolog.Logger) *FailoverStore {
	return &FailoverStore{primary: primary, fallback: fallback, logger: logger}
}

func (f *FailoverStore) usePrimary() bool {
	if !f.isDown.Load() {
		return true
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return time.Since(f.lastCheck) > recheckInterval
}

func (f *FailoverStore) markDown(err error) {
	if !f.isDown.Swap(true) {
		f.logger.Warn().Err(err).Msg("Primary session store failed, switching to fallback")
	}
	f.mu.Lock()
	f.lastCheck = time.Now()
	f.mu.Unlock()
}

func (f *FailoverStore) markUp() {
	if f.isDown.Swap(false) {
		f.logger.Info().Msg("Primary session store recovered")
	}
}

func (f *FailoverStore) GetSession(ctx context.Context, userID int64) (*model.Session, error) {
	if f.usePrimary() {
		s, err := f.primary.GetSession(ctx, userID)
		if err == nil {
			f.markUp()
			return s, nil
		}
		f.markDown(err)
	}
	return f.fallback.GetSession(ctx, userID)
}

func (f *FailoverStore) PutSession(ctx context.Context, s *model.Session) error {
	if f.usePrimary() {
		err := f.primary.PutSession(ctx, s)
		if err == nil {
			f.markUp()
			return nil
		}
		f.markDown(err)
	}
	return f.fallback.PutSession(ctx, s)
}

func (f *FailoverStore) DeleteSession(ctx context.Context, userID int64) error {
	// Delete from both stores.
	ferr := f.fallback.DeleteSession(ctx, userID)
	if f.usePrimary() {
		if err := f.primary.DeleteSession(ctx, userID); err != nil {
			f.markDown(err)
			return ferr
		}
		f.markUp()
		return nil
	}
	return ferr
}
