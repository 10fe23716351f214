package session

import (
	"sync"
	"time"
)

// Supervisor keeps at most one pending inactivity timer per user.
type Supervisor struct {
	timeout  time.Duration
	onExpire func(userID int64)

	mu     sync.Mutex
	timers map[int64]*entry
	seq    uint64
	closed bool
}

type entry struct {
	timer *time.Timer
	gen   uint64
}

// NewSupervisor calls onExpire in its own goroutine when a user has been idle for timeout.
func NewSupervisor(timeout time.Duration, onExpire func(userID int64)) *Supervisor {
	return &Supervisor{timeout: timeout, onExpire: onExpire, timers: make(map[int64]*entry)}
}

// Touch cancels the user's pending timer and schedules a new one.
func (s *Supervisor) Touch(userID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || s.timeout <= 0 {
		return
	}

	if old, ok := s.timers[userID]; ok {
		old.timer.Stop()
	}
	s.seq++
	gen := s.seq
	e := &entry{gen: gen}
	e.timer = time.AfterFunc(s.timeout, func() { s.fire(userID, gen) })
	s.timers[userID] = e
}

// Cancel stops the user's pending timer, if any.
func (s *Supervisor) Cancel(userID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok := s.timers[userID]; ok {
		e.timer.Stop()
		delete(s.timers, userID)
	}
}

// Pending reports the number of users with a scheduled timer.
func (s *Supervisor) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.timers)
}

// Stop cancels every timer. Touch is a no-op afterwards.
func (s *Supervisor) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, e := range s.timers {
		e.timer.Stop()
		delete(s.timers, id)
	}
	s.closed = true
}

func (s *Supervisor) fire(userID int64, gen uint64) {
	s.mu.Lock()
	e, ok := s.timers[userID]
	// replaced or cancelled while waiting for the lock
	if !ok || e.gen != gen {
		s.mu.Unlock()
		return
	}
	delete(s.timers, userID)
	s.mu.Unlock()

	s.onExpire(userID)
}
