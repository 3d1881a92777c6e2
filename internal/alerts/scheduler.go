// Package alerts reminds players on Discord when they die and do not respawn in time
package alerts

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Alert is a pending reminder for one player
type Alert struct {
	PlayerID uuid.UUID
	DiedAt   time.Time
	Due      time.Time
}

// FireFunc delivers a due alert
type FireFunc func(ctx context.Context, a Alert)

// Scheduler owns the table of pending death alerts. A player has at most one
// pending alert; scheduling again replaces it.
type Scheduler struct {
	mu       sync.Mutex
	pending  map[uuid.UUID]Alert
	fire     FireFunc
	interval time.Duration
	now      func() time.Time
}

// NewScheduler creates a scheduler that sweeps for due alerts every interval
func NewScheduler(interval time.Duration, fire FireFunc) *Scheduler {
	if interval <= 0 {
		interval = time.Second
	}
	return &Scheduler{
		pending:  make(map[uuid.UUID]Alert),
		fire:     fire,
		interval: interval,
		now:      time.Now,
	}
}

// SetClock replaces the time source
func (s *Scheduler) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

// Schedule registers an alert for a death at diedAt. A non-positive delay means the player opted out.
func (s *Scheduler) Schedule(id uuid.UUID, diedAt time.Time, delay time.Duration) bool {
	if delay <= 0 {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pending[id] = Alert{PlayerID: id, DiedAt: diedAt, Due: diedAt.Add(delay)}
	return true
}

// Cancel drops the player's pending alert, reporting whether there was one
func (s *Scheduler) Cancel(id uuid.UUID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.pending[id]
	delete(s.pending, id)
	return ok
}

// Pending returns the number of alerts waiting to fire
func (s *Scheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending)
}

// Sweep fires every due alert and returns how many fired.
// Due alerts leave the table before any of them fires, so a Cancel that
// returns true is guaranteed to have prevented its alert.
func (s *Scheduler) Sweep(ctx context.Context) int {
	s.mu.Lock()
	now := s.now()
	var due []Alert
	for id, a := range s.pending {
		if !now.Before(a.Due) {
			due = append(due, a)
			delete(s.pending, id)
		}
	}
	s.mu.Unlock()

	for _, a := range due {
		s.fire(ctx, a)
	}
	return len(due)
}

// Run sweeps until ctx is cancelled
func (s *Scheduler) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Sweep(ctx)
		}
	}
}
