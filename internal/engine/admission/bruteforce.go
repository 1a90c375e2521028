package admission

import (
	"context"
	"sync"
	"time"
)

// BruteForceStore tracks failed-authentication friction per identifier.
// Deliberately process-local: its purpose is attack friction, not
// precise cluster-wide accounting.
type BruteForceStore struct {
	mu        sync.Mutex
	trackers  map[string]*attemptTracker
	threshold int
	window    time.Duration
}

type attemptTracker struct {
	attempts     int
	firstAttempt time.Time
}

func NewBruteForceStore(threshold int, window time.Duration) *BruteForceStore {
	if threshold <= 0 {
		threshold = 5
	}
	if window <= 0 {
		window = 15 * time.Minute
	}
	return &BruteForceStore{
		trackers:  make(map[string]*attemptTracker),
		threshold: threshold,
		window:    window,
	}
}

// Register records an attempt and reports whether the identifier is now
// locked out, plus how long until the window clears.
func (s *BruteForceStore) Register(identifier string) (locked bool, retryAfter time.Duration) {
	now := time.Now()

	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.trackers[identifier]
	if !ok || now.Sub(t.firstAttempt) >= s.window {
		t = &attemptTracker{firstAttempt: now}
		s.trackers[identifier] = t
	}

	t.attempts++
	if t.attempts >= s.threshold {
		return true, s.window - now.Sub(t.firstAttempt)
	}
	return false, 0
}

// Reset clears the identifier after a successful authentication.
func (s *BruteForceStore) Reset(identifier string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.trackers, identifier)
}

// StartSweeper drops expired trackers on interval to bound memory.
func (s *BruteForceStore) StartSweeper(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.sweep(time.Now())
			}
		}
	}()
}

func (s *BruteForceStore) sweep(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for id, t := range s.trackers {
		if now.Sub(t.firstAttempt) >= s.window {
			delete(s.trackers, id)
		}
	}
}
