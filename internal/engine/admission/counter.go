package admission

import (
	"context"
	"sync"
	"time"
)

// CounterStore is the shared fixed-window counter. Incr atomically
// increments the counter for key and returns the post-increment count
// plus the instant the window resets. Windows are fixed-size, not
// sliding; a burst straddling a boundary can briefly see ~2x the nominal
// rate, accepted for O(1) updates.
type CounterStore interface {
	Incr(ctx context.Context, key string, window time.Duration) (count int64, reset time.Time, err error)
}

type windowCounter struct {
	count       int64
	windowStart time.Time
	lastAccess  time.Time
}

// MemoryCounterStore is the in-process fallback used in tests and
// single-node deployments. Cluster-wide enforcement needs the Redis
// store.
type MemoryCounterStore struct {
	mu       sync.Mutex
	counters map[string]*windowCounter
}

func NewMemoryCounterStore() *MemoryCounterStore {
	return &MemoryCounterStore{counters: make(map[string]*windowCounter)}
}

func (s *MemoryCounterStore) Incr(_ context.Context, key string, window time.Duration) (int64, time.Time, error) {
	now := time.Now()

	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.counters[key]
	if !ok || now.Sub(c.windowStart) >= window {
		c = &windowCounter{windowStart: now}
		s.counters[key] = c
	}

	c.count++
	c.lastAccess = now
	return c.count, c.windowStart.Add(window), nil
}

// StartJanitor sweeps idle counters on interval to bound memory growth.
// Stop by cancelling the context.
func (s *MemoryCounterStore) StartJanitor(ctx context.Context, interval time.Duration) {
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

func (s *MemoryCounterStore) sweep(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for key, c := range s.counters {
		if now.Sub(c.lastAccess) > 10*time.Minute {
			delete(s.counters, key)
		}
	}
}
