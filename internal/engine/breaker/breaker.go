package breaker

import (
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// ErrOpen is returned without invoking the operation while the breaker
// is open. Callers should surface it as a 503, not a 500.
var ErrOpen = errors.New("circuit breaker is open")

type State int

const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half_open"
	default:
		return "closed"
	}
}

// Breaker guards a shared downstream dependency. One instance per
// dependency per process; inject it, don't make it a package global.
type Breaker struct {
	mu              sync.Mutex
	state           State
	failureCount    int
	successCount    int
	totalFailures   int
	lastFailureTime time.Time

	threshold       int
	recoveryTimeout time.Duration
}

func New(threshold int, recoveryTimeout time.Duration) *Breaker {
	if threshold <= 0 {
		threshold = 5
	}
	if recoveryTimeout <= 0 {
		recoveryTimeout = 30 * time.Second
	}
	return &Breaker{
		state:           StateClosed,
		threshold:       threshold,
		recoveryTimeout: recoveryTimeout,
	}
}

// Execute runs op under the breaker. While open and inside the recovery
// timeout it returns ErrOpen without calling op. The first call after
// the timeout flips state to half-open *before* executing, so exactly
// one trial is in flight; concurrent callers see the half-open state and
// are rejected until the trial resolves.
func (b *Breaker) Execute(op func() error) error {
	b.mu.Lock()
	switch b.state {
	case StateOpen:
		if time.Since(b.lastFailureTime) <= b.recoveryTimeout {
			b.mu.Unlock()
			return ErrOpen
		}
		b.state = StateHalfOpen
	case StateHalfOpen:
		// Trial already in flight.
		b.mu.Unlock()
		return ErrOpen
	}
	b.mu.Unlock()

	err := op()

	b.mu.Lock()
	defer b.mu.Unlock()

	if err != nil {
		b.failureCount++
		b.totalFailures++
		b.lastFailureTime = time.Now()

		if b.state == StateHalfOpen {
			b.state = StateOpen
			log.Warn().Msg("circuit breaker trial failed, reopening")
		} else if b.failureCount >= b.threshold && b.state == StateClosed {
			b.state = StateOpen
			log.Warn().Int("failures", b.failureCount).Msg("circuit breaker opened")
		}
		return err
	}

	if b.state == StateHalfOpen {
		log.Info().Msg("circuit breaker recovered")
	}
	b.state = StateClosed
	b.failureCount = 0
	b.successCount++
	return nil
}

type Stats struct {
	State        string  `json:"state"`
	FailureCount int     `json:"failure_count"`
	SuccessCount int     `json:"success_count"`
	FailureRate  float64 `json:"failure_rate"`
}

// Stats is the health-check surface: open maps to unhealthy, half-open
// to degraded.
func (b *Breaker) Stats() Stats {
	b.mu.Lock()
	defer b.mu.Unlock()

	total := b.successCount + b.totalFailures
	var rate float64
	if total > 0 {
		rate = float64(b.totalFailures) / float64(total)
	}

	return Stats{
		State:        b.state.String(),
		FailureCount: b.failureCount,
		SuccessCount: b.successCount,
		FailureRate:  rate,
	}
}

func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}
