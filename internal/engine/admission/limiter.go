package admission

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
)

// Request carries the already-resolved request identity. The middleware
// builds it from the path, claims and remote address.
type Request struct {
	Path     string
	OrgID    string
	PlanTier string
	IsAdmin  bool
	IP       string
}

type Decision struct {
	Allowed    bool
	Bypass     bool // policy exemption: no counters touched, no headers set
	Locked     bool // brute-force lockout (wire format stays identical to a rate limit)
	Limit      int
	Remaining  int
	Reset      time.Time
	RetryAfter time.Duration
}

// Limiter is the admission controller: per request it decides allow or
// reject from plan, endpoint policy and brute-force history.
type Limiter struct {
	resolver   *PolicyResolver
	counters   CounterStore
	bruteForce *BruteForceStore
}

func NewLimiter(resolver *PolicyResolver, counters CounterStore, bruteForce *BruteForceStore) *Limiter {
	return &Limiter{
		resolver:   resolver,
		counters:   counters,
		bruteForce: bruteForce,
	}
}

func (l *Limiter) BruteForce() *BruteForceStore {
	return l.bruteForce
}

func allow() Decision {
	return Decision{Allowed: true, Bypass: true}
}

func (l *Limiter) Evaluate(ctx context.Context, req Request) Decision {
	if l.resolver.Bypass(req.Path) {
		return allow()
	}

	policy := l.resolver.Resolve(req.Path, req.PlanTier)

	for _, plan := range policy.SkipForPlans {
		if plan == req.PlanTier {
			return allow()
		}
	}
	if req.IsAdmin && policy.BypassForAdmin {
		return allow()
	}

	identifier := ""
	switch {
	case req.OrgID != "":
		identifier = "org:" + req.OrgID
	case policy.UseIPFallback && req.IP != "":
		identifier = "ip:" + req.IP
	default:
		// Nothing to key on and the policy forbids IP fallback.
		return allow()
	}

	// Auth-class paths get a second, independent counter: repeated
	// attempts lock the identifier out regardless of the general limit.
	if policy.AuthEndpoint {
		if locked, retryAfter := l.bruteForce.Register(identifier); locked {
			return Decision{
				Locked:     true,
				Limit:      policy.Requests,
				Remaining:  0,
				Reset:      time.Now().Add(retryAfter),
				RetryAfter: retryAfter,
			}
		}
	}

	count, reset, err := l.counters.Incr(ctx, identifier+":"+policy.Path, policy.Window)
	if err != nil {
		// Fail open: availability of the API beats strict enforcement
		// while the counter store is degraded.
		log.Warn().Err(err).Str("identifier", identifier).Msg("counter store unavailable, admitting request")
		return allow()
	}

	remaining := policy.Requests - int(count)
	if remaining < 0 {
		remaining = 0
	}

	d := Decision{
		Allowed:   count <= int64(policy.Requests),
		Limit:     policy.Requests,
		Remaining: remaining,
		Reset:     reset,
	}
	if !d.Allowed {
		d.RetryAfter = time.Until(reset)
	}
	return d
}
