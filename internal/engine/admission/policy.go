package admission

import (
	"strings"
	"time"

	"crmcore/internal/platform/config"
	"crmcore/internal/platform/models"
)

// Policy is the resolved per-request limit. Zero Requests means the
// plan default applies.
type Policy struct {
	Path           string
	Requests       int
	Window         time.Duration
	SkipForPlans   []string
	BypassForAdmin bool
	UseIPFallback  bool
	AuthEndpoint   bool
}

var defaultPlanLimits = map[string]config.PlanLimit{
	models.PlanFree:       {Requests: 100, Window: time.Hour},
	models.PlanPro:        {Requests: 1000, Window: time.Hour},
	models.PlanEnterprise: {Requests: 10000, Window: time.Hour},
}

// PolicyResolver matches a request path to its endpoint policy: exact
// path first, then longest prefix, then the plan default.
type PolicyResolver struct {
	exact       map[string]Policy
	prefixes    []Policy // sorted longest-first
	planLimits  map[string]config.PlanLimit
	bypassPaths []string
}

func NewPolicyResolver(cfg config.RateLimitConfig) *PolicyResolver {
	r := &PolicyResolver{
		exact:       make(map[string]Policy),
		planLimits:  cfg.PlanDefaults,
		bypassPaths: cfg.BypassPaths,
	}
	if len(r.planLimits) == 0 {
		r.planLimits = defaultPlanLimits
	}

	for _, ep := range cfg.Endpoints {
		p := Policy{
			Path:           ep.Path,
			Requests:       ep.Requests,
			Window:         ep.Window,
			SkipForPlans:   ep.SkipForPlans,
			BypassForAdmin: ep.BypassForAdmin,
			UseIPFallback:  ep.UseIPFallback,
			AuthEndpoint:   ep.AuthEndpoint,
		}
		if strings.HasSuffix(ep.Path, "*") {
			p.Path = strings.TrimSuffix(ep.Path, "*")
			r.prefixes = append(r.prefixes, p)
		} else {
			r.exact[ep.Path] = p
		}
	}

	// Longest prefix wins.
	for i := 1; i < len(r.prefixes); i++ {
		for j := i; j > 0 && len(r.prefixes[j].Path) > len(r.prefixes[j-1].Path); j-- {
			r.prefixes[j], r.prefixes[j-1] = r.prefixes[j-1], r.prefixes[j]
		}
	}

	return r
}

// Bypass reports whether the path skips admission entirely (health
// checks, cron endpoints gated by a shared secret, signed inbound
// webhooks). No counters are touched for these.
func (r *PolicyResolver) Bypass(path string) bool {
	for _, p := range r.bypassPaths {
		if path == p || strings.HasPrefix(path, p) {
			return true
		}
	}
	return false
}

// Resolve returns the effective policy for path under the given plan.
func (r *PolicyResolver) Resolve(path, planTier string) Policy {
	if p, ok := r.exact[path]; ok {
		return r.withPlanDefault(p, planTier)
	}
	for _, p := range r.prefixes {
		if strings.HasPrefix(path, p.Path) {
			return r.withPlanDefault(p, planTier)
		}
	}

	limit := r.planLimit(planTier)
	return Policy{
		Path:          path,
		Requests:      limit.Requests,
		Window:        limit.Window,
		UseIPFallback: true,
	}
}

func (r *PolicyResolver) withPlanDefault(p Policy, planTier string) Policy {
	if p.Requests <= 0 || p.Window <= 0 {
		limit := r.planLimit(planTier)
		if p.Requests <= 0 {
			p.Requests = limit.Requests
		}
		if p.Window <= 0 {
			p.Window = limit.Window
		}
	}
	return p
}

func (r *PolicyResolver) planLimit(planTier string) config.PlanLimit {
	if l, ok := r.planLimits[planTier]; ok {
		return l
	}
	if l, ok := r.planLimits[models.PlanFree]; ok {
		return l
	}
	return defaultPlanLimits[models.PlanFree]
}
