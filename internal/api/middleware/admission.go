package middleware

import (
	"math"
	"net"
	"net/http"
	"strconv"
	"strings"

	apiContext "crmcore/internal/api/context"
	"crmcore/internal/engine/admission"
	"crmcore/internal/pkg/errors"
	"crmcore/internal/platform/auth"
)

// AdmissionMiddleware gates every request through the rate limiter.
// Chain it after AuthMiddleware where one applies so the decision can
// key on the organization; unauthenticated paths fall back to client IP.
type AdmissionMiddleware struct {
	limiter *admission.Limiter
}

func NewAdmissionMiddleware(limiter *admission.Limiter) *AdmissionMiddleware {
	return &AdmissionMiddleware{limiter: limiter}
}

func (m *AdmissionMiddleware) Handle(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		req := admission.Request{
			Path: r.URL.Path,
			IP:   clientIP(r),
		}
		if claims, ok := r.Context().Value(apiContext.Claims).(*auth.Claims); ok {
			req.OrgID = claims.OrganizationID
			req.PlanTier = claims.PlanTier
			req.IsAdmin = claims.IsAdmin()
		}

		decision := m.limiter.Evaluate(r.Context(), req)

		if !decision.Bypass {
			w.Header().Set("X-RateLimit-Limit", strconv.Itoa(decision.Limit))
			w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(decision.Remaining))
			w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(decision.Reset.Unix(), 10))
		}

		if !decision.Allowed {
			retryAfter := int(math.Ceil(decision.RetryAfter.Seconds()))
			if retryAfter < 1 {
				retryAfter = 1
			}
			w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
			// Lockouts deliberately look identical to rate-limit
			// rejections on the wire.
			errors.WriteRateLimited(w, "Rate limit exceeded", retryAfter)
			return
		}

		next(w, r)
	}
}

func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		if i := strings.IndexByte(fwd, ','); i >= 0 {
			return strings.TrimSpace(fwd[:i])
		}
		return strings.TrimSpace(fwd)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
