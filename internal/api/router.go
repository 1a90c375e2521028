package api

import (
	"context"
	"net/http"

	"github.com/julienschmidt/httprouter"

	apiContext "crmcore/internal/api/context"
	"crmcore/internal/api/handlers"
	"crmcore/internal/api/middleware"
	"crmcore/internal/pkg/errors"
	"crmcore/internal/platform/auth"
)

type Dependencies struct {
	AuthHandler    *handlers.AuthHandler
	AccountHandler *handlers.AccountHandler
	WebhookHandler *handlers.WebhookHandler
	BillingHandler *handlers.BillingHandler
	HealthHandler  *handlers.HealthHandler
	MetricsHandler *handlers.MetricsHandler

	AuthMiddleware      *middleware.AuthMiddleware
	AdmissionMiddleware *middleware.AdmissionMiddleware
}

func NewRouter(deps *Dependencies) *httprouter.Router {
	router := httprouter.New()

	authMid := deps.AuthMiddleware
	admit := deps.AdmissionMiddleware

	// Unthrottled operational surfaces (bypass patterns in the limiter
	// config keep these out of the counters regardless).
	router.GET("/health", wrap(deps.HealthHandler.Check))
	router.GET("/metrics", wrap(deps.MetricsHandler.Export))

	// Inbound billing webhooks: signature-gated, admission-exempt.
	router.POST("/api/webhooks/billing", wrap(deps.BillingHandler.Handle))

	// Authentication: pre-auth, so admission keys by client IP and the
	// brute-force tracker applies.
	router.POST("/api/auth/signup", chain(deps.AuthHandler.Signup, admit.Handle))
	router.POST("/api/auth/login", chain(deps.AuthHandler.Login, admit.Handle))

	// CRM accounts
	router.POST("/api/crm/accounts",
		chain(deps.AccountHandler.Create, authMid.Handle, admit.Handle))
	router.GET("/api/crm/accounts",
		chain(deps.AccountHandler.List, authMid.Handle, admit.Handle))
	router.GET("/api/crm/accounts/:account_id",
		chain(deps.AccountHandler.Get, authMid.Handle, admit.Handle))
	router.PATCH("/api/crm/accounts/:account_id",
		chain(deps.AccountHandler.Update, authMid.Handle, admit.Handle))
	router.DELETE("/api/crm/accounts/:account_id",
		chain(deps.AccountHandler.Delete, authMid.Handle, admit.Handle))

	// Webhook subscriptions
	router.POST("/api/webhooks",
		chain(deps.WebhookHandler.Create, authMid.Handle, admit.Handle, requireRole("admin", "owner")))
	router.GET("/api/webhooks",
		chain(deps.WebhookHandler.List, authMid.Handle, admit.Handle))
	router.GET("/api/webhooks/:webhook_id",
		chain(deps.WebhookHandler.Get, authMid.Handle, admit.Handle))
	router.PATCH("/api/webhooks/:webhook_id",
		chain(deps.WebhookHandler.Update, authMid.Handle, admit.Handle, requireRole("admin", "owner")))
	router.DELETE("/api/webhooks/:webhook_id",
		chain(deps.WebhookHandler.Delete, authMid.Handle, admit.Handle, requireRole("admin", "owner")))
	router.GET("/api/webhooks/:webhook_id/deliveries",
		chain(deps.WebhookHandler.ListDeliveries, authMid.Handle, admit.Handle))

	return router
}

// Helper function to chain middlewares
func chain(handler http.HandlerFunc, middlewares ...func(http.HandlerFunc) http.HandlerFunc) httprouter.Handle {
	for i := len(middlewares) - 1; i >= 0; i-- {
		handler = middlewares[i](handler)
	}
	return wrap(handler)
}

// Convert http.HandlerFunc to httprouter.Handle
func wrap(handler http.HandlerFunc) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		// Inject params into context
		ctx := context.WithValue(r.Context(), apiContext.Params, ps)
		handler(w, r.WithContext(ctx))
	}
}

func requireRole(roles ...string) func(http.HandlerFunc) http.HandlerFunc {
	return func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			claims := r.Context().Value(apiContext.Claims).(*auth.Claims)

			allowed := false
			for _, role := range roles {
				if claims.Role == role {
					allowed = true
					break
				}
			}

			if !allowed {
				errors.WriteError(w, http.StatusForbidden, errors.ErrCodeForbidden, "Insufficient permissions", nil)
				return
			}

			next(w, r)
		}
	}
}
