package handlers

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/rs/zerolog/log"

	"crmcore/internal/engine/webhooks"
	"crmcore/internal/pkg/errors"
	"crmcore/internal/platform/models"
	"crmcore/internal/platform/repositories"
)

// BillingHandler receives signed webhooks from the payment provider.
// The signature is the gate: this path is exempt from the rate limiter.
type BillingHandler struct {
	orgRepo *repositories.OrganizationRepository
	secret  string
}

func NewBillingHandler(orgRepo *repositories.OrganizationRepository, secret string) *BillingHandler {
	return &BillingHandler{orgRepo: orgRepo, secret: secret}
}

type billingEvent struct {
	Type string `json:"type"`
	Data struct {
		OrganizationID string `json:"organization_id"`
		Plan           string `json:"plan"`
	} `json:"data"`
}

func (h *BillingHandler) Handle(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		errors.WriteError(w, http.StatusBadRequest, errors.ErrCodeInvalidInput, "Failed to read request body", nil)
		return
	}

	// Verify before touching anything else. Constant-time comparison
	// over the raw body bytes.
	signature := r.Header.Get("X-Billing-Signature")
	if signature == "" || !webhooks.Verify(h.secret, body, signature) {
		errors.WriteError(w, http.StatusUnauthorized, errors.ErrCodeUnauthorized, "Invalid webhook signature", nil)
		return
	}

	var event billingEvent
	if err := json.Unmarshal(body, &event); err != nil {
		errors.WriteError(w, http.StatusBadRequest, errors.ErrCodeInvalidInput, "Invalid event payload", nil)
		return
	}

	switch event.Type {
	case "subscription.updated", "subscription.created":
		if !validPlan(event.Data.Plan) || event.Data.OrganizationID == "" {
			errors.WriteError(w, http.StatusBadRequest, errors.ErrCodeInvalidInput, "Invalid plan change payload", nil)
			return
		}
		if err := h.orgRepo.UpdatePlanTier(event.Data.OrganizationID, event.Data.Plan); err != nil {
			errors.WriteError(w, http.StatusInternalServerError, errors.ErrCodeInternal, "Failed to update plan", nil)
			return
		}
		log.Info().
			Str("org_id", event.Data.OrganizationID).
			Str("plan", event.Data.Plan).
			Msg("plan updated from billing webhook")
	case "subscription.canceled":
		if event.Data.OrganizationID == "" {
			errors.WriteError(w, http.StatusBadRequest, errors.ErrCodeInvalidInput, "Invalid cancellation payload", nil)
			return
		}
		if err := h.orgRepo.UpdatePlanTier(event.Data.OrganizationID, models.PlanFree); err != nil {
			errors.WriteError(w, http.StatusInternalServerError, errors.ErrCodeInternal, "Failed to downgrade plan", nil)
			return
		}
	default:
		// Unknown event types get a 200 so the provider does not retry
		// them forever; they are simply not processed.
		log.Debug().Str("type", event.Type).Msg("ignoring unrecognized billing event")
	}

	w.WriteHeader(http.StatusOK)
}

func validPlan(plan string) bool {
	switch plan {
	case models.PlanFree, models.PlanPro, models.PlanEnterprise:
		return true
	}
	return false
}
