package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/julienschmidt/httprouter"

	apiContext "crmcore/internal/api/context"
	"crmcore/internal/engine/breaker"
	"crmcore/internal/engine/webhooks"
	"crmcore/internal/pkg/errors"
	"crmcore/internal/platform/auth"
	"crmcore/internal/platform/models"
	"crmcore/internal/platform/repositories"
)

// AccountHandler is the CRM-account surface. Every store access runs
// under the circuit breaker; mutations emit webhook events.
type AccountHandler struct {
	repo       *repositories.AccountRepository
	breaker    *breaker.Breaker
	dispatcher *webhooks.Dispatcher
}

func NewAccountHandler(repo *repositories.AccountRepository, cb *breaker.Breaker, dispatcher *webhooks.Dispatcher) *AccountHandler {
	return &AccountHandler{
		repo:       repo,
		breaker:    cb,
		dispatcher: dispatcher,
	}
}

func writeStoreError(w http.ResponseWriter, err error) {
	if err == breaker.ErrOpen {
		errors.WriteError(w, http.StatusServiceUnavailable, errors.ErrCodeCircuitOpen, "Data store temporarily unavailable", nil)
		return
	}
	errors.WriteError(w, http.StatusInternalServerError, errors.ErrCodeInternal, "Database error", nil)
}

type AccountRequest struct {
	Name          string `json:"name"`
	Website       string `json:"website"`
	Industry      string `json:"industry"`
	AnnualRevenue int64  `json:"annual_revenue"`
}

func (h *AccountHandler) Create(w http.ResponseWriter, r *http.Request) {
	claims := r.Context().Value(apiContext.Claims).(*auth.Claims)

	var req AccountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		errors.WriteError(w, http.StatusBadRequest, errors.ErrCodeInvalidInput, "Invalid request body", nil)
		return
	}
	if req.Name == "" {
		errors.WriteError(w, http.StatusBadRequest, errors.ErrCodeInvalidInput, "Account name is required", nil)
		return
	}

	account := &models.Account{
		OrganizationID: claims.OrganizationID,
		Name:           req.Name,
		Website:        req.Website,
		Industry:       req.Industry,
		OwnerID:        claims.UserID,
		AnnualRevenue:  req.AnnualRevenue,
	}

	if err := h.breaker.Execute(func() error {
		return h.repo.Create(account)
	}); err != nil {
		writeStoreError(w, err)
		return
	}

	h.dispatcher.TriggerEvent(claims.OrganizationID, "account.created", "account", account.ID, account)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(account)
}

func (h *AccountHandler) List(w http.ResponseWriter, r *http.Request) {
	claims := r.Context().Value(apiContext.Claims).(*auth.Claims)

	var accounts []*models.Account
	if err := h.breaker.Execute(func() error {
		var err error
		accounts, err = h.repo.List(claims.OrganizationID)
		return err
	}); err != nil {
		writeStoreError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(accounts)
}

func (h *AccountHandler) Get(w http.ResponseWriter, r *http.Request) {
	claims := r.Context().Value(apiContext.Claims).(*auth.Claims)
	params := r.Context().Value(apiContext.Params).(httprouter.Params)
	id := params.ByName("account_id")

	var account *models.Account
	if err := h.breaker.Execute(func() error {
		var err error
		account, err = h.repo.GetByID(claims.OrganizationID, id)
		return err
	}); err != nil {
		writeStoreError(w, err)
		return
	}
	if account == nil {
		errors.WriteError(w, http.StatusNotFound, errors.ErrCodeNotFound, "Account not found", nil)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(account)
}

func (h *AccountHandler) Update(w http.ResponseWriter, r *http.Request) {
	claims := r.Context().Value(apiContext.Claims).(*auth.Claims)
	params := r.Context().Value(apiContext.Params).(httprouter.Params)
	id := params.ByName("account_id")

	var req AccountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		errors.WriteError(w, http.StatusBadRequest, errors.ErrCodeInvalidInput, "Invalid request body", nil)
		return
	}

	var account *models.Account
	if err := h.breaker.Execute(func() error {
		var err error
		account, err = h.repo.GetByID(claims.OrganizationID, id)
		return err
	}); err != nil {
		writeStoreError(w, err)
		return
	}
	if account == nil {
		errors.WriteError(w, http.StatusNotFound, errors.ErrCodeNotFound, "Account not found", nil)
		return
	}

	if req.Name != "" {
		account.Name = req.Name
	}
	if req.Website != "" {
		account.Website = req.Website
	}
	if req.Industry != "" {
		account.Industry = req.Industry
	}
	if req.AnnualRevenue != 0 {
		account.AnnualRevenue = req.AnnualRevenue
	}

	if err := h.breaker.Execute(func() error {
		return h.repo.Update(account)
	}); err != nil {
		writeStoreError(w, err)
		return
	}

	h.dispatcher.TriggerEvent(claims.OrganizationID, "account.updated", "account", account.ID, account)

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(account)
}

func (h *AccountHandler) Delete(w http.ResponseWriter, r *http.Request) {
	claims := r.Context().Value(apiContext.Claims).(*auth.Claims)
	params := r.Context().Value(apiContext.Params).(httprouter.Params)
	id := params.ByName("account_id")

	if err := h.breaker.Execute(func() error {
		return h.repo.Delete(claims.OrganizationID, id)
	}); err != nil {
		writeStoreError(w, err)
		return
	}

	h.dispatcher.TriggerEvent(claims.OrganizationID, "account.deleted", "account", id, nil)

	w.WriteHeader(http.StatusOK)
}
