package handlers

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"

	"crmcore/internal/engine/webhooks"
	"crmcore/internal/platform/repositories"
)

const billingSecret = "test-billing-secret"

func newBillingHandler(t *testing.T) (*BillingHandler, sqlmock.Sqlmock) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("an error '%s' was not expected when opening a stub database connection", err)
	}
	t.Cleanup(func() { db.Close() })

	return NewBillingHandler(repositories.NewOrganizationRepository(db), billingSecret), mock
}

func postBilling(h *BillingHandler, body []byte, signature string) *httptest.ResponseRecorder {
	req := httptest.NewRequest("POST", "/api/webhooks/billing", bytes.NewReader(body))
	if signature != "" {
		req.Header.Set("X-Billing-Signature", signature)
	}
	rr := httptest.NewRecorder()
	h.Handle(rr, req)
	return rr
}

func TestBillingRejectsBadSignature(t *testing.T) {
	h, _ := newBillingHandler(t)
	body := []byte(`{"type":"subscription.updated","data":{"organization_id":"org_1","plan":"PRO"}}`)

	if rr := postBilling(h, body, ""); rr.Code != http.StatusUnauthorized {
		t.Errorf("missing signature: expected 401, got %d", rr.Code)
	}
	if rr := postBilling(h, body, "deadbeef"); rr.Code != http.StatusUnauthorized {
		t.Errorf("bogus signature: expected 401, got %d", rr.Code)
	}

	// Signature over a different body must not verify.
	sig := webhooks.Sign(billingSecret, []byte(`{"type":"other"}`))
	if rr := postBilling(h, body, sig); rr.Code != http.StatusUnauthorized {
		t.Errorf("mismatched signature: expected 401, got %d", rr.Code)
	}
}

func TestBillingPlanChange(t *testing.T) {
	h, mock := newBillingHandler(t)

	mock.ExpectExec("UPDATE organizations SET plan_tier = (.+) WHERE id = ?").
		WithArgs("PRO", sqlmock.AnyArg(), "org_1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	body := []byte(`{"type":"subscription.updated","data":{"organization_id":"org_1","plan":"PRO"}}`)
	rr := postBilling(h, body, webhooks.Sign(billingSecret, body))

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("plan update not applied: %v", err)
	}
}

func TestBillingCancellationDowngrades(t *testing.T) {
	h, mock := newBillingHandler(t)

	mock.ExpectExec("UPDATE organizations SET plan_tier = (.+) WHERE id = ?").
		WithArgs("FREE", sqlmock.AnyArg(), "org_1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	body := []byte(`{"type":"subscription.canceled","data":{"organization_id":"org_1"}}`)
	rr := postBilling(h, body, webhooks.Sign(billingSecret, body))

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("downgrade not applied: %v", err)
	}
}

func TestBillingUnknownEventAccepted(t *testing.T) {
	h, mock := newBillingHandler(t)

	// Provider retry storms are avoided by acknowledging unknown types
	// without touching the store.
	body := []byte(`{"type":"payout.settled","data":{}}`)
	rr := postBilling(h, body, webhooks.Sign(billingSecret, body))

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200 for unknown event, got %d", rr.Code)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unknown events must not hit the database: %v", err)
	}
}

func TestBillingRejectsInvalidPlan(t *testing.T) {
	h, _ := newBillingHandler(t)

	body := []byte(`{"type":"subscription.updated","data":{"organization_id":"org_1","plan":"PLATINUM"}}`)
	rr := postBilling(h, body, webhooks.Sign(billingSecret, body))

	if rr.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for unknown plan, got %d", rr.Code)
	}
}
