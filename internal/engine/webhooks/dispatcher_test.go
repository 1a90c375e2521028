package webhooks

import (
	"database/sql"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"crmcore/internal/platform/config"
	"crmcore/internal/platform/models"
	"crmcore/internal/platform/repositories"
)

func setupTestDB(t *testing.T) *sql.DB {
	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("Failed to open db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	query := `
	CREATE TABLE webhook_subscriptions (
		id TEXT PRIMARY KEY,
		organization_id TEXT NOT NULL,
		url TEXT NOT NULL,
		events TEXT NOT NULL,
		secret TEXT NOT NULL,
		is_active INTEGER DEFAULT 1,
		failure_count INTEGER DEFAULT 0,
		last_triggered_at INTEGER,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);
	CREATE TABLE webhook_events (
		id TEXT PRIMARY KEY,
		organization_id TEXT NOT NULL,
		type TEXT NOT NULL,
		resource TEXT NOT NULL,
		resource_id TEXT NOT NULL,
		data TEXT,
		timestamp TEXT NOT NULL
	);
	CREATE TABLE webhook_deliveries (
		id TEXT PRIMARY KEY,
		subscription_id TEXT NOT NULL,
		event_id TEXT NOT NULL,
		status_code INTEGER DEFAULT 0,
		success INTEGER NOT NULL,
		error_message TEXT,
		created_at INTEGER NOT NULL
	);
	`
	if _, err := db.Exec(query); err != nil {
		t.Fatalf("Failed to create tables: %v", err)
	}
	return db
}

func testDispatcher(t *testing.T, db *sql.DB) (*Dispatcher, *repositories.WebhookRepository) {
	repo := repositories.NewWebhookRepository(db)
	d := NewDispatcher(repo, config.WebhooksConfig{
		DeliveryTimeout:  2 * time.Second,
		DisableThreshold: 10,
		MaxConcurrent:    4,
	})
	return d, repo
}

func createSubscription(t *testing.T, repo *repositories.WebhookRepository, url string, events []string) *models.WebhookSubscription {
	t.Helper()
	secret, err := GenerateSecret()
	if err != nil {
		t.Fatalf("Failed to generate secret: %v", err)
	}
	sub := &models.WebhookSubscription{
		OrganizationID: "org_1",
		URL:            url,
		Events:         events,
		Secret:         secret,
	}
	if err := repo.CreateSubscription(sub); err != nil {
		t.Fatalf("Failed to create subscription: %v", err)
	}
	return sub
}

func TestDeliverySignedAndRecorded(t *testing.T) {
	db := setupTestDB(t)
	d, repo := testDispatcher(t, db)

	var gotSig, gotID, gotTS string
	var gotBody []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotSig = r.Header.Get("X-Webhook-Signature")
		gotID = r.Header.Get("X-Webhook-ID")
		gotTS = r.Header.Get("X-Webhook-Timestamp")
		gotBody, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	sub := createSubscription(t, repo, srv.URL, []string{"account.created"})

	event := &models.WebhookEvent{
		ID:             "evt_1",
		OrganizationID: "org_1",
		Type:           "account.created",
		Resource:       "account",
		ResourceID:     "acc_1",
		Data:           map[string]interface{}{"name": "Acme"},
		Timestamp:      time.Now().UTC().Format(time.RFC3339),
	}
	if err := repo.CreateEvent(event); err != nil {
		t.Fatalf("Failed to create event: %v", err)
	}

	d.Deliver(sub, event)

	if gotID != "evt_1" {
		t.Errorf("expected event id header evt_1, got %s", gotID)
	}
	if gotTS == "" {
		t.Error("missing timestamp header")
	}
	if !Verify(sub.Secret, gotBody, gotSig) {
		t.Error("receiver-side verification of the sent payload failed")
	}

	deliveries, err := repo.ListDeliveries(sub.ID, 10)
	if err != nil {
		t.Fatalf("Failed to list deliveries: %v", err)
	}
	if len(deliveries) != 1 || !deliveries[0].Success || deliveries[0].StatusCode != 200 {
		t.Errorf("expected one successful delivery record, got %+v", deliveries)
	}

	fresh, _ := repo.GetSubscription("org_1", sub.ID)
	if fresh.FailureCount != 0 {
		t.Errorf("expected failure count 0, got %d", fresh.FailureCount)
	}
	if fresh.LastTriggeredAt == 0 {
		t.Error("last_triggered_at should be set")
	}
}

func TestAutoDisableAfterTenFailures(t *testing.T) {
	db := setupTestDB(t)
	d, repo := testDispatcher(t, db)

	var hits atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	sub := createSubscription(t, repo, srv.URL, []string{"invoice.created"})

	event := &models.WebhookEvent{
		ID:             "evt_fail",
		OrganizationID: "org_1",
		Type:           "invoice.created",
		Resource:       "invoice",
		ResourceID:     "inv_1",
		Timestamp:      time.Now().UTC().Format(time.RFC3339),
	}
	if err := repo.CreateEvent(event); err != nil {
		t.Fatalf("Failed to create event: %v", err)
	}

	for i := 0; i < 10; i++ {
		d.Deliver(sub, event)
	}

	fresh, _ := repo.GetSubscription("org_1", sub.ID)
	if fresh.FailureCount != 10 {
		t.Errorf("expected failure count 10, got %d", fresh.FailureCount)
	}
	if fresh.IsActive {
		t.Fatal("subscription should be disabled after the 10th failure")
	}

	deliveries, _ := repo.ListDeliveries(sub.ID, 20)
	if len(deliveries) != 10 {
		t.Errorf("expected 10 failed delivery records, got %d", len(deliveries))
	}

	// A new event produces no further attempt for the disabled subscriber.
	before := hits.Load()
	d.TriggerEvent("org_1", "invoice.created", "invoice", "inv_2", nil)
	time.Sleep(100 * time.Millisecond)
	if hits.Load() != before {
		t.Error("disabled subscription must not receive deliveries")
	}
}

func TestTriggerEventMatching(t *testing.T) {
	db := setupTestDB(t)
	d, repo := testDispatcher(t, db)

	var accountHits, wildcardHits, otherHits atomic.Int64
	accountSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		accountHits.Add(1)
	}))
	defer accountSrv.Close()
	wildcardSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		wildcardHits.Add(1)
	}))
	defer wildcardSrv.Close()
	otherSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		otherHits.Add(1)
	}))
	defer otherSrv.Close()

	createSubscription(t, repo, accountSrv.URL, []string{"account.created"})
	createSubscription(t, repo, wildcardSrv.URL, []string{"*"})
	createSubscription(t, repo, otherSrv.URL, []string{"invoice.paid"})

	d.TriggerEvent("org_1", "account.created", "account", "acc_1", map[string]string{"name": "Acme"})

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if accountHits.Load() == 1 && wildcardHits.Load() == 1 {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}

	if accountHits.Load() != 1 {
		t.Errorf("exact-match subscription expected 1 delivery, got %d", accountHits.Load())
	}
	if wildcardHits.Load() != 1 {
		t.Errorf("wildcard subscription expected 1 delivery, got %d", wildcardHits.Load())
	}
	if otherHits.Load() != 0 {
		t.Errorf("non-matching subscription expected 0 deliveries, got %d", otherHits.Load())
	}
}

func TestRetryFailedDeliveries(t *testing.T) {
	db := setupTestDB(t)
	d, repo := testDispatcher(t, db)

	var healthy atomic.Bool
	var hits atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		if healthy.Load() {
			w.WriteHeader(http.StatusOK)
		} else {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
	}))
	defer srv.Close()

	sub := createSubscription(t, repo, srv.URL, []string{"account.updated"})

	event := &models.WebhookEvent{
		ID:             "evt_retry",
		OrganizationID: "org_1",
		Type:           "account.updated",
		Resource:       "account",
		ResourceID:     "acc_1",
		Timestamp:      time.Now().UTC().Format(time.RFC3339),
	}
	if err := repo.CreateEvent(event); err != nil {
		t.Fatalf("Failed to create event: %v", err)
	}

	d.Deliver(sub, event)
	if sub, _ := repo.GetSubscription("org_1", sub.ID); sub.FailureCount != 1 {
		t.Fatalf("expected one recorded failure, got %d", sub.FailureCount)
	}

	// Endpoint recovers; the sweep redelivers and the streak resets.
	healthy.Store(true)
	if err := d.RetryFailedDeliveries(1); err != nil {
		t.Fatalf("retry pass failed: %v", err)
	}
	if hits.Load() != 2 {
		t.Errorf("expected redelivery attempt, got %d hits", hits.Load())
	}

	fresh, _ := repo.GetSubscription("org_1", sub.ID)
	if fresh.FailureCount != 0 {
		t.Errorf("expected failure count reset after successful retry, got %d", fresh.FailureCount)
	}

	// A retried success drops the pair out of the next sweep.
	if err := d.RetryFailedDeliveries(1); err != nil {
		t.Fatalf("second retry pass failed: %v", err)
	}
	if hits.Load() != 2 {
		t.Errorf("succeeded pair should not be retried again, got %d hits", hits.Load())
	}
}
