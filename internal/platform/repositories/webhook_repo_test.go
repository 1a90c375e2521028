package repositories

import (
	"database/sql"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"crmcore/internal/platform/models"
)

func setupWebhookDB(t *testing.T) *sql.DB {
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

func TestSubscriptionCreateAndGet(t *testing.T) {
	repo := NewWebhookRepository(setupWebhookDB(t))

	sub := &models.WebhookSubscription{
		OrganizationID: "org_1",
		URL:            "https://example.com/hook",
		Events:         []string{"account.created", "invoice.paid"},
		Secret:         "whsec_abc",
	}
	if err := repo.CreateSubscription(sub); err != nil {
		t.Fatalf("Failed to create subscription: %v", err)
	}
	if sub.ID == "" || !sub.IsActive {
		t.Fatal("create should assign an id and mark the subscription active")
	}

	fetched, err := repo.GetSubscription("org_1", sub.ID)
	if err != nil {
		t.Fatalf("Failed to get subscription: %v", err)
	}
	if fetched.URL != sub.URL || len(fetched.Events) != 2 || fetched.Secret != "whsec_abc" {
		t.Errorf("fetched subscription mismatch: %+v", fetched)
	}

	// Tenant scoping: another org cannot see it.
	other, err := repo.GetSubscription("org_2", sub.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if other != nil {
		t.Error("subscription should not be visible to other organizations")
	}
}

func TestSubscriptionUpdateKeepsSecret(t *testing.T) {
	repo := NewWebhookRepository(setupWebhookDB(t))

	sub := &models.WebhookSubscription{
		OrganizationID: "org_1",
		URL:            "https://example.com/hook",
		Events:         []string{"*"},
		Secret:         "whsec_original",
	}
	repo.CreateSubscription(sub)

	sub.URL = "https://example.com/hook2"
	sub.Events = []string{"account.created"}
	if err := repo.UpdateSubscription(sub); err != nil {
		t.Fatalf("Failed to update: %v", err)
	}

	fetched, _ := repo.GetSubscription("org_1", sub.ID)
	if fetched.URL != "https://example.com/hook2" {
		t.Errorf("URL not updated: %s", fetched.URL)
	}
	if fetched.Secret != "whsec_original" {
		t.Error("update must never touch the secret")
	}
}

func TestRecordFailureDisablesAtThreshold(t *testing.T) {
	repo := NewWebhookRepository(setupWebhookDB(t))

	sub := &models.WebhookSubscription{
		OrganizationID: "org_1",
		URL:            "https://example.com/hook",
		Events:         []string{"*"},
		Secret:         "s",
	}
	repo.CreateSubscription(sub)

	for i := 0; i < 9; i++ {
		if err := repo.RecordFailure(sub.ID, 10); err != nil {
			t.Fatalf("failure %d: %v", i+1, err)
		}
	}
	fetched, _ := repo.GetSubscription("org_1", sub.ID)
	if !fetched.IsActive || fetched.FailureCount != 9 {
		t.Fatalf("expected active with 9 failures, got active=%v count=%d", fetched.IsActive, fetched.FailureCount)
	}

	repo.RecordFailure(sub.ID, 10)
	fetched, _ = repo.GetSubscription("org_1", sub.ID)
	if fetched.IsActive {
		t.Error("10th failure should disable the subscription")
	}

	// Active listing excludes it.
	active, _ := repo.ListActiveSubscriptions("org_1")
	if len(active) != 0 {
		t.Errorf("disabled subscription should not be listed active, got %d", len(active))
	}

	// Success resets the streak but never re-enables.
	repo.RecordSuccess(sub.ID, time.Now().Unix())
	fetched, _ = repo.GetSubscription("org_1", sub.ID)
	if fetched.FailureCount != 0 {
		t.Errorf("expected failure count reset, got %d", fetched.FailureCount)
	}
	if fetched.IsActive {
		t.Error("reactivation requires an explicit administrative update")
	}
}

func TestEventRoundTrip(t *testing.T) {
	repo := NewWebhookRepository(setupWebhookDB(t))

	event := &models.WebhookEvent{
		ID:             "evt_1",
		OrganizationID: "org_1",
		Type:           "invoice.created",
		Resource:       "invoice",
		ResourceID:     "inv_9",
		Data:           map[string]interface{}{"amount": 4200.0},
		Timestamp:      "2026-01-02T15:04:05Z",
	}
	if err := repo.CreateEvent(event); err != nil {
		t.Fatalf("Failed to create event: %v", err)
	}

	fetched, err := repo.GetEvent("evt_1")
	if err != nil {
		t.Fatalf("Failed to get event: %v", err)
	}
	if fetched.Type != "invoice.created" || fetched.ResourceID != "inv_9" {
		t.Errorf("event mismatch: %+v", fetched)
	}
	data, ok := fetched.Data.(map[string]interface{})
	if !ok || data["amount"] != 4200.0 {
		t.Errorf("event data did not round-trip: %#v", fetched.Data)
	}
}

func TestListFailedDeliveries(t *testing.T) {
	repo := NewWebhookRepository(setupWebhookDB(t))
	now := time.Now().Unix()

	// Pair (sub_1, evt_1) failed and never succeeded: retryable.
	repo.CreateDelivery(&models.WebhookDelivery{SubscriptionID: "sub_1", EventID: "evt_1", StatusCode: 500, ErrorMessage: "HTTP 500"})
	// Pair (sub_1, evt_2) failed then succeeded: settled.
	repo.CreateDelivery(&models.WebhookDelivery{SubscriptionID: "sub_1", EventID: "evt_2", StatusCode: 500, ErrorMessage: "HTTP 500"})
	repo.CreateDelivery(&models.WebhookDelivery{SubscriptionID: "sub_1", EventID: "evt_2", StatusCode: 200, Success: true})

	failed, err := repo.ListFailedDeliveries(now - 3600)
	if err != nil {
		t.Fatalf("Failed to list: %v", err)
	}
	if len(failed) != 1 {
		t.Fatalf("expected 1 retryable delivery, got %d", len(failed))
	}
	if failed[0].EventID != "evt_1" {
		t.Errorf("expected evt_1, got %s", failed[0].EventID)
	}
	if failed[0].ErrorMessage != "HTTP 500" {
		t.Errorf("expected error message preserved, got %q", failed[0].ErrorMessage)
	}
}
