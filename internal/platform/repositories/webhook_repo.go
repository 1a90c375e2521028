package repositories

import (
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"crmcore/internal/platform/models"
)

type WebhookRepository struct {
	db *sql.DB
}

func NewWebhookRepository(db *sql.DB) *WebhookRepository {
	return &WebhookRepository{db: db}
}

func (r *WebhookRepository) CreateSubscription(sub *models.WebhookSubscription) error {
	sub.ID = "wh_" + uuid.New().String()
	sub.CreatedAt = time.Now().Unix()
	sub.UpdatedAt = sub.CreatedAt
	sub.IsActive = true

	eventsJSON, err := json.Marshal(sub.Events)
	if err != nil {
		return err
	}

	_, err = r.db.Exec(`
		INSERT INTO webhook_subscriptions (id, organization_id, url, events, secret, is_active, failure_count, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, 1, 0, ?, ?)
	`, sub.ID, sub.OrganizationID, sub.URL, string(eventsJSON), sub.Secret, sub.CreatedAt, sub.UpdatedAt)
	return err
}

func (r *WebhookRepository) scanSubscription(row interface {
	Scan(dest ...interface{}) error
}) (*models.WebhookSubscription, error) {
	var sub models.WebhookSubscription
	var eventsStr string
	var lastTriggeredAt sql.NullInt64

	err := row.Scan(&sub.ID, &sub.OrganizationID, &sub.URL, &eventsStr, &sub.Secret, &sub.IsActive, &sub.FailureCount, &lastTriggeredAt, &sub.CreatedAt, &sub.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if lastTriggeredAt.Valid {
		sub.LastTriggeredAt = lastTriggeredAt.Int64
	}
	json.Unmarshal([]byte(eventsStr), &sub.Events)
	return &sub, nil
}

const subscriptionColumns = `id, organization_id, url, events, secret, is_active, failure_count, last_triggered_at, created_at, updated_at`

func (r *WebhookRepository) GetSubscription(orgID, id string) (*models.WebhookSubscription, error) {
	row := r.db.QueryRow(`SELECT `+subscriptionColumns+` FROM webhook_subscriptions WHERE organization_id = ? AND id = ?`, orgID, id)
	sub, err := r.scanSubscription(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return sub, err
}

func (r *WebhookRepository) ListSubscriptions(orgID string) ([]*models.WebhookSubscription, error) {
	rows, err := r.db.Query(`SELECT `+subscriptionColumns+` FROM webhook_subscriptions WHERE organization_id = ? ORDER BY created_at DESC`, orgID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var subs []*models.WebhookSubscription
	for rows.Next() {
		sub, err := r.scanSubscription(rows)
		if err != nil {
			return nil, err
		}
		subs = append(subs, sub)
	}
	return subs, rows.Err()
}

// ListActiveSubscriptions returns the org's active subscriptions;
// event-type matching happens in the dispatcher since events are a JSON
// array column.
func (r *WebhookRepository) ListActiveSubscriptions(orgID string) ([]*models.WebhookSubscription, error) {
	rows, err := r.db.Query(`SELECT `+subscriptionColumns+` FROM webhook_subscriptions WHERE organization_id = ? AND is_active = 1`, orgID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var subs []*models.WebhookSubscription
	for rows.Next() {
		sub, err := r.scanSubscription(rows)
		if err != nil {
			return nil, err
		}
		subs = append(subs, sub)
	}
	return subs, rows.Err()
}

// UpdateSubscription mutates url, events and is_active. The secret is
// write-once at create and never touched here.
func (r *WebhookRepository) UpdateSubscription(sub *models.WebhookSubscription) error {
	eventsJSON, err := json.Marshal(sub.Events)
	if err != nil {
		return err
	}
	sub.UpdatedAt = time.Now().Unix()

	_, err = r.db.Exec(`
		UPDATE webhook_subscriptions
		SET url = ?, events = ?, is_active = ?, updated_at = ?
		WHERE organization_id = ? AND id = ?
	`, sub.URL, string(eventsJSON), sub.IsActive, sub.UpdatedAt, sub.OrganizationID, sub.ID)
	return err
}

func (r *WebhookRepository) DeleteSubscription(orgID, id string) error {
	_, err := r.db.Exec(`DELETE FROM webhook_subscriptions WHERE organization_id = ? AND id = ?`, orgID, id)
	return err
}

// RecordSuccess resets the failure streak after a 2xx delivery.
func (r *WebhookRepository) RecordSuccess(id string, timestamp int64) error {
	_, err := r.db.Exec(`UPDATE webhook_subscriptions SET failure_count = 0, last_triggered_at = ? WHERE id = ?`, timestamp, id)
	return err
}

// RecordFailure increments the failure streak and disables the
// subscription once it reaches disableThreshold. Re-enabling is an
// explicit administrative update, never automatic.
func (r *WebhookRepository) RecordFailure(id string, disableThreshold int) error {
	_, err := r.db.Exec(`
		UPDATE webhook_subscriptions
		SET failure_count = failure_count + 1,
		    is_active = CASE WHEN failure_count + 1 >= ? THEN 0 ELSE is_active END
		WHERE id = ?
	`, disableThreshold, id)
	return err
}

func (r *WebhookRepository) CreateEvent(event *models.WebhookEvent) error {
	dataJSON, err := json.Marshal(event.Data)
	if err != nil {
		return err
	}

	_, err = r.db.Exec(`
		INSERT INTO webhook_events (id, organization_id, type, resource, resource_id, data, timestamp)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, event.ID, event.OrganizationID, event.Type, event.Resource, event.ResourceID, string(dataJSON), event.Timestamp)
	return err
}

func (r *WebhookRepository) GetEvent(id string) (*models.WebhookEvent, error) {
	var event models.WebhookEvent
	var dataStr string
	err := r.db.QueryRow(`
		SELECT id, organization_id, type, resource, resource_id, data, timestamp
		FROM webhook_events WHERE id = ?
	`, id).Scan(&event.ID, &event.OrganizationID, &event.Type, &event.Resource, &event.ResourceID, &dataStr, &event.Timestamp)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	json.Unmarshal([]byte(dataStr), &event.Data)
	return &event, nil
}

func (r *WebhookRepository) CreateDelivery(delivery *models.WebhookDelivery) error {
	delivery.ID = "del_" + uuid.New().String()
	delivery.CreatedAt = time.Now().Unix()

	var errMsg sql.NullString
	if delivery.ErrorMessage != "" {
		errMsg = sql.NullString{String: delivery.ErrorMessage, Valid: true}
	}

	_, err := r.db.Exec(`
		INSERT INTO webhook_deliveries (id, subscription_id, event_id, status_code, success, error_message, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, delivery.ID, delivery.SubscriptionID, delivery.EventID, delivery.StatusCode, delivery.Success, errMsg, delivery.CreatedAt)
	return err
}

// ListFailedDeliveries returns the most recent failed delivery per
// (subscription, event) pair inside the lookback window, skipping pairs
// that have since succeeded.
func (r *WebhookRepository) ListFailedDeliveries(since int64) ([]*models.WebhookDelivery, error) {
	rows, err := r.db.Query(`
		SELECT d.id, d.subscription_id, d.event_id, d.status_code, d.success, d.error_message, d.created_at
		FROM webhook_deliveries d
		WHERE d.success = 0 AND d.created_at >= ?
		  AND NOT EXISTS (
		    SELECT 1 FROM webhook_deliveries ok
		    WHERE ok.subscription_id = d.subscription_id
		      AND ok.event_id = d.event_id AND ok.success = 1
		  )
		GROUP BY d.subscription_id, d.event_id
		HAVING d.created_at = MAX(d.created_at)
	`, since)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var deliveries []*models.WebhookDelivery
	for rows.Next() {
		var d models.WebhookDelivery
		var errMsg sql.NullString
		if err := rows.Scan(&d.ID, &d.SubscriptionID, &d.EventID, &d.StatusCode, &d.Success, &errMsg, &d.CreatedAt); err != nil {
			return nil, err
		}
		if errMsg.Valid {
			d.ErrorMessage = errMsg.String
		}
		deliveries = append(deliveries, &d)
	}
	return deliveries, rows.Err()
}

func (r *WebhookRepository) ListDeliveries(subscriptionID string, limit int) ([]*models.WebhookDelivery, error) {
	rows, err := r.db.Query(`
		SELECT id, subscription_id, event_id, status_code, success, error_message, created_at
		FROM webhook_deliveries WHERE subscription_id = ?
		ORDER BY created_at DESC LIMIT ?
	`, subscriptionID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var deliveries []*models.WebhookDelivery
	for rows.Next() {
		var d models.WebhookDelivery
		var errMsg sql.NullString
		if err := rows.Scan(&d.ID, &d.SubscriptionID, &d.EventID, &d.StatusCode, &d.Success, &errMsg, &d.CreatedAt); err != nil {
			return nil, err
		}
		if errMsg.Valid {
			d.ErrorMessage = errMsg.String
		}
		deliveries = append(deliveries, &d)
	}
	return deliveries, rows.Err()
}
