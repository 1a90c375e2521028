package webhooks

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"crmcore/internal/platform/config"
	"crmcore/internal/platform/models"
	"crmcore/internal/platform/repositories"
)

type Dispatcher struct {
	repo             *repositories.WebhookRepository
	client           *http.Client
	disableThreshold int
	maxConcurrent    int
}

func NewDispatcher(repo *repositories.WebhookRepository, cfg config.WebhooksConfig) *Dispatcher {
	timeout := cfg.DeliveryTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	threshold := cfg.DisableThreshold
	if threshold <= 0 {
		threshold = 10
	}
	maxConcurrent := cfg.MaxConcurrent
	if maxConcurrent <= 0 {
		maxConcurrent = 8
	}

	return &Dispatcher{
		repo:             repo,
		client:           &http.Client{Timeout: timeout},
		disableThreshold: threshold,
		maxConcurrent:    maxConcurrent,
	}
}

// TriggerEvent persists the event and fans it out to active matching
// subscriptions. Fire-and-forget: delivery failures are recorded, never
// surfaced to the emitting business operation.
func (d *Dispatcher) TriggerEvent(orgID, eventType, resource, resourceID string, data interface{}) {
	event := &models.WebhookEvent{
		ID:             "evt_" + uuid.New().String(),
		OrganizationID: orgID,
		Type:           eventType,
		Resource:       resource,
		ResourceID:     resourceID,
		Data:           data,
		Timestamp:      time.Now().UTC().Format(time.RFC3339),
	}

	if err := d.repo.CreateEvent(event); err != nil {
		log.Error().Err(err).Str("type", eventType).Msg("failed to persist webhook event")
		return
	}

	subs, err := d.repo.ListActiveSubscriptions(orgID)
	if err != nil {
		log.Error().Err(err).Str("org_id", orgID).Msg("failed to load webhook subscriptions")
		return
	}

	var matched []*models.WebhookSubscription
	for _, sub := range subs {
		if sub.Matches(eventType) {
			matched = append(matched, sub)
		}
	}
	if len(matched) == 0 {
		return
	}

	go d.Dispatch(event, matched)
}

// Dispatch delivers one event to each subscription with bounded
// concurrency and returns once every attempt has resolved.
func (d *Dispatcher) Dispatch(event *models.WebhookEvent, subs []*models.WebhookSubscription) {
	sem := make(chan struct{}, d.maxConcurrent)
	var wg sync.WaitGroup

	for _, sub := range subs {
		wg.Add(1)
		sem <- struct{}{}
		go func(sub *models.WebhookSubscription) {
			defer wg.Done()
			defer func() { <-sem }()
			d.Deliver(sub, event)
		}(sub)
	}
	wg.Wait()
}

// Deliver makes one signed delivery attempt and records the outcome.
func (d *Dispatcher) Deliver(sub *models.WebhookSubscription, event *models.WebhookEvent) {
	payload, err := json.Marshal(event)
	if err != nil {
		log.Error().Err(err).Str("event_id", event.ID).Msg("failed to serialize webhook event")
		return
	}

	delivery := &models.WebhookDelivery{
		SubscriptionID: sub.ID,
		EventID:        event.ID,
	}

	req, err := http.NewRequest(http.MethodPost, sub.URL, bytes.NewReader(payload))
	if err != nil {
		delivery.ErrorMessage = err.Error()
		d.recordFailure(sub, delivery)
		return
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Webhook-Signature", Sign(sub.Secret, payload))
	req.Header.Set("X-Webhook-ID", event.ID)
	req.Header.Set("X-Webhook-Timestamp", event.Timestamp)

	resp, err := d.client.Do(req)
	if err != nil {
		delivery.ErrorMessage = err.Error()
		d.recordFailure(sub, delivery)
		return
	}
	defer resp.Body.Close()

	delivery.StatusCode = resp.StatusCode
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		delivery.Success = true
		if err := d.repo.CreateDelivery(delivery); err != nil {
			log.Error().Err(err).Msg("failed to record webhook delivery")
		}
		if err := d.repo.RecordSuccess(sub.ID, time.Now().Unix()); err != nil {
			log.Error().Err(err).Str("subscription_id", sub.ID).Msg("failed to reset failure count")
		}
		return
	}

	delivery.ErrorMessage = fmt.Sprintf("HTTP %d", resp.StatusCode)
	d.recordFailure(sub, delivery)
}

func (d *Dispatcher) recordFailure(sub *models.WebhookSubscription, delivery *models.WebhookDelivery) {
	if err := d.repo.CreateDelivery(delivery); err != nil {
		log.Error().Err(err).Msg("failed to record webhook delivery")
	}
	if err := d.repo.RecordFailure(sub.ID, d.disableThreshold); err != nil {
		log.Error().Err(err).Str("subscription_id", sub.ID).Msg("failed to record webhook failure")
		return
	}

	log.Warn().
		Str("subscription_id", sub.ID).
		Str("event_id", delivery.EventID).
		Str("error", delivery.ErrorMessage).
		Msg("webhook delivery failed")
}

// RetryFailedDeliveries is the batch retry pass invoked by the worker:
// it re-attempts the failed deliveries of the lookback window with the
// same signing and recording logic. No per-attempt backoff; worst-case
// redelivery latency is capped by the sweep interval.
func (d *Dispatcher) RetryFailedDeliveries(hoursAgo int) error {
	since := time.Now().Add(-time.Duration(hoursAgo) * time.Hour).Unix()

	failed, err := d.repo.ListFailedDeliveries(since)
	if err != nil {
		return err
	}

	retried := 0
	for _, delivery := range failed {
		event, err := d.repo.GetEvent(delivery.EventID)
		if err != nil || event == nil {
			continue
		}

		sub, err := d.repo.GetSubscription(event.OrganizationID, delivery.SubscriptionID)
		if err != nil || sub == nil || !sub.IsActive {
			// Disabled or deleted subscriptions stay quiet until an
			// administrator re-enables them.
			continue
		}

		d.Deliver(sub, event)
		retried++
	}

	if retried > 0 {
		log.Info().Int("count", retried).Msg("retried failed webhook deliveries")
	}
	return nil
}
