package models

type WebhookSubscription struct {
	ID              string   `json:"id"`
	OrganizationID  string   `json:"organization_id"`
	URL             string   `json:"url"`
	Events          []string `json:"events"` // JSON array in DB, may contain "*"
	Secret          string   `json:"-"`
	IsActive        bool     `json:"is_active"`
	FailureCount    int      `json:"failure_count"`
	LastTriggeredAt int64    `json:"last_triggered_at,omitempty"`
	CreatedAt       int64    `json:"created_at"`
	UpdatedAt       int64    `json:"updated_at"`
}

// Matches reports whether the subscription wants this event type.
func (s *WebhookSubscription) Matches(eventType string) bool {
	for _, e := range s.Events {
		if e == "*" || e == eventType {
			return true
		}
	}
	return false
}

type WebhookEvent struct {
	ID             string      `json:"id"`
	OrganizationID string      `json:"-"`
	Type           string      `json:"type"`
	Resource       string      `json:"resource"`
	ResourceID     string      `json:"resourceId"`
	Data           interface{} `json:"data"`
	Timestamp      string      `json:"timestamp"` // RFC3339
}

type WebhookDelivery struct {
	ID             string `json:"id"`
	SubscriptionID string `json:"subscription_id"`
	EventID        string `json:"event_id"`
	StatusCode     int    `json:"status_code"`
	Success        bool   `json:"success"`
	ErrorMessage   string `json:"error_message,omitempty"`
	CreatedAt      int64  `json:"created_at"`
}
