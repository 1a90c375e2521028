package validator

import (
	"errors"
	"net/url"
	"strings"
)

func IsEmail(email string) error {
	parts := strings.Split(email, "@")
	if len(parts) != 2 || parts[0] == "" || !strings.Contains(parts[1], ".") {
		return errors.New("invalid email format")
	}
	return nil
}

// IsWebhookURL rejects anything that is not an absolute http(s) URL.
func IsWebhookURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return errors.New("invalid URL")
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return errors.New("webhook URL must use http or https")
	}
	if u.Host == "" {
		return errors.New("webhook URL must include a host")
	}
	return nil
}

// IsEventList accepts a non-empty list of event type strings or ["*"].
func IsEventList(events []string) error {
	if len(events) == 0 {
		return errors.New("events must not be empty")
	}
	for _, e := range events {
		if e == "" {
			return errors.New("event type must not be empty")
		}
	}
	return nil
}
