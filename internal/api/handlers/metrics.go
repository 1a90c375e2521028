package handlers

import (
	"fmt"
	"net/http"

	"crmcore/internal/engine/breaker"
)

// MetricsHandler exposes a minimal plaintext exposition of the breaker
// counters. No client library; the format is scrape-compatible.
type MetricsHandler struct {
	breaker *breaker.Breaker
}

func NewMetricsHandler(cb *breaker.Breaker) *MetricsHandler {
	return &MetricsHandler{breaker: cb}
}

func (h *MetricsHandler) Export(w http.ResponseWriter, r *http.Request) {
	stats := h.breaker.Stats()

	stateValue := 0
	switch stats.State {
	case "open":
		stateValue = 2
	case "half_open":
		stateValue = 1
	}

	w.Header().Set("Content-Type", "text/plain")
	fmt.Fprintf(w, "# HELP crmcore_up Is the server up\n")
	fmt.Fprintf(w, "# TYPE crmcore_up gauge\n")
	fmt.Fprintf(w, "crmcore_up 1\n")
	fmt.Fprintf(w, "# HELP crmcore_breaker_state Circuit breaker state (0=closed, 1=half_open, 2=open)\n")
	fmt.Fprintf(w, "# TYPE crmcore_breaker_state gauge\n")
	fmt.Fprintf(w, "crmcore_breaker_state %d\n", stateValue)
	fmt.Fprintf(w, "# HELP crmcore_breaker_failures Consecutive failure count\n")
	fmt.Fprintf(w, "# TYPE crmcore_breaker_failures gauge\n")
	fmt.Fprintf(w, "crmcore_breaker_failures %d\n", stats.FailureCount)
	fmt.Fprintf(w, "# HELP crmcore_breaker_failure_rate Lifetime failure rate\n")
	fmt.Fprintf(w, "# TYPE crmcore_breaker_failure_rate gauge\n")
	fmt.Fprintf(w, "crmcore_breaker_failure_rate %f\n", stats.FailureRate)
}
