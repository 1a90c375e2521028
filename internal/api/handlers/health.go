package handlers

import (
	"database/sql"
	"encoding/json"
	"net/http"
	"time"

	"crmcore/internal/engine/breaker"
)

type HealthHandler struct {
	db      *sql.DB
	breaker *breaker.Breaker
}

func NewHealthHandler(db *sql.DB, cb *breaker.Breaker) *HealthHandler {
	return &HealthHandler{db: db, breaker: cb}
}

func (h *HealthHandler) Check(w http.ResponseWriter, r *http.Request) {
	checks := make(map[string]string)
	status := "healthy"

	if err := h.db.Ping(); err != nil {
		checks["database"] = "unhealthy: " + err.Error()
		status = "degraded"
	} else {
		checks["database"] = "healthy"
	}

	stats := h.breaker.Stats()
	switch stats.State {
	case "open":
		checks["circuit_breaker"] = "unhealthy"
		status = "unhealthy"
	case "half_open":
		checks["circuit_breaker"] = "degraded"
		if status == "healthy" {
			status = "degraded"
		}
	default:
		checks["circuit_breaker"] = "healthy"
	}

	response := struct {
		Status    string            `json:"status"`
		Timestamp int64             `json:"timestamp"`
		Checks    map[string]string `json:"checks"`
		Breaker   breaker.Stats     `json:"breaker"`
	}{
		Status:    status,
		Timestamp: time.Now().Unix(),
		Checks:    checks,
		Breaker:   stats,
	}

	statusCode := http.StatusOK
	if status != "healthy" {
		statusCode = http.StatusServiceUnavailable
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(response)
}
