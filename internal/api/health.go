package api

import (
	"context"
	"net/http"
	"time"

	"github.com/snarg/vatsim-engine/internal/metrics"
	"github.com/snarg/vatsim-engine/internal/mqttclient"
)

// HealthChecker reports whether the backing store is reachable.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

type HealthResponse struct {
	Status        string            `json:"status"`
	Version       string            `json:"version"`
	UptimeSeconds int64             `json:"uptime_seconds"`
	Checks        map[string]string `json:"checks"`
	LastPoll      *time.Time        `json:"last_poll,omitempty"`
}

type HealthHandler struct {
	db           HealthChecker
	mqtt         *mqttclient.Client
	feed         metrics.PollerStats
	pollInterval time.Duration
	version      string
	startTime    time.Time
}

func NewHealthHandler(db HealthChecker, mqtt *mqttclient.Client, feed metrics.PollerStats, pollInterval time.Duration, version string, startTime time.Time) *HealthHandler {
	return &HealthHandler{
		db:           db,
		mqtt:         mqtt,
		feed:         feed,
		pollInterval: pollInterval,
		version:      version,
		startTime:    startTime,
	}
}

func (h *HealthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	checks := make(map[string]string)
	status := "healthy"
	httpStatus := http.StatusOK

	// Database check
	if err := h.db.HealthCheck(r.Context()); err != nil {
		checks["database"] = "error"
		status = "unhealthy"
		httpStatus = http.StatusServiceUnavailable
	} else {
		checks["database"] = "ok"
	}

	// Upstream feed check. Stale means no successful poll within three
	// poll intervals; waiting means the first poll has not landed yet.
	var lastPoll *time.Time
	if h.feed != nil {
		if unix := h.feed.LastPollUnix(); unix == 0 {
			checks["upstream_feed"] = "waiting"
		} else {
			t := time.Unix(unix, 0).UTC()
			lastPoll = &t
			if time.Since(t) > 3*h.pollInterval {
				checks["upstream_feed"] = "stale"
				if status == "healthy" {
					status = "degraded"
				}
			} else {
				checks["upstream_feed"] = "ok"
			}
		}
	} else {
		checks["upstream_feed"] = "not_configured"
	}

	// MQTT check
	if h.mqtt != nil {
		if h.mqtt.IsConnected() {
			checks["mqtt"] = "ok"
		} else {
			checks["mqtt"] = "disconnected"
			if status == "healthy" {
				status = "degraded"
			}
		}
	} else {
		checks["mqtt"] = "not_configured"
	}

	WriteJSON(w, httpStatus, HealthResponse{
		Status:        status,
		Version:       h.version,
		UptimeSeconds: int64(time.Since(h.startTime).Seconds()),
		Checks:        checks,
		LastPoll:      lastPoll,
	})
}
