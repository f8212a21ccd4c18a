package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

type fakeDB struct{ err error }

func (f fakeDB) HealthCheck(ctx context.Context) error { return f.err }

type fakeFeed struct{ last int64 }

func (f fakeFeed) LastPollUnix() int64            { return f.last }
func (f fakeFeed) FilterTotals() map[string]int64 { return nil }

func getHealth(t *testing.T, h *HealthHandler) (int, HealthResponse) {
	t.Helper()
	rec := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/api/v1/health", nil)
	h.ServeHTTP(rec, req)
	var body HealthResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("response is not valid JSON: %v", err)
	}
	return rec.Code, body
}

func TestHealthHandler(t *testing.T) {
	start := time.Now()

	t.Run("healthy_when_database_and_feed_ok", func(t *testing.T) {
		h := NewHealthHandler(fakeDB{}, nil, fakeFeed{last: time.Now().Unix()}, time.Minute, "test", start)
		code, body := getHealth(t, h)
		if code != http.StatusOK {
			t.Errorf("status code = %d, want 200", code)
		}
		if body.Status != "healthy" {
			t.Errorf("status = %q, want healthy", body.Status)
		}
		if body.Checks["database"] != "ok" {
			t.Errorf("database check = %q, want ok", body.Checks["database"])
		}
		if body.Checks["upstream_feed"] != "ok" {
			t.Errorf("upstream_feed check = %q, want ok", body.Checks["upstream_feed"])
		}
		if body.LastPoll == nil {
			t.Error("last_poll missing")
		}
	})

	t.Run("unhealthy_when_database_down", func(t *testing.T) {
		h := NewHealthHandler(fakeDB{err: errors.New("connection refused")}, nil, fakeFeed{last: time.Now().Unix()}, time.Minute, "test", start)
		code, body := getHealth(t, h)
		if code != http.StatusServiceUnavailable {
			t.Errorf("status code = %d, want 503", code)
		}
		if body.Status != "unhealthy" {
			t.Errorf("status = %q, want unhealthy", body.Status)
		}
		if body.Checks["database"] != "error" {
			t.Errorf("database check = %q, want error", body.Checks["database"])
		}
	})

	t.Run("degraded_when_feed_stale", func(t *testing.T) {
		stale := time.Now().Add(-10 * time.Minute).Unix()
		h := NewHealthHandler(fakeDB{}, nil, fakeFeed{last: stale}, time.Minute, "test", start)
		code, body := getHealth(t, h)
		if code != http.StatusOK {
			t.Errorf("status code = %d, want 200", code)
		}
		if body.Status != "degraded" {
			t.Errorf("status = %q, want degraded", body.Status)
		}
		if body.Checks["upstream_feed"] != "stale" {
			t.Errorf("upstream_feed check = %q, want stale", body.Checks["upstream_feed"])
		}
	})

	t.Run("waiting_before_first_poll", func(t *testing.T) {
		h := NewHealthHandler(fakeDB{}, nil, fakeFeed{last: 0}, time.Minute, "test", start)
		code, body := getHealth(t, h)
		if code != http.StatusOK {
			t.Errorf("status code = %d, want 200", code)
		}
		if body.Status != "healthy" {
			t.Errorf("status = %q, want healthy", body.Status)
		}
		if body.Checks["upstream_feed"] != "waiting" {
			t.Errorf("upstream_feed check = %q, want waiting", body.Checks["upstream_feed"])
		}
	})

	t.Run("mqtt_not_configured_when_nil", func(t *testing.T) {
		h := NewHealthHandler(fakeDB{}, nil, fakeFeed{last: time.Now().Unix()}, time.Minute, "test", start)
		_, body := getHealth(t, h)
		if body.Checks["mqtt"] != "not_configured" {
			t.Errorf("mqtt check = %q, want not_configured", body.Checks["mqtt"])
		}
	})

	t.Run("no_feed_not_configured", func(t *testing.T) {
		h := NewHealthHandler(fakeDB{}, nil, nil, time.Minute, "test", start)
		_, body := getHealth(t, h)
		if body.Checks["upstream_feed"] != "not_configured" {
			t.Errorf("upstream_feed check = %q, want not_configured", body.Checks["upstream_feed"])
		}
	})
}
