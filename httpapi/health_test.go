package httpapi

import (
	"encoding/json"
	stderrors "errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestHealthCheckerReturns200WhenAllChecksPass(t *testing.T) {
	h := NewHealthChecker("v1.2.3")
	h.RegisterCheck("postgres", func() error { return nil })
	h.RegisterCheck("redis", func() error { return nil })

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	h.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 when every check passes, got %d", rec.Code)
	}

	var status HealthStatus
	if err := json.Unmarshal(rec.Body.Bytes(), &status); err != nil {
		t.Fatalf("unexpected decode error: %v", err)
	}
	if status.Status != "healthy" || status.Checks["postgres"] != "ok" || status.Checks["redis"] != "ok" {
		t.Fatalf("unexpected status: %+v", status)
	}
	if status.Version != "v1.2.3" {
		t.Fatalf("expected version to be stamped through, got %q", status.Version)
	}
}

func TestHealthCheckerReturns503WhenAnyCheckFails(t *testing.T) {
	h := NewHealthChecker("v1.2.3")
	h.RegisterCheck("postgres", func() error { return nil })
	h.RegisterCheck("redis", func() error { return stderrors.New("connection refused") })

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	h.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 when a dependency check fails, got %d", rec.Code)
	}

	var status HealthStatus
	if err := json.Unmarshal(rec.Body.Bytes(), &status); err != nil {
		t.Fatalf("unexpected decode error: %v", err)
	}
	if status.Status != "unhealthy" || status.Checks["redis"] != "connection refused" {
		t.Fatalf("unexpected status: %+v", status)
	}
}

func TestHealthCheckerWithNoRegisteredChecksIsHealthy(t *testing.T) {
	h := NewHealthChecker("v1.2.3")

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	h.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 with no checks registered, got %d", rec.Code)
	}
}
