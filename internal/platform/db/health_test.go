package db

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
)

func runHealth(t *testing.T, checks ...Check) (int, map[string]interface{}) {
	t.Helper()
	e := echo.New()
	rec := httptest.NewRecorder()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/health/db", nil), rec)
	if err := HealthHandler(nil, checks...)(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var body map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	return rec.Code, body
}

func TestHealthHandler_AllHealthy(t *testing.T) {
	ok := func(context.Context) error { return nil }
	code, body := runHealth(t, Check{Name: "redis", Run: ok}, Check{Name: "rabbitmq", Run: ok})

	if code != http.StatusOK {
		t.Errorf("expected 200, got %d", code)
	}
	if body["status"] != "healthy" {
		t.Errorf("expected healthy, got %v", body["status"])
	}
	checks := body["checks"].(map[string]interface{})
	if checks["redis"] != "ok" || checks["rabbitmq"] != "ok" {
		t.Errorf("unexpected checks %v", checks)
	}
}

func TestHealthHandler_FailingDependency(t *testing.T) {
	code, body := runHealth(t,
		Check{Name: "redis", Run: func(context.Context) error { return errors.New("connection refused") }},
	)
	if code != http.StatusServiceUnavailable {
		t.Errorf("expected 503, got %d", code)
	}
	checks := body["checks"].(map[string]interface{})
	if checks["redis"] != "connection refused" {
		t.Errorf("expected failure detail, got %v", checks["redis"])
	}
}

func TestHealthHandler_NoChecks(t *testing.T) {
	code, body := runHealth(t)
	if code != http.StatusOK || body["status"] != "healthy" {
		t.Errorf("expected healthy with no checks, got %d %v", code, body)
	}
	if _, ok := body["pool"]; ok {
		t.Error("pool stats should be omitted without a pool")
	}
}
