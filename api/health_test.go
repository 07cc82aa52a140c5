package api

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestHealthLive(t *testing.T) {
	t.Parallel()

	mux := http.NewServeMux()
	NewHealth(nil).RegisterRoutes(mux)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", rec.Code)
	}
}

func TestReadyAllChecksPass(t *testing.T) {
	t.Parallel()

	mux := http.NewServeMux()
	NewHealth(map[string]ReadyCheck{
		"postgres": func(context.Context) error { return nil },
	}).RegisterRoutes(mux)

	req := httptest.NewRequest(http.MethodGet, "/ready", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", rec.Code)
	}
}

func TestReadyFailingCheck(t *testing.T) {
	t.Parallel()

	mux := http.NewServeMux()
	NewHealth(map[string]ReadyCheck{
		"postgres": func(context.Context) error { return errors.New("connection refused") },
	}).RegisterRoutes(mux)

	req := httptest.NewRequest(http.MethodGet, "/ready", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", rec.Code)
	}
}
