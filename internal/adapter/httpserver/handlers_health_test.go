package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/ahsanhabibakik/rupomoti/internal/platform/version"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func healthOK(_ context.Context) error { return nil }

func healthErr(msg string) func(context.Context) error {
	return func(_ context.Context) error { return errors.New(msg) }
}

func TestHandleStartup(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/health/startup", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	srv := newTestServer(t, testServices(),
		withHealthChecks(
			HealthCheck{Name: "postgres", Check: healthOK},
			HealthCheck{Name: "redis", Check: healthOK},
		),
	)

	err := srv.handleStartup(c)

	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ready","checks":{"postgres":"ok","redis":"ok"}}`, rec.Body.String())
}

func TestHandleLiveness(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/health/live", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	srv := newTestServer(t, testServices(), withHealthChecks(HealthCheck{Name: "postgres", Check: healthErr("down")}))
	err := srv.handleLiveness(c)

	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, rec.Code)

	var body livenessReport
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "ok", body.Status)
	assert.GreaterOrEqual(t, body.UptimeSeconds, 0.0)
	assert.Equal(t, version.Get().Version, body.Version)
}

func TestHandleReadiness(t *testing.T) {
	tests := []struct {
		name       string
		checks     []HealthCheck
		wantStatus int
		wantBody   string
	}{
		{
			name: "all healthy",
			checks: []HealthCheck{
				{Name: "postgres", Check: healthOK},
				{Name: "redis", Check: healthOK},
			},
			wantStatus: http.StatusOK,
			wantBody:   `{"status":"ready","checks":{"postgres":"ok","redis":"ok"}}`,
		},
		{
			name: "postgres down",
			checks: []HealthCheck{
				{Name: "postgres", Check: healthErr("database unreachable")},
				{Name: "redis", Check: healthOK},
			},
			wantStatus: http.StatusServiceUnavailable,
			wantBody:   `{"status":"unhealthy","checks":{"postgres":"fail","redis":"ok"}}`,
		},
		{
			name: "every dependency down",
			checks: []HealthCheck{
				{Name: "postgres", Check: healthErr("database unreachable")},
				{Name: "redis", Check: healthErr("connection refused")},
			},
			wantStatus: http.StatusServiceUnavailable,
			wantBody:   `{"status":"unhealthy","checks":{"postgres":"fail","redis":"fail"}}`,
		},
		{
			name:       "no checks configured",
			wantStatus: http.StatusOK,
			wantBody:   `{"status":"ready","checks":{}}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := echo.New()
			req := httptest.NewRequest(http.MethodGet, "/health/ready", nil)
			rec := httptest.NewRecorder()
			c := e.NewContext(req, rec)

			srv := newTestServer(t, testServices(), withHealthChecks(tt.checks...))
			require.NoError(t, srv.handleReadiness(c))

			assert.Equal(t, tt.wantStatus, rec.Code)
			assert.JSONEq(t, tt.wantBody, rec.Body.String())
		})
	}
}

func TestHandleReadiness_HidesErrorDetails(t *testing.T) {
	srv := newTestServer(t, testServices(), withHealthChecks(
		HealthCheck{Name: "postgres", Check: healthErr("password authentication failed for user shop")},
	))

	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.NotContains(t, rec.Body.String(), "password")
}

func TestHandleReadiness_ChecksRunConcurrently(t *testing.T) {
	started := make(chan struct{}, 2)
	release := make(chan struct{})
	blocking := func(context.Context) error {
		started <- struct{}{}
		<-release
		return nil
	}
	srv := newTestServer(t, testServices(), withHealthChecks(
		HealthCheck{Name: "postgres", Check: blocking},
		HealthCheck{Name: "redis", Check: blocking},
	))

	done := make(chan int)
	go func() {
		rec := httptest.NewRecorder()
		srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
		done <- rec.Code
	}()

	<-started
	<-started
	close(release)
	assert.Equal(t, http.StatusOK, <-done)
}

func TestHandleVersion(t *testing.T) {
	srv := newTestServer(t, testServices())

	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/version", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"version"`)
}
