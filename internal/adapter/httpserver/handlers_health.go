package httpserver

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/ahsanhabibakik/rupomoti/internal/platform/version"
	"github.com/labstack/echo/v4"
	"golang.org/x/sync/errgroup"
)

const (
	startupProbeTimeout   = 2 * time.Second
	readinessProbeTimeout = 5 * time.Second

	checkPassed = "ok"
	checkFailed = "fail"
)

// HealthCheck is one dependency probed by the startup and readiness routes.
type HealthCheck struct {
	Name  string
	Check func(ctx context.Context) error
}

type healthReport struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks"`
}

type livenessReport struct {
	Status        string  `json:"status"`
	UptimeSeconds float64 `json:"uptime_seconds"`
	Version       string  `json:"version"`
}

func (s *Server) registerHealthRoutes() {
	s.echo.GET("/health/startup", s.handleStartup)
	s.echo.GET("/health/live", s.handleLiveness)
	s.echo.GET("/health/ready", s.handleReadiness)
	s.echo.GET("/version", s.handleVersion)
}

func (s *Server) handleStartup(c echo.Context) error {
	return s.probe(c, startupProbeTimeout)
}

// handleLiveness reports on the process only and never probes dependencies.
func (s *Server) handleLiveness(c echo.Context) error {
	return c.JSON(http.StatusOK, livenessReport{
		Status:        "ok",
		UptimeSeconds: time.Since(s.startTime).Seconds(),
		Version:       version.Get().Version,
	})
}

func (s *Server) handleReadiness(c echo.Context) error {
	return s.probe(c, readinessProbeTimeout)
}

// probe runs every check concurrently and reports each by name. Error
// details go to the log only.
func (s *Server) probe(c echo.Context, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), timeout)
	defer cancel()

	report := healthReport{Status: "ready", Checks: make(map[string]string, len(s.healthChecks))}
	var mu sync.Mutex
	var g errgroup.Group
	for _, hc := range s.healthChecks {
		g.Go(func() error {
			result := checkPassed
			if err := hc.Check(ctx); err != nil {
				slog.WarnContext(ctx, "Health check failed", "check", hc.Name, "error", err)
				result = checkFailed
			}
			mu.Lock()
			report.Checks[hc.Name] = result
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	status := http.StatusOK
	for _, result := range report.Checks {
		if result != checkPassed {
			report.Status = "unhealthy"
			status = http.StatusServiceUnavailable
			break
		}
	}
	return c.JSON(status, report)
}

func (s *Server) handleVersion(c echo.Context) error {
	return c.JSON(http.StatusOK, version.Get())
}
