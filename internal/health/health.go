// SPDX-License-Identifier: MIT

// Package health provides liveness and readiness checks for the appliance.
// The liveness page is HTML so an operator can open it in a browser; the
// readiness endpoint speaks JSON for probes.
package health

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"sort"
	"time"

	"github.com/cyphersol/licensed/internal/log"
	"github.com/cyphersol/licensed/internal/vault"
)

// Status represents the overall health/readiness status
type Status string

const (
	StatusHealthy   Status = "healthy"
	StatusDegraded  Status = "degraded"
	StatusUnhealthy Status = "unhealthy"
)

// CheckResult represents the result of a component health check
type CheckResult struct {
	Status  Status `json:"status"`
	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`
}

// ReadinessResponse represents the readiness check response
type ReadinessResponse struct {
	Ready     bool                   `json:"ready"`
	Status    Status                 `json:"status"`
	Timestamp time.Time              `json:"timestamp"`
	Checks    map[string]CheckResult `json:"checks,omitempty"`
}

// Checker defines the interface for health checks
type Checker interface {
	Name() string
	Check(ctx context.Context) CheckResult
}

// Manager manages health and readiness checks
type Manager struct {
	version  string
	started  time.Time
	checkers []Checker
}

// NewManager creates a new health check manager
func NewManager(version string) *Manager {
	return &Manager{
		version: version,
		started: time.Now(),
	}
}

// RegisterChecker adds a health checker to the manager
func (m *Manager) RegisterChecker(checker Checker) {
	m.checkers = append(m.checkers, checker)
}

func (m *Manager) run(ctx context.Context) (Status, map[string]CheckResult) {
	overall := StatusHealthy
	checks := make(map[string]CheckResult, len(m.checkers))
	for _, checker := range m.checkers {
		result := checker.Check(ctx)
		checks[checker.Name()] = result
		switch result.Status {
		case StatusUnhealthy:
			overall = StatusUnhealthy
		case StatusDegraded:
			if overall == StatusHealthy {
				overall = StatusDegraded
			}
		}
	}
	return overall, checks
}

// ServeHealth renders the HTML liveness page. Always 200: the process
// answering at all is the liveness signal; component state is informational.
func (m *Manager) ServeHealth(w http.ResponseWriter, r *http.Request) {
	status, checks := m.run(r.Context())

	names := make([]string, 0, len(checks))
	for name := range checks {
		names = append(names, name)
	}
	sort.Strings(names)

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	fmt.Fprintf(w, `<!DOCTYPE html><html lang="en"><head><meta charset="utf-8">`+
		`<title>licensed health</title></head><body>`+
		`<h1>licensed</h1><p>status: <strong>%s</strong></p>`+
		`<p>version %s, up %s</p><ul>`,
		status, m.version, time.Since(m.started).Round(time.Second))
	for _, name := range names {
		c := checks[name]
		detail := c.Message
		if c.Error != "" {
			detail = c.Error
		}
		fmt.Fprintf(w, "<li>%s: %s (%s)</li>", name, c.Status, detail)
	}
	fmt.Fprint(w, "</ul></body></html>")

	logger := log.WithComponentFromContext(r.Context(), "health")
	logger.Debug().
		Str("event", "health.checked").
		Str("status", string(status)).
		Msg("health check performed")
}

// ServeReady handles JSON readiness probes; 503 while any check is unhealthy.
func (m *Manager) ServeReady(w http.ResponseWriter, r *http.Request) {
	status, checks := m.run(r.Context())
	resp := ReadinessResponse{
		Ready:     status != StatusUnhealthy,
		Status:    status,
		Timestamp: time.Now(),
		Checks:    checks,
	}

	w.Header().Set("Content-Type", "application/json")
	if resp.Ready {
		w.WriteHeader(http.StatusOK)
	} else {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		logger := log.WithComponentFromContext(r.Context(), "readiness")
		logger.Error().
			Err(err).
			Str("event", "readiness.encode_error").
			Msg("failed to encode readiness response")
	}
}

// ArtifactChecker reports on the sealed license artifact. A missing file is
// degraded, not unhealthy: the appliance boots unlicensed and can still be
// activated over the API.
type ArtifactChecker struct {
	path string
}

func NewArtifactChecker(path string) *ArtifactChecker {
	return &ArtifactChecker{path: path}
}

func (c *ArtifactChecker) Name() string { return "sealed_artifact" }

func (c *ArtifactChecker) Check(ctx context.Context) CheckResult {
	info, err := os.Stat(c.path)
	if err != nil {
		if os.IsNotExist(err) {
			return CheckResult{
				Status:  StatusDegraded,
				Message: "no sealed artifact, appliance is unlicensed",
			}
		}
		return CheckResult{Status: StatusUnhealthy, Error: err.Error()}
	}
	if info.IsDir() {
		return CheckResult{Status: StatusUnhealthy, Error: "expected file, got directory"}
	}
	if info.Size() == 0 {
		return CheckResult{Status: StatusDegraded, Message: "artifact is empty"}
	}
	return CheckResult{Status: StatusHealthy, Message: "artifact present"}
}

// LicenseChecker reports on the in-memory license record.
type LicenseChecker struct {
	store *vault.Store
}

func NewLicenseChecker(store *vault.Store) *LicenseChecker {
	return &LicenseChecker{store: store}
}

func (c *LicenseChecker) Name() string { return "license" }

func (c *LicenseChecker) Check(ctx context.Context) CheckResult {
	if !c.store.Loaded() {
		return CheckResult{Status: StatusDegraded, Message: "no license loaded"}
	}
	rec := c.store.Snapshot()
	if !rec.IsValid() {
		return CheckResult{Status: StatusUnhealthy, Error: "license record is invalid"}
	}
	if rec.Expired(time.Now()) {
		return CheckResult{
			Status: StatusUnhealthy,
			Error:  fmt.Sprintf("license expired %s", time.Unix(rec.ExpiryTimestamp, 0).Format(time.RFC3339)),
		}
	}
	return CheckResult{
		Status:  StatusHealthy,
		Message: fmt.Sprintf("valid until %s", time.Unix(rec.ExpiryTimestamp, 0).Format(time.RFC3339)),
	}
}
