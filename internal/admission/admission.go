// SPDX-License-Identifier: MIT

// Package admission gates every API request on license validity, freshness,
// clock integrity and expiry. It sits between the ingress middleware stack
// and the handlers; bootstrap endpoints are allow-listed so an unlicensed
// appliance can still be activated and inspected.
package admission

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/cyphersol/licensed/internal/config"
	"github.com/cyphersol/licensed/internal/log"
	"github.com/cyphersol/licensed/internal/metrics"
	"github.com/cyphersol/licensed/internal/vault"
)

// Responses are deliberately non-specific on security failures: a tampered
// clock and a missing license look the same from the outside.
const (
	msgInvalid = "license is invalid or not found"
	msgStale   = "please connect to the network"
	msgExpired = "license expired"
)

// DefaultAllowList are the path prefixes that bypass all checks
// (case-insensitive prefix match).
var DefaultAllowList = []string{
	"/api/activate-license",
	// Reports on the artifact itself (missing, foreign, expired), so it
	// cannot sit behind the checks it exists to explain.
	"/api/validate-license",
	"/api/health",
	"/api/ready",
	"/license/status/all",
	"/api/network/ping",
	"/api/network/info",
}

// Report describes a suspected clock-tampering observation.
type Report struct {
	ObservedUnix int64         `json:"observed_timestamp"`
	ExpectedUnix int64         `json:"expected_timestamp"`
	Skew         time.Duration `json:"-"`
	Path         string        `json:"path"`
}

// Collaborators are the two upstream capabilities the gate needs. Both are
// plain function values; the gate does not know how they are implemented.
type Collaborators struct {
	// Resync refreshes the license record from the upstream issuer. Called
	// synchronously when the record has gone stale; its implementation owns
	// its own timeout.
	Resync func(ctx context.Context) error

	// ReportTampering notifies the issuer of a suspected clock manipulation.
	// Fired asynchronously; must tolerate being called once per rejected
	// request.
	ReportTampering func(ctx context.Context, r Report)
}

// Config configures the admission gate.
type Config struct {
	Store         *vault.Store
	Collaborators Collaborators

	// StaleAfter is how long the record may go without a resync before one
	// is forced. Defaults to config.DefaultStaleAfter.
	StaleAfter time.Duration

	// MaxSkew is the tolerated gap between the wall clock and the projected
	// issuer time. Defaults to config.DefaultMaxSkew.
	MaxSkew time.Duration

	// AllowList overrides DefaultAllowList when non-nil.
	AllowList []string

	// Now is a test hook; defaults to time.Now.
	Now func() time.Time
}

// Gate is the admission middleware. Fire-and-forget tampering reports are
// tracked so Close can await them at shutdown.
type Gate struct {
	store      *vault.Store
	collab     Collaborators
	staleAfter time.Duration
	maxSkew    time.Duration
	allowList  []string
	now        func() time.Time

	reports sync.WaitGroup
	logger  zerolog.Logger
}

// New builds a Gate, applying defaults for unset thresholds.
func New(cfg Config) *Gate {
	g := &Gate{
		store:      cfg.Store,
		collab:     cfg.Collaborators,
		staleAfter: cfg.StaleAfter,
		maxSkew:    cfg.MaxSkew,
		allowList:  cfg.AllowList,
		now:        cfg.Now,
		logger:     log.WithComponent("admission"),
	}
	if g.staleAfter <= 0 {
		g.staleAfter = config.DefaultStaleAfter
	}
	if g.maxSkew <= 0 {
		g.maxSkew = config.DefaultMaxSkew
	}
	if g.allowList == nil {
		g.allowList = DefaultAllowList
	}
	if g.now == nil {
		g.now = time.Now
	}
	return g
}

// Middleware returns the chi-compatible handler wrapper.
func (g *Gate) Middleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if g.allowed(r.URL.Path) {
				next.ServeHTTP(w, r)
				return
			}

			// 1. A loaded, structurally valid record.
			rec := g.store.Snapshot()
			if !g.store.Loaded() || !rec.IsValid() {
				g.reject(w, r, "invalid", msgInvalid)
				return
			}

			// 2. Staleness: force a resync once the record has not seen the
			// issuer for too long.
			if g.store.SinceSync() > g.staleAfter {
				if g.collab.Resync == nil {
					g.reject(w, r, "stale", msgStale)
					return
				}
				if err := g.collab.Resync(r.Context()); err != nil {
					g.logger.Warn().
						Err(err).
						Str("event", "admission.resync_failed").
						Msg("license resync failed")
					g.reject(w, r, "stale", msgStale)
					return
				}
				rec = g.store.Snapshot()
			}

			// 3. Clock skew against the projected issuer time. The monotonic
			// anchor advances the comparand, so natural drift since the last
			// sync does not accumulate into the gap.
			now := g.now()
			expected := g.store.ProjectedIssuerTime()
			skew := now.Sub(expected)
			if skew >= g.maxSkew || skew <= -g.maxSkew {
				g.fireReport(r.URL.Path, now, expected, skew)
				g.reject(w, r, "skew", msgInvalid)
				return
			}

			// 4. Expiry.
			if rec.Expired(now) {
				g.reject(w, r, "expired", msgExpired)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// Close waits for outstanding tampering reports, bounded by ctx.
func (g *Gate) Close(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		g.reports.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (g *Gate) allowed(path string) bool {
	for _, prefix := range g.allowList {
		if len(path) >= len(prefix) && strings.EqualFold(path[:len(prefix)], prefix) {
			return true
		}
	}
	return false
}

func (g *Gate) fireReport(path string, observed, expected time.Time, skew time.Duration) {
	g.logger.Warn().
		Str("event", "admission.skew_detected").
		Time("observed", observed).
		Time("expected", expected).
		Dur("skew", skew).
		Msg("clock skew exceeds tolerance, suspecting tampering")

	if g.collab.ReportTampering == nil {
		return
	}
	report := Report{
		ObservedUnix: observed.Unix(),
		ExpectedUnix: expected.Unix(),
		Skew:         skew,
		Path:         path,
	}
	g.reports.Add(1)
	go func() {
		defer g.reports.Done()
		// Detached from the request: the report must not block or die with it.
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		g.collab.ReportTampering(ctx, report)
	}()
}

func (g *Gate) reject(w http.ResponseWriter, r *http.Request, reason, message string) {
	metrics.AdmissionRejections.WithLabelValues(reason).Inc()
	g.logger.Debug().
		Str("event", "admission.rejected").
		Str("reason", reason).
		Str(log.FieldPath, r.URL.Path).
		Msg("request rejected by admission gate")

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusForbidden)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": message})
}
