// SPDX-License-Identifier: MIT

// Package middleware is the canonical HTTP ingress stack. The API server and
// any auxiliary listener use the same stack to prevent drift in cross-cutting
// concerns.
package middleware

import (
	"github.com/go-chi/chi/v5"

	licdlog "github.com/cyphersol/licensed/internal/log"
)

// StackConfig configures the canonical ingress middleware stack.
type StackConfig struct {
	EnableMetrics bool
	EnableLogging bool

	EnableRateLimit bool
	RateLimitRPM    int
}

// NewRouter constructs a chi router with the canonical stack applied.
func NewRouter(cfg StackConfig) *chi.Mux {
	r := chi.NewRouter()
	ApplyStack(r, cfg)
	return r
}

// ApplyStack applies the canonical middleware stack to r.
func ApplyStack(r chi.Router, cfg StackConfig) {
	// 1. Recoverer (outermost safety net)
	r.Use(Recoverer)
	// 2. RequestID (correlation early)
	r.Use(RequestID)
	// 3. Metrics (track all requests)
	if cfg.EnableMetrics {
		r.Use(Metrics())
	}
	// 4. Logging (wraps handlers, captures full latency)
	if cfg.EnableLogging {
		r.Use(licdlog.Middleware())
	}
	// 5. Rate limit (global protection)
	if cfg.EnableRateLimit {
		r.Use(APIRateLimit(cfg.RateLimitRPM))
	}
}
