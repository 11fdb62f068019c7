// SPDX-License-Identifier: MIT

package daemon

import (
	"net/http"

	"github.com/rs/zerolog"

	"github.com/cyphersol/licensed/internal/discovery"
)

// Deps contains dependencies required by the daemon Manager.
// This allows for clean dependency injection and easier testing.
type Deps struct {
	// Logger is the structured logger for the daemon
	Logger zerolog.Logger

	// APIHandler is the HTTP handler for the control surface
	APIHandler http.Handler

	// MetricsHandler serves Prometheus metrics on MetricsAddr (if both set)
	MetricsHandler http.Handler
	MetricsAddr    string

	// Announcer advertises services over mDNS (optional)
	Announcer *discovery.Announcer

	// Responder answers legacy UDP discovery queries (optional)
	Responder *discovery.Responder
}

// Validate checks if the dependencies are valid.
func (d *Deps) Validate() error {
	if d.Logger.GetLevel() == zerolog.Disabled {
		return ErrMissingLogger
	}
	if d.APIHandler == nil {
		return ErrMissingAPIHandler
	}
	return nil
}
