// SPDX-License-Identifier: MIT

// Package api is the HTTP control surface of the appliance: the sole network
// boundary in front of the license store and the session pool.
package api

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/cyphersol/licensed/internal/admission"
	"github.com/cyphersol/licensed/internal/api/middleware"
	"github.com/cyphersol/licensed/internal/log"
	"github.com/cyphersol/licensed/internal/session"
	"github.com/cyphersol/licensed/internal/vault"
)

// Issuer is the slice of the upstream client the handlers need.
type Issuer interface {
	Activate(ctx context.Context, licenseKey string) (vault.Record, error)
}

// Deps are the collaborators behind the control surface.
type Deps struct {
	Store *vault.Store
	Pool  *session.Pool
	Gate  *admission.Gate

	// Issuer may be nil; activation then answers 503.
	Issuer Issuer

	// Health serves GET /api/health when set; Ready serves GET /api/ready.
	Health http.Handler
	Ready  http.Handler

	// ListenPort is advertised by the network self-test endpoints.
	ListenPort int

	Middleware middleware.StackConfig
}

type Server struct {
	deps   Deps
	logger zerolog.Logger
}

func New(deps Deps) *Server {
	return &Server{
		deps:   deps,
		logger: log.WithComponent("api"),
	}
}

// Routes builds the full router: ingress stack, admission gate, endpoints.
func (s *Server) Routes() *chi.Mux {
	r := middleware.NewRouter(s.deps.Middleware)

	if s.deps.Gate != nil {
		r.Use(s.deps.Gate.Middleware())
	}

	r.Post("/api/activate-license", s.handleActivateLicense)
	r.Post("/api/validate-license", s.handleValidateLicense)

	r.Route("/api/license", func(r chi.Router) {
		r.Post("/assign", s.handleAssign)
		r.Post("/activate-session", s.handleActivateSession)
		r.Post("/deactivate-session", s.handleDeactivateSession)
		r.Post("/release", s.handleRelease)
		r.Post("/revoke-session", s.handleRevokeSession)
		r.Post("/validate-session", s.handleValidateSession)
		r.Post("/use-statement", s.handleUseStatement)
		r.Get("/check-statement-limit", s.handleCheckStatementLimit)
	})

	r.Get("/license/status/all", s.handleStatusPage)

	r.Get("/api/network/ping", s.handlePing)
	r.Get("/api/network/info", s.handleNetworkInfo)

	if s.deps.Health != nil {
		r.Get("/api/health", s.deps.Health.ServeHTTP)
	}
	if s.deps.Ready != nil {
		r.Get("/api/ready", s.deps.Ready.ServeHTTP)
	}

	return r
}
