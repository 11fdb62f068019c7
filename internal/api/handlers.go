// SPDX-License-Identifier: MIT

package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/cyphersol/licensed/internal/issuer"
	"github.com/cyphersol/licensed/internal/netutil"
	"github.com/cyphersol/licensed/internal/session"
	"github.com/cyphersol/licensed/internal/vault"
)

func (s *Server) handleActivateLicense(w http.ResponseWriter, r *http.Request) {
	var req activateLicenseRequest
	if !decode(w, r, &req) {
		return
	}
	if s.deps.Issuer == nil {
		writeError(w, http.StatusServiceUnavailable, "no upstream issuer configured")
		return
	}

	rec, err := s.deps.Issuer.Activate(r.Context(), req.LicenseKey)
	if err != nil {
		var se *issuer.StatusError
		if errors.As(err, &se) && se.Status >= 400 && se.Status < 500 {
			// The issuer already speaks our error dialect; pass it through.
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(se.Status)
			_, _ = w.Write(se.Body)
			return
		}
		s.logger.Error().
			Err(err).
			Str("event", "api.activation_failed").
			Msg("upstream activation failed")
		writeError(w, http.StatusBadGateway, "license issuer unreachable")
		return
	}

	if err := s.deps.Store.Replace(rec); err != nil {
		s.logger.Error().
			Err(err).
			Str("event", "api.persist_failed").
			Msg("sealed artifact not written")
		writeError(w, http.StatusInternalServerError, "license could not be persisted")
		return
	}

	s.logger.Info().
		Str("event", "api.license_activated").
		Str("role", rec.Role).
		Int("users", rec.NumberOfUsers).
		Msg("master license activated")
	writeJSON(w, http.StatusOK, rec)
}

func (s *Server) handleValidateLicense(w http.ResponseWriter, r *http.Request) {
	rec, err := s.deps.Store.ReadArtifact()
	switch {
	case errors.Is(err, vault.ErrArtifactMissing):
		writeError(w, http.StatusNotFound, "no license found on this machine")
		return
	case errors.Is(err, vault.ErrCorruptOrTampered):
		writeError(w, http.StatusUnauthorized, "license is invalid for this machine")
		return
	case err != nil:
		writeError(w, http.StatusInternalServerError, "license could not be read")
		return
	}

	if rec.Expired(time.Now()) {
		writeError(w, http.StatusForbidden, "license expired")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"valid":              true,
		"role":               rec.Role,
		"expiryTimestamp":    rec.ExpiryTimestamp,
		"numberOfUsers":      rec.NumberOfUsers,
		"numberOfStatements": rec.NumberOfStatements,
		"usedStatements":     rec.UsedStatements,
	})
}

func (s *Server) handleAssign(w http.ResponseWriter, r *http.Request) {
	var req assignRequest
	if !decode(w, r, &req) {
		return
	}

	res := s.deps.Pool.TryUse(req.ClientID, req.UUID, req.MACAddress, req.Hostname, req.Username)
	if res.OK {
		writeJSON(w, http.StatusOK, map[string]any{
			"message": res.Message,
			"session": res.Session,
		})
		return
	}

	payload := map[string]any{"error": res.Message}
	if len(res.InactiveSessions) > 0 {
		payload["inactiveLicenses"] = res.InactiveSessions
	} else if len(res.ActiveSessions) > 0 {
		payload["activeLicenses"] = res.ActiveSessions
	}
	writeJSON(w, http.StatusTooManyRequests, payload)
}

func (s *Server) handleActivateSession(w http.ResponseWriter, r *http.Request) {
	s.sessionOp(w, r, "session activated", s.deps.Pool.Activate)
}

func (s *Server) handleDeactivateSession(w http.ResponseWriter, r *http.Request) {
	s.sessionOp(w, r, "session deactivated", s.deps.Pool.Deactivate)
}

func (s *Server) handleRelease(w http.ResponseWriter, r *http.Request) {
	s.sessionOp(w, r, "session released", s.deps.Pool.Release)
}

func (s *Server) sessionOp(w http.ResponseWriter, r *http.Request, okMessage string, op func(clientID, uuid, mac, hostname string) error) {
	var req sessionRequest
	if !decode(w, r, &req) {
		return
	}
	if err := op(req.ClientID, req.UUID, req.MACAddress, req.Hostname); err != nil {
		writeError(w, http.StatusBadRequest, "session not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": okMessage})
}

func (s *Server) handleRevokeSession(w http.ResponseWriter, r *http.Request) {
	var req revokeRequest
	if !decode(w, r, &req) {
		return
	}
	switch err := s.deps.Pool.Revoke(req.SessionKey); {
	case errors.Is(err, session.ErrSessionActive):
		writeError(w, http.StatusBadRequest, "cannot revoke an active session")
	case errors.Is(err, session.ErrNotFound):
		writeError(w, http.StatusBadRequest, "session not found")
	case err != nil:
		writeError(w, http.StatusInternalServerError, "revoke failed")
	default:
		writeJSON(w, http.StatusOK, map[string]string{"message": "session revoked"})
	}
}

func (s *Server) handleValidateSession(w http.ResponseWriter, r *http.Request) {
	var req sessionRequest
	if !decode(w, r, &req) {
		return
	}
	if !s.deps.Pool.IsValid(req.ClientID, req.UUID, req.MACAddress, req.Hostname) {
		writeJSON(w, http.StatusBadRequest, map[string]any{
			"valid": false,
			"error": "session not found",
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"valid":   true,
		"message": "session is valid",
	})
}

func (s *Server) handleUseStatement(w http.ResponseWriter, r *http.Request) {
	ok, msg := s.deps.Pool.TryUseStatement()
	payload := map[string]any{
		"remaining": s.deps.Pool.RemainingStatements(),
		"used":      s.deps.Pool.UsedStatements(),
	}
	if !ok {
		payload["error"] = msg
		writeJSON(w, http.StatusBadRequest, payload)
		return
	}
	payload["message"] = "statement recorded"
	writeJSON(w, http.StatusOK, payload)
}

func (s *Server) handleCheckStatementLimit(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"limitReached": s.deps.Pool.StatementLimitReached(),
		"remaining":    s.deps.Pool.RemainingStatements(),
		"used":         s.deps.Pool.UsedStatements(),
	})
}

func (s *Server) handlePing(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte("pong"))
}

func (s *Server) handleNetworkInfo(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"hostname": netutil.Hostname(),
		"ip":       netutil.PrimaryIPv4(),
		"port":     s.deps.ListenPort,
	})
}
