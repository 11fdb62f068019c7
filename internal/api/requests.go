// SPDX-License-Identifier: MIT

package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
)

// Request bodies are typed per endpoint. Validate returns the errorCode of
// the first missing field, checked in declaration order.

type activateLicenseRequest struct {
	LicenseKey string `json:"licenseKey"`
}

func (r activateLicenseRequest) validate() string {
	if strings.TrimSpace(r.LicenseKey) == "" {
		return "MISSING_LICENSE_KEY"
	}
	return ""
}

type assignRequest struct {
	ClientID   string `json:"clientId"`
	UUID       string `json:"uuid"`
	MACAddress string `json:"macAddress"`
	Hostname   string `json:"hostname"`
	Username   string `json:"username"`
}

func (r assignRequest) validate() string {
	switch {
	case strings.TrimSpace(r.ClientID) == "":
		return "MISSING_CLIENT_ID"
	case strings.TrimSpace(r.UUID) == "":
		return "MISSING_UUID"
	case strings.TrimSpace(r.MACAddress) == "":
		return "MISSING_MAC_ADDRESS"
	case strings.TrimSpace(r.Hostname) == "":
		return "MISSING_HOSTNAME"
	case strings.TrimSpace(r.Username) == "":
		return "MISSING_USERNAME"
	}
	return ""
}

// sessionRequest identifies an existing session by its natural key. The MAC
// is still required for audit parity with assignment even though it does not
// participate in the session key.
type sessionRequest struct {
	ClientID   string `json:"clientId"`
	UUID       string `json:"uuid"`
	MACAddress string `json:"macAddress"`
	Hostname   string `json:"hostname"`
}

func (r sessionRequest) validate() string {
	switch {
	case strings.TrimSpace(r.ClientID) == "":
		return "MISSING_CLIENT_ID"
	case strings.TrimSpace(r.UUID) == "":
		return "MISSING_UUID"
	case strings.TrimSpace(r.MACAddress) == "":
		return "MISSING_MAC_ADDRESS"
	case strings.TrimSpace(r.Hostname) == "":
		return "MISSING_HOSTNAME"
	}
	return ""
}

type revokeRequest struct {
	SessionKey string `json:"sessionKey"`
}

func (r revokeRequest) validate() string {
	if strings.TrimSpace(r.SessionKey) == "" {
		return "MISSING_SESSION_KEY"
	}
	return ""
}

type validator interface {
	validate() string
}

// decode parses the body into req and runs validation. It writes the error
// response itself and reports whether the handler should continue.
func decode(w http.ResponseWriter, r *http.Request, req validator) bool {
	if err := json.NewDecoder(r.Body).Decode(req); err != nil {
		writeValidationError(w, "request body is not valid JSON", "INVALID_BODY")
		return false
	}
	if code := req.validate(); code != "" {
		writeValidationError(w, fmt.Sprintf("missing required field (%s)", code), code)
		return false
	}
	return true
}
