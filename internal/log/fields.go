// SPDX-License-Identifier: MIT

package log

// Canonical field name constants for structured logging.
const (
	// Identity fields
	FieldRequestID  = "request_id"
	FieldSessionKey = "session_key"
	FieldClientID   = "client_id"
	FieldHostname   = "hostname"

	// Process fields
	FieldEvent     = "event"
	FieldComponent = "component"

	// License fields
	FieldLicenseRole = "role"
	FieldExpiry      = "expiry"
	FieldUsers       = "users"
	FieldStatements  = "statements"

	// Network fields
	FieldPath    = "path"
	FieldService = "service_type"
	FieldPort    = "port"
	FieldAddr    = "addr"
)
