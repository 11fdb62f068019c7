// SPDX-License-Identifier: MIT

package api

import (
	"encoding/json"
	"net/http"
)

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

// writeValidationError is the 400 shape for missing or empty request fields:
// a human-readable error plus a machine errorCode naming the first bad field.
func writeValidationError(w http.ResponseWriter, message, code string) {
	writeJSON(w, http.StatusBadRequest, map[string]string{
		"error":     message,
		"errorCode": code,
	})
}
