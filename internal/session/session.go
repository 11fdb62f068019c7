// SPDX-License-Identifier: MIT

// Package session implements the capped pool of per-client license sessions
// and the statement-usage quota.
package session

import "time"

// Session is one slot in the license pool. The pool owns all entries;
// callers only ever see copies.
type Session struct {
	Key        string `json:"sessionKey"`
	ClientID   string `json:"clientId"`
	UUID       string `json:"uuid"`
	MACAddress string `json:"macAddress"`
	Hostname   string `json:"hostname"`
	Username   string `json:"username"`

	AssignedAt    time.Time  `json:"assignedAt"`
	LastHeartbeat *time.Time `json:"lastHeartbeat,omitempty"`
	Active        bool       `json:"active"`
}
