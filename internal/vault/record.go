// SPDX-License-Identifier: MIT

package vault

import "time"

// UnlimitedStatements is the sentinel value of number_of_statements meaning
// no statement quota applies. There is no unlimited mode for users.
const UnlimitedStatements = -1

// Record is the decoded license artifact. The JSON field names are the wire
// format of the sealed plaintext and must stay stable.
type Record struct {
	LicenseKey         string `json:"license_key"`
	CurrentTimestamp   int64  `json:"current_timestamp"`
	ExpiryTimestamp    int64  `json:"expiry_timestamp"`
	NumberOfUsers      int    `json:"number_of_users"`
	NumberOfStatements int64  `json:"number_of_statements"`
	Role               string `json:"role"`
	UsedStatements     int64  `json:"used_statements"`

	// SystemUpTime is a monotonic-clock anchor in milliseconds, captured when
	// the record was last loaded or resynced. It is the reference point for
	// staleness and clock-skew checks.
	SystemUpTime int64 `json:"system_up_time"`
}

// IsValid reports whether the record describes a usable license.
func (r Record) IsValid() bool {
	return r.LicenseKey != "" &&
		r.CurrentTimestamp > 0 &&
		r.ExpiryTimestamp > r.CurrentTimestamp &&
		r.NumberOfUsers > 0 &&
		r.NumberOfStatements != 0
}

// StatementsUnlimited reports whether the statement quota is disabled.
func (r Record) StatementsUnlimited() bool {
	return r.NumberOfStatements == UnlimitedStatements
}

// Expired reports whether the license expiry has passed at the given wall time.
func (r Record) Expired(now time.Time) bool {
	return r.ExpiryTimestamp < now.Unix()
}
