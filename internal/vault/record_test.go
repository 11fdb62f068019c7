// SPDX-License-Identifier: MIT

package vault

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validRecord() Record {
	now := time.Now().Unix()
	return Record{
		LicenseKey:         "LIC-1234",
		CurrentTimestamp:   now,
		ExpiryTimestamp:    now + 86400,
		NumberOfUsers:      5,
		NumberOfStatements: 100,
		Role:               "standard",
	}
}

func TestRecordIsValid(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Record)
		want   bool
	}{
		{"valid", func(r *Record) {}, true},
		{"unlimited statements", func(r *Record) { r.NumberOfStatements = UnlimitedStatements }, true},
		{"empty key", func(r *Record) { r.LicenseKey = "" }, false},
		{"zero current", func(r *Record) { r.CurrentTimestamp = 0 }, false},
		{"expiry before current", func(r *Record) { r.ExpiryTimestamp = r.CurrentTimestamp - 1 }, false},
		{"zero users", func(r *Record) { r.NumberOfUsers = 0 }, false},
		{"zero statements", func(r *Record) { r.NumberOfStatements = 0 }, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := validRecord()
			tt.mutate(&rec)
			assert.Equal(t, tt.want, rec.IsValid())
		})
	}
}

func TestRecordExpired(t *testing.T) {
	rec := validRecord()
	assert.False(t, rec.Expired(time.Now()))
	assert.True(t, rec.Expired(time.Unix(rec.ExpiryTimestamp+1, 0)))
}

func TestRecordWireFieldNames(t *testing.T) {
	data, err := json.Marshal(validRecord())
	require.NoError(t, err)

	var raw map[string]any
	require.NoError(t, json.Unmarshal(data, &raw))
	for _, field := range []string{
		"license_key", "current_timestamp", "expiry_timestamp",
		"number_of_users", "number_of_statements", "role",
		"used_statements", "system_up_time",
	} {
		assert.Contains(t, raw, field)
	}
}
