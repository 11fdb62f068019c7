// SPDX-License-Identifier: MIT

package issuer

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cyphersol/licensed/internal/vault"
)

func TestActivateReturnsRecord(t *testing.T) {
	var gotKey, gotAPIKey string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/api/license/activate", r.URL.Path)
		gotAPIKey = r.Header.Get("X-API-Key")

		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		gotKey, _ = body["license_key"].(string)
		require.NotEmpty(t, body["device_info"])
		require.NotZero(t, body["timestamp"])

		_ = json.NewEncoder(w).Encode(vault.Record{
			LicenseKey:         "LIC-42",
			CurrentTimestamp:   1700000000,
			ExpiryTimestamp:    1800000000,
			NumberOfUsers:      5,
			NumberOfStatements: 1000,
			Role:               "standard",
		})
	}))
	defer srv.Close()

	c := New(Config{BaseURL: srv.URL, APIKey: "secret", DeviceInfo: "digest"})
	rec, err := c.Activate(context.Background(), "LIC-42")
	require.NoError(t, err)

	assert.Equal(t, "LIC-42", gotKey)
	assert.Equal(t, "secret", gotAPIKey)
	assert.Equal(t, "LIC-42", rec.LicenseKey)
	assert.Equal(t, 5, rec.NumberOfUsers)
	assert.True(t, rec.IsValid())
}

func TestActivate4xxSurfacesStatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		_, _ = w.Write([]byte(`{"error":"license key not recognized"}`))
	}))
	defer srv.Close()

	c := New(Config{BaseURL: srv.URL})
	_, err := c.Activate(context.Background(), "LIC-BOGUS")

	var se *StatusError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, http.StatusUnprocessableEntity, se.Status)
	assert.Contains(t, string(se.Body), "not recognized")
}

func TestResyncHitsResyncPath(t *testing.T) {
	var path atomic.Value
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path.Store(r.URL.Path)
		_ = json.NewEncoder(w).Encode(vault.Record{
			LicenseKey:       "LIC-42",
			CurrentTimestamp: 1700000100,
			ExpiryTimestamp:  1800000000,
			NumberOfUsers:    5,
		})
	}))
	defer srv.Close()

	c := New(Config{BaseURL: srv.URL, DeviceInfo: "digest"})
	rec, err := c.Resync(context.Background(), "LIC-42")
	require.NoError(t, err)
	assert.Equal(t, "/api/license/resync", path.Load())
	assert.Equal(t, int64(1700000100), rec.CurrentTimestamp)
}

func TestReportTamperingSwallowsFailures(t *testing.T) {
	var hits atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		require.Equal(t, "/api/license/report-tampering", r.URL.Path)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := New(Config{BaseURL: srv.URL, DeviceInfo: "digest"})
	// Must not panic or return anything even though the issuer errors.
	c.ReportTampering(context.Background(), Report{
		LicenseKey:   "LIC-42",
		ObservedUnix: 100,
		ExpectedUnix: 50,
	})
	assert.Equal(t, int64(1), hits.Load())
}

func TestTransportFailureIsNotStatusError(t *testing.T) {
	c := New(Config{BaseURL: "http://127.0.0.1:1", Timeout: 500 * time.Millisecond})
	_, err := c.Activate(context.Background(), "LIC-42")
	require.Error(t, err)

	var se *StatusError
	assert.False(t, errors.As(err, &se))
}
