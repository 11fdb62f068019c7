// SPDX-License-Identifier: MIT

// Package issuer is the REST client for the upstream license validator.
// Activation and resync go through it; the appliance never talks to the
// issuer from anywhere else.
package issuer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/cyphersol/licensed/internal/config"
	"github.com/cyphersol/licensed/internal/log"
	"github.com/cyphersol/licensed/internal/vault"
)

// StatusError carries a non-2xx issuer response so handlers can pass the
// status and body through to the caller unchanged.
type StatusError struct {
	Status int
	Body   []byte
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("issuer: HTTP %d: %s", e.Status, string(e.Body))
}

// Report mirrors the tampering observation sent upstream.
type Report struct {
	LicenseKey   string `json:"license_key"`
	ObservedUnix int64  `json:"observed_timestamp"`
	ExpectedUnix int64  `json:"expected_timestamp"`
	DeviceInfo   string `json:"device_info"`
	Path         string `json:"path,omitempty"`
}

// Client talks to the issuer. Safe for concurrent use.
type Client struct {
	base       string
	apiKey     string
	deviceInfo string
	http       *http.Client
	logger     zerolog.Logger
}

type Config struct {
	BaseURL string
	APIKey  string
	// DeviceInfo identifies this appliance to the issuer, typically the
	// fingerprint digest rather than the raw fingerprint.
	DeviceInfo string
	Timeout    time.Duration
}

func New(cfg Config) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = config.DefaultIssuerTimeout
	}
	return &Client{
		base:       strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:     cfg.APIKey,
		deviceInfo: cfg.DeviceInfo,
		http:       &http.Client{Timeout: timeout},
		logger:     log.WithComponent("issuer"),
	}
}

// Activate exchanges a license key for the full license record.
func (c *Client) Activate(ctx context.Context, licenseKey string) (vault.Record, error) {
	body := map[string]any{
		"license_key": licenseKey,
		"device_info": c.deviceInfo,
		"timestamp":   time.Now().Unix(),
	}
	var rec vault.Record
	if err := c.post(ctx, "/api/license/activate", body, &rec); err != nil {
		return vault.Record{}, err
	}
	return rec, nil
}

// Resync refreshes expiry and the issuer's current time for an already
// activated key. The caller owns writing the result back to the store.
func (c *Client) Resync(ctx context.Context, licenseKey string) (vault.Record, error) {
	body := map[string]any{
		"license_key": licenseKey,
		"device_info": c.deviceInfo,
		"timestamp":   time.Now().Unix(),
	}
	var rec vault.Record
	if err := c.post(ctx, "/api/license/resync", body, &rec); err != nil {
		return vault.Record{}, err
	}
	return rec, nil
}

// ReportTampering is fire-and-forget: failures are logged, never returned.
func (c *Client) ReportTampering(ctx context.Context, r Report) {
	if r.DeviceInfo == "" {
		r.DeviceInfo = c.deviceInfo
	}
	if err := c.post(ctx, "/api/license/report-tampering", r, nil); err != nil {
		c.logger.Warn().
			Err(err).
			Str("event", "issuer.report_failed").
			Msg("tampering report not delivered")
	}
}

func (c *Client) post(ctx context.Context, path string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("issuer: encode %s: %w", path, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("issuer: build %s: %w", path, err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("X-API-Key", c.apiKey)
	}

	res, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("issuer: %s: %w", path, err)
	}
	defer res.Body.Close()

	if res.StatusCode < 200 || res.StatusCode > 299 {
		b, _ := io.ReadAll(io.LimitReader(res.Body, 64<<10))
		return &StatusError{Status: res.StatusCode, Body: b}
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(res.Body).Decode(out); err != nil {
		return fmt.Errorf("issuer: decode %s: %w", path, err)
	}
	return nil
}
