// SPDX-License-Identifier: MIT

package discovery

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"strings"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/cyphersol/licensed/internal/log"
	"github.com/cyphersol/licensed/internal/metrics"
	"github.com/cyphersol/licensed/internal/netutil"
)

const (
	QueryLicense  = "DISCOVER_LICENSE_SERVER"
	QueryDatabase = "DISCOVER_POSTGRESQL_SERVER"

	maxDatagram    = 1024
	maxReadBackoff = time.Second
)

// Responder answers exact-match discovery datagrams on the legacy UDP port.
// Port and feature mutators are atomic so handlers can adjust them while the
// read loop is running.
type Responder struct {
	name       string
	instanceID string
	dbVersion  string

	licensePort atomic.Int64
	dbPort      atomic.Int64
	dbEnabled   atomic.Bool

	conn   net.PacketConn
	logger zerolog.Logger
}

type ResponderConfig struct {
	// Name is the human-readable appliance name in responses.
	Name        string
	LicensePort int

	DatabaseDiscovery  bool
	DatabaseInstanceID string
	DatabasePort       int
	DatabaseVersion    string
}

// NewResponder binds the discovery socket on all interfaces.
func NewResponder(port int, cfg ResponderConfig) (*Responder, error) {
	conn, err := net.ListenPacket("udp", fmt.Sprintf(":%d", port))
	if err != nil {
		return nil, fmt.Errorf("discovery: bind udp :%d: %w", port, err)
	}
	r := &Responder{
		name:       cfg.Name,
		instanceID: cfg.DatabaseInstanceID,
		dbVersion:  cfg.DatabaseVersion,
		conn:       conn,
		logger:     log.WithComponent("discovery"),
	}
	r.licensePort.Store(int64(cfg.LicensePort))
	r.dbPort.Store(int64(cfg.DatabasePort))
	r.dbEnabled.Store(cfg.DatabaseDiscovery)
	return r, nil
}

// Addr is the bound socket address, useful when port 0 was requested.
func (r *Responder) Addr() net.Addr { return r.conn.LocalAddr() }

func (r *Responder) UpdateLicensePort(port int)  { r.licensePort.Store(int64(port)) }
func (r *Responder) UpdateDatabasePort(port int) { r.dbPort.Store(int64(port)) }
func (r *Responder) EnableDatabaseDiscovery()    { r.dbEnabled.Store(true) }
func (r *Responder) DisableDatabaseDiscovery()   { r.dbEnabled.Store(false) }

// Serve reads datagrams until the context is cancelled or the socket is
// closed. Transient receive errors back off exponentially, capped at 1s.
func (r *Responder) Serve(ctx context.Context) error {
	go func() {
		<-ctx.Done()
		_ = r.conn.Close()
	}()

	buf := make([]byte, maxDatagram)
	backoff := 10 * time.Millisecond
	for {
		n, from, err := r.conn.ReadFrom(buf)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return ctx.Err()
			}
			r.logger.Warn().
				Err(err).
				Str("event", "discovery.read_error").
				Dur("backoff", backoff).
				Msg("udp receive failed")
			time.Sleep(backoff)
			if backoff *= 2; backoff > maxReadBackoff {
				backoff = maxReadBackoff
			}
			continue
		}
		backoff = 10 * time.Millisecond
		r.handle(strings.TrimSpace(string(buf[:n])), from)
	}
}

// Close releases the socket; Serve returns shortly after.
func (r *Responder) Close() error { return r.conn.Close() }

func (r *Responder) handle(query string, from net.Addr) {
	var payload any
	switch query {
	case QueryLicense:
		metrics.DiscoveryQueries.WithLabelValues("license").Inc()
		payload = licenseAnswer{
			Name: r.name,
			Host: netutil.Hostname(),
			IP:   netutil.PrimaryIPv4(),
			Port: int(r.licensePort.Load()),
			Type: "license-server",
		}
	case QueryDatabase:
		if !r.dbEnabled.Load() {
			return
		}
		metrics.DiscoveryQueries.WithLabelValues("database").Inc()
		payload = databaseAnswer{
			Name:       r.name,
			Host:       netutil.Hostname(),
			IP:         netutil.PrimaryIPv4(),
			Port:       int(r.dbPort.Load()),
			Type:       "postgresql",
			InstanceID: r.instanceID,
			Version:    r.dbVersion,
		}
	default:
		// Anything else on this port is noise.
		return
	}

	msg, err := json.Marshal(payload)
	if err != nil {
		return
	}
	if _, err := r.conn.WriteTo(msg, from); err != nil {
		r.logger.Debug().
			Err(err).
			Str("event", "discovery.reply_failed").
			Str("peer", from.String()).
			Msg("discovery reply not sent")
	}
}

type licenseAnswer struct {
	Name string `json:"name"`
	Host string `json:"host"`
	IP   string `json:"ip"`
	Port int    `json:"port"`
	Type string `json:"type"`
}

type databaseAnswer struct {
	Name       string `json:"name"`
	Host       string `json:"host"`
	IP         string `json:"ip"`
	Port       int    `json:"port"`
	Type       string `json:"type"`
	InstanceID string `json:"instanceId"`
	Version    string `json:"version"`
}
