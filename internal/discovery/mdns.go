// SPDX-License-Identifier: MIT

// Package discovery makes the appliance findable on the local network:
// an mDNS announcer for zero-config clients and a UDP responder for the
// legacy broadcast protocol.
package discovery

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/grandcat/zeroconf"
	"github.com/rs/zerolog"

	"github.com/cyphersol/licensed/internal/log"
	"github.com/cyphersol/licensed/internal/metrics"
)

const (
	ServiceLicense  = "_license-server._tcp"
	ServiceDatabase = "_postgresql._tcp"

	mdnsDomain            = "local."
	minReannounceInterval = 10 * time.Second
)

// profile is one advertised service. The composite key keeps re-registration
// of the same service idempotent while allowing several database instances.
type profile struct {
	serviceType string
	instance    string
	port        int
	txt         []string
}

func (p profile) key() string {
	return fmt.Sprintf("%s:%s:%d", p.serviceType, p.instance, p.port)
}

// mdnsHandle is the slice of *zeroconf.Server the announcer needs. Tests
// substitute a fake through the register hook.
type mdnsHandle interface {
	Shutdown()
}

// Announcer advertises service profiles over mDNS and periodically
// re-announces them so caches on sleepy clients do not expire.
type Announcer struct {
	instance string
	register func(profile) (mdnsHandle, error)

	mu         sync.Mutex
	profiles   map[string]profile
	handles    map[string]mdnsHandle
	reannounce time.Duration

	cancel context.CancelFunc
	done   chan struct{}
	logger zerolog.Logger
}

// NewAnnouncer builds an announcer named after this appliance instance.
func NewAnnouncer(instance string) *Announcer {
	return &Announcer{
		instance: instance,
		register: func(p profile) (mdnsHandle, error) {
			return zeroconf.Register(p.instance, p.serviceType, mdnsDomain, p.port, p.txt, nil)
		},
		profiles:   make(map[string]profile),
		handles:    make(map[string]mdnsHandle),
		reannounce: 60 * time.Second,
		logger:     log.WithComponent("mdns"),
	}
}

// SetReannounceInterval adjusts the background re-announce cadence.
// Intervals under 10s are rejected to keep multicast traffic sane.
func (a *Announcer) SetReannounceInterval(d time.Duration) error {
	if d < minReannounceInterval {
		return fmt.Errorf("reannounce interval %s below %s minimum", d, minReannounceInterval)
	}
	a.mu.Lock()
	a.reannounce = d
	a.mu.Unlock()
	return nil
}

// AdvertiseLicenseService registers the license endpoint on the LAN.
func (a *Announcer) AdvertiseLicenseService(port int) error {
	return a.advertise(profile{
		serviceType: ServiceLicense,
		instance:    a.instance,
		port:        port,
		txt: []string{
			"description=License vault and session pool",
			"ttl=120",
		},
	})
}

// AdvertiseDatabaseService registers a co-hosted database instance.
func (a *Announcer) AdvertiseDatabaseService(instanceID string, port int, version string) error {
	return a.advertise(profile{
		serviceType: ServiceDatabase,
		instance:    instanceID,
		port:        port,
		txt: []string{
			"version=" + version,
			"instance=" + instanceID,
		},
	})
}

func (a *Announcer) advertise(p profile) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	key := p.key()
	if _, ok := a.profiles[key]; ok {
		return nil
	}
	h, err := a.register(p)
	if err != nil {
		return fmt.Errorf("mdns: advertise %s: %w", key, err)
	}
	a.profiles[key] = p
	a.handles[key] = h
	metrics.Announcements.Inc()
	a.logger.Info().
		Str("event", "mdns.advertised").
		Str("service", p.serviceType).
		Str("instance", p.instance).
		Int("port", p.port).
		Msg("service advertised")
	return nil
}

// Unregister withdraws one profile by its composite key.
func (a *Announcer) Unregister(key string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if h, ok := a.handles[key]; ok {
		h.Shutdown()
		delete(a.handles, key)
	}
	delete(a.profiles, key)
}

// ReAnnounceAll re-registers every profile once. Failures are logged and the
// remaining profiles still get their turn; the table itself never changes.
func (a *Announcer) ReAnnounceAll() {
	a.mu.Lock()
	snapshot := make([]profile, 0, len(a.profiles))
	for _, p := range a.profiles {
		snapshot = append(snapshot, p)
	}
	a.mu.Unlock()

	for _, p := range snapshot {
		key := p.key()
		h, err := a.register(p)
		if err != nil {
			a.logger.Warn().
				Err(err).
				Str("event", "mdns.reannounce_failed").
				Str("service", p.serviceType).
				Msg("re-announce failed, keeping profile")
			continue
		}
		a.mu.Lock()
		if old, ok := a.handles[key]; ok {
			old.Shutdown()
		}
		if _, stillWanted := a.profiles[key]; stillWanted {
			a.handles[key] = h
		} else {
			// Unregistered while we were re-announcing.
			h.Shutdown()
		}
		a.mu.Unlock()
		metrics.Announcements.Inc()
	}
}

// Start launches the re-announce loop. Returns once the loop is running.
func (a *Announcer) Start(ctx context.Context) {
	a.mu.Lock()
	if a.cancel != nil {
		a.mu.Unlock()
		return
	}
	ctx, a.cancel = context.WithCancel(ctx)
	a.done = make(chan struct{})
	interval := a.reannounce
	a.mu.Unlock()

	go func() {
		defer close(a.done)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				a.ReAnnounceAll()
			}
		}
	}()
}

// Stop cancels the loop, withdraws every advertisement and clears the table.
// Safe to call more than once.
func (a *Announcer) Stop() {
	a.mu.Lock()
	cancel, done := a.cancel, a.done
	a.cancel, a.done = nil, nil
	a.mu.Unlock()

	if cancel != nil {
		cancel()
		select {
		case <-done:
		case <-time.After(2 * time.Second):
			a.logger.Warn().
				Str("event", "mdns.stop_timeout").
				Msg("re-announce loop did not exit in time")
		}
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	for key, h := range a.handles {
		h.Shutdown()
		delete(a.handles, key)
	}
	a.profiles = make(map[string]profile)
}

// Profiles returns the advertised composite keys, for status reporting.
func (a *Announcer) Profiles() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	keys := make([]string, 0, len(a.profiles))
	for k := range a.profiles {
		keys = append(keys, k)
	}
	return keys
}
