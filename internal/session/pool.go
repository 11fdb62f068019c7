// SPDX-License-Identifier: MIT

package session

import (
	"errors"
	"math"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/cyphersol/licensed/internal/log"
	"github.com/cyphersol/licensed/internal/metrics"
	"github.com/cyphersol/licensed/internal/vault"
)

var (
	// ErrNotFound is reported when an operation names a session key that is
	// not in the pool. Not an internal error; callers surface it as 400.
	ErrNotFound = errors.New("session not found")

	// ErrSessionActive is reported by Revoke when the target session is
	// still active. Active sessions must be deactivated or released by
	// their owner first.
	ErrSessionActive = errors.New("session is active")
)

// Assign-result messages surfaced to clients.
const (
	msgAssigned        = "license assigned"
	msgAlreadyAssigned = "already assigned"
	msgPoolExhausted   = "no available licenses"
)

// AssignResult is the outcome of TryUse. When the pool is full, either
// InactiveSessions or ActiveSessions carries the listing an administrator
// needs to free a slot (inactive ones preferred, active as a fallback).
type AssignResult struct {
	OK               bool
	Message          string
	Session          *Session
	InactiveSessions []Session
	ActiveSessions   []Session
}

// Pool is the concurrent, capped session pool. One exclusive lock guards the
// map and the quota counter; the active count is additionally kept in an
// atomic for lock-free reads.
type Pool struct {
	mu       sync.Mutex
	sessions map[string]*Session

	store         *vault.Store
	flushInterval time.Duration
	lastFlush     time.Time

	// usedStatements is guarded by mu. Monotonically non-decreasing within
	// a process lifetime.
	usedStatements int64

	activeCount atomic.Int64
	logger      zerolog.Logger
}

// NewPool creates a pool backed by the license store. The quota counter is
// seeded from the stored record; capacity is read from the record on every
// admission so a re-activation takes effect without restart.
func NewPool(store *vault.Store, flushInterval time.Duration) *Pool {
	p := &Pool{
		sessions:      make(map[string]*Session),
		store:         store,
		flushInterval: flushInterval,
		lastFlush:     time.Now(),
		logger:        log.WithComponent("session"),
	}
	p.usedStatements = store.Snapshot().UsedStatements
	metrics.StatementsUsed.Set(float64(p.usedStatements))
	return p
}

// TryUse returns the existing session for the caller's key, or inserts a new
// inactive one. When the pool is at capacity it fails and attaches the
// session listing described on AssignResult.
func (p *Pool) TryUse(clientID, uuid, mac, hostname, username string) AssignResult {
	key := Key(uuid, hostname, clientID)

	p.mu.Lock()
	defer p.mu.Unlock()

	if existing, ok := p.sessions[key]; ok {
		dup := *existing
		return AssignResult{OK: true, Message: msgAlreadyAssigned, Session: &dup}
	}

	// Capacity comes from the live map size, not a separate counter, so the
	// bound cannot drift.
	maxUsers := p.store.Snapshot().NumberOfUsers
	if len(p.sessions) >= maxUsers {
		res := AssignResult{Message: msgPoolExhausted}
		for _, s := range p.sessions {
			if s.Active {
				res.ActiveSessions = append(res.ActiveSessions, *s)
			} else {
				res.InactiveSessions = append(res.InactiveSessions, *s)
			}
		}
		// The inactive listing is the actionable one; only fall back to the
		// active listing when every slot is in use.
		if len(res.InactiveSessions) > 0 {
			res.ActiveSessions = nil
		}
		sortSessions(res.InactiveSessions)
		sortSessions(res.ActiveSessions)

		p.logger.Warn().
			Str("event", "session.pool_exhausted").
			Int("capacity", maxUsers).
			Str("client_id", clientID).
			Msg("license assignment refused")
		return res
	}

	now := time.Now()
	s := &Session{
		Key:           key,
		ClientID:      clientID,
		UUID:          uuid,
		MACAddress:    mac,
		Hostname:      hostname,
		Username:      username,
		AssignedAt:    now,
		LastHeartbeat: &now,
	}
	p.sessions[key] = s
	metrics.PoolSize.Set(float64(len(p.sessions)))

	p.logger.Info().
		Str("event", "session.assigned").
		Str(log.FieldSessionKey, shortKey(key)).
		Str("client_id", clientID).
		Str("hostname", hostname).
		Msg("license session assigned")

	dup := *s
	return AssignResult{OK: true, Message: msgAssigned, Session: &dup}
}

// Activate flips the caller's session to active and touches its heartbeat.
func (p *Pool) Activate(clientID, uuid, mac, hostname string) error {
	_ = mac // audit field only
	key := Key(uuid, hostname, clientID)

	p.mu.Lock()
	defer p.mu.Unlock()

	s, ok := p.sessions[key]
	if !ok {
		return ErrNotFound
	}
	if !s.Active {
		s.Active = true
		p.activeCount.Add(1)
		metrics.SessionsActive.Set(float64(p.activeCount.Load()))
	}
	now := time.Now()
	s.LastHeartbeat = &now
	return nil
}

// Deactivate flips the caller's session to inactive. The slot stays occupied.
func (p *Pool) Deactivate(clientID, uuid, mac, hostname string) error {
	_ = mac
	key := Key(uuid, hostname, clientID)

	p.mu.Lock()
	defer p.mu.Unlock()

	s, ok := p.sessions[key]
	if !ok {
		return ErrNotFound
	}
	if s.Active {
		s.Active = false
		p.activeCount.Add(-1)
		metrics.SessionsActive.Set(float64(p.activeCount.Load()))
	}
	return nil
}

// Release removes the caller's session unconditionally.
func (p *Pool) Release(clientID, uuid, mac, hostname string) error {
	_ = mac
	return p.remove(Key(uuid, hostname, clientID), false)
}

// Revoke removes a session by key, but only when it is inactive. Revoking an
// active session reports ErrSessionActive.
func (p *Pool) Revoke(sessionKey string) error {
	return p.remove(sessionKey, true)
}

func (p *Pool) remove(key string, inactiveOnly bool) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	s, ok := p.sessions[key]
	if !ok {
		return ErrNotFound
	}
	if inactiveOnly && s.Active {
		return ErrSessionActive
	}
	if s.Active {
		p.activeCount.Add(-1)
		metrics.SessionsActive.Set(float64(p.activeCount.Load()))
	}
	delete(p.sessions, key)
	metrics.PoolSize.Set(float64(len(p.sessions)))

	p.logger.Info().
		Str("event", "session.removed").
		Str(log.FieldSessionKey, shortKey(key)).
		Msg("license session removed")
	return nil
}

// IsValid reports whether the caller's key currently holds a slot.
func (p *Pool) IsValid(clientID, uuid, mac, hostname string) bool {
	_ = mac
	key := Key(uuid, hostname, clientID)

	p.mu.Lock()
	defer p.mu.Unlock()
	_, ok := p.sessions[key]
	return ok
}

// Sessions returns a point-in-time copy of every session, oldest first.
// This is the read-only enumeration the status dashboard renders.
func (p *Pool) Sessions() []Session {
	p.mu.Lock()
	out := make([]Session, 0, len(p.sessions))
	for _, s := range p.sessions {
		out = append(out, *s)
	}
	p.mu.Unlock()

	sortSessions(out)
	return out
}

// Count returns the number of occupied slots.
func (p *Pool) Count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.sessions)
}

// ActiveCount returns the number of active sessions without taking the lock.
func (p *Pool) ActiveCount() int64 {
	return p.activeCount.Load()
}

func sortSessions(list []Session) {
	sort.Slice(list, func(i, j int) bool {
		return list[i].AssignedAt.Before(list[j].AssignedAt)
	})
}

func shortKey(key string) string {
	if len(key) > 12 {
		return key[:12]
	}
	return key
}

// TryUseStatement consumes one unit of the statement quota. In unlimited
// mode it always succeeds without touching the counter. A successful
// consumption triggers a durable flush when the flush interval has elapsed.
func (p *Pool) TryUseStatement() (bool, string) {
	rec := p.store.Snapshot()
	if !rec.IsValid() {
		return false, "no valid license"
	}
	if rec.StatementsUnlimited() {
		return true, "unlimited statements"
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.usedStatements >= rec.NumberOfStatements {
		return false, "statement limit reached"
	}
	p.usedStatements++
	metrics.StatementsUsed.Set(float64(p.usedStatements))

	if time.Since(p.lastFlush) >= p.flushInterval {
		if err := p.flushLocked(); err != nil {
			// The increment stands; the next consumption retries the flush.
			p.logger.Error().
				Err(err).
				Str("event", "session.flush_failed").
				Msg("failed to flush statement usage")
		}
	}
	return true, "statement recorded"
}

// StatementLimitReached reports whether the quota is exhausted. Fails closed
// when no usable record is loaded.
func (p *Pool) StatementLimitReached() bool {
	rec := p.store.Snapshot()
	if !rec.IsValid() {
		return true
	}
	if rec.StatementsUnlimited() {
		return false
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.usedStatements >= rec.NumberOfStatements
}

// RemainingStatements returns the quota headroom, or MaxInt64 in unlimited mode.
func (p *Pool) RemainingStatements() int64 {
	rec := p.store.Snapshot()
	if rec.StatementsUnlimited() {
		return math.MaxInt64
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if remaining := rec.NumberOfStatements - p.usedStatements; remaining > 0 {
		return remaining
	}
	return 0
}

// UsedStatements returns the process-wide consumption counter.
func (p *Pool) UsedStatements() int64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.usedStatements
}

// Flush writes the quota counter into the license store and rewrites the
// sealed artifact. Called from the consumption path on the flush cadence and
// once at shutdown.
func (p *Pool) Flush() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.flushLocked()
}

func (p *Pool) flushLocked() error {
	// Nothing to persist on an unlicensed appliance.
	if !p.store.Loaded() {
		return nil
	}
	if err := p.store.SetUsedStatements(p.usedStatements); err != nil {
		return err
	}
	p.lastFlush = time.Now()
	p.logger.Debug().
		Str("event", "session.flushed").
		Int64("used_statements", p.usedStatements).
		Msg("statement usage flushed to artifact")
	return nil
}
