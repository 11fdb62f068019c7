// SPDX-License-Identifier: MIT

package vault

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/renameio/v2"
	"github.com/rs/zerolog"

	"github.com/cyphersol/licensed/internal/log"
)

// ErrArtifactMissing is reported by Load when no sealed artifact exists yet.
// The store remains usable with an empty record; every gated endpoint will
// answer 403 until a license is activated.
var ErrArtifactMissing = errors.New("no sealed license artifact on disk")

// ErrNoLicense is returned by mutations that require a loaded record with a
// non-empty key.
var ErrNoLicense = errors.New("no license record loaded")

// processStart anchors the process-local monotonic clock. time.Since on it
// uses the monotonic reading, so wall-clock changes cannot move it.
var processStart = time.Now()

func monotonicMillis() int64 {
	return time.Since(processStart).Milliseconds()
}

// Store holds the decoded license record and rewrites the sealed artifact on
// every mutation. Writes are serialized; readers observe either the previous
// or the new record, never a partial one.
type Store struct {
	mu          sync.RWMutex
	path        string
	fingerprint string
	record      Record
	loaded      bool
	logger      zerolog.Logger
}

// NewStore returns a store bound to the artifact path and fingerprint. No
// I/O happens until Load is called, so the ConfigMissing vs CorruptOrTampered
// distinction is observable to the caller.
func NewStore(path, fingerprint string) *Store {
	return &Store{
		path:        path,
		fingerprint: fingerprint,
		logger:      log.WithComponent("vault"),
	}
}

// Path returns the artifact location the store reads and writes.
func (s *Store) Path() string {
	return s.path
}

// Load reads and decodes the sealed artifact. A missing file leaves the
// store holding an empty record and reports ErrArtifactMissing; a decode
// failure reports ErrCorruptOrTampered. On success the monotonic anchor is
// stamped with the current tick.
func (s *Store) Load() error {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			s.logger.Warn().
				Str("event", "vault.artifact_missing").
				Str("path", s.path).
				Msg("no license artifact found, booting unlicensed")
			return ErrArtifactMissing
		}
		return fmt.Errorf("read artifact: %w", err)
	}

	plain, err := Open(data, s.fingerprint)
	if err != nil {
		s.logger.Error().
			Str("event", "vault.open_failed").
			Str("path", s.path).
			Msg("license artifact cannot be opened on this machine")
		return ErrCorruptOrTampered
	}

	var rec Record
	if err := json.Unmarshal(plain, &rec); err != nil {
		return ErrCorruptOrTampered
	}
	rec.SystemUpTime = monotonicMillis()

	s.mu.Lock()
	s.record = rec
	s.loaded = true
	s.mu.Unlock()

	s.logger.Info().
		Str("event", "vault.loaded").
		Str("role", rec.Role).
		Int("users", rec.NumberOfUsers).
		Int64("statements", rec.NumberOfStatements).
		Time("expiry", time.Unix(rec.ExpiryTimestamp, 0)).
		Msg("license artifact loaded")
	return nil
}

// ReadArtifact decodes the sealed artifact without touching in-memory state.
// The validation endpoint uses it to report on the on-disk file as-is.
func (s *Store) ReadArtifact() (Record, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Record{}, ErrArtifactMissing
		}
		return Record{}, fmt.Errorf("read artifact: %w", err)
	}
	plain, err := Open(data, s.fingerprint)
	if err != nil {
		return Record{}, ErrCorruptOrTampered
	}
	var rec Record
	if err := json.Unmarshal(plain, &rec); err != nil {
		return Record{}, ErrCorruptOrTampered
	}
	return rec, nil
}

// Loaded reports whether a record has been decoded from disk or installed
// via Replace.
func (s *Store) Loaded() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.loaded
}

// Snapshot returns a copy of the current record.
func (s *Store) Snapshot() Record {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.record
}

// SinceSync returns the monotonic time elapsed since the record was last
// loaded or resynced.
func (s *Store) SinceSync() time.Duration {
	s.mu.RLock()
	anchor := s.record.SystemUpTime
	s.mu.RUnlock()
	return time.Duration(monotonicMillis()-anchor) * time.Millisecond
}

// ProjectedIssuerTime returns the issuer's "now" advanced by the monotonic
// time elapsed since the last sync. Comparing the wall clock against this
// value detects tampering in either direction without false positives from
// natural drift.
func (s *Store) ProjectedIssuerTime() time.Time {
	s.mu.RLock()
	current := s.record.CurrentTimestamp
	anchor := s.record.SystemUpTime
	s.mu.RUnlock()
	elapsed := time.Duration(monotonicMillis()-anchor) * time.Millisecond
	return time.Unix(current, 0).Add(elapsed)
}

// SetExpiry updates the expiry timestamp and rewrites the artifact. Requires
// a loaded record with a non-empty key.
func (s *Store) SetExpiry(expiry int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.loaded || s.record.LicenseKey == "" {
		return ErrNoLicense
	}
	s.record.ExpiryTimestamp = expiry
	return s.persistLocked()
}

// SetServerCurrentTime updates the issuer's notion of "now" after a resync
// and restamps the monotonic anchor. Requires a loaded record with a
// non-empty key.
func (s *Store) SetServerCurrentTime(t int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.loaded || s.record.LicenseKey == "" {
		return ErrNoLicense
	}
	s.record.CurrentTimestamp = t
	s.record.SystemUpTime = monotonicMillis()
	return s.persistLocked()
}

// SetUsedStatements mirrors the quota counter into the record. Invoked by
// the session pool during flush.
func (s *Store) SetUsedStatements(n int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.loaded {
		return ErrNoLicense
	}
	s.record.UsedStatements = n
	return s.persistLocked()
}

// Replace installs a full record (after activation or re-activation),
// restamps the monotonic anchor, and rewrites the artifact.
func (s *Store) Replace(rec Record) error {
	rec.SystemUpTime = monotonicMillis()

	s.mu.Lock()
	defer s.mu.Unlock()
	s.record = rec
	s.loaded = true
	if err := s.persistLocked(); err != nil {
		return err
	}

	s.logger.Info().
		Str("event", "vault.replaced").
		Str("role", rec.Role).
		Int("users", rec.NumberOfUsers).
		Msg("license record replaced")
	return nil
}

// persistLocked seals the current record and atomically replaces the
// artifact file. Callers must hold s.mu.
func (s *Store) persistLocked() error {
	plain, err := json.Marshal(s.record)
	if err != nil {
		return fmt.Errorf("encode record: %w", err)
	}
	sealed, err := Seal(plain, s.fingerprint)
	if err != nil {
		return fmt.Errorf("seal record: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("create artifact dir: %w", err)
	}
	if err := renameio.WriteFile(s.path, sealed, 0o600); err != nil {
		return fmt.Errorf("write artifact: %w", err)
	}
	return nil
}
