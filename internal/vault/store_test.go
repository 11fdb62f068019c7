// SPDX-License-Identifier: MIT

package vault

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testFingerprint = "test-host|tester|1000|uuid-test"

func newTestStore(t *testing.T) *Store {
	t.Helper()
	return NewStore(filepath.Join(t.TempDir(), "Cyphersol", "license.enc"), testFingerprint)
}

func TestLoadMissingArtifact(t *testing.T) {
	s := newTestStore(t)

	err := s.Load()
	assert.ErrorIs(t, err, ErrArtifactMissing)
	assert.False(t, s.Loaded())
	assert.False(t, s.Snapshot().IsValid())

	// Loading must not create the file.
	_, statErr := os.Stat(s.Path())
	assert.True(t, os.IsNotExist(statErr))
}

func TestReplaceThenReload(t *testing.T) {
	s := newTestStore(t)
	rec := validRecord()
	require.NoError(t, s.Replace(rec))

	// A fresh store on the same path and fingerprint sees the same record.
	s2 := NewStore(s.Path(), testFingerprint)
	require.NoError(t, s2.Load())

	got := s2.Snapshot()
	assert.Equal(t, rec.LicenseKey, got.LicenseKey)
	assert.Equal(t, rec.NumberOfUsers, got.NumberOfUsers)
	assert.Equal(t, rec.ExpiryTimestamp, got.ExpiryTimestamp)
	assert.True(t, got.IsValid())
}

func TestLoadWithWrongFingerprint(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.Replace(validRecord()))

	other := NewStore(s.Path(), "other-host|mallory|1001|uuid-other")
	err := other.Load()
	assert.ErrorIs(t, err, ErrCorruptOrTampered)
	assert.False(t, other.Loaded())
}

func TestLoadCorruptArtifact(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.Replace(validRecord()))

	data, err := os.ReadFile(s.Path())
	require.NoError(t, err)
	data[0] ^= 0xff
	require.NoError(t, os.WriteFile(s.Path(), data, 0o600))

	s2 := NewStore(s.Path(), testFingerprint)
	assert.ErrorIs(t, s2.Load(), ErrCorruptOrTampered)
}

func TestMutationsRequireLoadedRecord(t *testing.T) {
	s := newTestStore(t)

	assert.ErrorIs(t, s.SetExpiry(12345), ErrNoLicense)
	assert.ErrorIs(t, s.SetServerCurrentTime(12345), ErrNoLicense)
	assert.ErrorIs(t, s.SetUsedStatements(1), ErrNoLicense)
}

func TestSetExpiryPersists(t *testing.T) {
	s := newTestStore(t)
	rec := validRecord()
	require.NoError(t, s.Replace(rec))

	newExpiry := rec.ExpiryTimestamp + 3600
	require.NoError(t, s.SetExpiry(newExpiry))
	assert.Equal(t, newExpiry, s.Snapshot().ExpiryTimestamp)

	s2 := NewStore(s.Path(), testFingerprint)
	require.NoError(t, s2.Load())
	assert.Equal(t, newExpiry, s2.Snapshot().ExpiryTimestamp)
}

func TestSetUsedStatementsPersists(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.Replace(validRecord()))

	require.NoError(t, s.SetUsedStatements(42))
	assert.Equal(t, int64(42), s.Snapshot().UsedStatements)

	s2 := NewStore(s.Path(), testFingerprint)
	require.NoError(t, s2.Load())
	assert.Equal(t, int64(42), s2.Snapshot().UsedStatements)
}

func TestSetServerCurrentTimeRestampsAnchor(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.Replace(validRecord()))

	before := s.Snapshot().SystemUpTime
	newNow := s.Snapshot().CurrentTimestamp + 500
	require.NoError(t, s.SetServerCurrentTime(newNow))

	got := s.Snapshot()
	assert.Equal(t, newNow, got.CurrentTimestamp)
	assert.GreaterOrEqual(t, got.SystemUpTime, before)
}

func TestArtifactPathFolders(t *testing.T) {
	prod := ArtifactPath(false)
	dev := ArtifactPath(true)

	assert.Contains(t, prod, "Cyphersol")
	assert.NotContains(t, prod, "CyphersolDev")
	assert.Contains(t, dev, "CyphersolDev")
	assert.Equal(t, "license.enc", filepath.Base(prod))
}
