// SPDX-License-Identifier: MIT

package session

import (
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cyphersol/licensed/internal/vault"
)

const testFingerprint = "test-host|tester|1000|uuid-test"

func newTestStore(t *testing.T, users int, statements int64) *vault.Store {
	t.Helper()
	store := vault.NewStore(filepath.Join(t.TempDir(), "license.enc"), testFingerprint)
	now := time.Now().Unix()
	require.NoError(t, store.Replace(vault.Record{
		LicenseKey:         "LIC-TEST",
		CurrentTimestamp:   now,
		ExpiryTimestamp:    now + 86400,
		NumberOfUsers:      users,
		NumberOfStatements: statements,
		Role:               "standard",
	}))
	return store
}

func newTestPool(t *testing.T, users int, statements int64) *Pool {
	t.Helper()
	return NewPool(newTestStore(t, users, statements), 10*time.Second)
}

func TestSessionLifecycle(t *testing.T) {
	p := newTestPool(t, 2, 100)

	res := p.TryUse("c1", "u1", "m1", "h1", "alice")
	require.True(t, res.OK)
	require.NotNil(t, res.Session)
	assert.False(t, res.Session.Active)
	assert.Equal(t, 1, p.Count())

	require.NoError(t, p.Activate("c1", "u1", "m1", "h1"))
	assert.Equal(t, int64(1), p.ActiveCount())

	require.NoError(t, p.Deactivate("c1", "u1", "m1", "h1"))
	assert.Equal(t, int64(0), p.ActiveCount())

	require.NoError(t, p.Revoke(res.Session.Key))
	assert.Equal(t, 0, p.Count())
}

func TestCapacityExhaustionListsInactiveThenActive(t *testing.T) {
	p := newTestPool(t, 1, 100)

	first := p.TryUse("c1", "u1", "m1", "h1", "a")
	require.True(t, first.OK)

	second := p.TryUse("c2", "u2", "m2", "h2", "b")
	require.False(t, second.OK)
	assert.Equal(t, "no available licenses", second.Message)
	require.Len(t, second.InactiveSessions, 1)
	assert.Empty(t, second.ActiveSessions)
	assert.Equal(t, first.Session.Key, second.InactiveSessions[0].Key)

	// Once the occupant is active there are no inactive slots to offer.
	require.NoError(t, p.Activate("c1", "u1", "m1", "h1"))
	third := p.TryUse("c2", "u2", "m2", "h2", "b")
	require.False(t, third.OK)
	assert.Empty(t, third.InactiveSessions)
	require.Len(t, third.ActiveSessions, 1)
	assert.Equal(t, first.Session.Key, third.ActiveSessions[0].Key)
}

func TestPoolNeverExceedsCapacity(t *testing.T) {
	p := newTestPool(t, 3, 100)

	for i := 0; i < 10; i++ {
		p.TryUse(string(rune('a'+i)), string(rune('A'+i)), "m", "h", "u")
		assert.LessOrEqual(t, p.Count(), 3)
	}
	assert.Equal(t, 3, p.Count())
}

func TestRevokeRefusesActiveSession(t *testing.T) {
	p := newTestPool(t, 2, 100)

	res := p.TryUse("c1", "u1", "m1", "h1", "a")
	require.True(t, res.OK)
	require.NoError(t, p.Activate("c1", "u1", "m1", "h1"))

	assert.ErrorIs(t, p.Revoke(res.Session.Key), ErrSessionActive)
	assert.Equal(t, 1, p.Count())

	require.NoError(t, p.Deactivate("c1", "u1", "m1", "h1"))
	require.NoError(t, p.Revoke(res.Session.Key))
	assert.Equal(t, 0, p.Count())
}

func TestOperationsOnUnknownKeyReportNotFound(t *testing.T) {
	p := newTestPool(t, 2, 100)

	assert.ErrorIs(t, p.Activate("c9", "u9", "m9", "h9"), ErrNotFound)
	assert.ErrorIs(t, p.Deactivate("c9", "u9", "m9", "h9"), ErrNotFound)
	assert.ErrorIs(t, p.Release("c9", "u9", "m9", "h9"), ErrNotFound)
	assert.ErrorIs(t, p.Revoke("no-such-key"), ErrNotFound)
	assert.False(t, p.IsValid("c9", "u9", "m9", "h9"))
}

func TestReleaseThenReassignGetsFreshTimestamp(t *testing.T) {
	p := newTestPool(t, 1, 100)

	first := p.TryUse("c1", "u1", "m1", "h1", "a")
	require.True(t, first.OK)
	firstAssigned := first.Session.AssignedAt

	require.NoError(t, p.Release("c1", "u1", "m1", "h1"))

	second := p.TryUse("c1", "u1", "m1", "h1", "a")
	require.True(t, second.OK)
	assert.Equal(t, "license assigned", second.Message, "release must free the slot for a fresh assignment")
	assert.True(t, !second.Session.AssignedAt.Before(firstAssigned))
}

func TestConcurrentTryUseSameKeyYieldsOneSlot(t *testing.T) {
	p := newTestPool(t, 5, 100)

	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res := p.TryUse("c1", "u1", "m1", "h1", "alice")
			assert.True(t, res.OK)
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, p.Count())
}

func TestSessionsSnapshotIsDetached(t *testing.T) {
	p := newTestPool(t, 3, 100)
	p.TryUse("c1", "u1", "m1", "h1", "a")
	p.TryUse("c2", "u2", "m2", "h2", "b")

	snap := p.Sessions()
	require.Len(t, snap, 2)

	snap[0].Active = true
	for _, s := range p.Sessions() {
		assert.False(t, s.Active, "mutating the snapshot must not touch the pool")
	}
}
