// SPDX-License-Identifier: MIT

package session

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cyphersol/licensed/internal/vault"
)

func TestStatementQuotaExhaustion(t *testing.T) {
	p := newTestPool(t, 2, 3)

	for i := 0; i < 3; i++ {
		ok, _ := p.TryUseStatement()
		require.True(t, ok, "consumption %d within quota must succeed", i+1)
	}

	ok, msg := p.TryUseStatement()
	assert.False(t, ok)
	assert.Equal(t, "statement limit reached", msg)
	assert.Equal(t, int64(3), p.UsedStatements())
	assert.Equal(t, int64(0), p.RemainingStatements())
	assert.True(t, p.StatementLimitReached())
}

func TestStatementQuotaArithmetic(t *testing.T) {
	p := newTestPool(t, 2, 10)

	before := p.UsedStatements()
	remainingBefore := p.RemainingStatements()

	ok, _ := p.TryUseStatement()
	require.True(t, ok)

	assert.Equal(t, before+1, p.UsedStatements())
	assert.Equal(t, remainingBefore-1, p.RemainingStatements())
}

func TestUnlimitedStatements(t *testing.T) {
	p := newTestPool(t, 2, vault.UnlimitedStatements)

	for i := 0; i < 1000; i++ {
		ok, _ := p.TryUseStatement()
		require.True(t, ok)
	}

	assert.Equal(t, int64(0), p.UsedStatements(), "unlimited mode must not mutate the counter")
	assert.Equal(t, int64(math.MaxInt64), p.RemainingStatements())
	assert.False(t, p.StatementLimitReached())
}

func TestQuotaFailsClosedWithoutLicense(t *testing.T) {
	store := vault.NewStore(t.TempDir()+"/license.enc", testFingerprint)
	p := NewPool(store, 10*time.Second)

	ok, msg := p.TryUseStatement()
	assert.False(t, ok)
	assert.Equal(t, "no valid license", msg)
	assert.True(t, p.StatementLimitReached())
}

func TestFlushPersistsCounterToArtifact(t *testing.T) {
	store := newTestStore(t, 2, 100)
	// A zero-ish interval makes every consumption flush-eligible.
	p := NewPool(store, time.Millisecond)

	time.Sleep(5 * time.Millisecond)
	ok, _ := p.TryUseStatement()
	require.True(t, ok)

	// The artifact on disk now carries the counter.
	reloaded := vault.NewStore(store.Path(), testFingerprint)
	require.NoError(t, reloaded.Load())
	assert.Equal(t, int64(1), reloaded.Snapshot().UsedStatements)
}

func TestExplicitFlush(t *testing.T) {
	store := newTestStore(t, 2, 100)
	p := NewPool(store, time.Hour) // interval never elapses on its own

	for i := 0; i < 5; i++ {
		ok, _ := p.TryUseStatement()
		require.True(t, ok)
	}
	assert.Equal(t, int64(0), store.Snapshot().UsedStatements, "no flush before the interval or an explicit call")

	require.NoError(t, p.Flush())
	assert.Equal(t, int64(5), store.Snapshot().UsedStatements)
}

func TestCounterSeededFromRecord(t *testing.T) {
	store := newTestStore(t, 2, 100)
	require.NoError(t, store.SetUsedStatements(40))

	p := NewPool(store, time.Hour)
	assert.Equal(t, int64(40), p.UsedStatements())
	assert.Equal(t, int64(60), p.RemainingStatements())
}
