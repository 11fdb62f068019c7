// SPDX-License-Identifier: MIT

package discovery

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeHandle struct {
	shutdowns *atomic.Int64
}

func (f *fakeHandle) Shutdown() { f.shutdowns.Add(1) }

// newFakeAnnouncer swaps the zeroconf registration for an in-memory fake so
// tests need no multicast socket.
func newFakeAnnouncer() (*Announcer, *atomic.Int64, *atomic.Int64) {
	var registers, shutdowns atomic.Int64
	a := NewAnnouncer("licensed-test")
	a.register = func(p profile) (mdnsHandle, error) {
		registers.Add(1)
		return &fakeHandle{shutdowns: &shutdowns}, nil
	}
	return a, &registers, &shutdowns
}

func TestAdvertiseIsIdempotentPerCompositeKey(t *testing.T) {
	a, registers, _ := newFakeAnnouncer()

	require.NoError(t, a.AdvertiseLicenseService(7890))
	require.NoError(t, a.AdvertiseLicenseService(7890))
	assert.Equal(t, int64(1), registers.Load())
	assert.Len(t, a.Profiles(), 1)

	// A different port is a different profile.
	require.NoError(t, a.AdvertiseLicenseService(7891))
	assert.Equal(t, int64(2), registers.Load())
	assert.Len(t, a.Profiles(), 2)
}

func TestLicenseAndDatabaseProfilesCoexist(t *testing.T) {
	a, _, _ := newFakeAnnouncer()

	require.NoError(t, a.AdvertiseLicenseService(7890))
	require.NoError(t, a.AdvertiseDatabaseService("pg-main", 5432, "16"))
	require.NoError(t, a.AdvertiseDatabaseService("pg-replica", 5433, "16"))

	assert.Len(t, a.Profiles(), 3)
}

func TestReAnnounceAllLeavesTableUnchanged(t *testing.T) {
	a, registers, shutdowns := newFakeAnnouncer()

	require.NoError(t, a.AdvertiseLicenseService(7890))
	require.NoError(t, a.AdvertiseDatabaseService("pg-main", 5432, "16"))
	before := a.Profiles()

	a.ReAnnounceAll()

	assert.ElementsMatch(t, before, a.Profiles())
	assert.Equal(t, int64(4), registers.Load(), "each profile registered once more")
	assert.Equal(t, int64(2), shutdowns.Load(), "stale handles released")
}

func TestUnregisterWithdrawsOneProfile(t *testing.T) {
	a, _, shutdowns := newFakeAnnouncer()

	require.NoError(t, a.AdvertiseLicenseService(7890))
	require.NoError(t, a.AdvertiseDatabaseService("pg-main", 5432, "16"))

	a.Unregister(ServiceDatabase + ":pg-main:5432")

	assert.Equal(t, int64(1), shutdowns.Load())
	assert.ElementsMatch(t, []string{ServiceLicense + ":licensed-test:7890"}, a.Profiles())
}

func TestStopIsIdempotentAndClearsTable(t *testing.T) {
	a, _, shutdowns := newFakeAnnouncer()

	require.NoError(t, a.AdvertiseLicenseService(7890))
	require.NoError(t, a.AdvertiseDatabaseService("pg-main", 5432, "16"))

	a.Stop()
	a.Stop()

	assert.Equal(t, int64(2), shutdowns.Load())
	assert.Empty(t, a.Profiles())
}

func TestReannounceIntervalFloor(t *testing.T) {
	a, _, _ := newFakeAnnouncer()

	assert.Error(t, a.SetReannounceInterval(9*time.Second))
	assert.NoError(t, a.SetReannounceInterval(10*time.Second))
	assert.NoError(t, a.SetReannounceInterval(5*time.Minute))
}

func TestFailedReannounceKeepsProfile(t *testing.T) {
	a, _, _ := newFakeAnnouncer()
	require.NoError(t, a.AdvertiseLicenseService(7890))

	a.register = func(p profile) (mdnsHandle, error) {
		return nil, assert.AnError
	}
	a.ReAnnounceAll()

	assert.Len(t, a.Profiles(), 1, "a failed re-announce must not drop the profile")
}
