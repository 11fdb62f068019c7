// SPDX-License-Identifier: MIT

// Package fingerprint derives a stable machine identity string from OS
// identifiers. The fingerprint binds the sealed license artifact to the
// host+user it was provisioned on: moving the artifact to another machine or
// account changes the fingerprint and makes the artifact undecryptable.
package fingerprint

import (
	"crypto/sha256"
	"encoding/hex"
	"os"
	"os/user"
	"strings"
	"sync"

	"github.com/cyphersol/licensed/internal/log"
)

// Fallback markers used when a sub-identifier cannot be resolved. Using fixed
// literals keeps partial fingerprints reproducible on the same machine.
const (
	UnknownHost = "UnknownHost"
	UnknownUser = "UnknownUser"
	UnknownUUID = "UnknownUUID"
	UnknownSID  = "UnknownSID"
)

// Provider computes the machine fingerprint once and caches it for the
// process lifetime.
type Provider struct {
	once  sync.Once
	value string
}

// New returns a fingerprint provider. No identifiers are read until the
// first call to Fingerprint.
func New() *Provider {
	return &Provider{}
}

// Fingerprint returns the cached machine identity string, computing it on
// first use. It never fails: unresolvable sub-identifiers degrade to their
// fallback markers.
func (p *Provider) Fingerprint() string {
	p.once.Do(func() {
		p.value = compute()

		// Only a short digest prefix at debug level; the full fingerprint is
		// key material and must not reach the logs.
		sum := sha256.Sum256([]byte(p.value))
		logger := log.WithComponent("fingerprint")
		logger.Debug().
			Str("event", "fingerprint.computed").
			Str("digest_prefix", hex.EncodeToString(sum[:4])).
			Msg("machine fingerprint computed")
	})
	return p.value
}

func compute() string {
	hostname, err := os.Hostname()
	if err != nil || hostname == "" {
		hostname = UnknownHost
	}

	username := UnknownUser
	if u, err := user.Current(); err == nil && u.Username != "" {
		username = u.Username
	}

	parts := append([]string{hostname, username}, osIdentifiers()...)
	return strings.Join(parts, "|")
}
