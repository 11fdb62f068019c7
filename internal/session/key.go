// SPDX-License-Identifier: MIT

package session

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// Key derives the stable session identifier for a (device, client) pair:
// SHA-256 over the lowercased, trimmed uuid, hostname and client id joined
// with "::", rendered as lowercase hex. The MAC address and username are
// audit fields and never enter the key, so a changed or randomized MAC does
// not mint a second slot for the same workstation.
func Key(uuid, hostname, clientID string) string {
	canon := func(s string) string {
		return strings.ToLower(strings.TrimSpace(s))
	}
	sum := sha256.Sum256([]byte(canon(uuid) + "::" + canon(hostname) + "::" + canon(clientID)))
	return hex.EncodeToString(sum[:])
}
