// SPDX-License-Identifier: MIT

package fingerprint

import (
	"os"
	"os/user"
	"strings"
)

// osIdentifiers returns the numeric user id and the firmware system UUID.
// The SMBIOS product UUID is world-readable on most distributions; the D-Bus
// machine-id serves as a stable fallback when it is not.
func osIdentifiers() []string {
	uid := UnknownSID
	if u, err := user.Current(); err == nil && u.Uid != "" {
		uid = u.Uid
	}

	uuid := UnknownUUID
	for _, path := range []string{
		"/sys/class/dmi/id/product_uuid",
		"/etc/machine-id",
		"/var/lib/dbus/machine-id",
	} {
		if data, err := os.ReadFile(path); err == nil {
			if v := strings.TrimSpace(string(data)); v != "" {
				uuid = v
				break
			}
		}
	}

	return []string{uid, uuid}
}
