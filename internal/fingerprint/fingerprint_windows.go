// SPDX-License-Identifier: MIT

package fingerprint

import (
	"os/exec"
	"os/user"
	"strings"
)

// osIdentifiers returns the user security identifier and the SMBIOS system
// UUID as reported by WMI.
func osIdentifiers() []string {
	sid := UnknownSID
	if u, err := user.Current(); err == nil && u.Uid != "" {
		sid = u.Uid // on Windows, user.Uid is the SID string
	}

	uuid := UnknownUUID
	if out, err := exec.Command("wmic", "csproduct", "get", "uuid").Output(); err == nil {
		for _, line := range strings.Split(string(out), "\n") {
			v := strings.TrimSpace(line)
			if v == "" || strings.EqualFold(v, "UUID") {
				continue
			}
			uuid = v
			break
		}
	}

	return []string{sid, uuid}
}
