// SPDX-License-Identifier: MIT

package fingerprint

import (
	"os/exec"
	"os/user"
	"strings"
)

// osIdentifiers returns the numeric user id and the IOPlatformUUID.
func osIdentifiers() []string {
	uid := UnknownSID
	if u, err := user.Current(); err == nil && u.Uid != "" {
		uid = u.Uid
	}

	uuid := UnknownUUID
	if out, err := exec.Command("ioreg", "-rd1", "-c", "IOPlatformExpertDevice").Output(); err == nil {
		for _, line := range strings.Split(string(out), "\n") {
			if !strings.Contains(line, "IOPlatformUUID") {
				continue
			}
			if idx := strings.Index(line, "= \""); idx >= 0 {
				v := strings.TrimSuffix(strings.TrimSpace(line[idx+3:]), "\"")
				if v != "" {
					uuid = v
				}
			}
			break
		}
	}

	return []string{uid, uuid}
}
