// SPDX-License-Identifier: MIT

package vault

func sharedDataDir() string {
	return "/usr/share"
}
