// SPDX-License-Identifier: MIT

package vault

func sharedDataDir() string {
	return "/Users/Shared"
}
