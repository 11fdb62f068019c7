// SPDX-License-Identifier: MIT

package vault

import "os"

func sharedDataDir() string {
	if dir := os.Getenv("ProgramData"); dir != "" {
		return dir
	}
	return `C:\ProgramData`
}
