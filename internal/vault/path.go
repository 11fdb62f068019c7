// SPDX-License-Identifier: MIT

package vault

import "path/filepath"

// Folder names under the shared application-data directory. The development
// folder keeps dev artifacts from clobbering a production license on the
// same machine.
const (
	folderProduction  = "Cyphersol"
	folderDevelopment = "CyphersolDev"
	artifactFilename  = "license.enc"
)

// ArtifactPath resolves the platform-specific sealed artifact location.
func ArtifactPath(development bool) string {
	folder := folderProduction
	if development {
		folder = folderDevelopment
	}
	return filepath.Join(sharedDataDir(), folder, artifactFilename)
}
