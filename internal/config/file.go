// SPDX-License-Identifier: MIT

package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// mergeFile overlays values from a YAML config file onto cfg. A missing file
// is not an error; a present but unreadable or malformed file is.
func mergeFile(cfg *AppConfig, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("read: %w", err)
	}

	// Decode into a copy seeded with the current values so absent keys keep
	// their defaults.
	merged := *cfg
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&merged); err != nil {
		return fmt.Errorf("parse: %w", err)
	}
	*cfg = merged
	return nil
}
