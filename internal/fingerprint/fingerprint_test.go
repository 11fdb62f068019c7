// SPDX-License-Identifier: MIT

package fingerprint

import (
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFingerprintIsStableWithinProcess(t *testing.T) {
	p := New()
	first := p.Fingerprint()
	require.NotEmpty(t, first)

	for i := 0; i < 10; i++ {
		assert.Equal(t, first, p.Fingerprint())
	}
}

func TestFingerprintHasExpectedShape(t *testing.T) {
	fp := New().Fingerprint()

	// hostname | username | uid/sid | uuid
	parts := strings.Split(fp, "|")
	assert.GreaterOrEqual(t, len(parts), 4)
	for _, part := range parts {
		assert.NotEmpty(t, part, "no fingerprint component may be empty")
	}
}

func TestFingerprintConcurrentAccess(t *testing.T) {
	p := New()

	var wg sync.WaitGroup
	results := make([]string, 16)
	for i := 0; i < len(results); i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = p.Fingerprint()
		}(i)
	}
	wg.Wait()

	for _, r := range results {
		assert.Equal(t, results[0], r)
	}
}

func TestFreshProvidersAgree(t *testing.T) {
	assert.Equal(t, New().Fingerprint(), New().Fingerprint())
}
