// Package csrf generates the anti-forgery state values round-tripped through
// authorization redirects
package csrf

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
)

const (
	// MinStateBytes is the smallest accepted state size (128 bits)
	MinStateBytes = 16

	// DefaultStateBytes is the state size used by NewGenerator when n is zero
	DefaultStateBytes = 32
)

// Generator produces unguessable single-use state values
type Generator interface {
	Generate() (string, error)
}

// RandomGenerator reads state values from crypto/rand
type RandomGenerator struct {
	size int
}

// NewGenerator creates a generator producing n random bytes per state.
// Sizes below MinStateBytes are raised to it; zero selects DefaultStateBytes.
func NewGenerator(n int) *RandomGenerator {
	switch {
	case n == 0:
		n = DefaultStateBytes
	case n < MinStateBytes:
		n = MinStateBytes
	}
	return &RandomGenerator{size: n}
}

// Generate returns a new URL-safe state value
func (g *RandomGenerator) Generate() (string, error) {
	b := make([]byte, g.size)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generating random bytes: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
