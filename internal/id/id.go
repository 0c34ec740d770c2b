// Package id generates the prefixed NanoID identifiers used across the
// server, such as "book-V1StGXR8_Z5jdHi6B-myT".
package id

import (
	"fmt"

	gonanoid "github.com/matoous/go-nanoid/v2"
)

// idLength is the random part of an ID. Tests rely on the total length
// being prefix + 1 + idLength.
const idLength = 21

// Generate creates an ID of the form prefix-nanoid. It fails only when the
// system cannot supply secure random bytes.
func Generate(prefix string) (string, error) {
	id, err := gonanoid.New(idLength)
	if err != nil {
		return "", fmt.Errorf("generate nanoid: %w", err)
	}
	return prefix + "-" + id, nil
}

// MustGenerate is Generate for callers that cannot recover from a missing
// entropy source anyway, like test fixtures and startup code.
func MustGenerate(prefix string) string {
	id, err := Generate(prefix)
	if err != nil {
		panic(fmt.Sprintf("failed to generate ID: %v", err))
	}
	return id
}
