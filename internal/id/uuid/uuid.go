// Package uuid generates request and browser-session identifiers.
package uuid

import (
	"fmt"

	"github.com/google/uuid"
)

// Generator creates time-ordered UUIDv7 strings so identifiers sort by
// creation in logs.
type Generator struct{}

// New creates a new Generator.
func New() *Generator {
	return &Generator{}
}

// NewID returns a UUIDv7 string, falling back to a random v4 if the v7
// source fails.
func (Generator) NewID() (string, error) {
	id, err := uuid.NewV7()
	if err == nil {
		return id.String(), nil
	}
	fallback, ferr := uuid.NewRandom()
	if ferr != nil {
		return "", fmt.Errorf("generate uuid: %w", err)
	}
	return fallback.String(), nil
}

// Short returns the first eight hex characters of a fresh identifier; used for
// compact session labels.
func (g Generator) Short() string {
	id, err := g.NewID()
	if err != nil {
		return "00000000"
	}
	return id[:8]
}
