// Package id generates the identifiers that make archive names unique.
package id

import (
	"fmt"
	"sync/atomic"

	"github.com/google/uuid"
)

// UUID creates UUIDv7 strings.
type UUID struct{}

// NewID returns a UUIDv7 string, falling back to v4 when the v7 generator
// cannot read its entropy source.
func (UUID) NewID() (string, error) {
	v7, err := uuid.NewV7()
	if err == nil {
		return v7.String(), nil
	}
	v4, err4 := uuid.NewRandom()
	if err4 != nil {
		return "", fmt.Errorf("generate uuid: %w", err)
	}
	return v4.String(), nil
}

// Sequence hands out predictable IDs ("<prefix>-000001", ...) for tests.
type Sequence struct {
	Prefix string
	n      atomic.Int64
}

// NewID returns the next ID in the sequence.
func (s *Sequence) NewID() (string, error) {
	return fmt.Sprintf("%s-%06d", s.Prefix, s.n.Add(1)), nil
}
