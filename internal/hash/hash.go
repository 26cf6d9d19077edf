// Package hash computes archive checksums while they are written.
package hash

import (
	"crypto/sha256"
	"encoding/hex"
	stdhash "hash"
)

// Digest is an io.Writer that tracks the SHA-256 and length of everything
// written to it.
type Digest struct {
	h stdhash.Hash
	n int64
}

// NewDigest returns an empty SHA-256 digest.
func NewDigest() *Digest {
	return &Digest{h: sha256.New()}
}

// Write never fails.
func (d *Digest) Write(p []byte) (int, error) {
	d.h.Write(p) //nolint:errcheck // hash.Hash writes never fail
	d.n += int64(len(p))
	return len(p), nil
}

// Hex returns the hex-encoded SHA-256 of the bytes written so far.
func (d *Digest) Hex() string {
	return hex.EncodeToString(d.h.Sum(nil))
}

// Size returns the number of bytes written so far.
func (d *Digest) Size() int64 {
	return d.n
}
