package hash

import (
	"bytes"
	"encoding/hex"
	"fmt"

	"github.com/zeebo/blake3"
)

const (
	// AlgBlake3 is the algorithm prefix for BLAKE3-256 imprints.
	AlgBlake3 = "0001"

	// DigestSize is the digest size in bytes.
	DigestSize = 32

	// imprintLen is the full imprint length: 4 prefix chars + 64 hex digest chars.
	imprintLen = 4 + 2*DigestSize
)

// Imprint is an algorithm-prefixed hex digest ("0001" + 64 hex chars).
// All persisted and compared digests in the wallet are imprints; raw digests
// never leave this package.
type Imprint string

// Sum computes the BLAKE3 imprint over the concatenation of parts.
func Sum(parts ...[]byte) Imprint {
	h := blake3.New()
	for _, p := range parts {
		h.Write(p)
	}

	var digest [DigestSize]byte
	h.Sum(digest[:0])

	return fromDigest(digest)
}

// Keyed computes a domain-separated BLAKE3 imprint.
// The domain string is hashed first so distinct uses can never collide.
func Keyed(domain string, parts ...[]byte) Imprint {
	h := blake3.New()
	h.Write([]byte(domain))
	for _, p := range parts {
		h.Write(p)
	}

	var digest [DigestSize]byte
	h.Sum(digest[:0])

	return fromDigest(digest)
}

// fromDigest builds an imprint from a raw digest.
func fromDigest(digest [DigestSize]byte) Imprint {
	return Imprint(AlgBlake3 + hex.EncodeToString(digest[:]))
}

// FromBytes builds an imprint from raw digest bytes.
func FromBytes(digest []byte) (Imprint, error) {
	if len(digest) != DigestSize {
		return "", fmt.Errorf("invalid digest size: got %d, want %d", len(digest), DigestSize)
	}

	return Imprint(AlgBlake3 + hex.EncodeToString(digest)), nil
}

// Valid reports whether the imprint is well-formed.
func (i Imprint) Valid() bool {
	if len(i) != imprintLen || string(i[:4]) != AlgBlake3 {
		return false
	}

	_, err := hex.DecodeString(string(i[4:]))

	return err == nil
}

// Bytes returns the raw digest bytes of the imprint.
func (i Imprint) Bytes() ([]byte, error) {
	if !i.Valid() {
		return nil, fmt.Errorf("malformed imprint: %q", string(i))
	}

	return hex.DecodeString(string(i[4:]))
}

// Equal compares two imprints in full, prefix included.
func (i Imprint) Equal(other Imprint) bool {
	return i == other
}

// EqualBytes compares the imprint's digest against raw digest bytes.
func (i Imprint) EqualBytes(digest []byte) bool {
	b, err := i.Bytes()
	if err != nil {
		return false
	}

	return bytes.Equal(b, digest)
}
