// Package oid implements the 20-byte SHA-1 object identifier used
// throughout the engine to address blobs, trees, commits, and tags.
package oid

import (
	"bytes"
	"crypto/sha1" //nolint:gosec // git's object ids are SHA-1 by design
	"encoding/hex"

	"golang.org/x/xerrors"
)

// Size is the length of an Oid, in bytes.
const Size = 20

// HexSize is the length of an Oid's hex representation.
const HexSize = Size * 2

// ErrInvalidOid is returned when a given value isn't a valid Oid.
var ErrInvalidOid = xerrors.New("invalid oid")

// Null is the zero-value Oid, used as a sentinel for "no object".
var Null = Oid{}

// Oid is a 20-byte SHA-1 object id.
type Oid [Size]byte

// Bytes returns the raw 20 bytes of the Oid.
func (o Oid) Bytes() []byte {
	return o[:]
}

// String returns the 40-char hex representation of the Oid.
func (o Oid) String() string {
	return hex.EncodeToString(o[:])
}

// IsZero reports whether the Oid is the Null value.
func (o Oid) IsZero() bool {
	return o == Null
}

// Compare returns -1, 0 or 1 depending on whether o sorts before,
// equal to, or after other, byte-wise.
func (o Oid) Compare(other Oid) int {
	return bytes.Compare(o[:], other[:])
}

// FromContent returns the Oid of the given content: sha1(content).
// Callers are expected to pass the canonical "kind len\x00payload"
// bytes, not the raw payload.
func FromContent(content []byte) Oid {
	return sha1.Sum(content) //nolint:gosec
}

// FromRawBytes builds an Oid from a 20-byte raw binary hash.
func FromRawBytes(raw []byte) (Oid, error) {
	if len(raw) < Size {
		return Null, xerrors.Errorf("oid from %d raw bytes: %w", len(raw), ErrInvalidOid)
	}
	var o Oid
	copy(o[:], raw)
	return o, nil
}

// FromHexChars builds an Oid from 40 ASCII hex char bytes (e.g. as
// read straight off the wire or out of a loose-ref file).
func FromHexChars(chars []byte) (Oid, error) {
	return FromHex(string(chars))
}

// FromHex builds an Oid from its 40-char hex string representation.
func FromHex(hexStr string) (Oid, error) {
	raw, err := hex.DecodeString(hexStr)
	if err != nil {
		return Null, xerrors.Errorf("decoding oid %q: %w", hexStr, err)
	}
	if len(raw) != Size {
		return Null, xerrors.Errorf("oid %q has %d bytes, want %d: %w", hexStr, len(raw), Size, ErrInvalidOid)
	}
	var o Oid
	copy(o[:], raw)
	return o, nil
}
