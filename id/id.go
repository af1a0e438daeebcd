// Package id implements the 160-bit identifiers used throughout the
// DHT: NodeID and InfoHash, their XOR metric, and the bit-flip
// operation used to pick refresh and bootstrap targets.
package id

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
)

// Len is the width in bytes of a NodeID or InfoHash (160 bits).
const Len = 20

// ID is a 160-bit opaque identifier. It is immutable and independent
// of any transport address.
type ID [Len]byte

// NodeID identifies a DHT participant.
type NodeID = ID

// InfoHash identifies a piece of content.
type InfoHash = ID

// Zero is the all-zero identifier.
var Zero ID

// FromBytes builds an ID from a 20-byte slice, copying it.
func FromBytes(b []byte) (ID, error) {
	var out ID
	if len(b) != Len {
		return out, fmt.Errorf("id: want %d bytes, got %d", Len, len(b))
	}
	copy(out[:], b)
	return out, nil
}

// FromHex decodes a 40-character hex string into an ID.
func FromHex(s string) (ID, error) {
	var out ID
	b, err := hex.DecodeString(s)
	if err != nil {
		return out, fmt.Errorf("id: bad hex: %w", err)
	}
	return FromBytes(b)
}

// Random returns a cryptographically random ID.
func Random() ID {
	var out ID
	if _, err := rand.Read(out[:]); err != nil {
		panic("id: failed to read random bytes: " + err.Error())
	}
	return out
}

// Bytes returns the identifier's raw bytes.
func (a ID) Bytes() []byte {
	b := make([]byte, Len)
	copy(b, a[:])
	return b
}

func (a ID) String() string {
	return hex.EncodeToString(a[:])
}

// Equal reports whether two identifiers are the same.
func (a ID) Equal(b ID) bool {
	return a == b
}

// Distance returns the XOR metric distance between a and b, itself a
// 160-bit value suitable for ordering.
func (a ID) Distance(b ID) ID {
	var out ID
	for i := range a {
		out[i] = a[i] ^ b[i]
	}
	return out
}

// Less reports whether a is numerically less than b when both are
// interpreted as big-endian unsigned 160-bit integers. Used to order
// distances and to break ties between equidistant IDs.
func (a ID) Less(b ID) bool {
	for i := range a {
		if a[i] != b[i] {
			return a[i] < b[i]
		}
	}
	return false
}

// CloserTo reports whether a is closer to pivot than b is, i.e.
// distance(a, pivot) < distance(b, pivot). Ties are broken by
// byte-lexicographic order of a and b themselves, matching spec.md
// §4.6's shortlist tie-breaking rule.
func CloserTo(pivot, a, b ID) bool {
	da, db := a.Distance(pivot), b.Distance(pivot)
	if da != db {
		return da.Less(db)
	}
	return a.Less(b)
}

// FlipBit returns a copy of a with bit i inverted, where bit 0 is the
// most significant bit of the identifier.
func (a ID) FlipBit(i int) ID {
	out := a
	if i < 0 || i >= Len*8 {
		return out
	}
	byteIdx := i / 8
	bitIdx := uint(7 - i%8)
	out[byteIdx] ^= 1 << bitIdx
	return out
}

// CommonPrefixLen returns the number of leading bits a and b share,
// from 0 (differ in the very first bit) to Len*8 (identical).
func CommonPrefixLen(a, b ID) int {
	for i := range a {
		if a[i] == b[i] {
			continue
		}
		x := a[i] ^ b[i]
		n := 0
		for x&0x80 == 0 {
			n++
			x <<= 1
		}
		return i*8 + n
	}
	return Len * 8
}
