// Package transaction implements the 8-byte TransactionID scheme used
// to demultiplex KRPC responses back to the long-running procedure
// that sent the request, without relying on the sender's address
// (which NATs can remap between requests).
//
// A TransactionID is ActionID (4 bytes, identifies a procedure) ++
// sequence (4 bytes, monotonic within that procedure). The handler
// owns one AIDGenerator, which hands out one MIDGenerator per
// procedure it starts.
package transaction

import (
	"encoding/binary"
	"fmt"
	"sync/atomic"
)

// ActionID identifies one long-running procedure (a bootstrap, a
// lookup, or the refresh task) for the lifetime of that procedure.
type ActionID uint32

// Len is the wire length of a TransactionID in bytes.
const Len = 8

// ID is the 8-byte value carried in a KRPC message's transaction_id
// field.
type ID [Len]byte

// Action returns the ActionID embedded in a transaction id.
func (t ID) Action() ActionID {
	return ActionID(binary.BigEndian.Uint32(t[0:4]))
}

// Sequence returns the per-procedure sequence number embedded in a
// transaction id.
func (t ID) Sequence() uint32 {
	return binary.BigEndian.Uint32(t[4:8])
}

// Bytes returns the wire encoding of the transaction id.
func (t ID) Bytes() []byte {
	b := make([]byte, Len)
	copy(b, t[:])
	return b
}

func (t ID) String() string {
	return fmt.Sprintf("%08x", [Len]byte(t))
}

// Decode parses a wire-format transaction tag. Transaction tags that
// are not exactly Len bytes are rejected: a short or garbled tag
// cannot be trusted to carry a real ActionID, and spec.md §4.8
// requires discarding any response whose transaction tag does not
// decode.
func Decode(b []byte) (ID, error) {
	var out ID
	if len(b) != Len {
		return out, fmt.Errorf("transaction: want %d bytes, got %d", Len, len(b))
	}
	copy(out[:], b)
	return out, nil
}

// AIDGenerator hands out a fresh MIDGenerator, each bound to a new
// ActionID, for every procedure the handler starts.
type AIDGenerator struct {
	next uint32
}

// NewAIDGenerator returns a generator starting from a non-zero
// ActionID so that a zero-valued ActionID can be treated as "unset"
// by callers that embed one in a struct.
func NewAIDGenerator() *AIDGenerator {
	return &AIDGenerator{next: 1}
}

// Generate allocates a new ActionID and the MIDGenerator bound to it.
func (g *AIDGenerator) Generate() *MIDGenerator {
	id := ActionID(atomic.AddUint32(&g.next, 1) - 1)
	return &MIDGenerator{action: id}
}

// MIDGenerator issues monotonically increasing TransactionIDs that
// all share one ActionID, one per procedure instance.
type MIDGenerator struct {
	action ActionID
	seq    uint32
}

// ActionID returns the ActionID this generator's transaction ids carry.
func (g *MIDGenerator) ActionID() ActionID {
	return g.action
}

// Generate returns the next TransactionID for this procedure.
func (g *MIDGenerator) Generate() ID {
	seq := atomic.AddUint32(&g.seq, 1)
	var out ID
	binary.BigEndian.PutUint32(out[0:4], uint32(g.action))
	binary.BigEndian.PutUint32(out[4:8], seq)
	return out
}
