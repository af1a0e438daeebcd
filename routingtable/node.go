package routingtable

import (
	"net"
	"time"

	"mldht/id"
)

// Status is the derived health classification of a Node, per
// spec.md §3.
type Status int

const (
	// Questionable is the default status for a node we have not
	// heard from recently and have not struck out three times in a row.
	Questionable Status = iota
	Good
	Bad
)

func (s Status) String() string {
	switch s {
	case Good:
		return "good"
	case Bad:
		return "bad"
	default:
		return "questionable"
	}
}

// goodDuration is the freshness window spec.md §3 defines Good status
// against: 15 minutes since the last message received.
const goodDuration = 15 * time.Minute

// Handle pairs a NodeID with the socket address it was last seen at.
// Changing the address yields a different handle, per spec.md §3.
type Handle struct {
	ID   id.NodeID
	Addr *net.UDPAddr
}

func (h Handle) String() string {
	return h.ID.String() + "@" + h.Addr.String()
}

// Node is a routing-table entry: a Handle plus the health metadata
// spec.md §3 describes (last-received timestamp, last-sent timestamp,
// consecutive-failure strike counter). Node instances are owned
// exclusively by the Bucket that holds them.
type Node struct {
	Handle

	lastReceived time.Time
	everUnsolic  bool
	pendingSince time.Time
	hasPending   bool
	strikes      int
}

// NewNode constructs a freshly-seen Node (as if it had just sent us
// an unsolicited message, e.g. on first contact).
func NewNode(h Handle) *Node {
	n := &Node{Handle: h}
	n.remoteRequest(time.Now())
	return n
}

// RemoteRequest records that the remote node sent us an unsolicited
// message (a query we did not ask for).
func (n *Node) RemoteRequest() { n.remoteRequest(time.Now()) }

func (n *Node) remoteRequest(now time.Time) {
	n.lastReceived = now
	n.everUnsolic = true
	n.hasPending = false
	n.strikes = 0
}

// LocalRequest records that we sent an outbound request to this node
// and are now waiting on a reply.
func (n *Node) LocalRequest() { n.localRequest(time.Now()) }

func (n *Node) localRequest(now time.Time) {
	n.pendingSince = now
	n.hasPending = true
}

// LocalResponse records that the node answered our outbound request.
func (n *Node) LocalResponse() { n.localResponse(time.Now()) }

func (n *Node) localResponse(now time.Time) {
	n.lastReceived = now
	n.hasPending = false
	n.strikes = 0
}

// LocalTimeout records that our outbound request to this node went
// unanswered.
func (n *Node) LocalTimeout() {
	n.hasPending = false
	n.strikes++
}

// Status derives the node's current health classification per
// spec.md §3.
func (n *Node) Status() Status {
	return n.statusAt(time.Now())
}

func (n *Node) statusAt(now time.Time) Status {
	if n.strikes >= 3 {
		return Bad
	}
	recent := !n.lastReceived.IsZero() && now.Sub(n.lastReceived) <= goodDuration
	// strikes == 0 approximates "a strict majority of the last N
	// outbound requests were answered": any strike at all means the
	// most recent outbound request failed, which is enough to fall
	// out of Good absent an unsolicited message.
	if recent && (n.everUnsolic || n.strikes == 0) {
		return Good
	}
	return Questionable
}
