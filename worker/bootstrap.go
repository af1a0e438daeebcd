package worker

import (
	"net"
	"time"

	"mldht/id"
	"mldht/logger"
	"mldht/routingtable"
	"mldht/transaction"
)

// BootstrapTimeout is how long a bootstrap phase waits for its probes
// before giving up on the stragglers, per spec.md §4.5.
const BootstrapTimeout = 5 * time.Second

// MaxBucketIndex is one past the last valid bucket index (0..160),
// matching id's 160-bit width.
const MaxBucketIndex = id.Len * 8

// BootstrapStatus is returned by Bootstrap's event methods.
type BootstrapStatus int

const (
	Idle BootstrapStatus = iota
	Bootstrapping
	Completed
	Failed
)

func (s BootstrapStatus) String() string {
	switch s {
	case Idle:
		return "idle"
	case Bootstrapping:
		return "bootstrapping"
	case Completed:
		return "completed"
	default:
		return "failed"
	}
}

// Bootstrap drives the phased find_node probing of spec.md §4.5: one
// phase per bucket index 0..160, starting from the routers and seed
// nodes and then narrowing to the routing table's own closest nodes.
type Bootstrap struct {
	mid     *transaction.MIDGenerator
	self    id.NodeID
	routers map[string]*net.UDPAddr
	seeds   []*net.UDPAddr

	cursor      int
	pinged      map[transaction.ID]*net.UDPAddr
	anyResponse bool

	log logger.DebugLogger
}

// NewBootstrap constructs a Bootstrap for the given router and seed
// addresses. routers are never inserted into the routing table, per
// spec.md §4.5.
func NewBootstrap(mid *transaction.MIDGenerator, self id.NodeID, routers, seeds []*net.UDPAddr, log logger.DebugLogger) *Bootstrap {
	rset := make(map[string]*net.UDPAddr, len(routers))
	for _, r := range routers {
		rset[r.String()] = r
	}
	return &Bootstrap{
		mid:     mid,
		self:    self,
		routers: rset,
		seeds:   seeds,
		pinged:  make(map[transaction.ID]*net.UDPAddr),
		log:     log,
	}
}

// IsRouter reports whether addr is one of this bootstrap's router
// addresses (routers are never promoted into the routing table).
func (b *Bootstrap) IsRouter(addr *net.UDPAddr) bool {
	_, ok := b.routers[addr.String()]
	return ok
}

// ActionID returns the ActionID this bootstrap's transactions carry.
func (b *Bootstrap) ActionID() transaction.ActionID { return b.mid.ActionID() }

// Start begins phase 0. If there are no routers and no seeds, there
// is no work to do and the bootstrap is trivially Idle (spec.md §8
// scenario S5).
func (b *Bootstrap) Start(table *routingtable.RoutingTable, sender Sender, tm Scheduler) BootstrapStatus {
	if len(b.routers) == 0 && len(b.seeds) == 0 {
		return Idle
	}
	b.startPhase(0, table, sender, tm)
	return Bootstrapping
}

func (b *Bootstrap) startPhase(i int, table *routingtable.RoutingTable, sender Sender, tm Scheduler) {
	b.cursor = i
	b.anyResponse = false
	b.pinged = make(map[transaction.ID]*net.UDPAddr)

	target := b.self.FlipBit(i)

	var batch []*net.UDPAddr
	if i == 0 {
		for _, r := range b.routers {
			batch = append(batch, r)
		}
		batch = append(batch, b.seeds...)
	} else {
		for _, n := range table.ClosestNodes(target) {
			if b.IsRouter(n.Addr) {
				continue
			}
			batch = append(batch, n.Addr)
			if len(batch) >= routingtable.BucketSize {
				break
			}
		}
	}

	for _, addr := range batch {
		tid := b.mid.Generate()
		b.pinged[tid] = addr
		sendFindNode(sender, addr, string(tid.Bytes()), string(b.self[:]), string(target[:]), b.log)
	}

	// One shared timeout covers the whole phase: spec.md §4.5 states
	// a single BootstrapTimeout is scheduled after sending a phase's
	// batch, rather than one per probe, so stragglers are swept in
	// bulk instead of trickling in one at a time.
	marker := b.mid.Generate()
	tm.ScheduleIn(BootstrapTimeout, marker)
}

// RecvResponse processes a response to a find_node probe, removing it
// from the outstanding set and advancing the phase once every probe
// in the phase has resolved.
func (b *Bootstrap) RecvResponse(trans transaction.ID, table *routingtable.RoutingTable, sender Sender, tm Scheduler) BootstrapStatus {
	if _, ok := b.pinged[trans]; !ok {
		return Bootstrapping
	}
	b.anyResponse = true
	delete(b.pinged, trans)
	if len(b.pinged) > 0 {
		return Bootstrapping
	}
	return b.advance(table, sender, tm)
}

// RecvTimeout handles the phase's shared timeout marker firing: any
// probes still outstanding are treated as failures and the phase
// advances regardless of how many were still pending.
func (b *Bootstrap) RecvTimeout(table *routingtable.RoutingTable, sender Sender, tm Scheduler) BootstrapStatus {
	b.pinged = make(map[transaction.ID]*net.UDPAddr)
	return b.advance(table, sender, tm)
}

func (b *Bootstrap) advance(table *routingtable.RoutingTable, sender Sender, tm Scheduler) BootstrapStatus {
	if b.cursor == 0 && !b.anyResponse && NumGoodNodes(table) == 0 {
		return Failed
	}
	next := b.cursor + 1
	if next >= MaxBucketIndex {
		return Completed
	}
	b.startPhase(next, table, sender, tm)
	return Bootstrapping
}

// Reset restarts the bootstrap at phase 0, for rebootstrap attempts.
func (b *Bootstrap) Reset() {
	b.cursor = 0
	b.anyResponse = false
	b.pinged = make(map[transaction.ID]*net.UDPAddr)
}

// NumGoodNodes counts nodes in Good status across the whole table, per
// spec.md §4.5's rebootstrap threshold check.
func NumGoodNodes(table *routingtable.RoutingTable) int {
	n := 0
	for _, bucket := range table.Buckets() {
		for _, node := range bucket.Nodes() {
			if node.Status() == routingtable.Good {
				n++
			}
		}
	}
	return n
}
