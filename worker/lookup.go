package worker

import (
	"net"
	"sort"
	"time"

	"github.com/golang/groupcache/lru"

	"mldht/id"
	"mldht/krpc"
	"mldht/logger"
	"mldht/routingtable"
	"mldht/transaction"
)

// LookupTimeout is the per-probe deadline, and LookupEndgame is the
// settle window after all K closest nodes have answered or failed,
// per spec.md §4.6.
const (
	LookupTimeout = 5 * time.Second
	LookupEndgame = 5 * time.Second
	lookupAlpha   = 3
	lookupK       = routingtable.BucketSize
)

// maxValuesSeen bounds a lookup's deduplicated-peer-address set, so a
// pathologically chatty or malicious swarm can't grow it without
// limit over one lookup's lifetime.
const maxValuesSeen = 4096

// LookupStatus is returned by Lookup's event methods.
type LookupStatus int

const (
	Searching LookupStatus = iota
	LookupCompleted
)

// nodeProgress is the per-shortlist-entry status of spec.md §4.6.
type nodeProgress int

const (
	lpIdle nodeProgress = iota
	lpRequested
	lpResponded
	lpFailed
)

type shortlistEntry struct {
	addr   *net.UDPAddr
	status nodeProgress
	token  string
}

// Lookup drives iterative get_peers against the target info-hash, per
// spec.md §4.6. Grounded on
// _examples/original_source/src/worker/handler.rs's lookup handling
// (handle_start_lookup / handle_check_lookup_timeout /
// handle_check_lookup_endgame), translated into explicit Go methods.
type Lookup struct {
	mid            *transaction.MIDGenerator
	self           id.NodeID
	target         id.InfoHash
	shouldAnnounce bool
	announcePort   int
	impliedPort    bool

	shortlist   map[id.NodeID]*shortlistEntry
	valuesSeen  *lru.Cache
	pinged      map[transaction.ID]id.NodeID
	activePings int
	endgame     bool
	endgameTok  transaction.ID

	log logger.DebugLogger
}

// NewLookup constructs a Lookup for infoHash. announcePort <= 0 means
// "no announce_port configured"; see spec.md §6.
func NewLookup(mid *transaction.MIDGenerator, self id.NodeID, target id.InfoHash, shouldAnnounce bool, announcePort int, impliedPort bool, log logger.DebugLogger) *Lookup {
	return &Lookup{
		mid:            mid,
		self:           self,
		target:         target,
		shouldAnnounce: shouldAnnounce,
		announcePort:   announcePort,
		impliedPort:    impliedPort,
		shortlist:      make(map[id.NodeID]*shortlistEntry),
		valuesSeen:     lru.New(maxValuesSeen),
		pinged:         make(map[transaction.ID]id.NodeID),
		log:            log,
	}
}

// ActionID returns the ActionID this lookup's transactions carry.
func (l *Lookup) ActionID() transaction.ActionID { return l.mid.ActionID() }

// InfoHash returns the lookup's target.
func (l *Lookup) InfoHash() id.InfoHash { return l.target }

// Start seeds the shortlist from the routing table's current view and
// begins sending probes.
func (l *Lookup) Start(table *routingtable.RoutingTable, sender Sender, tm Scheduler) {
	for i, n := range table.ClosestNodes(l.target) {
		if i >= lookupK {
			break
		}
		l.shortlist[n.ID] = &shortlistEntry{addr: n.Addr, status: lpIdle}
	}
	l.expand(sender, tm)
}

// topK returns up to lookupK shortlist node ids ordered by ascending
// distance to the target.
func (l *Lookup) topK() []id.NodeID {
	ids := make([]id.NodeID, 0, len(l.shortlist))
	for nid := range l.shortlist {
		ids = append(ids, nid)
	}
	sort.Slice(ids, func(i, j int) bool { return id.CloserTo(l.target, ids[i], ids[j]) })
	if len(ids) > lookupK {
		ids = ids[:lookupK]
	}
	return ids
}

func (l *Lookup) expand(sender Sender, tm Scheduler) {
	for _, nid := range l.topK() {
		if l.activePings >= lookupAlpha {
			return
		}
		e := l.shortlist[nid]
		if e.status != lpIdle {
			continue
		}
		tid := l.mid.Generate()
		l.pinged[tid] = nid
		e.status = lpRequested
		l.activePings++

		ih := l.target
		q := krpc.OutQuery{
			T: string(tid.Bytes()),
			Y: krpc.Query,
			Q: krpc.GetPeers,
			A: map[string]interface{}{"id": string(l.self[:]), "info_hash": string(ih[:])},
		}
		if err := sender.Send(e.addr, q); err != nil {
			l.log.Errorf("worker: failed to send get_peers to %v: %v", e.addr, err)
		}
		tm.ScheduleIn(LookupTimeout, tid)
	}
}

// allSettled reports whether every one of the K closest known nodes
// is Responded or Failed, per spec.md §4.6's termination condition.
func (l *Lookup) allSettled() bool {
	for _, nid := range l.topK() {
		e := l.shortlist[nid]
		if e.status == lpIdle || e.status == lpRequested {
			return false
		}
	}
	return true
}

func (l *Lookup) maybeEnterEndgame(tm Scheduler) {
	if l.endgame || l.activePings > 0 || !l.allSettled() {
		return
	}
	l.endgame = true
	l.endgameTok = l.mid.Generate()
	tm.ScheduleIn(LookupEndgame, l.endgameTok)
}

// RecvResponse processes a get_peers reply: merges returned nodes into
// the shortlist, reports newly-seen peer addresses, and continues
// expanding or enters endgame. The returned LookupStatus is always
// Searching; Completed is only ever returned by Finalize.
func (l *Lookup) RecvResponse(trans transaction.ID, nodes []krpc.CompactNode, values []*net.UDPAddr, token string, table *routingtable.RoutingTable, sender Sender, tm Scheduler) (LookupStatus, []*net.UDPAddr) {
	nid, ok := l.pinged[trans]
	if !ok {
		return Searching, nil
	}
	delete(l.pinged, trans)
	l.activePings--

	e := l.shortlist[nid]
	if e != nil {
		e.status = lpResponded
		if token != "" {
			e.token = token
		}
	}

	for _, n := range nodes {
		if _, exists := l.shortlist[n.ID]; exists || n.ID == l.self {
			continue
		}
		l.shortlist[n.ID] = &shortlistEntry{addr: n.Addr, status: lpIdle}
	}

	var fresh []*net.UDPAddr
	for _, a := range values {
		key := a.String()
		if _, ok := l.valuesSeen.Get(key); ok {
			continue
		}
		l.valuesSeen.Add(key, struct{}{})
		fresh = append(fresh, a)
	}

	l.expand(sender, tm)
	l.maybeEnterEndgame(tm)
	return Searching, fresh
}

// RecvTimeout handles a probe's or the endgame window's deadline
// firing. tid matching the stored endgame token finalizes the lookup;
// tid matching an outstanding probe counts as a Failed node and
// continues the lookup; anything else is a stale firing, ignored.
func (l *Lookup) RecvTimeout(tid transaction.ID, table *routingtable.RoutingTable, sender Sender) LookupStatus {
	if l.endgame && tid == l.endgameTok {
		return l.Finalize(sender)
	}
	nid, ok := l.pinged[tid]
	if !ok {
		return Searching
	}
	delete(l.pinged, tid)
	l.activePings--
	if e := l.shortlist[nid]; e != nil {
		e.status = lpFailed
	}
	return Searching
}

// Finalize sends announce_peer to every Responded node we hold a
// token for, if should_announce is set, and reports the lookup
// complete.
func (l *Lookup) Finalize(sender Sender) LookupStatus {
	if l.shouldAnnounce {
		for _, e := range l.shortlist {
			if e.status != lpResponded || e.token == "" {
				continue
			}
			args := map[string]interface{}{
				"id":        string(l.self[:]),
				"info_hash": string(l.target[:]),
				"token":     e.token,
			}
			if l.announcePort > 0 {
				args["port"] = l.announcePort
			} else if l.impliedPort {
				args["implied_port"] = 1
			}
			q := krpc.OutQuery{
				T: string(l.mid.Generate().Bytes()),
				Y: krpc.Query,
				Q: krpc.AnnouncePeer,
				A: args,
			}
			if err := sender.Send(e.addr, q); err != nil {
				l.log.Errorf("worker: failed to send announce_peer to %v: %v", e.addr, err)
			}
		}
	}
	return LookupCompleted
}
