// Package dht implements the Handler: the single-threaded event loop
// that owns the routing table, the announce storage, the token store
// and the timer, and drives the Bootstrap/Lookup/Refresh procedures
// over a UDP socket, per spec.md §2/§4.8/§5.
//
// Grounded on the teacher's dht.go — DHT.loop's select-loop shape,
// DHT.processPacket's response/query branching, and the
// replyPing/replyFindNode/replyGetPeers/replyAnnouncePeer reply
// builders — generalized from the teacher's own ad hoc routing table
// and remoteNode types to this module's routingtable/storage/token/
// timer/worker packages.
package dht

import (
	"net"
	"strings"
	"sync"
	"time"

	"mldht/arena"
	"mldht/id"
	"mldht/krpc"
	"mldht/logger"
	"mldht/routingtable"
	"mldht/storage"
	"mldht/timer"
	"mldht/token"
	"mldht/transaction"
	"mldht/worker"
)

// tablePingTimeout bounds the liveness ping the routing table issues
// to the least-recently-seen Questionable node of a full bucket before
// admitting a pending replacement (spec.md §3). The spec names no
// distinct constant for this probe, so it reuses the same 5-second
// scale as every other outbound probe in the system.
const tablePingTimeout = 5 * time.Second

// Handler is the DHT node's event loop. Construct with New, feed it
// commands with StartBootstrap/StartLookup, and read results off
// Events. Run blocks until Stop is called or the handler shuts itself
// down after exhausting rebootstrap attempts.
type Handler struct {
	config Config
	self   id.NodeID

	table  *routingtable.RoutingTable
	store  *storage.AnnounceStorage
	tokens *token.Store
	tm     *timer.Timer
	aid    *transaction.AIDGenerator

	conn *krpc.Conn
	log  logger.DebugLogger

	commands chan Command
	// Events is the single-consumer sink for BootstrapCompleted,
	// BootstrapFailed, PeerFound and LookupCompleted, per spec.md §6.
	Events chan Event
	stop   chan struct{}
	wg     sync.WaitGroup
	running bool

	bootstrap         *worker.Bootstrap
	bootstrapAttempts int
	bootstrapping     bool
	pendingLookups    []StartLookup

	refresh *worker.Refresh

	lookups map[transaction.ActionID]*worker.Lookup

	tablePings  *transaction.MIDGenerator
	tablePinged map[transaction.ID]routingtable.Handle

	seen *transaction.SeenSet
}

// maxSeenTransactions bounds how many completed transaction ids the
// handler remembers for duplicate-response detection, per spec.md §9.
const maxSeenTransactions = 2048

// New opens a UDP socket per config and returns a Handler ready to
// Run. If config is nil, DefaultConfig is used; if self is the zero
// id, a fresh random one is generated.
func New(config *Config, self id.NodeID, log logger.DebugLogger) (*Handler, error) {
	if config == nil {
		config = DefaultConfig
	}
	cfg := *config
	if log == nil {
		log = &logger.NullLogger{}
	}
	if self == id.Zero {
		self = id.Random()
	}

	udp, err := krpc.Listen(cfg.Address, cfg.Port, cfg.UDPProto, log)
	if err != nil {
		return nil, err
	}
	cfg.Port = udp.LocalAddr().(*net.UDPAddr).Port

	aid := transaction.NewAIDGenerator()
	h := &Handler{
		config:      cfg,
		self:        self,
		table:       routingtable.New(self),
		store:       storage.New(),
		tokens:      token.New(),
		tm:          timer.New(),
		aid:         aid,
		conn:        &krpc.Conn{UDP: udp, Log: log},
		log:         log,
		commands:    make(chan Command, 16),
		Events:      make(chan Event, 64),
		stop:        make(chan struct{}),
		lookups:     make(map[transaction.ActionID]*worker.Lookup),
		tablePinged: make(map[transaction.ID]routingtable.Handle),
		seen:        transaction.NewSeenSet(maxSeenTransactions),
	}
	h.tablePings = aid.Generate()
	h.refresh = worker.NewRefresh(aid.Generate(), self, cfg.RefreshPeriod, log)
	return h, nil
}

// Port returns the UDP port the handler's socket is bound to.
func (h *Handler) Port() int { return h.config.Port }

// ParseRouters resolves a comma-separated "host:port,host:port" list
// (the shape of Config.DHTRouters) into UDP addresses, skipping any
// entry that fails to resolve rather than failing the whole batch.
func ParseRouters(csv, proto string, log logger.DebugLogger) []*net.UDPAddr {
	var out []*net.UDPAddr
	for _, s := range strings.Split(csv, ",") {
		if s == "" {
			continue
		}
		addr, err := net.ResolveUDPAddr(proto, s)
		if err != nil {
			log.Errorf("dht: failed to resolve router %q: %v", s, err)
			continue
		}
		out = append(out, addr)
	}
	return out
}

// StartBootstrap enqueues a StartBootstrap command.
func (h *Handler) StartBootstrap(routers, nodes []*net.UDPAddr) {
	h.commands <- StartBootstrap{Routers: routers, Nodes: nodes}
}

// StartLookup enqueues a StartLookup command.
func (h *Handler) StartLookup(ih id.InfoHash, shouldAnnounce bool) {
	h.commands <- StartLookup{InfoHash: ih, ShouldAnnounce: shouldAnnounce}
}

// Stop signals the event loop to exit after its current iteration.
func (h *Handler) Stop() {
	close(h.stop)
}

// Run binds the read loop and drives the handler's event loop until
// Stop is called or a terminal BootstrapFailed occurs. Mirrors the
// teacher's DHT.Run/loop split, minus the deprecated alias.
func (h *Handler) Run() error {
	defer h.conn.UDP.Close()

	packets := make(chan krpc.Packet)
	pool := arena.NewArena(krpc.MaxUDPPacketSize, 3)
	readStop := make(chan struct{})

	h.wg.Add(1)
	go func() {
		defer h.wg.Done()
		krpc.ReadLoop(h.conn.UDP, packets, pool, readStop, h.log)
	}()

	h.log.Infof("dht: starting node %s on port %d", h.self, h.config.Port)
	h.running = true

	for h.running {
		select {
		case <-h.stop:
			h.running = false
		case cmd := <-h.commands:
			h.handleCommand(cmd)
		case p := <-packets:
			h.processPacket(p)
			pool.Push(p.B)
		case <-h.tm.C():
			if tok, ok := h.tm.Pop(); ok {
				h.handleTimeout(tok)
			}
		}
	}

	h.log.Infof("dht: exiting")
	close(readStop)
	// Closing the socket unblocks ReadLoop's pending read so it can
	// observe readStop and return.
	h.conn.UDP.Close()
	h.wg.Wait()
	return nil
}

func (h *Handler) emit(e Event) {
	select {
	case h.Events <- e:
	default:
		h.log.Errorf("dht: events channel full, dropping %v", e.Kind)
	}
}

// --- commands ---

func (h *Handler) handleCommand(cmd Command) {
	switch c := cmd.(type) {
	case StartBootstrap:
		h.doStartBootstrap(c.Routers, c.Nodes)
	case StartLookup:
		if h.bootstrapping {
			h.pendingLookups = append(h.pendingLookups, c)
			return
		}
		h.doStartLookup(c.InfoHash, c.ShouldAnnounce)
	}
}

func (h *Handler) doStartBootstrap(routers, nodes []*net.UDPAddr) {
	h.bootstrap = worker.NewBootstrap(h.aid.Generate(), h.self, routers, nodes, h.log)
	h.bootstrapAttempts = 1
	h.bootstrapping = true
	h.handleBootstrapStatus(h.bootstrap.Start(h.table, h.conn, h.tm))
}

func (h *Handler) doStartLookup(ih id.InfoHash, shouldAnnounce bool) {
	mid := h.aid.Generate()
	l := worker.NewLookup(mid, h.self, ih, shouldAnnounce, h.config.AnnouncePort, h.config.AnnouncePort == 0, h.log)
	h.lookups[mid.ActionID()] = l
	l.Start(h.table, h.conn, h.tm)
}

func (h *Handler) drainPendingLookups() {
	pending := h.pendingLookups
	h.pendingLookups = nil
	for _, c := range pending {
		h.doStartLookup(c.InfoHash, c.ShouldAnnounce)
	}
}

// --- bootstrap / rebootstrap policy, per spec.md §4.5 ---

func (h *Handler) handleBootstrapStatus(status worker.BootstrapStatus) {
	switch status {
	case worker.Bootstrapping:
		return
	case worker.Idle:
		h.finishBootstrap(true)
		return
	}

	healthy := status == worker.Completed && worker.NumGoodNodes(h.table) > h.config.RebootstrapGoodNodeThreshold
	if healthy {
		h.finishBootstrap(true)
		return
	}
	if h.bootstrapAttempts < h.config.MaxRebootstrapAttempts {
		h.bootstrapAttempts++
		h.bootstrap.Reset()
		h.handleBootstrapStatus(h.bootstrap.Start(h.table, h.conn, h.tm))
		return
	}
	h.finishBootstrap(worker.NumGoodNodes(h.table) > 0)
}

// finishBootstrap retires the bootstrap procedure and, on success, starts
// Refresh running for the rest of the handler's lifetime (spec.md §4.7).
// Refresh never ticks before the first BootstrapCompleted.
func (h *Handler) finishBootstrap(ok bool) {
	h.bootstrapping = false
	if ok {
		h.emit(Event{Kind: BootstrapCompleted})
		h.refresh.Continue(h.table, h.conn, h.tm)
		h.drainPendingLookups()
		return
	}
	h.emit(Event{Kind: BootstrapFailed})
	h.running = false
}

func (h *Handler) handleLookupStatus(l *worker.Lookup, status worker.LookupStatus) {
	if status == worker.LookupCompleted {
		delete(h.lookups, l.ActionID())
		h.emit(Event{Kind: LookupCompleted, InfoHash: l.InfoHash()})
	}
}

// --- timers ---

func (h *Handler) handleTimeout(tok interface{}) {
	tid, ok := tok.(transaction.ID)
	if !ok {
		h.log.Errorf("dht: timer fired with unrecognized token %v", tok)
		return
	}
	action := tid.Action()

	switch {
	case h.bootstrapping && h.bootstrap != nil && action == h.bootstrap.ActionID():
		h.handleBootstrapStatus(h.bootstrap.RecvTimeout(h.table, h.conn, h.tm))
	case action == h.refresh.ActionID():
		h.refresh.Continue(h.table, h.conn, h.tm)
	case action == h.tablePings.ActionID():
		h.recvTablePingTimeout(tid)
	default:
		if l, ok := h.lookups[action]; ok {
			h.handleLookupStatus(l, l.RecvTimeout(tid, h.table, h.conn))
		}
		// Anything else is a stale firing for a completed or unknown
		// procedure, per spec.md §4.4/§9: dropped silently.
	}
}

// --- routing table liveness pings (spec.md §3's pending-replacement probe) ---

func (h *Handler) pingForLiveness(n *routingtable.Node) {
	tid := h.tablePings.Generate()
	h.tablePinged[tid] = n.Handle
	n.LocalRequest()
	q := krpc.OutQuery{
		T: string(tid.Bytes()),
		Y: krpc.Query,
		Q: krpc.Ping,
		A: map[string]interface{}{"id": string(h.self[:])},
	}
	if err := h.conn.Send(n.Addr, q); err != nil {
		h.log.Errorf("dht: failed to send liveness ping to %v: %v", n.Addr, err)
	}
	h.tm.ScheduleIn(tablePingTimeout, tid)
}

func (h *Handler) recvTablePingReply(tid transaction.ID) {
	handle, ok := h.tablePinged[tid]
	if !ok {
		return
	}
	delete(h.tablePinged, tid)
	if n := h.table.FindNodeMut(handle); n != nil {
		n.LocalResponse()
	}
	h.table.ResolvePendingReply(handle)
}

func (h *Handler) recvTablePingTimeout(tid transaction.ID) {
	handle, ok := h.tablePinged[tid]
	if !ok {
		return
	}
	delete(h.tablePinged, tid)
	if n := h.table.FindNodeMut(handle); n != nil {
		n.LocalTimeout()
	}
	h.table.ResolvePendingTimeout(handle)
}

// --- routing table admission ---

// isRouter reports whether addr belongs to the active bootstrap's
// router set; routers are never inserted into the routing table.
func (h *Handler) isRouter(addr *net.UDPAddr) bool {
	return h.bootstrap != nil && h.bootstrap.IsRouter(addr)
}

// onLocalResponse applies local_response health tracking for a node that just answered one of our outbound
// requests, admitting it as a new contact on first contact.
func (h *Handler) onLocalResponse(handle routingtable.Handle) {
	if handle.Addr == nil || h.isRouter(handle.Addr) {
		return
	}
	if n := h.table.FindNodeMut(handle); n != nil {
		n.LocalResponse()
		h.table.ResolvePendingReply(handle)
		return
	}
	n := routingtable.NewNode(handle)
	n.LocalResponse()
	if toPing := h.table.AddNode(n); toPing != nil {
		h.pingForLiveness(toPing)
	}
}

// onRemoteRequest records unsolicited traffic from handle, admitting
// it as a new contact on first contact.
func (h *Handler) onRemoteRequest(handle routingtable.Handle) {
	if handle.Addr == nil || h.isRouter(handle.Addr) {
		return
	}
	if n := h.table.FindNodeMut(handle); n != nil {
		n.RemoteRequest()
		return
	}
	n := routingtable.NewNode(handle)
	if toPing := h.table.AddNode(n); toPing != nil {
		h.pingForLiveness(toPing)
	}
}

// mergeNodesFromResponse admits every IPv4 compact node carried by a
// find_node/get_peers response into the routing table, so that later
// bootstrap phases and lookups see a richer closest_nodes view.
func (h *Handler) mergeNodesFromResponse(msg krpc.InMessage) {
	nodes, err := krpc.DecodeNodes4(msg.R.Nodes)
	if err != nil {
		return
	}
	for _, cn := range nodes {
		if cn.ID == h.self || h.isRouter(cn.Addr) {
			continue
		}
		handle := routingtable.Handle{ID: cn.ID, Addr: cn.Addr}
		if h.table.FindNodeMut(handle) != nil {
			continue
		}
		n := routingtable.NewNode(handle)
		if toPing := h.table.AddNode(n); toPing != nil {
			h.pingForLiveness(toPing)
		}
	}
}

func (h *Handler) closestCompactNodes(target id.ID) []krpc.CompactNode {
	nodes := h.table.ClosestNodes(target)
	out := make([]krpc.CompactNode, 0, routingtable.BucketSize)
	for _, n := range nodes {
		out = append(out, krpc.CompactNode{ID: n.ID, Addr: n.Addr})
		if len(out) == routingtable.BucketSize {
			break
		}
	}
	return out
}
