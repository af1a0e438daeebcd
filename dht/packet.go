package dht

import (
	"net"

	"mldht/id"
	"mldht/krpc"
	"mldht/routingtable"
	"mldht/storage"
	"mldht/token"
	"mldht/transaction"
)

// processPacket decodes one datagram and routes it to the response or
// query path. Grounded on the teacher's DHT.processPacket.
func (h *Handler) processPacket(p krpc.Packet) {
	msg, err := krpc.Decode(p, h.log)
	if err != nil {
		h.log.Debugf("dht: decode error from %v: %v", p.Raddr, err)
		return
	}
	switch msg.Y {
	case krpc.Response:
		h.processResponse(p.Raddr, msg)
	case krpc.Query:
		h.processQuery(p.Raddr, msg)
	default:
		h.log.Debugf("dht: unhandled message kind %q from %v", msg.Y, p.Raddr)
	}
}

// processResponse validates the transaction tag and routes the reply
// to whichever procedure owns its ActionID, per spec.md §4.8/§9. A
// tag that fails to decode or names an ActionID with no registered
// procedure is discarded without touching the routing table.
func (h *Handler) processResponse(addr net.UDPAddr, msg krpc.InMessage) {
	tid, err := transaction.Decode([]byte(msg.T))
	if err != nil {
		h.log.Debugf("dht: response with undecodable transaction tag from %v: %v", addr, err)
		return
	}
	if h.seen.MarkSeen(tid) {
		h.log.Debugf("dht: dropping duplicate response for transaction %v from %v", tid, addr)
		return
	}
	action := tid.Action()

	isBootstrap := h.bootstrap != nil && action == h.bootstrap.ActionID()
	isRefresh := action == h.refresh.ActionID()
	isTablePing := action == h.tablePings.ActionID()
	l, isLookup := h.lookups[action]

	if !isBootstrap && !isRefresh && !isTablePing && !isLookup {
		h.log.Errorf("dht: response references unknown or completed action %d from %v", action, addr)
		return
	}
	if isTablePing {
		h.recvTablePingReply(tid)
		return
	}

	// A response's kind is inferred from its shape, since KRPC replies
	// carry no "q" field of their own: only get_peers replies carry a
	// token. A procedure only ever expects the kind of response its own
	// queries provoke; anything else is a routing/bookkeeping
	// inconsistency, per spec.md §4.8/§9, and must not touch the
	// routing table.
	kind := responseKind(msg.R)
	switch {
	case isLookup:
		if kind != responseKindGetPeers {
			h.log.Errorf("dht: response kind mismatch for lookup action %d from %v: expected get_peers, got %s", action, addr, kind)
			return
		}
	case isBootstrap, isRefresh:
		if kind != responseKindOther {
			h.log.Errorf("dht: response kind mismatch for action %d from %v: expected find_node/ping, got %s", action, addr, kind)
			return
		}
	}

	var senderID id.NodeID
	if nid, err := id.FromBytes([]byte(msg.R.ID)); err == nil {
		senderID = nid
	}
	h.onLocalResponse(routingtable.Handle{ID: senderID, Addr: &addr})
	h.mergeNodesFromResponse(msg)

	switch {
	case isBootstrap:
		h.handleBootstrapStatus(h.bootstrap.RecvResponse(tid, h.table, h.conn, h.tm))
	case isRefresh:
		// Health tracking and node discovery already applied above;
		// Refresh itself only cares about driving its own ticks.
	case isLookup:
		nodes, _ := krpc.DecodeNodes4(msg.R.Nodes)
		var values []*net.UDPAddr
		for _, v := range msg.R.Values {
			if a, derr := krpc.DecodePeer(v); derr == nil {
				values = append(values, a)
			}
		}
		status, fresh := l.RecvResponse(tid, nodes, values, msg.R.Token, h.table, h.conn, h.tm)
		for _, a := range fresh {
			h.emit(Event{Kind: PeerFound, InfoHash: l.InfoHash(), Addr: a})
		}
		h.handleLookupStatus(l, status)
	}
}

// Response kinds, inferred from a ReplyResult's shape rather than from
// any wire field (KRPC replies carry no "q"). Grounded on
// original_source/src/worker/handler.rs's handle_incoming match over
// (TableAction, Response).
const (
	responseKindOther    = "other/find_node"
	responseKindGetPeers = "get_peers"
)

// responseKind classifies a reply by the one field only a get_peers
// response ever sets: every replyGetPeers answer carries a token,
// whether or not it found stored peers, while ping/find_node replies
// never do.
func responseKind(r krpc.ReplyResult) string {
	if r.Token != "" {
		return responseKindGetPeers
	}
	return responseKindOther
}

// processQuery answers a request, per spec.md §4.8/§6. In read_only
// mode, requests are discarded silently rather than answered.
func (h *Handler) processQuery(addr net.UDPAddr, msg krpc.InMessage) {
	if h.config.ReadOnly {
		return
	}

	var senderID id.NodeID
	if nid, err := id.FromBytes([]byte(msg.A.ID)); err == nil {
		senderID = nid
	}
	h.onRemoteRequest(routingtable.Handle{ID: senderID, Addr: &addr})

	switch msg.Q {
	case krpc.Ping:
		h.replyPing(addr, msg)
	case krpc.FindNode:
		h.replyFindNode(addr, msg)
	case krpc.GetPeers:
		h.replyGetPeers(addr, msg)
	case krpc.AnnouncePeer:
		h.replyAnnouncePeer(addr, msg)
	default:
		h.log.Debugf("dht: unrecognized query %q from %v", msg.Q, addr)
		h.sendError(addr, msg.T, krpc.ErrMethodUnknown, "method unknown")
	}
}

func (h *Handler) replyPing(addr net.UDPAddr, msg krpc.InMessage) {
	reply := krpc.OutReply{T: msg.T, Y: krpc.Response, R: map[string]interface{}{"id": string(h.self[:])}}
	if err := h.conn.Send(&addr, reply); err != nil {
		h.log.Errorf("dht: failed to reply ping to %v: %v", addr, err)
	}
}

// replyFindNode answers with up to BucketSize closest nodes matching
// the requested want family, inferring the family from the local
// socket when want is absent, per spec.md §4.8.
func (h *Handler) replyFindNode(addr net.UDPAddr, msg krpc.InMessage) {
	target, err := id.FromBytes([]byte(msg.A.Target))
	if err != nil {
		h.sendError(addr, msg.T, krpc.ErrProtocol, "missing or malformed target")
		return
	}

	want := krpc.ParseWant(msg.A.Want)
	if want == krpc.WantNone {
		if la, ok := h.conn.LocalAddr().(*net.UDPAddr); ok && la.IP.To4() == nil {
			want = krpc.WantV6
		} else {
			want = krpc.WantV4
		}
	}

	closest := h.closestCompactNodes(target)
	r := map[string]interface{}{"id": string(h.self[:])}
	if want == krpc.WantV4 || want == krpc.WantBoth {
		r["nodes"] = krpc.EncodeNodes4(closest)
	}
	if want == krpc.WantV6 || want == krpc.WantBoth {
		r["nodes6"] = krpc.EncodeNodes6(closest)
	}

	reply := krpc.OutReply{T: msg.T, Y: krpc.Response, R: r}
	if err := h.conn.Send(&addr, reply); err != nil {
		h.log.Errorf("dht: failed to reply find_node to %v: %v", addr, err)
	}
}

// replyGetPeers answers with stored peers if any are known, else the
// closest nodes, plus a fresh announce token, per spec.md §4.8.
func (h *Handler) replyGetPeers(addr net.UDPAddr, msg krpc.InMessage) {
	ih, err := id.FromBytes([]byte(msg.A.InfoHash))
	if err != nil {
		h.sendError(addr, msg.T, krpc.ErrProtocol, "missing or malformed info_hash")
		return
	}

	tok := h.tokens.Checkout(addr.IP)
	r := map[string]interface{}{"id": string(h.self[:]), "token": string(tok[:])}
	if peers := h.store.FindItems(storage.InfoHash(ih)); len(peers) > 0 {
		r["values"] = krpc.EncodePeers(peers, h.log)
	} else {
		r["nodes"] = krpc.EncodeNodes4(h.closestCompactNodes(ih))
	}

	reply := krpc.OutReply{T: msg.T, Y: krpc.Response, R: r}
	if err := h.conn.Send(&addr, reply); err != nil {
		h.log.Errorf("dht: failed to reply get_peers to %v: %v", addr, err)
	}
}

// replyAnnouncePeer validates the token, stores the announcement and
// replies, or answers with the appropriate protocol/server error, per
// spec.md §4.8.
func (h *Handler) replyAnnouncePeer(addr net.UDPAddr, msg krpc.InMessage) {
	var tok token.Token
	if len(msg.A.Token) == len(tok) {
		copy(tok[:], msg.A.Token)
	}
	if !h.tokens.Checkin(addr.IP, tok) {
		h.sendError(addr, msg.T, krpc.ErrProtocol, "received an invalid token")
		return
	}

	ih, err := id.FromBytes([]byte(msg.A.InfoHash))
	if err != nil {
		h.sendError(addr, msg.T, krpc.ErrProtocol, "missing or malformed info_hash")
		return
	}

	port := msg.A.Port
	if msg.A.ImpliedPort != 0 {
		port = addr.Port
	}
	peerAddr := &net.UDPAddr{IP: addr.IP, Port: port}
	// storage only ever holds IPv4 addresses (spec.md §9): an IPv6
	// announce is an invariant violation, logged and otherwise a no-op
	// for storage purposes, not a protocol error worth an error reply.
	if peerAddr.IP.To4() == nil {
		h.log.Errorf("dht: dropping IPv6 announce_peer from %v (invariant violation, storage is IPv4-only)", addr)
	} else if !h.store.AddItem(storage.InfoHash(ih), peerAddr) {
		h.sendError(addr, msg.T, krpc.ErrServer, "announce storage is full")
		return
	}

	reply := krpc.OutReply{T: msg.T, Y: krpc.Response, R: map[string]interface{}{"id": string(h.self[:])}}
	if err := h.conn.Send(&addr, reply); err != nil {
		h.log.Errorf("dht: failed to reply announce_peer to %v: %v", addr, err)
	}
}

func (h *Handler) sendError(addr net.UDPAddr, t string, code int, message string) {
	if err := h.conn.Send(&addr, krpc.NewError(t, code, message)); err != nil {
		h.log.Errorf("dht: failed to send error to %v: %v", addr, err)
	}
}
