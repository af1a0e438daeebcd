// Package worker implements the three long-running procedures of
// spec.md §4.5–§4.7: Bootstrap, Lookup and Refresh. Each is a state
// struct whose methods take the routing table, a Sender and a Timer
// as explicit parameters rather than capturing them, per spec.md §9 —
// this mirrors _examples/original_source/src/worker/handler.rs and
// refresh.rs, which pass &mut RoutingTable/&Socket/&mut Timer into
// every procedure method instead of the procedure owning them.
package worker

import (
	"net"

	"mldht/krpc"
	"mldht/logger"
)

// Sender is the minimal outbound capability a procedure needs: send
// one KRPC message to one address. Implemented by krpc.Conn.
type Sender interface {
	Send(addr *net.UDPAddr, msg interface{}) error
	LocalAddr() net.Addr
}

// buildFindNode constructs a find_node query for target, to be sent
// under transaction id t and carrying self as the sender's own id.
func buildFindNode(t string, self string, target string) krpc.OutQuery {
	return krpc.OutQuery{
		T: t,
		Y: krpc.Query,
		Q: krpc.FindNode,
		A: map[string]interface{}{"id": self, "target": target},
	}
}

func sendFindNode(s Sender, addr *net.UDPAddr, t string, self string, target string, log logger.DebugLogger) {
	if err := s.Send(addr, buildFindNode(t, self, target)); err != nil {
		log.Errorf("worker: failed to send find_node to %v: %v", addr, err)
	}
}
