package krpc

import (
	"fmt"
	"net"

	"mldht/id"
	"mldht/logger"
)

// Contact-entry byte lengths, per spec.md §6. Kept from the teacher's
// V4nodeContactLen/V6nodeContactLen/NodeIdLen (remoteNode/krpc.go).
const (
	IDLen        = id.Len
	V4ContactLen = IDLen + 4 + 2
	V6ContactLen = IDLen + 16 + 2
	PeerLen      = 4 + 2
)

// CompactNode pairs a NodeID with the address used to reach it.
type CompactNode struct {
	ID   id.NodeID
	Addr *net.UDPAddr
}

// EncodeNodes4 packs a list of IPv4 contacts into a compact "nodes"
// string.
func EncodeNodes4(nodes []CompactNode) string {
	buf := make([]byte, 0, len(nodes)*V4ContactLen)
	for _, n := range nodes {
		ip4 := n.Addr.IP.To4()
		if ip4 == nil {
			continue
		}
		buf = append(buf, n.ID[:]...)
		buf = append(buf, ip4...)
		buf = append(buf, byte(n.Addr.Port>>8), byte(n.Addr.Port))
	}
	return string(buf)
}

// EncodeNodes6 packs a list of IPv6 contacts into a compact "nodes6"
// string.
func EncodeNodes6(nodes []CompactNode) string {
	buf := make([]byte, 0, len(nodes)*V6ContactLen)
	for _, n := range nodes {
		ip6 := n.Addr.IP.To16()
		if ip6 == nil || n.Addr.IP.To4() != nil {
			continue
		}
		buf = append(buf, n.ID[:]...)
		buf = append(buf, ip6...)
		buf = append(buf, byte(n.Addr.Port>>8), byte(n.Addr.Port))
	}
	return string(buf)
}

// DecodeNodes4 unpacks a compact "nodes" string into contacts.
func DecodeNodes4(raw string) ([]CompactNode, error) {
	return decodeNodes(raw, V4ContactLen, 4)
}

// DecodeNodes6 unpacks a compact "nodes6" string into contacts.
func DecodeNodes6(raw string) ([]CompactNode, error) {
	return decodeNodes(raw, V6ContactLen, 16)
}

func decodeNodes(raw string, contactLen, ipLen int) ([]CompactNode, error) {
	if len(raw)%contactLen != 0 {
		return nil, fmt.Errorf("krpc: nodes string length %d not a multiple of %d", len(raw), contactLen)
	}
	out := make([]CompactNode, 0, len(raw)/contactLen)
	b := []byte(raw)
	for i := 0; i+contactLen <= len(b); i += contactLen {
		var nid id.NodeID
		copy(nid[:], b[i:i+IDLen])
		ip := make(net.IP, ipLen)
		copy(ip, b[i+IDLen:i+IDLen+ipLen])
		port := int(b[i+IDLen+ipLen])<<8 | int(b[i+IDLen+ipLen+1])
		out = append(out, CompactNode{ID: nid, Addr: &net.UDPAddr{IP: ip, Port: port}})
	}
	return out, nil
}

// EncodePeers packs a list of IPv4 peer addresses into compact peer
// strings (one per value list entry, per spec.md §6). storage only ever
// holds IPv4 addresses (spec.md §9), so any non-IPv4 entry reaching
// here is an invariant violation and is logged, not silently dropped.
func EncodePeers(addrs []*net.UDPAddr, log logger.DebugLogger) []string {
	out := make([]string, 0, len(addrs))
	for _, a := range addrs {
		ip4 := a.IP.To4()
		if ip4 == nil {
			log.Errorf("krpc: dropping non-IPv4 stored peer %v from get_peers reply (invariant violation)", a)
			continue
		}
		b := make([]byte, 0, PeerLen)
		b = append(b, ip4...)
		b = append(b, byte(a.Port>>8), byte(a.Port))
		out = append(out, string(b))
	}
	return out
}

// DecodePeer unpacks one compact peer entry.
func DecodePeer(raw string) (*net.UDPAddr, error) {
	if len(raw) != PeerLen {
		return nil, fmt.Errorf("krpc: peer entry length %d, want %d", len(raw), PeerLen)
	}
	b := []byte(raw)
	ip := net.IPv4(b[0], b[1], b[2], b[3])
	port := int(b[4])<<8 | int(b[5])
	return &net.UDPAddr{IP: ip, Port: port}, nil
}
