// Package krpc implements the wire messages of spec.md §6: UDP
// datagrams carrying bencoded Kademlia messages per BEP-5, with
// BEP-32 dual-stack fields.
//
// Grounded on the teacher's remoteNode/krpc.go (QueryMessage,
// ReplyMessage, PacketType, ParseNodesString, the contact-length
// constants, SendMsg/ReadResponse) and on
// _examples/other_examples/27a65cfe_...anacrolix-dht-v2-server.go.go's
// want-inference logic (shouldReturnNodes/shouldReturnNodes6). Uses
// github.com/jackpal/bencode-go, same as the teacher; outgoing
// messages are built as map[string]interface{} payloads (as the
// teacher does) so that absent optional fields are simply omitted
// from the map rather than encoded as bencode zero values.
package krpc

// Message kinds (the "y" field).
const (
	Query    = "q"
	Response = "r"
	Error    = "e"
)

// Query names (the "q" field).
const (
	Ping         = "ping"
	FindNode     = "find_node"
	GetPeers     = "get_peers"
	AnnouncePeer = "announce_peer"
)

// Error codes, per spec.md §6/§7.
const (
	ErrGeneric        = 201
	ErrServer         = 202
	ErrProtocol       = 203
	ErrMethodUnknown  = 204
)

// Want values for find_node/get_peers's "want" field.
type Want int

const (
	WantNone Want = iota
	WantV4
	WantV6
	WantBoth
)

// RequestArgs is the union of every field any request kind carries.
// Decoding into one struct, rather than one struct per request kind,
// matches the teacher's own AnswerType (remoteNode/krpc.go), which
// merges find_node/get_peers/announce_peer fields the same way.
type RequestArgs struct {
	ID          string   "id"
	Target      string   "target"
	InfoHash    string   "info_hash"
	Token       string   "token"
	Port        int      "port"
	ImpliedPort int      "implied_port"
	Want        []string "want"
}

// ReplyResult is the union of every field any reply kind carries.
type ReplyResult struct {
	ID     string   "id"
	Nodes  string   "nodes"
	Nodes6 string   "nodes6"
	Token  string   "token"
	Values []string "values"
}

// InMessage is what an incoming datagram decodes into.
type InMessage struct {
	T string      "t"
	Y string      "y"
	Q string      "q"
	A RequestArgs "a"
	R ReplyResult "r"
	E []interface{} "e"
}

// OutQuery is an outgoing request.
type OutQuery struct {
	T string                 "t"
	Y string                 "y"
	Q string                 "q"
	A map[string]interface{} "a"
}

// OutReply is an outgoing successful response.
type OutReply struct {
	T string                 "t"
	Y string                 "y"
	R map[string]interface{} "r"
}

// OutError is an outgoing error response.
type OutError struct {
	T string        "t"
	Y string        "y"
	E []interface{} "e"
}

// NewError builds the error-response shape spec.md §6/§7 requires.
func NewError(transactionID string, code int, message string) OutError {
	return OutError{T: transactionID, Y: Error, E: []interface{}{code, message}}
}

// ParseWant decodes the "want" field's string list into a Want value.
// Absent or unrecognized entries are ignored; an empty list yields
// WantNone (the caller should then infer from the local socket's
// family per spec.md §4.8).
func ParseWant(raw []string) Want {
	var v4, v6 bool
	for _, w := range raw {
		switch w {
		case "n4":
			v4 = true
		case "n6":
			v6 = true
		}
	}
	switch {
	case v4 && v6:
		return WantBoth
	case v4:
		return WantV4
	case v6:
		return WantV6
	default:
		return WantNone
	}
}
