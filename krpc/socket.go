package krpc

import (
	"bytes"
	"fmt"
	"net"
	"strconv"

	bencode "github.com/jackpal/bencode-go"

	"mldht/arena"
	"mldht/logger"
)

// MaxUDPPacketSize bounds a single received datagram, per the
// teacher's remoteNode/krpc.go.
const MaxUDPPacketSize = 4096

// Packet is one received datagram plus its sender, kept from the
// teacher's PacketType.
type Packet struct {
	B     []byte
	Raddr net.UDPAddr
}

// Listen opens the UDP socket the handler reads and writes on.
// Grounded on remoteNode/krpc.go's Listen.
func Listen(addr string, port int, proto string, log logger.DebugLogger) (*net.UDPConn, error) {
	log.Infof("krpc: listening on %s:%d (%s)", addr, port, proto)
	pc, err := net.ListenPacket(proto, addr+":"+strconv.Itoa(port))
	if err != nil {
		return nil, err
	}
	return pc.(*net.UDPConn), nil
}

// Send bencodes msg and writes it to raddr.
func Send(conn *net.UDPConn, raddr *net.UDPAddr, msg interface{}, log logger.DebugLogger) error {
	var b bytes.Buffer
	if err := bencode.Marshal(&b, msg); err != nil {
		return err
	}
	if _, err := conn.WriteToUDP(b.Bytes(), raddr); err != nil {
		log.Debugf("krpc: write to %v failed: %v", raddr, err)
		return err
	}
	return nil
}

// Decode unmarshals a received packet's body into an InMessage.
// bencode.Unmarshal can panic on malformed input; that panic is
// recovered here and turned into an error, matching the teacher's
// ReadResponse.
func Decode(p Packet, log logger.DebugLogger) (msg InMessage, err error) {
	defer func() {
		if x := recover(); x != nil {
			log.Debugf("krpc: recovered from panic decoding %q: %v", string(p.B), x)
			err = fmt.Errorf("krpc: malformed packet: %v", x)
		}
	}()
	if e := bencode.Unmarshal(bytes.NewBuffer(p.B), &msg); e != nil {
		log.Debugf("krpc: decode error: %v", e)
		return msg, e
	}
	return msg, nil
}

// Conn wraps a bound UDP socket as the minimal send capability the
// worker procedures need (worker.Sender): one outbound message per
// call, plus the local address for want-inference. Grounded on the teacher's remoteNode.SendMsg, adapted from
// a free function into a small seam the handler and procedures share.
type Conn struct {
	UDP *net.UDPConn
	Log logger.DebugLogger
}

// Send bencodes msg and writes it to addr.
func (c *Conn) Send(addr *net.UDPAddr, msg interface{}) error {
	return Send(c.UDP, addr, msg, c.Log)
}

// LocalAddr returns the socket's own bound address.
func (c *Conn) LocalAddr() net.Addr {
	return c.UDP.LocalAddr()
}

// ReadLoop pulls datagrams off socket using arena-pooled buffers,
// pushing each onto out until stop is closed. Grounded on the
// teacher's ReadFromSocket.
func ReadLoop(socket *net.UDPConn, out chan<- Packet, pool arena.Arena, stop <-chan struct{}, log logger.DebugLogger) {
	for {
		b := pool.Pop()
		n, addr, err := socket.ReadFromUDP(b)
		if err != nil {
			select {
			case <-stop:
				return
			default:
			}
			log.Debugf("krpc: read error: %v", err)
			pool.Push(b)
			continue
		}
		b = b[:n]
		if n == MaxUDPPacketSize {
			log.Debugf("krpc: packet at max size %d, may be truncated", MaxUDPPacketSize)
		}
		select {
		case out <- Packet{B: b, Raddr: *addr}:
		case <-stop:
			return
		}
	}
}
