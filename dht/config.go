package dht

import (
	"flag"
	"time"
)

// Config configures a Handler. Use NewConfig to get one populated with
// default values, generalized from the teacher's dht.go Config/
// NewConfig/RegisterFlags pattern.
type Config struct {
	// Address to bind the UDP socket on. Empty picks one automatically.
	Address string
	// Port to bind. Zero picks a random port.
	Port int
	// UDPProto selects the socket family: "udp4" or "udp6".
	UDPProto string
	// DHTRouters is a comma-separated list of host:port router
	// addresses used to bootstrap the overlay.
	DHTRouters string
	// ReadOnly makes the handler answer no requests, per spec.md §4.8.
	ReadOnly bool
	// AnnouncePort is the port advertised on announce_peer. Zero means
	// "use implied_port" instead, per spec.md §4.6.
	AnnouncePort int
	// RebootstrapGoodNodeThreshold: after BootstrapCompleted, if the
	// table holds this many Good nodes or fewer, the handler retries
	// bootstrap from scratch, per spec.md §4.5.
	RebootstrapGoodNodeThreshold int
	// MaxRebootstrapAttempts bounds the retries in the prior field.
	// Once it is reached, the handler emits BootstrapFailed if the table
	// holds no Good node, and BootstrapCompleted otherwise.
	MaxRebootstrapAttempts int
	// RefreshPeriod is how often the Refresh procedure fires, per
	// spec.md §4.7.
	RefreshPeriod time.Duration
}

// NewConfig returns a Config populated with the spec's default values.
func NewConfig() *Config {
	return &Config{
		Address:                      "",
		Port:                         0,
		UDPProto:                     "udp4",
		DHTRouters:                   "router.bittorrent.com:6881,router.utorrent.com:6881,dht.transmissionbt.com:6881",
		ReadOnly:                     false,
		AnnouncePort:                 0,
		RebootstrapGoodNodeThreshold: 10,
		MaxRebootstrapAttempts:       3,
		RefreshPeriod:                6 * time.Second,
	}
}

var DefaultConfig = NewConfig()

// RegisterFlags registers command-line flags for Config's address,
// port, socket family, routers, read-only and announce-port fields. If
// c is nil, DefaultConfig is used. RebootstrapGoodNodeThreshold,
// MaxRebootstrapAttempts and RefreshPeriod have no flag.
func RegisterFlags(c *Config) {
	if c == nil {
		c = DefaultConfig
	}
	flag.StringVar(&c.Address, "address", c.Address, "Local address to bind the DHT socket on.")
	flag.IntVar(&c.Port, "port", c.Port, "UDP port to bind the DHT socket on. 0 picks one at random.")
	flag.StringVar(&c.UDPProto, "udpProto", c.UDPProto, `UDP socket family: "udp4" or "udp6".`)
	flag.StringVar(&c.DHTRouters, "routers", c.DHTRouters,
		"Comma separated addresses of DHT routers used to bootstrap the DHT network.")
	flag.BoolVar(&c.ReadOnly, "readOnly", c.ReadOnly, "Answer no incoming requests; participate as a read-only client.")
	flag.IntVar(&c.AnnouncePort, "announcePort", c.AnnouncePort,
		"Port to advertise on announce_peer. 0 uses implied_port instead.")
}
