package dht

import (
	"net"

	"mldht/id"
)

// Command is one of StartBootstrap or StartLookup, per spec.md §4.8.
type Command interface{ isCommand() }

// StartBootstrap kicks off the Bootstrap procedure against the given
// router and seed-node addresses.
type StartBootstrap struct {
	Routers []*net.UDPAddr
	Nodes   []*net.UDPAddr
}

func (StartBootstrap) isCommand() {}

// StartLookup kicks off an iterative get_peers lookup for InfoHash. If
// the handler is still bootstrapping, the command is queued and run
// once BootstrapCompleted fires, per spec.md §4.8.
type StartLookup struct {
	InfoHash       id.InfoHash
	ShouldAnnounce bool
}

func (StartLookup) isCommand() {}
