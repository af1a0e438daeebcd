// Command dhtnode runs a standalone Mainline DHT node: it bootstraps
// against the public router swarm and, given an info-hash argument,
// looks up peers for it, printing each one, and exits once numTarget
// peers have been printed. Until then, or without an argument, it
// keeps running as a routing-table participant.
//
// There is a builtin debug server exposing expvar counters at
// http://localhost:8711/debug/vars.
//
// Adapted from examples/find_infohash_and_wait/main.go.
package main

import (
	"flag"
	"fmt"
	"net/http"
	"os"

	_ "expvar" // registers the /debug/vars handler on http.DefaultServeMux

	"mldht/dht"
	"mldht/id"
	"mldht/logger"
)

const (
	debugHTTPAddr = ":8711"
	numTarget     = 10
	exampleIH     = "99c82bb73505a3c0b453f9fa0e881d6e5a32a0c1"
)

func main() {
	cfg := dht.NewConfig()
	dht.RegisterFlags(cfg)
	announce := flag.Bool("announce", false, "Also announce ourselves as a peer for the looked-up info-hash.")
	flag.Parse()

	log := logger.NewLogrusLogger(nil)

	h, err := dht.New(cfg, id.Random(), log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "dht: failed to start: %v\n", err)
		os.Exit(1)
	}

	go http.ListenAndServe(debugHTTPAddr, http.DefaultServeMux)

	done := make(chan struct{})
	go func() { defer close(done); h.Run() }()

	routers := dht.ParseRouters(cfg.DHTRouters, cfg.UDPProto, log)
	h.StartBootstrap(routers, nil)

	var target id.InfoHash
	if len(flag.Args()) == 1 {
		target, err = id.FromHex(flag.Args()[0])
		if err != nil {
			fmt.Fprintf(os.Stderr, "dhtnode: bad info-hash %q: %v\nExample: %v\n", flag.Args()[0], err, exampleIH)
			os.Exit(1)
		}
	}

	found := 0
	for e := range h.Events {
		switch e.Kind {
		case dht.BootstrapCompleted:
			log.Infof("dhtnode: bootstrap complete, listening on port %d", h.Port())
			if target != id.Zero {
				h.StartLookup(target, *announce)
			}
		case dht.BootstrapFailed:
			fmt.Fprintln(os.Stderr, "dhtnode: bootstrap failed, no usable routers reachable")
			os.Exit(1)
		case dht.PeerFound:
			found++
			fmt.Printf("%d: %v\n", found, e.Addr)
			if found >= numTarget {
				h.Stop()
				<-done
				return
			}
		case dht.LookupCompleted:
			if target == id.Zero {
				continue
			}
			log.Infof("dhtnode: lookup complete, %d peers found", found)
		}
	}
	<-done
}
