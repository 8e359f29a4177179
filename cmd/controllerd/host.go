//go:build !mcu

package main

import (
	"flag"
	"log/slog"
	"net"
	"os"
	"time"

	"brewbox-controlbox/internal/storage"
	"brewbox-controlbox/internal/system"
)

// main is the host build: a TCP listener stands in for the UART port a
// real board would use, per §5.1's "host development/testing" transport.
// §1 excludes multiple simultaneous host connections, so one accepted
// connection is served at a time; the listener then accepts the next.
func main() {
	addr := flag.String("addr", "127.0.0.1:6923", "listen address for the command protocol")
	arena := flag.Int("arena", 16*1024, "in-memory storage arena size in bytes")
	flag.Parse()

	log := slog.New(slog.NewTextHandler(os.Stderr, nil))
	start := time.Now()

	rt, err := system.Bootstrap(system.Config{
		Backing: storage.NewMemBacking(*arena),
		Now:     clockFrom(start),
		Reboot:  rebooter{log: log},
		Log:     log,
	})
	if err != nil {
		log.Error("controllerd: bootstrap failed", "err", err)
		os.Exit(1)
	}

	ln, err := net.Listen("tcp", *addr)
	if err != nil {
		log.Error("controllerd: listen failed", "err", err)
		os.Exit(1)
	}
	defer ln.Close()
	log.Info("controllerd: listening", "addr", ln.Addr().String())

	for {
		conn, err := ln.Accept()
		if err != nil {
			log.Error("controllerd: accept failed", "err", err)
			return
		}
		log.Info("controllerd: connection accepted", "remote", conn.RemoteAddr().String())
		serve(conn, rt, start, log)
		conn.Close()
	}
}

// rebooter logs and exits the process; there is no real watchdog to
// kick on the host build, matching §6's REBOOT command semantics loosely
// enough for development use.
type rebooter struct{ log *slog.Logger }

func (r rebooter) Reboot() {
	r.log.Warn("controllerd: REBOOT requested, exiting process")
	os.Exit(0)
}
