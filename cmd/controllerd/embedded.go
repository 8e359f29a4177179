//go:build mcu

package main

import (
	"log/slog"
	"time"

	"github.com/jangala-dev/tinygo-uartx/uartx"

	"brewbox-controlbox/internal/storage"
	"brewbox-controlbox/internal/system"
)

// arenaSize is the persisted-object arena carved out of whatever Backing
// the board wires in; a real build would back this with flash rather
// than RAM, but no flash Backing implementation exists yet (§1 keeps
// concrete device drivers out of scope), so the embedded build runs with
// a volatile arena like the host build until one is written.
const arenaSize = 4096

// main is the embedded build: the command protocol rides UART0,
// configured the way the teacher's DefaultUARTFactory configures it
// (services/hal/internal/platform/factories_rp2xxx.go) — enable with
// default framing, then hand the *uartx.UART straight to serve as an
// io.ReadWriter, no adaptor type required.
func main() {
	log := slog.Default()
	start := time.Now()

	if err := uartx.UART0.Configure(uartx.UARTConfig{}); err != nil {
		log.Error("controllerd: UART0 configure failed", "err", err)
		return
	}

	rt, err := system.Bootstrap(system.Config{
		Backing: storage.NewMemBacking(arenaSize),
		Now:     clockFrom(start),
		Reboot:  mcuRebooter{},
		Log:     log,
	})
	if err != nil {
		log.Error("controllerd: bootstrap failed", "err", err)
		return
	}

	serve(uartx.UART0, rt, start, log)
}

type mcuRebooter struct{}

func (mcuRebooter) Reboot() {
	for {
		time.Sleep(time.Second)
	}
}
