// Command controllerd runs the object runtime behind the hex-framed
// command protocol over a single byte-stream connection (§5.1, §6). This
// file holds the transport-agnostic wiring shared by the host build (a
// TCP listener, see host.go) and the embedded build (a UART port, see
// embedded.go).
package main

import (
	"bufio"
	"io"
	"log/slog"
	"time"

	"brewbox-controlbox/internal/object"
	"brewbox-controlbox/internal/system"
)

const tickInterval = 50 * time.Millisecond

// serve drives one connection's request/reply protocol and the
// container's cooperative update scheduler over rw until the connection
// closes. Grounded on the teacher's bus.Subscribe-fed select loops
// (services/bridge, cmd/uart-test): a reader goroutine only frames
// bytes off the wire, so this select loop stays the one place
// HandleFrame and Objects.Update ever run — never concurrently, per
// §5's single-threaded cooperative model.
func serve(rw io.ReadWriter, rt *system.Runtime, start time.Time, log *slog.Logger) {
	frames := make(chan []byte)
	go func() {
		defer close(frames)
		scanner := bufio.NewScanner(rw)
		scanner.Buffer(make([]byte, 4096), 1<<20)
		for scanner.Scan() {
			line := scanner.Bytes()
			if len(line) == 0 {
				continue
			}
			frame := make([]byte, len(line))
			copy(frame, line)
			frames <- frame
		}
	}()

	ticker := time.NewTicker(tickInterval)
	defer ticker.Stop()

	for {
		select {
		case frame, ok := <-frames:
			if !ok {
				log.Info("controllerd: connection closed")
				return
			}
			reply := rt.Dispatcher.HandleFrame(frame)
			reply = append(reply, '\n')
			if _, err := rw.Write(reply); err != nil {
				log.Warn("controllerd: write failed", "err", err)
				return
			}
		case now := <-ticker.C:
			rt.Objects.Update(millisSince(start, now))
		}
	}
}

func millisSince(start, now time.Time) object.UpdateTime {
	return object.UpdateTime(now.Sub(start).Milliseconds())
}

func clockFrom(start time.Time) func() object.UpdateTime {
	return func() object.UpdateTime { return millisSince(start, time.Now()) }
}
