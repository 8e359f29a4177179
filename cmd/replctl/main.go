// Command replctl is a development console for the command protocol
// (§5.1, §6): it dials a controllerd TCP listener, tokenizes operator
// command lines with shlex the way a shell would, and frames them as
// hex/CRC requests. Grounded on the teacher's cmd/uart-test and
// cmd/boardtest debug mains, which drive the running system from a
// small hand-typed command set rather than a generated client.
package main

import (
	"bufio"
	"encoding/hex"
	"flag"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"

	"github.com/google/shlex"

	"brewbox-controlbox/internal/dispatch"
	"brewbox-controlbox/internal/stream"
)

func main() {
	addr := flag.String("addr", "127.0.0.1:6923", "controllerd address")
	flag.Parse()

	conn, err := net.Dial("tcp", *addr)
	if err != nil {
		fmt.Fprintln(os.Stderr, "replctl: dial:", err)
		os.Exit(1)
	}
	defer conn.Close()

	fmt.Fprintln(os.Stderr, "replctl: connected to", *addr)
	fmt.Fprintln(os.Stderr, "commands: read/write/create/delete ID, list-active, list-stored, list-compatible TYPE, discover, clear, reboot")

	in := bufio.NewScanner(os.Stdin)
	out := bufio.NewScanner(conn)
	out.Buffer(make([]byte, 4096), 1<<20)

	var msgID uint16
	for {
		fmt.Fprint(os.Stderr, "> ")
		if !in.Scan() {
			return
		}
		line := strings.TrimSpace(in.Text())
		if line == "" {
			continue
		}
		args, err := shlex.Split(line)
		if err != nil || len(args) == 0 {
			fmt.Fprintln(os.Stderr, "replctl: parse error:", err)
			continue
		}

		frame, err := buildFrame(msgID, args)
		if err != nil {
			fmt.Fprintln(os.Stderr, "replctl:", err)
			continue
		}
		msgID++

		if _, err := conn.Write(append(frame, '\n')); err != nil {
			fmt.Fprintln(os.Stderr, "replctl: write:", err)
			return
		}
		if !out.Scan() {
			fmt.Fprintln(os.Stderr, "replctl: connection closed")
			return
		}
		fmt.Println(out.Text())
	}
}

// buildFrame turns one tokenized command line into a hex/CRC request
// frame. The grammar is deliberately raw (decimal ids, hex payload
// bytes) rather than per-block-type typed fields: a generic console has
// no way to know which block a not-yet-created id will hold.
func buildFrame(msgID uint16, args []string) ([]byte, error) {
	cmd, payload, err := args[0], []byte(nil), error(nil)
	switch cmd {
	case "read":
		payload, err = idPayload(args)
		return frame(msgID, dispatch.CmdReadObject, payload, err)
	case "write":
		payload, err = idPlusHexPayload(args)
		return frame(msgID, dispatch.CmdWriteObject, payload, err)
	case "create":
		payload, err = createPayload(args)
		return frame(msgID, dispatch.CmdCreateObject, payload, err)
	case "delete":
		payload, err = idPayload(args)
		return frame(msgID, dispatch.CmdDeleteObject, payload, err)
	case "list-active":
		return frame(msgID, dispatch.CmdListActiveObjects, nil, nil)
	case "list-stored":
		return frame(msgID, dispatch.CmdListStoredObjects, nil, nil)
	case "read-stored":
		payload, err = idPayload(args)
		return frame(msgID, dispatch.CmdReadStoredObject, payload, err)
	case "list-compatible":
		payload, err = typePayload(args)
		return frame(msgID, dispatch.CmdListCompatibleObjects, payload, err)
	case "discover":
		return frame(msgID, dispatch.CmdDiscoverNewObjects, nil, nil)
	case "clear":
		return frame(msgID, dispatch.CmdClearObjects, nil, nil)
	case "reboot":
		return frame(msgID, dispatch.CmdReboot, nil, nil)
	case "factory-reset":
		return frame(msgID, dispatch.CmdFactoryReset, nil, nil)
	default:
		return nil, fmt.Errorf("unknown command %q", cmd)
	}
}

func idPayload(args []string) ([]byte, error) {
	if len(args) != 2 {
		return nil, fmt.Errorf("usage: %s ID", args[0])
	}
	id, err := strconv.ParseUint(args[1], 10, 16)
	if err != nil {
		return nil, fmt.Errorf("bad id %q: %w", args[1], err)
	}
	return beU16(uint16(id)), nil
}

func typePayload(args []string) ([]byte, error) {
	if len(args) != 2 {
		return nil, fmt.Errorf("usage: %s TYPE", args[0])
	}
	typeID, err := strconv.ParseUint(args[1], 10, 16)
	if err != nil {
		return nil, fmt.Errorf("bad type %q: %w", args[1], err)
	}
	return beU16(uint16(typeID)), nil
}

func idPlusHexPayload(args []string) ([]byte, error) {
	if len(args) != 3 {
		return nil, fmt.Errorf("usage: %s ID HEXBODY", args[0])
	}
	id, err := strconv.ParseUint(args[1], 10, 16)
	if err != nil {
		return nil, fmt.Errorf("bad id %q: %w", args[1], err)
	}
	body, err := hex.DecodeString(args[2])
	if err != nil {
		return nil, fmt.Errorf("bad hex body %q: %w", args[2], err)
	}
	return append(beU16(uint16(id)), body...), nil
}

func createPayload(args []string) ([]byte, error) {
	if len(args) != 5 {
		return nil, fmt.Errorf("usage: create ID GROUPSHEX TYPE HEXBODY")
	}
	id, err := strconv.ParseUint(args[1], 10, 16)
	if err != nil {
		return nil, fmt.Errorf("bad id %q: %w", args[1], err)
	}
	groups, err := hex.DecodeString(args[2])
	if err != nil || len(groups) != 1 {
		return nil, fmt.Errorf("bad groups byte %q (want 2 hex digits)", args[2])
	}
	typeID, err := strconv.ParseUint(args[3], 10, 16)
	if err != nil {
		return nil, fmt.Errorf("bad type %q: %w", args[3], err)
	}
	body, err := hex.DecodeString(args[4])
	if err != nil {
		return nil, fmt.Errorf("bad hex body %q: %w", args[4], err)
	}
	payload := append(beU16(uint16(id)), groups[0])
	payload = append(payload, beU16(uint16(typeID))...)
	return append(payload, body...), nil
}

func beU16(v uint16) []byte { return []byte{byte(v >> 8), byte(v)} }

// frame assembles msgID+cmd+payload, appends a CRC-8 byte, and renders
// the whole thing as ASCII hex the way dispatch.HandleFrame expects it.
func frame(msgID uint16, cmd dispatch.CommandID, payload []byte, err error) ([]byte, error) {
	if err != nil {
		return nil, err
	}
	body := append(beU16(msgID), byte(cmd))
	body = append(body, payload...)

	crc := stream.NewCRCOutput(stream.NewCountingOutput())
	if err := crc.WriteBuffer(body); err != nil {
		return nil, err
	}
	body = append(body, crc.CRC())

	buf := stream.NewByteBufferOutput()
	hx := stream.NewHexOutput(buf)
	if err := hx.WriteBuffer(body); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
