// Package dispatch implements the command dispatcher (C7): the hex-framed,
// CRC-checked request/reply protocol that drives object CRUD, persistence,
// listing, discovery and system control. Grounded on
// controlbox/src/cbox/Box.h's Box::handleCommand dispatch loop; the wire
// framing itself is grounded on §6 of the controller specification and
// the CRC/hex primitives in internal/stream.
package dispatch

import (
	"log/slog"

	"brewbox-controlbox/errcode"
	"brewbox-controlbox/internal/container"
	"brewbox-controlbox/internal/object"
	"brewbox-controlbox/internal/scan"
	"brewbox-controlbox/internal/storage"
	"brewbox-controlbox/internal/stream"
)

// CommandID identifies a dispatcher operation (§4.7).
type CommandID byte

const (
	CmdNone                  CommandID = 0
	CmdReadObject            CommandID = 1
	CmdWriteObject           CommandID = 2
	CmdCreateObject          CommandID = 3
	CmdDeleteObject          CommandID = 4
	CmdListActiveObjects     CommandID = 5
	CmdReadStoredObject      CommandID = 6
	CmdListStoredObjects     CommandID = 7
	CmdClearObjects          CommandID = 8
	CmdReboot                CommandID = 9
	CmdFactoryReset          CommandID = 10
	CmdListCompatibleObjects CommandID = 11
	CmdDiscoverNewObjects    CommandID = 12
)

// Rebooter restarts the firmware; cmd/controllerd supplies the real
// implementation (process exit / watchdog trigger), tests supply a stub.
type Rebooter interface{ Reboot() }

// Dispatcher wires the object container, the persistence engine, the type
// factory table and any scanning factories together behind the command
// protocol. One Dispatcher per connection is not required — it holds no
// per-connection state, only the shared runtime.
type Dispatcher struct {
	objects   *container.Container
	store     *storage.Engine
	factories *object.FactoryRegistry
	scanners  []*scan.Factory
	reboot    Rebooter
	log       *slog.Logger
}

func New(objects *container.Container, store *storage.Engine, factories *object.FactoryRegistry, scanners []*scan.Factory, reboot Rebooter, log *slog.Logger) *Dispatcher {
	if log == nil {
		log = slog.Default()
	}
	return &Dispatcher{objects: objects, store: store, factories: factories, scanners: scanners, reboot: reboot, log: log}
}

// HandleFrame decodes one ASCII-hex request frame (without its line
// terminator), verifies its CRC, dispatches the command, and returns the
// ASCII-hex encoded reply frame (also without a line terminator; the
// transport is responsible for the newline).
func (d *Dispatcher) HandleFrame(frame []byte) []byte {
	raw, ok := decodeHex(frame)
	if !ok || len(raw) < 4 || !verifyCRC(raw) {
		return d.errorReply(nil, errcode.InputStreamReadError)
	}
	body := raw[:len(raw)-1] // drop trailing CRC byte
	echo := append([]byte(nil), body...)

	if len(body) < 3 {
		return d.errorReply(echo, errcode.InputStreamReadError)
	}
	msgID := body[0:2]
	cmd := CommandID(body[2])
	payload := body[3:]

	chunks := d.dispatch(echo, msgID, cmd, payload)
	return encodeChunks(chunks)
}

// dispatch runs one command and returns the reply as one or more chunks
// (each independently CRC-terminated, to be hex-encoded and '|'-joined by
// the caller). The first chunk always carries the echoed request bytes
// and the status code.
func (d *Dispatcher) dispatch(echo, msgID []byte, cmd CommandID, payload []byte) [][]byte {
	switch cmd {
	case CmdNone:
		return [][]byte{d.statusChunk(echo, errcode.OK, nil)}
	case CmdReadObject:
		return d.cmdReadObject(echo, payload)
	case CmdWriteObject:
		return d.cmdWriteObject(echo, payload)
	case CmdCreateObject:
		return d.cmdCreateObject(echo, payload)
	case CmdDeleteObject:
		return d.cmdDeleteObject(echo, payload)
	case CmdListActiveObjects:
		return d.cmdListActiveObjects(echo)
	case CmdReadStoredObject:
		return d.cmdReadStoredObject(echo, payload)
	case CmdListStoredObjects:
		return d.cmdListStoredObjects(echo)
	case CmdClearObjects:
		return d.cmdClearObjects(echo)
	case CmdReboot:
		return d.cmdReboot(echo)
	case CmdFactoryReset:
		return d.cmdFactoryReset(echo)
	case CmdListCompatibleObjects:
		return d.cmdListCompatibleObjects(echo, payload)
	case CmdDiscoverNewObjects:
		return d.cmdDiscoverNewObjects(echo)
	default:
		return [][]byte{d.statusChunk(echo, errcode.UnknownCommand, nil)}
	}
}

// ---- per-command handlers ----

func (d *Dispatcher) cmdReadObject(echo, payload []byte) [][]byte {
	id, ok := readID(payload)
	if !ok {
		return [][]byte{d.statusChunk(echo, errcode.InvalidObjectID, nil)}
	}
	obj, found := d.objects.Fetch(id)
	if !found {
		return [][]byte{d.statusChunk(echo, errcode.InvalidObjectID, nil)}
	}
	groups, _ := d.objects.Groups(id)
	return [][]byte{d.statusChunk(echo, errcode.OK, func(out stream.Output) error {
		return writeObjectRecord(out, byte(groups), obj.TypeID(), obj.StreamTo)
	})}
}

func (d *Dispatcher) cmdWriteObject(echo, payload []byte) [][]byte {
	id, groups, typeID, bodyBytes, ok := readObjectEnvelope(payload)
	if !ok {
		return [][]byte{d.statusChunk(echo, errcode.InvalidObjectID, nil)}
	}
	obj, found := d.objects.Fetch(id)
	if !found {
		return [][]byte{d.statusChunk(echo, errcode.InvalidObjectID, nil)}
	}
	if obj.TypeID() != object.TypeID(typeID) {
		return [][]byte{d.statusChunk(echo, errcode.InvalidObjectType, nil)}
	}
	in := stream.NewRegionInput(stream.NewSliceInput(bodyBytes), len(bodyBytes))
	if err := obj.StreamFrom(in); err != nil {
		return [][]byte{d.statusChunk(echo, errcode.Of(err), nil)}
	}
	_ = d.objects.SetGroups(id, container.Groups(groups))
	if err := d.persist(id, groups, obj); err != nil {
		return [][]byte{d.statusChunk(echo, errcode.Of(err), nil)}
	}
	return [][]byte{d.statusChunk(echo, errcode.OK, func(out stream.Output) error {
		return writeObjectRecord(out, groups, obj.TypeID(), obj.StreamTo)
	})}
}

func (d *Dispatcher) cmdCreateObject(echo, payload []byte) [][]byte {
	id, groups, typeID, bodyBytes, ok := readObjectEnvelope(payload)
	if !ok {
		return [][]byte{d.statusChunk(echo, errcode.InvalidObjectID, nil)}
	}
	if id == 0 {
		id = d.nextFreeUserID()
	} else if id < object.UserStart {
		return [][]byte{d.statusChunk(echo, errcode.ObjectNotCreatable, nil)}
	}
	obj, ok := d.factories.New(object.TypeID(typeID))
	if !ok {
		return [][]byte{d.statusChunk(echo, errcode.InvalidObjectType, nil)}
	}
	in := stream.NewRegionInput(stream.NewSliceInput(bodyBytes), len(bodyBytes))
	if err := obj.StreamFrom(in); err != nil {
		return [][]byte{d.statusChunk(echo, errcode.Of(err), nil)}
	}
	if err := d.objects.Add(id, container.Groups(groups), obj); err != nil {
		return [][]byte{d.statusChunk(echo, errcode.Of(err), nil)}
	}
	if err := d.persist(id, groups, obj); err != nil {
		return [][]byte{d.statusChunk(echo, errcode.Of(err), nil)}
	}
	return [][]byte{d.statusChunk(echo, errcode.OK, func(out stream.Output) error {
		return writeID(out, id)
	})}
}

func (d *Dispatcher) cmdDeleteObject(echo, payload []byte) [][]byte {
	id, ok := readID(payload)
	if !ok {
		return [][]byte{d.statusChunk(echo, errcode.InvalidObjectID, nil)}
	}
	if err := d.objects.Remove(id); err != nil {
		return [][]byte{d.statusChunk(echo, errcode.Of(err), nil)}
	}
	_ = d.store.Dispose(uint16(id))
	return [][]byte{d.statusChunk(echo, errcode.OK, nil)}
}

func (d *Dispatcher) cmdListActiveObjects(echo []byte) [][]byte {
	chunks := [][]byte{d.statusChunk(echo, errcode.OK, func(out stream.Output) error {
		return out.Write(byte(d.objects.ActiveGroups()))
	})}
	d.objects.Each(func(id object.ID, groups container.Groups, obj object.Object) {
		chunks = append(chunks, listEntryChunk(id, byte(groups), obj.TypeID(), obj.StreamTo))
	})
	return chunks
}

func (d *Dispatcher) cmdReadStoredObject(echo, payload []byte) [][]byte {
	id, ok := readID(payload)
	if !ok {
		return [][]byte{d.statusChunk(echo, errcode.InvalidObjectID, nil)}
	}
	persisted := stream.NewByteBufferOutput()
	_, _, err := d.store.Retrieve(uint16(id), func(in stream.Input) error {
		return streamPersistedReplay(in, persisted)
	})
	if err != nil {
		return [][]byte{d.statusChunk(echo, errcode.Of(err), nil)}
	}
	return [][]byte{d.statusChunk(echo, errcode.OK, func(out stream.Output) error {
		return out.WriteBuffer(persisted.Bytes())
	})}
}

func (d *Dispatcher) cmdListStoredObjects(echo []byte) [][]byte {
	chunks := [][]byte{d.statusChunk(echo, errcode.OK, nil)}
	_ = d.store.RetrieveAll(func(id uint16, groups byte, typeID uint16, in stream.Input) error {
		buf := stream.NewByteBufferOutput()
		if err := streamPersistedReplay(in, buf); err != nil {
			return nil // skip unreadable entries, matching storage's own skip-on-corruption policy
		}
		chunks = append(chunks, listEntryRaw(object.ID(id), groups, typeID, buf.Bytes()))
		return nil
	})
	return chunks
}

func (d *Dispatcher) cmdClearObjects(echo []byte) [][]byte {
	var toRemove []object.ID
	d.objects.Each(func(id object.ID, groups container.Groups, obj object.Object) {
		if id >= object.UserStart {
			toRemove = append(toRemove, id)
		}
	})
	for _, id := range toRemove {
		_ = d.objects.Remove(id)
		_ = d.store.Dispose(uint16(id))
	}
	return [][]byte{d.statusChunk(echo, errcode.OK, nil)}
}

func (d *Dispatcher) cmdReboot(echo []byte) [][]byte {
	chunk := d.statusChunk(echo, errcode.OK, nil)
	if d.reboot != nil {
		d.reboot.Reboot()
	}
	return [][]byte{chunk}
}

func (d *Dispatcher) cmdFactoryReset(echo []byte) [][]byte {
	if err := d.store.Clear(); err != nil {
		return [][]byte{d.statusChunk(echo, errcode.Of(err), nil)}
	}
	chunk := d.statusChunk(echo, errcode.OK, nil)
	if d.reboot != nil {
		d.reboot.Reboot()
	}
	return [][]byte{chunk}
}

func (d *Dispatcher) cmdListCompatibleObjects(echo, payload []byte) [][]byte {
	iface, ok := readID(payload)
	if !ok {
		return [][]byte{d.statusChunk(echo, errcode.InvalidObjectID, nil)}
	}
	chunks := [][]byte{d.statusChunk(echo, errcode.OK, nil)}
	d.objects.Each(func(id object.ID, groups container.Groups, obj object.Object) {
		if obj.Implements(object.InterfaceID(iface)) != nil {
			chunks = append(chunks, idOnlyChunk(id))
		}
	})
	return chunks
}

func (d *Dispatcher) cmdDiscoverNewObjects(echo []byte) [][]byte {
	chunks := [][]byte{d.statusChunk(echo, errcode.OK, nil)}
	for _, factory := range d.scanners {
		factory.Reset()
		for {
			obj, ok := factory.Scan()
			if !ok {
				break
			}
			id := d.nextFreeUserID()
			groups := byte(d.objects.ActiveGroups())
			if err := d.objects.Add(id, container.Groups(groups), obj); err != nil {
				d.log.Warn("discover: could not add scanned object", "err", err)
				continue
			}
			if err := d.persist(id, groups, obj); err != nil {
				d.log.Warn("discover: could not persist scanned object", "err", err)
			}
			chunks = append(chunks, idOnlyChunk(id))
		}
	}
	return chunks
}

// ---- helpers ----

func (d *Dispatcher) persist(id object.ID, groups byte, obj object.Object) error {
	return d.store.Store(uint16(id), groups, uint16(obj.TypeID()), func(out stream.Output) error {
		return obj.StreamPersistedTo(out)
	})
}

func (d *Dispatcher) nextFreeUserID() object.ID {
	id := object.UserStart
	for {
		if _, present := d.objects.Groups(id); !present {
			return id
		}
		id++
	}
}

func streamPersistedReplay(in stream.Input, out stream.Output) error {
	for in.HasNext() {
		b, ok := in.Next()
		if !ok {
			break
		}
		if err := out.Write(b); err != nil {
			return err
		}
	}
	return nil
}

func (d *Dispatcher) statusChunk(echo []byte, code errcode.Code, body func(stream.Output) error) []byte {
	out := stream.NewByteBufferOutput()
	crc := stream.NewCRCOutput(out)
	_ = crc.WriteBuffer(echo)
	w := code.Wire()
	_ = crc.WriteBuffer([]byte{byte(w >> 8), byte(w)})
	if body != nil {
		_ = body(crc)
	}
	_ = crc.WriteCRC()
	return out.Bytes()
}

func (d *Dispatcher) errorReply(echo []byte, code errcode.Code) []byte {
	return encodeChunks([][]byte{d.statusChunk(echo, code, nil)})
}

func listEntryChunk(id object.ID, groups byte, typeID object.TypeID, streamTo func(stream.Output) error) []byte {
	out := stream.NewByteBufferOutput()
	crc := stream.NewCRCOutput(out)
	_ = writeObjectRecordWithID(crc, id, groups, typeID, streamTo)
	_ = crc.WriteCRC()
	return out.Bytes()
}

func listEntryRaw(id object.ID, groups byte, typeID uint16, persisted []byte) []byte {
	out := stream.NewByteBufferOutput()
	crc := stream.NewCRCOutput(out)
	_ = writeID(crc, id)
	_ = crc.Write(groups)
	_ = crc.WriteBuffer([]byte{byte(typeID >> 8), byte(typeID)})
	_ = crc.WriteBuffer(persisted)
	_ = crc.WriteCRC()
	return out.Bytes()
}

func idOnlyChunk(id object.ID) []byte {
	out := stream.NewByteBufferOutput()
	crc := stream.NewCRCOutput(out)
	_ = writeID(crc, id)
	_ = crc.WriteCRC()
	return out.Bytes()
}

func writeObjectRecord(out stream.Output, groups byte, typeID object.TypeID, streamTo func(stream.Output) error) error {
	if err := out.Write(groups); err != nil {
		return err
	}
	if err := out.WriteBuffer([]byte{byte(uint16(typeID) >> 8), byte(uint16(typeID))}); err != nil {
		return err
	}
	return streamTo(out)
}

func writeObjectRecordWithID(out stream.Output, id object.ID, groups byte, typeID object.TypeID, streamTo func(stream.Output) error) error {
	if err := writeID(out, id); err != nil {
		return err
	}
	return writeObjectRecord(out, groups, typeID, streamTo)
}

func writeID(out stream.Output, id object.ID) error {
	return out.WriteBuffer([]byte{byte(uint16(id) >> 8), byte(uint16(id))})
}

func readID(payload []byte) (object.ID, bool) {
	if len(payload) < 2 {
		return 0, false
	}
	return object.ID(uint16(payload[0])<<8 | uint16(payload[1])), true
}

// readObjectEnvelope decodes {id(2), groups(1), typeId(2), bytes...}.
func readObjectEnvelope(payload []byte) (id object.ID, groups byte, typeID uint16, body []byte, ok bool) {
	if len(payload) < 5 {
		return 0, 0, 0, nil, false
	}
	id = object.ID(uint16(payload[0])<<8 | uint16(payload[1]))
	groups = payload[2]
	typeID = uint16(payload[3])<<8 | uint16(payload[4])
	body = payload[5:]
	return id, groups, typeID, body, true
}

// ---- wire framing: hex decode + CRC check, chunk encode ----

func decodeHex(frame []byte) ([]byte, bool) {
	i := 0
	src := func() (byte, bool) {
		if i >= len(frame) {
			return 0, false
		}
		b := frame[i]
		i++
		return b, true
	}
	h := stream.NewHexInput(src)
	var out []byte
	for h.HasNext() {
		b, ok := h.Next()
		if !ok {
			break
		}
		out = append(out, b)
	}
	return out, len(out) > 0
}

func verifyCRC(raw []byte) bool {
	crc := stream.NewCRCOutput(stream.NewCountingOutput())
	_ = crc.WriteBuffer(raw)
	return crc.CRC() == 0
}

// encodeChunks hex-encodes each chunk and joins them with '|', matching
// §6: "chunks may be separated by |".
func encodeChunks(chunks [][]byte) []byte {
	out := stream.NewByteBufferOutput()
	hx := stream.NewHexOutput(out)
	for i, c := range chunks {
		if i > 0 {
			_ = out.Write('|')
		}
		_ = hx.WriteBuffer(c)
	}
	return out.Bytes()
}
