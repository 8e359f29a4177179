// Package storage implements the EEPROM-backed block allocator (§3.3, §4.2
// of the controller spec): a linear sequence of variable-sized, typed
// blocks with a defragmenting allocator and CRC-guarded object payloads.
//
// Grounded on controlbox/src/cbox/EepromObjectStorage.h from the original
// firmware. The raw EEPROM driver is out of scope (§1); this package talks
// to storage only through the Backing interface, which a real driver would
// implement and which tests satisfy with an in-memory mock, per the design
// notes' requirement that storage be injectable for tests.
package storage

import (
	"log/slog"

	"brewbox-controlbox/errcode"
	"brewbox-controlbox/internal/stream"
)

// Backing is the raw byte-addressable arena the allocator manages.
type Backing interface {
	Size() int
	ReadAt(p []byte, off int) (int, error)
	WriteAt(p []byte, off int) (int, error)
}

// MemBacking is an in-memory Backing, the "in-memory mock" the design
// notes call for tests to substitute for a real EEPROM driver.
type MemBacking struct{ buf []byte }

func NewMemBacking(size int) *MemBacking { return &MemBacking{buf: make([]byte, size)} }

func (m *MemBacking) Size() int { return len(m.buf) }
func (m *MemBacking) ReadAt(p []byte, off int) (int, error) {
	n := copy(p, m.buf[off:])
	return n, nil
}
func (m *MemBacking) WriteAt(p []byte, off int) (int, error) {
	n := copy(m.buf[off:], p)
	return n, nil
}

const (
	magicByte   = 0x69
	versionByte = 0x01

	headerSize = 3 // blockType(1) + blockLength(2, LE)

	// Fixed fields of an object block payload, excluding object-specific
	// bytes: actualDataSize(2) + id(2) + groups(1) + typeId(2) + crc(1).
	objFixedFields = 8

	// Disposed fragments smaller than this (payload bytes, i.e. excluding
	// the fragment's own header) are never created by a split; the
	// remainder is left attached to the allocated block instead.
	minDisposedPayload = 8

	arenaHeaderSize = 2 // magic + version
)

type blockType byte

const (
	blockInvalid  blockType = 0
	blockObject   blockType = 1
	blockDisposed blockType = 2
)

// WatchdogKicker is called periodically during long synchronous operations
// (defrag) so an embedded caller can service its watchdog between blocks,
// per §5 "the watchdog must be kicked between blocks". Nil is a valid,
// no-op kicker.
type WatchdogKicker func()

// ObjectWriter streams an object's bytes to out. Called at most once per
// Store call; Store determines placement from the rendered size.
type ObjectWriter func(out stream.Output) error

// ObjectReader consumes an object's bytes from in.
type ObjectReader func(in stream.Input) error

// Engine is the block storage engine (C2).
type Engine struct {
	b       Backing
	objEnd  int // exclusive end of the managed arena
	kicker  WatchdogKicker
	log     *slog.Logger
}

// Open attaches to an existing arena, validating the header. A magic/
// version mismatch causes a full erase (Clear), per §3.3.
func Open(b Backing, kicker WatchdogKicker, log *slog.Logger) (*Engine, error) {
	if log == nil {
		log = slog.Default()
	}
	e := &Engine{b: b, objEnd: b.Size(), kicker: kicker, log: log}
	hdr := make([]byte, arenaHeaderSize)
	_, _ = b.ReadAt(hdr, 0)
	if hdr[0] != magicByte || hdr[1] != versionByte {
		if err := e.Clear(); err != nil {
			return nil, err
		}
	}
	return e, nil
}

// Clear erases the arena: rewrites the header and marks the whole arena as
// one disposed block.
func (e *Engine) Clear() error {
	hdr := []byte{magicByte, versionByte}
	if _, err := e.b.WriteAt(hdr, 0); err != nil {
		return err
	}
	payload := e.objEnd - arenaHeaderSize - headerSize
	if payload < 0 {
		payload = 0
	}
	return e.writeHeader(arenaHeaderSize, blockDisposed, uint16(payload))
}

func (e *Engine) objectsStart() int { return arenaHeaderSize }

// ---- header I/O ----

func (e *Engine) readHeader(off int) (blockType, int, bool) {
	if off+headerSize > e.objEnd {
		return blockInvalid, 0, false
	}
	buf := make([]byte, headerSize)
	if _, err := e.b.ReadAt(buf, off); err != nil {
		return blockInvalid, 0, false
	}
	bt := blockType(buf[0])
	length := int(buf[1]) | int(buf[2])<<8
	return bt, length, true
}

func (e *Engine) writeHeader(off int, bt blockType, length uint16) error {
	buf := []byte{byte(bt), byte(length), byte(length >> 8)}
	_, err := e.b.WriteAt(buf, off)
	return err
}

type blockLoc struct {
	off       int // offset of the block's header
	blockLen  int // blockLength field (payload bytes after the header)
	bt        blockType
}

func (b blockLoc) payloadOff() int { return b.off + headerSize }
func (b blockLoc) end() int        { return b.off + headerSize + b.blockLen }

// walk visits every block in address order, stopping early if visit
// returns false.
func (e *Engine) walk(visit func(blockLoc) bool) {
	off := e.objectsStart()
	for off+headerSize <= e.objEnd {
		bt, length, ok := e.readHeader(off)
		if !ok || bt == blockInvalid {
			return
		}
		loc := blockLoc{off: off, blockLen: length, bt: bt}
		if !visit(loc) {
			return
		}
		off = loc.end()
	}
}

// findBlock returns the object block holding id, if any.
func (e *Engine) findBlock(id uint16) (blockLoc, bool) {
	var found blockLoc
	var ok bool
	e.walk(func(loc blockLoc) bool {
		if loc.bt != blockObject {
			return true
		}
		idBuf := make([]byte, 2)
		_, _ = e.b.ReadAt(idBuf, loc.payloadOff()+2) // actualDataSize(2), then id(2)
		gotID := uint16(idBuf[0]) | uint16(idBuf[1])<<8
		if gotID == id {
			found, ok = loc, true
			return false
		}
		return true
	})
	return found, ok
}

// ---- rendering an object's bytes, CRC-sealed, before placement ----

func renderObject(id uint16, groups byte, typeID uint16, w ObjectWriter) (objBytes []byte, crc byte, err error) {
	buf := stream.NewByteBufferOutput()
	counter := stream.NewCountingOutput()
	tee := stream.NewTeeOutput(buf, counter)
	crcOut := stream.NewCRCOutput(tee)
	crcOut.SeedID(id)
	if err = w(crcOut); err != nil {
		return nil, 0, err
	}
	return buf.Bytes(), crcOut.CRC(), nil
}

// Store persists id's bytes (streamed by w), replacing any existing block
// for id. groups and typeID are written into the object's fixed payload
// fields.
func (e *Engine) Store(id uint16, groups byte, typeID uint16, w ObjectWriter) error {
	objBytes, crc, err := renderObject(id, groups, typeID, w)
	if err != nil {
		return err
	}
	needed := objFixedFields + len(objBytes)

	existing, hasExisting := e.findBlock(id)
	if hasExisting && existing.blockLen >= needed {
		return e.writeObjectInto(existing.off, existing.blockLen, id, groups, typeID, objBytes, crc)
	}

	if hasExisting {
		if err := e.disposeAt(existing); err != nil {
			return err
		}
		e.mergeAdjacentDisposed()
	}

	overProvision := needed / 8
	if overProvision < 4 {
		overProvision = 4
	}
	allocLen := needed + overProvision

	loc, ok := e.allocate(allocLen)
	if !ok {
		e.Defrag()
		loc, ok = e.allocate(allocLen)
		if !ok {
			loc, ok = e.allocate(needed)
			if !ok {
				return errcode.InsufficientPersistentStorage
			}
		}
	}
	return e.writeObjectInto(loc.off, loc.blockLen, id, groups, typeID, objBytes, crc)
}

// writeObjectInto writes the object fields into a block already sized to
// hold them, patching actualDataSize to the bytes actually used.
func (e *Engine) writeObjectInto(off, blockLen int, id uint16, groups byte, typeID uint16, objBytes []byte, crc byte) error {
	payload := make([]byte, 0, objFixedFields+len(objBytes))
	used := uint16(2 + 2 + 1 + 2 + len(objBytes) + 1) // actualDataSize+id+groups+typeId+obj+crc
	payload = append(payload, byte(used), byte(used>>8))
	payload = append(payload, byte(id), byte(id>>8))
	payload = append(payload, groups)
	payload = append(payload, byte(typeID), byte(typeID>>8))
	payload = append(payload, objBytes...)
	payload = append(payload, crc)

	if err := e.writeHeader(off, blockObject, uint16(blockLen)); err != nil {
		return err
	}
	_, err := e.b.WriteAt(payload, off+headerSize)
	return err
}

// Retrieve locates id's block and invokes r with an Input over the
// object-specific data only: the actualDataSize used bytes minus the fixed
// actualDataSize/id/groups/typeId fields and the trailing CRC byte.
// The CRC over {id XOR stored bytes} is verified first.
func (e *Engine) Retrieve(id uint16, r ObjectReader) (groups byte, typeID uint16, err error) {
	loc, ok := e.findBlock(id)
	if !ok {
		return 0, 0, errcode.PersistedObjectNotFound
	}
	raw := make([]byte, loc.blockLen)
	if _, err := e.b.ReadAt(raw, loc.payloadOff()); err != nil {
		return 0, 0, errcode.Wrap("retrieve", errcode.PersistedBlockStreamError, err)
	}
	used := int(raw[0]) | int(raw[1])<<8
	if used < objFixedFields || used > len(raw) {
		return 0, 0, errcode.CRCErrorInStoredObject
	}
	gotID := uint16(raw[2]) | uint16(raw[3])<<8
	groups = raw[4]
	typeID = uint16(raw[5]) | uint16(raw[6])<<8
	objBytes := raw[7 : used-1]
	storedCRC := raw[used-1]

	// Verify CRC over {id, then object-specific bytes, then the stored CRC
	// byte itself}, matching how renderObject seeded and accumulated it;
	// a correct CRC makes this settle to zero.
	var c byte
	c = crc8(c, byte(gotID))
	c = crc8(c, byte(gotID>>8))
	for _, b := range objBytes {
		c = crc8(c, b)
	}
	c = crc8(c, storedCRC)
	if c != 0 {
		return 0, 0, errcode.CRCErrorInStoredObject
	}

	in := stream.NewSliceInput(objBytes)
	if err := r(in); err != nil {
		return 0, 0, errcode.Wrap("retrieve", errcode.PersistedBlockStreamError, err)
	}
	return groups, typeID, nil
}

func crc8(crc, b byte) byte {
	crc ^= b
	for i := 0; i < 8; i++ {
		if crc&0x80 != 0 {
			crc = (crc << 1) ^ 0x31
		} else {
			crc <<= 1
		}
	}
	return crc
}

// RetrieveAllHandler is invoked once per valid object block found.
type RetrieveAllHandler func(id uint16, groups byte, typeID uint16, in stream.Input) error

// RetrieveAll iterates every object block; corrupt blocks are logged and
// skipped, a handler error aborts iteration.
func (e *Engine) RetrieveAll(h RetrieveAllHandler) error {
	var outerErr error
	e.walk(func(loc blockLoc) bool {
		if loc.bt != blockObject {
			return true
		}
		raw := make([]byte, loc.blockLen)
		if _, err := e.b.ReadAt(raw, loc.payloadOff()); err != nil {
			e.log.Warn("storage: block read failed, skipping", "off", loc.off, "err", err)
			return true
		}
		used := int(raw[0]) | int(raw[1])<<8
		if used < objFixedFields || used > len(raw) {
			e.log.Warn("storage: corrupt block length, skipping", "off", loc.off)
			return true
		}
		id := uint16(raw[2]) | uint16(raw[3])<<8
		groups := raw[4]
		typeID := uint16(raw[5]) | uint16(raw[6])<<8
		objBytes := raw[7 : used-1]
		storedCRC := raw[used-1]
		var c byte
		c = crc8(c, raw[2])
		c = crc8(c, raw[3])
		for _, b := range objBytes {
			c = crc8(c, b)
		}
		c = crc8(c, storedCRC)
		if c != 0 {
			e.log.Warn("storage: crc error, skipping", "id", id)
			return true
		}
		in := stream.NewSliceInput(objBytes)
		if err := h(id, groups, typeID, in); err != nil {
			outerErr = err
			return false
		}
		return true
	})
	return outerErr
}

// Dispose flips the block's type to disposed and merges adjacent disposed
// blocks.
func (e *Engine) Dispose(id uint16) error {
	loc, ok := e.findBlock(id)
	if !ok {
		return errcode.PersistedObjectNotFound
	}
	if err := e.disposeAt(loc); err != nil {
		return err
	}
	e.mergeAdjacentDisposed()
	return nil
}

func (e *Engine) disposeAt(loc blockLoc) error {
	return e.writeHeader(loc.off, blockDisposed, uint16(loc.blockLen))
}

// mergeAdjacentDisposed repeatedly merges neighboring disposed blocks until
// none remain adjacent, preserving §3.3's "no two adjacent disposed blocks"
// invariant.
func (e *Engine) mergeAdjacentDisposed() {
	for {
		merged := false
		off := e.objectsStart()
		for off+headerSize <= e.objEnd {
			bt, length, ok := e.readHeader(off)
			if !ok || bt == blockInvalid {
				break
			}
			next := off + headerSize + length
			if bt == blockDisposed && next+headerSize <= e.objEnd {
				nbt, nlen, ok2 := e.readHeader(next)
				if ok2 && nbt == blockDisposed {
					combined := length + headerSize + nlen
					_ = e.writeHeader(off, blockDisposed, uint16(combined))
					merged = true
					break
				}
			}
			off = next
		}
		if !merged {
			return
		}
	}
}

// allocate finds a disposed block able to hold need bytes of payload and
// converts it (splitting the remainder when it's large enough to stand as
// its own disposed fragment).
func (e *Engine) allocate(need int) (blockLoc, bool) {
	var chosen blockLoc
	var found bool
	e.walk(func(loc blockLoc) bool {
		if loc.bt == blockDisposed && loc.blockLen >= need {
			chosen, found = loc, true
			return false
		}
		return true
	})
	if !found {
		return blockLoc{}, false
	}
	remainder := chosen.blockLen - need
	if remainder >= headerSize+minDisposedPayload {
		// Split: consume `need`, leave the remainder disposed.
		if err := e.writeHeader(chosen.off, blockObject, uint16(need)); err != nil {
			return blockLoc{}, false
		}
		remOff := chosen.off + headerSize + need
		remPayload := remainder - headerSize
		if err := e.writeHeader(remOff, blockDisposed, uint16(remPayload)); err != nil {
			return blockLoc{}, false
		}
		return blockLoc{off: chosen.off, blockLen: need, bt: blockObject}, true
	}
	// Consume the whole disposed block, including any small remainder.
	if err := e.writeHeader(chosen.off, blockObject, uint16(chosen.blockLen)); err != nil {
		return blockLoc{}, false
	}
	return blockLoc{off: chosen.off, blockLen: chosen.blockLen, bt: blockObject}, true
}

// FreeSpace is the total disposed payload bytes across the arena.
func (e *Engine) FreeSpace() int {
	total := 0
	e.walk(func(loc blockLoc) bool {
		if loc.bt == blockDisposed {
			total += loc.blockLen
		}
		return true
	})
	return total
}

// ContinuousFreeSpace is the largest single disposed block's payload size.
func (e *Engine) ContinuousFreeSpace() int {
	max := 0
	e.walk(func(loc blockLoc) bool {
		if loc.bt == blockDisposed && loc.blockLen > max {
			max = loc.blockLen
		}
		return true
	})
	return max
}

// Defrag repeatedly merges adjacent disposed blocks and swaps the first
// disposed block with the object block immediately following it, crash-
// safely (§4.2): the combined region is first re-headered as one disposed
// block, the object bytes are copied forward, the tail re-headered as
// disposed, and finally the moved block's header rewritten as an object
// block. Terminates when no more swaps are possible.
func (e *Engine) Defrag() {
	kicks := 0
	for {
		e.mergeAdjacentDisposed()
		swapped := e.swapOnce()
		kicks++
		if e.kicker != nil && kicks%4 == 0 {
			e.kicker()
		}
		if !swapped {
			return
		}
	}
}

func (e *Engine) swapOnce() bool {
	var disposed, obj blockLoc
	var ok bool
	e.walk(func(loc blockLoc) bool {
		if loc.bt == blockDisposed {
			next := loc.end()
			if nbt, nlen, okh := e.readHeader(next); okh && nbt == blockObject {
				disposed = loc
				obj = blockLoc{off: next, blockLen: nlen, bt: blockObject}
				ok = true
				return false
			}
		}
		return true
	})
	if !ok {
		return false
	}

	objTotal := headerSize + obj.blockLen
	combinedLen := disposed.blockLen + objTotal
	objPayload := make([]byte, obj.blockLen)
	if _, err := e.b.ReadAt(objPayload, obj.payloadOff()); err != nil {
		return false
	}

	// Step 1: re-header the whole combined region as one disposed block.
	// A crash here leaves a single valid (larger) disposed block — the
	// object is lost, but layout stays intact.
	_ = e.writeHeader(disposed.off, blockDisposed, uint16(combinedLen))
	// Step 2: copy the object's payload bytes forward to immediately after
	// where its new header will go. The region still reads as disposed
	// until step 4, so a crash here is equally safe.
	if _, err := e.b.WriteAt(objPayload, disposed.off+headerSize); err != nil {
		return false
	}
	// Step 3: re-header the tail (now-vacated space after the moved
	// object) as disposed.
	tailOff := disposed.off + objTotal
	tailPayload := combinedLen - objTotal
	_ = e.writeHeader(tailOff, blockDisposed, uint16(tailPayload))
	// Step 4: finally rewrite the moved block's own header as an object
	// block — the only step that makes the move visible.
	_ = e.writeHeader(disposed.off, blockObject, uint16(obj.blockLen))
	return true
}
