package storage

import (
	"bytes"
	"testing"

	"brewbox-controlbox/errcode"
	"brewbox-controlbox/internal/stream"
)

func newEngine(t *testing.T, size int) *Engine {
	t.Helper()
	e, err := Open(NewMemBacking(size), nil, nil)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	return e
}

func writeBytes(b []byte) ObjectWriter {
	return func(out stream.Output) error { return out.WriteBuffer(b) }
}

func readInto(dst *[]byte) ObjectReader {
	return func(in stream.Input) error {
		var buf []byte
		for in.HasNext() {
			b, _ := in.Next()
			buf = append(buf, b)
		}
		*dst = buf
		return nil
	}
}

func TestStoreRetrieveRoundTrip(t *testing.T) {
	e := newEngine(t, 4096)
	payload := []byte("hello, brewery")
	if err := e.Store(100, 0xFF, 42, writeBytes(payload)); err != nil {
		t.Fatalf("Store: %v", err)
	}
	var got []byte
	groups, typeID, err := e.Retrieve(100, readInto(&got))
	if err != nil {
		t.Fatalf("Retrieve: %v", err)
	}
	if groups != 0xFF || typeID != 42 {
		t.Errorf("groups/typeID = %v/%v, want 0xFF/42", groups, typeID)
	}
	if !bytes.Equal(got, payload) {
		t.Errorf("got %q, want %q", got, payload)
	}
}

func TestStoreReplaceGrowsBlock(t *testing.T) {
	e := newEngine(t, 4096)
	if err := e.Store(100, 1, 1, writeBytes([]byte("short"))); err != nil {
		t.Fatalf("Store: %v", err)
	}
	big := bytes.Repeat([]byte("x"), 500)
	if err := e.Store(100, 1, 1, writeBytes(big)); err != nil {
		t.Fatalf("Store (grow): %v", err)
	}
	var got []byte
	if _, _, err := e.Retrieve(100, readInto(&got)); err != nil {
		t.Fatalf("Retrieve: %v", err)
	}
	if !bytes.Equal(got, big) {
		t.Errorf("got %d bytes, want %d", len(got), len(big))
	}
}

func TestDisposeAndFreeSpace(t *testing.T) {
	e := newEngine(t, 4096)
	_ = e.Store(100, 1, 1, writeBytes([]byte("aaaa")))
	before := e.FreeSpace()
	_ = e.Dispose(100)
	after := e.FreeSpace()
	if after <= before {
		t.Errorf("FreeSpace should grow after Dispose: before=%d after=%d", before, after)
	}
	if _, _, err := e.Retrieve(100, readInto(new([]byte))); err != errcode.PersistedObjectNotFound {
		t.Errorf("Retrieve after Dispose: err=%v, want PersistedObjectNotFound", err)
	}
}

func TestNoAdjacentDisposedBlocks(t *testing.T) {
	e := newEngine(t, 4096)
	for id := uint16(100); id < 106; id++ {
		_ = e.Store(id, 1, 1, writeBytes([]byte("payload-data")))
	}
	for id := uint16(100); id < 105; id++ {
		_ = e.Dispose(id)
	}
	assertNoAdjacentDisposed(t, e)
}

func assertNoAdjacentDisposed(t *testing.T, e *Engine) {
	t.Helper()
	var prevDisposed bool
	e.walk(func(loc blockLoc) bool {
		if loc.bt == blockDisposed {
			if prevDisposed {
				t.Errorf("found two adjacent disposed blocks at offset %d", loc.off)
			}
			prevDisposed = true
		} else {
			prevDisposed = false
		}
		return true
	})
}

func TestDefragIdempotent(t *testing.T) {
	e := newEngine(t, 4096)
	for id := uint16(100); id < 110; id++ {
		_ = e.Store(id, 1, 1, writeBytes(bytes.Repeat([]byte{byte(id)}, 20)))
	}
	for id := uint16(100); id < 110; id += 2 {
		_ = e.Dispose(id)
	}
	e.Defrag()
	assertNoAdjacentDisposed(t, e)
	free1 := e.FreeSpace()

	e.Defrag()
	free2 := e.FreeSpace()
	if free1 != free2 {
		t.Errorf("second Defrag changed FreeSpace: %d -> %d", free1, free2)
	}

	// Surviving objects must still read back correctly after defrag moves
	// them.
	for id := uint16(101); id < 110; id += 2 {
		var got []byte
		if _, _, err := e.Retrieve(id, readInto(&got)); err != nil {
			t.Errorf("Retrieve(%d) after defrag: %v", id, err)
		}
	}
}

func TestCRCFlipDetected(t *testing.T) {
	e := newEngine(t, 4096)
	_ = e.Store(100, 1, 1, writeBytes([]byte("checked payload")))

	loc, ok := e.findBlock(100)
	if !ok {
		t.Fatal("block not found")
	}
	// Flip a bit inside the object-specific bytes region.
	buf := make([]byte, 1)
	_, _ = e.b.ReadAt(buf, loc.payloadOff()+8)
	buf[0] ^= 0x01
	_, _ = e.b.WriteAt(buf, loc.payloadOff()+8)

	if _, _, err := e.Retrieve(100, readInto(new([]byte))); err != errcode.CRCErrorInStoredObject {
		t.Errorf("err = %v, want CRCErrorInStoredObject", err)
	}
}

func TestRetrieveAllSkipsCorruptBlocks(t *testing.T) {
	e := newEngine(t, 4096)
	_ = e.Store(100, 1, 1, writeBytes([]byte("good-one")))
	_ = e.Store(101, 1, 1, writeBytes([]byte("good-two")))

	loc, _ := e.findBlock(101)
	buf := make([]byte, 1)
	_, _ = e.b.ReadAt(buf, loc.payloadOff()+8)
	buf[0] ^= 0xFF
	_, _ = e.b.WriteAt(buf, loc.payloadOff()+8)

	var seen []uint16
	err := e.RetrieveAll(func(id uint16, groups byte, typeID uint16, in stream.Input) error {
		seen = append(seen, id)
		return nil
	})
	if err != nil {
		t.Fatalf("RetrieveAll: %v", err)
	}
	if len(seen) != 1 || seen[0] != 100 {
		t.Errorf("seen = %v, want [100]", seen)
	}
}

func TestClearErasesArena(t *testing.T) {
	e := newEngine(t, 4096)
	_ = e.Store(100, 1, 1, writeBytes([]byte("will be erased")))
	if err := e.Clear(); err != nil {
		t.Fatalf("Clear: %v", err)
	}
	if _, _, err := e.Retrieve(100, readInto(new([]byte))); err != errcode.PersistedObjectNotFound {
		t.Errorf("err = %v, want PersistedObjectNotFound", err)
	}
}

func TestInsufficientStorage(t *testing.T) {
	e := newEngine(t, 32) // tiny arena
	big := bytes.Repeat([]byte("z"), 100)
	err := e.Store(100, 1, 1, writeBytes(big))
	if err != errcode.InsufficientPersistentStorage {
		t.Errorf("err = %v, want InsufficientPersistentStorage", err)
	}
}
