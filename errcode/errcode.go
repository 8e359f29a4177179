// Package errcode defines the stable, wire-facing status codes the command
// dispatcher (internal/dispatch) and storage engine (internal/storage)
// report back to callers.
package errcode

// Code is a stable, wire-facing status identifier.
// It is a string newtype, comparable, allocation-free, and implements error.
type Code string

func (c Code) Error() string { return string(c) }

// Status taxonomy (non-exhaustive by design — new codes may be added
// without breaking existing wire values).
const (
	OK Code = "ok"

	UnknownCommand                Code = "unknown_command"
	InsufficientHeap              Code = "insufficient_heap"
	InsufficientPersistentStorage Code = "insufficient_persistent_storage"
	InvalidObjectID               Code = "invalid_object_id"
	ObjectNotWritable             Code = "object_not_writable"
	ObjectNotReadable             Code = "object_not_readable"
	ObjectNotCreatable            Code = "object_not_creatable"
	ObjectNotDeletable            Code = "object_not_deletable"
	InvalidObjectType             Code = "invalid_object_type"
	PersistedObjectNotFound       Code = "persisted_object_not_found"
	CRCErrorInStoredObject        Code = "crc_error_in_stored_object"
	PersistedBlockStreamError     Code = "persisted_block_stream_error"
	InputStreamReadError          Code = "input_stream_read_error"
	OutputStreamWriteError        Code = "output_stream_write_error"

	Error Code = "error" // generic fallback
)

// E wraps context and a cause around a Code.
type E struct {
	C   Code
	Op  string
	Msg string
	Err error
}

func (e *E) Error() string {
	if e.Msg != "" {
		return string(e.C) + ": " + e.Op + ": " + e.Msg
	}
	return string(e.C) + ": " + e.Op
}
func (e *E) Unwrap() error { return e.Err }
func (e *E) Code() Code    { return e.C }

// Wrap produces an *E carrying op, code and a cause.
func Wrap(op string, c Code, err error) *E {
	return &E{C: c, Op: op, Err: err}
}

// Of extracts a Code from an error, defaulting to Error. nil maps to OK.
func Of(err error) Code {
	if err == nil {
		return OK
	}
	if c, ok := err.(Code); ok {
		return c
	}
	type coder interface{ Code() Code }
	if x, ok := err.(coder); ok {
		return x.Code()
	}
	return Error
}

// wireCode is the 2-byte status value the command dispatcher (§4.7)
// places on the wire. Values are stable once assigned; new codes are
// appended, never renumbered.
var wireCode = map[Code]uint16{
	OK:                            0,
	UnknownCommand:                1,
	InsufficientHeap:              2,
	InsufficientPersistentStorage: 3,
	InvalidObjectID:               4,
	ObjectNotWritable:             5,
	ObjectNotReadable:             6,
	ObjectNotCreatable:            7,
	ObjectNotDeletable:            8,
	InvalidObjectType:             9,
	PersistedObjectNotFound:       10,
	CRCErrorInStoredObject:        11,
	PersistedBlockStreamError:     12,
	InputStreamReadError:          13,
	OutputStreamWriteError:        14,
	Error:                         0xFFFF,
}

// Wire returns the 2-byte wire status value for c, or the generic Error
// value if c is not in the known taxonomy.
func (c Code) Wire() uint16 {
	if v, ok := wireCode[c]; ok {
		return v
	}
	return wireCode[Error]
}
