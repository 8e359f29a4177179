// Package blocks supplies the concrete, testable core objects the brewery
// controller's surface protobuf blocks adapt (§1: "every surface block is
// a thin protobuf adapter around a core object; we specify the core
// object contracts, not per-block serialization glue"). Each type here is
// grounded on its original_source/app/brewblox/blox/*.h counterpart, with
// the actual control logic delegated to internal/actuator, internal/pwm,
// internal/pid, and internal/balancer.
package blocks

import (
	"brewbox-controlbox/errcode"
	"brewbox-controlbox/internal/fixedpoint"
	"brewbox-controlbox/internal/object"
	"brewbox-controlbox/internal/stream"
)

// TypeIDs for the factory registry (§4.15); 10..19 is this rendition's
// block range, chosen to sit clear of the 1..99 system catalogue (§4.14).
const (
	TypeTempSensorMock     object.TypeID = 10
	TypeCombiSensor        object.TypeID = 11
	TypeSetpointSensorPair object.TypeID = 12
	TypePid                object.TypeID = 13
	TypeActuatorPwm        object.TypeID = 14
	TypeDigitalActuator    object.TypeID = 15
	TypeMutex              object.TypeID = 16
	TypeAnalogActuatorMock object.TypeID = 17
)

// InterfaceIDs blocks expose to each other's lookup handles (C5/C4).
const (
	IfaceTempSensor          object.InterfaceID = 100
	IfacePidInput            object.InterfaceID = 101
	IfacePidOutput           object.InterfaceID = 102
	IfaceConstrainedActuator object.InterfaceID = 103
	IfaceMutexTarget         object.InterfaceID = 104
)

func writeU16(out stream.Output, v uint16) error {
	return out.WriteBuffer([]byte{byte(v >> 8), byte(v)})
}

func readU16(in stream.Input) (uint16, bool) {
	hi, ok := in.Next()
	if !ok {
		return 0, false
	}
	lo, ok := in.Next()
	if !ok {
		return 0, false
	}
	return uint16(hi)<<8 | uint16(lo), true
}

func writeTemp(out stream.Output, t fixedpoint.Temp) error {
	v := uint32(int32(t))
	return out.WriteBuffer([]byte{byte(v >> 24), byte(v >> 16), byte(v >> 8), byte(v)})
}

func readTemp(in stream.Input) (fixedpoint.Temp, bool) {
	var b [4]byte
	for i := range b {
		v, ok := in.Next()
		if !ok {
			return 0, false
		}
		b[i] = v
	}
	v := uint32(b[0])<<24 | uint32(b[1])<<16 | uint32(b[2])<<8 | uint32(b[3])
	return fixedpoint.Temp(int32(v)), true
}

func writeBool(out stream.Output, v bool) error {
	if v {
		return out.Write(1)
	}
	return out.Write(0)
}

func readBool(in stream.Input) (bool, bool) {
	v, ok := in.Next()
	return v != 0, ok
}

func errNotWritable() error {
	return errcode.Wrap("StreamFrom", errcode.ObjectNotWritable, nil)
}
