package blocks

import (
	"brewbox-controlbox/internal/fixedpoint"
	"brewbox-controlbox/internal/lookup"
	"brewbox-controlbox/internal/object"
	"brewbox-controlbox/internal/stream"
)

// CombineMode selects how CombiSensor reduces its up-to-3 looked-up
// sensors to a single value.
type CombineMode uint8

const (
	CombineAvg CombineMode = iota
	CombineMin
	CombineMax
)

const combiSensorCount = 3

// CombiSensor reduces up to 3 temperature sensors (resolved by weak
// lookup handle, C5) to a single value, grounded on
// original_source/app/brewblox/blox/CombiSensorBlock.h. A sensor slot
// with id 0 (unset) or whose lookup fails to resolve is skipped.
type CombiSensor struct {
	sensors [combiSensorCount]lookup.Lookup
	mode    CombineMode

	value fixedpoint.Temp
	valid bool
}

func NewCombiSensor(c lookup.Container) *CombiSensor {
	s := &CombiSensor{}
	for i := range s.sensors {
		s.sensors[i] = lookup.New(c)
	}
	return s
}

func (s *CombiSensor) SetSensor(i int, id object.ID) { s.sensors[i].SetID(id) }
func (s *CombiSensor) SensorID(i int) object.ID      { return s.sensors[i].GetID() }
func (s *CombiSensor) SetMode(m CombineMode)         { s.mode = m }
func (s *CombiSensor) Mode() CombineMode             { return s.mode }

func (s *CombiSensor) Value() (fixedpoint.Temp, bool) { return s.value, s.valid }

func (s *CombiSensor) recompute() {
	var values []fixedpoint.Temp
	for i := range s.sensors {
		sensor, ok := lookup.Lock[TempSensor](s.sensors[i], IfaceTempSensor)
		if !ok {
			continue
		}
		if v, ok := sensor.Value(); ok {
			values = append(values, v)
		}
	}
	if len(values) == 0 {
		s.valid = false
		s.value = 0
		return
	}
	switch s.mode {
	case CombineMin:
		v := values[0]
		for _, x := range values[1:] {
			if x < v {
				v = x
			}
		}
		s.value = v
	case CombineMax:
		v := values[0]
		for _, x := range values[1:] {
			if x > v {
				v = x
			}
		}
		s.value = v
	default: // CombineAvg
		var sum int64
		for _, x := range values {
			sum += int64(x)
		}
		s.value = fixedpoint.Temp(sum / int64(len(values)))
	}
	s.valid = true
}

func (s *CombiSensor) TypeID() object.TypeID { return TypeCombiSensor }

func (s *CombiSensor) StreamTo(out stream.Output) error {
	if err := out.Write(byte(s.mode)); err != nil {
		return err
	}
	for i := range s.sensors {
		if err := writeU16(out, uint16(s.sensors[i].GetID())); err != nil {
			return err
		}
	}
	if err := writeBool(out, s.valid); err != nil {
		return err
	}
	return writeTemp(out, s.value)
}

func (s *CombiSensor) StreamFrom(in stream.Input) error {
	modeByte, ok := in.Next()
	if !ok {
		return errNotWritable()
	}
	var ids [combiSensorCount]object.ID
	for i := range ids {
		id, ok := readU16(in)
		if !ok {
			return errNotWritable()
		}
		ids[i] = object.ID(id)
	}
	s.mode = CombineMode(modeByte)
	for i := range s.sensors {
		s.sensors[i].SetID(ids[i])
	}
	return nil
}

func (s *CombiSensor) StreamPersistedTo(out stream.Output) error {
	if err := out.Write(byte(s.mode)); err != nil {
		return err
	}
	for i := range s.sensors {
		if err := writeU16(out, uint16(s.sensors[i].GetID())); err != nil {
			return err
		}
	}
	return nil
}

func (s *CombiSensor) Update(now object.UpdateTime) object.UpdateTime {
	s.recompute()
	return now + 1000
}

func (s *CombiSensor) Implements(iface object.InterfaceID) any {
	switch iface {
	case object.InterfaceID(TypeCombiSensor):
		return s
	case IfaceTempSensor:
		return TempSensor(s)
	}
	return nil
}
