// Package decode turns persisted field-groups back into meter readings.
//
// A timestamp group carries the meter's seconds-since-install counter, a
// power group carries unit, scaler and an energy value, and a battery group
// carries little-endian millivolts. Values inside the SML groups start with a
// type-length byte whose high nibble is 5 (signed) or 6 (unsigned) and whose
// low nibble is the field length including that byte.
package decode

import (
	"errors"
	"fmt"
	"math"
	"time"
)

var ErrMalformed = errors.New("decode: malformed group")

// InstallLayout is the layout of the meter install date.
const InstallLayout = "2006-01-02T15:04:05"

const (
	TimestampGroupLen = 12
	BatteryGroupLen   = 2
)

// Record is one decoded reading.
type Record struct {
	Time     time.Time
	Uptime   int64
	EnergyWh float64
	BatteryV float64
}

// Field locates one value inside a group.
type Field struct {
	Offset int
	Len    int
}

// Value returns the bytes following the type-length byte.
func (f Field) Value(group []byte) []byte {
	end := f.Offset + f.Len
	if end > len(group) {
		end = len(group)
	}
	if f.Offset+1 > end {
		return nil
	}
	return group[f.Offset+1 : end]
}

// Fields lists the integer fields of group in order. Bytes inside a field
// are never taken as the start of another one.
func Fields(group []byte) []Field {
	var fields []Field
	for i := 0; i < len(group); i++ {
		hi, lo := group[i]>>4, int(group[i]&0x0F)
		if hi != 5 && hi != 6 {
			continue
		}
		fields = append(fields, Field{Offset: i, Len: lo})
		if lo > 1 {
			i += lo - 1
		}
	}
	return fields
}

// Int interprets b as a big-endian two's complement integer.
func Int(b []byte) (int64, error) {
	if len(b) == 0 || len(b) > 8 {
		return 0, fmt.Errorf("%w: %d byte integer", ErrMalformed, len(b))
	}
	var v int64
	if b[0]&0x80 != 0 {
		v = -1
	}
	for _, x := range b {
		v = v<<8 | int64(x)
	}
	return v, nil
}

// Uptime returns the seconds counter of a timestamp group, its second field.
func Uptime(group []byte) (int64, error) {
	return fieldInt(group, 1, "uptime")
}

// Energy returns the meter reading of a power group in Wh: the fourth field
// scaled by ten to the power of the third.
func Energy(group []byte) (float64, error) {
	scaler, err := fieldInt(group, 2, "scaler")
	if err != nil {
		return 0, err
	}
	value, err := fieldInt(group, 3, "value")
	if err != nil {
		return 0, err
	}
	return float64(value) * math.Pow10(int(scaler)), nil
}

// Battery returns the battery group in volts.
func Battery(group []byte) (float64, error) {
	if len(group) != BatteryGroupLen {
		return 0, fmt.Errorf("%w: battery group has %d bytes", ErrMalformed, len(group))
	}
	mv := uint16(group[0]) | uint16(group[1])<<8
	return float64(mv) / 1000, nil
}

func fieldInt(group []byte, idx int, name string) (int64, error) {
	fields := Fields(group)
	if len(fields) <= idx {
		return 0, fmt.Errorf("%w: no %s field", ErrMalformed, name)
	}
	v, err := Int(fields[idx].Value(group))
	if err != nil {
		return 0, fmt.Errorf("%s: %w", name, err)
	}
	return v, nil
}

// ValidTriplet reports whether ts, power and battery have the lengths of one
// reading. Power groups come in 16 and 20 byte variants.
func ValidTriplet(ts, power, battery []byte) bool {
	return len(ts) == TimestampGroupLen &&
		(len(power) == 16 || len(power) == 20) &&
		len(battery) == BatteryGroupLen
}

// Triplet decodes one reading.
func Triplet(ts, power, battery []byte, install time.Time) (Record, error) {
	up, err := Uptime(ts)
	if err != nil {
		return Record{}, err
	}
	wh, err := Energy(power)
	if err != nil {
		return Record{}, err
	}
	v, err := Battery(battery)
	if err != nil {
		return Record{}, err
	}
	return Record{
		Time:     install.Add(time.Duration(up) * time.Second),
		Uptime:   up,
		EnergyWh: wh,
		BatteryV: v,
	}, nil
}
