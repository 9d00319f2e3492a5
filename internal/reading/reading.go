package reading

import (
	"encoding/binary"

	"github.com/wunderabt/power-meter/internal/sml"
)

// Reading is one sample: the raw SML timestamp and power fields plus the
// node's battery voltage at sampling time.
type Reading struct {
	Timestamp         [sml.TimestampLen]byte
	Power             [sml.PowerLen]byte
	BatteryMillivolts uint16
}

func New(f sml.Frame, batteryMillivolts uint16) Reading {
	return Reading{
		Timestamp:         f.Timestamp,
		Power:             f.Power,
		BatteryMillivolts: batteryMillivolts,
	}
}

// Group names the field-groups in transmission order.
type Group int

const (
	GroupTimestamp Group = iota
	GroupPower
	GroupBattery
)

func (g Group) String() string {
	switch g {
	case GroupTimestamp:
		return "timestamp"
	case GroupPower:
		return "power"
	case GroupBattery:
		return "battery"
	default:
		return "unknown"
	}
}

const BatteryLen = 2

// Groups returns the payloads sent for r, ordered timestamp, power, battery.
// The battery value is little-endian.
func (r Reading) Groups() [3][]byte {
	battery := make([]byte, BatteryLen)
	binary.LittleEndian.PutUint16(battery, r.BatteryMillivolts)

	ts := r.Timestamp
	power := r.Power
	return [3][]byte{ts[:], power[:], battery}
}
