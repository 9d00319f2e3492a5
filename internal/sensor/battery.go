package sensor

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

// Battery reports the supply voltage of the node.
type Battery interface {
	Millivolts() (uint16, error)
}

// SysfsBattery reads a power_supply voltage_now file, which holds
// microvolts.
type SysfsBattery struct {
	Path string
}

func (b SysfsBattery) Millivolts() (uint16, error) {
	raw, err := os.ReadFile(b.Path)
	if err != nil {
		return 0, fmt.Errorf("read battery voltage: %w", err)
	}
	uv, err := strconv.ParseInt(strings.TrimSpace(string(raw)), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid battery voltage %q: %w", strings.TrimSpace(string(raw)), err)
	}
	mv := uv / 1000
	if mv < 0 || mv > 0xFFFF {
		return 0, fmt.Errorf("battery voltage %d mV out of range", mv)
	}
	return uint16(mv), nil
}

// NoBattery is used on mains-powered nodes; it always reports 0 mV.
type NoBattery struct{}

func (NoBattery) Millivolts() (uint16, error) { return 0, nil }
