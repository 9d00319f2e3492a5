// Package bus arbitrates the shared peripheral bus between the storage card,
// the network interface and the radio.
package bus

import (
	"fmt"
	"log/slog"
	"sync"

	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"

	"github.com/wunderabt/power-meter/internal/logging"
)

type Peripheral int

const (
	Storage Peripheral = iota
	Network
	Radio

	numPeripherals
)

func (p Peripheral) String() string {
	switch p {
	case Storage:
		return "storage"
	case Network:
		return "network"
	case Radio:
		return "radio"
	default:
		return fmt.Sprintf("peripheral(%d)", int(p))
	}
}

// Selector claims the bus for one peripheral ahead of its next transaction.
type Selector interface {
	Select(p Peripheral) error
}

// Line is one chip-select output. gpio.PinOut satisfies it.
type Line interface {
	Out(l gpio.Level) error
}

type noLine struct{}

func (noLine) Out(gpio.Level) error { return nil }

// Lines holds one select line per peripheral.
type Lines [numPeripherals]Line

// LinesByName resolves GPIO names through the periph registry. An empty name
// means the peripheral has no select line on this board.
func LinesByName(storage, network, radio string) (Lines, error) {
	var lines Lines
	for p, name := range [numPeripherals]string{storage, network, radio} {
		if name == "" {
			lines[p] = noLine{}
			continue
		}
		pin := gpioreg.ByName(name)
		if pin == nil {
			return Lines{}, fmt.Errorf("invalid %s select pin %q: not found", Peripheral(p), name)
		}
		lines[p] = pin
	}
	return lines, nil
}

// Arbiter drives active-low select lines so that at most one is asserted.
type Arbiter struct {
	mu      sync.Mutex
	lines   Lines
	current Peripheral
	valid   bool
	logger  *slog.Logger
}

func NewArbiter(lines Lines, logger *slog.Logger) *Arbiter {
	for i := range lines {
		if lines[i] == nil {
			lines[i] = noLine{}
		}
	}
	return &Arbiter{lines: lines, logger: logging.OrDefault(logger)}
}

// Select deasserts every other line, then asserts the one for p.
func (a *Arbiter) Select(p Peripheral) error {
	if p < 0 || p >= numPeripherals {
		return fmt.Errorf("select %s: unknown peripheral", p)
	}
	a.mu.Lock()
	defer a.mu.Unlock()

	for other := Peripheral(0); other < numPeripherals; other++ {
		if other == p {
			continue
		}
		if err := a.lines[other].Out(gpio.High); err != nil {
			a.valid = false
			return fmt.Errorf("deselect %s: %w", other, err)
		}
	}
	if err := a.lines[p].Out(gpio.Low); err != nil {
		a.valid = false
		return fmt.Errorf("select %s: %w", p, err)
	}

	if !a.valid || a.current != p {
		a.logger.Debug("bus selected", "peripheral", p.String())
	}
	a.current, a.valid = p, true
	return nil
}

// Current returns the peripheral selected last, if any.
func (a *Arbiter) Current() (Peripheral, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.current, a.valid
}
