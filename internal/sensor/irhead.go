package sensor

import (
	"fmt"

	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
)

// PowerPin switches the IR head supply. gpio.PinOut satisfies it.
type PowerPin interface {
	Out(l gpio.Level) error
}

type alwaysOn struct{}

func (alwaysOn) Out(gpio.Level) error { return nil }

// PowerPinByName looks the pin up in the periph registry. An empty name
// means the head is always powered.
func PowerPinByName(name string) (PowerPin, error) {
	if name == "" {
		return alwaysOn{}, nil
	}
	pin := gpioreg.ByName(name)
	if pin == nil {
		return nil, fmt.Errorf("invalid IR power pin %q: not found", name)
	}
	return pin, nil
}
