package sensor

import (
	"errors"
	"fmt"
	"time"

	"go.bug.st/serial"
)

// ErrReadTimeout means the IR head sent nothing within the read timeout.
var ErrReadTimeout = errors.New("sensor: serial read timed out")

// Source is the byte stream of the IR head.
type Source interface {
	Read(p []byte) (int, error)
	// ResetInput drops bytes buffered while the node slept.
	ResetInput() error
}

// SerialSource reads the IR head through a serial port.
type SerialSource struct {
	port serial.Port
}

func OpenSerial(name string, baud int, readTimeout time.Duration) (*SerialSource, error) {
	port, err := serial.Open(name, &serial.Mode{
		BaudRate: baud,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	})
	if err != nil {
		return nil, fmt.Errorf("open serial port %s: %w", name, err)
	}
	if err := port.SetReadTimeout(readTimeout); err != nil {
		_ = port.Close()
		return nil, fmt.Errorf("set read timeout on %s: %w", name, err)
	}
	return &SerialSource{port: port}, nil
}

// Read reports a silent line as ErrReadTimeout instead of an empty read.
func (s *SerialSource) Read(p []byte) (int, error) {
	n, err := s.port.Read(p)
	if n == 0 && err == nil {
		return 0, ErrReadTimeout
	}
	return n, err
}

func (s *SerialSource) ResetInput() error { return s.port.ResetInputBuffer() }

func (s *SerialSource) Close() error { return s.port.Close() }
