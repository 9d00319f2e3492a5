// Package radio defines the addressed datagram service both nodes talk
// through, and the links that implement it.
package radio

import (
	"context"
	"errors"
	"time"
)

// MaxMessageLen is the largest payload one datagram carries.
const MaxMessageLen = 60

// Confirmation is the byte the gateway replies with once a group is stored.
const Confirmation byte = 0xAA

var (
	// ErrNotAcknowledged means the link gave up on delivering a datagram
	// after its own retries.
	ErrNotAcknowledged = errors.New("radio: datagram not acknowledged")
	// ErrTimeout means no datagram arrived within the wait.
	ErrTimeout = errors.New("radio: receive timed out")

	ErrPayloadTooLarge = errors.New("radio: payload exceeds maximum message length")
	ErrClosed          = errors.New("radio: link closed")
)

type Address uint8

type Datagram struct {
	From    Address
	Payload []byte
}

// Service is the packet radio as the core sees it. Send returns nil only when
// the link layer reports delivery; whether the peer application accepted the
// payload is a separate reply datagram.
type Service interface {
	Send(ctx context.Context, payload []byte, to Address) error
	// Available reports whether a datagram is waiting.
	Available() bool
	// Receive waits up to timeout for the next datagram. A zero timeout only
	// returns an already queued datagram.
	Receive(ctx context.Context, timeout time.Duration) (Datagram, error)
	// Sleep puts the transceiver into its low-power state until the next Send.
	Sleep() error
}

func checkPayload(payload []byte) error {
	if len(payload) > MaxMessageLen {
		return ErrPayloadTooLarge
	}
	return nil
}

// receive pops from inbox, honouring timeout semantics shared by the links.
func receive(ctx context.Context, inbox <-chan Datagram, done <-chan struct{}, timeout time.Duration) (Datagram, error) {
	select {
	case dg := <-inbox:
		return dg, nil
	default:
	}
	if timeout <= 0 {
		return Datagram{}, ErrTimeout
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case dg := <-inbox:
		return dg, nil
	case <-timer.C:
		return Datagram{}, ErrTimeout
	case <-done:
		return Datagram{}, ErrClosed
	case <-ctx.Done():
		return Datagram{}, ctx.Err()
	}
}
