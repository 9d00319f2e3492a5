// Package delivery hands buffered readings to the gateway one field-group at
// a time, each group confirmed by the gateway before the next is sent.
package delivery

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/wunderabt/power-meter/internal/logging"
	"github.com/wunderabt/power-meter/internal/radio"
	"github.com/wunderabt/power-meter/internal/reading"
)

const (
	DefaultRetryLimit     = 20
	DefaultRetryPause     = 2 * time.Second
	DefaultConfirmTimeout = 2 * time.Second
)

// Outcome is the result of sending one field-group. The radio acknowledging
// a send and the gateway confirming it are reported separately.
type Outcome int

const (
	Confirmed Outcome = iota
	// SendFailed means the radio service reported the datagram undelivered.
	SendFailed
	// ConfirmTimeout means the radio delivered but no reply came from the
	// gateway in time.
	ConfirmTimeout
)

func (o Outcome) String() string {
	switch o {
	case Confirmed:
		return "confirmed"
	case SendFailed:
		return "send_failed"
	case ConfirmTimeout:
		return "confirm_timeout"
	default:
		return "unknown"
	}
}

// Report describes what happened to one reading.
type Report struct {
	Attempts  int
	Delivered bool
	// Group and Outcome describe the failure that ended the last attempt.
	Group   reading.Group
	Outcome Outcome
}

type Options struct {
	Gateway        radio.Address
	RetryLimit     int
	RetryPause     time.Duration
	ConfirmTimeout time.Duration
}

type Protocol struct {
	radio  radio.Service
	opts   Options
	logger *slog.Logger

	// pause waits between failed attempts; replaced in tests.
	pause func(ctx context.Context, d time.Duration) error
}

func New(r radio.Service, opts Options, logger *slog.Logger) *Protocol {
	if opts.RetryLimit <= 0 {
		opts.RetryLimit = DefaultRetryLimit
	}
	if opts.RetryPause < 0 {
		opts.RetryPause = DefaultRetryPause
	}
	if opts.ConfirmTimeout <= 0 {
		opts.ConfirmTimeout = DefaultConfirmTimeout
	}
	return &Protocol{
		radio:  r,
		opts:   opts,
		logger: logging.OrDefault(logger),
		pause:  sleepCtx,
	}
}

// Deliver sends every reading in order. A reading that exhausts its retries
// is given up on and the next one is tried. Only context cancellation stops
// the loop early.
func (p *Protocol) Deliver(ctx context.Context, readings []reading.Reading) ([]Report, error) {
	reports := make([]Report, 0, len(readings))
	for i, r := range readings {
		rep, err := p.DeliverOne(ctx, r)
		if err != nil {
			return reports, err
		}
		reports = append(reports, rep)
		if !rep.Delivered {
			p.logger.Warn("reading abandoned",
				"index", i,
				"attempts", rep.Attempts,
				"group", rep.Group.String(),
				"outcome", rep.Outcome.String(),
			)
		}
	}
	return reports, nil
}

// DeliverOne runs up to RetryLimit attempts for r. An attempt succeeds only
// when all three groups are confirmed within it.
func (p *Protocol) DeliverOne(ctx context.Context, r reading.Reading) (Report, error) {
	var rep Report
	groups := r.Groups()
	for rep.Attempts < p.opts.RetryLimit {
		if rep.Attempts > 0 {
			if err := p.pause(ctx, p.opts.RetryPause); err != nil {
				return rep, err
			}
		}
		rep.Attempts++

		group, outcome, err := p.attempt(ctx, groups)
		if err != nil {
			return rep, err
		}
		if outcome == Confirmed {
			rep.Delivered = true
			rep.Group, rep.Outcome = 0, Confirmed
			return rep, nil
		}
		rep.Group, rep.Outcome = group, outcome
		p.logger.Debug("delivery attempt failed",
			"attempt", rep.Attempts,
			"group", group.String(),
			"outcome", outcome.String(),
		)
	}
	return rep, nil
}

// attempt sends the groups in order and stops at the first one not confirmed.
func (p *Protocol) attempt(ctx context.Context, groups [3][]byte) (reading.Group, Outcome, error) {
	for g, payload := range groups {
		outcome, err := p.SendGroup(ctx, payload)
		if err != nil {
			return reading.Group(g), outcome, err
		}
		if outcome != Confirmed {
			return reading.Group(g), outcome, nil
		}
	}
	return 0, Confirmed, nil
}

// SendGroup sends payload to the gateway and waits for its confirmation.
func (p *Protocol) SendGroup(ctx context.Context, payload []byte) (Outcome, error) {
	p.discardQueued(ctx)
	if err := p.radio.Send(ctx, payload, p.opts.Gateway); err != nil {
		if ctx.Err() != nil {
			return SendFailed, ctx.Err()
		}
		p.logger.Debug("radio send failed", "error", err, "bytes", len(payload))
		return SendFailed, nil
	}
	return p.awaitConfirmation(ctx)
}

// discardQueued drops datagrams that arrived before this send, such as a
// confirmation for an earlier group that came in after its timeout.
func (p *Protocol) discardQueued(ctx context.Context) {
	for p.radio.Available() {
		dg, err := p.radio.Receive(ctx, 0)
		if err != nil {
			return
		}
		p.logger.Debug("discarding late datagram", "from", dg.From, "bytes", len(dg.Payload))
	}
}

// awaitConfirmation accepts any datagram from the gateway. Datagrams from
// other nodes are discarded without extending the wait.
func (p *Protocol) awaitConfirmation(ctx context.Context) (Outcome, error) {
	deadline := time.Now().Add(p.opts.ConfirmTimeout)
	for {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return ConfirmTimeout, nil
		}
		dg, err := p.radio.Receive(ctx, remaining)
		switch {
		case err == nil:
			if dg.From == p.opts.Gateway {
				return Confirmed, nil
			}
			p.logger.Debug("ignoring datagram from unexpected node", "from", dg.From)
		case errors.Is(err, radio.ErrTimeout):
			return ConfirmTimeout, nil
		case ctx.Err() != nil:
			return ConfirmTimeout, ctx.Err()
		default:
			p.logger.Debug("radio receive failed", "error", err)
			return ConfirmTimeout, nil
		}
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
