// Package sensor runs the sensor node: sample the meter, buffer a day of
// readings, hand them to the gateway, sleep.
package sensor

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"periph.io/x/conn/v3/gpio"

	"github.com/wunderabt/power-meter/internal/delivery"
	"github.com/wunderabt/power-meter/internal/dutycycle"
	"github.com/wunderabt/power-meter/internal/logging"
	"github.com/wunderabt/power-meter/internal/radio"
	"github.com/wunderabt/power-meter/internal/reading"
	"github.com/wunderabt/power-meter/internal/sml"
)

// RestartMessage is announced to the gateway once after boot.
var RestartMessage = []byte("restart\x00")

type Deps struct {
	Radio   radio.Service
	Source  Source
	IRPower PowerPin
	Battery Battery
	Sleeper dutycycle.Sleeper
}

type Options struct {
	BufferCapacity int
	SampleInterval time.Duration
	IRWarmup       time.Duration
	StartupGrace   time.Duration
	Delivery       delivery.Options
}

type Node struct {
	radio    radio.Service
	source   Source
	irPower  PowerPin
	battery  Battery
	buffer   *reading.Buffer
	protocol *delivery.Protocol
	duty     *dutycycle.Controller
	opts     Options
	logger   *slog.Logger

	// wait covers the IR warm-up; replaced in tests.
	wait func(ctx context.Context, d time.Duration) error
}

func New(d Deps, opts Options, logger *slog.Logger) *Node {
	logger = logging.OrDefault(logger)
	if d.IRPower == nil {
		d.IRPower = alwaysOn{}
	}
	if d.Battery == nil {
		d.Battery = NoBattery{}
	}
	return &Node{
		radio:    d.Radio,
		source:   d.Source,
		irPower:  d.IRPower,
		battery:  d.Battery,
		buffer:   reading.NewBuffer(opts.BufferCapacity),
		protocol: delivery.New(d.Radio, opts.Delivery, logger),
		duty:     dutycycle.NewController(d.Sleeper, logger),
		opts:     opts,
		logger:   logger,
		wait:     sleep,
	}
}

// Run announces the restart, waits out the start-up grace period and then
// cycles until ctx is cancelled.
func (n *Node) Run(ctx context.Context) error {
	n.Announce(ctx)
	if err := n.duty.Sleep(ctx, int(n.opts.StartupGrace/time.Second)); err != nil {
		return err
	}
	for {
		if err := n.Cycle(ctx); err != nil {
			return err
		}
	}
}

// Announce tells the gateway the node restarted. The outcome is only logged.
func (n *Node) Announce(ctx context.Context) {
	outcome, err := n.protocol.SendGroup(ctx, RestartMessage)
	if err != nil {
		n.logger.Warn("restart announcement aborted", "error", err)
	} else {
		n.logger.Info("restart announced", "outcome", outcome.String())
	}
	if err := n.radio.Sleep(); err != nil {
		n.logger.Warn("radio sleep failed", "error", err)
	}
}

// Cycle takes one sample, delivers the buffer once it is full and then
// sleeps for the sample interval. Only cancellation is returned as an error.
func (n *Node) Cycle(ctx context.Context) error {
	if err := n.sample(ctx); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		n.logger.Warn("sample discarded", "error", err)
	}

	if n.buffer.Full() {
		if err := n.drain(ctx); err != nil {
			return err
		}
	}

	return n.duty.Sleep(ctx, int(n.opts.SampleInterval/time.Second))
}

func (n *Node) sample(ctx context.Context) error {
	if err := n.irPower.Out(gpio.High); err != nil {
		return fmt.Errorf("power IR head: %w", err)
	}
	defer func() {
		if err := n.irPower.Out(gpio.Low); err != nil {
			n.logger.Warn("IR head power-off failed", "error", err)
		}
	}()
	if err := n.wait(ctx, n.opts.IRWarmup); err != nil {
		return err
	}
	if err := n.source.ResetInput(); err != nil {
		return fmt.Errorf("reset serial input: %w", err)
	}

	frame, err := sml.NewScanner(n.source).Scan()
	if err != nil {
		return err
	}

	mv, err := n.battery.Millivolts()
	if err != nil {
		n.logger.Warn("battery voltage unavailable", "error", err)
	}
	n.buffer.Push(reading.New(frame, mv))
	n.logger.Debug("reading buffered", "slot", n.buffer.Len(), "capacity", n.buffer.Cap())
	return nil
}

// drain empties the buffer whatever the delivery outcome.
func (n *Node) drain(ctx context.Context) error {
	readings := n.buffer.DrainAndReset()
	reports, err := n.protocol.Deliver(ctx, readings)
	if err != nil {
		return err
	}

	delivered := 0
	for _, r := range reports {
		if r.Delivered {
			delivered++
		}
	}
	n.logger.Info("buffer drained", "readings", len(readings), "delivered", delivered)

	if err := n.radio.Sleep(); err != nil {
		n.logger.Warn("radio sleep failed", "error", err)
	}
	return nil
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
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
