// Package forward publishes readings the gateway persisted as JSON
// telemetry. Forwarding is best effort and never holds up persistence.
package forward

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/sony/gobreaker"

	"github.com/wunderabt/power-meter/internal/decode"
	"github.com/wunderabt/power-meter/internal/logging"
)

// Publisher is the broker connection telemetry goes out on.
type Publisher interface {
	Publish(topic string, qos byte, retained bool, payload []byte) error
}

type Options struct {
	Topic     string
	StationID string
	Install   time.Time

	// Breaker settings; zero values fall back to defaults.
	MaxFailures int
	OpenFor     time.Duration
}

var ErrSkipped = errors.New("forward: breaker open, telemetry dropped")

type Forwarder struct {
	pub    Publisher
	opts   Options
	window *decode.Window
	cb     *gobreaker.CircuitBreaker
	seq    int
	logger *slog.Logger
}

func New(pub Publisher, opts Options, logger *slog.Logger) *Forwarder {
	if opts.MaxFailures <= 0 {
		opts.MaxFailures = 3
	}
	if opts.OpenFor <= 0 {
		opts.OpenFor = 30 * time.Second
	}
	logger = logging.OrDefault(logger)

	fails := uint32(opts.MaxFailures)
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    "telemetry",
		Timeout: opts.OpenFor,
		ReadyToTrip: func(c gobreaker.Counts) bool {
			return c.ConsecutiveFailures >= fails
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state changed", "breaker", name, "from", from.String(), "to", to.String())
		},
	})

	return &Forwarder{
		pub:    pub,
		opts:   opts,
		window: decode.NewWindow(opts.Install),
		cb:     cb,
		logger: logger,
	}
}

// Observe feeds one persisted group. When the group completes a reading the
// reading is published and published is true.
func (f *Forwarder) Observe(group []byte) (published bool, err error) {
	rec, ok, err := f.window.Push(group)
	if err != nil {
		return false, fmt.Errorf("decode reading: %w", err)
	}
	if !ok {
		return false, nil
	}

	f.seq++
	seq := f.seq
	t := Telemetry{
		StationID: f.opts.StationID,
		Timestamp: rec.Time,
		EnergyWh:  &rec.EnergyWh,
		Battery:   &rec.BatteryV,
		Uptime:    &rec.Uptime,
		Sequence:  &seq,
	}
	data, err := json.Marshal(t)
	if err != nil {
		return false, fmt.Errorf("marshal telemetry: %w", err)
	}

	_, err = f.cb.Execute(func() (interface{}, error) {
		return nil, f.pub.Publish(f.opts.Topic, 1, false, data)
	})
	switch {
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		return false, ErrSkipped
	case err != nil:
		return false, fmt.Errorf("publish telemetry: %w", err)
	}

	f.logger.Debug("telemetry published", "topic", f.opts.Topic, "sequence", seq)
	return true, nil
}
