// Package gateway runs the gateway control loop: serve replay requests from
// the network and persist field-groups arriving over the radio.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"time"

	"github.com/wunderabt/power-meter/internal/bus"
	"github.com/wunderabt/power-meter/internal/forward"
	"github.com/wunderabt/power-meter/internal/logging"
	"github.com/wunderabt/power-meter/internal/metrics"
	"github.com/wunderabt/power-meter/internal/radio"
	"github.com/wunderabt/power-meter/internal/replay"
	"github.com/wunderabt/power-meter/internal/storage"
	"github.com/wunderabt/power-meter/internal/transport"
)

// Transport is the packet service replay requests arrive on.
type Transport interface {
	Poll(wait time.Duration) (transport.Packet, bool, error)
	Send(payload []byte, to net.Addr) error
}

// Observer sees every persisted group; the telemetry forwarder is one.
type Observer interface {
	Observe(group []byte) (bool, error)
}

type Deps struct {
	Radio     radio.Service
	Transport Transport
	Bus       bus.Selector
	Store     storage.Store
	Metrics   *metrics.Gateway
	Observer  Observer
}

type Options struct {
	PollInterval time.Duration
	ChunkSize    int
}

type Gateway struct {
	radio     radio.Service
	transport Transport
	bus       bus.Selector
	log       *storage.Log
	replay    *replay.Service
	metrics   *metrics.Gateway
	observer  Observer
	poll      time.Duration
	logger    *slog.Logger
}

func New(d Deps, opts Options, logger *slog.Logger) *Gateway {
	logger = logging.OrDefault(logger)
	if opts.PollInterval <= 0 {
		opts.PollInterval = 10 * time.Millisecond
	}
	return &Gateway{
		radio:     d.Radio,
		transport: d.Transport,
		bus:       d.Bus,
		log:       storage.NewLog(d.Store, d.Bus, logger),
		replay:    replay.NewService(d.Store, d.Bus, d.Transport, opts.ChunkSize, logger),
		metrics:   d.Metrics,
		observer:  d.Observer,
		poll:      opts.PollInterval,
		logger:    logger,
	}
}

// Health reports the persistence log state without touching the store.
func (g *Gateway) Health() storage.Health { return g.log.Health() }

// Run repeats Step until ctx is cancelled.
func (g *Gateway) Run(ctx context.Context) error {
	g.logger.Info("gateway loop started", "poll_interval", g.poll.String())
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := g.Step(ctx); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			g.logger.Warn("gateway step failed", "error", err)
		}
	}
}

// Step serves at most one replay request and handles at most one datagram.
func (g *Gateway) Step(ctx context.Context) error {
	if err := g.bus.Select(bus.Network); err != nil {
		return fmt.Errorf("claim bus for network: %w", err)
	}
	pkt, ok, err := g.transport.Poll(g.poll)
	if err != nil {
		return fmt.Errorf("poll transport: %w", err)
	}
	if ok {
		g.serveReplay(pkt)
	}

	if err := g.bus.Select(bus.Radio); err != nil {
		return fmt.Errorf("claim bus for radio: %w", err)
	}
	if !g.radio.Available() {
		return nil
	}
	dg, err := g.radio.Receive(ctx, 0)
	if err != nil {
		if errors.Is(err, radio.ErrTimeout) {
			return nil
		}
		return fmt.Errorf("radio receive: %w", err)
	}
	return g.handleDatagram(ctx, dg)
}

func (g *Gateway) serveReplay(pkt transport.Packet) {
	st, err := g.replay.Serve(pkt.From)
	if g.metrics != nil {
		g.metrics.ReplayedBytes.Add(float64(st.Bytes))
		switch {
		case err != nil:
			g.metrics.Replays.WithLabelValues(metrics.ResultError).Inc()
		case st.StoreMissing:
			g.metrics.Replays.WithLabelValues(metrics.ResultSkipped).Inc()
		default:
			g.metrics.Replays.WithLabelValues(metrics.ResultSuccess).Inc()
		}
	}
	if err != nil {
		g.logger.Warn("replay aborted", "error", err, "peer", pkt.From.String())
	}
}

// handleDatagram persists dg and confirms it to the sender only once the
// append succeeded.
func (g *Gateway) handleDatagram(ctx context.Context, dg radio.Datagram) error {
	g.count(func(m *metrics.Gateway) { m.GroupsReceived.Inc() })

	if err := g.log.Append(dg.Payload); err != nil {
		g.count(func(m *metrics.Gateway) { m.PersistFailures.Inc() })
		g.logger.Warn("group not persisted, no confirmation sent", "error", err, "from", dg.From)
		return nil
	}
	g.count(func(m *metrics.Gateway) { m.GroupsPersisted.Inc() })

	if err := g.bus.Select(bus.Radio); err != nil {
		return fmt.Errorf("claim bus for confirmation: %w", err)
	}
	if err := g.radio.Send(ctx, []byte{radio.Confirmation}, dg.From); err != nil {
		g.count(func(m *metrics.Gateway) { m.Confirmations.WithLabelValues(metrics.ResultError).Inc() })
		g.logger.Warn("confirmation not delivered", "error", err, "to", dg.From)
	} else {
		g.count(func(m *metrics.Gateway) { m.Confirmations.WithLabelValues(metrics.ResultSuccess).Inc() })
	}

	g.observe(dg.Payload)
	return nil
}

func (g *Gateway) observe(group []byte) {
	if g.observer == nil {
		return
	}
	published, err := g.observer.Observe(group)
	switch {
	case errors.Is(err, forward.ErrSkipped):
		g.count(func(m *metrics.Gateway) { m.Telemetry.WithLabelValues(metrics.ResultSkipped).Inc() })
	case err != nil:
		g.count(func(m *metrics.Gateway) { m.Telemetry.WithLabelValues(metrics.ResultError).Inc() })
		g.logger.Debug("telemetry not forwarded", "error", err)
	case published:
		g.count(func(m *metrics.Gateway) { m.Telemetry.WithLabelValues(metrics.ResultSuccess).Inc() })
	}
}

func (g *Gateway) count(f func(m *metrics.Gateway)) {
	if g.metrics != nil {
		f(g.metrics)
	}
}
