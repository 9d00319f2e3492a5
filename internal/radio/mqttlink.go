package radio

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/wunderabt/power-meter/internal/logging"
	"github.com/wunderabt/power-meter/internal/mqtt"
)

// Bridge is the part of the MQTT client a link needs.
type Bridge interface {
	Publish(topic string, qos byte, retained bool, payload []byte) error
	Subscribe(topic string, qos byte, h mqtt.Handler) error
}

// MQTTLink carries datagrams over a broker. Each address owns the topic
// "<prefix>/<address>"; the first payload byte is the sender address. A
// completed QoS 1 publish counts as the link-level acknowledgement.
type MQTTLink struct {
	addr   Address
	prefix string
	bridge Bridge
	key    [16]byte
	logger *slog.Logger

	inbox chan Datagram

	mu     sync.Mutex
	asleep bool

	closeOnce sync.Once
	done      chan struct{}
}

// NewMQTTLink subscribes to the inbound topic of addr. The key is held for
// the broker side and not applied to payloads.
func NewMQTTLink(bridge Bridge, prefix string, addr Address, key [16]byte, logger *slog.Logger) (*MQTTLink, error) {
	l := &MQTTLink{
		addr:   addr,
		prefix: prefix,
		bridge: bridge,
		key:    key,
		logger: logging.OrDefault(logger),
		inbox:  make(chan Datagram, inboxCapacity),
		done:   make(chan struct{}),
	}
	if err := bridge.Subscribe(l.topic(addr), 1, l.deliver); err != nil && !errors.Is(err, mqtt.ErrNotConnected) {
		return nil, fmt.Errorf("subscribe radio topic: %w", err)
	}
	return l, nil
}

func (l *MQTTLink) topic(addr Address) string {
	return fmt.Sprintf("%s/%d", l.prefix, addr)
}

func (l *MQTTLink) deliver(topic string, payload []byte) {
	if len(payload) == 0 {
		l.logger.Warn("radio frame without sender", "topic", topic)
		return
	}
	dg := Datagram{From: Address(payload[0]), Payload: append([]byte(nil), payload[1:]...)}
	select {
	case l.inbox <- dg:
	case <-l.done:
	default:
		l.logger.Warn("radio inbox full, frame dropped", "from", dg.From, "bytes", len(dg.Payload))
	}
}

func (l *MQTTLink) Send(ctx context.Context, payload []byte, to Address) error {
	if err := checkPayload(payload); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	select {
	case <-l.done:
		return ErrClosed
	default:
	}

	l.mu.Lock()
	l.asleep = false
	l.mu.Unlock()

	frame := make([]byte, 0, len(payload)+1)
	frame = append(frame, byte(l.addr))
	frame = append(frame, payload...)
	if err := l.bridge.Publish(l.topic(to), 1, false, frame); err != nil {
		return fmt.Errorf("%w: %w", ErrNotAcknowledged, err)
	}
	return nil
}

func (l *MQTTLink) Available() bool { return len(l.inbox) > 0 }

func (l *MQTTLink) Receive(ctx context.Context, timeout time.Duration) (Datagram, error) {
	return receive(ctx, l.inbox, l.done, timeout)
}

func (l *MQTTLink) Sleep() error {
	l.mu.Lock()
	l.asleep = true
	l.mu.Unlock()
	return nil
}

func (l *MQTTLink) Close() {
	l.closeOnce.Do(func() { close(l.done) })
}
