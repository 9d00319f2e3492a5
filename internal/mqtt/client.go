package mqtt

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"sync"
	"sync/atomic"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/wunderabt/power-meter/internal/logging"
)

var (
	ErrNotConnected = errors.New("mqtt client not connected")
	ErrStopped      = errors.New("client stopped")
)

const operationTimeout = 5 * time.Second

type Options struct {
	Broker   string
	Port     int
	ClientID string
}

// Handler receives the payload of a message on a subscribed topic.
type Handler func(topic string, payload []byte)

type Client struct {
	client    mqtt.Client
	opts      Options
	logger    *slog.Logger
	mu        sync.RWMutex
	connected bool
	subs      map[string]subscription

	stopCh   chan struct{}
	stopOnce sync.Once

	// initialized is set once Connect has subscribed the registered topics.
	initialized atomic.Bool
}

type subscription struct {
	qos     byte
	handler Handler
}

func NewClient(o Options, logger *slog.Logger) *Client {
	logger = logging.OrDefault(logger)
	c := &Client{
		opts:   o,
		logger: logger,
		subs:   make(map[string]subscription),
		stopCh: make(chan struct{}),
	}

	opts := mqtt.NewClientOptions()
	opts.AddBroker(fmt.Sprintf("tcp://%s:%d", o.Broker, o.Port))
	opts.SetClientID(o.ClientID)

	// Session settings
	opts.SetCleanSession(true)

	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(5 * time.Second)
	opts.SetMaxReconnectInterval(60 * time.Second)

	// Keepalive / timeouts
	opts.SetKeepAlive(30 * time.Second)
	opts.SetPingTimeout(10 * time.Second)

	opts.SetOnConnectHandler(func(mc mqtt.Client) {
		c.setConnected(true)
		logger.Info("mqtt connected", "broker", o.Broker, "port", o.Port)
		// The first connection is subscribed by Connect itself.
		if !c.initialized.Load() {
			return
		}
		if err := c.subscribeAll(mc); err != nil {
			logger.Warn("mqtt resubscribe failed", "error", err)
		}
	})

	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		c.setConnected(false)
		logger.Warn("mqtt connection lost", "error", err)
	})

	c.client = mqtt.NewClient(opts)
	return c
}

// Connect waits for the initial connection, respecting ctx and Disconnect().
// It returns once the broker confirmed every topic registered with Subscribe.
func (c *Client) Connect(ctx context.Context) error {
	select {
	case <-c.stopCh:
		return ErrStopped
	default:
	}

	if c.IsConnected() {
		return nil
	}

	token := c.client.Connect()

	const poll = 200 * time.Millisecond
	for {
		if token.WaitTimeout(poll) {
			if err := token.Error(); err != nil {
				return fmt.Errorf("mqtt connect: %w", err)
			}
			c.setConnected(true)
			err := c.subscribeAll(c.client)
			c.initialized.Store(true)
			return err
		}

		select {
		case <-ctx.Done():
			c.client.Disconnect(0)
			return ctx.Err()
		case <-c.stopCh:
			c.client.Disconnect(0)
			return ErrStopped
		default:
		}
	}
}

func (c *Client) Publish(topic string, qos byte, retained bool, payload []byte) error {
	if !c.IsConnected() {
		return ErrNotConnected
	}

	token := c.client.Publish(topic, qos, retained, payload)
	if !token.WaitTimeout(operationTimeout) {
		return fmt.Errorf("publish timeout for topic %s", topic)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("publish to %s: %w", topic, err)
	}

	c.logger.Debug("mqtt published", "topic", topic, "bytes", len(payload))
	return nil
}

// Subscribe registers h for topic. The subscription is renewed on every
// reconnect since sessions are clean.
func (c *Client) Subscribe(topic string, qos byte, h Handler) error {
	c.mu.Lock()
	c.subs[topic] = subscription{qos: qos, handler: h}
	c.mu.Unlock()

	if !c.IsConnected() {
		return ErrNotConnected
	}

	token := c.client.Subscribe(topic, qos, wrap(h))
	if !token.WaitTimeout(operationTimeout) {
		return fmt.Errorf("subscribe timeout for topic %s", topic)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("subscribe to %s: %w", topic, err)
	}

	c.logger.Info("subscribed to mqtt topic", "topic", topic, "qos", qos)
	return nil
}

// subscribeAll subscribes every registered topic and waits for the broker
// to confirm each one, so nothing published to them afterwards is missed.
func (c *Client) subscribeAll(mc mqtt.Client) error {
	c.mu.RLock()
	subs := maps.Clone(c.subs)
	c.mu.RUnlock()

	var errs []error
	for topic, sub := range subs {
		token := mc.Subscribe(topic, sub.qos, wrap(sub.handler))
		if !token.WaitTimeout(operationTimeout) {
			errs = append(errs, fmt.Errorf("subscribe timeout for topic %s", topic))
			continue
		}
		if err := token.Error(); err != nil {
			errs = append(errs, fmt.Errorf("subscribe to %s: %w", topic, err))
			continue
		}
		c.logger.Info("subscribed to mqtt topic", "topic", topic, "qos", sub.qos)
	}
	return errors.Join(errs...)
}

func wrap(h Handler) mqtt.MessageHandler {
	return func(_ mqtt.Client, msg mqtt.Message) {
		h(msg.Topic(), msg.Payload())
	}
}

// IsConnected returns whether the client is connected.
func (c *Client) IsConnected() bool {
	c.mu.RLock()
	connected := c.connected
	c.mu.RUnlock()
	return connected && c.client.IsConnected()
}

// Disconnect stops the client and closes the MQTT connection.
// Idempotent and safe to call multiple times.
func (c *Client) Disconnect() {
	c.stopOnce.Do(func() { close(c.stopCh) })

	if c.client != nil {
		c.client.Disconnect(250)
	}

	c.setConnected(false)
	c.logger.Info("mqtt disconnected")
}

func (c *Client) setConnected(v bool) {
	c.mu.Lock()
	c.connected = v
	c.mu.Unlock()
}
