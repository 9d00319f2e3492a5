package mqtt

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// fakeToken completes after delay with err.
type fakeToken struct {
	done chan struct{}
	err  error
}

func newToken(delay time.Duration, err error, onDone func()) *fakeToken {
	t := &fakeToken{done: make(chan struct{}), err: err}
	go func() {
		time.Sleep(delay)
		if onDone != nil {
			onDone()
		}
		close(t.done)
	}()
	return t
}

func (t *fakeToken) Wait() bool { <-t.done; return true }

func (t *fakeToken) WaitTimeout(d time.Duration) bool {
	select {
	case <-t.done:
		return true
	case <-time.After(d):
		return false
	}
}

func (t *fakeToken) Done() <-chan struct{} { return t.done }
func (t *fakeToken) Error() error          { return t.err }

// fakeBroker is a paho client whose subscriptions are acknowledged after a
// delay.
type fakeBroker struct {
	ackDelay time.Duration
	subErr   error

	mu    sync.Mutex
	acked []string
}

func (b *fakeBroker) IsConnected() bool      { return true }
func (b *fakeBroker) IsConnectionOpen() bool { return true }
func (b *fakeBroker) Connect() mqtt.Token    { return newToken(0, nil, nil) }
func (b *fakeBroker) Disconnect(uint)        {}

func (b *fakeBroker) Publish(string, byte, bool, interface{}) mqtt.Token {
	return newToken(0, nil, nil)
}

func (b *fakeBroker) Subscribe(topic string, _ byte, _ mqtt.MessageHandler) mqtt.Token {
	return newToken(b.ackDelay, b.subErr, func() {
		if b.subErr != nil {
			return
		}
		b.mu.Lock()
		b.acked = append(b.acked, topic)
		b.mu.Unlock()
	})
}

func (b *fakeBroker) SubscribeMultiple(map[string]byte, mqtt.MessageHandler) mqtt.Token {
	return newToken(0, nil, nil)
}

func (b *fakeBroker) Unsubscribe(...string) mqtt.Token { return newToken(0, nil, nil) }

func (b *fakeBroker) AddRoute(string, mqtt.MessageHandler) {}

func (b *fakeBroker) OptionsReader() mqtt.ClientOptionsReader { return mqtt.ClientOptionsReader{} }

func (b *fakeBroker) ackedTopics() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.acked...)
}

func newTestClient(b *fakeBroker) *Client {
	c := NewClient(Options{Broker: "localhost", Port: 1883, ClientID: "test"}, nil)
	c.client = b
	return c
}

func TestConnect_WaitsForSubscriptions(t *testing.T) {
	b := &fakeBroker{ackDelay: 50 * time.Millisecond}
	c := newTestClient(b)

	if err := c.Subscribe("radio/2", 1, func(string, []byte) {}); !errors.Is(err, ErrNotConnected) {
		t.Fatalf("Subscribe() before Connect error = %v, want ErrNotConnected", err)
	}
	if got := b.ackedTopics(); len(got) != 0 {
		t.Fatalf("subscribed before Connect: %v", got)
	}

	if err := c.Connect(context.Background()); err != nil {
		t.Fatal(err)
	}
	if got := b.ackedTopics(); len(got) != 1 || got[0] != "radio/2" {
		t.Errorf("acked topics when Connect returned = %v, want [radio/2]", got)
	}
	if !c.IsConnected() {
		t.Error("IsConnected() = false after Connect")
	}
}

func TestConnect_ReportsSubscribeFailure(t *testing.T) {
	b := &fakeBroker{subErr: errors.New("not authorized")}
	c := newTestClient(b)
	_ = c.Subscribe("radio/1", 1, func(string, []byte) {})

	if err := c.Connect(context.Background()); err == nil {
		t.Fatal("Connect() error = nil, want subscribe failure")
	}
}

func TestPublish_NotConnected(t *testing.T) {
	c := NewClient(Options{Broker: "localhost", Port: 1883, ClientID: "test"}, nil)
	if err := c.Publish("radio/1", 1, false, []byte{1}); !errors.Is(err, ErrNotConnected) {
		t.Errorf("Publish() error = %v, want ErrNotConnected", err)
	}
}
