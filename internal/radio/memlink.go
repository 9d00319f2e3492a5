package radio

import (
	"context"
	"sync"
	"time"
)

const inboxCapacity = 64

// Ether connects in-memory links by address. It stands in for the air
// between nodes on a host.
type Ether struct {
	mu    sync.Mutex
	links map[Address]*MemLink
}

func NewEther() *Ether {
	return &Ether{links: make(map[Address]*MemLink)}
}

// Join attaches a link with the given address.
func (e *Ether) Join(addr Address) *MemLink {
	l := &MemLink{
		addr:  addr,
		ether: e,
		inbox: make(chan Datagram, inboxCapacity),
		done:  make(chan struct{}),
	}
	e.mu.Lock()
	e.links[addr] = l
	e.mu.Unlock()
	return l
}

func (e *Ether) lookup(addr Address) *MemLink {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.links[addr]
}

// MemLink is a Service whose datagrams travel through an Ether.
type MemLink struct {
	addr  Address
	ether *Ether
	inbox chan Datagram

	mu     sync.Mutex
	asleep bool

	closeOnce sync.Once
	done      chan struct{}
}

func (l *MemLink) Address() Address { return l.addr }

// Send delivers a copy of payload to the link registered under to. Unknown
// destinations and full inboxes count as missing link-level acks.
func (l *MemLink) Send(ctx context.Context, payload []byte, to Address) error {
	if err := checkPayload(payload); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	l.mu.Lock()
	l.asleep = false
	l.mu.Unlock()

	peer := l.ether.lookup(to)
	if peer == nil {
		return ErrNotAcknowledged
	}
	dg := Datagram{From: l.addr, Payload: append([]byte(nil), payload...)}
	select {
	case peer.inbox <- dg:
		return nil
	default:
		return ErrNotAcknowledged
	}
}

func (l *MemLink) Available() bool { return len(l.inbox) > 0 }

func (l *MemLink) Receive(ctx context.Context, timeout time.Duration) (Datagram, error) {
	return receive(ctx, l.inbox, l.done, timeout)
}

func (l *MemLink) Sleep() error {
	l.mu.Lock()
	l.asleep = true
	l.mu.Unlock()
	return nil
}

// Asleep reports whether Sleep was called since the last Send.
func (l *MemLink) Asleep() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.asleep
}

func (l *MemLink) Close() {
	l.closeOnce.Do(func() {
		close(l.done)
		l.ether.mu.Lock()
		if l.ether.links[l.addr] == l {
			delete(l.ether.links, l.addr)
		}
		l.ether.mu.Unlock()
	})
}
