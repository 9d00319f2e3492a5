// Package transport carries replay triggers and replay packets over UDP.
package transport

import (
	"errors"
	"fmt"
	"net"
	"os"
	"time"
)

const maxPacket = 1500

type Packet struct {
	From    net.Addr
	Payload []byte
}

type UDP struct {
	conn *net.UDPConn
	buf  []byte
}

// Listen binds addr, for example ":8888".
func Listen(addr string) (*UDP, error) {
	ua, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		return nil, fmt.Errorf("invalid udp address %q: %w", addr, err)
	}
	conn, err := net.ListenUDP("udp", ua)
	if err != nil {
		return nil, fmt.Errorf("listen udp %s: %w", addr, err)
	}
	return &UDP{conn: conn, buf: make([]byte, maxPacket)}, nil
}

// Poll waits up to wait for one packet. ok is false when none arrived.
func (u *UDP) Poll(wait time.Duration) (pkt Packet, ok bool, err error) {
	if wait <= 0 {
		wait = time.Millisecond
	}
	if err := u.conn.SetReadDeadline(time.Now().Add(wait)); err != nil {
		return Packet{}, false, fmt.Errorf("set read deadline: %w", err)
	}
	n, from, err := u.conn.ReadFromUDP(u.buf)
	if err != nil {
		if errors.Is(err, os.ErrDeadlineExceeded) {
			return Packet{}, false, nil
		}
		return Packet{}, false, fmt.Errorf("read udp: %w", err)
	}
	return Packet{From: from, Payload: append([]byte(nil), u.buf[:n]...)}, true, nil
}

func (u *UDP) Send(payload []byte, to net.Addr) error {
	if _, err := u.conn.WriteTo(payload, to); err != nil {
		return fmt.Errorf("send udp to %s: %w", to, err)
	}
	return nil
}

func (u *UDP) LocalAddr() net.Addr { return u.conn.LocalAddr() }

func (u *UDP) Close() error { return u.conn.Close() }
