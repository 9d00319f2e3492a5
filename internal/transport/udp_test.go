package transport

import (
	"bytes"
	"net"
	"testing"
	"time"
)

func TestUDP_PollAndSend(t *testing.T) {
	srv, err := Listen("127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	defer srv.Close()

	if _, ok, err := srv.Poll(5 * time.Millisecond); ok || err != nil {
		t.Fatalf("Poll() on idle socket = ok %v, err %v", ok, err)
	}

	client, err := net.DialUDP("udp", nil, srv.LocalAddr().(*net.UDPAddr))
	if err != nil {
		t.Fatal(err)
	}
	defer client.Close()

	if _, err := client.Write([]byte("hello")); err != nil {
		t.Fatal(err)
	}

	pkt, ok, err := srv.Poll(time.Second)
	if err != nil || !ok {
		t.Fatalf("Poll() = ok %v, err %v", ok, err)
	}
	if string(pkt.Payload) != "hello" {
		t.Errorf("payload = %q, want hello", pkt.Payload)
	}

	if err := srv.Send([]byte{1, 2, 3}, pkt.From); err != nil {
		t.Fatal(err)
	}
	if err := client.SetReadDeadline(time.Now().Add(time.Second)); err != nil {
		t.Fatal(err)
	}
	buf := make([]byte, 16)
	n, err := client.Read(buf)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(buf[:n], []byte{1, 2, 3}) {
		t.Errorf("client got % X", buf[:n])
	}
}

func TestListen_InvalidAddress(t *testing.T) {
	if _, err := Listen("not an address"); err == nil {
		t.Error("Listen() error = nil")
	}
}
