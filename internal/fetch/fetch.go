// Package fetch requests a replay from the gateway and collects it.
package fetch

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"time"

	"github.com/wunderabt/power-meter/internal/logging"
	"github.com/wunderabt/power-meter/internal/replay"
)

// ErrIncomplete means the gateway went quiet before sending the sentinel.
var ErrIncomplete = errors.New("fetch: replay ended without end-of-transmission marker")

// Trigger is the request payload; the gateway does not inspect it.
var Trigger = []byte("hello")

const recvBuffer = 1024

type Client struct {
	addr    string
	timeout time.Duration
	logger  *slog.Logger
}

// NewClient targets the gateway at addr. timeout bounds the silence between
// two packets.
func NewClient(addr string, timeout time.Duration, logger *slog.Logger) *Client {
	return &Client{addr: addr, timeout: timeout, logger: logging.OrDefault(logger)}
}

// Fetch copies the replayed log to w, without the sentinel. On ErrIncomplete
// w holds what arrived.
func (c *Client) Fetch(ctx context.Context, w io.Writer) (int64, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "udp", c.addr)
	if err != nil {
		return 0, fmt.Errorf("dial gateway %s: %w", c.addr, err)
	}
	defer conn.Close()

	if _, err := conn.Write(Trigger); err != nil {
		return 0, fmt.Errorf("send replay request: %w", err)
	}

	var total int64
	lastProgress := time.Now()
	buf := make([]byte, recvBuffer)
	for {
		if err := ctx.Err(); err != nil {
			return total, err
		}
		if err := conn.SetReadDeadline(time.Now().Add(c.timeout)); err != nil {
			return total, err
		}
		n, err := conn.Read(buf)
		if err != nil {
			if errors.Is(err, os.ErrDeadlineExceeded) {
				c.logger.Error("transmission timeout", "bytes", total)
				return total, ErrIncomplete
			}
			return total, fmt.Errorf("read replay: %w", err)
		}

		data := buf[:n]
		done := bytes.HasSuffix(data, []byte(replay.Sentinel))
		if done {
			data = data[:len(data)-len(replay.Sentinel)]
		}
		if _, err := w.Write(data); err != nil {
			return total, fmt.Errorf("write dump: %w", err)
		}
		total += int64(len(data))

		if time.Since(lastProgress) > 2*time.Second {
			c.logger.Info("fetching", "kib", total/1024)
			lastProgress = time.Now()
		}
		if done {
			c.logger.Info("replay received", "bytes", total)
			return total, nil
		}
	}
}
