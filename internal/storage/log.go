package storage

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/wunderabt/power-meter/internal/bus"
	"github.com/wunderabt/power-meter/internal/logging"
)

// Health is what the log knows about its store from the appends so far.
type Health struct {
	Appends    int64
	Failures   int64
	LastAppend time.Time
	// LastError is empty when the latest append succeeded.
	LastError string
}

// Log is the append-only record of every group the gateway received.
type Log struct {
	store  Store
	bus    bus.Selector
	logger *slog.Logger

	mu     sync.Mutex
	health Health
}

func NewLog(store Store, sel bus.Selector, logger *slog.Logger) *Log {
	return &Log{store: store, bus: sel, logger: logging.OrDefault(logger)}
}

// Append writes b as one line, opening and closing the store around the
// write. The error tells the caller not to confirm the group; nothing is
// retried.
func (l *Log) Append(b []byte) error {
	err := l.append(b)
	l.record(err)
	return err
}

func (l *Log) append(b []byte) error {
	if err := l.bus.Select(bus.Storage); err != nil {
		return fmt.Errorf("claim bus for append: %w", err)
	}

	f, err := l.store.OpenAppend()
	if err != nil {
		l.logger.Warn("log store unavailable, group not persisted", "error", err, "bytes", len(b))
		return fmt.Errorf("open log for append: %w", err)
	}

	n, werr := f.Write(EncodeLine(b))
	if werr != nil && n > 0 {
		l.discardPartial(f, int64(n))
	}
	cerr := f.Close()
	if werr != nil {
		return fmt.Errorf("append record: %w", werr)
	}
	if cerr != nil {
		return fmt.Errorf("close log: %w", cerr)
	}

	l.logger.Debug("group persisted", "bytes", len(b))
	return nil
}

type truncater interface {
	Stat() (os.FileInfo, error)
	Truncate(size int64) error
}

// discardPartial removes the n bytes a failed write left behind. Stores
// that cannot truncate get the line terminated instead so the next record
// starts on its own line.
func (l *Log) discardPartial(f io.Writer, n int64) {
	if t, ok := f.(truncater); ok {
		if fi, err := t.Stat(); err == nil && fi.Size() >= n {
			if err := t.Truncate(fi.Size() - n); err == nil {
				l.logger.Warn("partial record removed", "bytes", n)
				return
			}
		}
	}
	_, _ = f.Write([]byte{'\n'})
	l.logger.Warn("partial record terminated", "bytes", n)
}

func (l *Log) record(err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err != nil {
		l.health.Failures++
		l.health.LastError = err.Error()
		return
	}
	l.health.Appends++
	l.health.LastAppend = time.Now()
	l.health.LastError = ""
}

// Health returns the append counters. It never touches the store, so it is
// safe to call while another goroutine owns the bus.
func (l *Log) Health() Health {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.health
}
