// Package replay streams the whole persisted log back to whoever asks.
package replay

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"

	"github.com/wunderabt/power-meter/internal/bus"
	"github.com/wunderabt/power-meter/internal/logging"
	"github.com/wunderabt/power-meter/internal/storage"
)

// Sentinel is the payload of the packet that ends every replay.
const Sentinel = "\n\nEOT"

const DefaultChunkSize = 60

// Sender is the packet transport replies go out on.
type Sender interface {
	Send(payload []byte, to net.Addr) error
}

// Stats summarises one replay.
type Stats struct {
	Chunks int
	Bytes  int
	// StoreMissing is set when the log could not be opened; only the
	// sentinel was sent.
	StoreMissing bool
}

type Service struct {
	store     storage.Store
	bus       bus.Selector
	sender    Sender
	chunkSize int
	logger    *slog.Logger
}

func NewService(store storage.Store, sel bus.Selector, sender Sender, chunkSize int, logger *slog.Logger) *Service {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	return &Service{
		store:     store,
		bus:       sel,
		sender:    sender,
		chunkSize: chunkSize,
		logger:    logging.OrDefault(logger),
	}
}

// Serve sends the log to peer in raw chunks that ignore line boundaries,
// then the sentinel. The log itself is left untouched.
func (s *Service) Serve(peer net.Addr) (Stats, error) {
	var st Stats

	if err := s.bus.Select(bus.Storage); err != nil {
		return st, fmt.Errorf("claim bus for replay: %w", err)
	}
	f, err := s.store.OpenRead()
	if err != nil {
		s.logger.Warn("log store unavailable for replay", "error", err, "peer", peer.String())
		st.StoreMissing = true
		return st, s.sendSentinel(peer)
	}
	defer f.Close()

	buf := make([]byte, s.chunkSize)
	for {
		if err := s.bus.Select(bus.Storage); err != nil {
			return st, fmt.Errorf("claim bus for read: %w", err)
		}
		n, rerr := io.ReadFull(f, buf)
		if n > 0 {
			if err := s.bus.Select(bus.Network); err != nil {
				return st, fmt.Errorf("claim bus for send: %w", err)
			}
			if err := s.sender.Send(buf[:n], peer); err != nil {
				return st, fmt.Errorf("send chunk %d: %w", st.Chunks, err)
			}
			st.Chunks++
			st.Bytes += n
		}
		if rerr != nil {
			if errors.Is(rerr, io.EOF) || errors.Is(rerr, io.ErrUnexpectedEOF) {
				break
			}
			s.logger.Warn("replay read failed, ending early", "error", rerr, "bytes", st.Bytes)
			break
		}
	}

	if err := s.sendSentinel(peer); err != nil {
		return st, err
	}
	s.logger.Info("replay served", "peer", peer.String(), "chunks", st.Chunks, "bytes", st.Bytes)
	return st, nil
}

func (s *Service) sendSentinel(peer net.Addr) error {
	if err := s.bus.Select(bus.Network); err != nil {
		return fmt.Errorf("claim bus for sentinel: %w", err)
	}
	if err := s.sender.Send([]byte(Sentinel), peer); err != nil {
		return fmt.Errorf("send sentinel: %w", err)
	}
	return nil
}
