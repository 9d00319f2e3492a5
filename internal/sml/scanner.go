// Package sml extracts meter readings from the SML byte stream an IR head
// delivers over a serial line.
package sml

import (
	"bufio"
	"errors"
	"fmt"
	"io"
)

const (
	TimestampLen = 12
	PowerLen     = 20

	// MaxScanBytes is the byte budget of a single tag search.
	MaxScanBytes = 999
)

var ErrTagNotFound = errors.New("sml: tag not found")

// Tag is a fixed byte sequence that precedes a field in the stream.
type Tag struct {
	Name string
	Seq  []byte
}

var (
	StartTag     = Tag{Name: "start", Seq: []byte{0x1B, 0x1B, 0x1B, 0x1B, 0x01, 0x01, 0x01, 0x01}}
	TimestampTag = Tag{Name: "timestamp", Seq: []byte{0x07, 0x01, 0x00, 0x62, 0x0A, 0xFF, 0xFF}}
	PowerTag     = Tag{Name: "power", Seq: []byte{0x07, 0x01, 0x00, 0x01, 0x08, 0x00, 0xFF}}
)

// Frame holds the raw fields taken from one pass over the stream.
type Frame struct {
	Timestamp [TimestampLen]byte
	Power     [PowerLen]byte
}

// Scanner consumes a serial stream. Bytes read are never pushed back.
type Scanner struct {
	r      *bufio.Reader
	budget int
}

func NewScanner(r io.Reader) *Scanner {
	return &Scanner{r: bufio.NewReader(r), budget: MaxScanBytes}
}

// Scan looks for the start, timestamp and power tags in that order and reads
// the fixed-width field behind the latter two. Any failed step aborts the
// whole frame.
func (s *Scanner) Scan() (Frame, error) {
	var f Frame

	if err := s.Find(StartTag); err != nil {
		return Frame{}, err
	}
	if err := s.Find(TimestampTag); err != nil {
		return Frame{}, err
	}
	if _, err := io.ReadFull(s.r, f.Timestamp[:]); err != nil {
		return Frame{}, fmt.Errorf("sml: read timestamp: %w", err)
	}
	if err := s.Find(PowerTag); err != nil {
		return Frame{}, err
	}
	if _, err := io.ReadFull(s.r, f.Power[:]); err != nil {
		return Frame{}, fmt.Errorf("sml: read power: %w", err)
	}
	return f, nil
}

// Find advances the stream until tag has been read completely. A mismatching
// byte drops the partial match without being re-tested as a new first byte.
func (s *Scanner) Find(tag Tag) error {
	pos := 0
	count := 0
	for {
		b, err := s.r.ReadByte()
		if err != nil {
			return fmt.Errorf("%w: %s: %w", ErrTagNotFound, tag.Name, err)
		}

		if pos > 0 && b != tag.Seq[pos] {
			pos = 0
		} else if b == tag.Seq[pos] {
			pos++
		}
		if pos == len(tag.Seq) {
			return nil
		}

		count++
		if count > s.budget {
			return fmt.Errorf("%w: %s after %d bytes", ErrTagNotFound, tag.Name, count)
		}
	}
}
