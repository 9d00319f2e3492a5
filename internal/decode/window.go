package decode

import (
	"bufio"
	"fmt"
	"io"
	"time"

	"github.com/wunderabt/power-meter/internal/storage"
)

// Window holds the last three groups seen. The log carries no framing, so a
// reading is recognised whenever the three latest groups have reading shape.
type Window struct {
	groups  [3][]byte
	install time.Time
}

func NewWindow(install time.Time) *Window {
	return &Window{install: install}
}

// Push adds g and reports a record when the window now holds a complete
// reading.
func (w *Window) Push(g []byte) (Record, bool, error) {
	w.groups[0], w.groups[1] = w.groups[1], w.groups[2]
	w.groups[2] = append([]byte(nil), g...)

	if !ValidTriplet(w.groups[0], w.groups[1], w.groups[2]) {
		return Record{}, false, nil
	}
	rec, err := Triplet(w.groups[0], w.groups[1], w.groups[2], w.install)
	if err != nil {
		return Record{}, false, err
	}
	return rec, true, nil
}

// Dump is the decoded content of a persisted log.
type Dump struct {
	Records []Record
	// Lines counts the lines read; Skipped those that did not parse and
	// the triplets that failed to decode.
	Lines   int
	Skipped int
}

// ReadDump decodes a whole log. Unparseable lines break the current window
// but do not stop decoding.
func ReadDump(r io.Reader, install time.Time) (Dump, error) {
	var d Dump
	w := NewWindow(install)

	sc := bufio.NewScanner(r)
	for sc.Scan() {
		d.Lines++
		g, err := storage.DecodeLine(sc.Text())
		if err != nil {
			d.Skipped++
			g = nil
		}
		rec, ok, err := w.Push(g)
		if err != nil {
			d.Skipped++
			continue
		}
		if ok {
			d.Records = append(d.Records, rec)
		}
	}
	if err := sc.Err(); err != nil {
		return d, fmt.Errorf("read dump: %w", err)
	}
	return d, nil
}
