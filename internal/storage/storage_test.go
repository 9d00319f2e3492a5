package storage

import (
	"bytes"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/wunderabt/power-meter/internal/bus"
)

type selections []bus.Peripheral

func (s *selections) Select(p bus.Peripheral) error {
	*s = append(*s, p)
	return nil
}

func TestLog_AppendRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "readings.hex")
	var sel selections
	log := NewLog(FileStore{Path: path}, &sel, nil)

	if err := log.Append([]byte{0xDE, 0xAD}); err != nil {
		t.Fatalf("Append() error = %v", err)
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if string(raw) != "DE AD\n" {
		t.Fatalf("log = %q, want %q", raw, "DE AD\n")
	}

	got, err := DecodeLine(string(raw))
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got, []byte{0xDE, 0xAD}) {
		t.Errorf("DecodeLine() = % X, want DE AD", got)
	}

	if len(sel) != 1 || sel[0] != bus.Storage {
		t.Errorf("selections = %v, want [storage]", sel)
	}
}

func TestLog_AppendsInOrder(t *testing.T) {
	path := filepath.Join(t.TempDir(), "readings.hex")
	var sel selections
	log := NewLog(FileStore{Path: path}, &sel, nil)

	for _, g := range [][]byte{{0x01}, {0x0A, 0xFF, 0x00}, {0x3C, 0x0F}} {
		if err := log.Append(g); err != nil {
			t.Fatal(err)
		}
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	want := "01\n0A FF 00\n3C 0F\n"
	if string(raw) != want {
		t.Errorf("log = %q, want %q", raw, want)
	}
}

type failingStore struct{}

func (failingStore) OpenAppend() (io.WriteCloser, error) { return nil, os.ErrPermission }
func (failingStore) OpenRead() (io.ReadCloser, error)    { return nil, os.ErrPermission }

func TestLog_AppendOpenFailure(t *testing.T) {
	var sel selections
	err := NewLog(failingStore{}, &sel, nil).Append([]byte{1})
	if !errors.Is(err, os.ErrPermission) {
		t.Errorf("Append() error = %v, want ErrPermission", err)
	}
}

var errDiskFull = errors.New("no space left on device")

// shortFile writes at most three bytes and then fails.
type shortFile struct {
	*os.File
}

func (f shortFile) Write(p []byte) (int, error) {
	n, err := f.File.Write(p[:min(3, len(p))])
	if err != nil {
		return n, err
	}
	return n, errDiskFull
}

type shortFileStore struct{ FileStore }

func (s shortFileStore) OpenAppend() (io.WriteCloser, error) {
	f, err := s.FileStore.OpenAppend()
	if err != nil {
		return nil, err
	}
	return shortFile{f.(*os.File)}, nil
}

func TestLog_FailedWriteLeavesNoPartialRecord(t *testing.T) {
	path := filepath.Join(t.TempDir(), "readings.hex")
	var sel selections
	if err := NewLog(FileStore{Path: path}, &sel, nil).Append([]byte{0x01, 0x02}); err != nil {
		t.Fatal(err)
	}

	log := NewLog(shortFileStore{FileStore{Path: path}}, &sel, nil)
	if err := log.Append([]byte{0xAA, 0xBB, 0xCC}); !errors.Is(err, errDiskFull) {
		t.Fatalf("Append() error = %v, want %v", err, errDiskFull)
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if string(raw) != "01 02\n" {
		t.Errorf("log = %q, want %q", raw, "01 02\n")
	}
}

// memStore keeps the log in memory; the next failWrites writes take three
// bytes and then fail.
type memStore struct {
	buf        *bytes.Buffer
	failWrites *int
}

type memWriter struct{ s memStore }

func (w memWriter) Write(p []byte) (int, error) {
	if *w.s.failWrites > 0 {
		*w.s.failWrites--
		n, _ := w.s.buf.Write(p[:min(3, len(p))])
		return n, errDiskFull
	}
	return w.s.buf.Write(p)
}

func (w memWriter) Close() error { return nil }

func (s memStore) OpenAppend() (io.WriteCloser, error) { return memWriter{s}, nil }
func (s memStore) OpenRead() (io.ReadCloser, error) {
	return io.NopCloser(bytes.NewReader(s.buf.Bytes())), nil
}

func TestLog_FailedWriteIsTerminated(t *testing.T) {
	var buf bytes.Buffer
	fails := 1
	var sel selections
	log := NewLog(memStore{buf: &buf, failWrites: &fails}, &sel, nil)

	if err := log.Append([]byte{0xAA, 0xBB}); !errors.Is(err, errDiskFull) {
		t.Fatalf("Append() error = %v, want %v", err, errDiskFull)
	}
	if err := log.Append([]byte{0x01}); err != nil {
		t.Fatal(err)
	}
	if got := buf.String(); got != "AA \n01\n" {
		t.Errorf("log = %q, want %q", got, "AA \n01\n")
	}
}

func TestLog_Health(t *testing.T) {
	path := filepath.Join(t.TempDir(), "readings.hex")
	var sel selections
	log := NewLog(FileStore{Path: path}, &sel, nil)

	if h := log.Health(); h.Appends != 0 || h.Failures != 0 || h.LastError != "" {
		t.Fatalf("fresh Health() = %+v", h)
	}
	if err := log.Append([]byte{1}); err != nil {
		t.Fatal(err)
	}
	h := log.Health()
	if h.Appends != 1 || h.LastAppend.IsZero() || h.LastError != "" {
		t.Errorf("Health() after append = %+v", h)
	}

	failing := NewLog(failingStore{}, &sel, nil)
	_ = failing.Append([]byte{1})
	if h := failing.Health(); h.Failures != 1 || h.LastError == "" {
		t.Errorf("Health() after failure = %+v", h)
	}
}

func TestDecodeLine(t *testing.T) {
	tests := []struct {
		name    string
		line    string
		want    []byte
		wantErr bool
	}{
		{"padded", "07 01 00 62 0A FF FF\n", []byte{0x07, 0x01, 0x00, 0x62, 0x0A, 0xFF, 0xFF}, false},
		{"single digit legacy", "7 1 0 62 a ff ff", []byte{0x07, 0x01, 0x00, 0x62, 0x0A, 0xFF, 0xFF}, false},
		{"empty", "\n", []byte{}, false},
		{"not hex", "DE AG", nil, true},
		{"too long", "DEAD", nil, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DecodeLine(tt.line)
			if tt.wantErr {
				if !errors.Is(err, ErrMalformedLine) {
					t.Fatalf("DecodeLine(%q) error = %v, want ErrMalformedLine", tt.line, err)
				}
				return
			}
			if err != nil {
				t.Fatal(err)
			}
			if !bytes.Equal(got, tt.want) {
				t.Errorf("DecodeLine(%q) = % X, want % X", tt.line, got, tt.want)
			}
		})
	}
}

func TestEncodeLine(t *testing.T) {
	if got := string(EncodeLine([]byte{0x00, 0xAB, 0x0F})); got != "00 AB 0F\n" {
		t.Errorf("EncodeLine() = %q", got)
	}
}
