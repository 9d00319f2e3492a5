package db

import (
	"context"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"testing"
)

// captureHandler records log records for assertion in tests.
type captureHandler struct {
	mu    sync.Mutex
	attrs []map[string]slog.Value
}

func (h *captureHandler) Enabled(context.Context, slog.Level) bool { return true }

func (h *captureHandler) Handle(_ context.Context, r slog.Record) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	m := map[string]slog.Value{"msg": slog.StringValue(r.Message)}
	r.Attrs(func(a slog.Attr) bool {
		m[a.Key] = a.Value
		return true
	})
	h.attrs = append(h.attrs, m)
	return nil
}

func (h *captureHandler) WithAttrs([]slog.Attr) slog.Handler { return h }
func (h *captureHandler) WithGroup(string) slog.Handler      { return h }

func (h *captureHandler) statements() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	var out []string
	for _, m := range h.attrs {
		if m["msg"].String() == "sql" {
			out = append(out, m["op"].String()+" "+m["sql"].String())
		}
	}
	return out
}

func TestBuildDSN(t *testing.T) {
	dir := t.TempDir()
	tests := []struct {
		path    string
		want    string
		wantErr bool
	}{
		{path: ":memory:", want: "file::memory:?_foreign_keys=on&_busy_timeout=5000"},
		{path: "file:/x/a.db?mode=rw", want: "file:/x/a.db?mode=rw&_foreign_keys=on&_busy_timeout=5000&_journal_mode=WAL"},
		{path: filepath.Join(dir, "sub", "a.db"), want: "file:" + filepath.Join(dir, "sub", "a.db") + "?_foreign_keys=on&_busy_timeout=5000&_journal_mode=WAL"},
		{path: "", wantErr: true},
	}
	for _, tt := range tests {
		got, err := buildDSN(tt.path)
		if tt.wantErr {
			if err == nil {
				t.Errorf("buildDSN(%q) error = nil", tt.path)
			}
			continue
		}
		if err != nil || got != tt.want {
			t.Errorf("buildDSN(%q) = %q, %v, want %q", tt.path, got, err, tt.want)
		}
	}
}

func TestOpen_MigratesOnce(t *testing.T) {
	path := filepath.Join(t.TempDir(), "archive.db")

	for i := 0; i < 2; i++ {
		db, err := Open(Options{Path: path})
		if err != nil {
			t.Fatalf("open %d: %v", i, err)
		}
		var n int
		if err := db.QueryRow(`SELECT COUNT(*) FROM ` + migrationsTable).Scan(&n); err != nil {
			t.Fatal(err)
		}
		if n != 1 {
			t.Errorf("open %d: %d migrations recorded, want 1", i, n)
		}
		if _, err := db.Exec(`SELECT uptime_s, time, energy_wh, battery_v FROM readings`); err != nil {
			t.Errorf("readings table missing: %v", err)
		}
		_ = db.Close()
	}
}

func TestOpen_DebugTracesStatements(t *testing.T) {
	h := &captureHandler{}
	db, err := Open(Options{Path: ":memory:", Debug: true, Logger: slog.New(h)})
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = db.Close() }()

	if _, err := db.Exec(`INSERT INTO readings (uptime_s, time, energy_wh, battery_v) VALUES (?, ?, ?, ?)`,
		1, "2021-03-19T11:10:01Z", 1.5, 3.9); err != nil {
		t.Fatal(err)
	}
	var n int
	if err := db.QueryRow(`SELECT COUNT(*) FROM readings`).Scan(&n); err != nil || n != 1 {
		t.Fatalf("count = %d, %v", n, err)
	}

	stmts := h.statements()
	var sawInsert, sawCount bool
	for _, s := range stmts {
		sawInsert = sawInsert || strings.HasPrefix(s, "exec INSERT INTO readings")
		sawCount = sawCount || s == "query SELECT COUNT(*) FROM readings"
	}
	if !sawInsert || !sawCount {
		t.Errorf("traced statements = %q", stmts)
	}
}
