package app

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"

	"github.com/wunderabt/power-meter/internal/config"
	"github.com/wunderabt/power-meter/internal/db"
	"github.com/wunderabt/power-meter/internal/decode"
	"github.com/wunderabt/power-meter/internal/export"
	"github.com/wunderabt/power-meter/internal/fetch"
)

var ErrUsage = errors.New("usage: meterdump fetch [out] | csv [dump] | xlsx <out> [dump] | influx [dump] | sqlite [dump]")

// RunDump executes one meterdump command. Commands that decode read the
// dump file given as their last argument or fetch a live replay.
func RunDump(ctx context.Context, cfg config.Dump, args []string, stdout io.Writer) error {
	if len(args) == 0 {
		return ErrUsage
	}
	cmd, rest := args[0], args[1:]

	switch cmd {
	case "fetch":
		if len(rest) > 1 {
			return ErrUsage
		}
		return runFetch(ctx, cfg, rest, stdout)
	case "csv", "influx", "sqlite":
		if len(rest) > 1 {
			return ErrUsage
		}
	case "xlsx":
		if len(rest) < 1 || len(rest) > 2 {
			return ErrUsage
		}
	default:
		return ErrUsage
	}

	var dumpArgs []string
	if cmd == "xlsx" {
		dumpArgs = rest[1:]
	} else {
		dumpArgs = rest
	}
	d, err := loadDump(ctx, cfg, dumpArgs)
	if err != nil {
		return err
	}
	slog.Info("dump decoded", "lines", d.Lines, "records", len(d.Records), "skipped", d.Skipped)

	switch cmd {
	case "csv":
		return export.CSV(stdout, d.Records)
	case "xlsx":
		return writeXLSX(rest[0], d.Records)
	case "influx":
		return writeInflux(ctx, cfg, d.Records)
	default:
		return writeSQLite(ctx, cfg, d.Records)
	}
}

func runFetch(ctx context.Context, cfg config.Dump, rest []string, stdout io.Writer) error {
	w := stdout
	if len(rest) == 1 {
		f, err := os.Create(rest[0])
		if err != nil {
			return fmt.Errorf("create %s: %w", rest[0], err)
		}
		defer f.Close()
		w = f
	}
	n, err := fetch.NewClient(cfg.GatewayAddr, cfg.FetchTimeout, slog.Default()).Fetch(ctx, w)
	if err != nil {
		return err
	}
	slog.Info("replay fetched", "bytes", n, "gateway", cfg.GatewayAddr)
	return nil
}

// loadDump reads a dump file or, without one, fetches the replay. A replay
// cut short is still decoded.
func loadDump(ctx context.Context, cfg config.Dump, args []string) (decode.Dump, error) {
	if len(args) == 1 {
		f, err := os.Open(args[0])
		if err != nil {
			return decode.Dump{}, fmt.Errorf("open dump: %w", err)
		}
		defer f.Close()
		return decode.ReadDump(f, cfg.InstallDate)
	}

	var buf bytes.Buffer
	n, err := fetch.NewClient(cfg.GatewayAddr, cfg.FetchTimeout, slog.Default()).Fetch(ctx, &buf)
	switch {
	case errors.Is(err, fetch.ErrIncomplete):
		slog.Warn("replay incomplete, decoding what arrived", "bytes", n)
	case err != nil:
		return decode.Dump{}, err
	}
	return decode.ReadDump(&buf, cfg.InstallDate)
}

func writeXLSX(path string, records []decode.Record) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	if err := export.XLSX(f, records); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	slog.Info("xlsx written", "path", path, "records", len(records))
	return nil
}

func writeInflux(ctx context.Context, cfg config.Dump, records []decode.Record) error {
	client := influxdb2.NewClient(cfg.InfluxURL, cfg.InfluxToken)
	defer client.Close()

	n, err := export.NewInflux(client.WriteAPIBlocking(cfg.InfluxOrg, cfg.InfluxBucket), slog.Default()).Write(ctx, records)
	if err != nil {
		return err
	}
	slog.Info("influx export done", "records", n, "url", cfg.InfluxURL, "bucket", cfg.InfluxBucket)
	return nil
}

func writeSQLite(ctx context.Context, cfg config.Dump, records []decode.Record) error {
	conn, err := db.Open(db.Options{
		Path:   cfg.SQLitePath,
		Debug:  cfg.LogLevel <= slog.LevelDebug,
		Logger: slog.Default(),
	})
	if err != nil {
		return err
	}
	defer conn.Close()

	n, err := export.SQLite(ctx, conn, records)
	if err != nil {
		return err
	}
	slog.Info("sqlite export done", "inserted", n, "skipped", len(records)-n, "path", cfg.SQLitePath)
	return nil
}
