package export

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/wunderabt/power-meter/internal/decode"
)

// SQLite inserts the records into the readings table. Readings already in
// the archive are kept, so exporting the same dump twice adds nothing.
func SQLite(ctx context.Context, db *sql.DB, records []decode.Record) (inserted int, err error) {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT OR IGNORE INTO readings (uptime_s, time, energy_wh, battery_v) VALUES (?, ?, ?, ?)`)
	if err != nil {
		return 0, fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, r := range records {
		res, err := stmt.ExecContext(ctx, r.Uptime, r.Time.UTC().Format(TimeLayout), r.EnergyWh, r.BatteryV)
		if err != nil {
			return inserted, fmt.Errorf("insert reading %d: %w", r.Uptime, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return inserted, err
		}
		inserted += int(n)
	}

	if err := tx.Commit(); err != nil {
		return inserted, fmt.Errorf("commit: %w", err)
	}
	return inserted, nil
}
