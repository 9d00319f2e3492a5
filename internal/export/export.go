// Package export writes decoded readings to files and databases.
package export

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/wunderabt/power-meter/internal/decode"
)

// TimeLayout is used wherever a reading time is rendered as text.
const TimeLayout = time.RFC3339

var header = []string{"time", "uptime_s", "energy_wh", "battery_v"}

func row(r decode.Record) []string {
	return []string{
		r.Time.Format(TimeLayout),
		strconv.FormatInt(r.Uptime, 10),
		strconv.FormatFloat(r.EnergyWh, 'f', -1, 64),
		strconv.FormatFloat(r.BatteryV, 'f', 3, 64),
	}
}

// CSV writes a header line and one line per record.
func CSV(w io.Writer, records []decode.Record) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(header); err != nil {
		return fmt.Errorf("write csv header: %w", err)
	}
	for _, r := range records {
		if err := cw.Write(row(r)); err != nil {
			return fmt.Errorf("write csv row: %w", err)
		}
	}
	cw.Flush()
	return cw.Error()
}
