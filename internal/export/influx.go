package export

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/cenkalti/backoff/v4"
	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/wunderabt/power-meter/internal/decode"
	"github.com/wunderabt/power-meter/internal/logging"
)

const (
	meterDevice = "ISKRA MT-631"
	nodeDevice  = "sensor node"
)

// PointWriter is the blocking write API of the InfluxDB client.
type PointWriter interface {
	WritePoint(ctx context.Context, point ...*write.Point) error
}

// Points converts one record into an energy and a voltage point.
func Points(r decode.Record) []*write.Point {
	return []*write.Point{
		influxdb2.NewPoint("energy",
			map[string]string{"device": meterDevice},
			map[string]interface{}{"Wh": math.Round(r.EnergyWh)},
			r.Time),
		influxdb2.NewPoint("voltage",
			map[string]string{"device": nodeDevice},
			map[string]interface{}{"V": r.BatteryV},
			r.Time),
	}
}

type Influx struct {
	writer     PointWriter
	maxElapsed time.Duration
	logger     *slog.Logger
}

func NewInflux(w PointWriter, logger *slog.Logger) *Influx {
	return &Influx{writer: w, maxElapsed: 30 * time.Second, logger: logging.OrDefault(logger)}
}

// Write sends the records one at a time, retrying each with exponential
// backoff. It stops at the first record that still fails.
func (x *Influx) Write(ctx context.Context, records []decode.Record) (int, error) {
	for i, r := range records {
		points := Points(r)

		bo := backoff.NewExponentialBackOff()
		bo.InitialInterval = 200 * time.Millisecond
		bo.MaxElapsedTime = x.maxElapsed

		err := backoff.Retry(func() error {
			if err := x.writer.WritePoint(ctx, points...); err != nil {
				x.logger.Warn("influx write failed", "error", err, "time", r.Time)
				return err
			}
			return nil
		}, backoff.WithContext(bo, ctx))
		if err != nil {
			return i, fmt.Errorf("write reading at %s: %w", r.Time.Format(TimeLayout), err)
		}
	}
	return len(records), nil
}
