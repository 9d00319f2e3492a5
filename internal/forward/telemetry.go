package forward

import "time"

// Telemetry is one decoded reading as published to the broker.
type Telemetry struct {
	StationID string    `json:"station_id"`
	Timestamp time.Time `json:"timestamp"`
	EnergyWh  *float64  `json:"energy_wh,omitempty"`
	Battery   *float64  `json:"battery_v,omitempty"`
	Uptime    *int64    `json:"uptime_s,omitempty"`
	Sequence  *int      `json:"sequence,omitempty"`
}
