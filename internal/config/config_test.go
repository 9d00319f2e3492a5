package config

import (
	"log/slog"
	"testing"
	"time"
)

func clearEnv(t *testing.T, keys ...string) {
	t.Helper()
	for _, k := range keys {
		t.Setenv(k, "")
	}
}

var sensorKeys = []string{
	"APP_ENV", "LOG_LEVEL", "RADIO_ADDRESS", "RADIO_GATEWAY_ADDRESS", "RADIO_KEY", "MQTT_PORT",
	"SERIAL_PORT", "SERIAL_BAUD", "SERIAL_READ_TIMEOUT", "IR_WARMUP", "BUFFER_CAPACITY",
	"SAMPLE_INTERVAL", "RETRY_LIMIT", "RETRY_PAUSE", "CONFIRM_TIMEOUT", "STARTUP_GRACE",
}

func TestLoadSensorFromEnv_Defaults(t *testing.T) {
	clearEnv(t, sensorKeys...)

	got, err := LoadSensorFromEnv()
	if err != nil {
		t.Fatalf("LoadSensorFromEnv() error = %v, want nil", err)
	}

	if got.AppEnv != "dev" {
		t.Errorf("AppEnv = %q, want %q", got.AppEnv, "dev")
	}
	if got.LogLevel != slog.LevelInfo {
		t.Errorf("LogLevel = %v, want %v", got.LogLevel, slog.LevelInfo)
	}
	if got.BufferCapacity != 24 {
		t.Errorf("BufferCapacity = %d, want 24", got.BufferCapacity)
	}
	if got.SampleInterval != time.Hour {
		t.Errorf("SampleInterval = %v, want 1h", got.SampleInterval)
	}
	if got.RetryLimit != 20 {
		t.Errorf("RetryLimit = %d, want 20", got.RetryLimit)
	}
	if got.RetryPause != 2*time.Second || got.ConfirmTimeout != 2*time.Second {
		t.Errorf("RetryPause/ConfirmTimeout = %v/%v, want 2s/2s", got.RetryPause, got.ConfirmTimeout)
	}
	if got.Radio.Address != 2 || got.Radio.GatewayAddress != 1 {
		t.Errorf("Radio addresses = %d -> %d, want 2 -> 1", got.Radio.Address, got.Radio.GatewayAddress)
	}
	for i, b := range got.Radio.Key {
		if b != 0x01 {
			t.Fatalf("Radio.Key[%d] = %#x, want 0x01", i, b)
		}
	}
}

func TestLoadSensorFromEnv_Invalid(t *testing.T) {
	tests := []struct {
		name  string
		key   string
		value string
	}{
		{name: "app env", key: "APP_ENV", value: "staging"},
		{name: "log level", key: "LOG_LEVEL", value: "verbose"},
		{name: "capacity zero", key: "BUFFER_CAPACITY", value: "0"},
		{name: "capacity not a number", key: "BUFFER_CAPACITY", value: "many"},
		{name: "fractional interval", key: "SAMPLE_INTERVAL", value: "1500ms"},
		{name: "retry limit", key: "RETRY_LIMIT", value: "-1"},
		{name: "short key", key: "RADIO_KEY", value: "0101"},
		{name: "bad key", key: "RADIO_KEY", value: "zz"},
		{name: "address overflow", key: "RADIO_ADDRESS", value: "300"},
		{name: "negative pause", key: "RETRY_PAUSE", value: "-2s"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t, sensorKeys...)
			t.Setenv(tt.key, tt.value)

			if _, err := LoadSensorFromEnv(); err == nil {
				t.Fatalf("LoadSensorFromEnv() with %s=%q error = nil, want non-nil", tt.key, tt.value)
			}
		})
	}
}

func TestLoadGatewayFromEnv(t *testing.T) {
	clearEnv(t, "APP_ENV", "LOG_LEVEL", "RADIO_ADDRESS", "RADIO_KEY", "MQTT_PORT",
		"LOG_PATH", "UDP_ADDR", "POLL_INTERVAL", "CHUNK_SIZE", "INSTALL_DATE")
	t.Setenv("BUS_CS_STORAGE", " GPIO4 ")
	t.Setenv("LOG_LEVEL", "debug")

	got, err := LoadGatewayFromEnv()
	if err != nil {
		t.Fatalf("LoadGatewayFromEnv() error = %v, want nil", err)
	}
	if got.LogPath != "readings.hex" {
		t.Errorf("LogPath = %q, want readings.hex", got.LogPath)
	}
	if got.UDPAddr != ":8888" {
		t.Errorf("UDPAddr = %q, want :8888", got.UDPAddr)
	}
	if got.ChunkSize != 60 {
		t.Errorf("ChunkSize = %d, want 60", got.ChunkSize)
	}
	if got.Radio.Address != 1 {
		t.Errorf("Radio.Address = %d, want 1", got.Radio.Address)
	}
	if got.BusStoragePin != "GPIO4" {
		t.Errorf("BusStoragePin = %q, want GPIO4", got.BusStoragePin)
	}
	if got.LogLevel != slog.LevelDebug {
		t.Errorf("LogLevel = %v, want debug", got.LogLevel)
	}
	want := time.Date(2021, 3, 19, 11, 10, 0, 0, time.Local)
	if !got.InstallDate.Equal(want) {
		t.Errorf("InstallDate = %v, want %v", got.InstallDate, want)
	}
}

func TestLoadDumpFromEnv_InvalidInstallDate(t *testing.T) {
	clearEnv(t, "APP_ENV", "LOG_LEVEL", "FETCH_TIMEOUT")
	t.Setenv("INSTALL_DATE", "yesterday")

	if _, err := LoadDumpFromEnv(); err == nil {
		t.Fatal("LoadDumpFromEnv() error = nil, want non-nil")
	}
}

func TestParseLogLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{in: "debug", want: slog.LevelDebug},
		{in: " INFO ", want: slog.LevelInfo},
		{in: "warning", want: slog.LevelWarn},
		{in: "error", want: slog.LevelError},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := parseLogLevel(tt.in)
			if err != nil {
				t.Fatalf("parseLogLevel(%q) error = %v", tt.in, err)
			}
			if got != tt.want {
				t.Errorf("parseLogLevel(%q) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}
