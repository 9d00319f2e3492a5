package config

import (
	"encoding/hex"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

// Base holds the settings every binary shares.
type Base struct {
	AppEnv   string
	LogLevel slog.Level
}

// Radio describes how a node reaches the packet radio service.
type Radio struct {
	Address        uint8
	GatewayAddress uint8
	Key            [16]byte
	TopicPrefix    string

	MQTTBroker   string
	MQTTPort     int
	MQTTClientID string
}

type Sensor struct {
	Base
	Radio Radio

	SerialPort        string
	SerialBaud        int
	SerialReadTimeout time.Duration
	IRPowerPin        string
	IRWarmup          time.Duration
	BatteryPath       string

	BufferCapacity int
	// SampleInterval is whole seconds; the duty-cycle controller works in seconds.
	SampleInterval time.Duration
	RetryLimit     int
	RetryPause     time.Duration
	ConfirmTimeout time.Duration
	StartupGrace   time.Duration
}

type Gateway struct {
	Base
	Radio Radio

	LogPath      string
	UDPAddr      string
	PollInterval time.Duration
	ChunkSize    int

	BusStoragePin string
	BusNetworkPin string
	BusRadioPin   string

	MetricsAddr    string
	TelemetryTopic string
	StationID      string
	InstallDate    time.Time
}

type Dump struct {
	Base

	GatewayAddr  string
	FetchTimeout time.Duration
	InstallDate  time.Time

	InfluxURL    string
	InfluxToken  string
	InfluxOrg    string
	InfluxBucket string

	SQLitePath string
}

const installDateLayout = "2006-01-02T15:04:05"

func loadBase() (Base, error) {
	appEnv := env("APP_ENV", "dev")
	switch appEnv {
	case "dev", "prod":
	default:
		return Base{}, fmt.Errorf("invalid APP_ENV %q (allowed: dev, prod)", appEnv)
	}

	level, err := parseLogLevel(env("LOG_LEVEL", "info"))
	if err != nil {
		return Base{}, err
	}
	return Base{AppEnv: appEnv, LogLevel: level}, nil
}

func loadRadio(defaultAddress uint8, defaultClientID string) (Radio, error) {
	address, err := envUint8("RADIO_ADDRESS", defaultAddress)
	if err != nil {
		return Radio{}, err
	}
	gatewayAddress, err := envUint8("RADIO_GATEWAY_ADDRESS", 1)
	if err != nil {
		return Radio{}, err
	}

	keyStr := env("RADIO_KEY", strings.Repeat("01", 16))
	keyBytes, err := hex.DecodeString(keyStr)
	if err != nil {
		return Radio{}, fmt.Errorf("invalid RADIO_KEY %q: %w", keyStr, err)
	}
	if len(keyBytes) != 16 {
		return Radio{}, fmt.Errorf("invalid RADIO_KEY %q: want 16 bytes, got %d", keyStr, len(keyBytes))
	}
	var key [16]byte
	copy(key[:], keyBytes)

	mqttPort, err := envInt("MQTT_PORT", 1883)
	if err != nil {
		return Radio{}, err
	}

	return Radio{
		Address:        address,
		GatewayAddress: gatewayAddress,
		Key:            key,
		TopicPrefix:    env("RADIO_TOPIC_PREFIX", "radio"),
		MQTTBroker:     env("MQTT_BROKER", "localhost"),
		MQTTPort:       mqttPort,
		MQTTClientID:   env("MQTT_CLIENT_ID", defaultClientID),
	}, nil
}

func LoadSensorFromEnv() (Sensor, error) {
	base, err := loadBase()
	if err != nil {
		return Sensor{}, err
	}
	radio, err := loadRadio(2, "power-meter-sensor")
	if err != nil {
		return Sensor{}, err
	}

	cfg := Sensor{
		Base:        base,
		Radio:       radio,
		SerialPort:  env("SERIAL_PORT", "/dev/ttyUSB0"),
		IRPowerPin:  env("IR_POWER_PIN", ""),
		BatteryPath: env("BATTERY_PATH", ""),
	}

	if cfg.SerialBaud, err = envInt("SERIAL_BAUD", 9600); err != nil {
		return Sensor{}, err
	}
	if cfg.SerialReadTimeout, err = envDuration("SERIAL_READ_TIMEOUT", 1500*time.Millisecond); err != nil {
		return Sensor{}, err
	}
	if cfg.IRWarmup, err = envDuration("IR_WARMUP", 100*time.Millisecond); err != nil {
		return Sensor{}, err
	}
	if cfg.BufferCapacity, err = envInt("BUFFER_CAPACITY", 24); err != nil {
		return Sensor{}, err
	}
	if cfg.BufferCapacity <= 0 {
		return Sensor{}, fmt.Errorf("BUFFER_CAPACITY must be positive, got %d", cfg.BufferCapacity)
	}
	if cfg.SampleInterval, err = envDuration("SAMPLE_INTERVAL", time.Hour); err != nil {
		return Sensor{}, err
	}
	if cfg.SampleInterval < time.Second || cfg.SampleInterval%time.Second != 0 {
		return Sensor{}, fmt.Errorf("SAMPLE_INTERVAL must be a positive number of whole seconds, got %v", cfg.SampleInterval)
	}
	if cfg.RetryLimit, err = envInt("RETRY_LIMIT", 20); err != nil {
		return Sensor{}, err
	}
	if cfg.RetryLimit <= 0 {
		return Sensor{}, fmt.Errorf("RETRY_LIMIT must be positive, got %d", cfg.RetryLimit)
	}
	if cfg.RetryPause, err = envDuration("RETRY_PAUSE", 2*time.Second); err != nil {
		return Sensor{}, err
	}
	if cfg.ConfirmTimeout, err = envDuration("CONFIRM_TIMEOUT", 2*time.Second); err != nil {
		return Sensor{}, err
	}
	if cfg.StartupGrace, err = envDuration("STARTUP_GRACE", 20*time.Second); err != nil {
		return Sensor{}, err
	}
	return cfg, nil
}

func LoadGatewayFromEnv() (Gateway, error) {
	base, err := loadBase()
	if err != nil {
		return Gateway{}, err
	}
	radio, err := loadRadio(1, "power-meter-gateway")
	if err != nil {
		return Gateway{}, err
	}

	cfg := Gateway{
		Base:           base,
		Radio:          radio,
		LogPath:        env("LOG_PATH", "readings.hex"),
		UDPAddr:        env("UDP_ADDR", ":8888"),
		BusStoragePin:  env("BUS_CS_STORAGE", ""),
		BusNetworkPin:  env("BUS_CS_NETWORK", ""),
		BusRadioPin:    env("BUS_CS_RADIO", ""),
		MetricsAddr:    env("METRICS_ADDR", ""),
		TelemetryTopic: env("TELEMETRY_TOPIC", ""),
		StationID:      env("STATION_ID", "meter"),
	}

	if cfg.PollInterval, err = envDuration("POLL_INTERVAL", 10*time.Millisecond); err != nil {
		return Gateway{}, err
	}
	if cfg.ChunkSize, err = envInt("CHUNK_SIZE", 60); err != nil {
		return Gateway{}, err
	}
	if cfg.ChunkSize <= 0 {
		return Gateway{}, fmt.Errorf("CHUNK_SIZE must be positive, got %d", cfg.ChunkSize)
	}
	if cfg.InstallDate, err = envInstallDate(); err != nil {
		return Gateway{}, err
	}
	return cfg, nil
}

func LoadDumpFromEnv() (Dump, error) {
	base, err := loadBase()
	if err != nil {
		return Dump{}, err
	}

	cfg := Dump{
		Base:         base,
		GatewayAddr:  env("GATEWAY_ADDR", "192.168.178.177:8888"),
		InfluxURL:    env("INFLUX_URL", "http://localhost:8086"),
		InfluxToken:  env("INFLUX_TOKEN", ""),
		InfluxOrg:    env("INFLUX_ORG", "home"),
		InfluxBucket: env("INFLUX_BUCKET", "power"),
		SQLitePath:   env("SQLITE_PATH", "readings.db"),
	}
	if cfg.FetchTimeout, err = envDuration("FETCH_TIMEOUT", 10*time.Second); err != nil {
		return Dump{}, err
	}
	if cfg.InstallDate, err = envInstallDate(); err != nil {
		return Dump{}, err
	}
	return cfg, nil
}

func env(key, def string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	return v
}

func envInt(key string, def int) (int, error) {
	s := env(key, strconv.Itoa(def))
	v, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, s, err)
	}
	return v, nil
}

func envUint8(key string, def uint8) (uint8, error) {
	s := env(key, strconv.Itoa(int(def)))
	v, err := strconv.ParseUint(s, 0, 8)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, s, err)
	}
	return uint8(v), nil
}

func envDuration(key string, def time.Duration) (time.Duration, error) {
	s := env(key, def.String())
	v, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, s, err)
	}
	if v < 0 {
		return 0, fmt.Errorf("%s must not be negative, got %v", key, v)
	}
	return v, nil
}

func envInstallDate() (time.Time, error) {
	s := env("INSTALL_DATE", "2021-03-19T11:10:00")
	t, err := time.ParseInLocation(installDateLayout, s, time.Local)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid INSTALL_DATE %q: %w", s, err)
	}
	return t, nil
}

func parseLogLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("invalid LOG_LEVEL %q (allowed: debug, info, warn, error)", s)
	}
}
