package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"periph.io/x/host/v3"

	"github.com/wunderabt/power-meter/internal/bus"
	"github.com/wunderabt/power-meter/internal/config"
	"github.com/wunderabt/power-meter/internal/forward"
	"github.com/wunderabt/power-meter/internal/gateway"
	"github.com/wunderabt/power-meter/internal/httpapi"
	"github.com/wunderabt/power-meter/internal/metrics"
	"github.com/wunderabt/power-meter/internal/mqtt"
	"github.com/wunderabt/power-meter/internal/radio"
	"github.com/wunderabt/power-meter/internal/storage"
	"github.com/wunderabt/power-meter/internal/transport"
)

// RunGateway wires the gateway node and runs its loop until ctx is done.
// Failing to bring up the radio link or the network socket is fatal.
func RunGateway(ctx context.Context, cfg config.Gateway) error {
	slog.Info("initializing gateway",
		"log_path", cfg.LogPath,
		"udp_addr", cfg.UDPAddr,
		"mqtt_broker", cfg.Radio.MQTTBroker,
		"mqtt_port", cfg.Radio.MQTTPort,
		"mqtt_client_id", cfg.Radio.MQTTClientID,
		"radio_address", cfg.Radio.Address,
	)

	if _, err := host.Init(); err != nil {
		return fmt.Errorf("init gpio host: %w", err)
	}
	lines, err := bus.LinesByName(cfg.BusStoragePin, cfg.BusNetworkPin, cfg.BusRadioPin)
	if err != nil {
		return err
	}
	arbiter := bus.NewArbiter(lines, slog.Default())

	udp, err := transport.Listen(cfg.UDPAddr)
	if err != nil {
		return fmt.Errorf("network: %w", err)
	}
	defer udp.Close()

	mqttClient, link, err := connectRadio(ctx, cfg.Radio)
	if err != nil {
		return err
	}
	defer mqttClient.Disconnect()
	defer link.Close()

	deps := gateway.Deps{
		Radio:     link,
		Transport: udp,
		Bus:       arbiter,
		Store:     storage.FileStore{Path: cfg.LogPath},
		Metrics:   metrics.Default(),
	}
	if cfg.TelemetryTopic != "" {
		deps.Observer = forward.New(mqttClient, forward.Options{
			Topic:     cfg.TelemetryTopic,
			StationID: cfg.StationID,
			Install:   cfg.InstallDate,
		}, slog.Default())
		slog.Info("telemetry forwarding enabled", "topic", cfg.TelemetryTopic, "station_id", cfg.StationID)
	}

	gw := gateway.New(deps, gateway.Options{
		PollInterval: cfg.PollInterval,
		ChunkSize:    cfg.ChunkSize,
	}, slog.Default())

	if cfg.MetricsAddr != "" {
		srv := httpapi.NewServer(cfg.MetricsAddr, httpapi.NewMux(gw, prometheus.DefaultGatherer), slog.Default())
		go func() {
			slog.Info("http server listening", "addr", cfg.MetricsAddr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				slog.Error("http server failed", "error", err)
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
	}

	err = gw.Run(ctx)
	slog.Info("gateway shutting down")
	return err
}

// connectRadio blocks until the broker carrying the radio link is reachable.
func connectRadio(ctx context.Context, cfg config.Radio) (*mqtt.Client, *radio.MQTTLink, error) {
	client := mqtt.NewClient(mqtt.Options{
		Broker:   cfg.MQTTBroker,
		Port:     cfg.MQTTPort,
		ClientID: cfg.MQTTClientID,
	}, slog.Default())

	link, err := radio.NewMQTTLink(client, cfg.TopicPrefix, radio.Address(cfg.Address), cfg.Key, slog.Default())
	if err != nil {
		return nil, nil, fmt.Errorf("radio: %w", err)
	}
	if err := client.Connect(ctx); err != nil {
		link.Close()
		return nil, nil, fmt.Errorf("radio: %w", err)
	}
	return client, link, nil
}
