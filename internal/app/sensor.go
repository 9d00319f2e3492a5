package app

import (
	"context"
	"fmt"
	"log/slog"

	"periph.io/x/host/v3"

	"github.com/wunderabt/power-meter/internal/config"
	"github.com/wunderabt/power-meter/internal/delivery"
	"github.com/wunderabt/power-meter/internal/dutycycle"
	"github.com/wunderabt/power-meter/internal/radio"
	"github.com/wunderabt/power-meter/internal/sensor"
)

// RunSensor wires the sensor node and runs it until ctx is done.
func RunSensor(ctx context.Context, cfg config.Sensor) error {
	slog.Info("initializing sensor",
		"serial_port", cfg.SerialPort,
		"serial_baud", cfg.SerialBaud,
		"buffer_capacity", cfg.BufferCapacity,
		"sample_interval", cfg.SampleInterval.String(),
		"mqtt_broker", cfg.Radio.MQTTBroker,
		"radio_address", cfg.Radio.Address,
		"gateway_address", cfg.Radio.GatewayAddress,
	)

	if _, err := host.Init(); err != nil {
		return fmt.Errorf("init gpio host: %w", err)
	}
	irPower, err := sensor.PowerPinByName(cfg.IRPowerPin)
	if err != nil {
		return err
	}

	var battery sensor.Battery = sensor.NoBattery{}
	if cfg.BatteryPath != "" {
		battery = sensor.SysfsBattery{Path: cfg.BatteryPath}
	}

	src, err := sensor.OpenSerial(cfg.SerialPort, cfg.SerialBaud, cfg.SerialReadTimeout)
	if err != nil {
		return err
	}
	defer src.Close()

	mqttClient, link, err := connectRadio(ctx, cfg.Radio)
	if err != nil {
		return err
	}
	defer mqttClient.Disconnect()
	defer link.Close()

	node := sensor.New(sensor.Deps{
		Radio:   link,
		Source:  src,
		IRPower: irPower,
		Battery: battery,
		Sleeper: dutycycle.HostSleeper{},
	}, sensor.Options{
		BufferCapacity: cfg.BufferCapacity,
		SampleInterval: cfg.SampleInterval,
		IRWarmup:       cfg.IRWarmup,
		StartupGrace:   cfg.StartupGrace,
		Delivery: delivery.Options{
			Gateway:        radio.Address(cfg.Radio.GatewayAddress),
			RetryLimit:     cfg.RetryLimit,
			RetryPause:     cfg.RetryPause,
			ConfirmTimeout: cfg.ConfirmTimeout,
		},
	}, slog.Default())

	err = node.Run(ctx)
	slog.Info("sensor shutting down")
	return err
}
