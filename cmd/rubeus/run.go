package main

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/gwillem/rubeus/pkg/clock"
	"github.com/gwillem/rubeus/pkg/control"
	"github.com/gwillem/rubeus/pkg/robot"
)

type RunCommand struct {
	Interface string `short:"i" long:"interface" description:"SocketCAN interface (default: from config)"`
	ServoPort string `long:"servo-port" description:"Serial port of the steering encoder servos (default: from config)"`
	MQTT      bool   `long:"mqtt" description:"Publish telemetry to the configured broker"`
}

func (c *RunCommand) Execute(args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if c.Interface != "" {
		cfg.CAN.Interface = c.Interface
	}
	if c.ServoPort != "" {
		cfg.ServoPort = c.ServoPort
	}
	cfg.Telemetry.MQTT = cfg.Telemetry.MQTT || c.MQTT
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("config: %w", err)
	}

	feed := control.NewLogFeed(10)
	logger, err := newLogger(zap.Hooks(feed.Hook))
	if err != nil {
		return fmt.Errorf("create logger: %w", err)
	}
	defer logger.Sync()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	bus, err := robot.OpenCANBus(ctx, cfg.CAN.Interface, cfg.Devices, logger)
	if err != nil {
		return fmt.Errorf("open %s: %w", cfg.CAN.Interface, err)
	}
	defer bus.Close()

	var servos *robot.ServoBus
	if cfg.ServoPort != "" {
		servos, err = robot.OpenServoBus(cfg.ServoPort, encoderCalibration(cfg), logger)
		if err != nil {
			return fmt.Errorf("open servos on %s: %w", cfg.ServoPort, err)
		}
		defer servos.Close()
		// the encoders are turned by the wheels
		if err := servos.Disable(ctx); err != nil {
			logger.Warn("disable servo torque", zap.Error(err))
		}
	}

	sink, closeSink, err := telemetrySink(cfg, logger)
	if err != nil {
		return err
	}
	defer closeSink()

	r, err := robot.New(cfg, robot.CANHardware(cfg, bus, servos), clock.System(), sink, logger)
	if err != nil {
		return err
	}

	latch := &control.Latch{}
	latch.Set(robot.Input{SpeedLimit: 0.5})
	ctrl := control.NewController(r, control.Config{
		Hz:     cfg.Hz,
		Input:  latch.Read,
		Logger: logger,
		Feed:   feed,
	})

	return runDashboard(ctrl, latch, fmt.Sprintf("Rubeus (%s)", cfg.CAN.Interface))
}

// encoderCalibration returns the devices read over the servo bus.
func encoderCalibration(cfg *robot.Config) robot.Calibration {
	cal := make(robot.Calibration)
	for _, name := range robot.AllEncoders() {
		if mc, ok := cfg.Devices[name]; ok {
			cal[name] = mc
		}
	}
	return cal
}
