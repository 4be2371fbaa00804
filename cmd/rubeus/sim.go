package main

import (
	"context"
	"errors"
	"fmt"

	tea "github.com/charmbracelet/bubbletea"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/gwillem/rubeus/pkg/clock"
	"github.com/gwillem/rubeus/pkg/control"
	"github.com/gwillem/rubeus/pkg/robot"
	"github.com/gwillem/rubeus/pkg/telemetry"
)

type SimCommand struct {
	Hz    int    `long:"hz" description:"Control loop frequency (default: from config)"`
	Field string `long:"field" choice:"official" choice:"makerspace" description:"Marker field"`
	MQTT  bool   `long:"mqtt" description:"Publish telemetry to the configured broker"`
}

func (c *SimCommand) Execute(args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if c.Hz > 0 {
		cfg.Hz = c.Hz
	}
	if c.Field != "" {
		cfg.Field = c.Field
	}
	cfg.Telemetry.MQTT = cfg.Telemetry.MQTT || c.MQTT

	feed := control.NewLogFeed(10)
	logger, err := newLogger(zap.Hooks(feed.Hook))
	if err != nil {
		return fmt.Errorf("create logger: %w", err)
	}
	defer logger.Sync()

	clk := clock.NewManual(0)
	sim, err := robot.NewSim(cfg, robot.DefaultSimConfig(), clk)
	if err != nil {
		return err
	}

	sink, closeSink, err := telemetrySink(cfg, logger)
	if err != nil {
		return err
	}
	defer closeSink()

	r, err := robot.New(cfg, sim.Hardware(), clk, sink, logger)
	if err != nil {
		return err
	}

	latch := &control.Latch{}
	latch.Set(robot.Input{SpeedLimit: 0.5})
	ctrl := control.NewController(r, control.Config{
		Hz:     cfg.Hz,
		Input:  latch.Read,
		World:  sim,
		Logger: logger,
		Feed:   feed,
	})

	return runDashboard(ctrl, latch, fmt.Sprintf("Rubeus Sim (%s field)", cfg.Field))
}

// runDashboard runs the control loop next to the dashboard until the
// dashboard quits.
func runDashboard(ctrl *control.Controller, latch *control.Latch, title string) error {
	g, ctx := errgroup.WithContext(context.Background())
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	g.Go(func() error {
		if err := ctrl.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	})

	p := tea.NewProgram(newDashboard(title, ctrl, latch), tea.WithAltScreen(), tea.WithContext(ctx))
	_, uiErr := p.Run()
	cancel()

	if err := g.Wait(); err != nil {
		return err
	}
	if uiErr != nil && !errors.Is(uiErr, tea.ErrProgramKilled) {
		return fmt.Errorf("dashboard: %w", uiErr)
	}
	return nil
}

// telemetrySink returns a zap sink, teed to MQTT when enabled.
func telemetrySink(cfg *robot.Config, logger *zap.Logger) (telemetry.Sink, func(), error) {
	zapSink := telemetry.NewZapSink(logger)
	if !cfg.Telemetry.MQTT {
		return zapSink, func() {}, nil
	}
	client, err := telemetry.Dial(cfg.Telemetry.Broker, logger)
	if err != nil {
		return nil, nil, fmt.Errorf("telemetry: %w", err)
	}
	broker := cfg.Telemetry.Broker
	mqttSink := telemetry.NewMQTTSink(client, broker.Prefix, broker.QoS, logger)
	return telemetry.Multi(zapSink, mqttSink), func() {
		if err := mqttSink.Err(); err != nil {
			logger.Warn("telemetry incomplete", zap.Error(err))
		}
		client.Disconnect(250)
	}, nil
}
