package robot

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/hipsterbrown/feetech-servo/feetech"
	"go.uber.org/zap"

	"github.com/gwillem/rubeus/pkg/motor"
)

// ServoBus reads STS servos used as absolute steering encoders. Positions are
// read in one sync read per Refresh and cached for the control loop.
type ServoBus struct {
	calibration Calibration
	logger      *zap.Logger

	read   func(ctx context.Context) (map[int]int, error)
	torque func(ctx context.Context, on bool) error
	close  func() error

	mu      sync.RWMutex
	raw     map[int]int
	err     error
	failing bool
}

// OpenServoBus creates and initializes a servo bus connection.
func OpenServoBus(port string, cal Calibration, logger *zap.Logger) (*ServoBus, error) {
	// Open serial bus
	bus, err := feetech.NewBus(feetech.BusConfig{
		Port:     port,
		BaudRate: 1_000_000,
		Protocol: feetech.ProtocolSTS,
		Timeout:  100 * time.Millisecond,
	})
	if err != nil {
		return nil, fmt.Errorf("open bus: %w", err)
	}

	// Create servo group from calibration IDs
	group := feetech.NewServoGroupByIDs(bus, cal.MotorIDs()...)

	read := func(ctx context.Context) (map[int]int, error) {
		positions, err := group.Positions(ctx)
		if err != nil {
			return nil, err
		}
		raw := make(map[int]int, len(positions))
		for id, pos := range positions {
			raw[id] = pos
		}
		return raw, nil
	}
	torque := func(ctx context.Context, on bool) error {
		if on {
			return group.EnableAll(ctx)
		}
		return group.DisableAll(ctx)
	}
	return newServoBus(cal, read, torque, bus.Close, logger), nil
}

func newServoBus(cal Calibration, read func(context.Context) (map[int]int, error), torque func(context.Context, bool) error, closer func() error, logger *zap.Logger) *ServoBus {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ServoBus{
		calibration: cal,
		logger:      logger.Named("servo"),
		read:        read,
		torque:      torque,
		close:       closer,
		raw:         make(map[int]int),
	}
}

// Close closes the bus connection.
func (b *ServoBus) Close() error {
	return b.close()
}

// Enable enables torque on all servos.
func (b *ServoBus) Enable(ctx context.Context) error {
	return b.torque(ctx, true)
}

// Disable disables torque so the axles turn freely.
func (b *ServoBus) Disable(ctx context.Context) error {
	return b.torque(ctx, false)
}

// Refresh reads all positions. On failure the previous readings are kept.
func (b *ServoBus) Refresh(ctx context.Context) error {
	raw, err := b.read(ctx)

	b.mu.Lock()
	defer b.mu.Unlock()
	if err != nil {
		err = fmt.Errorf("read positions: %w", err)
		if !b.failing {
			b.logger.Warn("servo bus error", zap.Error(err))
		}
		b.failing = true
		b.err = err
		return err
	}
	if b.failing {
		b.logger.Info("servo bus recovered")
	}
	b.failing = false
	for id, pos := range raw {
		b.raw[id] = pos
	}
	return nil
}

// Err returns the most recent read failure.
func (b *ServoBus) Err() error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.err
}

// Raw returns the cached raw position of a device.
func (b *ServoBus) Raw(name MotorName) (int, bool) {
	cal, ok := b.calibration[name]
	if !ok {
		return 0, false
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	pos, ok := b.raw[cal.ID]
	return pos, ok
}

// Ticks returns the cached position of a device in encoder ticks.
func (b *ServoBus) Ticks(name MotorName) float64 {
	raw, ok := b.Raw(name)
	if !ok {
		return 0
	}
	return b.calibration[name].Ticks(raw)
}

// Encoder returns the named servo as an absolute encoder.
func (b *ServoBus) Encoder(name MotorName) motor.AbsoluteEncoder {
	return encoderFunc(func() float64 { return b.Ticks(name) })
}
