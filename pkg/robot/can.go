package robot

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/go-daq/canbus"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sys/unix"

	"github.com/gwillem/rubeus/pkg/motor"
)

// Frame ids are a base plus the device id.
const (
	canCommandBase uint32 = 0x200 // duty cycle command, host to controller
	canStatusBase  uint32 = 0x400 // motor status, controller to host
	canEncoderBase uint32 = 0x500 // absolute encoder, sensor to host

	dutyScale    = math.MaxInt16
	velocityUnit = 4    // ticks per second per count
	currentUnit  = 0.25 // amps per count

	statusLen  = 8
	encoderLen = 2

	// receive retry backoff after a transient socket error
	minRecvBackoff = time.Millisecond
	maxRecvBackoff = 100 * time.Millisecond
	// readings older than this are stale
	defaultCANStaleAfter = 500 * time.Millisecond
)

const (
	flagInverted = 1 << iota
)

const (
	flagForwardLimit = 1 << iota
	flagReverseLimit
)

// MotorStatus is the periodic report of a motor controller.
type MotorStatus struct {
	Position     float64 // ticks
	Velocity     float64 // ticks per second
	Current      float64 // amps
	ForwardLimit bool
	ReverseLimit bool
}

// CommandFrame encodes a duty cycle command for device id.
func CommandFrame(id int, percent float64, inverted bool) canbus.Frame {
	percent = math.Max(-1, math.Min(1, percent))
	data := make([]byte, 3)
	binary.LittleEndian.PutUint16(data[0:2], uint16(int16(math.Round(percent*dutyScale))))
	if inverted {
		data[2] |= flagInverted
	}
	return canbus.Frame{
		ID:   canCommandBase + uint32(id),
		Data: data,
		Kind: canbus.SFF,
	}
}

// StatusFrame encodes a motor status report for device id.
func StatusFrame(id int, s MotorStatus) canbus.Frame {
	data := make([]byte, statusLen)
	binary.LittleEndian.PutUint32(data[0:4], uint32(int32(math.Round(s.Position))))
	binary.LittleEndian.PutUint16(data[4:6], uint16(int16(math.Round(s.Velocity/velocityUnit))))
	data[6] = uint8(math.Max(0, math.Min(math.Round(s.Current/currentUnit), math.MaxUint8)))
	if s.ForwardLimit {
		data[7] |= flagForwardLimit
	}
	if s.ReverseLimit {
		data[7] |= flagReverseLimit
	}
	return canbus.Frame{
		ID:   canStatusBase + uint32(id),
		Data: data,
		Kind: canbus.SFF,
	}
}

// DecodeStatus parses a motor status frame.
func DecodeStatus(f canbus.Frame) (MotorStatus, error) {
	if len(f.Data) < statusLen {
		return MotorStatus{}, fmt.Errorf("status frame %#x: %d bytes, want %d", f.ID, len(f.Data), statusLen)
	}
	return MotorStatus{
		Position:     float64(int32(binary.LittleEndian.Uint32(f.Data[0:4]))),
		Velocity:     float64(int16(binary.LittleEndian.Uint16(f.Data[4:6]))) * velocityUnit,
		Current:      float64(f.Data[6]) * currentUnit,
		ForwardLimit: f.Data[7]&flagForwardLimit != 0,
		ReverseLimit: f.Data[7]&flagReverseLimit != 0,
	}, nil
}

// EncoderFrame encodes an absolute encoder report for device id.
func EncoderFrame(id int, ticks float64) canbus.Frame {
	data := make([]byte, encoderLen)
	binary.LittleEndian.PutUint16(data, uint16(motor.SmartLoop(math.Round(ticks), EncoderCircumference)))
	return canbus.Frame{
		ID:   canEncoderBase + uint32(id),
		Data: data,
		Kind: canbus.SFF,
	}
}

// DecodeEncoder parses an absolute encoder frame.
func DecodeEncoder(f canbus.Frame) (float64, error) {
	if len(f.Data) < encoderLen {
		return 0, fmt.Errorf("encoder frame %#x: %d bytes, want %d", f.ID, len(f.Data), encoderLen)
	}
	return motor.SmartLoop(float64(binary.LittleEndian.Uint16(f.Data)), EncoderCircumference), nil
}

type frameSocket interface {
	Send(canbus.Frame) (int, error)
	Recv() (canbus.Frame, error)
	Close() error
}

// CANBus sends duty commands and caches the latest status of every device.
// A background worker receives status frames until Close.
type CANBus struct {
	tx, rx frameSocket
	logger *zap.Logger

	mu       sync.RWMutex
	status   map[int]MotorStatus
	encoders map[int]float64
	err      error
	failing  bool

	lastFrame  time.Time
	staleAfter time.Duration
	dead       error // set once the receive worker gave up

	cancel context.CancelFunc
	group  *errgroup.Group
}

// OpenCANBus binds to a SocketCAN interface and listens for the status
// frames of every device in devices.
func OpenCANBus(ctx context.Context, iface string, devices Calibration, logger *zap.Logger) (*CANBus, error) {
	tx, err := canbus.New()
	if err != nil {
		return nil, fmt.Errorf("open send socket: %w", err)
	}
	if err := tx.Bind(iface); err != nil {
		tx.Close()
		return nil, fmt.Errorf("bind %s: %w", iface, err)
	}

	rx, err := canbus.New()
	if err != nil {
		tx.Close()
		return nil, fmt.Errorf("open receive socket: %w", err)
	}
	var filters []unix.CanFilter
	for _, name := range AllMotors() {
		if d, ok := devices[name]; ok {
			filters = append(filters, unix.CanFilter{Id: canStatusBase + uint32(d.ID), Mask: unix.CAN_SFF_MASK})
		}
	}
	for _, name := range AllEncoders() {
		if d, ok := devices[name]; ok {
			filters = append(filters, unix.CanFilter{Id: canEncoderBase + uint32(d.ID), Mask: unix.CAN_SFF_MASK})
		}
	}
	if err := rx.SetFilters(filters); err != nil {
		tx.Close()
		rx.Close()
		return nil, fmt.Errorf("set filters: %w", err)
	}
	if err := rx.Bind(iface); err != nil {
		tx.Close()
		rx.Close()
		return nil, fmt.Errorf("bind %s: %w", iface, err)
	}

	b := newCANBus(tx, rx, logger)
	b.start(ctx)
	b.logger.Info("can bus open", zap.String("interface", iface), zap.Int("filters", len(filters)))
	return b, nil
}

func newCANBus(tx, rx frameSocket, logger *zap.Logger) *CANBus {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CANBus{
		tx:       tx,
		rx:       rx,
		logger:   logger.Named("can"),
		status:     make(map[int]MotorStatus),
		encoders:   make(map[int]float64),
		staleAfter: defaultCANStaleAfter,
	}
}

func (b *CANBus) start(ctx context.Context) {
	ctx, b.cancel = context.WithCancel(ctx)
	b.group, ctx = errgroup.WithContext(ctx)
	b.group.Go(func() error {
		return b.receive(ctx)
	})
}

// receive stores status frames until ctx is done. Transient socket errors
// are retried with backoff; any other error stops the worker for good and
// marks the bus unhealthy.
func (b *CANBus) receive(ctx context.Context) error {
	backoff := minRecvBackoff
	for ctx.Err() == nil {
		f, err := b.rx.Recv()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			err = fmt.Errorf("receive: %w", err)
			b.fail(err)
			if !transient(err) {
				b.mu.Lock()
				b.dead = err
				b.mu.Unlock()
				return err
			}
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(backoff):
			}
			backoff = min(2*backoff, maxRecvBackoff)
			continue
		}
		backoff = minRecvBackoff
		b.handle(f)
	}
	return nil
}

func transient(err error) bool {
	return errors.Is(err, unix.ENOBUFS) || errors.Is(err, unix.EAGAIN) || errors.Is(err, unix.EINTR)
}

func (b *CANBus) handle(f canbus.Frame) {
	switch {
	case f.ID >= canEncoderBase && f.ID < canEncoderBase+0x100:
		ticks, err := DecodeEncoder(f)
		if err != nil {
			b.fail(err)
			return
		}
		b.mu.Lock()
		b.encoders[int(f.ID-canEncoderBase)] = ticks
		b.received()
		b.mu.Unlock()
	case f.ID >= canStatusBase && f.ID < canStatusBase+0x100:
		s, err := DecodeStatus(f)
		if err != nil {
			b.fail(err)
			return
		}
		b.mu.Lock()
		b.status[int(f.ID-canStatusBase)] = s
		b.received()
		b.mu.Unlock()
	}
}

func (b *CANBus) send(f canbus.Frame) {
	if _, err := b.tx.Send(f); err != nil {
		b.fail(fmt.Errorf("send %#x: %w", f.ID, err))
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.recovered()
}

// received records a good frame. Hold mu.
func (b *CANBus) received() {
	b.lastFrame = time.Now()
	b.recovered()
}

// recovered ends a failure streak. Hold mu.
func (b *CANBus) recovered() {
	if b.failing {
		b.failing = false
		b.logger.Info("can bus recovered")
	}
}

func (b *CANBus) fail(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.failing {
		b.logger.Warn("can bus error", zap.Error(err))
	}
	b.failing = true
	b.err = err
}

// Err returns the most recent bus error.
func (b *CANBus) Err() error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.err
}

// Health reports whether the cached readings can be trusted: the receive
// worker is alive and a device reported within the stale window.
func (b *CANBus) Health() error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	switch {
	case b.dead != nil:
		return b.dead
	case b.lastFrame.IsZero():
		return errors.New("can bus: no reports yet")
	}
	if age := time.Since(b.lastFrame); age > b.staleAfter {
		return fmt.Errorf("can bus: no reports for %s", age.Round(time.Millisecond))
	}
	return nil
}

// Status returns the latest report of a motor controller.
func (b *CANBus) Status(id int) (MotorStatus, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	s, ok := b.status[id]
	return s, ok
}

// EncoderTicks returns the latest reading of an absolute encoder.
func (b *CANBus) EncoderTicks(id int) (float64, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	t, ok := b.encoders[id]
	return t, ok
}

// Motor returns the actuator at device id.
func (b *CANBus) Motor(id int) *CANMotor {
	return &CANMotor{bus: b, id: id}
}

// Encoder returns the absolute encoder at device id.
func (b *CANBus) Encoder(id int) motor.AbsoluteEncoder {
	return encoderFunc(func() float64 {
		t, _ := b.EncoderTicks(id)
		return t
	})
}

// Close stops the receive worker and closes both sockets.
func (b *CANBus) Close() error {
	if b.cancel != nil {
		b.cancel()
	}
	txErr := b.tx.Close()
	rxErr := b.rx.Close()
	var err error
	if b.group != nil {
		err = b.group.Wait()
	}
	for _, e := range []error{txErr, rxErr} {
		if err == nil {
			err = e
		}
	}
	return err
}

// CANMotor is a motor controller on the bus. Inversion is applied by the
// controller, so readings arrive already in the commanded sense.
type CANMotor struct {
	bus      *CANBus
	id       int
	inverted bool
}

// SetPercent sends a duty cycle command.
func (m *CANMotor) SetPercent(percent float64) {
	m.bus.send(CommandFrame(m.id, percent, m.inverted))
}

func (m *CANMotor) status() MotorStatus {
	s, _ := m.bus.Status(m.id)
	return s
}

func (m *CANMotor) GetPosition() float64 { return m.status().Position }
func (m *CANMotor) GetVelocity() float64 { return m.status().Velocity }
func (m *CANMotor) GetCurrent() float64 { return m.status().Current }

// SetInverted takes effect with the next command.
func (m *CANMotor) SetInverted(inverted bool) { m.inverted = inverted }

func (m *CANMotor) Inverted() bool { return m.inverted }

// AbsoluteEncoder reads the controller's encoder wrapped to one revolution.
func (m *CANMotor) AbsoluteEncoder() motor.AbsoluteEncoder {
	return encoderFunc(func() float64 {
		return motor.SmartLoop(m.GetPosition(), EncoderCircumference)
	})
}

// ForwardLimit is the switch wired to the controller's forward limit input.
func (m *CANMotor) ForwardLimit() motor.LimitSwitch {
	return switchFunc(func() bool { return m.status().ForwardLimit })
}

// ReverseLimit is the switch wired to the controller's reverse limit input.
func (m *CANMotor) ReverseLimit() motor.LimitSwitch {
	return switchFunc(func() bool { return m.status().ReverseLimit })
}
