// Package control runs the robot's periodic loop.
package control

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/gwillem/rubeus/pkg/arm"
	"github.com/gwillem/rubeus/pkg/robot"
)

// Source returns the operator input for the next tick.
type Source func() robot.Input

// World is advanced after every tick. The simulator is one.
type World interface {
	Step(dt float64)
}

// Config holds configuration for the controller.
type Config struct {
	Hz     int
	Input  Source // nil means no input
	World  World  // nil on real hardware
	Logger *zap.Logger
	Feed   *LogFeed
}

// Controller ticks a robot at a fixed rate and publishes every state.
type Controller struct {
	robot  *robot.Robot
	input  Source
	world  World
	hz     int
	logger *zap.Logger
	feed   *LogFeed

	mu      sync.RWMutex
	running bool
	last    robot.State
	ticks   int
	stateCh chan robot.State
}

// NewController creates a new controller.
func NewController(r *robot.Robot, cfg Config) *Controller {
	if cfg.Hz <= 0 {
		cfg.Hz = 50
	}
	if cfg.Input == nil {
		cfg.Input = func() robot.Input { return robot.Input{} }
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.Feed == nil {
		cfg.Feed = NewLogFeed(10)
	}
	return &Controller{
		robot:   r,
		input:   cfg.Input,
		world:   cfg.World,
		hz:      cfg.Hz,
		logger:  cfg.Logger.Named("control"),
		feed:    cfg.Feed,
		stateCh: make(chan robot.State, 1),
	}
}

// States returns a channel that receives state updates. Only the newest
// state is kept.
func (c *Controller) States() <-chan robot.State {
	return c.stateCh
}

// Logs returns a channel that receives log lines.
func (c *Controller) Logs() <-chan string {
	return c.feed.Lines()
}

// Hz returns the control frequency.
func (c *Controller) Hz() int {
	return c.hz
}

// Last returns the most recent state and the number of ticks run.
func (c *Controller) Last() (robot.State, int) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.last, c.ticks
}

// Start runs the control loop until ctx is done, then stops the robot.
func (c *Controller) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.running {
		c.mu.Unlock()
		return errors.New("already running")
	}
	c.running = true
	c.mu.Unlock()

	c.logger.Info("control started", zap.Int("hz", c.hz))

	ticker := time.NewTicker(time.Second / time.Duration(c.hz))
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			c.shutdown()
			return ctx.Err()
		case <-ticker.C:
			c.Step(ctx)
		}
	}
}

// Step runs one tick with the current input and advances the world.
func (c *Controller) Step(ctx context.Context) robot.State {
	st := c.robot.Tick(ctx, c.input())
	if c.world != nil {
		c.world.Step(1 / float64(c.hz))
	}

	c.mu.Lock()
	c.last = st
	c.ticks++
	c.mu.Unlock()

	c.sendState(st)
	return st
}

func (c *Controller) sendState(s robot.State) {
	select {
	case c.stateCh <- s:
	default:
		// Drop old state if channel full, replace with new
		select {
		case <-c.stateCh:
		default:
		}
		select {
		case c.stateCh <- s:
		default:
		}
	}
}

func (c *Controller) shutdown() {
	c.mu.Lock()
	c.running = false
	c.mu.Unlock()

	c.robot.Stop()
	c.logger.Info("control stopped")
}

// LogFeed turns log entries into short lines for a dashboard. Lines nobody
// reads are dropped.
type LogFeed struct {
	ch chan string
}

// NewLogFeed returns a feed buffering up to size lines.
func NewLogFeed(size int) *LogFeed {
	return &LogFeed{ch: make(chan string, size)}
}

// Hook is a zap hook: pass it to zap.Hooks.
func (f *LogFeed) Hook(e zapcore.Entry) error {
	f.add(fmt.Sprintf("[%s] %s %s", e.Time.Format("15:04:05"), e.Level.CapitalString(), e.Message))
	return nil
}

// Printf adds a line.
func (f *LogFeed) Printf(format string, args ...any) {
	f.add(fmt.Sprintf("[%s] %s", time.Now().Format("15:04:05"), fmt.Sprintf(format, args...)))
}

func (f *LogFeed) add(line string) {
	select {
	case f.ch <- line:
	default:
		// Drop if channel full
	}
}

// Lines returns the feed.
func (f *LogFeed) Lines() <-chan string {
	return f.ch
}

// Latch holds the operator input between ticks. Requests that act once
// (Zero, Retract, ZeroHeading, Grab and arm presets) clear after each read.
type Latch struct {
	mu sync.Mutex
	in robot.Input
}

// Set replaces the held input.
func (l *Latch) Set(in robot.Input) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.in = in
}

// Update edits the held input in place.
func (l *Latch) Update(fn func(*robot.Input)) {
	l.mu.Lock()
	defer l.mu.Unlock()
	fn(&l.in)
}

// Read returns the input for this tick. It is a Source.
func (l *Latch) Read() robot.Input {
	l.mu.Lock()
	defer l.mu.Unlock()
	in := l.in
	l.in.Zero = false
	l.in.Retract = false
	l.in.ZeroHeading = false
	l.in.Grab = arm.GrabOff
	l.in.ArmPreset = robot.PresetKeep
	return in
}
