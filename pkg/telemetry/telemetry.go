// Package telemetry publishes named numbers and flags from the control loop.
// Every sink is optional: the core runs the same against Nop.
package telemetry

import (
	"maps"
	"slices"
	"sync"

	"go.uber.org/zap"
)

// Sink receives key/value telemetry. Implementations must not block.
type Sink interface {
	PutNumber(key string, value float64)
	PutBoolean(key string, value bool)
}

// Nop discards everything.
type Nop struct{}

func (Nop) PutNumber(string, float64) {}
func (Nop) PutBoolean(string, bool) {}

// OrNop returns s, or Nop when s is nil.
func OrNop(s Sink) Sink {
	if s == nil {
		return Nop{}
	}
	return s
}

// Recorder keeps the latest value of every key. It is safe for concurrent use
// so a dashboard can read while the loop writes.
type Recorder struct {
	mu       sync.RWMutex
	numbers  map[string]float64
	booleans map[string]bool
}

// NewRecorder returns an empty recorder.
func NewRecorder() *Recorder {
	return &Recorder{
		numbers:  make(map[string]float64),
		booleans: make(map[string]bool),
	}
}

func (r *Recorder) PutNumber(key string, value float64) {
	r.mu.Lock()
	r.numbers[key] = value
	r.mu.Unlock()
}

func (r *Recorder) PutBoolean(key string, value bool) {
	r.mu.Lock()
	r.booleans[key] = value
	r.mu.Unlock()
}

// Number returns the latest value of key.
func (r *Recorder) Number(key string) (float64, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	v, ok := r.numbers[key]
	return v, ok
}

// Boolean returns the latest value of key.
func (r *Recorder) Boolean(key string) (bool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	v, ok := r.booleans[key]
	return v, ok
}

// Numbers returns a copy of every numeric value.
func (r *Recorder) Numbers() map[string]float64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return maps.Clone(r.numbers)
}

// Keys returns every recorded key, sorted.
func (r *Recorder) Keys() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	keys := slices.Collect(maps.Keys(r.numbers))
	keys = slices.AppendSeq(keys, maps.Keys(r.booleans))
	slices.Sort(keys)
	return keys
}

// ZapSink writes telemetry as debug log entries.
type ZapSink struct {
	logger *zap.Logger
}

// NewZapSink returns a sink logging through logger.
func NewZapSink(logger *zap.Logger) *ZapSink {
	return &ZapSink{logger: logger.Named("telemetry")}
}

func (s *ZapSink) PutNumber(key string, value float64) {
	s.logger.Debug("number", zap.String("key", key), zap.Float64("value", value))
}

func (s *ZapSink) PutBoolean(key string, value bool) {
	s.logger.Debug("boolean", zap.String("key", key), zap.Bool("value", value))
}

type multi []Sink

// Multi fans every value out to all sinks. Nil sinks are skipped.
func Multi(sinks ...Sink) Sink {
	var m multi
	for _, s := range sinks {
		if s != nil {
			m = append(m, s)
		}
	}
	return m
}

func (m multi) PutNumber(key string, value float64) {
	for _, s := range m {
		s.PutNumber(key, value)
	}
}

func (m multi) PutBoolean(key string, value bool) {
	for _, s := range m {
		s.PutBoolean(key, value)
	}
}
