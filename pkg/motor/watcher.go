package motor

import (
	"errors"

	"go.uber.org/zap"

	"github.com/gwillem/rubeus/pkg/clock"
)

// WatcherConfig sets the overcurrent thresholds of a CurrentWatcher.
type WatcherConfig struct {
	DangerCurrent float64 `json:"danger_current" yaml:"danger_current"` // amps
	DangerSeconds float64 `json:"danger_seconds" yaml:"danger_seconds"` // sustained spike before tripping
	Cooldown      float64 `json:"cooldown" yaml:"cooldown"`             // seconds below threshold before clearing
}

// Validate reports nonsensical thresholds.
func (c WatcherConfig) Validate() error {
	if c.DangerCurrent <= 0 {
		return errors.New("danger current must be positive")
	}
	if c.DangerSeconds < 0 || c.Cooldown < 0 {
		return errors.New("danger seconds and cooldown must not be negative")
	}
	return nil
}

// CurrentWatcher trips when the current stays above DangerCurrent for
// DangerSeconds and clears only after the current has stayed below it for
// Cooldown seconds. Callers must zero the guarded actuator while Endangered.
type CurrentWatcher struct {
	name   string
	sensor CurrentSensor
	clock  clock.Clock
	cfg    WatcherConfig
	logger *zap.Logger

	spikeStart float64 // -1 = no spike
	coolStart  float64 // -1 = not cooling
	latched    bool
	endangered bool
}

// NewCurrentWatcher returns a watcher for sensor. It reports endangered until
// the first Update. It panics on an invalid config.
func NewCurrentWatcher(name string, sensor CurrentSensor, clk clock.Clock, cfg WatcherConfig, logger *zap.Logger) *CurrentWatcher {
	if err := cfg.Validate(); err != nil {
		panic("current watcher " + name + ": " + err.Error())
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CurrentWatcher{
		name:       name,
		sensor:     sensor,
		clock:      clk,
		cfg:        cfg,
		logger:     logger.With(zap.String("watcher", name)),
		spikeStart: -1,
		coolStart:  -1,
		endangered: true,
	}
}

// Update samples the current and recomputes the endangered flag. Call it once
// per tick.
func (w *CurrentWatcher) Update() bool {
	now := w.clock.Now()
	current := w.sensor.GetCurrent()
	above := current > w.cfg.DangerCurrent

	if w.latched {
		// any sample above threshold restarts the cooldown
		if above {
			w.coolStart = -1
		} else if w.coolStart < 0 {
			w.coolStart = now
		}
		if w.coolStart >= 0 && now-w.coolStart >= w.cfg.Cooldown {
			w.latched = false
			w.coolStart = -1
		}
	} else {
		if above {
			if w.spikeStart < 0 {
				w.spikeStart = now
			}
			if now-w.spikeStart >= w.cfg.DangerSeconds {
				w.latched = true
			}
		}
	}
	if !above || w.latched {
		w.spikeStart = -1
	}
	endangered := w.latched

	if endangered != w.endangered {
		if endangered {
			w.logger.Warn("overcurrent", zap.Float64("amps", current), zap.Float64("t", now))
		} else {
			w.logger.Info("current safe", zap.Float64("t", now))
		}
	}
	w.endangered = endangered
	return endangered
}

// Endangered reports the flag computed by the last Update.
func (w *CurrentWatcher) Endangered() bool {
	return w.endangered
}

// Name returns the watcher's label.
func (w *CurrentWatcher) Name() string {
	return w.name
}
