package robot

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/gwillem/rubeus/pkg/arm"
	"github.com/gwillem/rubeus/pkg/odometry"
	"github.com/gwillem/rubeus/pkg/swerve"
	"github.com/gwillem/rubeus/pkg/telemetry"
)

const DefaultConfigFile = "rubeus.yaml"

// Marker fields known to Config.Field.
const (
	FieldOfficial   = "official"
	FieldMakerspace = "makerspace"
)

// Config holds the robot configuration
type Config struct {
	Hz        int             `json:"hz" yaml:"hz"`
	Field     string          `json:"field" yaml:"field"`
	Drive     DriveConfig     `json:"drive" yaml:"drive"`
	Arm       arm.Config      `json:"arm" yaml:"arm"`
	Devices   Calibration     `json:"devices" yaml:"devices"`
	CAN       CANConfig       `json:"can" yaml:"can"`
	ServoPort string          `json:"servo_port,omitempty" yaml:"servo_port,omitempty"`
	Telemetry TelemetryConfig `json:"telemetry" yaml:"telemetry"`
}

// DriveConfig holds the swerve drive and its stick shaping.
type DriveConfig struct {
	LockTime            float64       `json:"lock_time" yaml:"lock_time"` // idle seconds before the wheels lock, negative = never
	TranslationDeadband float64       `json:"translation_deadband" yaml:"translation_deadband"`
	RotationDeadband    float64       `json:"rotation_deadband" yaml:"rotation_deadband"`
	FieldOriented       bool          `json:"field_oriented" yaml:"field_oriented"`
	Wheels              []WheelConfig `json:"wheels" yaml:"wheels"`
}

// WheelConfig is one swerve module, listed in chain order.
type WheelConfig struct {
	Name                string `json:"name" yaml:"name"`
	swerve.ModuleConfig `yaml:",inline"`
}

// CANConfig locates the motor controller bus.
type CANConfig struct {
	Interface string `json:"interface" yaml:"interface"`
}

// TelemetryConfig enables publishing over MQTT.
type TelemetryConfig struct {
	MQTT   bool                 `json:"mqtt" yaml:"mqtt"`
	Broker telemetry.MQTTConfig `json:"broker" yaml:"broker"`
}

// DefaultConfig returns the competition robot.
func DefaultConfig() Config {
	wheel := func(name string, role int, offset float64) WheelConfig {
		return WheelConfig{Name: name, ModuleConfig: swerve.DefaultModuleConfig(role, offset)}
	}
	return Config{
		Hz:    50,
		Field: FieldOfficial,
		Drive: DriveConfig{
			LockTime:            1,
			TranslationDeadband: 0.12,
			RotationDeadband:    0.2,
			FieldOriented:       true,
			Wheels: []WheelConfig{
				wheel("back_left", 0, 1024+1569),
				wheel("back_right", 3, -1024+2635),
				wheel("front_right", 2, 1024+3808),
				wheel("front_left", 1, -1024+1190),
			},
		},
		Arm: arm.DefaultConfig(),
		Devices: Calibration{
			BackRightSteer:    {ID: 1},
			BackRightDrive:    {ID: 2},
			FrontRightDrive:   {ID: 3},
			FrontRightSteer:   {ID: 4},
			FrontLeftSteer:    {ID: 5},
			FrontLeftDrive:    {ID: 6},
			BackLeftSteer:     {ID: 7},
			BackLeftDrive:     {ID: 8},
			BackRightEncoder:  {ID: 9},
			BackLeftEncoder:   {ID: 10},
			FrontRightEncoder: {ID: 11},
			FrontLeftEncoder:  {ID: 12},
			Hand:              {ID: 13},
			Elbow:             {ID: 14},
			Shoulder:          {ID: 15},
		},
		CAN:       CANConfig{Interface: "can0"},
		Telemetry: TelemetryConfig{Broker: telemetry.DefaultMQTTConfig()},
	}
}

// Validate checks every static invariant before any controller is built.
func (c *Config) Validate() error {
	if c.Hz <= 0 {
		return fmt.Errorf("hz %d must be positive", c.Hz)
	}
	if _, err := c.Markers(); err != nil {
		return err
	}

	wheels := Wheels()
	if len(c.Drive.Wheels) != len(wheels) {
		return fmt.Errorf("drive: %d wheels configured, want %d", len(c.Drive.Wheels), len(wheels))
	}
	for i, w := range c.Drive.Wheels {
		if w.Name != wheels[i].Name {
			return fmt.Errorf("drive: wheel %d is %q, want %q", i, w.Name, wheels[i].Name)
		}
		if err := w.ModuleConfig.Validate(); err != nil {
			return fmt.Errorf("drive: %s: %w", w.Name, err)
		}
	}

	if err := c.Arm.Validate(); err != nil {
		return fmt.Errorf("arm: %w", err)
	}

	if err := c.Devices.Validate(); err != nil {
		return fmt.Errorf("devices: %w", err)
	}
	for _, name := range append(AllMotors(), AllEncoders()...) {
		if _, ok := c.Devices[name]; !ok {
			return fmt.Errorf("devices: %s missing", name)
		}
	}

	if c.Telemetry.MQTT {
		if err := c.Telemetry.Broker.Validate(); err != nil {
			return fmt.Errorf("telemetry: %w", err)
		}
	}
	return nil
}

// Markers returns the marker table of the configured field.
func (c *Config) Markers() (*odometry.MarkerTable, error) {
	switch c.Field {
	case FieldOfficial:
		return odometry.Official(), nil
	case FieldMakerspace:
		return odometry.Makerspace(), nil
	default:
		return nil, fmt.Errorf("unknown field %q", c.Field)
	}
}

// Wheel returns the configuration of the named wheel.
func (c *Config) Wheel(name string) (WheelConfig, bool) {
	for _, w := range c.Drive.Wheels {
		if w.Name == name {
			return w, true
		}
	}
	return WheelConfig{}, false
}

// SetEncoderOffset records the reading of a wheel pointing forward.
func (c *Config) SetEncoderOffset(name string, ticks float64) error {
	for i := range c.Drive.Wheels {
		if c.Drive.Wheels[i].Name == name {
			c.Drive.Wheels[i].EncoderOffset = ticks
			return nil
		}
	}
	return fmt.Errorf("no wheel %q", name)
}

func isYAML(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return true
	}
	return false
}

// LoadConfigFrom loads configuration from a JSON or YAML file, chosen by
// extension. Missing fields keep their defaults.
func LoadConfigFrom(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	cfg := DefaultConfig()
	// slices are replaced wholesale, not merged
	cfg.Drive.Wheels = nil
	if isYAML(path) {
		err = yaml.Unmarshal(data, &cfg)
	} else {
		err = json.Unmarshal(data, &cfg)
	}
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	if cfg.Drive.Wheels == nil {
		cfg.Drive.Wheels = DefaultConfig().Drive.Wheels
	}
	for i := range cfg.Drive.Wheels {
		if cfg.Drive.Wheels[i].Circumference == 0 {
			cfg.Drive.Wheels[i].Circumference = swerve.DefaultCircumference
		}
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return &cfg, nil
}

// SaveTo saves configuration to a JSON or YAML file, chosen by extension.
func (c *Config) SaveTo(path string) error {
	var (
		data []byte
		err  error
	)
	if isYAML(path) {
		data, err = yaml.Marshal(c)
	} else {
		data, err = json.MarshalIndent(c, "", "  ")
	}
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// ConfigExists returns true if the config file exists
func ConfigExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
