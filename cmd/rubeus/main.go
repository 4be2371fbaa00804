package main

import (
	"fmt"
	"os"

	"github.com/jessevdk/go-flags"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/gwillem/rubeus/pkg/robot"
)

type Options struct {
	Config  string `short:"c" long:"config" description:"Robot configuration file, YAML or JSON (default: rubeus.yaml)"`
	LogFile string `long:"log" default:"rubeus.log" description:"Log file"`
	Verbose bool   `short:"v" long:"verbose" description:"Log debug messages"`

	Sim       SimCommand       `command:"sim" description:"Drive the simulated robot from the keyboard"`
	Run       RunCommand       `command:"run" description:"Drive the real robot over CAN"`
	Calibrate CalibrateCommand `command:"calibrate" description:"Record the forward offsets of the steering encoders"`
	Solve     SolveCommand     `command:"solve" description:"Print arm joint angles for the preset goals"`
}

var opts Options
var parser = flags.NewParser(&opts, flags.Default)

func main() {
	parser.LongDescription = "Rubeus - swerve drive and arm control for the competition robot"

	_, err := parser.Parse()
	if err != nil {
		if flagsErr, ok := err.(*flags.Error); ok {
			if flagsErr.Type == flags.ErrHelp {
				os.Exit(0)
			}
		}
		os.Exit(1)
	}
}

// loadConfig reads the configuration file, or returns the defaults when it
// does not exist yet.
func loadConfig() (*robot.Config, error) {
	if opts.Config == "" {
		opts.Config = robot.DefaultConfigFile
	}
	if !robot.ConfigExists(opts.Config) {
		cfg := robot.DefaultConfig()
		return &cfg, nil
	}
	cfg, err := robot.LoadConfigFrom(opts.Config)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}

// newLogger logs to the log file; the terminal belongs to the dashboard.
func newLogger(options ...zap.Option) (*zap.Logger, error) {
	cfg := zap.NewDevelopmentConfig()
	cfg.OutputPaths = []string{opts.LogFile}
	cfg.ErrorOutputPaths = []string{opts.LogFile}
	cfg.Level = zap.NewAtomicLevelAt(zapcore.InfoLevel)
	if opts.Verbose {
		cfg.Level.SetLevel(zapcore.DebugLevel)
	}
	return cfg.Build(options...)
}
