package beatclock

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the file-level configuration consumed by the command-line front
// ends. Fields left zero in the file keep their defaults.
type Config struct {
	BPM             float64 `yaml:"bpm"`
	StartBeat       float64 `yaml:"startBeat"`
	LookaheadMs     int     `yaml:"lookaheadMs"`
	IntervalMs      int     `yaml:"intervalMs"`
	TickIntervalSec float64 `yaml:"tickIntervalSec"`
	SampleRate      int     `yaml:"sampleRate"`
	StepsPerCycle   int     `yaml:"stepsPerCycle"`
	StepLengthBeats float64 `yaml:"stepLengthBeats"`
	MIDIPort        string  `yaml:"midiPort"`
}

// DefaultConfig mirrors the package option defaults.
func DefaultConfig() Config {
	return Config{
		BPM:             DefaultBPM,
		LookaheadMs:     int(DefaultLookahead / time.Millisecond),
		IntervalMs:      int(DefaultInterval / time.Millisecond),
		TickIntervalSec: DefaultTickInterval,
		SampleRate:      48000,
		StepsPerCycle:   DefaultStepsPerCycle,
		StepLengthBeats: DefaultStepLength,
	}
}

// LoadConfig reads a YAML config file over the defaults.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parsing %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Validate rejects values the constructors would reject.
func (c Config) Validate() error {
	if c.BPM <= 0 {
		return fmt.Errorf("%w: bpm must be positive, got %v", ErrInvalidArgument, c.BPM)
	}
	if c.StartBeat < 0 {
		return fmt.Errorf("%w: startBeat must be >= 0, got %v", ErrInvalidArgument, c.StartBeat)
	}
	if c.LookaheadMs <= 0 || c.IntervalMs <= 0 {
		return fmt.Errorf("%w: lookaheadMs and intervalMs must be positive", ErrInvalidArgument)
	}
	if c.TickIntervalSec <= 0 {
		return fmt.Errorf("%w: tickIntervalSec must be positive, got %v", ErrInvalidArgument, c.TickIntervalSec)
	}
	if c.SampleRate <= 0 {
		return fmt.Errorf("%w: sampleRate must be positive, got %d", ErrInvalidArgument, c.SampleRate)
	}
	if c.StepsPerCycle <= 0 || c.StepLengthBeats <= 0 {
		return fmt.Errorf("%w: stepsPerCycle and stepLengthBeats must be positive", ErrInvalidArgument)
	}
	return nil
}

// Options expands the config into constructor options. Each constructor picks
// the ones it recognizes.
func (c Config) Options() []Option {
	return []Option{
		WithBPM(c.BPM),
		WithStartBeat(c.StartBeat),
		WithLookahead(time.Duration(c.LookaheadMs) * time.Millisecond),
		WithInterval(time.Duration(c.IntervalMs) * time.Millisecond),
		WithTickInterval(c.TickIntervalSec),
		WithStepsPerCycle(c.StepsPerCycle),
		WithStepLength(c.StepLengthBeats),
	}
}
