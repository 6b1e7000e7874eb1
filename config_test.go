package beatclock

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func writeConfigFile(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "clock.yaml")
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("writing config: %v", err)
	}
	return path
}

func TestLoadConfigOverridesDefaults(t *testing.T) {
	path := writeConfigFile(t, `
bpm: 90
stepsPerCycle: 8
midiPort: "IAC Driver"
`)
	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if cfg.BPM != 90 || cfg.StepsPerCycle != 8 || cfg.MIDIPort != "IAC Driver" {
		t.Fatalf("overrides not applied: %#v", cfg)
	}
	// Untouched fields keep their defaults.
	def := DefaultConfig()
	if cfg.SampleRate != def.SampleRate || cfg.LookaheadMs != def.LookaheadMs {
		t.Fatalf("defaults lost: %#v", cfg)
	}
}

func TestLoadConfigRejectsInvalidValues(t *testing.T) {
	path := writeConfigFile(t, "bpm: -10\n")
	if _, err := LoadConfig(path); !errors.Is(err, ErrInvalidArgument) {
		t.Fatalf("expected ErrInvalidArgument, got %v", err)
	}
}

func TestLoadConfigMissingFile(t *testing.T) {
	if _, err := LoadConfig(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Fatal("expected an error for a missing file")
	}
}

func TestLoadConfigRejectsMalformedYAML(t *testing.T) {
	path := writeConfigFile(t, "bpm: [not a number\n")
	if _, err := LoadConfig(path); err == nil {
		t.Fatal("expected a parse error")
	}
}

func TestConfigOptionsRoundTrip(t *testing.T) {
	cfg := DefaultConfig()
	cfg.BPM = 75
	cfg.StepsPerCycle = 12
	cfg.StepLengthBeats = 0.5

	got := applyOptions(cfg.Options())
	if got.bpm != 75 || got.stepsPerCycle != 12 || got.stepLength != 0.5 {
		t.Fatalf("options do not carry the config: %#v", got)
	}
	if got.tickInterval != cfg.TickIntervalSec {
		t.Fatalf("tick interval lost: %v", got.tickInterval)
	}
}
