package beatclock

import "time"

// Defaults shared by the constructors.
const (
	DefaultBPM           = 120.0
	DefaultTickInterval  = 0.025 // seconds of rendered time between ticks
	DefaultStepsPerCycle = 16
	DefaultStepLength    = 0.25 // beats (a sixteenth at 4/4)
)

const (
	DefaultLookahead = 100 * time.Millisecond
	DefaultInterval  = 25 * time.Millisecond
)

// Option configures a Transport, Scheduler, PhaseSequencer or RenderTransport.
// Each constructor reads the options it recognizes and ignores the rest.
type Option func(*config)

type config struct {
	bpm           float64
	startBeat     float64
	lookahead     time.Duration
	interval      time.Duration
	tickInterval  float64
	beatPulse     bool
	stepsPerCycle int
	stepLength    float64
	onStep        func(StepEvent)
}

func defaultConfig() config {
	return config{
		bpm:           DefaultBPM,
		lookahead:     DefaultLookahead,
		interval:      DefaultInterval,
		tickInterval:  DefaultTickInterval,
		stepsPerCycle: DefaultStepsPerCycle,
		stepLength:    DefaultStepLength,
	}
}

func applyOptions(opts []Option) config {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	return cfg
}

// WithBPM sets the initial tempo in beats per minute.
func WithBPM(bpm float64) Option {
	return func(cfg *config) { cfg.bpm = bpm }
}

// WithStartBeat sets the beat position playback begins from.
func WithStartBeat(beat float64) Option {
	return func(cfg *config) { cfg.startBeat = beat }
}

// WithLookahead sets how far ahead of real time a Scheduler dispatches events.
// Longer lookahead is more robust against timer jitter at the cost of control
// latency; it has no effect on event timing accuracy.
func WithLookahead(d time.Duration) Option {
	return func(cfg *config) { cfg.lookahead = d }
}

// WithInterval sets the polling cadence of a Scheduler's timer. It paces the
// loop only; event timing comes entirely from the transport's beat math.
func WithInterval(d time.Duration) Option {
	return func(cfg *config) { cfg.interval = d }
}

// WithTickInterval sets the rendered-time spacing, in seconds, between ticks
// emitted by a RenderTransport.
func WithTickInterval(sec float64) Option {
	return func(cfg *config) { cfg.tickInterval = sec }
}

// WithBeatPulse makes a RenderTransport emit an audible click on every whole
// beat instead of its near-silent keep-alive signal.
func WithBeatPulse(enabled bool) Option {
	return func(cfg *config) { cfg.beatPulse = enabled }
}

// WithStepsPerCycle sets how many steps make up one sequencer cycle.
func WithStepsPerCycle(n int) Option {
	return func(cfg *config) { cfg.stepsPerCycle = n }
}

// WithStepLength sets the length of one sequencer step in beats.
func WithStepLength(beats float64) Option {
	return func(cfg *config) { cfg.stepLength = beats }
}

// WithOnStep sets the callback a PhaseSequencer invokes for each step event.
func WithOnStep(fn func(StepEvent)) Option {
	return func(cfg *config) { cfg.onStep = fn }
}
