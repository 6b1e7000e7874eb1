package beatclock

import (
	"fmt"
	"math"
	"sync"
)

// stepEpsilon guards step boundaries against floating-point error: a step
// landing exactly on a window edge must fire exactly once, in the later
// window.
const stepEpsilon = 1e-9

// StepEvent describes one step of a phase sequencer grid.
type StepEvent struct {
	Time        float64 // clock time of the step
	Beat        float64
	StepIndex   int64 // monotonic since beat zero
	StepInCycle int
	CycleIndex  int64
	Phase       float64 // position within the cycle, in [0,1)
}

// PhaseSequencer turns a step grid into discrete, phase-accurate step events.
// It implements Schedulable: each scheduling window is converted to beat
// space and every step boundary inside it produces one StepEvent.
type PhaseSequencer struct {
	mu            sync.Mutex
	stepsPerCycle int
	stepLength    float64
	onStep        func(StepEvent)
}

// NewPhaseSequencer creates a sequencer. Recognized options: WithStepsPerCycle
// (default 16), WithStepLength (default 0.25 beats) and WithOnStep.
func NewPhaseSequencer(opts ...Option) (*PhaseSequencer, error) {
	cfg := applyOptions(opts)
	if cfg.stepsPerCycle <= 0 {
		return nil, fmt.Errorf("%w: stepsPerCycle must be positive, got %d", ErrInvalidArgument, cfg.stepsPerCycle)
	}
	if cfg.stepLength <= 0 {
		return nil, fmt.Errorf("%w: stepLength must be positive, got %v", ErrInvalidArgument, cfg.stepLength)
	}
	return &PhaseSequencer{
		stepsPerCycle: cfg.stepsPerCycle,
		stepLength:    cfg.stepLength,
		onStep:        cfg.onStep,
	}, nil
}

// SetStepsPerCycle changes the cycle length in steps.
func (ps *PhaseSequencer) SetStepsPerCycle(n int) error {
	if n <= 0 {
		return fmt.Errorf("%w: stepsPerCycle must be positive, got %d", ErrInvalidArgument, n)
	}
	ps.mu.Lock()
	ps.stepsPerCycle = n
	ps.mu.Unlock()
	return nil
}

// SetStepLength changes the step length in beats.
func (ps *PhaseSequencer) SetStepLength(beats float64) error {
	if beats <= 0 {
		return fmt.Errorf("%w: stepLength must be positive, got %v", ErrInvalidArgument, beats)
	}
	ps.mu.Lock()
	ps.stepLength = beats
	ps.mu.Unlock()
	return nil
}

// StepsPerCycle returns the cycle length in steps.
func (ps *PhaseSequencer) StepsPerCycle() int {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	return ps.stepsPerCycle
}

// StepLength returns the step length in beats.
func (ps *PhaseSequencer) StepLength() float64 {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	return ps.stepLength
}

// CycleBeats returns the length of one cycle in beats.
func (ps *PhaseSequencer) CycleBeats() float64 {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	return float64(ps.stepsPerCycle) * ps.stepLength
}

// Schedule emits one StepEvent per step boundary inside the window.
func (ps *PhaseSequencer) Schedule(tr TransportLike, windowStart, windowEnd float64) {
	ps.mu.Lock()
	steps := int64(ps.stepsPerCycle)
	stepLen := ps.stepLength
	onStep := ps.onStep
	ps.mu.Unlock()
	if onStep == nil {
		return
	}

	startBeat := tr.BeatAtTime(windowStart)
	endBeat := tr.BeatAtTime(windowEnd)
	if endBeat <= startBeat {
		return
	}

	idx := int64(math.Floor(startBeat / stepLen))
	stepBeat := float64(idx) * stepLen
	if stepBeat < startBeat-stepEpsilon {
		idx++
		stepBeat = float64(idx) * stepLen
	}

	cycleBeats := float64(steps) * stepLen
	for stepBeat < endBeat-stepEpsilon {
		onStep(StepEvent{
			Time:        tr.TimeAtBeat(stepBeat),
			Beat:        stepBeat,
			StepIndex:   idx,
			StepInCycle: int(((idx % steps) + steps) % steps),
			CycleIndex:  int64(math.Floor(float64(idx) / float64(steps))),
			Phase:       math.Mod(math.Mod(stepBeat, cycleBeats)+cycleBeats, cycleBeats) / cycleBeats,
		})
		idx++
		stepBeat = float64(idx) * stepLen
	}
}
