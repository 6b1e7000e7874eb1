package beatclock

import (
	"errors"
	"math"
	"testing"
)

// beatIsTime is a running transport with a 1:1 beat/time mapping, which makes
// window math in the tests read directly in beats.
type beatIsTime struct{}

func (beatIsTime) CurrentTime() float64          { return 0 }
func (beatIsTime) IsPlaying() bool               { return true }
func (beatIsTime) BeatAtTime(tm float64) float64 { return tm }
func (beatIsTime) TimeAtBeat(b float64) float64  { return b }

func (beatIsTime) PhaseAtTime(tm, cycleBeats float64) float64 {
	if cycleBeats <= 0 {
		cycleBeats = 1
	}
	return math.Mod(math.Mod(tm, cycleBeats)+cycleBeats, cycleBeats) / cycleBeats
}

func collectSteps(t *testing.T, opts ...Option) (*PhaseSequencer, *[]StepEvent) {
	t.Helper()
	var events []StepEvent
	seq, err := NewPhaseSequencer(append(opts,
		WithOnStep(func(ev StepEvent) { events = append(events, ev) }))...)
	if err != nil {
		t.Fatalf("NewPhaseSequencer failed: %v", err)
	}
	return seq, &events
}

func TestBoundaryStepFiresOnceInLaterWindow(t *testing.T) {
	seq, events := collectSteps(t, WithStepsPerCycle(4), WithStepLength(0.25))
	tr := beatIsTime{}
	seq.Schedule(tr, 0, 1)
	seq.Schedule(tr, 1, 2)

	if len(*events) != 8 {
		t.Fatalf("expected 8 steps over two windows, got %d", len(*events))
	}
	for i, ev := range *events {
		if ev.StepIndex != int64(i) {
			t.Fatalf("step %d has index %d", i, ev.StepIndex)
		}
	}
	// The beat-1.0 step sits exactly on the window edge and belongs to the
	// second window.
	if got := (*events)[4].Beat; got != 1 {
		t.Fatalf("expected the second window to open with beat 1, got %v", got)
	}
}

func TestNegativeBeatWindow(t *testing.T) {
	seq, events := collectSteps(t, WithStepsPerCycle(4), WithStepLength(0.25))
	seq.Schedule(beatIsTime{}, -1, 0)

	if len(*events) != 4 {
		t.Fatalf("expected 4 steps, got %#v", *events)
	}
	for i, ev := range *events {
		if ev.StepIndex != int64(i-4) {
			t.Fatalf("step %d has index %d", i, ev.StepIndex)
		}
		if ev.StepInCycle != i {
			t.Fatalf("step %d has stepInCycle %d", i, ev.StepInCycle)
		}
		if ev.CycleIndex != -1 {
			t.Fatalf("step %d has cycleIndex %d", i, ev.CycleIndex)
		}
		if want := float64(i) * 0.25; math.Abs(ev.Phase-want) > 1e-12 {
			t.Fatalf("step %d has phase %v, want %v", i, ev.Phase, want)
		}
	}
}

func TestCycleAccounting(t *testing.T) {
	seq, events := collectSteps(t, WithStepsPerCycle(4), WithStepLength(1))
	seq.Schedule(beatIsTime{}, 0, 9)

	if len(*events) != 9 {
		t.Fatalf("expected 9 steps, got %d", len(*events))
	}
	ev := (*events)[6]
	if ev.CycleIndex != 1 || ev.StepInCycle != 2 {
		t.Fatalf("step 6 misplaced: %#v", ev)
	}
	if math.Abs(ev.Phase-0.5) > 1e-12 {
		t.Fatalf("step 6 has phase %v, want 0.5", ev.Phase)
	}
	if got := seq.CycleBeats(); got != 4 {
		t.Fatalf("expected 4-beat cycle, got %v", got)
	}
}

func TestEmptyWindowEmitsNothing(t *testing.T) {
	seq, events := collectSteps(t)
	seq.Schedule(beatIsTime{}, 1, 1)
	seq.Schedule(beatIsTime{}, 2, 1)
	if len(*events) != 0 {
		t.Fatalf("expected no steps from empty windows, got %#v", *events)
	}
}

func TestNilStepCallbackIsSafe(t *testing.T) {
	seq, err := NewPhaseSequencer()
	if err != nil {
		t.Fatalf("NewPhaseSequencer failed: %v", err)
	}
	seq.Schedule(beatIsTime{}, 0, 10) // must not panic
}

func TestSequencerValidation(t *testing.T) {
	if _, err := NewPhaseSequencer(WithStepsPerCycle(0)); !errors.Is(err, ErrInvalidArgument) {
		t.Fatalf("expected ErrInvalidArgument, got %v", err)
	}
	if _, err := NewPhaseSequencer(WithStepLength(-0.5)); !errors.Is(err, ErrInvalidArgument) {
		t.Fatalf("expected ErrInvalidArgument, got %v", err)
	}
	seq, err := NewPhaseSequencer()
	if err != nil {
		t.Fatalf("NewPhaseSequencer failed: %v", err)
	}
	if err := seq.SetStepsPerCycle(-1); !errors.Is(err, ErrInvalidArgument) {
		t.Fatalf("expected ErrInvalidArgument, got %v", err)
	}
	if err := seq.SetStepLength(0); !errors.Is(err, ErrInvalidArgument) {
		t.Fatalf("expected ErrInvalidArgument, got %v", err)
	}
}

func TestSettersApplyToNextWindow(t *testing.T) {
	seq, events := collectSteps(t, WithStepsPerCycle(4), WithStepLength(1))
	seq.Schedule(beatIsTime{}, 0, 2)
	if err := seq.SetStepLength(0.5); err != nil {
		t.Fatalf("SetStepLength failed: %v", err)
	}
	seq.Schedule(beatIsTime{}, 2, 3)

	// Two whole-beat steps, then two half-beat steps.
	if len(*events) != 4 {
		t.Fatalf("expected 4 steps, got %#v", *events)
	}
	if got := (*events)[3].Beat; got != 2.5 {
		t.Fatalf("expected final step at beat 2.5, got %v", got)
	}
}
