package beatclock

import (
	"math"
	"sync"
	"testing"
	"time"
)

type windowRecorder struct {
	mu      sync.Mutex
	windows [][2]float64
}

func (w *windowRecorder) Schedule(tr TransportLike, windowStart, windowEnd float64) {
	w.mu.Lock()
	w.windows = append(w.windows, [2]float64{windowStart, windowEnd})
	w.mu.Unlock()
}

func (w *windowRecorder) snapshot() [][2]float64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([][2]float64(nil), w.windows...)
}

func TestAdvanceWindowsAreContiguous(t *testing.T) {
	tr, _ := newTestTransport(t, WithBPM(120))
	tr.StartAt(0)
	sched := NewScheduler(tr, WithLookahead(100*time.Millisecond))
	rec := &windowRecorder{}
	sched.Add(rec)

	sched.AdvanceTo(0.05)
	sched.AdvanceTo(1.05)
	sched.AdvanceTo(1.08)

	windows := rec.snapshot()
	if len(windows) != 3 {
		t.Fatalf("expected 3 windows, got %#v", windows)
	}
	if windows[0][0] != 0 || math.Abs(windows[0][1]-0.15) > 1e-12 {
		t.Fatalf("unexpected first window %v", windows[0])
	}
	for i := 1; i < len(windows); i++ {
		if windows[i][0] != windows[i-1][1] {
			t.Fatalf("window %d does not resume where %d ended: %v then %v",
				i, i-1, windows[i-1], windows[i])
		}
	}
}

func TestAdvanceWhileStoppedTracksNow(t *testing.T) {
	tr, clk := newTestTransport(t)
	sched := NewScheduler(tr)
	rec := &windowRecorder{}
	sched.Add(rec)

	sched.AdvanceTo(3)
	sched.AdvanceTo(5)
	if got := rec.snapshot(); len(got) != 0 {
		t.Fatalf("expected no dispatch while stopped, got %#v", got)
	}

	// The cursor followed the clock, so resuming does not replay the stopped
	// span.
	clk.now = 5
	tr.StartAt(5)
	sched.AdvanceTo(5)
	windows := rec.snapshot()
	if len(windows) != 1 || windows[0][0] != 5 {
		t.Fatalf("expected one window starting at resume time, got %#v", windows)
	}
}

func TestDegenerateWindowSkipped(t *testing.T) {
	tr, _ := newTestTransport(t)
	tr.StartAt(0)
	sched := NewScheduler(tr)
	rec := &windowRecorder{}
	sched.Add(rec)

	sched.AdvanceTo(1)
	before := len(rec.snapshot())
	// now moved backwards relative to the cursor: nothing to do.
	sched.AdvanceTo(0.5)
	if got := len(rec.snapshot()); got != before {
		t.Fatalf("expected degenerate window to be skipped, got %d -> %d dispatches", before, got)
	}
}

func TestAddRemove(t *testing.T) {
	tr, _ := newTestTransport(t)
	tr.StartAt(0)
	sched := NewScheduler(tr)
	rec := &windowRecorder{}
	sched.Add(rec)
	sched.Add(rec) // idempotent
	sched.AdvanceTo(0.01)
	if got := len(rec.snapshot()); got != 1 {
		t.Fatalf("expected a single dispatch, got %d", got)
	}
	sched.Remove(rec)
	sched.Remove(rec)
	sched.AdvanceTo(1)
	if got := len(rec.snapshot()); got != 1 {
		t.Fatalf("expected no dispatch after Remove, got %d", got)
	}
}

func TestTimerDrivenAdvance(t *testing.T) {
	tr, _ := newTestTransport(t)
	tr.StartAt(0)
	sched := NewScheduler(tr, WithInterval(5*time.Millisecond))
	rec := &windowRecorder{}
	sched.Add(rec)

	sched.Start()
	sched.Start() // no-op while running
	defer sched.Stop()

	deadline := time.Now().Add(time.Second)
	for len(rec.snapshot()) == 0 {
		if time.Now().After(deadline) {
			t.Fatal("timer never dispatched a window")
		}
		time.Sleep(time.Millisecond)
	}
	sched.Stop()
	sched.Stop() // idempotent
}

// End to end: a quarter-note grid at 60 BPM driven through the scheduler.
func TestSchedulerSequencerEndToEnd(t *testing.T) {
	tr, _ := newTestTransport(t, WithBPM(60))
	tr.StartAt(0)

	var events []StepEvent
	seq, err := NewPhaseSequencer(
		WithStepsPerCycle(4),
		WithStepLength(1),
		WithOnStep(func(ev StepEvent) { events = append(events, ev) }),
	)
	if err != nil {
		t.Fatalf("NewPhaseSequencer failed: %v", err)
	}
	sched := NewScheduler(tr, WithLookahead(100*time.Millisecond))
	sched.Add(seq)

	sched.AdvanceTo(0.05)
	if len(events) != 1 {
		t.Fatalf("expected exactly one step in the first window, got %#v", events)
	}
	first := events[0]
	if first.StepIndex != 0 || first.StepInCycle != 0 || first.CycleIndex != 0 {
		t.Fatalf("unexpected first step %#v", first)
	}
	if math.Abs(first.Time) > 1e-9 || first.Phase != 0 {
		t.Fatalf("expected first step at t=0 phase 0, got %#v", first)
	}

	sched.AdvanceTo(1.05)
	if len(events) != 2 {
		t.Fatalf("expected one more step in the second window, got %#v", events)
	}
	second := events[1]
	if second.StepIndex != 1 || second.StepInCycle != 1 {
		t.Fatalf("unexpected second step %#v", second)
	}
	if math.Abs(second.Time-1) > 1e-9 || math.Abs(second.Phase-0.25) > 1e-12 {
		t.Fatalf("expected second step at t=1 phase 0.25, got %#v", second)
	}
}

// Repeated advancing must never skip or repeat a step, whatever the pacing.
func TestStepStreamIsGapFree(t *testing.T) {
	tr, _ := newTestTransport(t, WithBPM(120))
	tr.StartAt(0)

	var events []StepEvent
	seq, err := NewPhaseSequencer(
		WithStepsPerCycle(16),
		WithStepLength(0.25),
		WithOnStep(func(ev StepEvent) { events = append(events, ev) }),
	)
	if err != nil {
		t.Fatalf("NewPhaseSequencer failed: %v", err)
	}
	sched := NewScheduler(tr, WithLookahead(100*time.Millisecond))
	sched.Add(seq)

	for now := 0.0; now <= 2.0; now += 0.03 {
		sched.AdvanceTo(now)
	}

	if len(events) == 0 {
		t.Fatal("no steps emitted")
	}
	if events[0].StepIndex != 0 {
		t.Fatalf("stream does not begin at step 0: %#v", events[0])
	}
	for i := 1; i < len(events); i++ {
		if events[i].StepIndex != events[i-1].StepIndex+1 {
			t.Fatalf("step stream has a gap or repeat at %d: %d then %d",
				i, events[i-1].StepIndex, events[i].StepIndex)
		}
		if events[i].Time < events[i-1].Time {
			t.Fatalf("step times not monotonic at %d", i)
		}
	}
}
