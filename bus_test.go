package beatclock

import (
	"math"
	"testing"
)

func TestBusReEmitsTransportEvents(t *testing.T) {
	tr, _ := newTestTransport(t)
	bus := NewTransportBus(tr)
	defer bus.Dispose()

	var starts, tempos int
	bus.On(EventStart, func(Event) { starts++ })
	bus.On(EventTempo, func(ev Event) {
		tempos++
		if ev.BPM != 90 {
			t.Fatalf("expected bpm 90 in tempo event, got %v", ev.BPM)
		}
	})

	tr.StartAt(0)
	if err := tr.SetTempo(90); err != nil {
		t.Fatalf("SetTempo failed: %v", err)
	}
	if starts != 1 || tempos != 1 {
		t.Fatalf("expected 1 start and 1 tempo event, got %d/%d", starts, tempos)
	}
}

func TestBusEmitTick(t *testing.T) {
	tr, clk := newTestTransport(t, WithBPM(120))
	bus := NewTransportBus(tr)
	defer bus.Dispose()

	var got []Tick
	bus.OnTick(func(tk Tick) { got = append(got, tk) })

	tr.StartAt(0)
	clk.now = 1
	bus.EmitTick()

	if len(got) != 1 {
		t.Fatalf("expected one tick, got %d", len(got))
	}
	tk := got[0]
	if tk.Time != 1 || math.Abs(tk.Beat-2) > 1e-12 || tk.BPM != 120 || !tk.Running {
		t.Fatalf("unexpected tick %#v", tk)
	}
}

func TestBusBPMFallback(t *testing.T) {
	// A bare TransportLike has no tempo accessor.
	bus := NewTransportBus(beatIsTime{})
	defer bus.Dispose()
	if got := bus.BPM(); got != DefaultBPM {
		t.Fatalf("expected fallback bpm %v, got %v", DefaultBPM, got)
	}
}

func TestBusUnsubscribe(t *testing.T) {
	tr, _ := newTestTransport(t)
	bus := NewTransportBus(tr)
	defer bus.Dispose()

	var fired int
	off := bus.On(EventStart, func(Event) { fired++ })
	off()
	tr.StartAt(0)
	if fired != 0 {
		t.Fatalf("expected no events after unsubscribe, got %d", fired)
	}
}

func TestBusDispose(t *testing.T) {
	tr, _ := newTestTransport(t)
	bus := NewTransportBus(tr)

	var fired int
	bus.On(EventStart, func(Event) { fired++ })
	bus.Dispose()
	bus.Dispose() // idempotent

	tr.StartAt(0)
	if fired != 0 {
		t.Fatalf("expected no events after dispose, got %d", fired)
	}
	// Registrations after dispose are inert, not panics.
	off := bus.On(EventStop, func(Event) {})
	off()
	bus.OnTick(func(Tick) {})()
	bus.EmitTick()
}
