package beatclock

import (
	"fmt"
	"sync"

	gomidi "gitlab.com/gomidi/midi/v2"
)

// midiClockPPQ is the MIDI realtime clock rate, 24 pulses per quarter note.
const midiClockPPQ = 24

// MIDIClock drives an external MIDI device from a transport: realtime clock
// pulses at 24 PPQN plus Start/Stop and Song Position Pointer on seek.
// Pulses are dispatched as the scheduler's lookahead window reaches them, so
// a receiver sees them up to one lookahead early but at the correct density.
type MIDIClock struct {
	mu       sync.Mutex
	send     func(gomidi.Message) error
	seq      *PhaseSequencer
	sched    *Scheduler
	offs     []func()
	disposed bool
}

// NewMIDIClock wires send to bus and sched. sched paces the clock pulses via
// a 1/24-beat sequencer; bus supplies the start/stop/seek edges. The sender
// is the gomidi port sender, typically from midi.SendTo.
func NewMIDIClock(bus *TransportBus, sched *Scheduler, send func(gomidi.Message) error) (*MIDIClock, error) {
	if send == nil {
		return nil, fmt.Errorf("%w: midi clock requires a sender", ErrInvalidArgument)
	}
	mc := &MIDIClock{send: send, sched: sched}
	seq, err := NewPhaseSequencer(
		WithStepsPerCycle(midiClockPPQ),
		WithStepLength(1.0/midiClockPPQ),
		WithOnStep(func(StepEvent) { mc.post(gomidi.TimingClock()) }),
	)
	if err != nil {
		return nil, err
	}
	mc.seq = seq
	sched.Add(seq)
	mc.offs = append(mc.offs,
		bus.On(EventStart, func(Event) { mc.post(gomidi.Start()) }),
		bus.On(EventStop, func(Event) { mc.post(gomidi.Stop()) }),
		bus.On(EventSeek, func(ev Event) {
			// Song position is counted in MIDI beats (sixteenth notes).
			mc.post(gomidi.SPP(uint16(ev.Beat * 4)))
		}),
	)
	return mc, nil
}

func (mc *MIDIClock) post(msg gomidi.Message) {
	mc.mu.Lock()
	disposed := mc.disposed
	send := mc.send
	mc.mu.Unlock()
	if disposed {
		return
	}
	// Send failures are dropped: a detached device must not take the
	// transport down with it.
	_ = send(msg)
}

// Dispose detaches the clock from its scheduler and bus. Safe to call
// multiple times.
func (mc *MIDIClock) Dispose() {
	mc.mu.Lock()
	if mc.disposed {
		mc.mu.Unlock()
		return
	}
	mc.disposed = true
	offs := mc.offs
	mc.offs = nil
	mc.mu.Unlock()
	mc.sched.Remove(mc.seq)
	for _, off := range offs {
		off()
	}
}
