package beatclock

import (
	"fmt"
	"math"
	"sort"
	"sync"
)

// TempoEvent marks a tempo boundary on the transport clock. Between two
// consecutive events the tempo is constant, so beat position is piecewise
// linear in time and never drifts when integrated segment by segment.
type TempoEvent struct {
	Time float64 // clock timestamp in seconds
	BPM  float64
}

// EventKind identifies transport lifecycle events.
type EventKind int

const (
	EventStart EventKind = iota
	EventStop
	EventSeek
	EventTempo
)

// Event is the payload delivered to transport listeners.
type Event struct {
	Kind EventKind
	Time float64
	Beat float64
	BPM  float64
}

// TransportLike is the clock surface consumed by schedulers and by audio-graph
// components outside this package. Both Transport and RenderTransport satisfy it.
type TransportLike interface {
	CurrentTime() float64
	IsPlaying() bool
	BeatAtTime(tm float64) float64
	TimeAtBeat(beat float64) float64
	PhaseAtTime(tm, cycleBeats float64) float64
}

// Transport maps between clock time and musical beats under a
// piecewise-constant tempo map. All operations taking an explicit timestamp
// expect it to come from the clock the transport was created with; the
// variants without a timestamp anchor at the clock's current time.
//
// Start, Stop and Seek on an already-matching state are no-ops, so callers
// can drive the transport without tracking its state themselves.
type Transport struct {
	mu          sync.Mutex
	clock       Clock
	playing     bool
	startTime   float64
	startBeat   float64
	pausedBeat  float64
	bpm         float64
	tempoEvents []TempoEvent

	listeners map[EventKind]map[int]func(Event)
	nextSub   int
}

// NewTransport creates a stopped transport bound to clock. Recognized options:
// WithBPM (default 120) and WithStartBeat (default 0).
func NewTransport(clock Clock, opts ...Option) (*Transport, error) {
	if clock == nil {
		return nil, fmt.Errorf("%w: transport requires a clock", ErrInvalidArgument)
	}
	cfg := applyOptions(opts)
	if cfg.bpm <= 0 {
		return nil, fmt.Errorf("%w: bpm must be positive, got %v", ErrInvalidArgument, cfg.bpm)
	}
	return &Transport{
		clock:      clock,
		bpm:        cfg.bpm,
		startBeat:  cfg.startBeat,
		pausedBeat: cfg.startBeat,
	}, nil
}

// On registers fn for events of the given kind and returns its unsubscribe
// function. Listeners run on the goroutine that triggered the event.
func (t *Transport) On(kind EventKind, fn func(Event)) func() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.listeners == nil {
		t.listeners = make(map[EventKind]map[int]func(Event))
	}
	subs := t.listeners[kind]
	if subs == nil {
		subs = make(map[int]func(Event))
		t.listeners[kind] = subs
	}
	id := t.nextSub
	t.nextSub++
	subs[id] = fn
	return func() {
		t.mu.Lock()
		delete(subs, id)
		t.mu.Unlock()
	}
}

// Start begins playback at the clock's current time.
func (t *Transport) Start() { t.StartAt(t.clock.Now()) }

// StartAt begins playback anchored at the given timestamp, resuming from the
// paused beat position. No-op if already running.
func (t *Transport) StartAt(atTime float64) {
	t.mu.Lock()
	if t.playing {
		t.mu.Unlock()
		return
	}
	t.playing = true
	t.startTime = atTime
	t.startBeat = t.pausedBeat
	t.tempoEvents = []TempoEvent{{Time: atTime, BPM: t.bpm}}
	ev := Event{Kind: EventStart, Time: atTime, Beat: t.startBeat, BPM: t.bpm}
	t.mu.Unlock()
	t.emit(ev)
}

// Stop halts playback at the clock's current time.
func (t *Transport) Stop() { t.StopAt(t.clock.Now()) }

// StopAt halts playback, capturing the beat position at atTime so a later
// StartAt resumes without drift. No-op if already stopped.
func (t *Transport) StopAt(atTime float64) {
	t.mu.Lock()
	if !t.playing {
		t.mu.Unlock()
		return
	}
	t.pausedBeat = t.beatAtTimeLocked(atTime)
	t.playing = false
	ev := Event{Kind: EventStop, Time: atTime, Beat: t.pausedBeat, BPM: t.bpm}
	t.mu.Unlock()
	t.emit(ev)
}

// Seek moves the playhead to beat, anchored at the clock's current time.
func (t *Transport) Seek(beat float64) error { return t.SeekAt(beat, t.clock.Now()) }

// SeekAt moves the playhead to beat. While running it re-anchors the
// transport at atTime and resets the tempo map; a seek invalidates any tempo
// changes scheduled beyond it.
func (t *Transport) SeekAt(beat, atTime float64) error {
	if beat < 0 {
		return fmt.Errorf("%w: seek beat must be >= 0, got %v", ErrInvalidArgument, beat)
	}
	t.mu.Lock()
	t.pausedBeat = beat
	if t.playing {
		t.startTime = atTime
		t.startBeat = beat
		t.tempoEvents = []TempoEvent{{Time: atTime, BPM: t.bpm}}
	}
	ev := Event{Kind: EventSeek, Time: atTime, Beat: beat, BPM: t.bpm}
	t.mu.Unlock()
	t.emit(ev)
	return nil
}

// SetTempo changes the tempo effective at the clock's current time.
func (t *Transport) SetTempo(bpm float64) error { return t.SetTempoAt(bpm, t.clock.Now()) }

// SetTempoAt changes the current tempo. While running it inserts a tempo
// boundary at max(atTime, start time) and discards any tempo events scheduled
// after that point: a manual tempo change overrides planned automation. While
// stopped the new tempo takes effect on the next start.
func (t *Transport) SetTempoAt(bpm, atTime float64) error {
	if bpm <= 0 {
		return fmt.Errorf("%w: bpm must be positive, got %v", ErrInvalidArgument, bpm)
	}
	t.mu.Lock()
	t.bpm = bpm
	beat := t.pausedBeat
	if t.playing {
		at := math.Max(atTime, t.startTime)
		t.insertTempoLocked(TempoEvent{Time: at, BPM: bpm}, true)
		beat = t.beatAtTimeLocked(at)
	}
	ev := Event{Kind: EventTempo, Time: atTime, Beat: beat, BPM: bpm}
	t.mu.Unlock()
	t.emit(ev)
	return nil
}

// ScheduleTempoChange queues a tempo boundary at atTime without disturbing
// other scheduled tempo events, for automation queued ahead of the lookahead
// window. The transport must be running: a stopped transport has no anchor
// time for the change.
func (t *Transport) ScheduleTempoChange(bpm, atTime float64) error {
	if bpm <= 0 {
		return fmt.Errorf("%w: bpm must be positive, got %v", ErrInvalidArgument, bpm)
	}
	t.mu.Lock()
	if !t.playing {
		t.mu.Unlock()
		return fmt.Errorf("%w: cannot schedule a tempo change while stopped", ErrPrecondition)
	}
	at := math.Max(atTime, t.startTime)
	t.insertTempoLocked(TempoEvent{Time: at, BPM: bpm}, false)
	ev := Event{Kind: EventTempo, Time: atTime, Beat: t.beatAtTimeLocked(at), BPM: bpm}
	t.mu.Unlock()
	t.emit(ev)
	return nil
}

// insertTempoLocked inserts ev into the tempo map. A destructive insert keeps
// only events earlier than ev and so truncates scheduled automation; a
// non-destructive insert keeps later events too. An exact-time collision is
// resolved in favor of ev either way.
func (t *Transport) insertTempoLocked(ev TempoEvent, destructive bool) {
	kept := make([]TempoEvent, 0, len(t.tempoEvents)+1)
	for _, e := range t.tempoEvents {
		if e.Time < ev.Time || (!destructive && e.Time > ev.Time) {
			kept = append(kept, e)
		}
	}
	kept = append(kept, ev)
	sort.Slice(kept, func(i, j int) bool { return kept[i].Time < kept[j].Time })
	t.tempoEvents = kept
}

// BeatAtTime returns the beat position at tm. Stopped transports report the
// paused beat; times at or before the start anchor report the start beat.
func (t *Transport) BeatAtTime(tm float64) float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.beatAtTimeLocked(tm)
}

func (t *Transport) beatAtTimeLocked(tm float64) float64 {
	if !t.playing {
		return t.pausedBeat
	}
	if tm <= t.startTime {
		return t.startBeat
	}
	beat := t.startBeat
	for i, ev := range t.tempoEvents {
		if ev.Time >= tm {
			break
		}
		segEnd := tm
		if i+1 < len(t.tempoEvents) && t.tempoEvents[i+1].Time < tm {
			segEnd = t.tempoEvents[i+1].Time
		}
		beat += (segEnd - ev.Time) * ev.BPM / 60
	}
	return beat
}

// TimeAtBeat returns the clock time at which the given beat is reached,
// walking the tempo map segment by segment. Stopped transports report the
// clock's current time.
func (t *Transport) TimeAtBeat(beat float64) float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.timeAtBeatLocked(beat)
}

func (t *Transport) timeAtBeatLocked(beat float64) float64 {
	if !t.playing {
		return t.clock.Now()
	}
	remaining := beat - t.startBeat
	for i, ev := range t.tempoEvents {
		if i+1 < len(t.tempoEvents) {
			segBeats := (t.tempoEvents[i+1].Time - ev.Time) * ev.BPM / 60
			if remaining <= segBeats {
				return ev.Time + remaining*60/ev.BPM
			}
			remaining -= segBeats
			continue
		}
		return ev.Time + remaining*60/ev.BPM
	}
	return t.startTime
}

// PhaseAtTime returns the position within a cycle of cycleBeats beats at tm,
// in [0,1). A non-positive cycleBeats is treated as a one-beat cycle.
func (t *Transport) PhaseAtTime(tm, cycleBeats float64) float64 {
	if cycleBeats <= 0 {
		cycleBeats = 1
	}
	beat := t.BeatAtTime(tm)
	return math.Mod(math.Mod(beat, cycleBeats)+cycleBeats, cycleBeats) / cycleBeats
}

// TempoAt returns the tempo in effect at tm according to the tempo map.
// Stopped transports report the current tempo setting.
func (t *Transport) TempoAt(tm float64) float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.playing || len(t.tempoEvents) == 0 {
		return t.bpm
	}
	bpm := t.tempoEvents[0].BPM
	for _, ev := range t.tempoEvents {
		if ev.Time > tm {
			break
		}
		bpm = ev.BPM
	}
	return bpm
}

// CurrentTime returns the bound clock's current time.
func (t *Transport) CurrentTime() float64 { return t.clock.Now() }

// IsPlaying reports whether the transport is running.
func (t *Transport) IsPlaying() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.playing
}

// BPM returns the current tempo setting.
func (t *Transport) BPM() float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.bpm
}

// TempoEvents returns a copy of the tempo map.
func (t *Transport) TempoEvents() []TempoEvent {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]TempoEvent, len(t.tempoEvents))
	copy(out, t.tempoEvents)
	return out
}

func (t *Transport) emit(ev Event) {
	t.mu.Lock()
	subs := t.listeners[ev.Kind]
	fns := make([]func(Event), 0, len(subs))
	for _, fn := range subs {
		fns = append(fns, fn)
	}
	t.mu.Unlock()
	for _, fn := range fns {
		fn(ev)
	}
}
