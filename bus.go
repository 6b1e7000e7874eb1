package beatclock

import "sync"

// Optional surfaces a wrapped transport may expose. Transport provides
// events, RenderTransport provides events and ticks; a bare TransportLike
// provides neither and relies on EmitTick.
type eventSource interface {
	On(kind EventKind, fn func(Event)) func()
}

type tickSource interface {
	OnTick(fn func(Tick)) func()
}

type tempoSource interface {
	BPM() float64
}

// TransportBus adapts any TransportLike into one event/tick listener surface,
// so consumers do not care whether their clock is a plain Transport, a
// RenderTransport, or something external. A bus owns its subscriptions on the
// wrapped transport; Dispose releases them.
type TransportBus struct {
	mu        sync.Mutex
	tr        TransportLike
	listeners map[EventKind]map[int]func(Event)
	tickSubs  map[int]func(Tick)
	nextSub   int
	offs      []func()
	disposed  bool
}

// NewTransportBus wraps tr, re-emitting its transport events and ticks when
// it exposes them.
func NewTransportBus(tr TransportLike) *TransportBus {
	b := &TransportBus{
		tr:        tr,
		listeners: make(map[EventKind]map[int]func(Event)),
		tickSubs:  make(map[int]func(Tick)),
	}
	if es, ok := tr.(eventSource); ok {
		for _, kind := range []EventKind{EventStart, EventStop, EventSeek, EventTempo} {
			b.offs = append(b.offs, es.On(kind, b.dispatchEvent))
		}
	}
	if ts, ok := tr.(tickSource); ok {
		b.offs = append(b.offs, ts.OnTick(b.dispatchTick))
	}
	return b
}

// Transport returns the wrapped transport.
func (b *TransportBus) Transport() TransportLike { return b.tr }

// BPM returns the wrapped transport's tempo, or 120 when it has no tempo
// accessor.
func (b *TransportBus) BPM() float64 {
	if ts, ok := b.tr.(tempoSource); ok {
		return ts.BPM()
	}
	return DefaultBPM
}

// On registers fn for transport events of the given kind and returns its
// unsubscribe function.
func (b *TransportBus) On(kind EventKind, fn func(Event)) func() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.disposed {
		return func() {}
	}
	subs := b.listeners[kind]
	if subs == nil {
		subs = make(map[int]func(Event))
		b.listeners[kind] = subs
	}
	id := b.nextSub
	b.nextSub++
	subs[id] = fn
	return func() {
		b.mu.Lock()
		delete(subs, id)
		b.mu.Unlock()
	}
}

// OnTick registers fn for ticks and returns its unsubscribe function.
func (b *TransportBus) OnTick(fn func(Tick)) func() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.disposed {
		return func() {}
	}
	id := b.nextSub
	b.nextSub++
	b.tickSubs[id] = fn
	return func() {
		b.mu.Lock()
		delete(b.tickSubs, id)
		b.mu.Unlock()
	}
}

// EmitTick publishes a tick snapshot at the transport's current time, for
// transports without a native tick stream.
func (b *TransportBus) EmitTick() { b.EmitTickAt(b.tr.CurrentTime()) }

// EmitTickAt publishes a tick snapshot as of tm.
func (b *TransportBus) EmitTickAt(tm float64) {
	b.dispatchTick(Tick{
		Time:    tm,
		Beat:    b.tr.BeatAtTime(tm),
		BPM:     b.BPM(),
		Running: b.tr.IsPlaying(),
	})
}

func (b *TransportBus) dispatchEvent(ev Event) {
	b.mu.Lock()
	subs := b.listeners[ev.Kind]
	fns := make([]func(Event), 0, len(subs))
	for _, fn := range subs {
		fns = append(fns, fn)
	}
	b.mu.Unlock()
	for _, fn := range fns {
		fn(ev)
	}
}

func (b *TransportBus) dispatchTick(tk Tick) {
	b.mu.Lock()
	fns := make([]func(Tick), 0, len(b.tickSubs))
	for _, fn := range b.tickSubs {
		fns = append(fns, fn)
	}
	b.mu.Unlock()
	for _, fn := range fns {
		fn(tk)
	}
}

// Dispose unsubscribes from the wrapped transport and clears all listeners.
// Safe to call multiple times.
func (b *TransportBus) Dispose() {
	b.mu.Lock()
	if b.disposed {
		b.mu.Unlock()
		return
	}
	b.disposed = true
	offs := b.offs
	b.offs = nil
	b.listeners = make(map[EventKind]map[int]func(Event))
	b.tickSubs = make(map[int]func(Tick))
	b.mu.Unlock()
	for _, off := range offs {
		off()
	}
}
