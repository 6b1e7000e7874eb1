package beatclock

import (
	"sync"
	"time"
)

// Schedulable is any entity that can produce timed events given a transport
// and a forward window. Schedule must emit only events whose time falls
// inside [windowStart, windowEnd); successive windows never overlap, so each
// musical event is offered exactly once.
type Schedulable interface {
	Schedule(tr TransportLike, windowStart, windowEnd float64)
}

// Scheduler periodically computes a lookahead window and asks its registered
// schedulables to emit the events inside it. The polling interval only paces
// the loop; timing accuracy comes from the transport's beat math, so a
// coarse interval costs nothing but reaction latency.
//
// A Scheduler can run its own timer (Start) or be driven externally, e.g.
// from a RenderTransport tick stream: call Resync once, then AdvanceTo per
// tick.
type Scheduler struct {
	mu        sync.Mutex
	tr        TransportLike
	lookahead float64 // seconds
	interval  time.Duration
	cursor    float64
	items     map[Schedulable]struct{}
	stopCh    chan struct{}
}

// NewScheduler creates a scheduler over tr. Recognized options: WithLookahead
// (default 100ms) and WithInterval (default 25ms).
func NewScheduler(tr TransportLike, opts ...Option) *Scheduler {
	cfg := applyOptions(opts)
	return &Scheduler{
		tr:        tr,
		lookahead: cfg.lookahead.Seconds(),
		interval:  cfg.interval,
		cursor:    tr.CurrentTime(),
		items:     make(map[Schedulable]struct{}),
	}
}

// Add registers sc. Idempotent.
func (s *Scheduler) Add(sc Schedulable) {
	s.mu.Lock()
	s.items[sc] = struct{}{}
	s.mu.Unlock()
}

// Remove unregisters sc. Idempotent.
func (s *Scheduler) Remove(sc Schedulable) {
	s.mu.Lock()
	delete(s.items, sc)
	s.mu.Unlock()
}

// Start resynchronizes the cursor and begins the periodic timer. No-op if the
// timer is already running.
func (s *Scheduler) Start() {
	s.mu.Lock()
	if s.stopCh != nil {
		s.mu.Unlock()
		return
	}
	s.cursor = s.tr.CurrentTime()
	stop := make(chan struct{})
	s.stopCh = stop
	s.mu.Unlock()
	go s.run(stop)
}

// Resync snaps the cursor to the transport's current time without starting a
// timer, for callers that drive AdvanceTo themselves.
func (s *Scheduler) Resync() {
	s.mu.Lock()
	s.cursor = s.tr.CurrentTime()
	s.mu.Unlock()
}

// Stop cancels the periodic timer. Idempotent; registered schedulables are
// kept.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if s.stopCh != nil {
		close(s.stopCh)
		s.stopCh = nil
	}
	s.mu.Unlock()
}

// Reset discards any pending window by snapping the cursor to the transport's
// current time.
func (s *Scheduler) Reset() { s.Resync() }

func (s *Scheduler) run(stop chan struct{}) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			s.Advance()
		}
	}
}

// Advance runs one scheduling pass at the transport's current time.
func (s *Scheduler) Advance() { s.AdvanceTo(s.tr.CurrentTime()) }

// AdvanceTo runs one scheduling pass as of now. While the transport is
// stopped the cursor just tracks now, so no stale backlog is dispatched when
// playback resumes. While running, the window picks up exactly where the
// previous one ended: events the timer was late for are dispatched late
// rather than dropped, keeping the step stream gap-free.
func (s *Scheduler) AdvanceTo(now float64) {
	s.mu.Lock()
	if !s.tr.IsPlaying() {
		s.cursor = now
		s.mu.Unlock()
		return
	}
	windowStart := s.cursor
	windowEnd := now + s.lookahead
	if windowEnd <= windowStart {
		s.mu.Unlock()
		return
	}
	s.cursor = windowEnd
	items := make([]Schedulable, 0, len(s.items))
	for sc := range s.items {
		items = append(items, sc)
	}
	s.mu.Unlock()
	for _, sc := range items {
		sc.Schedule(s.tr, windowStart, windowEnd)
	}
}
