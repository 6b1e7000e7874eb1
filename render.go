package beatclock

import (
	"fmt"
	"math"
	"sync"
	"sync/atomic"

	"github.com/modseven/beatclock-go/internal/audio"
)

// RenderTransport hosts a transport replica inside the real-time audio
// render callback, so ticks and clock pulses are derived in lockstep with
// audio rendering instead of round-tripping to the control side per block.
//
// Control-side callers see the usual TransportLike surface, served by a local
// shadow Transport. Every operation mutates the shadow and forwards the same
// timestamped command to the render side; the two copies replay an identical
// command log, which is what keeps them consistent without shared state.
type RenderTransport struct {
	mu       sync.Mutex
	shadow   *Transport
	proc     *renderProcessor
	player   *audio.Player
	stop     chan struct{}
	disposed bool
	tickSubs map[int]func(Tick)
	nextSub  int
}

// NewRenderTransport creates a render transport on the process audio context.
// Recognized options: WithBPM, WithStartBeat, WithTickInterval, WithBeatPulse.
//
// The output node plays a near-silent keep-alive signal (or an audible beat
// pulse when enabled) so the audio pipeline never suspends it for producing
// no output.
func NewRenderTransport(sampleRate int, opts ...Option) (*RenderTransport, error) {
	rt, err := newRenderTransport(sampleRate, opts...)
	if err != nil {
		return nil, err
	}
	player, err := audio.NewPlayer(sampleRate, rt.proc)
	if err != nil {
		rt.Dispose()
		return nil, fmt.Errorf("%w: %v", ErrUnsupportedEnvironment, err)
	}
	rt.mu.Lock()
	rt.player = player
	rt.mu.Unlock()
	player.Play()
	return rt, nil
}

// newRenderTransport builds everything except the audio node, so the render
// side can also be driven directly (tests, offline hosts).
func newRenderTransport(sampleRate int, opts ...Option) (*RenderTransport, error) {
	if sampleRate <= 0 {
		return nil, fmt.Errorf("%w: sampleRate must be positive, got %d", ErrInvalidArgument, sampleRate)
	}
	cfg := applyOptions(opts)
	if cfg.tickInterval <= 0 {
		return nil, fmt.Errorf("%w: tick interval must be positive, got %v", ErrInvalidArgument, cfg.tickInterval)
	}

	proc := &renderProcessor{
		sampleRate:   sampleRate,
		tickInterval: cfg.tickInterval,
		cmds:         make(chan Command, 64),
		ticks:        make(chan Tick, 64),
		pulse:        cfg.beatPulse,
		pulseLen:     sampleRate / 250, // 4ms click
	}
	// Both transport copies read the rendered-frame counter as their clock.
	clk := FuncClock(func() float64 {
		return float64(proc.frames.Load()) / float64(sampleRate)
	})
	replica, err := NewTransport(clk, WithBPM(cfg.bpm), WithStartBeat(cfg.startBeat))
	if err != nil {
		return nil, err
	}
	proc.replica = replica
	shadow, err := NewTransport(clk, WithBPM(cfg.bpm), WithStartBeat(cfg.startBeat))
	if err != nil {
		return nil, err
	}

	rt := &RenderTransport{
		shadow: shadow,
		proc:   proc,
		stop:   make(chan struct{}),
	}
	go rt.tickLoop()
	rt.post(Command{
		Kind:         CmdInit,
		Time:         clk.Now(),
		BPM:          cfg.bpm,
		StartBeat:    cfg.startBeat,
		TickInterval: cfg.tickInterval,
	})
	return rt, nil
}

func (rt *RenderTransport) tickLoop() {
	for {
		select {
		case <-rt.stop:
			return
		case tk := <-rt.proc.ticks:
			rt.dispatchTick(tk)
		}
	}
}

func (rt *RenderTransport) dispatchTick(tk Tick) {
	rt.mu.Lock()
	fns := make([]func(Tick), 0, len(rt.tickSubs))
	for _, fn := range rt.tickSubs {
		fns = append(fns, fn)
	}
	rt.mu.Unlock()
	for _, fn := range fns {
		fn(tk)
	}
}

// OnTick registers fn for ticks emitted by the render side and returns its
// unsubscribe function.
func (rt *RenderTransport) OnTick(fn func(Tick)) func() {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	if rt.tickSubs == nil {
		rt.tickSubs = make(map[int]func(Tick))
	}
	id := rt.nextSub
	rt.nextSub++
	rt.tickSubs[id] = fn
	return func() {
		rt.mu.Lock()
		delete(rt.tickSubs, id)
		rt.mu.Unlock()
	}
}

// On registers fn for transport events on the control-side shadow.
func (rt *RenderTransport) On(kind EventKind, fn func(Event)) func() {
	return rt.shadow.On(kind, fn)
}

// post forwards a command to the render side. After Dispose, or with the
// render side wedged, the command is dropped: teardown races across the
// thread boundary are expected and must not block or fail.
func (rt *RenderTransport) post(c Command) {
	rt.mu.Lock()
	disposed := rt.disposed
	rt.mu.Unlock()
	if disposed {
		return
	}
	select {
	case rt.proc.cmds <- c:
	default:
	}
}

// Start begins playback at the current render position.
func (rt *RenderTransport) Start() { rt.StartAt(rt.CurrentTime()) }

// StartAt begins playback anchored at atTime on both transport copies. No-op
// if already running: the command is forwarded only on a real state
// transition, so a duplicate start never re-seeks the replica.
func (rt *RenderTransport) StartAt(atTime float64) {
	if rt.shadow.IsPlaying() {
		return
	}
	rt.shadow.StartAt(atTime)
	rt.post(Command{Kind: CmdStart, Time: atTime, Beat: rt.shadow.BeatAtTime(atTime)})
}

// Stop halts playback at the current render position.
func (rt *RenderTransport) Stop() { rt.StopAt(rt.CurrentTime()) }

// StopAt halts playback at atTime on both transport copies. No-op if already
// stopped.
func (rt *RenderTransport) StopAt(atTime float64) {
	if !rt.shadow.IsPlaying() {
		return
	}
	rt.shadow.StopAt(atTime)
	rt.post(Command{Kind: CmdStop, Time: atTime})
}

// Seek moves the playhead to beat at the current render position.
func (rt *RenderTransport) Seek(beat float64) error { return rt.SeekAt(beat, rt.CurrentTime()) }

// SeekAt moves the playhead on both transport copies.
func (rt *RenderTransport) SeekAt(beat, atTime float64) error {
	if err := rt.shadow.SeekAt(beat, atTime); err != nil {
		return err
	}
	rt.post(Command{Kind: CmdSeek, Time: atTime, Beat: beat})
	return nil
}

// SetTempo changes the tempo at the current render position.
func (rt *RenderTransport) SetTempo(bpm float64) error { return rt.SetTempoAt(bpm, rt.CurrentTime()) }

// SetTempoAt changes the tempo on both transport copies.
func (rt *RenderTransport) SetTempoAt(bpm, atTime float64) error {
	if err := rt.shadow.SetTempoAt(bpm, atTime); err != nil {
		return err
	}
	rt.post(Command{Kind: CmdTempo, Time: atTime, BPM: bpm})
	return nil
}

// ScheduleTempoChange queues a tempo boundary on both transport copies.
func (rt *RenderTransport) ScheduleTempoChange(bpm, atTime float64) error {
	if err := rt.shadow.ScheduleTempoChange(bpm, atTime); err != nil {
		return err
	}
	rt.post(Command{Kind: CmdScheduleTempo, Time: atTime, BPM: bpm})
	return nil
}

// CurrentTime returns the rendered position of the audio clock in seconds.
func (rt *RenderTransport) CurrentTime() float64 { return rt.shadow.CurrentTime() }

// IsPlaying reports whether the transport is running.
func (rt *RenderTransport) IsPlaying() bool { return rt.shadow.IsPlaying() }

// BeatAtTime returns the beat position at tm.
func (rt *RenderTransport) BeatAtTime(tm float64) float64 { return rt.shadow.BeatAtTime(tm) }

// TimeAtBeat returns the clock time at which beat is reached.
func (rt *RenderTransport) TimeAtBeat(beat float64) float64 { return rt.shadow.TimeAtBeat(beat) }

// PhaseAtTime returns the cycle phase at tm, in [0,1).
func (rt *RenderTransport) PhaseAtTime(tm, cycleBeats float64) float64 {
	return rt.shadow.PhaseAtTime(tm, cycleBeats)
}

// BPM returns the current tempo setting.
func (rt *RenderTransport) BPM() float64 { return rt.shadow.BPM() }

// Dispose tears down the audio node, the tick loop and all listener
// registries. Safe to call multiple times; commands posted afterwards are
// dropped silently.
func (rt *RenderTransport) Dispose() {
	rt.mu.Lock()
	if rt.disposed {
		rt.mu.Unlock()
		return
	}
	rt.disposed = true
	close(rt.stop)
	player := rt.player
	rt.player = nil
	rt.tickSubs = nil
	rt.mu.Unlock()
	if player != nil {
		_ = player.Stop()
	}
}

// renderProcessor is the render-side half of a RenderTransport. It runs
// inside the audio pull callback: per block it drains pending commands,
// applies them to its transport replica, renders the keep-alive (or pulse)
// output, and emits ticks at the configured interval of rendered time.
type renderProcessor struct {
	replica      *Transport
	cmds         chan Command
	ticks        chan Tick
	frames       atomic.Int64 // rendered frames, read by the control-side clock
	sampleRate   int
	tickInterval float64
	nextTick     float64
	pulse        bool
	pulseLen     int
	pulseRemain  int
}

// keepAliveLevel is roughly -100 dBFS: inaudible, but never exactly silent.
const keepAliveLevel = 1e-5

const pulsePeak = 0.5

// Process renders one block of stereo frames. It never blocks: commands are
// drained with non-blocking receives and ticks are dropped if the control
// side is not keeping up.
func (p *renderProcessor) Process(dst []float32) {
	frames := len(dst) / 2
	rate := float64(p.sampleRate)
	blockStart := float64(p.frames.Load()) / rate
	blockEnd := blockStart + float64(frames)/rate

drain:
	for {
		select {
		case c := <-p.cmds:
			p.apply(c)
		default:
			break drain
		}
	}

	for i := range dst {
		dst[i] = keepAliveLevel
	}
	if p.pulse {
		p.renderPulses(dst, blockStart, blockEnd)
	}

	for p.nextTick < blockEnd {
		tk := Tick{
			Time:    p.nextTick,
			Beat:    p.replica.BeatAtTime(p.nextTick),
			BPM:     p.replica.TempoAt(p.nextTick),
			Running: p.replica.IsPlaying(),
		}
		select {
		case p.ticks <- tk:
		default:
		}
		p.nextTick += p.tickInterval
	}

	p.frames.Add(int64(frames))
}

func (p *renderProcessor) apply(c Command) {
	switch c.Kind {
	case CmdInit:
		if c.TickInterval > 0 {
			p.tickInterval = c.TickInterval
		}
		_ = p.replica.SetTempoAt(c.BPM, c.Time)
		_ = p.replica.SeekAt(c.StartBeat, c.Time)
	case CmdStart:
		_ = p.replica.SeekAt(c.Beat, c.Time)
		p.replica.StartAt(c.Time)
	case CmdStop:
		p.replica.StopAt(c.Time)
	case CmdSeek:
		_ = p.replica.SeekAt(c.Beat, c.Time)
	case CmdTempo:
		_ = p.replica.SetTempoAt(c.BPM, c.Time)
	case CmdScheduleTempo:
		_ = p.replica.ScheduleTempoChange(c.BPM, c.Time)
	}
}

// renderPulses writes a short decaying click on every whole beat inside the
// block, CV-style. A pulse crossing the block boundary carries over.
func (p *renderProcessor) renderPulses(dst []float32, blockStart, blockEnd float64) {
	frames := len(dst) / 2
	rate := float64(p.sampleRate)

	for i := 0; i < frames && p.pulseRemain > 0; i++ {
		p.writePulseFrame(dst, i)
	}
	if !p.replica.IsPlaying() {
		return
	}
	for beat := math.Ceil(p.replica.BeatAtTime(blockStart)); ; beat++ {
		tb := p.replica.TimeAtBeat(beat)
		if tb >= blockEnd {
			return
		}
		off := int((tb - blockStart) * rate)
		if off < 0 {
			off = 0
		}
		p.pulseRemain = p.pulseLen
		for i := off; i < frames && p.pulseRemain > 0; i++ {
			p.writePulseFrame(dst, i)
		}
	}
}

func (p *renderProcessor) writePulseFrame(dst []float32, i int) {
	amp := pulsePeak * float32(p.pulseRemain) / float32(p.pulseLen)
	dst[2*i] = amp
	dst[2*i+1] = amp
	p.pulseRemain--
}
