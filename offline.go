package beatclock

import (
	"fmt"
	"io"

	gaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// ClickConfig parametrizes an offline click-track render.
type ClickConfig struct {
	BPM           float64
	StepsPerCycle int
	StepLength    float64 // beats
	SampleRate    int
}

// DefaultClickConfig returns a 120 BPM quarter-note click, four per cycle.
func DefaultClickConfig() ClickConfig {
	return ClickConfig{BPM: DefaultBPM, StepsPerCycle: 4, StepLength: 1, SampleRate: 48000}
}

// offlineChunk is how much virtual time one scheduling pass covers. The value
// is arbitrary: the rendered output depends only on the transport's beat math.
const offlineChunk = 0.05

// RenderClickTrack renders a click track of the given duration to mono 16-bit
// samples, without a real clock or audio device: a virtual clock is stepped
// through the duration and the scheduler is advanced manually, the same
// external-drive path a render-side tick stream uses.
func RenderClickTrack(cfg ClickConfig, seconds float64) ([]int, error) {
	if seconds < 0 {
		return nil, fmt.Errorf("%w: duration must be >= 0, got %v", ErrInvalidArgument, seconds)
	}
	if cfg.SampleRate <= 0 {
		return nil, fmt.Errorf("%w: sampleRate must be positive, got %d", ErrInvalidArgument, cfg.SampleRate)
	}

	now := 0.0
	tr, err := NewTransport(FuncClock(func() float64 { return now }), WithBPM(cfg.BPM))
	if err != nil {
		return nil, err
	}
	var events []StepEvent
	seq, err := NewPhaseSequencer(
		WithStepsPerCycle(cfg.StepsPerCycle),
		WithStepLength(cfg.StepLength),
		WithOnStep(func(ev StepEvent) { events = append(events, ev) }),
	)
	if err != nil {
		return nil, err
	}
	sched := NewScheduler(tr)
	sched.Add(seq)

	tr.StartAt(0)
	sched.Resync()
	for now < seconds {
		sched.AdvanceTo(now)
		now += offlineChunk
	}

	out := make([]int, int(seconds*float64(cfg.SampleRate)))
	for _, ev := range events {
		if ev.Time >= seconds {
			break
		}
		writeClick(out, cfg.SampleRate, ev)
	}
	return out, nil
}

// writeClick renders one decaying click into out. Cycle downbeats are
// accented.
func writeClick(out []int, sampleRate int, ev StepEvent) {
	peak := 18000
	if ev.StepInCycle == 0 {
		peak = 28000
	}
	length := sampleRate / 250 // 4ms
	off := int(ev.Time * float64(sampleRate))
	for i := 0; i < length && off+i < len(out); i++ {
		out[off+i] = peak * (length - i) / length
	}
}

// WriteWAV encodes mono samples as 16-bit PCM.
func WriteWAV(ws io.WriteSeeker, samples []int, sampleRate int) error {
	enc := wav.NewEncoder(ws, sampleRate, 16, 1, 1)
	buf := &gaudio.IntBuffer{
		Data:           samples,
		Format:         &gaudio.Format{NumChannels: 1, SampleRate: sampleRate},
		SourceBitDepth: 16,
	}
	if err := enc.Write(buf); err != nil {
		return err
	}
	return enc.Close()
}
