package audio

import (
	"encoding/binary"
	"io"
	"math"
	"sync"
	"time"

	ebitaudio "github.com/hajimehoshi/ebiten/v2/audio"
)

// SampleSource produces interleaved stereo float32 frames. Process is called
// on the audio thread and must not block or allocate.
type SampleSource interface {
	Process(dst []float32)
}

// StreamReader adapts a SampleSource to the little-endian float32 byte stream
// the audio context pulls from.
type StreamReader struct {
	mu     sync.Mutex
	source SampleSource
	buf    []float32
}

func NewStreamReader(source SampleSource) *StreamReader {
	return &StreamReader{source: source}
}

func (r *StreamReader) Read(p []byte) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	frames := len(p) / 8
	if frames == 0 {
		return 0, nil
	}
	need := frames * 2
	if cap(r.buf) < need {
		r.buf = make([]float32, need)
	}
	r.buf = r.buf[:need]
	r.source.Process(r.buf)
	for i := 0; i < need; i++ {
		binary.LittleEndian.PutUint32(p[i*4:], math.Float32bits(r.buf[i]))
	}
	return frames * 8, nil
}

func (r *StreamReader) Close() error { return nil }

// playerBufferSize keeps the driver-side buffer short so the audible output
// and the frame counter stay close to real time.
const playerBufferSize = 20 * time.Millisecond

type Player struct {
	player *ebitaudio.Player
	reader io.ReadCloser
}

func NewPlayer(sampleRate int, source SampleSource) (*Player, error) {
	ctx, err := sharedContext(sampleRate)
	if err != nil {
		return nil, err
	}
	reader := NewStreamReader(source)
	pl, err := ctx.NewPlayerF32(reader)
	if err != nil {
		return nil, err
	}
	pl.SetBufferSize(playerBufferSize)
	return &Player{
		player: pl,
		reader: reader,
	}, nil
}

func (p *Player) Play() { p.player.Play() }

func (p *Player) Stop() error {
	p.player.Pause()
	p.player.Close()
	return p.reader.Close()
}
