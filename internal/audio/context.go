package audio

import (
	"fmt"
	"sync"

	ebitaudio "github.com/hajimehoshi/ebiten/v2/audio"
)

// The process hosts a single audio context at a single sample rate. The first
// caller fixes the rate; later callers must match it or creation fails.
var (
	contextOnce sync.Once
	context     *ebitaudio.Context
	contextRate int
)

func sharedContext(sampleRate int) (*ebitaudio.Context, error) {
	contextOnce.Do(func() {
		contextRate = sampleRate
		context = ebitaudio.NewContext(sampleRate)
	})
	if contextRate != sampleRate {
		return nil, fmt.Errorf("audio context already initialized at %d Hz (requested %d Hz)", contextRate, sampleRate)
	}
	return context, nil
}
