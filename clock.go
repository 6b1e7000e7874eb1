package beatclock

import "time"

// Clock is a monotonic time source measured in seconds. A Transport anchors
// all of its tempo math to the clock it was created with, so every timestamp
// passed to transport operations must come from the same clock.
type Clock interface {
	Now() float64
}

type systemClock struct {
	epoch time.Time
}

// SystemClock returns a Clock backed by the monotonic wall clock, starting at
// zero. Suitable for driving a Transport without an audio pipeline.
func SystemClock() Clock {
	return &systemClock{epoch: time.Now()}
}

func (c *systemClock) Now() float64 {
	return time.Since(c.epoch).Seconds()
}

// FuncClock adapts a plain function to the Clock interface.
type FuncClock func() float64

func (f FuncClock) Now() float64 { return f() }
