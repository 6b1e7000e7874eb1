package beatclock

// CommandKind tags the messages sent from the control side to the render side
// of a RenderTransport. The set is closed: exactly these six kinds exist, and
// the render counterpart depends on their shapes staying fixed.
type CommandKind int

const (
	CmdInit CommandKind = iota
	CmdStart
	CmdStop
	CmdSeek
	CmdTempo
	CmdScheduleTempo
)

// Command is a timestamped transport command. Both sides of a RenderTransport
// replay the same command sequence against their own transport copy; the
// explicit timestamp is what keeps the copies consistent regardless of
// delivery timing.
type Command struct {
	Kind CommandKind
	Time float64
	Beat float64
	BPM  float64

	// Init only.
	StartBeat    float64
	TickInterval float64
}

// Tick is the periodic snapshot emitted by the render side and by
// TransportBus producers.
type Tick struct {
	Time    float64
	Beat    float64
	BPM     float64
	Running bool
}
