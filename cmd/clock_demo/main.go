package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"time"

	gomidi "gitlab.com/gomidi/midi/v2"
	_ "gitlab.com/gomidi/midi/v2/drivers/rtmididrv"

	beatclock "github.com/modseven/beatclock-go"
)

func main() {
	var (
		configPath = flag.String("config", "", "path to a YAML config file")
		bpm        = flag.Float64("bpm", beatclock.DefaultBPM, "tempo in beats per minute")
		steps      = flag.Int("steps", beatclock.DefaultStepsPerCycle, "steps per cycle")
		stepLen    = flag.Float64("step-length", beatclock.DefaultStepLength, "step length in beats")
		sampleRate = flag.Int("sample-rate", 48000, "audio sample rate")
		duration   = flag.Float64("duration", 0, "seconds to run (0 = until interrupted)")
		midiPort   = flag.String("midi-port", "", "MIDI output port for clock sync")
		pulse      = flag.Bool("pulse", false, "audible click on every beat")
		wavPath    = flag.String("wav", "", "render a click track to this WAV file instead of playing live")
	)
	flag.Parse()

	cfg := beatclock.DefaultConfig()
	if *configPath != "" {
		var err error
		cfg, err = beatclock.LoadConfig(*configPath)
		if err != nil {
			log.Fatal(err)
		}
	}
	// Explicit flags win over the config file.
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "bpm":
			cfg.BPM = *bpm
		case "steps":
			cfg.StepsPerCycle = *steps
		case "step-length":
			cfg.StepLengthBeats = *stepLen
		case "sample-rate":
			cfg.SampleRate = *sampleRate
		case "midi-port":
			cfg.MIDIPort = *midiPort
		}
	})

	if *wavPath != "" {
		if err := renderWAV(cfg, *wavPath, *duration); err != nil {
			log.Fatal(err)
		}
		return
	}
	if err := runLive(cfg, *duration, *pulse); err != nil {
		log.Fatal(err)
	}
}

func renderWAV(cfg beatclock.Config, path string, seconds float64) error {
	if seconds <= 0 {
		seconds = 8
	}
	samples, err := beatclock.RenderClickTrack(beatclock.ClickConfig{
		BPM:           cfg.BPM,
		StepsPerCycle: cfg.StepsPerCycle,
		StepLength:    cfg.StepLengthBeats,
		SampleRate:    cfg.SampleRate,
	}, seconds)
	if err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	if err := beatclock.WriteWAV(f, samples, cfg.SampleRate); err != nil {
		return err
	}
	fmt.Printf("wrote %.1fs click track to %s\n", seconds, path)
	return nil
}

func runLive(cfg beatclock.Config, seconds float64, pulse bool) error {
	opts := append(cfg.Options(), beatclock.WithBeatPulse(pulse))
	rt, err := beatclock.NewRenderTransport(cfg.SampleRate, opts...)
	if err != nil {
		return err
	}
	defer rt.Dispose()

	bus := beatclock.NewTransportBus(rt)
	defer bus.Dispose()

	sched := beatclock.NewScheduler(rt, cfg.Options()...)
	seq, err := beatclock.NewPhaseSequencer(append(cfg.Options(),
		beatclock.WithOnStep(func(ev beatclock.StepEvent) {
			fmt.Printf("step %4d  cycle %3d.%02d  phase %.3f  beat %7.3f  t %8.3fs\n",
				ev.StepIndex, ev.CycleIndex, ev.StepInCycle, ev.Phase, ev.Beat, ev.Time)
		}))...)
	if err != nil {
		return err
	}
	sched.Add(seq)

	if cfg.MIDIPort != "" {
		defer gomidi.CloseDriver()
		send, err := openMIDIPort(cfg.MIDIPort)
		if err != nil {
			return err
		}
		mc, err := beatclock.NewMIDIClock(bus, sched, send)
		if err != nil {
			return err
		}
		defer mc.Dispose()
	}

	// Drive the scheduler from the render-side tick stream rather than a
	// wall-clock timer, so windows line up with rendered time.
	sched.Resync()
	defer bus.OnTick(func(tk beatclock.Tick) { sched.AdvanceTo(tk.Time) })()

	rt.Start()
	defer rt.Stop()

	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt)
	if seconds > 0 {
		select {
		case <-interrupt:
		case <-time.After(time.Duration(seconds * float64(time.Second))):
		}
	} else {
		<-interrupt
	}
	return nil
}

func openMIDIPort(name string) (func(gomidi.Message) error, error) {
	for _, port := range gomidi.GetOutPorts() {
		if strings.Contains(strings.ToLower(port.String()), strings.ToLower(name)) {
			return gomidi.SendTo(port)
		}
	}
	return nil, fmt.Errorf("no MIDI output port matching %q", name)
}
