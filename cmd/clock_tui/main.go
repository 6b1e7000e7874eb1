package main

import (
	"flag"
	"fmt"
	"log"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	beatclock "github.com/modseven/beatclock-go"
)

var (
	dimStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("#555"))
	activeStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#fff"))
	playheadStyle = lipgloss.NewStyle().Reverse(true)
	statusStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#888"))
)

type model struct {
	rt       *beatclock.RenderTransport
	bus      *beatclock.TransportBus
	ticks    chan beatclock.Tick
	steps    int
	last     beatclock.Tick
	quitting bool
}

type tickMsg beatclock.Tick

func listenForTicks(ticks chan beatclock.Tick) tea.Cmd {
	return func() tea.Msg {
		return tickMsg(<-ticks)
	}
}

func (m model) Init() tea.Cmd {
	return listenForTicks(m.ticks)
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			m.quitting = true
			return m, tea.Quit

		case " ":
			if m.rt.IsPlaying() {
				m.rt.Stop()
			} else {
				m.rt.Start()
			}

		case "s":
			_ = m.rt.Seek(0)

		case "+", "=":
			_ = m.rt.SetTempo(m.rt.BPM() + 5)

		case "-", "_":
			if bpm := m.rt.BPM() - 5; bpm > 0 {
				_ = m.rt.SetTempo(bpm)
			}
		}

	case tickMsg:
		m.last = beatclock.Tick(msg)
		return m, listenForTicks(m.ticks)
	}

	return m, nil
}

func (m model) View() string {
	if m.quitting {
		return ""
	}

	playhead := -1
	if m.last.Running {
		playhead = int(m.rt.PhaseAtTime(m.last.Time, float64(m.steps)) * float64(m.steps))
	}

	var cells []string
	for i := 0; i < m.steps; i++ {
		style := dimStyle
		char := "·"
		if i%4 == 0 {
			style = activeStyle
			char = "|"
		}
		if i == playhead {
			style = playheadStyle
		}
		cells = append(cells, style.Render(char))
	}
	grid := strings.Join(cells, " ")

	playState := "stop"
	if m.last.Running {
		playState = "play"
	}
	status := statusStyle.Render(fmt.Sprintf("%s  %3.0fbpm  beat %7.2f  t %7.2fs",
		playState, m.last.BPM, m.last.Beat, m.last.Time))
	help := dimStyle.Render("space:play/stop  +/-:tempo  s:seek 0  q:quit")

	return fmt.Sprintf("\n%s\n%s\n\n%s\n", grid, status, help)
}

func main() {
	var (
		bpm        = flag.Float64("bpm", beatclock.DefaultBPM, "tempo in beats per minute")
		steps      = flag.Int("steps", beatclock.DefaultStepsPerCycle, "steps shown per cycle")
		sampleRate = flag.Int("sample-rate", 48000, "audio sample rate")
	)
	flag.Parse()

	rt, err := beatclock.NewRenderTransport(*sampleRate, beatclock.WithBPM(*bpm))
	if err != nil {
		log.Fatal(err)
	}
	defer rt.Dispose()

	bus := beatclock.NewTransportBus(rt)
	defer bus.Dispose()

	ticks := make(chan beatclock.Tick, 8)
	defer bus.OnTick(func(tk beatclock.Tick) {
		select {
		case ticks <- tk:
		default:
		}
	})()

	p := tea.NewProgram(model{rt: rt, bus: bus, ticks: ticks, steps: *steps})
	if _, err := p.Run(); err != nil {
		log.Fatal(err)
	}
}
