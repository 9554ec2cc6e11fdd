package main

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	dspruntime "github.com/wippyai/dsp-runtime"
	"github.com/wippyai/dsp-runtime/diag"
	"github.com/wippyai/dsp-runtime/endpoint"
	"github.com/wippyai/dsp-runtime/program"
)

var monitorFlags struct {
	rate     int
	fps      int
	tone     float64
	settings []string
}

var monitorCmd = &cobra.Command{
	Use:   "monitor <program.yaml>",
	Short: "Run a program live with level meters",
	Long: `Run a program in real time and show its outputs.

Stream inputs receive a sine test tone. Value inputs can be adjusted while
the program runs: select one with up/down and change it with left/right.
Press r to reset the performer and q to quit.

Examples:
  perform monitor echo.yaml
  perform monitor tremolo.yaml --tone 110 --set depth=0.8`,
	Args: cobra.ExactArgs(1),
	RunE: runMonitor,
}

func init() {
	rootCmd.AddCommand(monitorCmd)
	monitorCmd.Flags().IntVar(&monitorFlags.rate, "rate", 48000, "sample rate")
	monitorCmd.Flags().IntVar(&monitorFlags.fps, "fps", 20, "screen updates per second")
	monitorCmd.Flags().Float64Var(&monitorFlags.tone, "tone", 440, "test tone frequency in Hz")
	monitorCmd.Flags().StringArrayVar(&monitorFlags.settings, "set", nil, "initial value input as name=value (repeatable)")
}

type param struct {
	name  string
	value float32
}

type meter struct {
	name  string
	kind  endpoint.Kind
	peak  float32
	last  float32
	count int
	bar   progress.Model
}

type tickMsg time.Time

type monitorModel struct {
	perf   dspruntime.Performer
	prog   *program.Program
	params []*param
	meters []*meter

	backend  string
	selected int
	chunk    uint32
	interval time.Duration
	rate     int
	frames   uint64
}

type monitorConfig struct {
	rate     int
	fps      int
	tone     float64
	settings map[string]float32
}

// newMonitorModel loads and links prog. Stream inputs play a sine test
// tone; value inputs are bound to adjustable parameters.
func newMonitorModel(perf dspruntime.Performer, backend string, prog *program.Program, opts dspruntime.LinkOptions, msgs *diag.List, cfg monitorConfig) (*monitorModel, error) {
	fps := max(1, cfg.fps)
	m := &monitorModel{
		perf:     perf,
		prog:     prog,
		backend:  backend,
		rate:     cfg.rate,
		chunk:    uint32(max(1, cfg.rate/fps)),
		interval: time.Second / time.Duration(fps),
	}

	bind := func(tbl *endpoint.Table, inputs, outputs []endpoint.Endpoint) error {
		for _, ep := range inputs {
			switch ep.Kind {
			case endpoint.Stream:
				if err := tbl.BindStreamSource(ep.Name, sineSource(cfg.tone, cfg.rate)); err != nil {
					return err
				}
			case endpoint.Value:
				p := &param{name: ep.Name, value: ep.Default}
				if v, ok := cfg.settings[ep.Name]; ok {
					p.value = v
				}
				m.params = append(m.params, p)
				if err := tbl.BindValueSource(ep.Name, func() float32 { return p.value }); err != nil {
					return err
				}
			}
		}
		for name := range cfg.settings {
			if !m.hasParam(name) {
				return fmt.Errorf("cannot set %s: no such value input", name)
			}
		}
		for _, ep := range outputs {
			mt := &meter{name: ep.Name, kind: ep.Kind, bar: progress.New(progress.WithDefaultGradient(), progress.WithoutPercentage())}
			m.meters = append(m.meters, mt)
			var err error
			switch ep.Kind {
			case endpoint.Stream:
				err = tbl.BindStreamSink(ep.Name, mt.stream)
			case endpoint.Value:
				err = tbl.BindValueSink(ep.Name, mt.value)
			case endpoint.Events:
				err = tbl.BindEventSink(ep.Name, mt.events)
			}
			if err != nil {
				return err
			}
		}
		return nil
	}

	if err := prepare(perf, msgs, prog, opts, nil, bind); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *monitorModel) hasParam(name string) bool {
	for _, p := range m.params {
		if p.name == name {
			return true
		}
	}
	return false
}

func (mt *meter) stream(src []float32) int {
	for _, v := range src {
		mt.peak = max(mt.peak, float32(math.Abs(float64(v))))
	}
	if len(src) > 0 {
		mt.last = src[len(src)-1]
	}
	return len(src)
}

func (mt *meter) value(v float32) {
	mt.last = v
	mt.peak = max(mt.peak, float32(math.Abs(float64(v))))
}

func (mt *meter) events(src []endpoint.Event) int {
	mt.count += len(src)
	if len(src) > 0 {
		mt.value(src[len(src)-1].Value)
	}
	return len(src)
}

func sineSource(freq float64, rate int) endpoint.StreamSource {
	phase := 0.0
	step := 2 * math.Pi * freq / float64(rate)
	return func(dst []float32) int {
		for i := range dst {
			dst[i] = float32(0.5 * math.Sin(phase))
			phase = math.Mod(phase+step, 2*math.Pi)
		}
		return len(dst)
	}
}

func (m *monitorModel) tick() tea.Cmd {
	return tea.Tick(m.interval, func(t time.Time) tea.Msg { return tickMsg(t) })
}

func (m *monitorModel) Init() tea.Cmd {
	return m.tick()
}

func (m *monitorModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q":
			return m, tea.Quit
		case "r":
			m.perf.Reset()
		case "up", "k":
			if m.selected > 0 {
				m.selected--
			}
		case "down", "j":
			if m.selected < len(m.params)-1 {
				m.selected++
			}
		case "left", "h":
			m.adjust(-1)
		case "right", "l":
			m.adjust(1)
		}

	case tickMsg:
		m.advance()
		return m, m.tick()

	case tea.WindowSizeMsg:
		for _, mt := range m.meters {
			mt.bar.Width = max(10, min(60, msg.Width-24))
		}
	}
	return m, nil
}

// advance renders one screen interval and decays the meters.
func (m *monitorModel) advance() {
	for _, mt := range m.meters {
		mt.peak *= 0.5
	}
	m.perf.Advance(m.chunk)
	m.frames += uint64(m.chunk)
}

func (m *monitorModel) adjust(dir float32) {
	if len(m.params) == 0 {
		return
	}
	p := m.params[m.selected]
	step := float32(0.05)
	if a := float32(math.Abs(float64(p.value))); a >= 1 {
		step = a * 0.1
	}
	p.value += dir * step
}

func (m *monitorModel) View() string {
	var b strings.Builder
	b.WriteString(titleStyle.Render(m.prog.Name()))
	b.WriteString(helpStyle.Render(fmt.Sprintf("  %s  %d Hz", m.backend, m.rate)))
	b.WriteString("\n\n")

	if len(m.params) > 0 {
		for i, p := range m.params {
			line := fmt.Sprintf("%-12s %8.3f", p.name, p.value)
			if i == m.selected {
				b.WriteString(titleStyle.Render(line))
			} else {
				b.WriteString("  " + nameStyle.Render(line))
			}
			b.WriteString("\n")
		}
		b.WriteString("\n")
	}

	for _, mt := range m.meters {
		level := math.Min(1, float64(mt.peak))
		fmt.Fprintf(&b, "%-12s %s %s", mt.name, mt.bar.ViewAs(level), typeStyle.Render(fmt.Sprintf("%7.3f", mt.last)))
		if mt.kind == endpoint.Events {
			b.WriteString(helpStyle.Render(fmt.Sprintf("  %d events", mt.count)))
		}
		b.WriteString("\n")
	}

	seconds := float64(m.frames) / float64(m.rate)
	status := fmt.Sprintf("\n%.1fs rendered  xruns %d", seconds, m.perf.XRuns())
	if m.perf.XRuns() > 0 {
		b.WriteString(errorStyle.Render(status))
	} else {
		b.WriteString(status)
	}
	b.WriteString("\n\n")
	b.WriteString(helpStyle.Render("↑/↓ select • ←/→ adjust • r reset • q quit"))
	b.WriteString("\n")
	return b.String()
}

func runMonitor(cmd *cobra.Command, args []string) error {
	prog, err := program.DecodeFile(args[0])
	if err != nil {
		return err
	}
	settings, err := parseSettings(monitorFlags.settings)
	if err != nil {
		return err
	}
	opts, err := linkOptions()
	if err != nil {
		return err
	}
	factory, release, err := newFactory(cmd.Context(), rootFlags.backend)
	if err != nil {
		return err
	}
	defer release()

	perf := factory.CreatePerformer()
	defer perf.Unload()
	var msgs diag.List
	m, err := newMonitorModel(perf, factory.Backend(), prog, opts, &msgs, monitorConfig{
		rate:     monitorFlags.rate,
		fps:      monitorFlags.fps,
		tone:     monitorFlags.tone,
		settings: settings,
	})
	printMessages(cmd.ErrOrStderr(), &msgs)
	if err != nil {
		return err
	}

	_, err = tea.NewProgram(m, tea.WithAltScreen()).Run()
	return err
}
