package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"golang.org/x/term"

	dspruntime "github.com/wippyai/dsp-runtime"
	"github.com/wippyai/dsp-runtime/diag"
	"github.com/wippyai/dsp-runtime/endpoint"
	"github.com/wippyai/dsp-runtime/interp"
	"github.com/wippyai/dsp-runtime/jit"
	"github.com/wippyai/dsp-runtime/program"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4")).
			Padding(0, 1)

	nameStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#98FB98"))

	typeStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#87CEEB"))

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF6B6B"))

	warnStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FFD166"))

	helpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#666666"))
)

// painter applies styles only when writing to a terminal.
type painter bool

func newPainter(w io.Writer) painter {
	f, ok := w.(*os.File)
	return painter(ok && term.IsTerminal(int(f.Fd())))
}

func (p painter) paint(s lipgloss.Style, text string) string {
	if !p {
		return text
	}
	return s.Render(text)
}

// newFactory creates the factory for a backend name. The returned function
// releases it.
func newFactory(ctx context.Context, name string) (dspruntime.PerformerFactory, func(), error) {
	switch name {
	case interp.BackendName:
		return interp.NewFactory(), func() {}, nil
	case jit.BackendName, jit.InterpreterBackendName:
		cfg := jit.DefaultConfig()
		if name == jit.InterpreterBackendName {
			cfg.Mode = jit.ModeInterpreter
		}
		f, err := jit.NewFactory(ctx, cfg)
		if err != nil {
			return nil, nil, err
		}
		return f, func() { _ = f.Close(ctx) }, nil
	}
	return nil, nil, fmt.Errorf("unknown backend %q (want interp, jit or jit-interp)", name)
}

func linkOptions() (dspruntime.LinkOptions, error) {
	level, err := dspruntime.ParseOptLevel(rootFlags.opt)
	if err != nil {
		return dspruntime.LinkOptions{}, err
	}
	opts := dspruntime.DefaultLinkOptions()
	opts.OptLevel = level
	opts.MaxBlockSize = rootFlags.blockSize
	opts.MaxStateSize = rootFlags.maxState
	return opts, opts.Validate()
}

// binder fills a performer's binding table once the program is loaded.
type binder func(tbl *endpoint.Table, inputs, outputs []endpoint.Endpoint) error

// prepare loads prog into perf, binds it and links it. Diagnostics are
// collected in msgs whether or not it succeeds.
func prepare(perf dspruntime.Performer, msgs *diag.List, prog *program.Program, opts dspruntime.LinkOptions, cache dspruntime.LinkerCache, bind binder) error {
	if !perf.Load(msgs, prog) {
		return fmt.Errorf("load %s: %w", prog.Name(), msgs.Err())
	}
	if bind != nil {
		if err := bind(perf.Bindings(), perf.InputEndpoints(), perf.OutputEndpoints()); err != nil {
			return err
		}
	}
	if !perf.Link(msgs, opts, cache) {
		return fmt.Errorf("link %s: %w", prog.Name(), msgs.Err())
	}
	return nil
}

func printMessages(w io.Writer, msgs *diag.List) {
	p := newPainter(w)
	for _, m := range msgs.Messages() {
		text := m.String()
		switch m.Severity {
		case diag.Error:
			text = p.paint(errorStyle, text)
		case diag.Warning:
			text = p.paint(warnStyle, text)
		default:
			text = p.paint(helpStyle, text)
		}
		fmt.Fprintln(w, text)
	}
}

// parseSettings parses name=value pairs given with --set.
func parseSettings(pairs []string) (map[string]float32, error) {
	out := make(map[string]float32, len(pairs))
	for _, pair := range pairs {
		name, value, ok := strings.Cut(pair, "=")
		if !ok || name == "" {
			return nil, fmt.Errorf("invalid setting %q, want name=value", pair)
		}
		v, err := strconv.ParseFloat(value, 32)
		if err != nil {
			return nil, fmt.Errorf("invalid value for %s: %w", name, err)
		}
		out[name] = float32(v)
	}
	return out, nil
}

// bindSettings binds a constant value source for every setting. Unknown
// names and non-value endpoints are rejected.
func bindSettings(tbl *endpoint.Table, inputs []endpoint.Endpoint, settings map[string]float32) error {
	for name, v := range settings {
		found := false
		for _, ep := range inputs {
			if ep.Name != name {
				continue
			}
			if ep.Kind != endpoint.Value {
				return fmt.Errorf("cannot set %s: %s", name, ep)
			}
			found = true
		}
		if !found {
			return fmt.Errorf("cannot set %s: no such value input", name)
		}
		if err := tbl.BindValueSource(name, func() float32 { return v }); err != nil {
			return err
		}
	}
	return nil
}
