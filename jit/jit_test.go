package jit

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dspruntime "github.com/wippyai/dsp-runtime"
	"github.com/wippyai/dsp-runtime/diag"
	"github.com/wippyai/dsp-runtime/endpoint"
	"github.com/wippyai/dsp-runtime/internal/graph"
	"github.com/wippyai/dsp-runtime/internal/perform"
	"github.com/wippyai/dsp-runtime/internal/performtest"
	"github.com/wippyai/dsp-runtime/interp"
	"github.com/wippyai/dsp-runtime/program"
)

func newFactory(t *testing.T, cfg *Config) *Factory {
	t.Helper()
	f, err := NewFactory(context.Background(), cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = f.Close(context.Background()) })
	return f
}

func echo() *program.Program {
	return program.NewBuilder("echo").
		Input(program.Stream("in")).
		Input(program.Value("mix", endpoint.Float32, 0.5)).
		Output(program.Stream("out").From("y")).
		Node(
			program.Input("x", "in"),
			program.Input("m", "mix"),
			program.Delay("d", "y", 5),
			program.Mul("wet", "d", "m"),
			program.Add("y", "x", "wet"),
			program.Accum("acc", "x"),
			program.Sub("diff", "acc", "y"),
		).
		Output(program.Stream("drift").From("diff")).
		Build()
}

func schedule(t *testing.T, p *program.Program) *graph.Schedule {
	t.Helper()
	var msgs diag.List
	g := graph.Analyse(&msgs, p)
	require.NotNil(t, g, msgs.String())
	return graph.Lower(g, perform.Passes(dspruntime.OptDefault))
}

func TestConformance(t *testing.T) {
	for _, mode := range []Mode{ModeAuto, ModeInterpreter} {
		t.Run(mode.String(), func(t *testing.T) {
			performtest.Run(t, newFactory(t, &Config{Mode: mode}))
		})
	}
}

func TestBackendNames(t *testing.T) {
	assert.Equal(t, BackendName, newFactory(t, nil).Backend())
	assert.Equal(t, InterpreterBackendName, newFactory(t, &Config{Mode: ModeInterpreter}).Backend())

	_, err := NewFactory(context.Background(), &Config{Mode: Mode(9)})
	assert.Error(t, err)
	assert.Equal(t, "unknown", Mode(9).String())
}

func TestMemoryLimitPages(t *testing.T) {
	assert.Equal(t, uint32(DefaultMemoryLimitPages), (&Config{}).memoryLimit())
	assert.Equal(t, uint32(maxPages), (&Config{MemoryLimitPages: maxPages + 1}).memoryLimit())
	assert.Equal(t, uint32(2), (&Config{MemoryLimitPages: 2}).memoryLimit())
}

func TestMatchesInterpreter(t *testing.T) {
	input := make([]float32, 300)
	for i := range input {
		input[i] = float32(i%17) - 8
	}
	render := func(f dspruntime.PerformerFactory) map[string][]float32 {
		perf := performtest.Load(t, f, echo())
		out := map[string][]float32{}
		var main, drift []float32
		require.NoError(t, perf.Bindings().BindStreamSource("in", performtest.Source(input)))
		require.NoError(t, perf.Bindings().BindValueSource("mix", func() float32 { return 0.25 }))
		require.NoError(t, perf.Bindings().BindStreamSink("out", performtest.Collect(&main)))
		require.NoError(t, perf.Bindings().BindStreamSink("drift", performtest.Collect(&drift)))
		opts := dspruntime.DefaultLinkOptions()
		opts.MaxBlockSize = 64
		performtest.Link(t, perf, opts, nil)
		perf.Advance(uint32(len(input)))
		out["out"], out["drift"] = main, drift
		return out
	}

	want := render(interp.NewFactory())
	for _, mode := range []Mode{ModeAuto, ModeInterpreter} {
		assert.Equal(t, want, render(newFactory(t, &Config{Mode: mode})), mode.String())
	}
}

func TestLayout(t *testing.T) {
	s := &graph.Schedule{NumInputs: 2, NumOutputs: 1, Counters: 1, StateWords: 3}
	l := newLayout(s, 4)
	assert.Equal(t, uint32(0), l.input(0))
	assert.Equal(t, uint32(16), l.input(1))
	assert.Equal(t, uint32(32), l.output(0))
	assert.Equal(t, uint32(48), l.counter(0))
	assert.Equal(t, uint32(52), l.state(0))
	assert.Equal(t, uint64(64), l.end)
	assert.Equal(t, uint64(1), l.pages())

	big := newLayout(&graph.Schedule{StateWords: 1 << 20}, 1024)
	assert.Equal(t, uint64(64), big.pages())
	assert.Error(t, big.checkMemory(63))
	assert.NoError(t, big.checkMemory(64))
}

func TestGeneratedModule(t *testing.T) {
	s := schedule(t, echo())
	l := newLayout(s, 32)
	module := generate(s, l)
	assert.True(t, bytes.HasPrefix(module, []byte("\x00asm\x01\x00\x00\x00")))
	assert.True(t, bytes.Contains(module, []byte("process")))
	assert.True(t, bytes.Contains(module, []byte("memory")))

	got, mod, err := decodePayload(encodePayload(l, module), 32)
	require.NoError(t, err)
	assert.Equal(t, l, got)
	assert.Equal(t, module, mod)

	f := newFactory(t, &Config{Mode: ModeInterpreter})
	compiled, err := f.runtime.CompileModule(context.Background(), module)
	require.NoError(t, err)
	defer compiled.Close(context.Background())
	assert.Contains(t, compiled.ExportedFunctions(), "process")
	assert.Contains(t, compiled.ExportedMemories(), "memory")
}

func TestDecodePayloadErrors(t *testing.T) {
	s := schedule(t, echo())
	l := newLayout(s, 32)
	payload := encodePayload(l, generate(s, l))

	tests := []struct {
		name    string
		payload []byte
		block   uint32
		want    string
	}{
		{"empty", nil, 32, "truncated kernel payload"},
		{"version", append([]byte{9}, payload[1:]...), 32, "kernel payload version 9"},
		{"truncated", payload[:len(payload)-3], 32, "truncated kernel payload"},
		{"trailing", append(append([]byte(nil), payload...), 0), 32, "trailing bytes"},
		{"block", payload, 64, "compiled for block size 32, want 64"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := decodePayload(tt.payload, tt.block)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestLinkRejectsOversizedKernel(t *testing.T) {
	f := newFactory(t, &Config{Mode: ModeInterpreter, MemoryLimitPages: 1})
	perf := performtest.Load(t, f, performtest.Delayed(20000))
	var msgs diag.List
	assert.False(t, perf.Link(&msgs, dspruntime.DefaultLinkOptions(), nil))
	assert.Contains(t, msgs.String(), "kernel memory in pages")
}

func TestClosedFactory(t *testing.T) {
	f, err := NewFactory(context.Background(), &Config{Mode: ModeInterpreter})
	require.NoError(t, err)
	perf := f.CreatePerformer()
	var msgs diag.List
	require.True(t, perf.Load(&msgs, performtest.PassThrough()))

	require.NoError(t, f.Close(context.Background()))
	require.NoError(t, f.Close(context.Background()))

	assert.False(t, perf.Link(&msgs, dspruntime.DefaultLinkOptions(), nil))
	assert.Contains(t, msgs.String(), "jit factory is closed")
}

func TestResetClearsKernelState(t *testing.T) {
	f := newFactory(t, &Config{Mode: ModeInterpreter})
	s := schedule(t, performtest.Delayed(2))
	b := &backend{f: f}
	opts := dspruntime.DefaultLinkOptions()
	opts.MaxBlockSize = 4
	payload, err := b.Compile(s, opts)
	require.NoError(t, err)
	k, err := b.Instantiate(payload, opts, s.Shape())
	require.NoError(t, err)
	defer k.Close()

	in := [][]float32{{1, 2, 3, 4}}
	out := [][]float32{make([]float32, 4)}
	k.Process(in, out, 4)
	assert.Equal(t, []float32{0, 0, 1, 2}, out[0])
	k.Process(in, out, 4)
	assert.Equal(t, []float32{3, 4, 1, 2}, out[0])

	k.Reset()
	k.Process(in, out, 4)
	assert.Equal(t, []float32{0, 0, 1, 2}, out[0])
	assert.Equal(t, uint64(12), k.StateBytes())
}
