package interp

import (
	stderrors "errors"
	"testing"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	dspruntime "github.com/wippyai/dsp-runtime"
	"github.com/wippyai/dsp-runtime/diag"
	"github.com/wippyai/dsp-runtime/endpoint"
	"github.com/wippyai/dsp-runtime/errors"
	"github.com/wippyai/dsp-runtime/internal/graph"
	"github.com/wippyai/dsp-runtime/internal/perform"
	"github.com/wippyai/dsp-runtime/internal/performtest"
	"github.com/wippyai/dsp-runtime/program"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func tape() *program.Program {
	return program.NewBuilder("tape").
		Input(program.Stream("in")).
		Input(program.Value("level", endpoint.Float32, 0.8)).
		Output(program.Stream("out").From("m")).
		Node(
			program.Input("x", "in"),
			program.Input("l", "level"),
			program.Const("two", 2),
			program.Const("half", 0.5),
			program.Mul("k", "two", "half"),
			program.Delay("d", "m", 3),
			program.Gain("fb", "d", 0.25),
			program.Add("s", "x", "fb"),
			program.Mul("s2", "s", "k"),
			program.Mul("m", "s2", "l"),
			program.Accum("dead", "x"),
		).Build()
}

func schedule(t *testing.T, p *program.Program, level dspruntime.OptLevel) *graph.Schedule {
	t.Helper()
	var msgs diag.List
	g := graph.Analyse(&msgs, p)
	require.NotNil(t, g, msgs.String())
	return graph.Lower(g, perform.Passes(level))
}

// run feeds input through a kernel built from p and returns the first output.
func run(t *testing.T, p *program.Program, level dspruntime.OptLevel, input []float32) []float32 {
	t.Helper()
	s := schedule(t, p, level)
	payload, err := backend{}.Compile(s, dspruntime.DefaultLinkOptions())
	require.NoError(t, err)
	k, err := backend{}.Instantiate(payload, dspruntime.DefaultLinkOptions(), s.Shape())
	require.NoError(t, err)

	in := make([][]float32, k.Inputs())
	for i := range in {
		in[i] = make([]float32, len(input))
	}
	if len(in) > 0 {
		copy(in[0], input)
	}
	out := [][]float32{make([]float32, len(input))}
	k.Process(in, out, len(input))
	return out[0]
}

func TestFactory(t *testing.T) {
	f := NewFactory()
	assert.Equal(t, "interp", f.Backend())
	perf := f.CreatePerformer()
	assert.Equal(t, dspruntime.Unloaded, perf.State())
}

func TestListingGolden(t *testing.T) {
	out, err := Listing(tape(), dspruntime.OptDefault)
	require.NoError(t, err)

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, "tape", []byte(out))
}

func TestDisassembleMatchesListing(t *testing.T) {
	s := schedule(t, tape(), dspruntime.OptDefault)
	payload, err := backend{}.Compile(s, dspruntime.DefaultLinkOptions())
	require.NoError(t, err)

	got, err := Disassemble(payload)
	require.NoError(t, err)
	want, err := Listing(tape(), dspruntime.OptDefault)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestListingInvalidProgram(t *testing.T) {
	p := program.NewBuilder("bad").Output(program.Stream("out").From("x")).Build()
	_, err := Listing(p, dspruntime.OptNone)
	assert.ErrorContains(t, err, `source node "x" not found`)
}

func TestKernelOps(t *testing.T) {
	tests := []struct {
		name  string
		nodes []program.Node
		in    []float32
		want  []float32
	}{
		{
			name:  "gain",
			nodes: []program.Node{program.Input("x", "in"), program.Gain("y", "x", -2)},
			in:    []float32{1, 2, 3},
			want:  []float32{-2, -4, -6},
		},
		{
			name:  "sub",
			nodes: []program.Node{program.Input("x", "in"), program.Const("c", 1), program.Sub("y", "x", "c")},
			in:    []float32{1, 2, 3},
			want:  []float32{0, 1, 2},
		},
		{
			name:  "square",
			nodes: []program.Node{program.Input("x", "in"), program.Mul("y", "x", "x")},
			in:    []float32{1, 2, 3},
			want:  []float32{1, 4, 9},
		},
		{
			name:  "delay",
			nodes: []program.Node{program.Input("x", "in"), program.Delay("y", "x", 2)},
			in:    []float32{1, 2, 3, 4, 5},
			want:  []float32{0, 0, 1, 2, 3},
		},
		{
			name:  "accum",
			nodes: []program.Node{program.Input("x", "in"), program.Accum("y", "x")},
			in:    []float32{1, 2, 3, 4},
			want:  []float32{1, 3, 6, 10},
		},
		{
			name: "feedback comb",
			nodes: []program.Node{
				program.Input("x", "in"),
				program.Delay("d", "y", 1),
				program.Gain("g", "d", 0.5),
				program.Add("y", "x", "g"),
			},
			in:   []float32{1, 0, 0, 0},
			want: []float32{1, 0.5, 0.25, 0.125},
		},
		{
			name: "delay of delay",
			nodes: []program.Node{
				program.Input("x", "in"),
				program.Delay("a", "x", 1),
				program.Delay("y", "a", 1),
			},
			in:   []float32{1, 2, 3, 4},
			want: []float32{0, 0, 1, 2},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := program.NewBuilder(tt.name).
				Input(program.Stream("in")).
				Output(program.Stream("out").From("y")).
				Node(tt.nodes...).
				Build()
			for _, level := range []dspruntime.OptLevel{dspruntime.OptNone, dspruntime.OptDefault, dspruntime.OptFull} {
				assert.Equal(t, tt.want, run(t, p, level, tt.in), level.String())
			}
		})
	}
}

func TestKernelReset(t *testing.T) {
	s := schedule(t, program.NewBuilder("ramp").
		Output(program.Stream("out").From("r")).
		Node(program.Const("one", 1), program.Accum("r", "one")).
		Build(), dspruntime.OptNone)
	k := newKernel(s)
	out := [][]float32{make([]float32, 3)}

	k.Process(nil, out, 3)
	assert.Equal(t, []float32{1, 2, 3}, out[0])
	k.Reset()
	k.Process(nil, out, 3)
	assert.Equal(t, []float32{1, 2, 3}, out[0])
	assert.Equal(t, uint64(4), k.StateBytes())
}

func TestDecodeRejectsCorruptPayloads(t *testing.T) {
	s := schedule(t, tape(), dspruntime.OptNone)
	good := encode(s, 1024)

	_, err := decode(good, 1024)
	require.NoError(t, err)

	corrupt := func(f func(b []byte) []byte) []byte {
		return f(append([]byte(nil), good...))
	}
	tests := []struct {
		name    string
		payload []byte
		block   uint32
	}{
		{"empty", nil, 1024},
		{"version", corrupt(func(b []byte) []byte { b[0] = 9; return b }), 1024},
		{"truncated", good[:len(good)-3], 1024},
		{"trailing", append(append([]byte(nil), good...), 1), 1024},
		{"block size", good, 512},
		{"register out of range", encode(&graph.Schedule{
			Registers:  1,
			NumOutputs: 1,
			Code:       []graph.Instr{{Op: graph.OpStore, A: 5}},
		}, 1024), 1024},
		{"huge sizes", encode(&graph.Schedule{
			NumInputs:  1,
			NumOutputs: 1,
			Registers:  0xFFFFFFFF,
			StateWords: 0xFFFFFFFF,
			Counters:   0xFFFFFFFF,
		}, 1024), 1024},
		{"huge count", []byte{codecVersion, 0x80, 0x08, 0, 0, 0, 0, 0, 0xff, 0xff, 0xff, 0xff, 0x0f}, 1024},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := decode(tt.payload, tt.block)
			require.Error(t, err)
			var rerr *errors.Error
			require.True(t, stderrors.As(err, &rerr), "%v", err)
			assert.Equal(t, errors.PhaseLink, rerr.Phase)
		})
	}
}

func TestInstantiateRejectsShapeMismatch(t *testing.T) {
	s := schedule(t, tape(), dspruntime.OptNone)
	payload, err := backend{}.Compile(s, dspruntime.DefaultLinkOptions())
	require.NoError(t, err)

	want := s.Shape()
	want.StateWords++
	_, err = backend{}.Instantiate(payload, dspruntime.DefaultLinkOptions(), want)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "does not match program shape")
}

func TestOversizedCachedArtifactIsIgnored(t *testing.T) {
	f := NewFactory()
	opts := dspruntime.DefaultLinkOptions()
	p := performtest.PassThrough()
	forged := encode(&graph.Schedule{
		NumInputs:  1,
		NumOutputs: 1,
		Registers:  0xFFFFFFFF,
		StateWords: 0xFFFFFFFF,
		Counters:   0xFFFFFFFF,
	}, opts.BlockSize())
	cache := performtest.NewMapCache()
	key := dspruntime.NewCacheKey(p.ID(), f.Backend(), opts)
	cache.Put(key, perform.EncodeArtifact(BackendName, forged))

	perf := performtest.Load(t, f, p)
	var out []float32
	require.NoError(t, perf.Bindings().BindStreamSource("in", performtest.Source(performtest.Ramp(3))))
	require.NoError(t, perf.Bindings().BindStreamSink("out", performtest.Collect(&out)))
	var msgs diag.List
	require.True(t, perf.Link(&msgs, opts, cache), msgs.String())
	assert.Equal(t, 1, msgs.Count(diag.Info))
	assert.Contains(t, msgs.String(), "ignoring cached linkage artifact")

	perf.Advance(3)
	assert.Equal(t, []float32{1, 2, 3}, out)
}

func TestConformance(t *testing.T) {
	performtest.Run(t, NewFactory())
}

func TestAdvanceDoesNotAllocate(t *testing.T) {
	perf := performtest.Load(t, NewFactory(), tape())
	buf := performtest.Ramp(64)
	require.NoError(t, perf.Bindings().BindStreamSource("in", func(dst []float32) int { return copy(dst, buf) }))
	require.NoError(t, perf.Bindings().BindStreamSink("out", func(src []float32) int { return len(src) }))
	performtest.Link(t, perf, dspruntime.DefaultLinkOptions(), nil)

	allocs := testing.AllocsPerRun(100, func() { perf.Advance(64) })
	assert.Zero(t, allocs)
}
