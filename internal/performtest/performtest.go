// Package performtest checks that a backend's performers honour the
// Performer contract. Backend packages call Run from their tests.
package performtest

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dspruntime "github.com/wippyai/dsp-runtime"
	"github.com/wippyai/dsp-runtime/diag"
	"github.com/wippyai/dsp-runtime/endpoint"
	"github.com/wippyai/dsp-runtime/program"
)

// MapCache is an unbounded LinkerCache that counts its traffic.
type MapCache struct {
	mu   sync.Mutex
	data map[dspruntime.CacheKey][]byte
	Gets int
	Puts int
}

func NewMapCache() *MapCache {
	return &MapCache{data: make(map[dspruntime.CacheKey][]byte)}
}

func (c *MapCache) Get(key dspruntime.CacheKey) ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Gets++
	v, ok := c.data[key]
	return v, ok
}

func (c *MapCache) Put(key dspruntime.CacheKey, v []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Puts++
	c.data[key] = v
}

// Entry returns the stored artifact for key.
func (c *MapCache) Entry(key dspruntime.CacheKey) []byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.data[key]
}

// PassThrough copies stream "in" to stream "out".
func PassThrough() *program.Program {
	return program.NewBuilder("pass").
		Input(program.Stream("in")).
		Output(program.Stream("out").From("x")).
		Node(program.Input("x", "in")).
		Build()
}

// Counter emits 1, 2, 3, ... on "out".
func Counter() *program.Program {
	return program.NewBuilder("counter").
		Output(program.Stream("out").From("r")).
		Node(program.Const("one", 1), program.Accum("r", "one")).
		Build()
}

// Delayed delays stream "in" by frames frames.
func Delayed(frames uint32) *program.Program {
	return program.NewBuilder("delay").
		Input(program.Stream("in")).
		Output(program.Stream("out").From("d")).
		Node(program.Input("x", "in"), program.Delay("d", "x", frames)).
		Build()
}

// Ramp returns 1, 2, ..., n.
func Ramp(n int) []float32 {
	out := make([]float32, n)
	for i := range out {
		out[i] = float32(i + 1)
	}
	return out
}

// Source returns a stream source that plays data once, then underruns.
func Source(data []float32) endpoint.StreamSource {
	return func(dst []float32) int {
		n := copy(dst, data)
		data = data[n:]
		return n
	}
}

// Collect returns a stream sink appending to *out.
func Collect(out *[]float32) endpoint.StreamSink {
	return func(src []float32) int {
		*out = append(*out, src...)
		return len(src)
	}
}

// Load creates a performer and loads p into it.
func Load(t *testing.T, f dspruntime.PerformerFactory, p *program.Program) dspruntime.Performer {
	t.Helper()
	perf := f.CreatePerformer()
	var msgs diag.List
	require.True(t, perf.Load(&msgs, p), msgs.String())
	t.Cleanup(perf.Unload)
	return perf
}

// Link links perf and fails the test on error.
func Link(t *testing.T, perf dspruntime.Performer, opts dspruntime.LinkOptions, cache dspruntime.LinkerCache) {
	t.Helper()
	var msgs diag.List
	require.True(t, perf.Link(&msgs, opts, cache), msgs.String())
	require.False(t, msgs.HasErrors())
}

// Run executes the conformance suite against f.
func Run(t *testing.T, f dspruntime.PerformerFactory) {
	t.Run("UnloadMatchesFresh", func(t *testing.T) { testUnloadMatchesFresh(t, f) })
	t.Run("InvalidProgram", func(t *testing.T) { testInvalidProgram(t, f) })
	t.Run("PassThrough", func(t *testing.T) { testPassThrough(t, f) })
	t.Run("XRunsClearedByLink", func(t *testing.T) { testXRunsClearedByLink(t, f) })
	t.Run("ZeroSupplyIsOneXRun", func(t *testing.T) { testZeroSupply(t, f) })
	t.Run("ResetIsDeterministic", func(t *testing.T) { testReset(t, f) })
	t.Run("WholeQuantum", func(t *testing.T) { testWholeQuantum(t, f) })
	t.Run("SubBlockChunking", func(t *testing.T) { testChunking(t, f) })
	t.Run("CacheHitMatchesMiss", func(t *testing.T) { testCacheHit(t, f) })
	t.Run("CorruptCacheEntry", func(t *testing.T) { testCorruptCache(t, f) })
	t.Run("ForeignCacheEntry", func(t *testing.T) { testForeignCache(t, f) })
	t.Run("SealedBindings", func(t *testing.T) { testSealed(t, f) })
	t.Run("BindingErrors", func(t *testing.T) { testBindingErrors(t, f) })
	t.Run("StateLimit", func(t *testing.T) { testStateLimit(t, f) })
	t.Run("EventOrdering", func(t *testing.T) { testEvents(t, f) })
	t.Run("ValueEndpoints", func(t *testing.T) { testValues(t, f) })
	t.Run("OptLevelsAgree", func(t *testing.T) { testOptLevels(t, f) })
}

func testUnloadMatchesFresh(t *testing.T, f dspruntime.PerformerFactory) {
	fresh := f.CreatePerformer()
	perf := f.CreatePerformer()
	var msgs diag.List
	require.True(t, perf.Load(&msgs, PassThrough()))
	require.NoError(t, perf.Bindings().BindStreamSource("in", Source(nil)))
	require.True(t, perf.Link(&msgs, dspruntime.DefaultLinkOptions(), nil))
	perf.Advance(8)
	perf.Unload()

	for _, p := range []dspruntime.Performer{fresh, perf} {
		assert.Equal(t, dspruntime.Unloaded, p.State())
		assert.False(t, p.IsLoaded())
		assert.False(t, p.IsLinked())
		assert.Empty(t, p.InputEndpoints())
		assert.Empty(t, p.OutputEndpoints())
		assert.Zero(t, p.Bindings().Len())
		assert.False(t, p.Bindings().Sealed())
		assert.Zero(t, p.XRuns())
	}
}

func testInvalidProgram(t *testing.T, f dspruntime.PerformerFactory) {
	p := program.NewBuilder("broken").
		Output(program.Stream("out").From("missing")).
		Build()
	perf := f.CreatePerformer()
	var msgs diag.List
	assert.False(t, perf.Load(&msgs, p))
	assert.True(t, msgs.HasErrors())
	assert.False(t, perf.IsLoaded())
	assert.Contains(t, msgs.String(), `source node "missing" not found`)
}

func testPassThrough(t *testing.T, f dspruntime.PerformerFactory) {
	perf := Load(t, f, PassThrough())
	var out []float32
	require.NoError(t, perf.Bindings().BindStreamSource("in", Source([]float32{1, 2, 3, 4})))
	require.NoError(t, perf.Bindings().BindStreamSink("out", Collect(&out)))
	Link(t, perf, dspruntime.DefaultLinkOptions(), nil)

	perf.Advance(4)
	assert.Equal(t, []float32{1, 2, 3, 4}, out)
	assert.Zero(t, perf.XRuns())
}

func testXRunsClearedByLink(t *testing.T, f dspruntime.PerformerFactory) {
	perf := Load(t, f, PassThrough())
	require.NoError(t, perf.Bindings().BindStreamSource("in", Source(nil)))
	Link(t, perf, dspruntime.DefaultLinkOptions(), nil)
	assert.Zero(t, perf.XRuns())
	perf.Advance(4)
	require.NotZero(t, perf.XRuns())

	Link(t, perf, dspruntime.DefaultLinkOptions(), nil)
	assert.Zero(t, perf.XRuns())
}

func testZeroSupply(t *testing.T, f dspruntime.PerformerFactory) {
	perf := Load(t, f, PassThrough())
	var out []float32
	require.NoError(t, perf.Bindings().BindStreamSource("in", Source(nil)))
	require.NoError(t, perf.Bindings().BindStreamSink("out", Collect(&out)))
	Link(t, perf, dspruntime.DefaultLinkOptions(), nil)

	perf.Advance(8)
	assert.Equal(t, uint32(1), perf.XRuns())
	assert.Equal(t, make([]float32, 8), out)
}

func testReset(t *testing.T, f dspruntime.PerformerFactory) {
	perf := Load(t, f, Counter())
	var out []float32
	require.NoError(t, perf.Bindings().BindStreamSink("out", Collect(&out)))
	Link(t, perf, dspruntime.DefaultLinkOptions(), nil)

	perf.Advance(3)
	perf.Reset()
	perf.Advance(3)
	assert.Equal(t, []float32{1, 2, 3, 1, 2, 3}, out)
}

func testChunking(t *testing.T, f dspruntime.PerformerFactory) {
	perf := Load(t, f, Delayed(3))
	var out []float32
	var sizes []int
	src := Source(Ramp(10))
	require.NoError(t, perf.Bindings().BindStreamSource("in", func(dst []float32) int {
		sizes = append(sizes, len(dst))
		return src(dst)
	}))
	require.NoError(t, perf.Bindings().BindStreamSink("out", Collect(&out)))
	opts := dspruntime.DefaultLinkOptions()
	opts.MaxBlockSize = 4
	Link(t, perf, opts, nil)

	perf.Advance(10)
	assert.Equal(t, []int{4, 4, 2}, sizes)
	assert.Equal(t, []float32{0, 0, 0, 1, 2, 3, 4, 5, 6, 7}, out)
	assert.Zero(t, perf.XRuns())
}

func testWholeQuantum(t *testing.T, f dspruntime.PerformerFactory) {
	const frames = 4 * dspruntime.DefaultMaxBlockSize
	perf := Load(t, f, Delayed(3))
	var out []float32
	var sizes []int
	src := Source(Ramp(frames + 100))
	require.NoError(t, perf.Bindings().BindStreamSource("in", func(dst []float32) int {
		sizes = append(sizes, len(dst))
		return src(dst)
	}))
	require.NoError(t, perf.Bindings().BindStreamSink("out", Collect(&out)))
	Link(t, perf, dspruntime.DefaultLinkOptions(), nil)

	perf.Advance(frames)
	perf.Advance(100)
	assert.Equal(t, []int{frames, 100}, sizes, "one callback per advance")
	require.Len(t, out, frames+100)
	assert.Equal(t, []float32{0, 0, 0, 1, 2}, out[:5])
	for i := 3; i < len(out); i++ {
		if out[i] != float32(i-2) {
			t.Fatalf("frame %d: got %v, want %v", i, out[i], float32(i-2))
		}
	}
	assert.Zero(t, perf.XRuns())
}

func render(t *testing.T, f dspruntime.PerformerFactory, p *program.Program, opts dspruntime.LinkOptions, cache dspruntime.LinkerCache, frames int) []float32 {
	t.Helper()
	perf := Load(t, f, p)
	var out []float32
	if len(perf.InputEndpoints()) > 0 {
		require.NoError(t, perf.Bindings().BindStreamSource("in", Source(Ramp(frames))))
	}
	require.NoError(t, perf.Bindings().BindStreamSink("out", Collect(&out)))
	Link(t, perf, opts, cache)
	perf.Advance(uint32(frames))
	return out
}

func testCacheHit(t *testing.T, f dspruntime.PerformerFactory) {
	cache := NewMapCache()
	opts := dspruntime.DefaultLinkOptions()

	miss := render(t, f, Delayed(2), opts, cache, 16)
	require.Equal(t, 1, cache.Puts)

	hit := render(t, f, Delayed(2), opts, cache, 16)
	assert.Equal(t, 1, cache.Puts, "a hit does not store again")
	assert.Equal(t, 2, cache.Gets)
	assert.Equal(t, miss, hit)
	assert.Equal(t, []float32{0, 0, 1, 2}, hit[:4])
}

func testCorruptCache(t *testing.T, f dspruntime.PerformerFactory) {
	cache := NewMapCache()
	opts := dspruntime.DefaultLinkOptions()
	p := Delayed(2)
	key := dspruntime.NewCacheKey(p.ID(), f.Backend(), opts)
	cache.Put(key, []byte("garbage"))

	perf := Load(t, f, p)
	var msgs diag.List
	require.True(t, perf.Link(&msgs, opts, cache), msgs.String())
	assert.False(t, msgs.HasErrors())
	assert.Equal(t, 1, msgs.Count(diag.Info))
	assert.Contains(t, msgs.String(), "ignoring cached linkage artifact")
	assert.NotEqual(t, []byte("garbage"), cache.Entry(key), "entry is replaced")

	again := render(t, f, p, opts, cache, 8)
	assert.Equal(t, []float32{0, 0, 1, 2, 3, 4, 5, 6}, again)
}

// testForeignCache stores a valid artifact of a program with far more
// state under the key of a smaller one. The entry must be ignored before
// any kernel is built from it.
func testForeignCache(t *testing.T, f dspruntime.PerformerFactory) {
	cache := NewMapCache()
	opts := dspruntime.DefaultLinkOptions()
	big, small := Delayed(50000), Delayed(2)
	render(t, f, big, opts, cache, 4)
	foreign := cache.Entry(dspruntime.NewCacheKey(big.ID(), f.Backend(), opts))
	require.NotNil(t, foreign)
	key := dspruntime.NewCacheKey(small.ID(), f.Backend(), opts)
	cache.Put(key, foreign)

	perf := Load(t, f, small)
	var out []float32
	require.NoError(t, perf.Bindings().BindStreamSource("in", Source(Ramp(6))))
	require.NoError(t, perf.Bindings().BindStreamSink("out", Collect(&out)))
	var msgs diag.List
	require.True(t, perf.Link(&msgs, opts, cache), msgs.String())
	assert.False(t, msgs.HasErrors())
	assert.Contains(t, msgs.String(), "does not match program shape")
	assert.NotEqual(t, foreign, cache.Entry(key), "entry is replaced")

	perf.Advance(6)
	assert.Equal(t, []float32{0, 0, 1, 2, 3, 4}, out)
}

func testSealed(t *testing.T, f dspruntime.PerformerFactory) {
	perf := Load(t, f, PassThrough())
	Link(t, perf, dspruntime.DefaultLinkOptions(), nil)
	assert.True(t, perf.Bindings().Sealed())
	assert.ErrorIs(t, perf.Bindings().BindStreamSource("in", Source(nil)), endpoint.ErrSealed)

	perf.Unload()
	assert.False(t, perf.Bindings().Sealed())
}

func testBindingErrors(t *testing.T, f dspruntime.PerformerFactory) {
	perf := Load(t, f, PassThrough())
	require.NoError(t, perf.Bindings().BindStreamSource("nope", Source(nil)))
	require.NoError(t, perf.Bindings().BindStreamSource("in", Source(nil)))
	require.NoError(t, perf.Bindings().BindStreamSource("in", Source(nil)))

	var msgs diag.List
	assert.False(t, perf.Link(&msgs, dspruntime.DefaultLinkOptions(), nil))
	assert.False(t, perf.IsLinked())
	assert.True(t, perf.IsLoaded())
	assert.Equal(t, 2, msgs.Count(diag.Error))
	assert.Contains(t, msgs.String(), `input endpoint "nope" not found`)
	assert.Contains(t, msgs.String(), `endpoint "in": bound more than once`)
}

func testStateLimit(t *testing.T, f dspruntime.PerformerFactory) {
	cache := NewMapCache()
	perf := Load(t, f, Delayed(100))
	opts := dspruntime.DefaultLinkOptions()
	Link(t, perf, opts, cache)

	for _, c := range []dspruntime.LinkerCache{nil, cache} {
		opts.MaxStateSize = 64
		var msgs diag.List
		assert.False(t, perf.Link(&msgs, opts, c))
		assert.Contains(t, msgs.String(), "state size in bytes")
		assert.Equal(t, dspruntime.Loaded, perf.State())
	}
}

func testEvents(t *testing.T, f dspruntime.PerformerFactory) {
	p := program.NewBuilder("gate").
		Input(program.Events("gate", endpoint.Float32, 0.5)).
		Output(program.Stream("level").From("g")).
		Output(program.Events("trig", endpoint.Float32, 0).From("g")).
		Node(program.Input("g", "gate")).
		Build()
	perf := Load(t, f, p)

	pending := []endpoint.Event{{Frame: 3, Value: 2}, {Frame: 1, Value: 1}, {Frame: 7, Value: 5}}
	var level []float32
	var trig [][]endpoint.Event
	tbl := perf.Bindings()
	require.NoError(t, tbl.BindEventSource("gate", func(dst []endpoint.Event) int {
		n := copy(dst, pending)
		pending = nil
		return n
	}))
	require.NoError(t, tbl.BindStreamSink("level", Collect(&level)))
	require.NoError(t, tbl.BindEventSink("trig", func(src []endpoint.Event) int {
		trig = append(trig, append([]endpoint.Event(nil), src...))
		return len(src)
	}))
	Link(t, perf, dspruntime.DefaultLinkOptions(), nil)

	perf.Advance(4)
	assert.Equal(t, []float32{0.5, 1, 1, 5}, level)
	require.Len(t, trig, 1)
	assert.Equal(t, []endpoint.Event{{Frame: 0, Value: 0.5}, {Frame: 1, Value: 1}, {Frame: 3, Value: 5}}, trig[0])

	perf.Advance(4)
	assert.Equal(t, []float32{5, 5, 5, 5}, level[4:])
	assert.Len(t, trig, 1)
}

func testValues(t *testing.T, f dspruntime.PerformerFactory) {
	p := program.NewBuilder("scale").
		Input(program.Value("a", endpoint.Int32, 2.7)).
		Input(program.Value("b", endpoint.Bool, 0)).
		Output(program.Value("sum", endpoint.Float32, 0).From("s")).
		Node(program.Input("a", "a"), program.Input("b", "b"), program.Add("s", "a", "b")).
		Build()
	perf := Load(t, f, p)

	var got []float32
	require.NoError(t, perf.Bindings().BindValueSource("b", func() float32 { return 0.25 }))
	require.NoError(t, perf.Bindings().BindValueSink("sum", func(v float32) { got = append(got, v) }))
	Link(t, perf, dspruntime.DefaultLinkOptions(), nil)

	perf.Advance(8)
	perf.Advance(8)
	assert.Equal(t, []float32{3, 3}, got)
}

func testOptLevels(t *testing.T, f dspruntime.PerformerFactory) {
	p := program.NewBuilder("mix").
		Input(program.Stream("in")).
		Output(program.Stream("out").From("y")).
		Node(
			program.Input("x", "in"),
			program.Const("half", 0.5),
			program.Const("two", 2),
			program.Mul("k", "half", "two"),
			program.Gain("g", "x", 1),
			program.Delay("d", "y", 1),
			program.Gain("fb", "d", 0.5),
			program.Mul("m", "g", "k"),
			program.Add("y", "m", "fb"),
		).
		Build()

	var want []float32
	for _, level := range []dspruntime.OptLevel{dspruntime.OptNone, dspruntime.OptDefault, dspruntime.OptFull} {
		opts := dspruntime.DefaultLinkOptions()
		opts.OptLevel = level
		got := render(t, f, p, opts, nil, 32)
		if want == nil {
			want = got
			continue
		}
		assert.Equal(t, want, got, "opt level %s", level)
	}
	assert.Equal(t, []float32{1, 2.5, 4.25}, want[:3])
}
