package metrics

import (
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dspruntime "github.com/wippyai/dsp-runtime"
	"github.com/wippyai/dsp-runtime/diag"
	"github.com/wippyai/dsp-runtime/internal/performtest"
	"github.com/wippyai/dsp-runtime/interp"
	"github.com/wippyai/dsp-runtime/linkcache"
	"github.com/wippyai/dsp-runtime/program"
)

func testConfig() *Config {
	return &Config{Namespace: "test", Subsystem: "perf"}
}

func TestInstrumentedPerformer(t *testing.T) {
	m := New(testConfig(), prometheus.NewRegistry())
	f := m.Instrument(interp.NewFactory())
	assert.Equal(t, interp.BackendName, f.Backend())

	perf := performtest.Load(t, f, performtest.PassThrough())
	require.NoError(t, perf.Bindings().BindStreamSource("in", performtest.Source(nil)))
	performtest.Link(t, perf, dspruntime.DefaultLinkOptions(), nil)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.loads.WithLabelValues("interp", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.links.WithLabelValues("interp", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.linked.WithLabelValues("interp")))

	perf.Advance(64)
	perf.Advance(64)
	assert.Equal(t, 128.0, testutil.ToFloat64(m.frames.WithLabelValues("interp")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.xruns.WithLabelValues("interp")))

	perf.Unload()
	assert.Equal(t, 0.0, testutil.ToFloat64(m.linked.WithLabelValues("interp")))

	perf.Advance(64)
	assert.Equal(t, 128.0, testutil.ToFloat64(m.frames.WithLabelValues("interp")), "unloaded performers render nothing")
}

func TestFailuresAndDiagnostics(t *testing.T) {
	m := New(testConfig(), nil)
	perf := m.Instrument(interp.NewFactory()).CreatePerformer()

	bad := program.NewBuilder("bad").Output(program.Stream("out").From("nope")).Build()
	var msgs diag.List
	assert.False(t, perf.Load(&msgs, bad))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.loads.WithLabelValues("interp", "error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.diagnostics.WithLabelValues("interp", "error")))

	assert.False(t, perf.Link(&msgs, dspruntime.DefaultLinkOptions(), nil))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.links.WithLabelValues("interp", "error")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.diagnostics.WithLabelValues("interp", "error")))
	assert.Equal(t, 1, testutil.CollectAndCount(m.linkDuration))
}

func TestCacheCollector(t *testing.T) {
	cache := linkcache.NewMemory(nil)
	m := New(testConfig(), nil)
	m.RegisterCache("shared", cache)

	f := interp.NewFactory()
	for range 2 {
		perf := performtest.Load(t, f, performtest.Counter())
		performtest.Link(t, perf, dspruntime.DefaultLinkOptions(), cache)
	}

	expected := `
# HELP test_linkcache_hits_total Linker cache hits
# TYPE test_linkcache_hits_total counter
test_linkcache_hits_total{cache="shared"} 1
# HELP test_linkcache_misses_total Linker cache misses
# TYPE test_linkcache_misses_total counter
test_linkcache_misses_total{cache="shared"} 1
# HELP test_linkcache_entries Artifacts currently cached
# TYPE test_linkcache_entries gauge
test_linkcache_entries{cache="shared"} 1
`
	err := testutil.GatherAndCompare(m.Registry(), strings.NewReader(expected),
		"test_linkcache_hits_total", "test_linkcache_misses_total", "test_linkcache_entries")
	assert.NoError(t, err)
}

func TestDefaultConfig(t *testing.T) {
	m := New(nil, nil)
	assert.NotNil(t, m.Registry())
	assert.Equal(t, "dsp", m.config.Namespace)
}
