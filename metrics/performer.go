package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	dspruntime "github.com/wippyai/dsp-runtime"
	"github.com/wippyai/dsp-runtime/diag"
	"github.com/wippyai/dsp-runtime/program"
)

// Instrument returns a factory whose performers report to m.
func (m *Metrics) Instrument(f dspruntime.PerformerFactory) dspruntime.PerformerFactory {
	return &factory{inner: f, m: m}
}

type factory struct {
	inner dspruntime.PerformerFactory
	m     *Metrics
}

func (f *factory) Backend() string {
	return f.inner.Backend()
}

func (f *factory) CreatePerformer() dspruntime.Performer {
	backend := f.inner.Backend()
	return &performer{
		Performer: f.inner.CreatePerformer(),
		m:         f.m,
		backend:   backend,
		frames:    f.m.frames.WithLabelValues(backend),
		xruns:     f.m.xruns.WithLabelValues(backend),
		linked:    f.m.linked.WithLabelValues(backend),
	}
}

// performer forwards to the wrapped performer and records what it did.
// Endpoint, binding and state queries pass through unchanged.
type performer struct {
	dspruntime.Performer
	m       *Metrics
	backend string

	frames prometheus.Counter
	xruns  prometheus.Counter
	linked prometheus.Gauge

	seenXRuns uint32
	isLinked  bool
}

func (p *performer) Load(messages *diag.List, prog *program.Program) bool {
	before := messages.Len()
	ok := p.Performer.Load(messages, prog)
	p.seenXRuns = 0
	p.syncLinked()
	p.m.loads.WithLabelValues(p.backend, result(ok)).Inc()
	p.countMessages(messages, before)
	return ok
}

func (p *performer) Unload() {
	p.Performer.Unload()
	p.syncLinked()
}

func (p *performer) Link(messages *diag.List, opts dspruntime.LinkOptions, cache dspruntime.LinkerCache) bool {
	before := messages.Len()
	start := time.Now()
	ok := p.Performer.Link(messages, opts, cache)
	p.m.linkDuration.WithLabelValues(p.backend).Observe(time.Since(start).Seconds())
	p.m.links.WithLabelValues(p.backend, result(ok)).Inc()
	p.countMessages(messages, before)
	p.seenXRuns = 0
	p.syncLinked()
	return ok
}

func (p *performer) Advance(frames uint32) {
	p.Performer.Advance(frames)
	if !p.isLinked {
		return
	}
	p.frames.Add(float64(frames))
	if x := p.Performer.XRuns(); x > p.seenXRuns {
		p.xruns.Add(float64(x - p.seenXRuns))
		p.seenXRuns = x
	}
}

func (p *performer) syncLinked() {
	now := p.Performer.IsLinked()
	switch {
	case now && !p.isLinked:
		p.linked.Inc()
	case !now && p.isLinked:
		p.linked.Dec()
	}
	p.isLinked = now
}

func (p *performer) countMessages(messages *diag.List, from int) {
	msgs := messages.Messages()
	for _, msg := range msgs[min(from, len(msgs)):] {
		p.m.diagnostics.WithLabelValues(p.backend, msg.Severity.String()).Inc()
	}
}
