package perform

import (
	"math"

	"github.com/wippyai/dsp-runtime/endpoint"
)

// exchange moves endpoint data between host callbacks and kernel frame
// buffers. Callbacks see a whole quantum at once; the kernel renders it in
// views of at most block frames.
//
// Buffers are allocated when the exchange is built. Without a hard limit
// they grow the first time a quantum exceeds their capacity; after that the
// render path only reuses them.
type exchange struct {
	inputs  []inPort
	outputs []outPort

	in      [][]float32
	out     [][]float32
	inView  [][]float32
	outView [][]float32

	capacity   int
	limit      int // largest quantum handed to callbacks, 0 for none
	block      int // largest quantum handed to the kernel
	xruns      uint32
	countXRuns bool
}

type inPort struct {
	ep     endpoint.Endpoint
	buf    []float32
	events []endpoint.Event

	stream endpoint.StreamSource
	event  endpoint.EventSource
	value  endpoint.ValueSource

	latched float32
	xrun    bool
}

type outPort struct {
	ep     endpoint.Endpoint
	buf    []float32
	events []endpoint.Event

	stream endpoint.StreamSink
	event  endpoint.EventSink
	value  endpoint.ValueSink

	last float32
	xrun bool
}

// newExchange builds the exchange for validated bindings. limit caps the
// quantum handed to callbacks (0 for no cap) and block the quantum handed
// to the kernel.
func newExchange(inputs, outputs []endpoint.Endpoint, bindings []endpoint.Binding, limit, block int, countXRuns bool) *exchange {
	x := &exchange{
		inputs:     make([]inPort, len(inputs)),
		outputs:    make([]outPort, len(outputs)),
		in:         make([][]float32, len(inputs)),
		out:        make([][]float32, len(outputs)),
		inView:     make([][]float32, len(inputs)),
		outView:    make([][]float32, len(outputs)),
		limit:      limit,
		block:      block,
		countXRuns: countXRuns,
	}
	for i, ep := range inputs {
		x.inputs[i].ep = ep
	}
	for i, ep := range outputs {
		x.outputs[i].ep = ep
	}
	x.allocate(max(limit, block))

	for _, b := range bindings {
		switch b.Direction {
		case endpoint.Input:
			for i := range x.inputs {
				if p := &x.inputs[i]; p.ep.Name == b.Name {
					p.stream, p.event, p.value = b.StreamSource, b.EventSource, b.ValueSource
				}
			}
		case endpoint.Output:
			for i := range x.outputs {
				if p := &x.outputs[i]; p.ep.Name == b.Name {
					p.stream, p.event, p.value = b.StreamSink, b.EventSink, b.ValueSink
				}
			}
		}
	}
	x.reset()
	return x
}

// reset restores the state right after link: latched event values and
// unbound inputs hold their defaults.
func (x *exchange) reset() {
	for i := range x.inputs {
		p := &x.inputs[i]
		p.latched = coerce(p.ep.Type, p.ep.Default)
		switch {
		case p.ep.Kind == endpoint.Stream:
			clear(p.buf)
		case p.unbound():
			fill(p.buf, p.latched)
		}
	}
	for i := range x.outputs {
		p := &x.outputs[i]
		p.last = coerce(p.ep.Type, p.ep.Default)
	}
}

// allocate sizes every endpoint buffer for capacity frames.
func (x *exchange) allocate(capacity int) {
	x.capacity = capacity
	for i := range x.inputs {
		p := &x.inputs[i]
		p.buf = make([]float32, capacity)
		if p.ep.Kind == endpoint.Events {
			p.events = make([]endpoint.Event, capacity)
		}
		x.in[i] = p.buf
	}
	for i := range x.outputs {
		p := &x.outputs[i]
		p.buf = make([]float32, capacity)
		if p.ep.Kind == endpoint.Events {
			p.events = make([]endpoint.Event, 0, capacity)
		}
		x.out[i] = p.buf
	}
}

// grow reallocates the buffers for a larger quantum, keeping latched values.
func (x *exchange) grow(frames int) {
	x.allocate(frames)
	for i := range x.inputs {
		if p := &x.inputs[i]; p.unbound() && p.ep.Kind != endpoint.Stream {
			fill(p.buf, p.latched)
		}
	}
}

// advance renders frames frames. Each bound endpoint's callback runs once
// per call, or once per limit frames when a limit is set. An endpoint
// contributes at most one xrun per call.
func (x *exchange) advance(k Kernel, frames int) {
	for frames > 0 {
		n := frames
		if x.limit > 0 {
			n = min(n, x.limit)
		}
		if n > x.capacity {
			x.grow(n)
		}
		x.pull(n)
		x.render(k, n)
		x.push(n)
		frames -= n
	}

	for i := range x.inputs {
		if p := &x.inputs[i]; p.xrun {
			p.xrun = false
			x.xrun()
		}
	}
	for i := range x.outputs {
		if p := &x.outputs[i]; p.xrun {
			p.xrun = false
			x.xrun()
		}
	}
}

// render runs the kernel over the first n frames of every buffer.
func (x *exchange) render(k Kernel, n int) {
	for off := 0; off < n; off += x.block {
		m := min(x.block, n-off)
		for i, buf := range x.in {
			x.inView[i] = buf[off : off+m]
		}
		for i, buf := range x.out {
			x.outView[i] = buf[off : off+m]
		}
		k.Process(x.inView, x.outView, m)
	}
}

func (x *exchange) xrun() {
	if x.countXRuns && x.xruns < math.MaxUint32 {
		x.xruns++
	}
}

func (x *exchange) pull(n int) {
	for i := range x.inputs {
		p := &x.inputs[i]
		switch {
		case p.stream != nil:
			buf := p.buf[:n]
			got := p.stream(buf)
			if got < n {
				clear(buf[max(got, 0):])
				p.xrun = true
			}
		case p.value != nil:
			fill(p.buf[:n], coerce(p.ep.Type, p.value()))
		case p.event != nil:
			p.latch(n)
		}
	}
}

func (p *inPort) unbound() bool {
	return p.stream == nil && p.event == nil && p.value == nil
}

// latch expands the events of one block into per-frame values. Events are
// applied in frame order; frames past the block end land on its last frame.
func (p *inPort) latch(n int) {
	count := p.event(p.events)
	count = max(0, min(count, len(p.events)))
	evs := p.events[:count]

	// insertion sort keeps events with equal frames in delivery order
	for i := 1; i < len(evs); i++ {
		e := evs[i]
		j := i
		for j > 0 && evs[j-1].Frame > e.Frame {
			evs[j] = evs[j-1]
			j--
		}
		evs[j] = e
	}

	v := p.latched
	next := 0
	last := uint32(n - 1)
	for f := 0; f < n; f++ {
		for next < len(evs) && (evs[next].Frame <= uint32(f) || uint32(f) == last) {
			v = coerce(p.ep.Type, evs[next].Value)
			next++
		}
		p.buf[f] = v
	}
	p.latched = v
}

func (x *exchange) push(n int) {
	for i := range x.outputs {
		p := &x.outputs[i]
		switch {
		case p.stream != nil:
			if p.stream(p.buf[:n]) < n {
				p.xrun = true
			}
		case p.value != nil:
			p.value(coerce(p.ep.Type, p.buf[n-1]))
		case p.event != nil:
			p.emit(n)
		}
	}
}

// emit turns value changes within one block into events.
func (p *outPort) emit(n int) {
	evs := p.events[:0]
	last := p.last
	for f := 0; f < n; f++ {
		v := coerce(p.ep.Type, p.buf[f])
		if math.Float32bits(v) != math.Float32bits(last) {
			evs = append(evs, endpoint.Event{Frame: uint32(f), Value: v})
			last = v
		}
	}
	p.last = last
	if len(evs) > 0 && p.event(evs) < len(evs) {
		p.xrun = true
	}
}

func fill(buf []float32, v float32) {
	for i := range buf {
		buf[i] = v
	}
}

// coerce maps a sample onto the value set of an element type.
func coerce(t endpoint.ElementType, v float32) float32 {
	switch t {
	case endpoint.Int32:
		return float32(math.Trunc(float64(v)))
	case endpoint.Bool:
		if v != 0 {
			return 1
		}
		return 0
	}
	return v
}
