package perform

import (
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	dspruntime "github.com/wippyai/dsp-runtime"
	"github.com/wippyai/dsp-runtime/diag"
	"github.com/wippyai/dsp-runtime/endpoint"
	"github.com/wippyai/dsp-runtime/errors"
	"github.com/wippyai/dsp-runtime/internal/graph"
	"github.com/wippyai/dsp-runtime/program"
)

// Performer runs programs on a Backend. It implements dspruntime.Performer.
type Performer struct {
	backend  Backend
	log      *zap.Logger
	bindings *endpoint.Table

	graph   *graph.Graph
	inputs  []endpoint.Endpoint
	outputs []endpoint.Endpoint

	kernel Kernel
	ex     *exchange

	id    string
	state dspruntime.State
}

var _ dspruntime.Performer = (*Performer)(nil)

// New creates an Unloaded performer for b.
func New(b Backend) *Performer {
	id := uuid.NewString()
	return &Performer{
		backend:  b,
		id:       id,
		bindings: endpoint.NewTable(),
		log: dspruntime.Logger().With(
			zap.String("performer", id),
			zap.String("backend", b.Name()),
		),
	}
}

// ID returns the performer's instance id.
func (p *Performer) ID() string {
	return p.id
}

// Backend returns the backend name.
func (p *Performer) Backend() string {
	return p.backend.Name()
}

// Load analyses prog and moves to Loaded. Any current program is unloaded
// first. See dspruntime.Performer.Load.
func (p *Performer) Load(messages *diag.List, prog *program.Program) bool {
	p.Unload()

	g := graph.Analyse(messages, prog)
	if g == nil {
		p.log.Debug("load failed")
		return false
	}
	p.graph = g
	p.inputs = g.InputEndpoints()
	p.outputs = g.OutputEndpoints()
	p.state = dspruntime.Loaded
	p.log.Debug("program loaded",
		zap.String("program", prog.Name()),
		zap.String("program_id", prog.ID()),
		zap.Int("inputs", len(p.inputs)),
		zap.Int("outputs", len(p.outputs)),
	)
	return true
}

// Unload drops the program, its linkage and every binding.
func (p *Performer) Unload() {
	if p.state == dspruntime.Unloaded {
		return
	}
	p.unlink()
	p.bindings.Clear()
	p.graph = nil
	p.inputs = nil
	p.outputs = nil
	p.state = dspruntime.Unloaded
	p.log.Debug("program unloaded")
}

// unlink drops the current linkage and returns to Loaded.
func (p *Performer) unlink() {
	if p.kernel != nil {
		if err := p.kernel.Close(); err != nil {
			p.log.Warn("close kernel", zap.Error(err))
		}
	}
	p.kernel = nil
	p.ex = nil
	p.bindings.Unseal()
	if p.state == dspruntime.Linked {
		p.state = dspruntime.Loaded
	}
}

// InputEndpoints returns a copy of the loaded program's inputs.
func (p *Performer) InputEndpoints() []endpoint.Endpoint {
	if p.state == dspruntime.Unloaded {
		return []endpoint.Endpoint{}
	}
	out := make([]endpoint.Endpoint, len(p.inputs))
	copy(out, p.inputs)
	return out
}

// OutputEndpoints returns a copy of the loaded program's outputs.
func (p *Performer) OutputEndpoints() []endpoint.Endpoint {
	if p.state == dspruntime.Unloaded {
		return []endpoint.Endpoint{}
	}
	out := make([]endpoint.Endpoint, len(p.outputs))
	copy(out, p.outputs)
	return out
}

// Bindings returns the binding table checked by the next Link.
func (p *Performer) Bindings() *endpoint.Table {
	return p.bindings
}

// Link validates the bindings and builds a kernel, from cache when it can.
// See dspruntime.Performer.Link.
func (p *Performer) Link(messages *diag.List, opts dspruntime.LinkOptions, cache dspruntime.LinkerCache) bool {
	switch p.state {
	case dspruntime.Unloaded:
		messages.AddError(diag.Location{}, errors.InvalidState(errors.PhaseLink, "link called without a loaded program"))
		return false
	case dspruntime.Linked:
		p.unlink()
	}

	start := time.Now()
	if err := opts.Validate(); err != nil {
		messages.AddError(diag.Location{}, err)
		return false
	}
	if !p.checkBindings(messages) {
		p.log.Debug("link failed", zap.String("reason", "bindings"))
		return false
	}

	kernel, hit := p.linkKernel(messages, opts, cache)
	if kernel == nil {
		p.log.Debug("link failed")
		return false
	}

	p.kernel = kernel
	p.ex = newExchange(p.inputs, p.outputs, p.bindings.Bindings(), int(opts.MaxBlockSize), int(opts.BlockSize()), opts.CountXRuns)
	p.bindings.Seal()
	p.state = dspruntime.Linked
	p.log.Debug("program linked",
		zap.Bool("cache_hit", hit),
		zap.Stringer("opt", opts.OptLevel),
		zap.Uint32("block_size", opts.BlockSize()),
		zap.Uint64("state_bytes", kernel.StateBytes()),
		zap.Duration("elapsed", time.Since(start)),
	)
	return true
}

// linkKernel produces a kernel from the cache when possible and from a fresh
// compile otherwise. It returns nil when linking failed. The program is
// lowered first so the state limit and the shape of a cached payload are
// checked before any kernel is built.
func (p *Performer) linkKernel(messages *diag.List, opts dspruntime.LinkOptions, cache dspruntime.LinkerCache) (Kernel, bool) {
	sched := graph.Lower(p.graph, Passes(opts.OptLevel))
	if opts.MaxStateSize > 0 && sched.StateBytes() > uint64(opts.MaxStateSize) {
		messages.AddError(diag.Location{}, errors.LimitExceeded(errors.PhaseLink, "state size in bytes", sched.StateBytes(), uint64(opts.MaxStateSize)))
		return nil, false
	}
	want := sched.Shape()

	name := p.backend.Name()
	key := dspruntime.NewCacheKey(p.graph.Program.ID(), name, opts)
	if cache != nil {
		if data, ok := cache.Get(key); ok {
			kernel, err := p.instantiateCached(data, opts, want)
			if err == nil {
				return kernel, true
			}
			messages.Addf(diag.Info, diag.Location{}, "ignoring cached linkage artifact: %s", message(err))
			p.log.Warn("invalid cached artifact", zap.String("key", string(key)), zap.Error(err))
		} else {
			p.log.Debug("linker cache miss", zap.String("key", string(key)))
		}
	}

	payload, err := p.backend.Compile(sched, opts)
	if err != nil {
		messages.AddError(diag.Location{}, err)
		return nil, false
	}
	kernel, err := p.instantiate(payload, opts, want)
	if err != nil {
		messages.AddError(diag.Location{}, err)
		return nil, false
	}
	if cache != nil {
		cache.Put(key, EncodeArtifact(name, payload))
	}
	return kernel, false
}

func (p *Performer) instantiateCached(data []byte, opts dspruntime.LinkOptions, want graph.Shape) (Kernel, error) {
	payload, err := DecodeArtifact(data, p.backend.Name())
	if err != nil {
		return nil, err
	}
	return p.instantiate(payload, opts, want)
}

// instantiate builds a kernel and checks it matches the loaded program.
func (p *Performer) instantiate(payload []byte, opts dspruntime.LinkOptions, want graph.Shape) (Kernel, error) {
	kernel, err := p.backend.Instantiate(payload, opts, want)
	if err != nil {
		return nil, err
	}
	if kernel.Inputs() != len(p.inputs) || kernel.Outputs() != len(p.outputs) {
		_ = kernel.Close()
		return nil, errors.New(errors.PhaseLink, errors.KindInvalidData).
			Detail("kernel has %d inputs and %d outputs, program has %d and %d",
				kernel.Inputs(), kernel.Outputs(), len(p.inputs), len(p.outputs)).
			Build()
	}
	return kernel, nil
}

// IsLoaded reports whether a program is loaded.
func (p *Performer) IsLoaded() bool {
	return p.state != dspruntime.Unloaded
}

// IsLinked reports whether the performer can render.
func (p *Performer) IsLinked() bool {
	return p.state == dspruntime.Linked
}

// State returns the lifecycle state.
func (p *Performer) State() dspruntime.State {
	return p.state
}

// Reset returns a linked performer to its state right after Link. XRuns
// are kept.
func (p *Performer) Reset() {
	if p.state != dspruntime.Linked {
		return
	}
	p.kernel.Reset()
	p.ex.reset()
}

// Advance renders frames frames. It is a no-op unless linked.
func (p *Performer) Advance(frames uint32) {
	if p.state != dspruntime.Linked {
		return
	}
	p.ex.advance(p.kernel, int(frames))
}

// XRuns returns the xrun count since the last successful Link.
func (p *Performer) XRuns() uint32 {
	if p.state != dspruntime.Linked {
		return 0
	}
	return p.ex.xruns
}

func message(err error) string {
	if rerr, ok := err.(*errors.Error); ok {
		return rerr.Message()
	}
	return err.Error()
}
