// Package jit is a performer backend that compiles the lowered schedule to a
// WebAssembly module and runs it with wazero. With the compiler engine the
// schedule executes as native code, trading link time for render speed.
//
// A Factory owns one wazero runtime shared by all of its performers. Close
// the factory after the last performer has been unloaded.
package jit

import (
	"context"
	"sync"

	"github.com/tetratelabs/wazero"
	"go.uber.org/zap"

	dspruntime "github.com/wippyai/dsp-runtime"
	"github.com/wippyai/dsp-runtime/errors"
	"github.com/wippyai/dsp-runtime/internal/graph"
	"github.com/wippyai/dsp-runtime/internal/perform"
)

// Backend names. Artifacts are not shared between engines.
const (
	BackendName            = "jit"
	InterpreterBackendName = "jit-interp"
)

// Factory creates performers backed by a shared wazero runtime.
// It is safe for concurrent use.
type Factory struct {
	ctx        context.Context
	runtime    wazero.Runtime
	cache      wazero.CompilationCache
	ownsCache  bool
	name       string
	limitPages uint32

	mu     sync.Mutex
	closed bool
}

var _ dspruntime.PerformerFactory = (*Factory)(nil)

// NewFactory creates a factory. A nil cfg means DefaultConfig. ctx is used
// for every compile and call made by the factory's performers.
func NewFactory(ctx context.Context, cfg *Config) (*Factory, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if ctx == nil {
		ctx = context.Background()
	}

	var runtimeCfg wazero.RuntimeConfig
	name := BackendName
	switch cfg.Mode {
	case ModeAuto:
		runtimeCfg = wazero.NewRuntimeConfig()
	case ModeCompiler:
		runtimeCfg = wazero.NewRuntimeConfigCompiler()
	case ModeInterpreter:
		runtimeCfg = wazero.NewRuntimeConfigInterpreter()
		name = InterpreterBackendName
	default:
		return nil, errors.New(errors.PhaseLink, errors.KindInvalidInput).
			Value(cfg.Mode).
			Detail("unknown jit mode %d", cfg.Mode).
			Build()
	}

	f := &Factory{
		ctx:        ctx,
		cache:      cfg.CompilationCache,
		name:       name,
		limitPages: cfg.memoryLimit(),
	}
	if f.cache == nil {
		f.cache = wazero.NewCompilationCache()
		f.ownsCache = true
	}
	runtimeCfg = runtimeCfg.
		WithCompilationCache(f.cache).
		WithMemoryLimitPages(f.limitPages).
		WithCloseOnContextDone(false)
	f.runtime = wazero.NewRuntimeWithConfig(ctx, runtimeCfg)

	dspruntime.Logger().Debug("jit factory created",
		zap.String("backend", name),
		zap.Stringer("mode", cfg.Mode),
		zap.Uint32("memory_limit_pages", f.limitPages),
	)
	return f, nil
}

func (f *Factory) Backend() string {
	return f.name
}

func (f *Factory) CreatePerformer() dspruntime.Performer {
	return perform.New(&backend{f: f})
}

// Close releases the runtime and closes every kernel still alive. Performers
// created by f must not be used afterwards.
func (f *Factory) Close(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return nil
	}
	f.closed = true

	err := f.runtime.Close(ctx)
	if f.ownsCache {
		if cerr := f.cache.Close(ctx); err == nil {
			err = cerr
		}
	}
	return err
}

func (f *Factory) isClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

type backend struct {
	f *Factory
}

func (b *backend) Name() string {
	return b.f.name
}

func (b *backend) Compile(s *graph.Schedule, opts dspruntime.LinkOptions) ([]byte, error) {
	l := newLayout(s, opts.BlockSize())
	if err := l.checkMemory(b.f.limitPages); err != nil {
		return nil, err
	}
	return encodePayload(l, generate(s, l)), nil
}

func (b *backend) Instantiate(payload []byte, opts dspruntime.LinkOptions, want graph.Shape) (perform.Kernel, error) {
	if b.f.isClosed() {
		return nil, errors.InvalidState(errors.PhaseLink, "jit factory is closed")
	}
	l, module, err := decodePayload(payload, opts.BlockSize())
	if err != nil {
		return nil, err
	}
	if err := perform.CheckShape(l.shape(), want); err != nil {
		return nil, err
	}
	if err := l.checkMemory(b.f.limitPages); err != nil {
		return nil, err
	}

	ctx := b.f.ctx
	compiled, err := b.f.runtime.CompileModule(ctx, module)
	if err != nil {
		return nil, errors.Wrap(errors.PhaseLink, errors.KindInvalidData, err, "compile kernel module")
	}
	// anonymous for parallel instantiation
	mod, err := b.f.runtime.InstantiateModule(ctx, compiled, wazero.NewModuleConfig().WithName(""))
	if err != nil {
		_ = compiled.Close(ctx)
		return nil, errors.Instantiation(err)
	}
	k, err := newKernel(ctx, compiled, mod, l)
	if err != nil {
		_ = mod.Close(ctx)
		_ = compiled.Close(ctx)
		return nil, err
	}
	return k, nil
}
