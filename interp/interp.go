// Package interp is a performer backend that interprets the lowered schedule
// directly. It links quickly and needs nothing beyond the Go runtime, which
// makes it the default backend for hosts that reload programs often.
package interp

import (
	dspruntime "github.com/wippyai/dsp-runtime"
	"github.com/wippyai/dsp-runtime/internal/graph"
	"github.com/wippyai/dsp-runtime/internal/perform"
)

// BackendName identifies the interpreter backend and its cached artifacts.
const BackendName = "interp"

// Factory creates interpreter performers. It is stateless and safe for
// concurrent use.
type Factory struct{}

var _ dspruntime.PerformerFactory = (*Factory)(nil)

func NewFactory() *Factory {
	return &Factory{}
}

func (f *Factory) Backend() string {
	return BackendName
}

func (f *Factory) CreatePerformer() dspruntime.Performer {
	return perform.New(backend{})
}

type backend struct{}

func (backend) Name() string {
	return BackendName
}

func (backend) Compile(s *graph.Schedule, opts dspruntime.LinkOptions) ([]byte, error) {
	return encode(s, opts.BlockSize()), nil
}

func (backend) Instantiate(payload []byte, opts dspruntime.LinkOptions, want graph.Shape) (perform.Kernel, error) {
	s, err := decode(payload, opts.BlockSize())
	if err != nil {
		return nil, err
	}
	if err := perform.CheckShape(s.Shape(), want); err != nil {
		return nil, err
	}
	return newKernel(s), nil
}
