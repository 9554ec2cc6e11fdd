// Package perform implements the performer state machine shared by every
// backend: program analysis at load, binding validation, the linkage cache
// protocol, and the allocation-free exchange of endpoint data around a
// backend kernel.
//
// A backend only has to turn a lowered schedule into a payload and a payload
// into a running Kernel.
package perform

import (
	dspruntime "github.com/wippyai/dsp-runtime"
	"github.com/wippyai/dsp-runtime/errors"
	"github.com/wippyai/dsp-runtime/internal/graph"
)

// Backend compiles schedules and instantiates kernels.
// Implementations must be safe for concurrent use.
type Backend interface {
	// Name identifies the backend and scopes its cached artifacts.
	Name() string

	// Compile turns a schedule into a payload. The payload is what the
	// linker cache stores.
	Compile(s *graph.Schedule, opts dspruntime.LinkOptions) ([]byte, error)

	// Instantiate builds a kernel from a payload produced by Compile with
	// the same options, possibly read back from a cache. want is the shape
	// of the freshly lowered schedule. Payloads that do not validate or do
	// not match want must be rejected before the kernel allocates anything.
	Instantiate(payload []byte, opts dspruntime.LinkOptions, want graph.Shape) (Kernel, error)
}

// Kernel renders frames for one linked performer. It is used by a single
// goroutine at a time.
type Kernel interface {
	// Process renders frames frames. in and out hold one buffer per input
	// and output endpoint, each at least frames long. Process must not
	// allocate.
	Process(in, out [][]float32, frames int)

	// Reset clears delay lines, accumulators and counters.
	Reset()

	// Inputs and Outputs return the endpoint counts the kernel was
	// compiled for.
	Inputs() int
	Outputs() int

	// StateBytes returns the size of the kernel's persistent state.
	StateBytes() uint64

	// Close releases the kernel's resources.
	Close() error
}

// CheckShape rejects a decoded payload whose shape differs from the one
// the loaded program lowers to.
func CheckShape(got, want graph.Shape) error {
	if got == want {
		return nil
	}
	return errors.New(errors.PhaseLink, errors.KindInvalidData).
		Detail("kernel shape %s does not match program shape %s", got, want).
		Build()
}

// Passes maps an optimisation level to lowering passes.
func Passes(level dspruntime.OptLevel) graph.Passes {
	switch level {
	case dspruntime.OptNone:
		return graph.Passes{}
	case dspruntime.OptFull:
		return graph.Passes{Fold: true, Prune: true, Identity: true}
	default:
		return graph.Passes{Fold: true, Prune: true}
	}
}
