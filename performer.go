package dspruntime

import (
	"strconv"

	"github.com/wippyai/dsp-runtime/diag"
	"github.com/wippyai/dsp-runtime/endpoint"
	"github.com/wippyai/dsp-runtime/program"
)

// State is the lifecycle state of a Performer.
type State uint8

const (
	Unloaded State = iota
	Loaded
	Linked
)

func (s State) String() string {
	switch s {
	case Unloaded:
		return "unloaded"
	case Loaded:
		return "loaded"
	case Linked:
		return "linked"
	default:
		return "state(" + strconv.Itoa(int(s)) + ")"
	}
}

// Performer executes one loaded program.
//
//	Unloaded --Load--> Loaded --Link--> Linked
//	    ^                 |                |  Reset, Advance
//	    +-----Unload------+-------Unload---+
//
// Load is accepted in any state and discards prior state first. A failed
// Load leaves the performer Unloaded; a failed Link leaves it Loaded. Link
// from Linked drops the current linkage and links again.
//
// Reset and Advance outside Linked are contract violations; they do nothing.
// Endpoint queries outside Loaded and Linked return empty slices, and XRuns
// outside Linked returns 0.
//
// Implementations are not safe for concurrent use.
type Performer interface {
	// Load analyses p and exposes its endpoints. Problems are appended to
	// messages; the result reports success.
	Load(messages *diag.List, p *program.Program) bool

	// Unload releases the program, its linkage and every binding.
	// It is idempotent.
	Unload()

	InputEndpoints() []endpoint.Endpoint
	OutputEndpoints() []endpoint.Endpoint

	// Bindings returns the binding table of the loaded program. Bindings
	// are validated by Link and rejected with endpoint.ErrSealed while the
	// performer is linked.
	Bindings() *endpoint.Table

	// Link prepares the loaded program for rendering. cache may be nil.
	// A successful link resets the xrun counter.
	Link(messages *diag.List, opts LinkOptions, cache LinkerCache) bool

	IsLoaded() bool
	IsLinked() bool
	State() State

	// Reset rewinds delay lines and accumulators to their state right after
	// Link. Bindings and the xrun counter are untouched.
	Reset()

	// Advance renders frames frames, calling every bound endpoint callback
	// once per call, or once per LinkOptions.MaxBlockSize frames when that
	// cap is set. It never blocks, and allocates only when given a larger
	// quantum than any before it with no cap set.
	Advance(frames uint32)

	// XRuns returns the number of underruns and overruns counted since the
	// last successful Link.
	XRuns() uint32
}

// PerformerFactory creates performers for one backend.
type PerformerFactory interface {
	// Backend identifies the backend. Linkage artifacts are only shared
	// between performers of the same backend.
	Backend() string

	// CreatePerformer returns a new, Unloaded performer.
	CreatePerformer() Performer
}
