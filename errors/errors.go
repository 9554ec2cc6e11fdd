package errors

import (
	"fmt"
	"strings"
)

// Phase indicates where in the performer lifecycle the error occurred
type Phase string

const (
	PhaseDecode  Phase = "decode"  // program document decoding
	PhaseLoad    Phase = "load"    // semantic analysis of a program
	PhaseBind    Phase = "bind"    // endpoint binding table
	PhaseLink    Phase = "link"    // schedule lowering and code generation
	PhaseCache   Phase = "cache"   // linker cache artifacts
	PhaseRuntime Phase = "runtime" // kernel instantiation and rendering
)

// Kind categorizes the error
type Kind string

const (
	KindInvalidData    Kind = "invalid_data"
	KindInvalidInput   Kind = "invalid_input"
	KindInvalidState   Kind = "invalid_state"
	KindUnsupported    Kind = "unsupported"
	KindNotFound       Kind = "not_found"
	KindDuplicate      Kind = "duplicate"
	KindTypeMismatch   Kind = "type_mismatch"
	KindCycle          Kind = "cycle"
	KindLimitExceeded  Kind = "limit_exceeded"
	KindChecksum       Kind = "checksum"
	KindNotInitialized Kind = "not_initialized"
	KindInstantiation  Kind = "instantiation"
)

// Error is the structured error type used across the runtime
type Error struct {
	Value    any
	Cause    error
	Phase    Phase
	Kind     Kind
	Endpoint string
	Node     string
	Detail   string
	Path     []string
}

// Error implements the error interface
func (e *Error) Error() string {
	var b strings.Builder

	b.WriteByte('[')
	b.WriteString(string(e.Phase))
	b.WriteString("] ")
	b.WriteString(string(e.Kind))

	if len(e.Path) > 0 {
		b.WriteString(" at ")
		b.WriteString(strings.Join(e.Path, " -> "))
	}

	if e.Endpoint != "" || e.Node != "" {
		b.WriteString(": ")
		if e.Endpoint != "" && e.Node != "" {
			b.WriteString("endpoint ")
			b.WriteString(e.Endpoint)
			b.WriteString(", node ")
			b.WriteString(e.Node)
		} else if e.Endpoint != "" {
			b.WriteString("endpoint ")
			b.WriteString(e.Endpoint)
		} else {
			b.WriteString("node ")
			b.WriteString(e.Node)
		}
	}

	if e.Detail != "" {
		if e.Endpoint != "" || e.Node != "" {
			b.WriteString(" - ")
		} else {
			b.WriteString(": ")
		}
		b.WriteString(e.Detail)
	}

	if e.Cause != nil {
		b.WriteString(" (caused by: ")
		b.WriteString(e.Cause.Error())
		b.WriteByte(')')
	}

	return b.String()
}

// Message returns the human-readable part of the error without the
// phase/kind prefix. Diagnostics use it as their text.
func (e *Error) Message() string {
	var b strings.Builder
	b.WriteString(e.Detail)
	if b.Len() == 0 {
		b.WriteString(strings.ReplaceAll(string(e.Kind), "_", " "))
	}
	if e.Cause != nil {
		b.WriteString(": ")
		b.WriteString(e.Cause.Error())
	}
	return b.String()
}

// Unwrap returns the underlying error
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target matches this error
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return e.Phase == t.Phase && e.Kind == t.Kind
	}
	return false
}

// Builder provides structured error construction
type Builder struct {
	err Error
}

// New creates a new error builder
func New(phase Phase, kind Kind) *Builder {
	return &Builder{
		err: Error{
			Phase: phase,
			Kind:  kind,
		},
	}
}

// Path sets the node path, used for feedback loops
func (b *Builder) Path(path ...string) *Builder {
	b.err.Path = path
	return b
}

// Endpoint sets the endpoint name
func (b *Builder) Endpoint(name string) *Builder {
	b.err.Endpoint = name
	return b
}

// Node sets the node id
func (b *Builder) Node(id string) *Builder {
	b.err.Node = id
	return b
}

// Value sets the offending value
func (b *Builder) Value(v any) *Builder {
	b.err.Value = v
	return b
}

// Cause sets the underlying error
func (b *Builder) Cause(err error) *Builder {
	b.err.Cause = err
	return b
}

// Detail sets the human-readable detail message
func (b *Builder) Detail(msg string, args ...any) *Builder {
	if len(args) > 0 {
		b.err.Detail = fmt.Sprintf(msg, args...)
	} else {
		b.err.Detail = msg
	}
	return b
}

// Build returns the constructed error
func (b *Builder) Build() *Error {
	return &b.err
}

// Convenience constructors for common error patterns

// Unsupported creates an unsupported feature error
func Unsupported(phase Phase, what string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindUnsupported,
		Detail: what,
	}
}

// NotFound creates a not-found error
func NotFound(phase Phase, what, name string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindNotFound,
		Detail: fmt.Sprintf("%s %q not found", what, name),
	}
}

// Duplicate creates a duplicate definition error
func Duplicate(phase Phase, what, name string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindDuplicate,
		Detail: fmt.Sprintf("%s %q defined more than once", what, name),
	}
}

// TypeMismatch creates a type mismatch error for an endpoint
func TypeMismatch(phase Phase, endpoint, want, got string) *Error {
	return &Error{
		Phase:    phase,
		Kind:     KindTypeMismatch,
		Endpoint: endpoint,
		Detail:   fmt.Sprintf("expected %s, got %s", want, got),
	}
}

// Cycle creates a feedback loop error for the given node path
func Cycle(path []string) *Error {
	return &Error{
		Phase:  PhaseLoad,
		Kind:   KindCycle,
		Path:   path,
		Detail: "feedback loop without a delay",
	}
}

// LimitExceeded creates a resource limit error
func LimitExceeded(phase Phase, what string, got, limit uint64) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindLimitExceeded,
		Detail: fmt.Sprintf("%s %d exceeds limit %d", what, got, limit),
		Value:  got,
	}
}

// Checksum creates an artifact checksum mismatch error
func Checksum(want, got uint64) *Error {
	return &Error{
		Phase:  PhaseCache,
		Kind:   KindChecksum,
		Detail: fmt.Sprintf("checksum %016x does not match %016x", got, want),
	}
}

// InvalidData creates an invalid data error
func InvalidData(phase Phase, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindInvalidData,
		Detail: detail,
	}
}

// InvalidInput creates an invalid input error
func InvalidInput(phase Phase, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindInvalidInput,
		Detail: detail,
	}
}

// InvalidState creates an error for a call made in the wrong lifecycle state
func InvalidState(phase Phase, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindInvalidState,
		Detail: detail,
	}
}

// NotInitialized creates a not-initialized error
func NotInitialized(phase Phase, component string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindNotInitialized,
		Detail: fmt.Sprintf("%s not initialized", component),
	}
}

// Wrap wraps an existing error with additional context
func Wrap(phase Phase, kind Kind, cause error, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   kind,
		Detail: detail,
		Cause:  cause,
	}
}

// Instantiation creates a kernel instantiation error
func Instantiation(cause error) *Error {
	return &Error{
		Phase:  PhaseRuntime,
		Kind:   KindInstantiation,
		Detail: "instantiate kernel",
		Cause:  cause,
	}
}

// Decode creates a program document decoding error
func Decode(detail string, cause error) *Error {
	return &Error{
		Phase:  PhaseDecode,
		Kind:   KindInvalidData,
		Detail: detail,
		Cause:  cause,
	}
}

// Link creates a generic link failure
func Link(detail string, cause error) *Error {
	return &Error{
		Phase:  PhaseLink,
		Kind:   KindInvalidData,
		Detail: detail,
		Cause:  cause,
	}
}
