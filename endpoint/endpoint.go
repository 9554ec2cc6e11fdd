// Package endpoint describes the typed ports through which a running program
// exchanges data with its host, and the binding table a host fills in with
// callbacks before a performer is linked.
//
// # Data kinds
//
//	Stream - one float32 element per frame, delivered as a block per render quantum
//	Events - zero or more timestamped values per render quantum
//	Value  - a single scalar per render quantum (parameters)
//
// # Callback contract
//
// Callbacks run synchronously on the thread calling Performer.Advance. They
// must not block, and the slices passed to them are only valid for the
// duration of the call. A stream source that fills fewer frames than asked,
// or a sink that accepts fewer than offered, is an xrun: the performer pads
// with silence or drops the excess and counts it.
package endpoint

import (
	"fmt"
	"strconv"

	"github.com/wippyai/dsp-runtime/errors"
)

// Direction of data flow, seen from the program.
type Direction uint8

const (
	Input Direction = iota
	Output
)

func (d Direction) String() string {
	switch d {
	case Input:
		return "input"
	case Output:
		return "output"
	default:
		return "direction(" + strconv.Itoa(int(d)) + ")"
	}
}

// Kind is the data kind carried by an endpoint.
type Kind uint8

const (
	Stream Kind = iota
	Events
	Value
)

func (k Kind) String() string {
	switch k {
	case Stream:
		return "stream"
	case Events:
		return "event"
	case Value:
		return "value"
	default:
		return "kind(" + strconv.Itoa(int(k)) + ")"
	}
}

// Valid reports whether k is a known kind.
func (k Kind) Valid() bool {
	return k <= Value
}

// ParseKind parses the textual form used in program documents.
func ParseKind(s string) (Kind, error) {
	switch s {
	case "stream", "":
		return Stream, nil
	case "event":
		return Events, nil
	case "value":
		return Value, nil
	}
	return 0, errors.InvalidInput(errors.PhaseDecode, fmt.Sprintf("unknown endpoint kind %q", s))
}

// ElementType is the element type declared for an endpoint.
// Every element type travels as float32 through the callbacks; Bool is 0 or 1.
type ElementType uint8

const (
	Float32 ElementType = iota
	Int32
	Bool
)

func (t ElementType) String() string {
	switch t {
	case Float32:
		return "float32"
	case Int32:
		return "int32"
	case Bool:
		return "bool"
	default:
		return "type(" + strconv.Itoa(int(t)) + ")"
	}
}

// Valid reports whether t is a known element type.
func (t ElementType) Valid() bool {
	return t <= Bool
}

// ParseElementType parses the textual form used in program documents.
func ParseElementType(s string) (ElementType, error) {
	switch s {
	case "float32", "float", "":
		return Float32, nil
	case "int32", "int":
		return Int32, nil
	case "bool":
		return Bool, nil
	}
	return 0, errors.InvalidInput(errors.PhaseDecode, fmt.Sprintf("unknown element type %q", s))
}

// Endpoint is the metadata of one port of a loaded program.
type Endpoint struct {
	Name      string
	Default   float32
	Direction Direction
	Kind      Kind
	Type      ElementType
}

// String renders "name input stream<float32>".
func (e Endpoint) String() string {
	return e.Name + " " + e.Direction.String() + " " + e.Kind.String() + "<" + e.Type.String() + ">"
}

// Event is one discrete value delivered within a render quantum.
// Frame is relative to the start of the quantum.
type Event struct {
	Frame uint32
	Value float32
}

// StreamSource fills dst and returns the number of frames written.
type StreamSource func(dst []float32) int

// StreamSink consumes src and returns the number of frames accepted.
type StreamSink func(src []float32) int

// EventSource writes up to len(dst) events and returns how many it wrote.
type EventSource func(dst []Event) int

// EventSink consumes events in frame order and returns how many it accepted.
type EventSink func(src []Event) int

// ValueSource returns the value for the next render quantum.
type ValueSource func() float32

// ValueSink receives the value at the end of a render quantum.
type ValueSink func(v float32)
