package endpoint

import (
	"github.com/wippyai/dsp-runtime/errors"
)

// ErrSealed is returned when a callback is bound after the performer that
// owns the table has been linked. Unload, Load or a new Link reopen it.
var ErrSealed = &errors.Error{
	Phase:  errors.PhaseBind,
	Kind:   errors.KindInvalidState,
	Detail: "binding table is sealed by a successful link",
}

// ErrNilCallback is returned when a binding carries no callback.
var ErrNilCallback = &errors.Error{
	Phase:  errors.PhaseBind,
	Kind:   errors.KindInvalidInput,
	Detail: "nil callback",
}

// Binding attaches one host callback to a named endpoint.
// Exactly one callback field matching Direction and Kind is set.
type Binding struct {
	StreamSource StreamSource
	StreamSink   StreamSink
	EventSource  EventSource
	EventSink    EventSink
	ValueSource  ValueSource
	ValueSink    ValueSink
	Name         string
	Direction    Direction
	Kind         Kind
}

func (b *Binding) hasCallback() bool {
	switch b.Direction {
	case Input:
		switch b.Kind {
		case Stream:
			return b.StreamSource != nil
		case Events:
			return b.EventSource != nil
		case Value:
			return b.ValueSource != nil
		}
	case Output:
		switch b.Kind {
		case Stream:
			return b.StreamSink != nil
		case Events:
			return b.EventSink != nil
		case Value:
			return b.ValueSink != nil
		}
	}
	return false
}

// Table is the binding table of a performer, keyed by endpoint name.
// Entries are recorded in order and validated when the performer links:
// unknown names, duplicates and kind or direction mismatches fail the link.
// Not safe for concurrent use.
type Table struct {
	bindings []Binding
	sealed   bool
}

// NewTable creates an empty, open binding table.
func NewTable() *Table {
	return &Table{}
}

// Bind records b.
func (t *Table) Bind(b Binding) error {
	if t.sealed {
		return ErrSealed
	}
	if !b.hasCallback() {
		return ErrNilCallback
	}
	t.bindings = append(t.bindings, b)
	return nil
}

// BindStreamSource binds fn as the supplier of the named stream input.
func (t *Table) BindStreamSource(name string, fn StreamSource) error {
	return t.Bind(Binding{Name: name, Direction: Input, Kind: Stream, StreamSource: fn})
}

// BindStreamSink binds fn as the receiver of the named stream output.
func (t *Table) BindStreamSink(name string, fn StreamSink) error {
	return t.Bind(Binding{Name: name, Direction: Output, Kind: Stream, StreamSink: fn})
}

// BindEventSource binds fn as the supplier of the named event input.
func (t *Table) BindEventSource(name string, fn EventSource) error {
	return t.Bind(Binding{Name: name, Direction: Input, Kind: Events, EventSource: fn})
}

// BindEventSink binds fn as the receiver of the named event output.
func (t *Table) BindEventSink(name string, fn EventSink) error {
	return t.Bind(Binding{Name: name, Direction: Output, Kind: Events, EventSink: fn})
}

// BindValueSource binds fn as the supplier of the named value input.
func (t *Table) BindValueSource(name string, fn ValueSource) error {
	return t.Bind(Binding{Name: name, Direction: Input, Kind: Value, ValueSource: fn})
}

// BindValueSink binds fn as the receiver of the named value output.
func (t *Table) BindValueSink(name string, fn ValueSink) error {
	return t.Bind(Binding{Name: name, Direction: Output, Kind: Value, ValueSink: fn})
}

// Bindings returns a copy of the recorded bindings in insertion order.
func (t *Table) Bindings() []Binding {
	out := make([]Binding, len(t.bindings))
	copy(out, t.bindings)
	return out
}

func (t *Table) Len() int {
	return len(t.bindings)
}

// Sealed reports whether the table rejects new bindings.
func (t *Table) Sealed() bool {
	return t.sealed
}

// Seal makes the table reject further bindings. Called by performers once
// a link succeeds.
func (t *Table) Seal() {
	t.sealed = true
}

// Unseal reopens the table without dropping its bindings.
func (t *Table) Unseal() {
	t.sealed = false
}

// Clear drops every binding and reopens the table.
func (t *Table) Clear() {
	clear(t.bindings)
	t.bindings = t.bindings[:0]
	t.sealed = false
}
