// Package diag holds the diagnostics produced while a performer loads and
// links a program.
//
// A List is owned by the caller and only ever appended to: performers never
// clear it, so a host can collect the output of several Load/Link attempts
// into a single report.
package diag

import (
	stderrors "errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/wippyai/dsp-runtime/errors"
)

// Severity of a diagnostic message.
type Severity uint8

const (
	Info Severity = iota
	Warning
	Error
)

func (s Severity) String() string {
	switch s {
	case Info:
		return "info"
	case Warning:
		return "warning"
	case Error:
		return "error"
	default:
		return "severity(" + strconv.Itoa(int(s)) + ")"
	}
}

// Location points into the source the program was compiled from.
// Zero fields are unknown.
type Location struct {
	File   string
	Line   int
	Column int
}

func (l Location) IsZero() bool {
	return l.File == "" && l.Line == 0 && l.Column == 0
}

// String renders file:line:column, leaving out unknown parts.
func (l Location) String() string {
	var b strings.Builder
	b.WriteString(l.File)
	if l.Line > 0 {
		if b.Len() > 0 {
			b.WriteByte(':')
		}
		b.WriteString(strconv.Itoa(l.Line))
		if l.Column > 0 {
			b.WriteByte(':')
			b.WriteString(strconv.Itoa(l.Column))
		}
	}
	return b.String()
}

// Message is a single diagnostic record.
type Message struct {
	Location Location
	Text     string
	Severity Severity
}

func (m Message) String() string {
	if m.Location.IsZero() {
		return m.Severity.String() + ": " + m.Text
	}
	return m.Location.String() + ": " + m.Severity.String() + ": " + m.Text
}

// List is an ordered, append-only collection of messages.
// A nil *List discards everything added to it.
type List struct {
	messages []Message
}

// Add appends m.
func (l *List) Add(m Message) {
	if l == nil {
		return
	}
	l.messages = append(l.messages, m)
}

// Addf appends a formatted message.
func (l *List) Addf(sev Severity, loc Location, format string, args ...any) {
	if l == nil {
		return
	}
	l.Add(Message{Severity: sev, Location: loc, Text: fmt.Sprintf(format, args...)})
}

// AddError appends err as an error-severity message. Structured runtime
// errors contribute their message without the phase/kind prefix.
func (l *List) AddError(loc Location, err error) {
	if l == nil || err == nil {
		return
	}
	text := err.Error()
	var rerr *errors.Error
	if stderrors.As(err, &rerr) {
		text = rerr.Message()
		if rerr.Endpoint != "" {
			text = "endpoint " + strconv.Quote(rerr.Endpoint) + ": " + text
		} else if rerr.Node != "" {
			text = "node " + strconv.Quote(rerr.Node) + ": " + text
		}
		if len(rerr.Path) > 0 {
			text += " (" + strings.Join(rerr.Path, " -> ") + ")"
		}
	}
	l.Add(Message{Severity: Error, Location: loc, Text: text})
}

// Len returns the number of messages.
func (l *List) Len() int {
	if l == nil {
		return 0
	}
	return len(l.messages)
}

// Messages returns a copy of the messages in insertion order.
func (l *List) Messages() []Message {
	if l == nil {
		return nil
	}
	out := make([]Message, len(l.messages))
	copy(out, l.messages)
	return out
}

// Count returns the number of messages with the given severity.
func (l *List) Count(sev Severity) int {
	if l == nil {
		return 0
	}
	n := 0
	for _, m := range l.messages {
		if m.Severity == sev {
			n++
		}
	}
	return n
}

// HasErrors reports whether any message has error severity.
func (l *List) HasErrors() bool {
	return l.Count(Error) > 0
}

// Errors returns the error-severity messages in insertion order.
func (l *List) Errors() []Message {
	if l == nil {
		return nil
	}
	var out []Message
	for _, m := range l.messages {
		if m.Severity == Error {
			out = append(out, m)
		}
	}
	return out
}

// Err summarises the error messages as a single error, or nil.
func (l *List) Err() error {
	errs := l.Errors()
	switch len(errs) {
	case 0:
		return nil
	case 1:
		return stderrors.New(errs[0].String())
	}
	return fmt.Errorf("%s (and %d more errors)", errs[0].String(), len(errs)-1)
}

// String renders one message per line.
func (l *List) String() string {
	if l == nil {
		return ""
	}
	var b strings.Builder
	for i, m := range l.messages {
		if i > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(m.String())
	}
	return b.String()
}
