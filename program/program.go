// Package program defines the immutable, compiled signal-processing graph a
// performer loads.
//
// A Program is produced once by a compiler front end (or by Builder / Decode
// in this repository) and never mutated afterwards. The same Program may be
// loaded into any number of performers concurrently.
//
// The program package performs no semantic validation: references between
// nodes, endpoint types and feedback loops are checked by a performer's Load,
// which reports problems as diagnostics.
package program

import (
	"strconv"
)

// Op is the operation performed by a node.
type Op uint8

const (
	OpInput Op = iota // reads the input endpoint named by Node.Endpoint
	OpConst           // Node.Value
	OpGain            // Args[0] * Node.Value
	OpAdd             // Args[0] + Args[1]
	OpSub             // Args[0] - Args[1]
	OpMul             // Args[0] * Args[1]
	OpDelay           // Args[0] delayed by Node.Length frames
	OpAccum           // running sum of Args[0]
	opCount
)

var opNames = [...]string{
	OpInput: "input",
	OpConst: "const",
	OpGain:  "gain",
	OpAdd:   "add",
	OpSub:   "sub",
	OpMul:   "mul",
	OpDelay: "delay",
	OpAccum: "accum",
}

func (o Op) String() string {
	if o < opCount {
		return opNames[o]
	}
	return "op(" + strconv.Itoa(int(o)) + ")"
}

// Valid reports whether o is a known operation.
func (o Op) Valid() bool {
	return o < opCount
}

// Arity returns the number of node arguments o consumes.
func (o Op) Arity() int {
	switch o {
	case OpInput, OpConst:
		return 0
	case OpGain, OpDelay, OpAccum:
		return 1
	case OpAdd, OpSub, OpMul:
		return 2
	}
	return -1
}

// ParseOp parses the textual op name used in program documents.
func ParseOp(s string) (Op, bool) {
	for i, name := range opNames {
		if name == s {
			return Op(i), true
		}
	}
	return 0, false
}

// Program is an immutable compiled signal-processing graph.
type Program struct {
	name    string
	id      string
	inputs  []EndpointDecl
	outputs []EndpointDecl
	nodes   []Node
}

// Name returns the program name given by the compiler.
func (p *Program) Name() string {
	return p.name
}

// ID returns the content identity of the program: equal content yields an
// equal ID. Source locations do not take part in it.
func (p *Program) ID() string {
	return p.id
}

// Inputs returns the declared input endpoints in declaration order.
func (p *Program) Inputs() []EndpointDecl {
	out := make([]EndpointDecl, len(p.inputs))
	copy(out, p.inputs)
	return out
}

// Outputs returns the declared output endpoints in declaration order.
func (p *Program) Outputs() []EndpointDecl {
	out := make([]EndpointDecl, len(p.outputs))
	copy(out, p.outputs)
	return out
}

// Nodes returns a deep copy of the nodes in declaration order.
func (p *Program) Nodes() []Node {
	out := make([]Node, len(p.nodes))
	for i, n := range p.nodes {
		out[i] = n.clone()
	}
	return out
}

// NumNodes returns the number of nodes.
func (p *Program) NumNodes() int {
	return len(p.nodes)
}
