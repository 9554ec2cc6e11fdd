package program

import (
	"github.com/wippyai/dsp-runtime/diag"
	"github.com/wippyai/dsp-runtime/endpoint"
)

// EndpointDecl declares an endpoint of a program.
type EndpointDecl struct {
	Location diag.Location
	Name     string
	// Source is the id of the node feeding an output endpoint.
	Source  string
	Default float32
	Kind    endpoint.Kind
	Type    endpoint.ElementType
}

// From returns a copy of d fed by the node with the given id.
func (d EndpointDecl) From(source string) EndpointDecl {
	d.Source = source
	return d
}

// At returns a copy of d with a source location.
func (d EndpointDecl) At(loc diag.Location) EndpointDecl {
	d.Location = loc
	return d
}

// Endpoint returns the metadata of d seen in the given direction.
func (d EndpointDecl) Endpoint(dir endpoint.Direction) endpoint.Endpoint {
	return endpoint.Endpoint{
		Name:      d.Name,
		Direction: dir,
		Kind:      d.Kind,
		Type:      d.Type,
		Default:   d.Default,
	}
}

// Stream declares a float32 stream endpoint.
func Stream(name string) EndpointDecl {
	return EndpointDecl{Name: name, Kind: endpoint.Stream, Type: endpoint.Float32}
}

// Events declares an event endpoint.
func Events(name string, typ endpoint.ElementType, def float32) EndpointDecl {
	return EndpointDecl{Name: name, Kind: endpoint.Events, Type: typ, Default: def}
}

// Value declares a scalar value endpoint.
func Value(name string, typ endpoint.ElementType, def float32) EndpointDecl {
	return EndpointDecl{Name: name, Kind: endpoint.Value, Type: typ, Default: def}
}

// Node is one operation of the graph.
type Node struct {
	Location diag.Location
	ID       string
	// Endpoint names the input endpoint read by an OpInput node.
	Endpoint string
	Args     []string
	Value    float32
	// Length is the delay in frames of an OpDelay node.
	Length uint32
	Op     Op
}

// At returns a copy of n with a source location.
func (n Node) At(loc diag.Location) Node {
	n.Location = loc
	return n
}

func (n Node) clone() Node {
	if n.Args != nil {
		n.Args = append([]string(nil), n.Args...)
	}
	return n
}

// Input reads the input endpoint named endpointName.
func Input(id, endpointName string) Node {
	return Node{ID: id, Op: OpInput, Endpoint: endpointName}
}

// Const produces v on every frame.
func Const(id string, v float32) Node {
	return Node{ID: id, Op: OpConst, Value: v}
}

// Gain multiplies arg by k.
func Gain(id, arg string, k float32) Node {
	return Node{ID: id, Op: OpGain, Args: []string{arg}, Value: k}
}

// Add sums a and b.
func Add(id, a, b string) Node {
	return Node{ID: id, Op: OpAdd, Args: []string{a, b}}
}

// Sub subtracts b from a.
func Sub(id, a, b string) Node {
	return Node{ID: id, Op: OpSub, Args: []string{a, b}}
}

// Mul multiplies a and b.
func Mul(id, a, b string) Node {
	return Node{ID: id, Op: OpMul, Args: []string{a, b}}
}

// Delay delays arg by frames.
func Delay(id, arg string, frames uint32) Node {
	return Node{ID: id, Op: OpDelay, Args: []string{arg}, Length: frames}
}

// Accum produces the running sum of arg.
func Accum(id, arg string) Node {
	return Node{ID: id, Op: OpAccum, Args: []string{arg}}
}

// Builder assembles a Program. It stands in for the compiler front end and
// records whatever it is given; Load decides whether the result is valid.
//
//	p := program.NewBuilder("passthrough").
//		Input(program.Stream("in")).
//		Output(program.Stream("out").From("x")).
//		Node(program.Input("x", "in")).
//		Build()
type Builder struct {
	name    string
	inputs  []EndpointDecl
	outputs []EndpointDecl
	nodes   []Node
}

func NewBuilder(name string) *Builder {
	return &Builder{name: name}
}

// Input declares an input endpoint.
func (b *Builder) Input(d EndpointDecl) *Builder {
	b.inputs = append(b.inputs, d)
	return b
}

// Output declares an output endpoint.
func (b *Builder) Output(d EndpointDecl) *Builder {
	b.outputs = append(b.outputs, d)
	return b
}

// Node appends nodes.
func (b *Builder) Node(nodes ...Node) *Builder {
	for _, n := range nodes {
		b.nodes = append(b.nodes, n.clone())
	}
	return b
}

// Build freezes the program. The builder may keep being used; later changes
// do not affect programs already built.
func (b *Builder) Build() *Program {
	p := &Program{
		name:    b.name,
		inputs:  append([]EndpointDecl(nil), b.inputs...),
		outputs: append([]EndpointDecl(nil), b.outputs...),
		nodes:   make([]Node, len(b.nodes)),
	}
	for i, n := range b.nodes {
		p.nodes[i] = n.clone()
	}
	p.id = identity(p)
	return p
}
