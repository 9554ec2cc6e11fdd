// Package graph checks a program's node graph when it is loaded and lowers
// it to a linear per-frame schedule when it is linked.
package graph

import (
	"fmt"

	"github.com/wippyai/dsp-runtime/diag"
	"github.com/wippyai/dsp-runtime/endpoint"
	"github.com/wippyai/dsp-runtime/errors"
	"github.com/wippyai/dsp-runtime/program"
)

// MaxDelayLength bounds the length of a single delay line, in frames.
const MaxDelayLength = 1 << 20

// Graph is an analysed program: every reference resolves and every
// feedback loop passes through a delay.
type Graph struct {
	Program *program.Program
	Inputs  []program.EndpointDecl
	Outputs []program.EndpointDecl
	Nodes   []program.Node

	// Order lists node indexes so that every node follows the nodes it
	// reads in the same frame. Delay nodes read their argument from an
	// earlier frame, so that edge does not constrain the order.
	Order []int

	// Live marks nodes that contribute to at least one output.
	Live []bool

	nodeIndex  map[string]int
	inputIndex map[string]int
}

// NodeIndex returns the index of the node with the given id.
func (g *Graph) NodeIndex(id string) (int, bool) {
	i, ok := g.nodeIndex[id]
	return i, ok
}

// InputIndex returns the position of the named input endpoint.
func (g *Graph) InputIndex(name string) (int, bool) {
	i, ok := g.inputIndex[name]
	return i, ok
}

// InputEndpoints returns the input endpoint metadata in declaration order.
func (g *Graph) InputEndpoints() []endpoint.Endpoint {
	out := make([]endpoint.Endpoint, len(g.Inputs))
	for i, d := range g.Inputs {
		out[i] = d.Endpoint(endpoint.Input)
	}
	return out
}

// OutputEndpoints returns the output endpoint metadata in declaration order.
func (g *Graph) OutputEndpoints() []endpoint.Endpoint {
	out := make([]endpoint.Endpoint, len(g.Outputs))
	for i, d := range g.Outputs {
		out[i] = d.Endpoint(endpoint.Output)
	}
	return out
}

// Analyse checks p and appends what it finds to msgs in detection order.
// It returns nil when any error was reported.
func Analyse(msgs *diag.List, p *program.Program) *Graph {
	if p == nil {
		msgs.AddError(diag.Location{}, errors.InvalidInput(errors.PhaseLoad, "no program"))
		return nil
	}

	a := analyser{
		msgs: msgs,
		g: &Graph{
			Program:    p,
			Inputs:     p.Inputs(),
			Outputs:    p.Outputs(),
			Nodes:      p.Nodes(),
			nodeIndex:  make(map[string]int),
			inputIndex: make(map[string]int),
		},
	}
	a.checkEndpoints(a.g.Inputs, endpoint.Input)
	a.checkNodes()
	a.checkEndpoints(a.g.Outputs, endpoint.Output)
	if a.failed {
		return nil
	}

	a.order()
	if a.failed {
		return nil
	}
	a.liveness()
	a.unusedInputs()
	return a.g
}

type analyser struct {
	msgs   *diag.List
	g      *Graph
	failed bool
}

func (a *analyser) fail(loc diag.Location, err *errors.Error) {
	a.failed = true
	a.msgs.AddError(loc, err)
}

func (a *analyser) checkEndpoints(decls []program.EndpointDecl, dir endpoint.Direction) {
	seen := make(map[string]bool, len(decls))
	for i, d := range decls {
		if d.Name == "" {
			a.fail(d.Location, errors.InvalidInput(errors.PhaseLoad, dir.String()+" endpoint without a name"))
			continue
		}
		if seen[d.Name] {
			err := errors.Duplicate(errors.PhaseLoad, dir.String()+" endpoint", d.Name)
			a.fail(d.Location, err)
			continue
		}
		seen[d.Name] = true
		if dir == endpoint.Input {
			a.g.inputIndex[d.Name] = i
		}

		if !d.Kind.Valid() {
			a.fail(d.Location, errors.New(errors.PhaseLoad, errors.KindUnsupported).
				Endpoint(d.Name).
				Detail("unknown data kind %d", d.Kind).
				Build())
			continue
		}
		if !d.Type.Valid() {
			a.fail(d.Location, errors.New(errors.PhaseLoad, errors.KindUnsupported).
				Endpoint(d.Name).
				Detail("unknown element type %d", d.Type).
				Build())
			continue
		}
		if d.Kind == endpoint.Stream && d.Type != endpoint.Float32 {
			a.fail(d.Location, errors.TypeMismatch(errors.PhaseLoad, d.Name,
				"stream<float32>", "stream<"+d.Type.String()+">"))
			continue
		}

		if dir == endpoint.Output {
			if d.Source == "" {
				a.fail(d.Location, errors.New(errors.PhaseLoad, errors.KindInvalidInput).
					Endpoint(d.Name).
					Detail("output has no source node").
					Build())
			} else if _, ok := a.g.nodeIndex[d.Source]; !ok {
				err := errors.NotFound(errors.PhaseLoad, "source node", d.Source)
				err.Endpoint = d.Name
				a.fail(d.Location, err)
			}
		}
	}
}

func (a *analyser) checkNodes() {
	nodes := a.g.Nodes
	for i, n := range nodes {
		if n.ID == "" {
			a.fail(n.Location, errors.InvalidInput(errors.PhaseLoad, fmt.Sprintf("node #%d has no id", i)))
			continue
		}
		if _, dup := a.g.nodeIndex[n.ID]; dup {
			a.fail(n.Location, errors.Duplicate(errors.PhaseLoad, "node", n.ID))
			continue
		}
		a.g.nodeIndex[n.ID] = i
	}

	for _, n := range nodes {
		if n.ID == "" {
			continue
		}
		if !n.Op.Valid() {
			a.fail(n.Location, errors.New(errors.PhaseLoad, errors.KindUnsupported).
				Node(n.ID).
				Detail("unknown op %s", n.Op).
				Build())
			continue
		}
		if want := n.Op.Arity(); len(n.Args) != want {
			a.fail(n.Location, errors.New(errors.PhaseLoad, errors.KindInvalidInput).
				Node(n.ID).
				Detail("%s takes %d arguments, got %d", n.Op, want, len(n.Args)).
				Build())
			continue
		}
		for _, arg := range n.Args {
			if _, ok := a.g.nodeIndex[arg]; !ok {
				err := errors.NotFound(errors.PhaseLoad, "argument", arg)
				err.Node = n.ID
				a.fail(n.Location, err)
			}
		}

		switch n.Op {
		case program.OpInput:
			if _, ok := a.g.inputIndex[n.Endpoint]; !ok {
				err := errors.NotFound(errors.PhaseLoad, "input endpoint", n.Endpoint)
				err.Node = n.ID
				a.fail(n.Location, err)
			}
		case program.OpDelay:
			if n.Length == 0 {
				a.fail(n.Location, errors.New(errors.PhaseLoad, errors.KindInvalidInput).
					Node(n.ID).
					Detail("delay length must be at least 1").
					Build())
			} else if n.Length > MaxDelayLength {
				err := errors.LimitExceeded(errors.PhaseLoad, "delay length", uint64(n.Length), MaxDelayLength)
				err.Node = n.ID
				a.fail(n.Location, err)
			}
		}
	}
}

const (
	white = iota
	grey
	black
)

// order computes Order and reports feedback loops without a delay.
func (a *analyser) order() {
	nodes := a.g.Nodes
	color := make([]uint8, len(nodes))
	order := make([]int, 0, len(nodes))
	var stack []int

	var visit func(i int)
	visit = func(i int) {
		color[i] = grey
		stack = append(stack, i)
		n := nodes[i]
		if n.Op != program.OpDelay {
			for _, arg := range n.Args {
				j := a.g.nodeIndex[arg]
				switch color[j] {
				case white:
					visit(j)
				case grey:
					a.reportCycle(stack, j)
				}
			}
		}
		stack = stack[:len(stack)-1]
		color[i] = black
		order = append(order, i)
	}
	for i := range nodes {
		if color[i] == white {
			visit(i)
		}
	}
	a.g.Order = order
}

func (a *analyser) reportCycle(stack []int, start int) {
	var path []string
	for k := len(stack) - 1; k >= 0; k-- {
		if stack[k] == start {
			for _, idx := range stack[k:] {
				path = append(path, a.g.Nodes[idx].ID)
			}
			break
		}
	}
	path = append(path, a.g.Nodes[start].ID)
	err := errors.Cycle(path)
	a.fail(a.g.Nodes[start].Location, err)
}

// liveness marks nodes reachable from an output, delays included.
func (a *analyser) liveness() {
	nodes := a.g.Nodes
	live := make([]bool, len(nodes))
	var work []int
	for _, out := range a.g.Outputs {
		i := a.g.nodeIndex[out.Source]
		if !live[i] {
			live[i] = true
			work = append(work, i)
		}
	}
	for len(work) > 0 {
		i := work[len(work)-1]
		work = work[:len(work)-1]
		for _, arg := range nodes[i].Args {
			j := a.g.nodeIndex[arg]
			if !live[j] {
				live[j] = true
				work = append(work, j)
			}
		}
	}
	a.g.Live = live

	for i, n := range nodes {
		if !live[i] {
			a.msgs.Addf(diag.Info, n.Location, "node %q does not contribute to any output", n.ID)
		}
	}
}

func (a *analyser) unusedInputs() {
	read := make([]bool, len(a.g.Inputs))
	for _, n := range a.g.Nodes {
		if n.Op == program.OpInput {
			read[a.g.inputIndex[n.Endpoint]] = true
		}
	}
	for i, d := range a.g.Inputs {
		if !read[i] {
			a.msgs.Addf(diag.Warning, d.Location, "input endpoint %q is never read", d.Name)
		}
	}
}
