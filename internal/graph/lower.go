package graph

import (
	"github.com/wippyai/dsp-runtime/program"
)

// Passes selects the optimisations applied by Lower. None of them changes
// the rendered output.
type Passes struct {
	// Fold evaluates nodes whose inputs are all constant.
	Fold bool
	// Prune drops nodes that feed no output.
	Prune bool
	// Identity aliases gains of exactly 1 to their argument.
	Identity bool
}

// Lower turns g into a schedule.
func Lower(g *Graph, passes Passes) *Schedule {
	nodes := g.Nodes
	n := len(nodes)

	folded := make([]bool, n)
	value := make([]float32, n)
	if passes.Fold {
		for _, i := range g.Order {
			nd := nodes[i]
			switch nd.Op {
			case program.OpConst:
				folded[i], value[i] = true, nd.Value
			case program.OpGain:
				if a := g.nodeIndex[nd.Args[0]]; folded[a] {
					folded[i], value[i] = true, value[a]*nd.Value
				}
			case program.OpAdd, program.OpSub, program.OpMul:
				a, b := g.nodeIndex[nd.Args[0]], g.nodeIndex[nd.Args[1]]
				if folded[a] && folded[b] {
					folded[i], value[i] = true, apply(nd.Op, value[a], value[b])
				}
			}
		}
	}

	needed := make([]bool, n)
	if passes.Prune {
		var work []int
		mark := func(i int) {
			if !needed[i] {
				needed[i] = true
				work = append(work, i)
			}
		}
		for _, out := range g.Outputs {
			mark(g.nodeIndex[out.Source])
		}
		for len(work) > 0 {
			i := work[len(work)-1]
			work = work[:len(work)-1]
			if folded[i] {
				continue
			}
			for _, arg := range nodes[i].Args {
				mark(g.nodeIndex[arg])
			}
		}
	} else {
		for i := range needed {
			needed[i] = true
		}
	}

	s := &Schedule{
		NumInputs:  uint32(len(g.Inputs)),
		NumOutputs: uint32(len(g.Outputs)),
	}

	reg := make([]uint32, n)
	aliased := make([]bool, n)
	slot := make([]uint32, n)
	counter := make([]uint32, n)
	for _, i := range g.Order {
		if !needed[i] {
			continue
		}
		nd := nodes[i]
		if passes.Identity && !folded[i] && nd.Op == program.OpGain && nd.Value == 1 {
			aliased[i] = true
			reg[i] = reg[g.nodeIndex[nd.Args[0]]]
			continue
		}
		reg[i] = s.Registers
		s.Registers++

		if folded[i] {
			continue
		}
		switch nd.Op {
		case program.OpDelay:
			slot[i] = s.StateWords
			s.StateWords += nd.Length
			counter[i] = s.Counters
			s.Counters++
		case program.OpAccum:
			slot[i] = s.StateWords
			s.StateWords++
		}
	}

	for _, i := range g.Order {
		nd := nodes[i]
		if needed[i] && !folded[i] && nd.Op == program.OpDelay {
			s.Code = append(s.Code, Instr{Op: OpDelayRead, Dst: reg[i], Slot: slot[i], Len: nd.Length, B: counter[i]})
		}
	}

	for _, i := range g.Order {
		if !needed[i] || aliased[i] {
			continue
		}
		nd := nodes[i]
		if folded[i] {
			s.Code = append(s.Code, Instr{Op: OpConst, Dst: reg[i], K: value[i]})
			continue
		}
		arg := func(k int) uint32 {
			return reg[g.nodeIndex[nd.Args[k]]]
		}
		switch nd.Op {
		case program.OpInput:
			s.Code = append(s.Code, Instr{Op: OpLoad, Dst: reg[i], A: uint32(g.inputIndex[nd.Endpoint])})
		case program.OpConst:
			s.Code = append(s.Code, Instr{Op: OpConst, Dst: reg[i], K: nd.Value})
		case program.OpGain:
			s.Code = append(s.Code, Instr{Op: OpGain, Dst: reg[i], A: arg(0), K: nd.Value})
		case program.OpAdd:
			s.Code = append(s.Code, Instr{Op: OpAdd, Dst: reg[i], A: arg(0), B: arg(1)})
		case program.OpSub:
			s.Code = append(s.Code, Instr{Op: OpSub, Dst: reg[i], A: arg(0), B: arg(1)})
		case program.OpMul:
			s.Code = append(s.Code, Instr{Op: OpMul, Dst: reg[i], A: arg(0), B: arg(1)})
		case program.OpAccum:
			s.Code = append(s.Code, Instr{Op: OpAccum, Dst: reg[i], A: arg(0), Slot: slot[i]})
		}
	}

	for o, out := range g.Outputs {
		s.Code = append(s.Code, Instr{Op: OpStore, Dst: uint32(o), A: reg[g.nodeIndex[out.Source]]})
	}

	for _, i := range g.Order {
		nd := nodes[i]
		if needed[i] && !folded[i] && nd.Op == program.OpDelay {
			a := reg[g.nodeIndex[nd.Args[0]]]
			s.Code = append(s.Code, Instr{Op: OpDelayWrite, A: a, Slot: slot[i], Len: nd.Length, B: counter[i]})
		}
	}
	return s
}

func apply(op program.Op, a, b float32) float32 {
	switch op {
	case program.OpAdd:
		return a + b
	case program.OpSub:
		return a - b
	case program.OpMul:
		return a * b
	}
	return 0
}
