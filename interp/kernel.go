package interp

import (
	"github.com/wippyai/dsp-runtime/internal/graph"
)

type kernel struct {
	code  []graph.Instr
	regs  []float32
	state []float32
	ctr   []uint32

	nin, nout  int
	stateBytes uint64
}

func newKernel(s *graph.Schedule) *kernel {
	return &kernel{
		code:       s.Code,
		regs:       make([]float32, s.Registers),
		state:      make([]float32, s.StateWords),
		ctr:        make([]uint32, s.Counters),
		nin:        int(s.NumInputs),
		nout:       int(s.NumOutputs),
		stateBytes: s.StateBytes(),
	}
}

func (k *kernel) Process(in, out [][]float32, frames int) {
	regs, state, ctr := k.regs, k.state, k.ctr
	for f := 0; f < frames; f++ {
		for i := range k.code {
			ins := &k.code[i]
			switch ins.Op {
			case graph.OpLoad:
				regs[ins.Dst] = in[ins.A][f]
			case graph.OpConst:
				regs[ins.Dst] = ins.K
			case graph.OpGain:
				regs[ins.Dst] = regs[ins.A] * ins.K
			case graph.OpAdd:
				regs[ins.Dst] = regs[ins.A] + regs[ins.B]
			case graph.OpSub:
				regs[ins.Dst] = regs[ins.A] - regs[ins.B]
			case graph.OpMul:
				regs[ins.Dst] = regs[ins.A] * regs[ins.B]
			case graph.OpDelayRead:
				regs[ins.Dst] = state[ins.Slot+ctr[ins.B]]
			case graph.OpDelayWrite:
				c := ctr[ins.B]
				state[ins.Slot+c] = regs[ins.A]
				if c++; c == ins.Len {
					c = 0
				}
				ctr[ins.B] = c
			case graph.OpAccum:
				state[ins.Slot] += regs[ins.A]
				regs[ins.Dst] = state[ins.Slot]
			case graph.OpStore:
				out[ins.Dst][f] = regs[ins.A]
			}
		}
	}
}

func (k *kernel) Reset() {
	clear(k.regs)
	clear(k.state)
	clear(k.ctr)
}

func (k *kernel) Inputs() int        { return k.nin }
func (k *kernel) Outputs() int       { return k.nout }
func (k *kernel) StateBytes() uint64 { return k.stateBytes }
func (k *kernel) Close() error       { return nil }
