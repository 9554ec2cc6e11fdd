package graph

import (
	stderrors "errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wippyai/dsp-runtime/diag"
	"github.com/wippyai/dsp-runtime/errors"
	"github.com/wippyai/dsp-runtime/program"
)

func mustAnalyse(t *testing.T, p *program.Program) *Graph {
	t.Helper()
	var msgs diag.List
	g := Analyse(&msgs, p)
	require.NotNil(t, g, msgs.String())
	return g
}

func ops(s *Schedule) []Opcode {
	out := make([]Opcode, len(s.Code))
	for i, in := range s.Code {
		out[i] = in.Op
	}
	return out
}

func TestLowerPassThrough(t *testing.T) {
	g := mustAnalyse(t, program.NewBuilder("pass").
		Input(program.Stream("in")).
		Output(program.Stream("out").From("x")).
		Node(program.Input("x", "in")).
		Build())

	s := Lower(g, Passes{})
	assert.Equal(t, []Instr{
		{Op: OpLoad, Dst: 0, A: 0},
		{Op: OpStore, Dst: 0, A: 0},
	}, s.Code)
	assert.Equal(t, uint32(1), s.Registers)
	assert.Equal(t, uint64(0), s.StateBytes())
	require.NoError(t, s.Validate())
}

func TestLowerDelayOrdering(t *testing.T) {
	g := mustAnalyse(t, program.NewBuilder("comb").
		Input(program.Stream("in")).
		Output(program.Stream("out").From("y")).
		Node(
			program.Input("x", "in"),
			program.Delay("d", "y", 4),
			program.Gain("g", "d", 0.5),
			program.Add("y", "x", "g"),
		).Build())

	s := Lower(g, Passes{})
	assert.Equal(t, []Opcode{OpDelayRead, OpLoad, OpGain, OpAdd, OpStore, OpDelayWrite}, ops(s))
	assert.Equal(t, uint32(4), s.StateWords)
	assert.Equal(t, uint32(1), s.Counters)
	assert.Equal(t, uint64(20), s.StateBytes())

	read, write := s.Code[0], s.Code[len(s.Code)-1]
	assert.Equal(t, read.Slot, write.Slot)
	assert.Equal(t, uint32(4), write.Len)
	assert.Equal(t, s.Code[3].Dst, write.A, "delay writes the add result")
	require.NoError(t, s.Validate())
}

func TestLowerFoldAndPrune(t *testing.T) {
	g := mustAnalyse(t, program.NewBuilder("fold").
		Input(program.Stream("in")).
		Output(program.Stream("out").From("y")).
		Node(
			program.Input("x", "in"),
			program.Const("a", 2),
			program.Const("b", 3),
			program.Mul("k", "a", "b"),
			program.Gain("k2", "k", 0.5),
			program.Mul("y", "x", "k2"),
			program.Accum("dead", "x"),
		).Build())

	none := Lower(g, Passes{})
	assert.Len(t, none.Code, 8)
	assert.Equal(t, uint32(1), none.StateWords, "unpruned accumulator keeps its state")

	opt := Lower(g, Passes{Fold: true, Prune: true})
	assert.Equal(t, []Opcode{OpLoad, OpConst, OpMul, OpStore}, ops(opt))
	assert.Equal(t, float32(3), opt.Code[1].K)
	assert.Zero(t, opt.StateWords)
	require.NoError(t, opt.Validate())
}

func TestLowerIdentity(t *testing.T) {
	g := mustAnalyse(t, program.NewBuilder("unity").
		Input(program.Stream("in")).
		Output(program.Stream("out").From("g")).
		Node(
			program.Input("x", "in"),
			program.Gain("g", "x", 1),
		).Build())

	assert.Equal(t, []Opcode{OpLoad, OpGain, OpStore}, ops(Lower(g, Passes{Fold: true, Prune: true})))

	s := Lower(g, Passes{Fold: true, Prune: true, Identity: true})
	assert.Equal(t, []Opcode{OpLoad, OpStore}, ops(s))
	assert.Equal(t, s.Code[0].Dst, s.Code[1].A)
}

func TestLowerAccum(t *testing.T) {
	g := mustAnalyse(t, program.NewBuilder("ramp").
		Output(program.Stream("out").From("r")).
		Node(
			program.Const("one", 1),
			program.Accum("r", "one"),
		).Build())

	s := Lower(g, Passes{Fold: true, Prune: true})
	assert.Equal(t, []Opcode{OpConst, OpAccum, OpStore}, ops(s))
	assert.Equal(t, uint32(1), s.StateWords)
	assert.Equal(t, uint64(4), s.StateBytes())
}

func TestScheduleValidate(t *testing.T) {
	tests := []struct {
		name string
		s    Schedule
	}{
		{"register", Schedule{Registers: 1, Code: []Instr{{Op: OpConst, Dst: 1}}}},
		{"input", Schedule{Registers: 1, Code: []Instr{{Op: OpLoad, A: 0}}}},
		{"output", Schedule{Registers: 1, Code: []Instr{{Op: OpStore, Dst: 0}}}},
		{"counter", Schedule{Registers: 1, StateWords: 1, Code: []Instr{{Op: OpDelayRead, Len: 1, B: 0}}}},
		{"delay line", Schedule{Registers: 1, StateWords: 2, Counters: 1, Code: []Instr{{Op: OpDelayWrite, Slot: 1, Len: 2}}}},
		{"zero length", Schedule{Registers: 1, StateWords: 2, Counters: 1, Code: []Instr{{Op: OpDelayRead}}}},
		{"accum slot", Schedule{Registers: 1, Code: []Instr{{Op: OpAccum}}}},
		{"opcode", Schedule{Code: []Instr{{Op: Opcode(99)}}}},
		{"registers beyond code", Schedule{Registers: 0xFFFFFFFF, Code: []Instr{{Op: OpConst}}}},
		{"counters beyond delays", Schedule{Counters: 0xFFFFFFFF}},
		{"state beyond code", Schedule{NumInputs: 1, NumOutputs: 1, StateWords: 0xFFFFFFFF}},
		{"delay length", Schedule{Registers: 1, StateWords: MaxDelayLength, Counters: 1, Code: []Instr{{Op: OpDelayWrite, Len: MaxDelayLength + 1}}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.s.Validate()
			require.Error(t, err)
			var rerr *errors.Error
			require.True(t, stderrors.As(err, &rerr))
			assert.Equal(t, errors.KindInvalidData, rerr.Kind)
		})
	}
}

func TestInstrString(t *testing.T) {
	tests := []struct {
		in   Instr
		want string
	}{
		{Instr{Op: OpLoad, Dst: 1, A: 0}, "load   r1, in0"},
		{Instr{Op: OpConst, Dst: 2, K: 0.25}, "const  r2, 0.25"},
		{Instr{Op: OpGain, Dst: 3, A: 1, K: -2}, "gain   r3, r1, -2"},
		{Instr{Op: OpSub, Dst: 4, A: 1, B: 3}, "sub    r4, r1, r3"},
		{Instr{Op: OpDelayRead, Dst: 5, Slot: 8, Len: 4, B: 1}, "dread  r5, s8[4] c1"},
		{Instr{Op: OpDelayWrite, A: 4, Slot: 8, Len: 4, B: 1}, "dwrite r4, s8[4] c1"},
		{Instr{Op: OpAccum, Dst: 6, A: 4, Slot: 12}, "accum  r6, r4, s12"},
		{Instr{Op: OpStore, Dst: 0, A: 6}, "store  out0, r6"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.in.String())
	}
}
