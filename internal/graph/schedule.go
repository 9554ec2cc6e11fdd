package graph

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/wippyai/dsp-runtime/errors"
)

// Opcode is a schedule instruction. Every instruction runs once per frame.
type Opcode uint8

const (
	OpLoad       Opcode = iota // r[Dst] = in[A][frame]
	OpConst                    // r[Dst] = K
	OpGain                     // r[Dst] = r[A] * K
	OpAdd                      // r[Dst] = r[A] + r[B]
	OpSub                      // r[Dst] = r[A] - r[B]
	OpMul                      // r[Dst] = r[A] * r[B]
	OpDelayRead                // r[Dst] = state[Slot + ctr[B]]
	OpDelayWrite               // state[Slot + ctr[B]] = r[A]; ctr[B] = (ctr[B] + 1) % Len
	OpAccum                    // state[Slot] += r[A]; r[Dst] = state[Slot]
	OpStore                    // out[Dst][frame] = r[A]
	opcodeCount
)

var opcodeNames = [...]string{
	OpLoad:       "load",
	OpConst:      "const",
	OpGain:       "gain",
	OpAdd:        "add",
	OpSub:        "sub",
	OpMul:        "mul",
	OpDelayRead:  "dread",
	OpDelayWrite: "dwrite",
	OpAccum:      "accum",
	OpStore:      "store",
}

func (o Opcode) String() string {
	if o < opcodeCount {
		return opcodeNames[o]
	}
	return "opcode(" + strconv.Itoa(int(o)) + ")"
}

// Valid reports whether o is a known opcode.
func (o Opcode) Valid() bool {
	return o < opcodeCount
}

// Instr is one schedule instruction. Unused operands are zero.
type Instr struct {
	Dst  uint32
	A    uint32
	B    uint32
	Slot uint32
	Len  uint32
	K    float32
	Op   Opcode
}

func (in Instr) String() string {
	k := strconv.FormatFloat(float64(in.K), 'g', -1, 32)
	op := fmt.Sprintf("%-7s", in.Op)
	switch in.Op {
	case OpLoad:
		return fmt.Sprintf("%sr%d, in%d", op, in.Dst, in.A)
	case OpConst:
		return fmt.Sprintf("%sr%d, %s", op, in.Dst, k)
	case OpGain:
		return fmt.Sprintf("%sr%d, r%d, %s", op, in.Dst, in.A, k)
	case OpAdd, OpSub, OpMul:
		return fmt.Sprintf("%sr%d, r%d, r%d", op, in.Dst, in.A, in.B)
	case OpDelayRead:
		return fmt.Sprintf("%sr%d, s%d[%d] c%d", op, in.Dst, in.Slot, in.Len, in.B)
	case OpDelayWrite:
		return fmt.Sprintf("%sr%d, s%d[%d] c%d", op, in.A, in.Slot, in.Len, in.B)
	case OpAccum:
		return fmt.Sprintf("%sr%d, r%d, s%d", op, in.Dst, in.A, in.Slot)
	case OpStore:
		return fmt.Sprintf("%sout%d, r%d", op, in.Dst, in.A)
	}
	return strings.TrimSpace(op)
}

// Schedule is a program lowered to straight-line per-frame code.
//
// Delay reads come first, then the node computations in dependency order,
// then the output stores, then the delay writes.
type Schedule struct {
	Code       []Instr
	Registers  uint32
	StateWords uint32
	Counters   uint32
	NumInputs  uint32
	NumOutputs uint32
}

// StateBytes returns the size of the schedule's persistent state: delay
// lines, accumulators and delay counters.
func (s *Schedule) StateBytes() uint64 {
	return (uint64(s.StateWords) + uint64(s.Counters)) * 4
}

// Shape is the part of a schedule a kernel allocates for. Two schedules
// lowered from the same program with the same passes have equal shapes.
type Shape struct {
	Inputs     uint32
	Outputs    uint32
	Registers  uint32
	StateWords uint32
	Counters   uint32
}

// Shape returns the schedule's shape.
func (s *Schedule) Shape() Shape {
	return Shape{
		Inputs:     s.NumInputs,
		Outputs:    s.NumOutputs,
		Registers:  s.Registers,
		StateWords: s.StateWords,
		Counters:   s.Counters,
	}
}

func (s Shape) String() string {
	return fmt.Sprintf("inputs=%d outputs=%d registers=%d state=%d counters=%d",
		s.Inputs, s.Outputs, s.Registers, s.StateWords, s.Counters)
}

// String renders one instruction per line.
func (s *Schedule) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "; inputs=%d outputs=%d registers=%d state=%d counters=%d\n",
		s.NumInputs, s.NumOutputs, s.Registers, s.StateWords, s.Counters)
	for i, in := range s.Code {
		fmt.Fprintf(&b, "%04d  %s\n", i, in)
	}
	return b.String()
}

// Validate checks that every operand of every instruction is in range and
// that the declared registers, state and counters do not exceed what the
// code uses, so a schedule read back from a linkage artifact can be
// allocated and executed safely.
func (s *Schedule) Validate() error {
	if err := s.validateSizes(); err != nil {
		return err
	}

	reg := func(i int, r uint32) error {
		if r >= s.Registers {
			return invalidInstr(i, "register %d out of range", r)
		}
		return nil
	}
	delay := func(i int, in Instr) error {
		if in.Len == 0 {
			return invalidInstr(i, "zero delay length")
		}
		if in.Len > MaxDelayLength {
			return invalidInstr(i, "delay length %d exceeds limit %d", in.Len, MaxDelayLength)
		}
		if in.B >= s.Counters {
			return invalidInstr(i, "counter %d out of range", in.B)
		}
		if uint64(in.Slot)+uint64(in.Len) > uint64(s.StateWords) {
			return invalidInstr(i, "delay line %d+%d out of range", in.Slot, in.Len)
		}
		return nil
	}

	for i, in := range s.Code {
		var err error
		switch in.Op {
		case OpLoad:
			if in.A >= s.NumInputs {
				err = invalidInstr(i, "input %d out of range", in.A)
			} else {
				err = reg(i, in.Dst)
			}
		case OpConst:
			err = reg(i, in.Dst)
		case OpGain:
			if err = reg(i, in.Dst); err == nil {
				err = reg(i, in.A)
			}
		case OpAdd, OpSub, OpMul:
			if err = reg(i, in.Dst); err == nil {
				if err = reg(i, in.A); err == nil {
					err = reg(i, in.B)
				}
			}
		case OpDelayRead:
			if err = reg(i, in.Dst); err == nil {
				err = delay(i, in)
			}
		case OpDelayWrite:
			if err = reg(i, in.A); err == nil {
				err = delay(i, in)
			}
		case OpAccum:
			if err = reg(i, in.Dst); err == nil {
				if err = reg(i, in.A); err == nil && in.Slot >= s.StateWords {
					err = invalidInstr(i, "state slot %d out of range", in.Slot)
				}
			}
		case OpStore:
			if in.Dst >= s.NumOutputs {
				err = invalidInstr(i, "output %d out of range", in.Dst)
			} else {
				err = reg(i, in.A)
			}
		default:
			err = invalidInstr(i, "unknown opcode %d", uint8(in.Op))
		}
		if err != nil {
			return err
		}
	}
	return nil
}

// validateSizes bounds the declared sizes by the code: every register is
// written by one instruction, every delay line has one write and one counter,
// and every accumulator holds one state word.
func (s *Schedule) validateSizes() error {
	var delays, state uint64
	for _, in := range s.Code {
		switch in.Op {
		case OpDelayWrite:
			delays++
			state += uint64(min(in.Len, MaxDelayLength))
		case OpAccum:
			state++
		}
	}
	switch {
	case uint64(s.Registers) > uint64(len(s.Code)):
		return invalidSize("registers", uint64(s.Registers), uint64(len(s.Code)))
	case uint64(s.Counters) > delays:
		return invalidSize("delay counters", uint64(s.Counters), delays)
	case uint64(s.StateWords) > state:
		return invalidSize("state words", uint64(s.StateWords), state)
	}
	return nil
}

func invalidSize(what string, got, used uint64) error {
	return errors.New(errors.PhaseLink, errors.KindInvalidData).
		Value(got).
		Detail("schedule declares %d %s, code uses %d", got, what, used).
		Build()
}

func invalidInstr(i int, format string, args ...any) error {
	return errors.New(errors.PhaseLink, errors.KindInvalidData).
		Value(i).
		Detail("instruction %d: "+format, append([]any{i}, args...)...).
		Build()
}
