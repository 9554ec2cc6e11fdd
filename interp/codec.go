package interp

import (
	"bytes"

	"github.com/wippyai/dsp-runtime/errors"
	"github.com/wippyai/dsp-runtime/internal/binenc"
	"github.com/wippyai/dsp-runtime/internal/graph"
)

const codecVersion = 1

// encode serialises a schedule:
//
//	version, block size, inputs, outputs, registers, state words, counters
//	instruction count, then per instruction: opcode, dst, a, b, slot, len, k
func encode(s *graph.Schedule, blockSize uint32) []byte {
	var buf bytes.Buffer
	buf.WriteByte(codecVersion)
	binenc.WriteU32(&buf, blockSize)
	binenc.WriteU32(&buf, s.NumInputs)
	binenc.WriteU32(&buf, s.NumOutputs)
	binenc.WriteU32(&buf, s.Registers)
	binenc.WriteU32(&buf, s.StateWords)
	binenc.WriteU32(&buf, s.Counters)
	binenc.WriteU32(&buf, uint32(len(s.Code)))
	for _, in := range s.Code {
		buf.WriteByte(byte(in.Op))
		binenc.WriteU32(&buf, in.Dst)
		binenc.WriteU32(&buf, in.A)
		binenc.WriteU32(&buf, in.B)
		binenc.WriteU32(&buf, in.Slot)
		binenc.WriteU32(&buf, in.Len)
		binenc.WriteF32(&buf, in.K)
	}
	return buf.Bytes()
}

// decode reads a payload written by encode and validates it. A non-zero
// blockSize must match the one the payload was compiled for.
func decode(payload []byte, blockSize uint32) (*graph.Schedule, error) {
	r := binenc.NewReader(payload)
	if v := r.Byte(); r.Err() == nil && v != codecVersion {
		return nil, errors.New(errors.PhaseLink, errors.KindUnsupported).
			Value(v).
			Detail("bytecode version %d", v).
			Build()
	}
	block := r.U32()
	s := &graph.Schedule{
		NumInputs:  r.U32(),
		NumOutputs: r.U32(),
		Registers:  r.U32(),
		StateWords: r.U32(),
		Counters:   r.U32(),
	}
	n := r.U32()
	if r.Err() == nil && uint64(n)*10 > uint64(r.Remaining()) {
		return nil, errors.InvalidData(errors.PhaseLink, "bytecode instruction count exceeds payload")
	}
	if r.Err() == nil {
		s.Code = make([]graph.Instr, n)
		for i := range s.Code {
			s.Code[i] = graph.Instr{
				Op:   graph.Opcode(r.Byte()),
				Dst:  r.U32(),
				A:    r.U32(),
				B:    r.U32(),
				Slot: r.U32(),
				Len:  r.U32(),
				K:    r.F32(),
			}
		}
	}
	if err := r.Err(); err != nil {
		return nil, errors.Wrap(errors.PhaseLink, errors.KindInvalidData, err, "truncated bytecode")
	}
	if r.Remaining() != 0 {
		return nil, errors.InvalidData(errors.PhaseLink, "trailing bytes after bytecode")
	}
	if blockSize != 0 && block != blockSize {
		return nil, errors.New(errors.PhaseLink, errors.KindInvalidData).
			Detail("bytecode compiled for block size %d, want %d", block, blockSize).
			Build()
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return s, nil
}
