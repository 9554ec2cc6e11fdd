package jit

import (
	"bytes"

	"github.com/wippyai/dsp-runtime/errors"
	"github.com/wippyai/dsp-runtime/internal/binenc"
	"github.com/wippyai/dsp-runtime/internal/graph"
)

const (
	pageSize = 65536
	maxPages = 65536
)

// Section IDs
const (
	sectionType     byte = 1
	sectionFunction byte = 3
	sectionMemory   byte = 5
	sectionExport   byte = 7
	sectionCode     byte = 10
)

// Value types and instruction opcodes used by the generator.
const (
	valI32 byte = 0x7F
	valF32 byte = 0x7D

	funcTypeByte byte = 0x60
	blockEmpty   byte = 0x40
	exportFunc   byte = 0x00
	exportMemory byte = 0x02
	limitsHasMax byte = 0x01

	opBlock    byte = 0x02
	opLoop     byte = 0x03
	opEnd      byte = 0x0B
	opBrIf     byte = 0x0D
	opLocalGet byte = 0x20
	opLocalSet byte = 0x21
	opLocalTee byte = 0x22
	opI32Load  byte = 0x28
	opF32Load  byte = 0x2A
	opI32Store byte = 0x36
	opF32Store byte = 0x38
	opI32Const byte = 0x41
	opF32Const byte = 0x43
	opI32Eqz   byte = 0x45
	opI32LtU   byte = 0x49
	opI32Add   byte = 0x6A
	opI32RemU  byte = 0x70
	opI32Shl   byte = 0x74
	opF32Add   byte = 0x92
	opF32Sub   byte = 0x93
	opF32Mul   byte = 0x94
)

// Locals of the process function.
const (
	localFrames = 0 // param: frames to render
	localFrame  = 1 // frame index
	localOffset = 2 // frame index * 4
	localReg0   = 3 // first register
)

// layout places endpoint buffers, delay counters and state in linear memory:
//
//	[inputs ...][outputs ...][counters][state]
//
// Every endpoint buffer holds block float32 frames.
type layout struct {
	block      uint32
	inputs     uint32
	outputs    uint32
	registers  uint32
	counters   uint32
	stateWords uint32

	inBase    uint64
	outBase   uint64
	ctrBase   uint64
	stateBase uint64
	end       uint64
}

func newLayout(s *graph.Schedule, block uint32) layout {
	l := layout{
		block:      block,
		inputs:     s.NumInputs,
		outputs:    s.NumOutputs,
		registers:  s.Registers,
		counters:   s.Counters,
		stateWords: s.StateWords,
	}
	l.place()
	return l
}

func (l *layout) place() {
	buf := uint64(l.block) * 4
	l.inBase = 0
	l.outBase = l.inBase + uint64(l.inputs)*buf
	l.ctrBase = l.outBase + uint64(l.outputs)*buf
	l.stateBase = l.ctrBase + uint64(l.counters)*4
	l.end = l.stateBase + uint64(l.stateWords)*4
}

// pages returns the linear memory size in pages, at least one.
func (l *layout) pages() uint64 {
	return max(1, (l.end+pageSize-1)/pageSize)
}

func (l *layout) input(i uint32) uint32 {
	return uint32(l.inBase + uint64(i)*uint64(l.block)*4)
}

func (l *layout) output(i uint32) uint32 {
	return uint32(l.outBase + uint64(i)*uint64(l.block)*4)
}

func (l *layout) counter(i uint32) uint32 {
	return uint32(l.ctrBase + uint64(i)*4)
}

func (l *layout) state(slot uint32) uint32 {
	return uint32(l.stateBase + uint64(slot)*4)
}

func (l *layout) shape() graph.Shape {
	return graph.Shape{
		Inputs:     l.inputs,
		Outputs:    l.outputs,
		Registers:  l.registers,
		StateWords: l.stateWords,
		Counters:   l.counters,
	}
}

// checkMemory rejects layouts that do not fit the page limit.
func (l *layout) checkMemory(limitPages uint32) error {
	if p := l.pages(); p > uint64(limitPages) {
		return errors.LimitExceeded(errors.PhaseLink, "kernel memory in pages", p, uint64(limitPages))
	}
	return nil
}

// generate emits a module exporting "memory" and "process(frames i32)".
// process runs the schedule once per frame.
func generate(s *graph.Schedule, l layout) []byte {
	var m bytes.Buffer
	m.Write([]byte{0x00, 0x61, 0x73, 0x6D}) // \0asm
	m.Write([]byte{0x01, 0x00, 0x00, 0x00})

	var sec bytes.Buffer
	binenc.WriteU32(&sec, 1)
	sec.WriteByte(funcTypeByte)
	binenc.WriteU32(&sec, 1)
	sec.WriteByte(valI32)
	binenc.WriteU32(&sec, 0)
	writeSection(&m, sectionType, &sec)

	binenc.WriteU32(&sec, 1)
	binenc.WriteU32(&sec, 0)
	writeSection(&m, sectionFunction, &sec)

	pages := uint32(l.pages())
	binenc.WriteU32(&sec, 1)
	sec.WriteByte(limitsHasMax)
	binenc.WriteU32(&sec, pages)
	binenc.WriteU32(&sec, pages)
	writeSection(&m, sectionMemory, &sec)

	binenc.WriteU32(&sec, 2)
	binenc.WriteString(&sec, "process")
	sec.WriteByte(exportFunc)
	binenc.WriteU32(&sec, 0)
	binenc.WriteString(&sec, "memory")
	sec.WriteByte(exportMemory)
	binenc.WriteU32(&sec, 0)
	writeSection(&m, sectionExport, &sec)

	body := functionBody(s, l)
	binenc.WriteU32(&sec, 1)
	binenc.WriteU32(&sec, uint32(len(body)))
	sec.Write(body)
	writeSection(&m, sectionCode, &sec)

	return m.Bytes()
}

func writeSection(w *bytes.Buffer, id byte, data *bytes.Buffer) {
	w.WriteByte(id)
	binenc.WriteU32(w, uint32(data.Len()))
	w.Write(data.Bytes())
	data.Reset()
}

func functionBody(s *graph.Schedule, l layout) []byte {
	var b bytes.Buffer
	if s.Registers > 0 {
		binenc.WriteU32(&b, 2)
	} else {
		binenc.WriteU32(&b, 1)
	}
	binenc.WriteU32(&b, 2)
	b.WriteByte(valI32)
	if s.Registers > 0 {
		binenc.WriteU32(&b, s.Registers)
		b.WriteByte(valF32)
	}

	e := emitter{w: &b}

	// block
	//   br_if 0 (frames == 0)
	//   loop
	//     offset = frame << 2
	//     ...schedule...
	//     frame = frame + 1
	//     br_if 0 (frame < frames)
	//   end
	// end
	e.op(opBlock)
	e.op(blockEmpty)
	e.local(opLocalGet, localFrames)
	e.op(opI32Eqz)
	e.op(opBrIf)
	e.u32(0)
	e.op(opLoop)
	e.op(blockEmpty)

	e.local(opLocalGet, localFrame)
	e.i32(2)
	e.op(opI32Shl)
	e.local(opLocalSet, localOffset)

	for _, in := range s.Code {
		e.instr(in, l)
	}

	e.local(opLocalGet, localFrame)
	e.i32(1)
	e.op(opI32Add)
	e.local(opLocalTee, localFrame)
	e.local(opLocalGet, localFrames)
	e.op(opI32LtU)
	e.op(opBrIf)
	e.u32(0)
	e.op(opEnd)
	e.op(opEnd)
	e.op(opEnd)
	return b.Bytes()
}

type emitter struct {
	w *bytes.Buffer
}

func (e emitter) op(b byte) {
	e.w.WriteByte(b)
}

func (e emitter) u32(v uint32) {
	binenc.WriteU32(e.w, v)
}

func (e emitter) i32(v int32) {
	e.op(opI32Const)
	binenc.WriteS32(e.w, v)
}

func (e emitter) f32(v float32) {
	e.op(opF32Const)
	binenc.WriteF32(e.w, v)
}

func (e emitter) reg(op byte, r uint32) {
	e.local(op, localReg0+r)
}

func (e emitter) local(op byte, idx uint32) {
	e.op(op)
	e.u32(idx)
}

// mem emits a load or store with natural 4-byte alignment.
func (e emitter) mem(op byte, offset uint32) {
	e.op(op)
	e.u32(2)
	e.u32(offset)
}

func (e emitter) instr(in graph.Instr, l layout) {
	switch in.Op {
	case graph.OpLoad:
		e.local(opLocalGet, localOffset)
		e.mem(opF32Load, l.input(in.A))
		e.reg(opLocalSet, in.Dst)
	case graph.OpConst:
		e.f32(in.K)
		e.reg(opLocalSet, in.Dst)
	case graph.OpGain:
		e.reg(opLocalGet, in.A)
		e.f32(in.K)
		e.op(opF32Mul)
		e.reg(opLocalSet, in.Dst)
	case graph.OpAdd, graph.OpSub, graph.OpMul:
		e.reg(opLocalGet, in.A)
		e.reg(opLocalGet, in.B)
		switch in.Op {
		case graph.OpAdd:
			e.op(opF32Add)
		case graph.OpSub:
			e.op(opF32Sub)
		default:
			e.op(opF32Mul)
		}
		e.reg(opLocalSet, in.Dst)
	case graph.OpDelayRead:
		e.counterAddress(in, l)
		e.mem(opF32Load, l.state(in.Slot))
		e.reg(opLocalSet, in.Dst)
	case graph.OpDelayWrite:
		e.counterAddress(in, l)
		e.reg(opLocalGet, in.A)
		e.mem(opF32Store, l.state(in.Slot))

		// counter = (counter + 1) % len
		e.i32(0)
		e.i32(0)
		e.mem(opI32Load, l.counter(in.B))
		e.i32(1)
		e.op(opI32Add)
		e.i32(int32(in.Len))
		e.op(opI32RemU)
		e.mem(opI32Store, l.counter(in.B))
	case graph.OpAccum:
		e.i32(0)
		e.i32(0)
		e.mem(opF32Load, l.state(in.Slot))
		e.reg(opLocalGet, in.A)
		e.op(opF32Add)
		e.reg(opLocalTee, in.Dst)
		e.mem(opF32Store, l.state(in.Slot))
	case graph.OpStore:
		e.local(opLocalGet, localOffset)
		e.reg(opLocalGet, in.A)
		e.mem(opF32Store, l.output(in.Dst))
	}
}

// counterAddress leaves counter*4 on the stack, the byte offset of the
// current position within a delay line.
func (e emitter) counterAddress(in graph.Instr, l layout) {
	e.i32(0)
	e.mem(opI32Load, l.counter(in.B))
	e.i32(2)
	e.op(opI32Shl)
}

const payloadVersion = 1

// encodePayload prefixes the module with the layout it was generated for:
//
//	version, block, inputs, outputs, registers, state words, counters, module
func encodePayload(l layout, module []byte) []byte {
	var buf bytes.Buffer
	buf.Grow(len(module) + 32)
	buf.WriteByte(payloadVersion)
	binenc.WriteU32(&buf, l.block)
	binenc.WriteU32(&buf, l.inputs)
	binenc.WriteU32(&buf, l.outputs)
	binenc.WriteU32(&buf, l.registers)
	binenc.WriteU32(&buf, l.stateWords)
	binenc.WriteU32(&buf, l.counters)
	binenc.WriteBytes(&buf, module)
	return buf.Bytes()
}

func decodePayload(payload []byte, blockSize uint32) (layout, []byte, error) {
	r := binenc.NewReader(payload)
	if v := r.Byte(); r.Err() == nil && v != payloadVersion {
		return layout{}, nil, errors.New(errors.PhaseLink, errors.KindUnsupported).
			Value(v).
			Detail("kernel payload version %d", v).
			Build()
	}
	l := layout{
		block:      r.U32(),
		inputs:     r.U32(),
		outputs:    r.U32(),
		registers:  r.U32(),
		stateWords: r.U32(),
		counters:   r.U32(),
	}
	module := r.Bytes()
	if err := r.Err(); err != nil {
		return layout{}, nil, errors.Wrap(errors.PhaseLink, errors.KindInvalidData, err, "truncated kernel payload")
	}
	if r.Remaining() != 0 {
		return layout{}, nil, errors.InvalidData(errors.PhaseLink, "trailing bytes after kernel payload")
	}
	if l.block == 0 || (blockSize != 0 && l.block != blockSize) {
		return layout{}, nil, errors.New(errors.PhaseLink, errors.KindInvalidData).
			Detail("kernel compiled for block size %d, want %d", l.block, blockSize).
			Build()
	}
	l.place()
	return l, module, nil
}
