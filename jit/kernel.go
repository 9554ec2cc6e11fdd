package jit

import (
	"context"
	"encoding/binary"
	"math"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"go.uber.org/zap"

	dspruntime "github.com/wippyai/dsp-runtime"
	"github.com/wippyai/dsp-runtime/errors"
)

type kernel struct {
	ctx      context.Context
	compiled wazero.CompiledModule
	mod      api.Module
	process  api.Function
	stackBuf []uint64

	l   layout
	mem []byte // view of the module's linear memory, which never grows

	trapped bool
}

func newKernel(ctx context.Context, compiled wazero.CompiledModule, mod api.Module, l layout) (*kernel, error) {
	process := mod.ExportedFunction("process")
	if process == nil {
		return nil, errors.NotFound(errors.PhaseLink, "export", "process")
	}
	memory := mod.Memory()
	if memory == nil {
		return nil, errors.NotFound(errors.PhaseLink, "export", "memory")
	}
	view, ok := memory.Read(0, memory.Size())
	if !ok || uint64(len(view)) < l.end {
		return nil, errors.New(errors.PhaseLink, errors.KindInvalidData).
			Detail("kernel memory holds %d bytes, layout needs %d", len(view), l.end).
			Build()
	}
	return &kernel{
		ctx:      ctx,
		compiled: compiled,
		mod:      mod,
		process:  process,
		stackBuf: make([]uint64, 1),
		l:        l,
		mem:      view,
	}, nil
}

func (k *kernel) Process(in, out [][]float32, frames int) {
	for i, buf := range in {
		writeFloats(k.mem[k.l.input(uint32(i)):], buf[:frames])
	}

	k.stackBuf[0] = uint64(frames)
	if err := k.process.CallWithStack(k.ctx, k.stackBuf[:1]); err != nil {
		for _, buf := range out {
			clear(buf[:frames])
		}
		if !k.trapped {
			k.trapped = true
			dspruntime.Logger().Error("kernel trapped", zap.Error(err))
		}
		return
	}

	for i, buf := range out {
		readFloats(buf[:frames], k.mem[k.l.output(uint32(i)):])
	}
}

func (k *kernel) Reset() {
	clear(k.mem[k.l.ctrBase:k.l.end])
	k.trapped = false
}

func (k *kernel) Inputs() int  { return int(k.l.inputs) }
func (k *kernel) Outputs() int { return int(k.l.outputs) }

func (k *kernel) StateBytes() uint64 {
	return uint64(k.l.stateWords+k.l.counters) * 4
}

func (k *kernel) Close() error {
	err := k.mod.Close(k.ctx)
	if cerr := k.compiled.Close(k.ctx); err == nil {
		err = cerr
	}
	return err
}

func writeFloats(dst []byte, src []float32) {
	for i, v := range src {
		binary.LittleEndian.PutUint32(dst[i*4:], math.Float32bits(v))
	}
}

func readFloats(dst []float32, src []byte) {
	for i := range dst {
		dst[i] = math.Float32frombits(binary.LittleEndian.Uint32(src[i*4:]))
	}
}
