// Package binenc holds the LEB128 and little-endian primitives shared by the
// linkage artifact codecs and the WebAssembly code generator.
package binenc

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"
	"math"
)

// ErrOverflow is returned when a LEB128 value exceeds the maximum bit width.
var ErrOverflow = errors.New("leb128: overflow")

// WriteU32 writes an unsigned LEB128 value
func WriteU32(w *bytes.Buffer, v uint32) {
	for {
		b := byte(v & 0x7f)
		v >>= 7
		if v != 0 {
			b |= 0x80
		}
		w.WriteByte(b)
		if v == 0 {
			break
		}
	}
}

// WriteS32 writes a signed LEB128 value
func WriteS32(w *bytes.Buffer, v int32) {
	more := true
	for more {
		b := byte(v & 0x7f)
		v >>= 7
		if (v == 0 && b&0x40 == 0) || (v == -1 && b&0x40 != 0) {
			more = false
		} else {
			b |= 0x80
		}
		w.WriteByte(b)
	}
}

// WriteF32 writes a little-endian float32
func WriteF32(w *bytes.Buffer, v float32) {
	var buf [4]byte
	binary.LittleEndian.PutUint32(buf[:], math.Float32bits(v))
	w.Write(buf[:])
}

// WriteU64 writes a fixed-width little-endian uint64
func WriteU64(w *bytes.Buffer, v uint64) {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], v)
	w.Write(buf[:])
}

// WriteString writes a LEB128 length followed by the bytes of s
func WriteString(w *bytes.Buffer, s string) {
	WriteU32(w, uint32(len(s)))
	w.WriteString(s)
}

// WriteBytes writes a LEB128 length followed by b
func WriteBytes(w *bytes.Buffer, b []byte) {
	WriteU32(w, uint32(len(b)))
	w.Write(b)
}

// Reader decodes the primitives written above. The first error is sticky:
// later reads return zero values and Err reports it.
type Reader struct {
	r   *bytes.Reader
	err error
}

func NewReader(data []byte) *Reader {
	return &Reader{r: bytes.NewReader(data)}
}

// Err returns the first error encountered.
func (r *Reader) Err() error {
	return r.err
}

// Remaining returns the number of unread bytes.
func (r *Reader) Remaining() int {
	return r.r.Len()
}

func (r *Reader) fail(err error) {
	if r.err == nil {
		if err == io.EOF {
			err = io.ErrUnexpectedEOF
		}
		r.err = err
	}
}

// Byte reads one byte
func (r *Reader) Byte() byte {
	if r.err != nil {
		return 0
	}
	b, err := r.r.ReadByte()
	if err != nil {
		r.fail(err)
		return 0
	}
	return b
}

// U32 reads an unsigned LEB128 value
func (r *Reader) U32() uint32 {
	if r.err != nil {
		return 0
	}
	var result uint32
	var shift uint
	for {
		b, err := r.r.ReadByte()
		if err != nil {
			r.fail(err)
			return 0
		}
		result |= uint32(b&0x7f) << shift
		if b&0x80 == 0 {
			return result
		}
		shift += 7
		if shift >= 35 {
			r.fail(ErrOverflow)
			return 0
		}
	}
}

// S32 reads a signed LEB128 value
func (r *Reader) S32() int32 {
	if r.err != nil {
		return 0
	}
	var result int32
	var shift uint
	var b byte
	var err error
	for {
		b, err = r.r.ReadByte()
		if err != nil {
			r.fail(err)
			return 0
		}
		result |= int32(b&0x7f) << shift
		shift += 7
		if b&0x80 == 0 {
			break
		}
		if shift >= 35 {
			r.fail(ErrOverflow)
			return 0
		}
	}
	// Sign extend
	if shift < 32 && b&0x40 != 0 {
		result |= ^int32(0) << shift
	}
	return result
}

// F32 reads a little-endian float32
func (r *Reader) F32() float32 {
	var buf [4]byte
	r.read(buf[:])
	return math.Float32frombits(binary.LittleEndian.Uint32(buf[:]))
}

// U64 reads a fixed-width little-endian uint64
func (r *Reader) U64() uint64 {
	var buf [8]byte
	r.read(buf[:])
	return binary.LittleEndian.Uint64(buf[:])
}

// String reads a length-prefixed string
func (r *Reader) String() string {
	return string(r.Bytes())
}

// Bytes reads a length-prefixed byte slice
func (r *Reader) Bytes() []byte {
	n := r.U32()
	if r.err != nil {
		return nil
	}
	if int64(n) > int64(r.r.Len()) {
		r.fail(io.ErrUnexpectedEOF)
		return nil
	}
	buf := make([]byte, n)
	r.read(buf)
	return buf
}

func (r *Reader) read(buf []byte) {
	if r.err != nil {
		clear(buf)
		return
	}
	if _, err := io.ReadFull(r.r, buf); err != nil {
		clear(buf)
		r.fail(err)
	}
}
