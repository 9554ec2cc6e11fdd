package binenc

import (
	"bytes"
	"errors"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteU32(t *testing.T) {
	tests := []struct {
		v    uint32
		want []byte
	}{
		{0, []byte{0x00}},
		{1, []byte{0x01}},
		{127, []byte{0x7f}},
		{128, []byte{0x80, 0x01}},
		{624485, []byte{0xe5, 0x8e, 0x26}},
		{0xffffffff, []byte{0xff, 0xff, 0xff, 0xff, 0x0f}},
	}
	for _, tt := range tests {
		var buf bytes.Buffer
		WriteU32(&buf, tt.v)
		assert.Equal(t, tt.want, buf.Bytes(), "value %d", tt.v)
	}
}

func TestWriteS32(t *testing.T) {
	tests := []struct {
		v    int32
		want []byte
	}{
		{0, []byte{0x00}},
		{2, []byte{0x02}},
		{-1, []byte{0x7f}},
		{63, []byte{0x3f}},
		{64, []byte{0xc0, 0x00}},
		{-64, []byte{0x40}},
		{-123456, []byte{0xc0, 0xbb, 0x78}},
	}
	for _, tt := range tests {
		var buf bytes.Buffer
		WriteS32(&buf, tt.v)
		assert.Equal(t, tt.want, buf.Bytes(), "value %d", tt.v)

		r := NewReader(buf.Bytes())
		assert.Equal(t, tt.v, r.S32())
		require.NoError(t, r.Err())
	}
}

func TestReaderSequence(t *testing.T) {
	var buf bytes.Buffer
	WriteU32(&buf, 300)
	WriteF32(&buf, 0.25)
	WriteU64(&buf, 0xdeadbeefcafe)
	WriteString(&buf, "jit")
	WriteBytes(&buf, []byte{1, 2, 3})
	buf.WriteByte(9)

	r := NewReader(buf.Bytes())
	assert.Equal(t, uint32(300), r.U32())
	assert.Equal(t, float32(0.25), r.F32())
	assert.Equal(t, uint64(0xdeadbeefcafe), r.U64())
	assert.Equal(t, "jit", r.String())
	assert.Equal(t, []byte{1, 2, 3}, r.Bytes())
	assert.Equal(t, byte(9), r.Byte())
	require.NoError(t, r.Err())
	assert.Equal(t, 0, r.Remaining())
}

func TestReaderStickyError(t *testing.T) {
	r := NewReader([]byte{0x80})
	assert.Equal(t, uint32(0), r.U32())
	assert.True(t, errors.Is(r.Err(), io.ErrUnexpectedEOF))

	// later reads keep returning zero values
	assert.Equal(t, float32(0), r.F32())
	assert.Equal(t, "", r.String())
	assert.True(t, errors.Is(r.Err(), io.ErrUnexpectedEOF))
}

func TestReaderOverflow(t *testing.T) {
	r := NewReader([]byte{0xff, 0xff, 0xff, 0xff, 0xff, 0x01})
	r.U32()
	assert.True(t, errors.Is(r.Err(), ErrOverflow))
}

func TestReaderBytesLengthBeyondInput(t *testing.T) {
	var buf bytes.Buffer
	WriteU32(&buf, 1000)
	buf.WriteString("short")

	r := NewReader(buf.Bytes())
	assert.Nil(t, r.Bytes())
	assert.Error(t, r.Err())
}
