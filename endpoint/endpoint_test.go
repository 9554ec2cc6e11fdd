package endpoint_test

import (
	stderrors "errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wippyai/dsp-runtime/endpoint"
)

func TestParseKind(t *testing.T) {
	tests := []struct {
		in   string
		want endpoint.Kind
		err  bool
	}{
		{"stream", endpoint.Stream, false},
		{"", endpoint.Stream, false},
		{"event", endpoint.Events, false},
		{"value", endpoint.Value, false},
		{"midi", 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := endpoint.ParseKind(tt.in)
			if tt.err {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseElementType(t *testing.T) {
	got, err := endpoint.ParseElementType("int32")
	require.NoError(t, err)
	assert.Equal(t, endpoint.Int32, got)

	got, err = endpoint.ParseElementType("")
	require.NoError(t, err)
	assert.Equal(t, endpoint.Float32, got)

	_, err = endpoint.ParseElementType("complex64")
	assert.Error(t, err)
}

func TestEndpointString(t *testing.T) {
	e := endpoint.Endpoint{Name: "in", Direction: endpoint.Input, Kind: endpoint.Stream, Type: endpoint.Float32}
	assert.Equal(t, "in input stream<float32>", e.String())
}

func TestTableRecordsInOrder(t *testing.T) {
	tbl := endpoint.NewTable()
	require.NoError(t, tbl.BindStreamSource("in", func(dst []float32) int { return len(dst) }))
	require.NoError(t, tbl.BindStreamSink("out", func(src []float32) int { return len(src) }))
	require.NoError(t, tbl.BindValueSource("gain", func() float32 { return 1 }))
	require.NoError(t, tbl.BindEventSink("trig", func(src []endpoint.Event) int { return len(src) }))

	bs := tbl.Bindings()
	require.Len(t, bs, 4)
	assert.Equal(t, "in", bs[0].Name)
	assert.Equal(t, endpoint.Input, bs[0].Direction)
	assert.Equal(t, "out", bs[1].Name)
	assert.Equal(t, endpoint.Output, bs[1].Direction)
	assert.Equal(t, endpoint.Value, bs[2].Kind)
	assert.Equal(t, endpoint.Events, bs[3].Kind)
}

func TestTableRejectsNilCallback(t *testing.T) {
	tbl := endpoint.NewTable()
	err := tbl.BindStreamSource("in", nil)
	assert.True(t, stderrors.Is(err, endpoint.ErrNilCallback))

	err = tbl.Bind(endpoint.Binding{
		Name:       "in",
		Direction:  endpoint.Input,
		Kind:       endpoint.Stream,
		StreamSink: func(src []float32) int { return 0 },
	})
	assert.True(t, stderrors.Is(err, endpoint.ErrNilCallback), "sink on an input binding is not a callback for it")
	assert.Equal(t, 0, tbl.Len())
}

func TestTableSeal(t *testing.T) {
	tbl := endpoint.NewTable()
	require.NoError(t, tbl.BindValueSink("level", func(float32) {}))

	tbl.Seal()
	assert.True(t, tbl.Sealed())
	err := tbl.BindValueSink("level", func(float32) {})
	assert.True(t, stderrors.Is(err, endpoint.ErrSealed))
	assert.Equal(t, 1, tbl.Len())

	tbl.Unseal()
	require.NoError(t, tbl.BindValueSink("other", func(float32) {}))
	assert.Equal(t, 2, tbl.Len())

	tbl.Seal()
	tbl.Clear()
	assert.False(t, tbl.Sealed())
	assert.Equal(t, 0, tbl.Len())
}
