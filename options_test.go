package dspruntime_test

import (
	stderrors "errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	dspruntime "github.com/wippyai/dsp-runtime"
	"github.com/wippyai/dsp-runtime/errors"
)

func TestDefaultLinkOptions(t *testing.T) {
	opts := dspruntime.DefaultLinkOptions()
	assert.Equal(t, dspruntime.OptDefault, opts.OptLevel)
	assert.Equal(t, uint32(dspruntime.DefaultMaxBlockSize), opts.BlockSize())
	assert.Zero(t, opts.MaxBlockSize, "no hard cap by default")
	assert.True(t, opts.CountXRuns)
	assert.Zero(t, opts.MaxStateSize)
	require.NoError(t, opts.Validate())
}

func TestLinkOptionsBlockSize(t *testing.T) {
	assert.Equal(t, uint32(1024), dspruntime.LinkOptions{}.BlockSize())
	assert.Equal(t, uint32(64), dspruntime.LinkOptions{MaxBlockSize: 64}.BlockSize())
}

func TestLinkOptionsValidate(t *testing.T) {
	tests := []struct {
		name string
		opts dspruntime.LinkOptions
		kind errors.Kind
	}{
		{"bad opt level", dspruntime.LinkOptions{OptLevel: 9}, errors.KindInvalidInput},
		{"block too large", dspruntime.LinkOptions{MaxBlockSize: dspruntime.MaxBlockSizeLimit + 1}, errors.KindLimitExceeded},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.opts.Validate()
			require.Error(t, err)
			var rerr *errors.Error
			require.True(t, stderrors.As(err, &rerr))
			assert.Equal(t, tt.kind, rerr.Kind)
			assert.Equal(t, errors.PhaseLink, rerr.Phase)
		})
	}
	require.NoError(t, dspruntime.LinkOptions{MaxBlockSize: dspruntime.MaxBlockSizeLimit}.Validate())
}

func TestFingerprint(t *testing.T) {
	a := dspruntime.LinkOptions{OptLevel: dspruntime.OptFull, MaxBlockSize: 0}
	b := dspruntime.LinkOptions{OptLevel: dspruntime.OptFull, MaxBlockSize: 1024, CountXRuns: true, MaxStateSize: 16}
	assert.Equal(t, a.Fingerprint(), b.Fingerprint())
	assert.Equal(t, "opt=full,block=1024", a.Fingerprint())

	c := dspruntime.LinkOptions{OptLevel: dspruntime.OptNone}
	assert.NotEqual(t, a.Fingerprint(), c.Fingerprint())
}

func TestParseOptLevel(t *testing.T) {
	for _, lvl := range []dspruntime.OptLevel{dspruntime.OptNone, dspruntime.OptDefault, dspruntime.OptFull} {
		got, err := dspruntime.ParseOptLevel(lvl.String())
		require.NoError(t, err)
		assert.Equal(t, lvl, got)
	}
	_, err := dspruntime.ParseOptLevel("turbo")
	assert.Error(t, err)
}

func TestNewCacheKey(t *testing.T) {
	opts := dspruntime.DefaultLinkOptions()
	k1 := dspruntime.NewCacheKey("00ff", "interp", opts)
	k2 := dspruntime.NewCacheKey("00ff", "interp", opts)
	assert.Equal(t, k1, k2)

	assert.NotEqual(t, k1, dspruntime.NewCacheKey("00ff", "jit", opts))
	assert.NotEqual(t, k1, dspruntime.NewCacheKey("00fe", "interp", opts))
	opts.OptLevel = dspruntime.OptNone
	assert.NotEqual(t, k1, dspruntime.NewCacheKey("00ff", "interp", opts))
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "unloaded", dspruntime.Unloaded.String())
	assert.Equal(t, "loaded", dspruntime.Loaded.String())
	assert.Equal(t, "linked", dspruntime.Linked.String())
	assert.Equal(t, "state(7)", dspruntime.State(7).String())
}

func TestSetLogger(t *testing.T) {
	l := zap.NewExample()
	dspruntime.SetLogger(l)
	assert.Same(t, l, dspruntime.Logger())

	dspruntime.SetLogger(nil)
	assert.NotNil(t, dspruntime.Logger())
}
