package dspruntime

import (
	"strconv"

	"github.com/wippyai/dsp-runtime/errors"
)

// OptLevel selects the optimisation passes run by Link.
type OptLevel uint8

const (
	// OptNone lowers every node as declared.
	OptNone OptLevel = iota
	// OptDefault folds constant subgraphs and drops nodes that feed no output.
	OptDefault
	// OptFull additionally aliases unit gains away.
	OptFull
)

func (o OptLevel) String() string {
	switch o {
	case OptNone:
		return "none"
	case OptDefault:
		return "default"
	case OptFull:
		return "full"
	default:
		return "opt(" + strconv.Itoa(int(o)) + ")"
	}
}

// ParseOptLevel parses the name returned by OptLevel.String.
func ParseOptLevel(s string) (OptLevel, error) {
	switch s {
	case "none", "0":
		return OptNone, nil
	case "default", "1", "":
		return OptDefault, nil
	case "full", "2":
		return OptFull, nil
	}
	return 0, errors.InvalidInput(errors.PhaseLink, "unknown optimisation level "+strconv.Quote(s))
}

const (
	// DefaultMaxBlockSize is the kernel block used when
	// LinkOptions.MaxBlockSize is zero.
	DefaultMaxBlockSize = 1024

	// MaxBlockSizeLimit bounds LinkOptions.MaxBlockSize.
	MaxBlockSizeLimit = 1 << 16
)

// LinkOptions configures one Link call. The options are fixed for the
// lifetime of the resulting linkage.
type LinkOptions struct {
	// OptLevel selects the optimisation passes.
	OptLevel OptLevel

	// MaxBlockSize is a hard cap, in frames, on the quantum handed to
	// endpoint callbacks and kernels. Every buffer is sized for it at link,
	// and Advance calls for more frames are rendered in blocks of this size
	// with callbacks invoked once per block.
	//
	// 0 means no cap: callbacks receive the whole quantum in one call, the
	// kernel renders it in DefaultMaxBlockSize blocks, and endpoint buffers
	// grow the first time Advance is given a larger quantum than before.
	MaxBlockSize uint32

	// MaxStateSize caps the bytes of internal state (delay lines,
	// accumulators, counters). Programs needing more fail to link.
	// 0 means no cap.
	MaxStateSize uint32

	// CountXRuns enables underrun and overrun counting.
	CountXRuns bool
}

// DefaultLinkOptions returns the options used by hosts that do not care.
func DefaultLinkOptions() LinkOptions {
	return LinkOptions{
		OptLevel:   OptDefault,
		CountXRuns: true,
	}
}

// BlockSize returns the kernel block: the most frames a kernel renders in
// one pass.
func (o LinkOptions) BlockSize() uint32 {
	if o.MaxBlockSize == 0 {
		return DefaultMaxBlockSize
	}
	return o.MaxBlockSize
}

// Validate reports options no backend can honour.
func (o LinkOptions) Validate() error {
	if o.OptLevel > OptFull {
		return errors.New(errors.PhaseLink, errors.KindInvalidInput).
			Value(o.OptLevel).
			Detail("unknown optimisation level %d", o.OptLevel).
			Build()
	}
	if o.MaxBlockSize > MaxBlockSizeLimit {
		return errors.LimitExceeded(errors.PhaseLink, "max block size", uint64(o.MaxBlockSize), MaxBlockSizeLimit)
	}
	return nil
}

// Fingerprint renders the options that shape a linkage artifact. Options
// that only affect rendering or acceptance, such as CountXRuns and
// MaxStateSize, are left out so they share cache entries.
func (o LinkOptions) Fingerprint() string {
	return "opt=" + o.OptLevel.String() + ",block=" + strconv.FormatUint(uint64(o.BlockSize()), 10)
}
