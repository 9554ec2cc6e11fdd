package perform

import (
	"bytes"

	"github.com/cespare/xxhash/v2"

	"github.com/wippyai/dsp-runtime/errors"
	"github.com/wippyai/dsp-runtime/internal/binenc"
)

// Linkage artifact envelope:
//
//	magic    "DSPL"
//	version  uLEB128
//	backend  string
//	checksum u64, xxhash64 of payload
//	payload  bytes
const (
	artifactMagic   = "DSPL"
	artifactVersion = 1
)

// EncodeArtifact wraps a backend payload for storage in a linker cache.
func EncodeArtifact(backend string, payload []byte) []byte {
	var buf bytes.Buffer
	buf.Grow(len(artifactMagic) + len(backend) + len(payload) + 24)
	buf.WriteString(artifactMagic)
	binenc.WriteU32(&buf, artifactVersion)
	binenc.WriteString(&buf, backend)
	binenc.WriteU64(&buf, xxhash.Sum64(payload))
	binenc.WriteBytes(&buf, payload)
	return buf.Bytes()
}

// DecodeArtifact unwraps an artifact produced by EncodeArtifact for backend.
func DecodeArtifact(data []byte, backend string) ([]byte, error) {
	if len(data) < len(artifactMagic) || string(data[:len(artifactMagic)]) != artifactMagic {
		return nil, errors.InvalidData(errors.PhaseCache, "bad artifact magic")
	}
	r := binenc.NewReader(data[len(artifactMagic):])
	version := r.U32()
	name := r.String()
	sum := r.U64()
	payload := r.Bytes()
	if err := r.Err(); err != nil {
		return nil, errors.Wrap(errors.PhaseCache, errors.KindInvalidData, err, "truncated artifact")
	}
	if version != artifactVersion {
		return nil, errors.New(errors.PhaseCache, errors.KindUnsupported).
			Value(version).
			Detail("artifact version %d", version).
			Build()
	}
	if name != backend {
		return nil, errors.New(errors.PhaseCache, errors.KindInvalidData).
			Detail("artifact built by backend %q, want %q", name, backend).
			Build()
	}
	if r.Remaining() != 0 {
		return nil, errors.InvalidData(errors.PhaseCache, "trailing bytes after artifact")
	}
	if got := xxhash.Sum64(payload); got != sum {
		return nil, errors.Checksum(sum, got)
	}
	return payload, nil
}
