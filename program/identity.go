package program

import (
	"bytes"
	"strconv"

	"github.com/cespare/xxhash/v2"

	"github.com/wippyai/dsp-runtime/internal/binenc"
)

const identityVersion = 1

// identity hashes a canonical encoding of everything that affects behaviour.
func identity(p *Program) string {
	var buf bytes.Buffer
	buf.WriteByte(identityVersion)
	binenc.WriteString(&buf, p.name)

	writeDecls := func(decls []EndpointDecl) {
		binenc.WriteU32(&buf, uint32(len(decls)))
		for _, d := range decls {
			binenc.WriteString(&buf, d.Name)
			binenc.WriteString(&buf, d.Source)
			buf.WriteByte(byte(d.Kind))
			buf.WriteByte(byte(d.Type))
			binenc.WriteF32(&buf, d.Default)
		}
	}
	writeDecls(p.inputs)
	writeDecls(p.outputs)

	binenc.WriteU32(&buf, uint32(len(p.nodes)))
	for _, n := range p.nodes {
		binenc.WriteString(&buf, n.ID)
		buf.WriteByte(byte(n.Op))
		binenc.WriteString(&buf, n.Endpoint)
		binenc.WriteU32(&buf, uint32(len(n.Args)))
		for _, a := range n.Args {
			binenc.WriteString(&buf, a)
		}
		binenc.WriteF32(&buf, n.Value)
		binenc.WriteU32(&buf, n.Length)
	}

	sum := xxhash.Sum64(buf.Bytes())
	s := strconv.FormatUint(sum, 16)
	for len(s) < 16 {
		s = "0" + s
	}
	return s
}
