package interp

import (
	dspruntime "github.com/wippyai/dsp-runtime"
	"github.com/wippyai/dsp-runtime/diag"
	"github.com/wippyai/dsp-runtime/internal/graph"
	"github.com/wippyai/dsp-runtime/internal/perform"
	"github.com/wippyai/dsp-runtime/program"
)

// Disassemble renders an interpreter payload, one instruction per line.
func Disassemble(payload []byte) (string, error) {
	s, err := decode(payload, 0)
	if err != nil {
		return "", err
	}
	return s.String(), nil
}

// Listing lowers p at the given optimisation level and renders the result
// the way Disassemble does.
func Listing(p *program.Program, level dspruntime.OptLevel) (string, error) {
	var msgs diag.List
	g := graph.Analyse(&msgs, p)
	if g == nil {
		return "", msgs.Err()
	}
	return graph.Lower(g, perform.Passes(level)).String(), nil
}
