package perform

import (
	"github.com/wippyai/dsp-runtime/diag"
	"github.com/wippyai/dsp-runtime/endpoint"
	"github.com/wippyai/dsp-runtime/errors"
)

type bindingKey struct {
	name string
	dir  endpoint.Direction
}

// checkBindings validates the binding table against the loaded endpoints
// and reports every problem it finds.
func (p *Performer) checkBindings(messages *diag.List) bool {
	ok := true
	seen := make(map[bindingKey]bool)
	for _, b := range p.bindings.Bindings() {
		ep, found := p.lookup(b.Direction, b.Name)
		if !found {
			ok = false
			other := endpoint.Output
			if b.Direction == endpoint.Output {
				other = endpoint.Input
			}
			if _, exists := p.lookup(other, b.Name); exists {
				messages.AddError(p.location(other, b.Name), errors.New(errors.PhaseBind, errors.KindTypeMismatch).
					Endpoint(b.Name).
					Detail("bound as %s but declared as %s", b.Direction, other).
					Build())
			} else {
				messages.AddError(diag.Location{}, errors.NotFound(errors.PhaseBind, b.Direction.String()+" endpoint", b.Name))
			}
			continue
		}

		key := bindingKey{name: b.Name, dir: b.Direction}
		if seen[key] {
			ok = false
			messages.AddError(p.location(b.Direction, b.Name), errors.New(errors.PhaseBind, errors.KindDuplicate).
				Endpoint(b.Name).
				Detail("bound more than once").
				Build())
			continue
		}
		seen[key] = true

		if ep.Kind != b.Kind {
			ok = false
			messages.AddError(p.location(b.Direction, b.Name),
				errors.TypeMismatch(errors.PhaseBind, b.Name, ep.Kind.String()+" callback", b.Kind.String()+" callback"))
		}
	}
	return ok
}

func (p *Performer) lookup(dir endpoint.Direction, name string) (endpoint.Endpoint, bool) {
	eps := p.inputs
	if dir == endpoint.Output {
		eps = p.outputs
	}
	for _, ep := range eps {
		if ep.Name == name {
			return ep, true
		}
	}
	return endpoint.Endpoint{}, false
}

func (p *Performer) location(dir endpoint.Direction, name string) diag.Location {
	decls := p.graph.Inputs
	if dir == endpoint.Output {
		decls = p.graph.Outputs
	}
	for _, d := range decls {
		if d.Name == name {
			return d.Location
		}
	}
	return diag.Location{}
}
