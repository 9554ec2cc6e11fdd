package program

import (
	"bytes"
	stderrors "errors"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/wippyai/dsp-runtime/diag"
	"github.com/wippyai/dsp-runtime/endpoint"
	"github.com/wippyai/dsp-runtime/errors"
)

// document is the YAML form of a program:
//
//	name: tremolo
//	inputs:
//	  - {name: in, kind: stream}
//	  - {name: depth, kind: value, default: 0.5}
//	outputs:
//	  - {name: out, source: y}
//	nodes:
//	  - {id: x, op: input, endpoint: in}
//	  - {id: d, op: input, endpoint: depth}
//	  - {id: y, op: mul, args: [x, d]}
type document struct {
	Name    string        `yaml:"name"`
	Inputs  []declElement `yaml:"inputs"`
	Outputs []declElement `yaml:"outputs"`
	Nodes   []nodeElement `yaml:"nodes"`
}

type declElement struct {
	Name    string  `yaml:"name"`
	Kind    string  `yaml:"kind"`
	Type    string  `yaml:"type"`
	Source  string  `yaml:"source"`
	Default float32 `yaml:"default"`

	line, column int
}

func (d *declElement) UnmarshalYAML(n *yaml.Node) error {
	type plain declElement
	if err := n.Decode((*plain)(d)); err != nil {
		return err
	}
	d.line, d.column = n.Line, n.Column
	return nil
}

type nodeElement struct {
	ID       string   `yaml:"id"`
	Op       string   `yaml:"op"`
	Endpoint string   `yaml:"endpoint"`
	Args     []string `yaml:"args"`
	Value    float32  `yaml:"value"`
	Length   uint32   `yaml:"length"`

	line, column int
}

func (e *nodeElement) UnmarshalYAML(n *yaml.Node) error {
	type plain nodeElement
	if err := n.Decode((*plain)(e)); err != nil {
		return err
	}
	e.line, e.column = n.Line, n.Column
	return nil
}

// Decode parses a YAML program document. file is recorded in the source
// locations of endpoints and nodes.
//
// Decode only checks the document's shape: op names, endpoint kinds and
// element types. Graph semantics are left to Load.
func Decode(data []byte, file string) (*Program, error) {
	var doc document
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&doc); err != nil {
		if stderrors.Is(err, io.EOF) {
			return nil, errors.Decode("empty program document", nil)
		}
		return nil, errors.Decode("parse program document", err)
	}

	b := NewBuilder(doc.Name)
	for _, in := range doc.Inputs {
		d, err := in.decl(file)
		if err != nil {
			return nil, err
		}
		b.Input(d)
	}
	for _, out := range doc.Outputs {
		d, err := out.decl(file)
		if err != nil {
			return nil, err
		}
		b.Output(d)
	}
	for _, ne := range doc.Nodes {
		loc := diag.Location{File: file, Line: ne.line, Column: ne.column}
		op, ok := ParseOp(ne.Op)
		if !ok {
			return nil, errors.New(errors.PhaseDecode, errors.KindInvalidInput).
				Node(ne.ID).
				Detail("%s: unknown op %q", loc, ne.Op).
				Build()
		}
		b.Node(Node{
			ID:       ne.ID,
			Op:       op,
			Endpoint: ne.Endpoint,
			Args:     ne.Args,
			Value:    ne.Value,
			Length:   ne.Length,
			Location: loc,
		})
	}
	return b.Build(), nil
}

// DecodeFile reads and decodes the program document at path.
func DecodeFile(path string) (*Program, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Decode("read program document", err)
	}
	return Decode(data, path)
}

func (d declElement) decl(file string) (EndpointDecl, error) {
	loc := diag.Location{File: file, Line: d.line, Column: d.column}
	kind, err := endpoint.ParseKind(d.Kind)
	if err != nil {
		return EndpointDecl{}, located(loc, d.Name, err)
	}
	typ, err := endpoint.ParseElementType(d.Type)
	if err != nil {
		return EndpointDecl{}, located(loc, d.Name, err)
	}
	return EndpointDecl{
		Name:     d.Name,
		Kind:     kind,
		Type:     typ,
		Source:   d.Source,
		Default:  d.Default,
		Location: loc,
	}, nil
}

func located(loc diag.Location, name string, err error) error {
	var rerr *errors.Error
	if !stderrors.As(err, &rerr) {
		return errors.Decode(loc.String(), err)
	}
	out := *rerr
	out.Endpoint = name
	out.Detail = loc.String() + ": " + rerr.Detail
	return &out
}
