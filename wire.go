package quillhost

import (
	"fmt"

	"github.com/gogpu/quillhost/layout"
	"github.com/gogpu/quillhost/world"
)

// wireTypeLayout is TypeLayout's tagged-sum wire form: a variant tag
// plus its payload, since CBOR can't decode straight into an
// interface-typed field without an explicit discriminant. layout
// itself imports only the standard library; this conversion layer is
// what lets a TypeLayout cross the codec boundary.
type wireTypeLayout struct {
	Name   string      `cbor:"name"`
	Kind   string      `cbor:"kind"`
	Fields []wireField `cbor:"fields,omitempty"`
}

type wireField struct {
	Name   string         `cbor:"name"`
	Layout wireTypeLayout `cbor:"layout"`
}

func toWireLayout(t layout.TypeLayout) wireTypeLayout {
	switch inner := t.Inner.(type) {
	case layout.Enum:
		fields := make([]wireField, len(inner.Variants))
		for i, v := range inner.Variants {
			fields[i] = wireField{Name: v.Name, Layout: toWireLayout(v.Layout)}
		}
		return wireTypeLayout{Name: t.Name, Kind: "enum", Fields: fields}
	default: // layout.Struct, including primitive leaves
		s, _ := inner.(layout.Struct)
		fields := make([]wireField, len(s.Fields))
		for i, f := range s.Fields {
			fields[i] = wireField{Name: f.Name, Layout: toWireLayout(f.Layout)}
		}
		return wireTypeLayout{Name: t.Name, Kind: "struct", Fields: fields}
	}
}

func (w wireTypeLayout) toLayout() (layout.TypeLayout, error) {
	switch w.Kind {
	case "struct":
		fields := make([]layout.Field, len(w.Fields))
		for i, f := range w.Fields {
			inner, err := f.Layout.toLayout()
			if err != nil {
				return layout.TypeLayout{}, err
			}
			fields[i] = layout.Field{Name: f.Name, Layout: inner}
		}
		return layout.TypeLayout{Name: w.Name, Inner: layout.Struct{Fields: fields}}, nil
	case "enum":
		variants := make([]layout.Variant, len(w.Fields))
		for i, f := range w.Fields {
			inner, err := f.Layout.toLayout()
			if err != nil {
				return layout.TypeLayout{}, err
			}
			variants[i] = layout.Variant{Name: f.Name, Layout: inner}
		}
		return layout.TypeLayout{Name: w.Name, Inner: layout.Enum{Variants: variants}}, nil
	default:
		return layout.TypeLayout{}, fmt.Errorf("quillhost: unknown type layout kind %q", w.Kind)
	}
}

// wireAccess is QueryAccess's wire form: a tagged tree mirroring
// world.Access's sealed interface, since an interface value can't be
// decoded off the wire without an explicit discriminant.
type wireAccess struct {
	Tag      string          `cbor:"tag"`
	Layout   *wireTypeLayout `cbor:"layout,omitempty"`
	Child    *wireAccess     `cbor:"child,omitempty"`
	Children []wireAccess    `cbor:"children,omitempty"`
}

func toWireAccess(a world.Access) (wireAccess, error) {
	switch n := a.(type) {
	case world.None:
		return wireAccess{Tag: "none"}, nil
	case world.Read:
		l := toWireLayout(n.Layout)
		return wireAccess{Tag: "read", Layout: &l}, nil
	case world.Write:
		l := toWireLayout(n.Layout)
		return wireAccess{Tag: "write", Layout: &l}, nil
	case world.Optional:
		child, err := toWireAccess(n.Child)
		if err != nil {
			return wireAccess{}, err
		}
		return wireAccess{Tag: "optional", Child: &child}, nil
	case world.With:
		l := toWireLayout(n.Layout)
		child, err := toWireAccess(n.Child)
		if err != nil {
			return wireAccess{}, err
		}
		return wireAccess{Tag: "with", Layout: &l, Child: &child}, nil
	case world.Without:
		l := toWireLayout(n.Layout)
		child, err := toWireAccess(n.Child)
		if err != nil {
			return wireAccess{}, err
		}
		return wireAccess{Tag: "without", Layout: &l, Child: &child}, nil
	case world.Union:
		children := make([]wireAccess, len(n.Children))
		for i, c := range n.Children {
			wc, err := toWireAccess(c)
			if err != nil {
				return wireAccess{}, err
			}
			children[i] = wc
		}
		return wireAccess{Tag: "union", Children: children}, nil
	default:
		return wireAccess{}, fmt.Errorf("quillhost: unknown access node %T", a)
	}
}

func (w wireAccess) toAccess() (world.Access, error) {
	switch w.Tag {
	case "none":
		return world.None{}, nil
	case "read":
		if w.Layout == nil {
			return nil, fmt.Errorf("quillhost: read access node missing layout")
		}
		l, err := w.Layout.toLayout()
		if err != nil {
			return nil, err
		}
		return world.Read{Layout: l}, nil
	case "write":
		if w.Layout == nil {
			return nil, fmt.Errorf("quillhost: write access node missing layout")
		}
		l, err := w.Layout.toLayout()
		if err != nil {
			return nil, err
		}
		return world.Write{Layout: l}, nil
	case "optional":
		if w.Child == nil {
			return nil, fmt.Errorf("quillhost: optional access node missing child")
		}
		child, err := w.Child.toAccess()
		if err != nil {
			return nil, err
		}
		return world.Optional{Child: child}, nil
	case "with":
		if w.Layout == nil || w.Child == nil {
			return nil, fmt.Errorf("quillhost: with access node missing layout or child")
		}
		l, err := w.Layout.toLayout()
		if err != nil {
			return nil, err
		}
		child, err := w.Child.toAccess()
		if err != nil {
			return nil, err
		}
		return world.With{Layout: l, Child: child}, nil
	case "without":
		if w.Layout == nil || w.Child == nil {
			return nil, fmt.Errorf("quillhost: without access node missing layout or child")
		}
		l, err := w.Layout.toLayout()
		if err != nil {
			return nil, err
		}
		child, err := w.Child.toAccess()
		if err != nil {
			return nil, err
		}
		return world.Without{Layout: l, Child: child}, nil
	case "union":
		children := make([]world.Access, len(w.Children))
		for i, c := range w.Children {
			ca, err := c.toAccess()
			if err != nil {
				return nil, err
			}
			children[i] = ca
		}
		return world.Union{Children: children}, nil
	default:
		return nil, fmt.Errorf("quillhost: unknown access tag %q", w.Tag)
	}
}
