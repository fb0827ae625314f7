// Package layout defines TypeLayout, the structural type descriptor
// guests and the host exchange when they need to agree on the shape of
// a component, and the stable LayoutId handles a Registry assigns to
// them.
//
// A TypeLayout is a recursive sum of two shapes, Struct and Enum, using
// the sealed-interface handle pattern from ir.TypeInner (see DESIGN.md):
// a small set of fixed-name zero-field structs stand in for the
// primitive leaves (integers, floats, bool, char, unit).
package layout

import "fmt"

// ID is an opaque handle assigned by a Registry on first sighting of a
// TypeLayout. Ids are monotonically increasing starting at 0, stable for
// the lifetime of the process, and never reused.
type ID uint64

// TypeLayout is a structural type descriptor. Equality is structural
// (deep), not by identity.
type TypeLayout struct {
	Name  string
	Inner LayoutInner
}

// LayoutInner is the sealed sum of shapes a TypeLayout can take.
type LayoutInner interface {
	layoutInner()
}

// Struct is an ordered sequence of named fields.
type Struct struct {
	Fields []Field
}

func (Struct) layoutInner() {}

// Field is one (name, layout) pair of a Struct.
type Field struct {
	Name   string
	Layout TypeLayout
}

// Enum is an ordered sequence of named variants.
type Enum struct {
	Variants []Variant
}

func (Enum) layoutInner() {}

// Variant is one (name, layout) pair of an Enum.
type Variant struct {
	Name   string
	Layout TypeLayout
}

// Unit builds the zero-field Struct layout used for primitive leaves.
func Unit(name string) TypeLayout {
	return TypeLayout{Name: name, Inner: Struct{}}
}

// Reserved primitive names and ids. Primitives are pre-interned by
// NewRegistry in this exact order, so a guest may assume e.g. U32 always
// resolves to id 8 without a round trip, while still being free to ship
// the full descriptor across the wire (the registry tolerates both).
const (
	NameUnit = "unit"
	NameI8   = "i8"
	NameI16  = "i16"
	NameI32  = "i32"
	NameI64  = "i64"
	NameI128 = "i128"
	NameU8   = "u8"
	NameU16  = "u16"
	NameU32  = "u32"
	NameU64  = "u64"
	NameU128 = "u128"
	NameF32  = "f32"
	NameF64  = "f64"
	NameBool = "bool"
	NameChar = "char"
)

// Primitives lists the fixed primitive leaves in their pre-interning
// order. Index into this slice plus 0 gives the reserved ID.
var Primitives = []string{
	NameUnit,
	NameI8, NameI16, NameI32, NameI64, NameI128,
	NameU8, NameU16, NameU32, NameU64, NameU128,
	NameF32, NameF64,
	NameBool, NameChar,
}

// Equal reports whether two TypeLayouts are structurally equal.
func Equal(a, b TypeLayout) bool {
	if a.Name != b.Name {
		return false
	}
	return innerEqual(a.Inner, b.Inner)
}

func innerEqual(a, b LayoutInner) bool {
	switch av := a.(type) {
	case Struct:
		bv, ok := b.(Struct)
		if !ok || len(av.Fields) != len(bv.Fields) {
			return false
		}
		for i := range av.Fields {
			if av.Fields[i].Name != bv.Fields[i].Name {
				return false
			}
			if !Equal(av.Fields[i].Layout, bv.Fields[i].Layout) {
				return false
			}
		}
		return true
	case Enum:
		bv, ok := b.(Enum)
		if !ok || len(av.Variants) != len(bv.Variants) {
			return false
		}
		for i := range av.Variants {
			if av.Variants[i].Name != bv.Variants[i].Name {
				return false
			}
			if !Equal(av.Variants[i].Layout, bv.Variants[i].Layout) {
				return false
			}
		}
		return true
	default:
		return false
	}
}

// String renders a TypeLayout for diagnostics.
func (t TypeLayout) String() string {
	switch inner := t.Inner.(type) {
	case Struct:
		if len(inner.Fields) == 0 {
			return t.Name
		}
		return fmt.Sprintf("struct %s(%d fields)", t.Name, len(inner.Fields))
	case Enum:
		return fmt.Sprintf("enum %s(%d variants)", t.Name, len(inner.Variants))
	default:
		return t.Name
	}
}
