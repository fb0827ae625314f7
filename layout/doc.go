// Package layout provides the structural type descriptor (TypeLayout)
// and stable handle (ID) that the RPC and World layers use to agree on
// component shapes across the host/guest boundary, without either side
// needing compile-time knowledge of the other's types.
//
// # Structure
//
// A TypeLayout is one of two shapes:
//
//	Struct{fields: ordered (name, TypeLayout) pairs}
//	Enum{variants: ordered (name, TypeLayout) pairs}
//
// Primitive leaves (u8..u128, i8..i128, f32, f64, bool, char, unit) are
// represented as zero-field Structs under reserved names. A Registry
// assigns a monotonically increasing ID the first time it sees a
// structurally distinct TypeLayout, and returns the same ID on every
// later sighting of an equal one.
//
// # References
//
// This is a dedup-by-structural-key registry, as in ir.TypeHandle /
// ir.TypeRegistry: a fixed shader-type lattice generalized to the
// two-shape recursive sum above.
package layout
