package world

import "github.com/gogpu/quillhost/layout"

// Access is the sealed sum of query access node shapes, mirroring the
// layout package's LayoutInner sum-type idiom: a guest ships one of
// these (as a serialized tree), the host interns every TypeLayout it
// carries and compiles the tree into a compiledQuery.
type Access interface {
	accessNode()
}

// None is the empty access node — contributes nothing to a query.
type None struct{}

func (None) accessNode() {}

// Read demands a shared view of the named layout's column.
type Read struct {
	Layout layout.TypeLayout
}

func (Read) accessNode() {}

// Write demands an exclusive view of the named layout's column.
type Write struct {
	Layout layout.TypeLayout
}

func (Write) accessNode() {}

// Optional turns a missing column into a null row item rather than
// excluding the entity. Optional(Optional(x)) is treated as idempotent:
// compileAccess marks the underlying column optional regardless of
// nesting depth.
type Optional struct {
	Child Access
}

func (Optional) accessNode() {}

// With requires the named layout to be present without yielding data,
// continuing evaluation of Child.
type With struct {
	Layout layout.TypeLayout
	Child  Access
}

func (With) accessNode() {}

// Without requires the named layout to be absent, continuing evaluation
// of Child.
type Without struct {
	Layout layout.TypeLayout
	Child  Access
}

func (Without) accessNode() {}

// Union composes multiple access expressions over the same entity, for
// tuple queries.
type Union struct {
	Children []Access
}

func (Union) accessNode() {}
