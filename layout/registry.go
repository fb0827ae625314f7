package layout

import "strconv"

// Registry assigns stable ids to structural type descriptors and
// canonicalizes equality: two layouts that compare structurally equal
// always intern to the same ID. Registry is single-writer — concurrent
// calls to Intern from multiple goroutines are not supported, since only
// the single thread driving a plugin's calls ever touches one.
type Registry struct {
	layouts []TypeLayout
	byKey   map[string]ID
	keyBuf  []byte
}

// NewRegistry creates a Registry with the fixed primitive leaves
// pre-interned in Primitives order, so callers may rely on reserved ids
// for primitives without a round trip through Intern.
func NewRegistry() *Registry {
	r := &Registry{
		layouts: make([]TypeLayout, 0, len(Primitives)+16),
		byKey:   make(map[string]ID, len(Primitives)+16),
		keyBuf:  make([]byte, 0, 64),
	}
	for _, name := range Primitives {
		r.Intern(Unit(name))
	}
	return r
}

// Intern returns the existing ID for layout if an identical (structurally
// equal) layout was interned before, or assigns and returns a fresh one
// otherwise. Ids are assigned in insertion order starting at 0.
func (r *Registry) Intern(t TypeLayout) ID {
	key := r.key(t)
	if id, ok := r.byKey[key]; ok {
		return id
	}
	id := ID(len(r.layouts))
	r.layouts = append(r.layouts, t)
	r.byKey[key] = id
	return id
}

// Lookup returns the TypeLayout interned under id, if any. The returned
// layout is never mutated by the Registry after interning.
func (r *Registry) Lookup(id ID) (TypeLayout, bool) {
	if id >= ID(len(r.layouts)) {
		return TypeLayout{}, false
	}
	return r.layouts[id], true
}

// Count returns the number of distinct layouts interned so far.
func (r *Registry) Count() int {
	return len(r.layouts)
}

// Verify checks that id, if already interned, was interned against a
// layout structurally equal to t. It reports a mismatch rather than
// silently re-interning, since a guest shipping the same id against two
// different descriptors is a registry inconsistency, not a fresh type.
func (r *Registry) Verify(id ID, t TypeLayout) error {
	existing, ok := r.Lookup(id)
	if !ok {
		return nil
	}
	if !Equal(existing, t) {
		return &InconsistentLayoutError{ID: id, Registered: existing, Got: t}
	}
	return nil
}

// InconsistentLayoutError reports that id was shipped against a
// TypeLayout that differs from the one already registered under it.
type InconsistentLayoutError struct {
	ID         ID
	Registered TypeLayout
	Got        TypeLayout
}

func (e *InconsistentLayoutError) Error() string {
	return "layout id " + strconv.FormatUint(uint64(e.ID), 10) +
		" registered as " + e.Registered.String() +
		" but received as " + e.Got.String()
}

// key builds a structural dedup key for t, recursively. Two structurally
// equal layouts always produce identical keys and vice versa, the same
// way TypeRegistry.normalizeType does it, generalized from a fixed set
// of shader type kinds to the Struct/Enum recursion.
func (r *Registry) key(t TypeLayout) string {
	b := r.keyBuf[:0]
	b = r.appendKey(b, t)
	r.keyBuf = b
	return string(b)
}

func (r *Registry) appendKey(b []byte, t TypeLayout) []byte {
	switch inner := t.Inner.(type) {
	case Struct:
		b = append(b, "struct:"...)
		b = append(b, t.Name...)
		b = append(b, ':')
		b = strconv.AppendInt(b, int64(len(inner.Fields)), 10)
		for _, f := range inner.Fields {
			b = append(b, '(')
			b = append(b, f.Name...)
			b = append(b, ',')
			b = r.appendKey(b, f.Layout)
			b = append(b, ')')
		}
		return b
	case Enum:
		b = append(b, "enum:"...)
		b = append(b, t.Name...)
		b = append(b, ':')
		b = strconv.AppendInt(b, int64(len(inner.Variants)), 10)
		for _, v := range inner.Variants {
			b = append(b, '(')
			b = append(b, v.Name...)
			b = append(b, ',')
			b = r.appendKey(b, v.Layout)
			b = append(b, ')')
		}
		return b
	default:
		b = append(b, "unknown:"...)
		b = append(b, t.Name...)
		return b
	}
}
