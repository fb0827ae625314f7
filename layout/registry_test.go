package layout

import "testing"

func TestRegistry_PrimitivesPreinterned(t *testing.T) {
	r := NewRegistry()

	if r.Count() != len(Primitives) {
		t.Fatalf("expected %d pre-interned primitives, got %d", len(Primitives), r.Count())
	}

	for i, name := range Primitives {
		id := ID(i)
		got, ok := r.Lookup(id)
		if !ok {
			t.Fatalf("primitive %s (id %d) not found", name, id)
		}
		if got.Name != name {
			t.Errorf("id %d: expected primitive %q, got %q", id, name, got.Name)
		}
	}
}

func TestRegistry_InternIdempotent(t *testing.T) {
	r := NewRegistry()

	position := TypeLayout{
		Name: "Position",
		Inner: Struct{Fields: []Field{
			{Name: "x", Layout: Unit(NameF32)},
			{Name: "y", Layout: Unit(NameF32)},
		}},
	}

	id1 := r.Intern(position)
	id2 := r.Intern(position)
	if id1 != id2 {
		t.Errorf("expected same id for identical layouts, got %d and %d", id1, id2)
	}

	clone := TypeLayout{
		Name: "Position",
		Inner: Struct{Fields: []Field{
			{Name: "x", Layout: Unit(NameF32)},
			{Name: "y", Layout: Unit(NameF32)},
		}},
	}
	id3 := r.Intern(clone)
	if id3 != id1 {
		t.Errorf("expected clone to intern to the same id, got %d want %d", id3, id1)
	}
}

func TestRegistry_DifferentLayoutsGetDifferentIds(t *testing.T) {
	r := NewRegistry()

	a := TypeLayout{Name: "A", Inner: Struct{Fields: []Field{{Name: "x", Layout: Unit(NameU32)}}}}
	b := TypeLayout{Name: "A", Inner: Struct{Fields: []Field{{Name: "x", Layout: Unit(NameU64)}}}}

	idA := r.Intern(a)
	idB := r.Intern(b)
	if idA == idB {
		t.Errorf("expected different ids for field-type-differing layouts, got both %d", idA)
	}
}

func TestRegistry_StructVsEnumSameNameDiffer(t *testing.T) {
	r := NewRegistry()

	s := TypeLayout{Name: "Thing", Inner: Struct{}}
	e := TypeLayout{Name: "Thing", Inner: Enum{}}

	if r.Intern(s) == r.Intern(e) {
		t.Error("expected Struct and Enum with the same name to intern to different ids")
	}
}

func TestRegistry_Verify(t *testing.T) {
	r := NewRegistry()

	health := TypeLayout{Name: "Health", Inner: Struct{Fields: []Field{{Name: "hp", Layout: Unit(NameU32)}}}}
	id := r.Intern(health)

	if err := r.Verify(id, health); err != nil {
		t.Fatalf("expected matching layout to verify clean, got %v", err)
	}

	mismatched := TypeLayout{Name: "Health", Inner: Struct{Fields: []Field{{Name: "hp", Layout: Unit(NameU64)}}}}
	if err := r.Verify(id, mismatched); err == nil {
		t.Fatal("expected inconsistent layout to report an error")
	}
}

func TestRegistry_NestedStructs(t *testing.T) {
	r := NewRegistry()

	inner := TypeLayout{Name: "Inner", Inner: Struct{Fields: []Field{{Name: "v", Layout: Unit(NameI32)}}}}
	outerA := TypeLayout{Name: "Outer", Inner: Struct{Fields: []Field{{Name: "inner", Layout: inner}}}}
	outerB := TypeLayout{Name: "Outer", Inner: Struct{Fields: []Field{{Name: "inner", Layout: inner}}}}

	if r.Intern(outerA) != r.Intern(outerB) {
		t.Error("expected structurally equal nested layouts to dedup")
	}
}

func TestEqual(t *testing.T) {
	a := Unit(NameU32)
	b := Unit(NameU32)
	c := Unit(NameU64)

	if !Equal(a, b) {
		t.Error("expected equal primitives to compare equal")
	}
	if Equal(a, c) {
		t.Error("expected different primitives to compare unequal")
	}
}
