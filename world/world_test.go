package world

import (
	"testing"

	"github.com/gogpu/quillhost/layout"
)

func u32Bytes(v uint32) []byte {
	return []byte{byte(v), byte(v >> 8), byte(v >> 16), byte(v >> 24)}
}

func decodeU32(b []byte) uint32 {
	return uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16 | uint32(b[3])<<24
}

func TestSpawnAndQuerySingleComponent(t *testing.T) {
	reg := layout.NewRegistry()
	w := NewWorld(reg)
	u32 := layout.Unit(layout.NameU32)
	u32ID := reg.Intern(u32)

	id, err := w.Spawn([]ComponentValue{{Layout: u32ID, Bytes: u32Bytes(7)}})
	if err != nil {
		t.Fatal(err)
	}
	if id.Generation != 0 {
		t.Fatalf("expected fresh entity to have generation 0, got %d", id.Generation)
	}

	result, err := w.Query(Read{Layout: u32})
	if err != nil {
		t.Fatal(err)
	}
	if len(result.Rows) != 1 {
		t.Fatalf("expected 1 row, got %d", len(result.Rows))
	}
	got := decodeU32(result.Rows[0].Immutable[0])
	if got != 7 {
		t.Fatalf("got %d, want 7", got)
	}
}

func TestQueryFiltersWithUnionWithWithout(t *testing.T) {
	reg := layout.NewRegistry()
	w := NewWorld(reg)
	a := reg.Intern(layout.TypeLayout{Name: "A", Inner: layout.Struct{}})
	b := reg.Intern(layout.TypeLayout{Name: "B", Inner: layout.Struct{}})
	c := reg.Intern(layout.TypeLayout{Name: "C", Inner: layout.Struct{}})
	aLayout := layout.TypeLayout{Name: "A", Inner: layout.Struct{}}
	bLayout := layout.TypeLayout{Name: "B", Inner: layout.Struct{}}
	cLayout := layout.TypeLayout{Name: "C", Inner: layout.Struct{}}

	e1, err := w.Spawn([]ComponentValue{{Layout: a, Bytes: []byte{1}}, {Layout: b, Bytes: []byte{1}}})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := w.Spawn([]ComponentValue{{Layout: a, Bytes: []byte{2}}}); err != nil {
		t.Fatal(err)
	}
	if _, err := w.Spawn([]ComponentValue{{Layout: a, Bytes: []byte{3}}, {Layout: c, Bytes: []byte{3}}}); err != nil {
		t.Fatal(err)
	}

	access := Union{Children: []Access{
		Read{Layout: aLayout},
		With{Layout: bLayout, Child: None{}},
		Without{Layout: cLayout, Child: None{}},
	}}
	result, err := w.Query(access)
	if err != nil {
		t.Fatal(err)
	}
	if len(result.Rows) != 1 {
		t.Fatalf("expected exactly 1 matching row, got %d", len(result.Rows))
	}
	if result.Rows[0].Entity != e1 {
		t.Fatalf("expected the matching entity to be E1, got %+v", result.Rows[0].Entity)
	}
}

func TestWriteThroughQueryThenCommit(t *testing.T) {
	reg := layout.NewRegistry()
	w := NewWorld(reg)
	u32 := layout.Unit(layout.NameU32)
	u32ID := reg.Intern(u32)

	if _, err := w.Spawn([]ComponentValue{{Layout: u32ID, Bytes: u32Bytes(1)}}); err != nil {
		t.Fatal(err)
	}
	if _, err := w.Spawn([]ComponentValue{{Layout: u32ID, Bytes: u32Bytes(2)}}); err != nil {
		t.Fatal(err)
	}

	result, err := w.Query(Write{Layout: u32})
	if err != nil {
		t.Fatal(err)
	}
	for i := range result.Rows {
		v := decodeU32(result.Rows[i].Mutable[0])
		result.Rows[i].Mutable[0] = u32Bytes(v + 1)
	}
	if err := w.Commit(result); err != nil {
		t.Fatal(err)
	}

	readBack, err := w.Query(Read{Layout: u32})
	if err != nil {
		t.Fatal(err)
	}
	seen := map[uint32]bool{}
	for _, row := range readBack.Rows {
		seen[decodeU32(row.Immutable[0])] = true
	}
	if !seen[2] || !seen[3] {
		t.Fatalf("expected multiset {2,3}, got %v", seen)
	}
}

func TestStaleEntityAfterDespawn(t *testing.T) {
	reg := layout.NewRegistry()
	w := NewWorld(reg)
	u32ID := reg.Intern(layout.Unit(layout.NameU32))

	id, err := w.Spawn([]ComponentValue{{Layout: u32ID, Bytes: u32Bytes(42)}})
	if err != nil {
		t.Fatal(err)
	}
	if ok := w.Despawn(id); !ok {
		t.Fatal("expected despawn of a live entity to succeed")
	}

	_, _, err = w.Get(id, u32ID)
	if err == nil {
		t.Fatal("expected a stale entity id to report an error")
	}
}

func TestDespawnThenRespawnBumpsGeneration(t *testing.T) {
	reg := layout.NewRegistry()
	w := NewWorld(reg)
	u32ID := reg.Intern(layout.Unit(layout.NameU32))

	id1, err := w.Spawn([]ComponentValue{{Layout: u32ID, Bytes: u32Bytes(1)}})
	if err != nil {
		t.Fatal(err)
	}
	w.Despawn(id1)

	id2, err := w.Spawn([]ComponentValue{{Layout: u32ID, Bytes: u32Bytes(2)}})
	if err != nil {
		t.Fatal(err)
	}
	if id2.Index == id1.Index && id2.Generation == id1.Generation {
		t.Fatal("expected the reused slot to carry a bumped generation")
	}

	// The old id must never resolve to the new entity's data.
	if _, _, err := w.Get(id1, u32ID); err == nil {
		t.Fatal("expected the stale id to still be rejected after the slot was reused")
	}
}

func TestQueryErrorOnWithWithoutConflict(t *testing.T) {
	reg := layout.NewRegistry()
	w := NewWorld(reg)
	a := layout.TypeLayout{Name: "A", Inner: layout.Struct{}}

	_, err := w.Query(Union{Children: []Access{
		With{Layout: a, Child: None{}},
		Without{Layout: a, Child: None{}},
	}})
	if err == nil {
		t.Fatal("expected a With/Without conflict on the same layout to be a QueryError")
	}
}

func TestSetMigratesEntityBetweenArchetypes(t *testing.T) {
	reg := layout.NewRegistry()
	w := NewWorld(reg)
	aID := reg.Intern(layout.TypeLayout{Name: "A", Inner: layout.Struct{}})
	bID := reg.Intern(layout.TypeLayout{Name: "B", Inner: layout.Struct{}})

	id, err := w.Spawn([]ComponentValue{{Layout: aID, Bytes: []byte{1}}})
	if err != nil {
		t.Fatal(err)
	}
	if err := w.Set(id, bID, []byte{2}); err != nil {
		t.Fatal(err)
	}

	data, found, err := w.Get(id, bID)
	if err != nil {
		t.Fatal(err)
	}
	if !found || len(data) != 1 || data[0] != 2 {
		t.Fatalf("expected migrated component B to be readable, got found=%v data=%v", found, data)
	}
	data, found, err = w.Get(id, aID)
	if err != nil {
		t.Fatal(err)
	}
	if !found || data[0] != 1 {
		t.Fatalf("expected original component A to survive migration, got found=%v data=%v", found, data)
	}
}
