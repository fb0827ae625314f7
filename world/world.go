// Package world implements the dynamic typed ECS backing the host-side
// world RPCs: an archetype-based entity store keyed by sets of
// layout.ID, with compositional query access trees compiled into column
// read/write/filter sets.
package world

import (
	"sort"
	"strconv"
	"strings"

	"github.com/gogpu/quillhost/layout"
	"github.com/gogpu/quillhost/rpc"
)

// EntityID is a process-unique generational id: Index names a slot,
// Generation invalidates it once the slot is reused after a despawn.
type EntityID struct {
	Index      uint32 `cbor:"index"`
	Generation uint32 `cbor:"generation"`
}

// ComponentValue is one (layout, bytes) pair as shipped across the
// boundary, before it is stored in a column.
type ComponentValue struct {
	Layout layout.ID `cbor:"layout"`
	Bytes  []byte    `cbor:"bytes"`
}

// Entity is the wire shape of world_spawn's argument: a bag of
// components, at most one per LayoutId.
type Entity struct {
	Components []ComponentValue `cbor:"components"`
}

type entityMeta struct {
	generation uint32
	archIndex  int
	row        int
	alive      bool
}

// archetype holds column-oriented storage for every entity sharing one
// signature (sorted set of layout.IDs). Row i of every column and of
// entities corresponds to the same entity.
type archetype struct {
	index        int
	signature    []layout.ID
	signatureSet map[layout.ID]bool
	columns      map[layout.ID][][]byte
	entities     []EntityID
}

// World is the host-side entity store: a sparse EntityId → {LayoutId →
// bytes} mapping, physically a set of archetypes. Created on plugin
// load, dropped on plugin unload; mutated only by the single driver
// thread owning the plugin.
type World struct {
	registry   *layout.Registry
	archetypes []*archetype
	byKey      map[string]*archetype
	meta       []entityMeta
	freeList   []uint32
	declared   []Access
}

// NewWorld creates an empty World backed by registry for interning the
// TypeLayouts carried by components and query access trees.
func NewWorld(registry *layout.Registry) *World {
	return &World{registry: registry, byKey: make(map[string]*archetype)}
}

// Spawn inserts a new entity with the given components, migrating it
// into (or creating) the archetype matching its signature.
func (w *World) Spawn(components []ComponentValue) (EntityID, error) {
	seen := make(map[layout.ID]bool, len(components))
	sig := make([]layout.ID, 0, len(components))
	for _, c := range components {
		if seen[c.Layout] {
			return EntityID{}, &rpc.ProtocolError{Op: "duplicate component layout in spawned entity"}
		}
		seen[c.Layout] = true
		sig = append(sig, c.Layout)
	}
	sort.Slice(sig, func(i, j int) bool { return sig[i] < sig[j] })

	arch := w.findOrCreateArchetype(sig)
	row := len(arch.entities)
	for _, c := range components {
		arch.columns[c.Layout] = append(arch.columns[c.Layout], c.Bytes)
	}

	id := w.allocEntity(arch.index, row)
	arch.entities = append(arch.entities, id)
	return id, nil
}

// Despawn removes id from the world, reporting whether it was live. A
// despawned slot's generation is bumped so the same Index never
// revalidates against a stale EntityId.
func (w *World) Despawn(id EntityID) bool {
	m, ok := w.validate(id)
	if !ok {
		return false
	}
	arch := w.archetypes[m.archIndex]
	w.removeRow(arch, m.row)
	m.alive = false
	m.generation++
	w.freeList = append(w.freeList, id.Index)
	return true
}

// Get reads a single component's bytes off id. found is false with a
// nil error when the entity is live but lacks that component; err is a
// NotFoundError only when id itself is stale.
func (w *World) Get(id EntityID, compID layout.ID) (data []byte, found bool, err error) {
	m, ok := w.validate(id)
	if !ok {
		return nil, false, &rpc.NotFoundError{Reason: "stale entity id"}
	}
	arch := w.archetypes[m.archIndex]
	col, ok := arch.columns[compID]
	if !ok {
		return nil, false, nil
	}
	return col[m.row], true, nil
}

// Set writes a single component's bytes on id, migrating the entity to
// a new archetype if it doesn't already carry compID.
func (w *World) Set(id EntityID, compID layout.ID, data []byte) error {
	m, ok := w.validate(id)
	if !ok {
		return &rpc.NotFoundError{Reason: "stale entity id"}
	}
	arch := w.archetypes[m.archIndex]
	if col, ok := arch.columns[compID]; ok {
		col[m.row] = data
		return nil
	}

	newSig := append(append([]layout.ID(nil), arch.signature...), compID)
	sort.Slice(newSig, func(i, j int) bool { return newSig[i] < newSig[j] })
	newArch := w.findOrCreateArchetype(newSig)
	newRow := len(newArch.entities)
	for layoutID, col := range arch.columns {
		newArch.columns[layoutID] = append(newArch.columns[layoutID], col[m.row])
	}
	newArch.columns[compID] = append(newArch.columns[compID], data)
	newArch.entities = append(newArch.entities, id)

	w.removeRow(arch, m.row)
	m.archIndex = newArch.index
	m.row = newRow
	return nil
}

// RegisterSystem records the Access patterns a guest declares it will
// query during its lifetime. Purely advisory bookkeeping — see
// DeclaredAccesses — since query execution is already serialized by the
// single-threaded-per-plugin driver model.
func (w *World) RegisterSystem(accesses []Access) {
	w.declared = append(w.declared, accesses...)
}

// DeclaredAccesses returns every Access pattern registered so far via
// RegisterSystem.
func (w *World) DeclaredAccesses() []Access {
	out := make([]Access, len(w.declared))
	copy(out, w.declared)
	return out
}

func (w *World) validate(id EntityID) (*entityMeta, bool) {
	if int(id.Index) >= len(w.meta) {
		return nil, false
	}
	m := &w.meta[id.Index]
	if !m.alive || m.generation != id.Generation {
		return nil, false
	}
	return m, true
}

func (w *World) allocEntity(archIndex, row int) EntityID {
	if n := len(w.freeList); n > 0 {
		idx := w.freeList[n-1]
		w.freeList = w.freeList[:n-1]
		m := &w.meta[idx]
		m.alive = true
		m.archIndex = archIndex
		m.row = row
		return EntityID{Index: idx, Generation: m.generation}
	}
	idx := uint32(len(w.meta))
	w.meta = append(w.meta, entityMeta{archIndex: archIndex, row: row, alive: true})
	return EntityID{Index: idx, Generation: 0}
}

// removeRow swap-removes row from arch, fixing up the meta of whatever
// entity (if any) was moved into its place.
func (w *World) removeRow(arch *archetype, row int) {
	lastRow := len(arch.entities) - 1
	if row != lastRow {
		moved := arch.entities[lastRow]
		arch.entities[row] = moved
		for id, col := range arch.columns {
			col[row] = col[lastRow]
			arch.columns[id] = col[:lastRow]
		}
		w.meta[moved.Index].row = row
	} else {
		for id, col := range arch.columns {
			arch.columns[id] = col[:lastRow]
		}
	}
	arch.entities = arch.entities[:lastRow]
}

func (w *World) findOrCreateArchetype(sig []layout.ID) *archetype {
	key := archetypeKey(sig)
	if a, ok := w.byKey[key]; ok {
		return a
	}
	a := &archetype{
		index:        len(w.archetypes),
		signature:    sig,
		signatureSet: make(map[layout.ID]bool, len(sig)),
		columns:      make(map[layout.ID][][]byte, len(sig)),
	}
	for _, id := range sig {
		a.signatureSet[id] = true
		a.columns[id] = nil
	}
	w.archetypes = append(w.archetypes, a)
	w.byKey[key] = a
	return a
}

func archetypeKey(sig []layout.ID) string {
	var b strings.Builder
	for i, id := range sig {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(strconv.FormatUint(uint64(id), 10))
	}
	return b.String()
}
