package world

import (
	"github.com/gogpu/quillhost/layout"
	"github.com/gogpu/quillhost/rpc"
)

// compiledQuery is the lowered form of an Access tree: the three
// disjoint sets required_read/required_write/required_with, the
// forbidden set, and the optional set, plus the left-to-right order
// Read/Write nodes appeared in so row tuples come back in the same
// order the guest asked for them.
type compiledQuery struct {
	readOrder    []layout.ID
	writeOrder   []layout.ID
	requiredWith map[layout.ID]bool
	forbidden    map[layout.ID]bool
	optional     map[layout.ID]bool
	requiredAll  map[layout.ID]bool // read ∪ write ∪ with, minus optional — used for archetype matching
}

func compileAccess(reg *layout.Registry, access Access) (*compiledQuery, error) {
	c := &compiledQuery{
		requiredWith: make(map[layout.ID]bool),
		forbidden:    make(map[layout.ID]bool),
		optional:     make(map[layout.ID]bool),
	}
	walkAccess(reg, access, c, false)

	writeSet := make(map[layout.ID]bool, len(c.writeOrder))
	dedupedWrite := c.writeOrder[:0:0]
	for _, id := range c.writeOrder {
		if writeSet[id] {
			continue
		}
		writeSet[id] = true
		dedupedWrite = append(dedupedWrite, id)
	}
	c.writeOrder = dedupedWrite

	// A layout appearing in both required_read and required_write
	// collapses to write-only: a column already held exclusively has
	// nothing left for a shared read to add.
	dedupedRead := c.readOrder[:0:0]
	seenRead := make(map[layout.ID]bool, len(c.readOrder))
	for _, id := range c.readOrder {
		if writeSet[id] || seenRead[id] {
			continue
		}
		seenRead[id] = true
		dedupedRead = append(dedupedRead, id)
	}
	c.readOrder = dedupedRead

	c.requiredAll = make(map[layout.ID]bool, len(c.readOrder)+len(c.writeOrder)+len(c.requiredWith))
	for _, id := range c.readOrder {
		if !c.optional[id] {
			c.requiredAll[id] = true
		}
	}
	for _, id := range c.writeOrder {
		if !c.optional[id] {
			c.requiredAll[id] = true
		}
	}
	for id := range c.requiredWith {
		if !c.optional[id] {
			c.requiredAll[id] = true
		}
	}

	for id := range c.requiredWith {
		if c.forbidden[id] {
			return nil, &rpc.QueryError{Reason: "layout required by With and excluded by Without in the same query"}
		}
	}

	return c, nil
}

func walkAccess(reg *layout.Registry, node Access, c *compiledQuery, optional bool) {
	switch n := node.(type) {
	case None:
	case Read:
		id := reg.Intern(n.Layout)
		c.readOrder = append(c.readOrder, id)
		if optional {
			c.optional[id] = true
		}
	case Write:
		id := reg.Intern(n.Layout)
		c.writeOrder = append(c.writeOrder, id)
		if optional {
			c.optional[id] = true
		}
	case Optional:
		walkAccess(reg, n.Child, c, true)
	case With:
		id := reg.Intern(n.Layout)
		c.requiredWith[id] = true
		walkAccess(reg, n.Child, c, optional)
	case Without:
		id := reg.Intern(n.Layout)
		c.forbidden[id] = true
		walkAccess(reg, n.Child, c, optional)
	case Union:
		for _, child := range n.Children {
			walkAccess(reg, child, c, optional)
		}
	}
}

func (c *compiledQuery) matches(signature map[layout.ID]bool) bool {
	for id := range c.requiredAll {
		if !signature[id] {
			return false
		}
	}
	for id := range c.forbidden {
		if signature[id] {
			return false
		}
	}
	return true
}

// Row is one result row of a query: the entity it belongs to, its read
// columns in tree order (Immutable) and its write columns in tree order
// (Mutable). A nil entry at an Optional position means the column was
// absent on that entity.
type Row struct {
	Entity    EntityID
	Immutable [][]byte
	Mutable   [][]byte

	archIndex int
	row       int
}

// QueryResult is the full result of world_query: every matching row,
// plus bookkeeping Commit needs to write Mutable values back.
type QueryResult struct {
	Rows       []Row
	WriteOrder []layout.ID
}

// Query lowers access into a compiledQuery and iterates every matching
// archetype, yielding one Row per live entity.
func (w *World) Query(access Access) (*QueryResult, error) {
	compiled, err := compileAccess(w.registry, access)
	if err != nil {
		return nil, err
	}

	result := &QueryResult{WriteOrder: compiled.writeOrder}
	for archIndex, arch := range w.archetypes {
		if !compiled.matches(arch.signatureSet) {
			continue
		}
		for row := range arch.entities {
			immut := make([][]byte, len(compiled.readOrder))
			for i, id := range compiled.readOrder {
				if col, ok := arch.columns[id]; ok {
					immut[i] = col[row]
				}
			}
			mut := make([][]byte, len(compiled.writeOrder))
			for i, id := range compiled.writeOrder {
				if col, ok := arch.columns[id]; ok {
					mut[i] = col[row]
				}
			}
			result.Rows = append(result.Rows, Row{
				Entity:    arch.entities[row],
				Immutable: immut,
				Mutable:   mut,
				archIndex: archIndex,
				row:       row,
			})
		}
	}
	return result, nil
}

// Commit writes every row's Mutable values back into the world's
// storage. Write queries are snapshot-style: a guest that mutated rows
// must commit them explicitly before the changes take effect.
func (w *World) Commit(result *QueryResult) error {
	for _, row := range result.Rows {
		if row.archIndex < 0 || row.archIndex >= len(w.archetypes) {
			return &rpc.NotFoundError{Reason: "commit references an archetype that no longer exists"}
		}
		arch := w.archetypes[row.archIndex]
		for i, id := range result.WriteOrder {
			if i >= len(row.Mutable) {
				break
			}
			if col, ok := arch.columns[id]; ok && row.row < len(col) {
				col[row.row] = row.Mutable[i]
			}
		}
	}
	return nil
}
