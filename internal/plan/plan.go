// Package plan turns an entity graph into an ordered batch of idempotent
// persistence fragments.
//
// The planner is pure: it never renders backend SQL and never touches a
// database, so ordering and idempotence properties are unit-testable
// without a store. Backends render fragments with their own identifier
// quoting and placeholder styles.
package plan

import (
	"sort"

	"foodfacts/internal/entity"
)

// Ref is an opaque handle for one planned row. Upsert fragments produce
// the row id for their Ref; link fragments consume the ids of their two
// endpoint Refs. This explicit threading replaces hidden session-variable
// state inside the database connection.
type Ref int

// Op discriminates fragment kinds.
type Op int

const (
	// OpUpsert inserts the entity's own row, or updates it in place on a
	// unique-key conflict, recovering the row id either way.
	OpUpsert Op = iota

	// OpLink inserts one association row, ignoring duplicates.
	OpLink
)

// Fragment is one unit of persistence work prior to flattening.
//
// Rank encodes execution dependencies: an upsert has rank 0; a link
// depends on both endpoint rows and gets rank max(endpoints)+1. Sorting
// fragments by ascending rank yields a valid execution order regardless
// of nesting depth, without relying on the shape of any one traversal.
type Fragment struct {
	Op    Op
	Table string
	Rank  int

	// Upsert fields.
	KeyColumn string
	Columns   []string
	Values    []any
	Ref       Ref

	// Link fields. Left is the child side, Right the parent side.
	LeftColumn  string
	RightColumn string
	Left        Ref
	Right       Ref
}

// Node preserves the recursion shape of a build: the entity's own
// fragments first, then one subtree per child. Nothing is flattened at
// this stage.
type Node struct {
	Fragments []Fragment
	Children  []*Node
}

// Builder expands entities into fragment trees. Refs are allocated per
// Builder, so one Builder must be used for one batch.
type Builder struct {
	next Ref
}

// Build expands one top-level entity (no parent) into its fragment tree.
func (b *Builder) Build(e entity.Entity) *Node {
	return b.build(e, "", 0, 0)
}

func (b *Builder) build(e entity.Entity, parentTable string, parentRef Ref, parentRank int) *Node {
	ref := b.next
	b.next++

	table := string(e.Kind())
	columns, values := e.Row()

	n := &Node{}
	n.Fragments = append(n.Fragments, Fragment{
		Op:        OpUpsert,
		Table:     table,
		Rank:      0,
		KeyColumn: "name",
		Columns:   columns,
		Values:    values,
		Ref:       ref,
	})

	if parentTable != "" {
		rank := parentRank
		if rank < 0 {
			rank = 0
		}
		n.Fragments = append(n.Fragments, Fragment{
			Op:          OpLink,
			Table:       LinkTable(parentTable, table),
			Rank:        rank + 1,
			LeftColumn:  "id_" + table,
			RightColumn: "id_" + parentTable,
			Left:        ref,
			Right:       parentRef,
		})
	}

	for _, child := range e.Children() {
		n.Children = append(n.Children, b.build(child, table, ref, 0))
	}

	return n
}

// LinkTable names the association table between a parent and a child
// entity table, e.g. ("product", "category") -> "product_category".
func LinkTable(parentTable, childTable string) string {
	return parentTable + "_" + childTable
}

// Flatten serializes a nested fragment structure of unknown depth into
// one linear sequence, depth first. The relative order of fragments
// within a node and of sibling subtrees is preserved.
func Flatten(nodes ...*Node) []Fragment {
	var out []Fragment
	for _, n := range nodes {
		out = flattenInto(n, out)
	}
	return out
}

func flattenInto(n *Node, acc []Fragment) []Fragment {
	if n == nil {
		return acc
	}
	acc = append(acc, n.Fragments...)
	for _, c := range n.Children {
		acc = flattenInto(c, acc)
	}
	return acc
}

// Order sorts fragments by ascending dependency rank, stably, so every
// row upsert executes before any link that references its id. This is a
// genuine topological order for the planned shapes, not a reversal of a
// particular traversal.
func Order(frags []Fragment) []Fragment {
	out := append([]Fragment(nil), frags...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Rank < out[j].Rank })
	return out
}
