// Package executor runs planned fragment batches against a storage
// backend, one transaction per batch.
package executor

import (
	"context"
	"fmt"
	"log"

	"foodfacts/internal/entity"
	"foodfacts/internal/plan"
	"foodfacts/internal/storage"
)

// Logger is the minimal logging interface used by the executor.
// *log.Logger satisfies this interface.
type Logger interface {
	Printf(format string, v ...any)
}

// StoreError reports which fragment of a batch failed. The batch is
// rolled back as a whole, so a StoreError always means nothing from the
// batch was persisted.
type StoreError struct {
	Table string
	Op    plan.Op
	Err   error
}

func (e *StoreError) Error() string {
	op := "upsert"
	if e.Op == plan.OpLink {
		op = "link"
	}
	return fmt.Sprintf("store %s %s: %v", op, e.Table, e.Err)
}

func (e *StoreError) Unwrap() error { return e.Err }

// Executor persists entity graphs and reads single rows back.
//
// InsertAll is idempotent: replaying the same entities produces the same
// database state, because every row fragment is an upsert and every
// association fragment ignores an existing pair.
type Executor struct {
	Repo   storage.Repository
	Logger Logger
}

// InsertAll persists a batch of top-level entities inside one
// transaction.
//
// The batch is planned first (expand, flatten, order by dependency
// rank), then executed fragment by fragment. Upserts record the id
// produced for their Ref; links resolve both endpoint ids from that
// map, which the rank ordering guarantees are already present. Any
// fragment failure rolls back the whole transaction and surfaces as a
// StoreError.
func (x *Executor) InsertAll(ctx context.Context, entities []entity.Entity) error {
	if x.Repo == nil {
		return fmt.Errorf("executor: Repo is required")
	}
	if len(entities) == 0 {
		return nil
	}

	b := &plan.Builder{}
	nodes := make([]*plan.Node, 0, len(entities))
	for _, e := range entities {
		nodes = append(nodes, b.Build(e))
	}
	frags := plan.Order(plan.Flatten(nodes...))

	tx, err := x.Repo.Begin(ctx)
	if err != nil {
		return fmt.Errorf("executor: begin: %w", err)
	}

	ids := make(map[plan.Ref]int64, len(frags))
	var upserts, links int

	for _, f := range frags {
		switch f.Op {
		case plan.OpUpsert:
			id, err := tx.UpsertReturningID(ctx, f.Table, f.KeyColumn, f.Columns, normalizeKeyValue(f))
			if err != nil {
				_ = tx.Rollback(ctx)
				return &StoreError{Table: f.Table, Op: f.Op, Err: err}
			}
			ids[f.Ref] = id
			upserts++

		case plan.OpLink:
			left, lok := ids[f.Left]
			right, rok := ids[f.Right]
			if !lok || !rok {
				_ = tx.Rollback(ctx)
				return &StoreError{Table: f.Table, Op: f.Op,
					Err: fmt.Errorf("unresolved endpoint refs (left=%v right=%v)", lok, rok)}
			}
			if err := tx.InsertLinkIgnore(ctx, f.Table, f.LeftColumn, left, f.RightColumn, right); err != nil {
				_ = tx.Rollback(ctx)
				return &StoreError{Table: f.Table, Op: f.Op, Err: err}
			}
			links++

		default:
			_ = tx.Rollback(ctx)
			return &StoreError{Table: f.Table, Op: f.Op, Err: fmt.Errorf("unknown fragment op %d", f.Op)}
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("executor: commit: %w", err)
	}
	x.logger()("stage=insert_all ok entities=%d upserts=%d links=%d", len(entities), upserts, links)
	return nil
}

// ReadRow reads one entity of the given kind by name and reconstructs
// it through the factory.
//
// Only the entity's own columns are read; child collections come back
// empty. A missing row is absence, not an error: the result is
// (nil, nil).
func (x *Executor) ReadRow(ctx context.Context, kind entity.Kind, name string) (entity.Entity, error) {
	if x.Repo == nil {
		return nil, fmt.Errorf("executor: Repo is required")
	}

	table, columns, err := tableColumns(kind)
	if err != nil {
		return nil, err
	}

	cols, vals, err := x.Repo.SelectRow(ctx, plan.SelectQuery{
		Table:    table,
		Columns:  columns,
		Distinct: true,
		Where:    &plan.Where{Column: "name", Value: name},
	})
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", table, err)
	}
	if vals == nil {
		return nil, nil
	}

	attrs := make(map[string]any, len(cols))
	for i, c := range cols {
		if vals[i] == nil {
			continue
		}
		attrs[c] = vals[i]
	}
	e, err := entity.New(kind, attrs)
	if err != nil {
		return nil, fmt.Errorf("read %s: rebuild entity: %w", table, err)
	}
	return e, nil
}

// normalizeKeyValue canonicalizes the natural-key value of an upsert
// fragment. The unique constraint on name compares byte-wise, so mixed
// Unicode composition forms of the same name would otherwise produce
// duplicate rows.
func normalizeKeyValue(f plan.Fragment) []any {
	out := append([]any(nil), f.Values...)
	for i, c := range f.Columns {
		if c == f.KeyColumn {
			out[i] = storage.NormalizeKey(out[i])
		}
	}
	return out
}

// tableColumns resolves an entity kind to its table and own columns
// from the shared schema.
func tableColumns(kind entity.Kind) (string, []string, error) {
	for _, t := range storage.Schema() {
		if t.Name != string(kind) {
			continue
		}
		cols := make([]string, 0, len(t.Columns))
		for _, c := range t.Columns {
			cols = append(cols, c.Name)
		}
		return t.Name, cols, nil
	}
	return "", nil, fmt.Errorf("executor: no table for kind %q: %w", kind, entity.ErrUnknownKind)
}

func (x *Executor) logger() func(format string, v ...any) {
	if x.Logger == nil {
		l := log.New(discardWriter{}, "", 0)
		return l.Printf
	}
	return x.Logger.Printf
}

type discardWriter struct{}

func (discardWriter) Write(p []byte) (int, error) { return len(p), nil }
