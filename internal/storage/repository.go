package storage

import (
	"context"
	"fmt"
	"sync"

	"foodfacts/internal/plan"
)

// Config is the minimal configuration needed to create a repository.
//
// Kind must match a registered backend kind; DSN is passed through to
// the backend factory and validated there.
type Config struct {
	Kind string
	DSN  string
}

// Repository is the backend-agnostic persistence interface the batch
// executor and row reader depend on.
//
// IMPORTANT: This interface is intentionally minimal and focused on the
// operations the entity pipeline needs. Each backend implements these
// semantics in its own idiomatic way (Postgres ON CONFLICT, SQLite
// OR IGNORE, SQL Server IF NOT EXISTS, etc).
type Repository interface {
	// Close releases backend resources. Treat as "call once" at shutdown.
	Close()

	// EnsureTables creates the schema idempotently (create-if-not-exists).
	EnsureTables(ctx context.Context, tables []TableSpec) error

	// Begin opens one transaction on one connection. The executor runs a
	// whole flattened batch inside it; identifier hand-off between an
	// upsert and its dependent link insert is only valid within this
	// single uninterrupted session.
	Begin(ctx context.Context) (Tx, error)

	// SelectRow executes a read and returns the FIRST matching row as
	// parallel column/value slices, or (nil, nil, nil) when no row
	// matches. Returning only the first row is the documented contract
	// of the read path.
	SelectRow(ctx context.Context, q plan.SelectQuery) (columns []string, values []any, err error)
}

// Tx is a single-connection transaction scope for one batch.
type Tx interface {
	// UpsertReturningID inserts a row or, on a unique-key conflict on
	// keyColumn, updates it in place, and returns the row's synthetic id
	// either way. Values are always bound parameters.
	UpsertReturningID(ctx context.Context, table, keyColumn string, columns []string, values []any) (int64, error)

	// InsertLinkIgnore inserts one association row, silently ignoring an
	// already-existing (leftID, rightID) pair.
	InsertLinkIgnore(ctx context.Context, table, leftColumn string, leftID int64, rightColumn string, rightID int64) error

	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

// ---- backend factories (kind-keyed, registered from init functions) ----

type factory func(ctx context.Context, cfg Config) (Repository, error)

var (
	mu        sync.RWMutex
	factories = map[string]factory{}
)

// Register registers a backend under a kind (e.g. "postgres", "sqlite").
//
// Call Register from an init() function in a backend package. Registering
// the same kind twice panics: fail fast rather than allow ambiguous
// backend selection.
func Register(kind string, f factory) {
	mu.Lock()
	defer mu.Unlock()

	if kind == "" {
		panic("storage: Register called with empty kind")
	}
	if f == nil {
		panic("storage: Register called with nil factory")
	}
	if _, exists := factories[kind]; exists {
		panic(fmt.Sprintf("storage: factory already registered for kind=%q", kind))
	}

	factories[kind] = f
}

// New constructs a Repository using the registered backend factory.
//
// Errors:
//   - Returns an error if cfg.Kind is empty or unsupported.
//   - Returns whatever error the registered factory returns.
func New(ctx context.Context, cfg Config) (Repository, error) {
	if cfg.Kind == "" {
		return nil, fmt.Errorf("storage: missing storage.Kind")
	}

	mu.RLock()
	f := factories[cfg.Kind]
	mu.RUnlock()

	if f == nil {
		return nil, fmt.Errorf("unsupported storage.kind=%s", cfg.Kind)
	}
	return f(ctx, cfg)
}
