package postgres

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"foodfacts/internal/plan"
	"foodfacts/internal/storage"
)

// Repo implements storage.Repository for Postgres.
//
// Upserts use INSERT ... ON CONFLICT (name) DO UPDATE ... RETURNING so a
// duplicate name updates the row in place while still yielding its id;
// association inserts use ON CONFLICT DO NOTHING. Both shapes are built
// by pure functions so their text can be unit tested without a database.
type Repo struct {
	pool *pgxpool.Pool
}

func init() {
	storage.Register("postgres", New)
}

// New creates a new Postgres-backed Repo.
func New(ctx context.Context, cfg storage.Config) (storage.Repository, error) {
	pool, err := pgxpool.New(ctx, cfg.DSN)
	if err != nil {
		return nil, err
	}
	return &Repo{pool: pool}, nil
}

// Close closes the connection pool.
func (r *Repo) Close() {
	r.pool.Close()
}

// EnsureTables creates tables idempotently (CREATE TABLE IF NOT EXISTS).
func (r *Repo) EnsureTables(ctx context.Context, tables []storage.TableSpec) error {
	for _, t := range tables {
		ddl, err := buildCreateTableSQL(t)
		if err != nil {
			return err
		}
		if _, err := r.pool.Exec(ctx, ddl); err != nil {
			return fmt.Errorf("create table %s: %w", t.Name, err)
		}
	}
	return nil
}

// Begin opens one transaction on one pooled connection. The whole batch
// must run inside it so the upsert-to-link identifier hand-off stays on
// a single session.
func (r *Repo) Begin(ctx context.Context) (storage.Tx, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	return &repoTx{tx: tx}, nil
}

// SelectRow executes a read and returns the first matching row, or
// (nil, nil, nil) when nothing matches.
func (r *Repo) SelectRow(ctx context.Context, q plan.SelectQuery) ([]string, []any, error) {
	sql, args := plan.RenderSelect(q, pgIdent, pgPlaceholder)

	rows, err := r.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, nil, err
	}
	defer rows.Close()

	if !rows.Next() {
		return nil, nil, rows.Err()
	}

	values, err := rows.Values()
	if err != nil {
		return nil, nil, err
	}
	return append([]string(nil), q.Columns...), values, rows.Err()
}

type repoTx struct {
	tx pgx.Tx
}

func (t *repoTx) UpsertReturningID(ctx context.Context, table, keyColumn string, columns []string, values []any) (int64, error) {
	sql, err := buildUpsertSQL(table, keyColumn, columns)
	if err != nil {
		return 0, err
	}

	var id int64
	if err := t.tx.QueryRow(ctx, sql, values...).Scan(&id); err != nil {
		return 0, fmt.Errorf("upsert %s: %w", table, err)
	}
	return id, nil
}

func (t *repoTx) InsertLinkIgnore(ctx context.Context, table, leftColumn string, leftID int64, rightColumn string, rightID int64) error {
	sql := buildLinkSQL(table, leftColumn, rightColumn)
	if _, err := t.tx.Exec(ctx, sql, leftID, rightID); err != nil {
		return fmt.Errorf("link %s: %w", table, err)
	}
	return nil
}

func (t *repoTx) Commit(ctx context.Context) error   { return t.tx.Commit(ctx) }
func (t *repoTx) Rollback(ctx context.Context) error { return t.tx.Rollback(ctx) }

// buildUpsertSQL constructs the upsert-returning-id statement.
//
// The DO UPDATE arm rewrites the key column to itself: a no-op change
// that still makes RETURNING yield the existing row's id (DO NOTHING
// returns no row at all).
func buildUpsertSQL(table, keyColumn string, columns []string) (string, error) {
	if table == "" || keyColumn == "" {
		return "", fmt.Errorf("buildUpsertSQL: table and keyColumn are required")
	}
	if len(columns) == 0 {
		return "", fmt.Errorf("buildUpsertSQL: table %s: columns is empty", table)
	}

	var b strings.Builder
	b.WriteString("INSERT INTO ")
	b.WriteString(pgIdent(table))
	b.WriteString(" (")
	for i, c := range columns {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(pgIdent(c))
	}
	b.WriteString(") VALUES (")
	for i := range columns {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(pgPlaceholder(i + 1))
	}
	b.WriteString(") ON CONFLICT (")
	b.WriteString(pgIdent(keyColumn))
	b.WriteString(") DO UPDATE SET ")
	b.WriteString(pgIdent(keyColumn))
	b.WriteString(" = excluded.")
	b.WriteString(pgIdent(keyColumn))
	b.WriteString(" RETURNING ")
	b.WriteString(pgIdent("id_" + table))

	return b.String(), nil
}

// buildLinkSQL constructs the idempotent association insert.
func buildLinkSQL(table, leftColumn, rightColumn string) string {
	return fmt.Sprintf(
		"INSERT INTO %s (%s, %s) VALUES ($1, $2) ON CONFLICT DO NOTHING",
		pgIdent(table), pgIdent(leftColumn), pgIdent(rightColumn),
	)
}

// buildCreateTableSQL renders CREATE TABLE IF NOT EXISTS for a spec.
func buildCreateTableSQL(t storage.TableSpec) (string, error) {
	if strings.TrimSpace(t.Name) == "" {
		return "", fmt.Errorf("buildCreateTableSQL: table name is empty")
	}

	cols := make([]string, 0, len(t.Columns)+2)

	if t.PrimaryKey != nil {
		pkType, err := pgPrimaryKeyType(t.PrimaryKey.Type)
		if err != nil {
			return "", fmt.Errorf("table %s: %w", t.Name, err)
		}
		cols = append(cols, fmt.Sprintf("%s %s PRIMARY KEY", pgIdent(t.PrimaryKey.Name), pkType))
	}

	for _, c := range t.Columns {
		colType, err := pgColumnType(c.Type)
		if err != nil {
			return "", fmt.Errorf("table %s column %s: %w", t.Name, c.Name, err)
		}
		def := pgIdent(c.Name) + " " + colType
		if !c.Nullable {
			def += " NOT NULL"
		}
		if c.References != "" {
			refTable, refColumn, err := storage.SplitReference(c.References)
			if err != nil {
				return "", fmt.Errorf("table %s column %s: %w", t.Name, c.Name, err)
			}
			def += fmt.Sprintf(" REFERENCES %s (%s)", pgIdent(refTable), pgIdent(refColumn))
		}
		cols = append(cols, def)
	}

	for _, cons := range t.Constraints {
		if cons.Kind != "unique" {
			return "", fmt.Errorf("table %s: unsupported constraint kind %q", t.Name, cons.Kind)
		}
		quoted := make([]string, len(cons.Columns))
		for i, c := range cons.Columns {
			quoted[i] = pgIdent(c)
		}
		cols = append(cols, fmt.Sprintf("UNIQUE (%s)", strings.Join(quoted, ", ")))
	}

	return fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (%s);", pgIdent(t.Name), strings.Join(cols, ", ")), nil
}

func pgPrimaryKeyType(kind string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(kind)) {
	case "serial":
		return "SERIAL", nil
	case "bigserial":
		return "BIGSERIAL", nil
	default:
		return "", fmt.Errorf("unsupported primary key type %q", kind)
	}
}

func pgColumnType(kind string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(kind)) {
	case "text":
		return "TEXT", nil
	case "integer":
		return "INTEGER", nil
	case "bigint":
		return "BIGINT", nil
	default:
		return "", fmt.Errorf("unsupported column type %q", kind)
	}
}

func pgIdent(id string) string {
	return `"` + strings.ReplaceAll(id, `"`, `""`) + `"`
}

func pgPlaceholder(n int) string {
	return fmt.Sprintf("$%d", n)
}
