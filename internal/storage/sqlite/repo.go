package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	_ "modernc.org/sqlite"

	"foodfacts/internal/plan"
	"foodfacts/internal/storage"
)

// Repo implements storage.Repository for SQLite.
//
// Key design points vs Postgres:
//   - SQLite supports ON CONFLICT ... DO UPDATE with RETURNING (3.35+),
//     so the upsert shape matches Postgres with ? placeholders.
//   - The link insert uses INSERT OR IGNORE, which relies on the pair
//     UNIQUE constraint created by EnsureTables.
//   - Synthetic ids use INTEGER PRIMARY KEY so SQLite auto-assigns the
//     rowid; the schema's "serial" columns map to that.
type Repo struct {
	db *sql.DB
}

func init() {
	storage.Register("sqlite", New)
}

func New(ctx context.Context, cfg storage.Config) (storage.Repository, error) {
	db, err := sql.Open("sqlite", cfg.DSN)
	if err != nil {
		return nil, err
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Repo{db: db}, nil
}

func (r *Repo) Close() { _ = r.db.Close() }

// EnsureTables creates the schema idempotently.
func (r *Repo) EnsureTables(ctx context.Context, tables []storage.TableSpec) error {
	for _, t := range tables {
		ddl, err := buildCreateTableSQL(t)
		if err != nil {
			return err
		}
		if _, err := r.db.ExecContext(ctx, ddl); err != nil {
			return fmt.Errorf("create table %s: %w", t.Name, err)
		}
	}
	return nil
}

func (r *Repo) Begin(ctx context.Context) (storage.Tx, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	return &repoTx{tx: tx}, nil
}

// SelectRow returns the first matching row, or (nil, nil, nil) when no
// row matches.
func (r *Repo) SelectRow(ctx context.Context, q plan.SelectQuery) ([]string, []any, error) {
	query, args := plan.RenderSelect(q, sqlIdent, sqlitePlaceholder)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, nil, err
	}
	defer rows.Close()

	if !rows.Next() {
		return nil, nil, rows.Err()
	}

	values := make([]any, len(q.Columns))
	dest := make([]any, len(q.Columns))
	for i := range values {
		dest[i] = &values[i]
	}
	if err := rows.Scan(dest...); err != nil {
		return nil, nil, err
	}
	return append([]string(nil), q.Columns...), values, rows.Err()
}

type repoTx struct {
	tx *sql.Tx
}

func (t *repoTx) UpsertReturningID(ctx context.Context, table, keyColumn string, columns []string, values []any) (int64, error) {
	query, err := buildUpsertSQL(table, keyColumn, columns)
	if err != nil {
		return 0, err
	}

	var id int64
	if err := t.tx.QueryRowContext(ctx, query, values...).Scan(&id); err != nil {
		return 0, fmt.Errorf("upsert %s: %w", table, err)
	}
	return id, nil
}

func (t *repoTx) InsertLinkIgnore(ctx context.Context, table, leftColumn string, leftID int64, rightColumn string, rightID int64) error {
	query := buildLinkSQL(table, leftColumn, rightColumn)
	if _, err := t.tx.ExecContext(ctx, query, leftID, rightID); err != nil {
		return fmt.Errorf("link %s: %w", table, err)
	}
	return nil
}

func (t *repoTx) Commit(ctx context.Context) error { return t.tx.Commit() }

func (t *repoTx) Rollback(ctx context.Context) error { return t.tx.Rollback() }

func buildUpsertSQL(table, keyColumn string, columns []string) (string, error) {
	if table == "" || keyColumn == "" {
		return "", fmt.Errorf("buildUpsertSQL: table and keyColumn are required")
	}
	if len(columns) == 0 {
		return "", fmt.Errorf("buildUpsertSQL: table %s: columns is empty", table)
	}

	var b strings.Builder
	b.WriteString("INSERT INTO ")
	b.WriteString(sqlIdent(table))
	b.WriteString(" (")
	for i, c := range columns {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(sqlIdent(c))
	}
	b.WriteString(") VALUES (")
	for i := range columns {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString("?")
	}
	b.WriteString(") ON CONFLICT(")
	b.WriteString(sqlIdent(keyColumn))
	b.WriteString(") DO UPDATE SET ")
	b.WriteString(sqlIdent(keyColumn))
	b.WriteString(" = excluded.")
	b.WriteString(sqlIdent(keyColumn))
	b.WriteString(" RETURNING ")
	b.WriteString(sqlIdent("id_" + table))

	return b.String(), nil
}

func buildLinkSQL(table, leftColumn, rightColumn string) string {
	return fmt.Sprintf(
		"INSERT OR IGNORE INTO %s (%s, %s) VALUES (?, ?)",
		sqlIdent(table), sqlIdent(leftColumn), sqlIdent(rightColumn),
	)
}

func buildCreateTableSQL(t storage.TableSpec) (string, error) {
	if strings.TrimSpace(t.Name) == "" {
		return "", fmt.Errorf("buildCreateTableSQL: table name is empty")
	}

	cols := make([]string, 0, len(t.Columns)+2)

	if t.PrimaryKey != nil {
		// INTEGER PRIMARY KEY aliases the rowid, which is what makes the
		// id auto-generated.
		cols = append(cols, fmt.Sprintf("%s INTEGER PRIMARY KEY", sqlIdent(t.PrimaryKey.Name)))
	}

	for _, c := range t.Columns {
		colType, err := sqliteColumnType(c.Type)
		if err != nil {
			return "", fmt.Errorf("table %s column %s: %w", t.Name, c.Name, err)
		}
		def := sqlIdent(c.Name) + " " + colType
		if !c.Nullable {
			def += " NOT NULL"
		}
		if c.References != "" {
			refTable, refColumn, err := storage.SplitReference(c.References)
			if err != nil {
				return "", fmt.Errorf("table %s column %s: %w", t.Name, c.Name, err)
			}
			def += fmt.Sprintf(" REFERENCES %s (%s)", sqlIdent(refTable), sqlIdent(refColumn))
		}
		cols = append(cols, def)
	}

	for _, cons := range t.Constraints {
		if cons.Kind != "unique" {
			return "", fmt.Errorf("table %s: unsupported constraint kind %q", t.Name, cons.Kind)
		}
		quoted := make([]string, len(cons.Columns))
		for i, c := range cons.Columns {
			quoted[i] = sqlIdent(c)
		}
		cols = append(cols, fmt.Sprintf("UNIQUE (%s)", strings.Join(quoted, ", ")))
	}

	return fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (%s);", sqlIdent(t.Name), strings.Join(cols, ", ")), nil
}

func sqliteColumnType(kind string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(kind)) {
	case "text":
		return "TEXT", nil
	case "integer", "bigint":
		return "INTEGER", nil
	default:
		return "", fmt.Errorf("unsupported column type %q", kind)
	}
}

func sqlIdent(id string) string {
	// SQLite supports "quoted identifiers"
	return `"` + strings.ReplaceAll(id, `"`, `""`) + `"`
}

func sqlitePlaceholder(_ int) string { return "?" }
