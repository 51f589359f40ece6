package mssql

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	_ "github.com/microsoft/go-mssqldb"

	"foodfacts/internal/plan"
	"foodfacts/internal/storage"
)

// Repo implements storage.Repository for Microsoft SQL Server.
//
// SQL Server has no ON CONFLICT clause, so the upsert runs as a small
// T-SQL batch: UPDATE the keyed row, INSERT when @@ROWCOUNT says the
// update touched nothing, then SELECT the row's identity. The batch
// executes on the transaction's connection, so the id read is
// consistent with the write. Association inserts use an
// IF NOT EXISTS guard instead of MERGE.
type Repo struct {
	db *sql.DB
}

func init() {
	storage.Register("mssql", New)
}

// New constructs a Repo using database/sql and the "sqlserver" driver.
func New(ctx context.Context, cfg storage.Config) (storage.Repository, error) {
	db, err := sql.Open("sqlserver", cfg.DSN)
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

// EnsureTables creates tables idempotently. SQL Server has no
// CREATE TABLE IF NOT EXISTS, so each statement carries an OBJECT_ID
// guard instead.
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
	query, args := plan.RenderSelect(q, mssqlIdent, mssqlPlaceholder)

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

func (t *repoTx) Commit(ctx context.Context) error   { return t.tx.Commit() }
func (t *repoTx) Rollback(ctx context.Context) error { return t.tx.Rollback() }

// buildUpsertSQL constructs the update-then-insert batch.
//
// The key value binds once as an ordinal parameter and is referenced
// three times (UPDATE predicate, INSERT value list, final SELECT), so
// the whole batch stays fully parameterized.
func buildUpsertSQL(table, keyColumn string, columns []string) (string, error) {
	if table == "" || keyColumn == "" {
		return "", fmt.Errorf("buildUpsertSQL: table and keyColumn are required")
	}
	if len(columns) == 0 {
		return "", fmt.Errorf("buildUpsertSQL: table %s: columns is empty", table)
	}

	keyIdx := -1
	for i, c := range columns {
		if strings.EqualFold(c, keyColumn) {
			keyIdx = i
		}
	}
	if keyIdx < 0 {
		return "", fmt.Errorf("buildUpsertSQL: table %s: key column %s not in columns", table, keyColumn)
	}
	keyParam := mssqlPlaceholder(keyIdx + 1)

	var b strings.Builder
	b.WriteString("UPDATE ")
	b.WriteString(mssqlIdent(table))
	b.WriteString(" SET ")
	for i, c := range columns {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(mssqlIdent(c))
		b.WriteString(" = ")
		b.WriteString(mssqlPlaceholder(i + 1))
	}
	b.WriteString(" WHERE ")
	b.WriteString(mssqlIdent(keyColumn))
	b.WriteString(" = ")
	b.WriteString(keyParam)
	b.WriteString("; IF @@ROWCOUNT = 0 INSERT INTO ")
	b.WriteString(mssqlIdent(table))
	b.WriteString(" (")
	for i, c := range columns {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(mssqlIdent(c))
	}
	b.WriteString(") VALUES (")
	for i := range columns {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(mssqlPlaceholder(i + 1))
	}
	b.WriteString("); SELECT ")
	b.WriteString(mssqlIdent("id_" + table))
	b.WriteString(" FROM ")
	b.WriteString(mssqlIdent(table))
	b.WriteString(" WHERE ")
	b.WriteString(mssqlIdent(keyColumn))
	b.WriteString(" = ")
	b.WriteString(keyParam)

	return b.String(), nil
}

// buildLinkSQL constructs the idempotent association insert.
func buildLinkSQL(table, leftColumn, rightColumn string) string {
	return fmt.Sprintf(
		"IF NOT EXISTS (SELECT 1 FROM %s WHERE %s = @p1 AND %s = @p2)"+
			" INSERT INTO %s (%s, %s) VALUES (@p1, @p2)",
		mssqlIdent(table), mssqlIdent(leftColumn), mssqlIdent(rightColumn),
		mssqlIdent(table), mssqlIdent(leftColumn), mssqlIdent(rightColumn),
	)
}

// buildCreateTableSQL wraps CREATE TABLE in an OBJECT_ID guard, which
// keeps EnsureTables idempotent without IF NOT EXISTS syntax.
func buildCreateTableSQL(t storage.TableSpec) (string, error) {
	if strings.TrimSpace(t.Name) == "" {
		return "", fmt.Errorf("buildCreateTableSQL: table name is empty")
	}

	cols := make([]string, 0, len(t.Columns)+2)

	if t.PrimaryKey != nil {
		pkType, err := mssqlPrimaryKeyType(t.PrimaryKey.Type)
		if err != nil {
			return "", fmt.Errorf("table %s: %w", t.Name, err)
		}
		cols = append(cols, fmt.Sprintf("%s %s PRIMARY KEY", mssqlIdent(t.PrimaryKey.Name), pkType))
	}

	for _, c := range t.Columns {
		colType, err := mssqlColumnType(c.Type)
		if err != nil {
			return "", fmt.Errorf("table %s column %s: %w", t.Name, c.Name, err)
		}
		def := mssqlIdent(c.Name) + " " + colType
		if !c.Nullable {
			def += " NOT NULL"
		}
		if c.References != "" {
			refTable, refColumn, err := storage.SplitReference(c.References)
			if err != nil {
				return "", fmt.Errorf("table %s column %s: %w", t.Name, c.Name, err)
			}
			def += fmt.Sprintf(" REFERENCES %s (%s)", mssqlIdent(refTable), mssqlIdent(refColumn))
		}
		cols = append(cols, def)
	}

	for _, cons := range t.Constraints {
		if cons.Kind != "unique" {
			return "", fmt.Errorf("table %s: unsupported constraint kind %q", t.Name, cons.Kind)
		}
		quoted := make([]string, len(cons.Columns))
		for i, c := range cons.Columns {
			quoted[i] = mssqlIdent(c)
		}
		cols = append(cols, fmt.Sprintf("UNIQUE (%s)", strings.Join(quoted, ", ")))
	}

	return fmt.Sprintf(
		"IF OBJECT_ID(N'%s', N'U') IS NULL BEGIN CREATE TABLE %s (%s); END;",
		t.Name, mssqlIdent(t.Name), strings.Join(cols, ", "),
	), nil
}

func mssqlPrimaryKeyType(kind string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(kind)) {
	case "serial":
		return "INT IDENTITY(1,1)", nil
	case "bigserial":
		return "BIGINT IDENTITY(1,1)", nil
	default:
		return "", fmt.Errorf("unsupported primary key type %q", kind)
	}
}

func mssqlColumnType(kind string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(kind)) {
	case "text":
		// NVARCHAR instead of the deprecated TEXT type; 450 keeps the
		// column eligible for a unique index.
		return "NVARCHAR(450)", nil
	case "integer":
		return "INT", nil
	case "bigint":
		return "BIGINT", nil
	default:
		return "", fmt.Errorf("unsupported column type %q", kind)
	}
}

func mssqlIdent(name string) string {
	return "[" + strings.ReplaceAll(name, "]", "]]") + "]"
}

func mssqlPlaceholder(n int) string {
	return fmt.Sprintf("@p%d", n)
}
