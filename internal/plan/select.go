package plan

import "strings"

// Join describes an inner join on a column shared by both tables
// (typically an association table joined through "id_<table>").
type Join struct {
	Table    string
	OnColumn string
}

// Where is a single equality filter. Table may differ from the anchor
// table when filtering through a join. Value is always bound as a
// parameter, never spliced into the statement text.
type Where struct {
	Table  string
	Column string
	Value  any
}

// SelectQuery describes a read of zero or one entity row.
//
// Columns defaults to the anchor table's own columns as provided by the
// caller; the executor zips returned columns to values and feeds the
// result to the entity factory.
type SelectQuery struct {
	Table    string
	Columns  []string
	Distinct bool
	Join     *Join
	Where    *Where
	OrderBy  string
}

// RenderSelect renders a SelectQuery into SQL text plus bound args.
//
// ident quotes one identifier and placeholder renders the 1-based n-th
// parameter marker; both are supplied by the backend so the same query
// model serves Postgres ($1), SQLite (?) and SQL Server (@p1).
func RenderSelect(q SelectQuery, ident func(string) string, placeholder func(n int) string) (string, []any) {
	var b strings.Builder
	var args []any

	b.WriteString("SELECT ")
	if q.Distinct {
		b.WriteString("DISTINCT ")
	}
	for i, c := range q.Columns {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(ident(q.Table))
		b.WriteString(".")
		b.WriteString(ident(c))
	}

	b.WriteString(" FROM ")
	b.WriteString(ident(q.Table))

	if q.Join != nil {
		b.WriteString(" INNER JOIN ")
		b.WriteString(ident(q.Join.Table))
		b.WriteString(" ON ")
		b.WriteString(ident(q.Join.Table))
		b.WriteString(".")
		b.WriteString(ident(q.Join.OnColumn))
		b.WriteString(" = ")
		b.WriteString(ident(q.Table))
		b.WriteString(".")
		b.WriteString(ident(q.Join.OnColumn))
	}

	if q.Where != nil {
		whereTable := q.Where.Table
		if whereTable == "" {
			whereTable = q.Table
		}
		b.WriteString(" WHERE ")
		b.WriteString(ident(whereTable))
		b.WriteString(".")
		b.WriteString(ident(q.Where.Column))
		b.WriteString(" = ")
		args = append(args, q.Where.Value)
		b.WriteString(placeholder(len(args)))
	}

	if q.OrderBy != "" {
		b.WriteString(" ORDER BY ")
		b.WriteString(ident(q.Table))
		b.WriteString(".")
		b.WriteString(ident(q.OrderBy))
	}

	return b.String(), args
}
