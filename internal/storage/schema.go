// TableSpec lives here so backend packages can share the schema model
// without circular imports.
package storage

import (
	"fmt"
	"strings"
)

// TableSpec describes one destination table.
type TableSpec struct {
	Name        string
	PrimaryKey  *PrimaryKeySpec
	Columns     []ColumnSpec
	Constraints []ConstraintSpec
}

// PrimaryKeySpec is a synthetic auto-generated identifier column.
type PrimaryKeySpec struct {
	Name string
	Type string // "serial" | "bigserial"
}

type ColumnSpec struct {
	Name       string
	Type       string // "text" | "integer" | "bigint"
	References string // "<table>.<column>" for association foreign keys
	Nullable   bool
}

type ConstraintSpec struct {
	Kind    string // "unique"
	Columns []string
}

// SplitReference splits a "<table>.<column>" reference.
func SplitReference(ref string) (table, column string, err error) {
	parts := strings.SplitN(ref, ".", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("malformed reference %q, want \"table.column\"", ref)
	}
	return parts[0], parts[1], nil
}

// Schema returns the five tables of the catalog schema in
// parent-tables-first order: product, category, store, then the two
// association tables keyed by the (id_product, id_<dim>) pair.
//
// Every entity table carries a natural unique key on name, which is
// what makes the upsert path idempotent.
func Schema() []TableSpec {
	return []TableSpec{
		{
			Name:       "product",
			PrimaryKey: &PrimaryKeySpec{Name: "id_product", Type: "serial"},
			Columns: []ColumnSpec{
				{Name: "name", Type: "text"},
				{Name: "nutriscore", Type: "integer", Nullable: true},
				{Name: "url", Type: "text", Nullable: true},
			},
			Constraints: []ConstraintSpec{{Kind: "unique", Columns: []string{"name"}}},
		},
		{
			Name:       "category",
			PrimaryKey: &PrimaryKeySpec{Name: "id_category", Type: "serial"},
			Columns: []ColumnSpec{
				{Name: "name", Type: "text"},
			},
			Constraints: []ConstraintSpec{{Kind: "unique", Columns: []string{"name"}}},
		},
		{
			Name:       "store",
			PrimaryKey: &PrimaryKeySpec{Name: "id_store", Type: "serial"},
			Columns: []ColumnSpec{
				{Name: "name", Type: "text"},
			},
			Constraints: []ConstraintSpec{{Kind: "unique", Columns: []string{"name"}}},
		},
		{
			Name: "product_category",
			Columns: []ColumnSpec{
				{Name: "id_category", Type: "integer", References: "category.id_category"},
				{Name: "id_product", Type: "integer", References: "product.id_product"},
			},
			Constraints: []ConstraintSpec{{Kind: "unique", Columns: []string{"id_category", "id_product"}}},
		},
		{
			Name: "product_store",
			Columns: []ColumnSpec{
				{Name: "id_store", Type: "integer", References: "store.id_store"},
				{Name: "id_product", Type: "integer", References: "product.id_product"},
			},
			Constraints: []ConstraintSpec{{Kind: "unique", Columns: []string{"id_store", "id_product"}}},
		},
	}
}
