package plan

import (
	"fmt"
	"testing"
)

func pgIdentTest(s string) string        { return `"` + s + `"` }
func pgPlaceholderTest(n int) string     { return fmt.Sprintf("$%d", n) }
func sqlitePlaceholderTest(_ int) string { return "?" }

func TestRenderSelect_PlainDistinct(t *testing.T) {
	q := SelectQuery{
		Table:    "product",
		Columns:  []string{"name", "nutriscore", "url"},
		Distinct: true,
	}

	sql, args := RenderSelect(q, pgIdentTest, pgPlaceholderTest)
	want := `SELECT DISTINCT "product"."name", "product"."nutriscore", "product"."url" FROM "product"`
	if sql != want {
		t.Fatalf("sql = %q, want %q", sql, want)
	}
	if len(args) != 0 {
		t.Fatalf("expected no args, got %v", args)
	}
}

func TestRenderSelect_WhereBindsParameter(t *testing.T) {
	q := SelectQuery{
		Table:   "product",
		Columns: []string{"name"},
		Where:   &Where{Column: "name", Value: "O'Muesli"},
	}

	sql, args := RenderSelect(q, pgIdentTest, pgPlaceholderTest)
	want := `SELECT "product"."name" FROM "product" WHERE "product"."name" = $1`
	if sql != want {
		t.Fatalf("sql = %q, want %q", sql, want)
	}
	if len(args) != 1 || args[0] != "O'Muesli" {
		t.Fatalf("args = %v", args)
	}
}

func TestRenderSelect_JoinWhereOrder(t *testing.T) {
	q := SelectQuery{
		Table:    "product",
		Columns:  []string{"name"},
		Distinct: true,
		Join:     &Join{Table: "product_category", OnColumn: "id_product"},
		Where:    &Where{Table: "product_category", Column: "id_category", Value: int64(9)},
		OrderBy:  "name",
	}

	sql, args := RenderSelect(q, pgIdentTest, sqlitePlaceholderTest)
	want := `SELECT DISTINCT "product"."name" FROM "product"` +
		` INNER JOIN "product_category" ON "product_category"."id_product" = "product"."id_product"` +
		` WHERE "product_category"."id_category" = ?` +
		` ORDER BY "product"."name"`
	if sql != want {
		t.Fatalf("sql = %q, want %q", sql, want)
	}
	if len(args) != 1 || args[0] != int64(9) {
		t.Fatalf("args = %v", args)
	}
}
