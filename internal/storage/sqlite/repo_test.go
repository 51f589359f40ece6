package sqlite

import (
	"strings"
	"testing"

	"foodfacts/internal/storage"
)

func TestBuildUpsertSQL(t *testing.T) {
	t.Parallel()

	sql, err := buildUpsertSQL("store", "name", []string{"name"})
	if err != nil {
		t.Fatalf("buildUpsertSQL: %v", err)
	}
	want := `INSERT INTO "store" ("name") VALUES (?)` +
		` ON CONFLICT("name") DO UPDATE SET "name" = excluded."name" RETURNING "id_store"`
	if sql != want {
		t.Fatalf("sql = %q, want %q", sql, want)
	}
}

func TestBuildLinkSQL(t *testing.T) {
	t.Parallel()

	sql := buildLinkSQL("product_store", "id_store", "id_product")
	want := `INSERT OR IGNORE INTO "product_store" ("id_store", "id_product") VALUES (?, ?)`
	if sql != want {
		t.Fatalf("sql = %q, want %q", sql, want)
	}
}

func TestBuildCreateTableSQL_MapsSerialToIntegerPrimaryKey(t *testing.T) {
	t.Parallel()

	sql, err := buildCreateTableSQL(storage.Schema()[1]) // category
	if err != nil {
		t.Fatalf("buildCreateTableSQL: %v", err)
	}
	if !strings.Contains(sql, `"id_category" INTEGER PRIMARY KEY`) {
		t.Fatalf("expected rowid-aliasing primary key:\n%s", sql)
	}
	if !strings.Contains(sql, `UNIQUE ("name")`) {
		t.Fatalf("expected unique name constraint:\n%s", sql)
	}
}
