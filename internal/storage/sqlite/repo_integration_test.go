package sqlite

import (
	"context"
	"path/filepath"
	"testing"

	"foodfacts/internal/plan"
	"foodfacts/internal/storage"
)

// openTestRepo opens a repository against a throwaway database file.
// modernc.org/sqlite runs in-process, so this needs no external service.
func openTestRepo(t *testing.T) storage.Repository {
	t.Helper()

	dsn := filepath.Join(t.TempDir(), "roundtrip.db")
	repo, err := New(context.Background(), storage.Config{Kind: "sqlite", DSN: dsn})
	if err != nil {
		t.Fatalf("open sqlite repo: %v", err)
	}
	t.Cleanup(repo.Close)

	if err := repo.EnsureTables(context.Background(), storage.Schema()); err != nil {
		t.Fatalf("EnsureTables: %v", err)
	}
	return repo
}

func upsertProductGraph(t *testing.T, repo storage.Repository) {
	t.Helper()
	ctx := context.Background()

	tx, err := repo.Begin(ctx)
	if err != nil {
		t.Fatalf("Begin: %v", err)
	}

	catID, err := tx.UpsertReturningID(ctx, "category", "name", []string{"name"}, []any{"Breakfast"})
	if err != nil {
		t.Fatalf("upsert category: %v", err)
	}
	storeID, err := tx.UpsertReturningID(ctx, "store", "name", []string{"name"}, []any{"Corner"})
	if err != nil {
		t.Fatalf("upsert store: %v", err)
	}
	prodID, err := tx.UpsertReturningID(ctx, "product", "name",
		[]string{"name", "nutriscore", "url"}, []any{"Muesli", 2, "https://example.org/muesli"})
	if err != nil {
		t.Fatalf("upsert product: %v", err)
	}

	if err := tx.InsertLinkIgnore(ctx, "product_category", "id_category", catID, "id_product", prodID); err != nil {
		t.Fatalf("link category: %v", err)
	}
	if err := tx.InsertLinkIgnore(ctx, "product_store", "id_store", storeID, "id_product", prodID); err != nil {
		t.Fatalf("link store: %v", err)
	}

	if err := tx.Commit(ctx); err != nil {
		t.Fatalf("Commit: %v", err)
	}
}

func TestRepo_RoundTripAndIdempotence(t *testing.T) {
	repo := openTestRepo(t)
	ctx := context.Background()

	// Applying the same batch twice must not duplicate rows or error.
	upsertProductGraph(t, repo)
	upsertProductGraph(t, repo)

	cols, vals, err := repo.SelectRow(ctx, plan.SelectQuery{
		Table:    "product",
		Columns:  []string{"name", "nutriscore", "url"},
		Distinct: true,
		Where:    &plan.Where{Column: "name", Value: "Muesli"},
	})
	if err != nil {
		t.Fatalf("SelectRow: %v", err)
	}
	if len(cols) != 3 {
		t.Fatalf("columns = %v", cols)
	}
	if vals[0] != "Muesli" {
		t.Fatalf("name = %v, want Muesli", vals[0])
	}

	// The pair unique constraint must have collapsed the duplicate links.
	_, linkVals, err := repo.SelectRow(ctx, plan.SelectQuery{
		Table:   "product_category",
		Columns: []string{"id_product"},
		Join:    &plan.Join{Table: "product", OnColumn: "id_product"},
	})
	if err != nil {
		t.Fatalf("SelectRow link: %v", err)
	}
	if linkVals == nil {
		t.Fatalf("expected one association row")
	}
}

func TestRepo_UpsertKeepsStableID(t *testing.T) {
	repo := openTestRepo(t)
	ctx := context.Background()

	tx, err := repo.Begin(ctx)
	if err != nil {
		t.Fatalf("Begin: %v", err)
	}
	first, err := tx.UpsertReturningID(ctx, "category", "name", []string{"name"}, []any{"Drinks"})
	if err != nil {
		t.Fatalf("first upsert: %v", err)
	}
	second, err := tx.UpsertReturningID(ctx, "category", "name", []string{"name"}, []any{"Drinks"})
	if err != nil {
		t.Fatalf("second upsert: %v", err)
	}
	if err := tx.Commit(ctx); err != nil {
		t.Fatalf("Commit: %v", err)
	}

	if first != second {
		t.Fatalf("upsert id changed across runs: %d then %d", first, second)
	}
}

func TestRepo_SelectRowNoMatchIsAbsentNotError(t *testing.T) {
	repo := openTestRepo(t)

	cols, vals, err := repo.SelectRow(context.Background(), plan.SelectQuery{
		Table:   "product",
		Columns: []string{"name"},
		Where:   &plan.Where{Column: "name", Value: "does-not-exist"},
	})
	if err != nil {
		t.Fatalf("SelectRow: %v", err)
	}
	if cols != nil || vals != nil {
		t.Fatalf("expected absent result, got cols=%v vals=%v", cols, vals)
	}
}

func TestRepo_RollbackDiscardsBatch(t *testing.T) {
	repo := openTestRepo(t)
	ctx := context.Background()

	tx, err := repo.Begin(ctx)
	if err != nil {
		t.Fatalf("Begin: %v", err)
	}
	if _, err := tx.UpsertReturningID(ctx, "store", "name", []string{"name"}, []any{"Ghost"}); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if err := tx.Rollback(ctx); err != nil {
		t.Fatalf("Rollback: %v", err)
	}

	_, vals, err := repo.SelectRow(ctx, plan.SelectQuery{
		Table:   "store",
		Columns: []string{"name"},
		Where:   &plan.Where{Column: "name", Value: "Ghost"},
	})
	if err != nil {
		t.Fatalf("SelectRow: %v", err)
	}
	if vals != nil {
		t.Fatalf("rolled-back row is visible: %v", vals)
	}
}
