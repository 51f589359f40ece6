package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"foodfacts/internal/config"
	"foodfacts/internal/entity"
	"foodfacts/internal/executor"
	"foodfacts/internal/storage"

	_ "foodfacts/internal/storage/all"
)

// main reads one stored entity by name and prints it as JSON. It is the
// verification counterpart to the ingest command.
func main() {
	var (
		cfgPath string
		kind    string
		name    string
	)

	flag.StringVar(&cfgPath, "config", "configs/pipelines/catalog.json", "pipeline config JSON path")
	flag.StringVar(&kind, "kind", "product", "entity kind to read (product, category, store)")
	flag.StringVar(&name, "name", "", "entity name to look up")
	flag.Parse()

	if name == "" {
		fatalf("-name is required")
	}

	p, err := config.Load(cfgPath)
	if err != nil {
		fatalf("%v", err)
	}

	ctx := context.Background()

	repo, err := storage.New(ctx, storage.Config{Kind: p.Storage.Kind, DSN: p.Storage.DSN})
	if err != nil {
		fatalf("storage: %v", err)
	}
	defer repo.Close()

	x := &executor.Executor{Repo: repo}

	e, err := x.ReadRow(ctx, entity.Kind(kind), name)
	if err != nil {
		fatalf("read: %v", err)
	}
	if e == nil {
		fmt.Fprintf(os.Stderr, "no %s named %q\n", kind, name)
		os.Exit(1)
	}

	out := map[string]any{"kind": string(e.Kind()), "name": e.Name()}
	if p, ok := e.(*entity.Product); ok {
		if p.Nutriscore != nil {
			out["nutriscore"] = *p.Nutriscore
		}
		if p.URL != "" {
			out["url"] = p.URL
		}
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(out); err != nil {
		fatalf("encode: %v", err)
	}
}

func fatalf(format string, v ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", v...)
	os.Exit(2)
}
