package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"time"

	"foodfacts/internal/config"
	"foodfacts/internal/entity"
	"foodfacts/internal/executor"
	"foodfacts/internal/ingest"
	"foodfacts/internal/metrics"
	"foodfacts/internal/metrics/datadog"
	"foodfacts/internal/metrics/prompush"
	"foodfacts/internal/storage"

	// register all backends with the storage factory.
	// config specifies which to use but we build in support for all of them.
	_ "foodfacts/internal/storage/all"
)

// main is the entry point for the ingestion binary. It loads the
// pipeline config, optionally initializes a metrics backend, ensures
// the schema, then ingests the configured number of pages.
func main() {
	var (
		cfgPath           string
		metricsBackendFlg string
		validate          bool
	)

	flag.StringVar(&cfgPath, "config", "configs/pipelines/catalog.json", "pipeline config JSON path")
	flag.StringVar(&metricsBackendFlg, "metrics-backend", "", "metrics backend to use (datadog, prompush, none); overrides config")
	flag.BoolVar(&validate, "validate", false, "validate the configuration and exit")
	flag.Parse()

	p, err := config.Load(cfgPath)
	if err != nil {
		fatalf("%v", err)
	}

	issues := config.ValidatePipeline(p)
	for _, iss := range issues {
		fmt.Fprintf(os.Stderr, "%s: %s: %s\n", iss.Severity, iss.Path, iss.Message)
	}
	if config.HasErrors(issues) {
		fatalf("configuration is invalid: %v", cfgPath)
	}
	if validate {
		log.Printf("configuration is valid: %v", cfgPath)
		os.Exit(0)
	}

	ctx := context.Background()

	// Decide metrics backend: flag → config → env → default (no-op).
	backendName := metricsBackendFlg
	if backendName == "" {
		backendName = p.Metrics.Backend
	}
	if backendName == "" {
		backendName = os.Getenv("METRICS_BACKEND")
	}
	switch backendName {
	case "datadog":
		b, err := datadog.NewBackend(ctx, datadog.Options{
			JobName: p.Job,
			Tags:    datadog.ParseTagsCSV(p.Metrics.Tags),
		})
		if err != nil {
			log.Printf("metrics: failed to init datadog backend: %v; using nop", err)
		} else {
			metrics.SetBackend(b)
			defer func() {
				if err := b.Close(); err != nil {
					log.Printf("metrics: close error: %v", err)
				}
			}()
		}
	case "prompush":
		b, err := prompush.NewBackend(p.Job, p.Metrics.GatewayURL)
		if err != nil {
			log.Printf("metrics: failed to init prompush backend: %v; using nop", err)
		} else {
			metrics.SetBackend(b)
			defer func() {
				if err := b.Flush(); err != nil {
					log.Printf("metrics: push error: %v", err)
				}
			}()
		}
	}

	repo, err := storage.New(ctx, storage.Config{Kind: p.Storage.Kind, DSN: p.Storage.DSN})
	if err != nil {
		fatalf("storage: %v", err)
	}
	defer repo.Close()

	if err := repo.EnsureTables(ctx, storage.Schema()); err != nil {
		fatalf("storage: ensure tables: %v", err)
	}

	if code := ingestAll(ctx, p, repo); code != 0 {
		os.Exit(code)
	}
}

// ingestAll runs the page loop and the optional category backfill.
//
// Exit codes:
//   - 0: every page persisted.
//   - 1: at least one page failed; the others are still committed,
//     which the per-batch transaction model makes safe.
func ingestAll(ctx context.Context, p config.Pipeline, repo storage.Repository) int {
	logger := log.New(os.Stderr, "", log.LstdFlags)

	x := &executor.Executor{Repo: repo, Logger: logger}

	client := &ingest.Client{
		BaseURL:     p.Source.BaseURL,
		PageSize:    p.Source.PageSize,
		Locale:      p.Source.Locale,
		Job:         p.Job,
		Logger:      logger,
		MaxRetries:  p.Runtime.MaxRetries,
		BaseBackoff: time.Duration(p.Runtime.RetryBackoffMS) * time.Millisecond,
	}
	if p.Runtime.RequestTimeoutMS > 0 {
		client.HTTP = &http.Client{Timeout: time.Duration(p.Runtime.RequestTimeoutMS) * time.Millisecond}
	}

	if p.Source.CategoriesURL != "" {
		if err := backfillCategories(ctx, p, x, client); err != nil {
			logger.Printf("stage=categories err=%v", err)
		}
	}

	pages := p.Source.Pages
	if pages < 1 {
		pages = 1
	}

	failed := 0
	for page := 1; page <= pages; page++ {
		start := time.Now()
		err := ingestPage(ctx, x, client, page)
		metrics.RecordPage(p.Job, page, err, time.Since(start))

		if err != nil {
			// One bad page must not abort the run; its batch rolled back.
			logger.Printf("stage=page page=%d err=%v", page, err)
			failed++
			continue
		}
		metrics.RecordBatches(p.Job, 1)
	}

	if failed > 0 {
		logger.Printf("stage=done pages=%d failed=%d", pages, failed)
		return 1
	}
	logger.Printf("stage=done pages=%d ok", pages)
	return 0
}

func ingestPage(ctx context.Context, x *executor.Executor, client *ingest.Client, page int) error {
	products, stats, err := client.FetchPage(ctx, page)
	if err != nil {
		return err
	}
	if err := x.InsertAll(ctx, products); err != nil {
		return err
	}
	metrics.RecordProducts(client.Job, "inserted", int64(stats.Fetched-stats.Dropped))
	return nil
}

// backfillCategories scrapes the category index and upserts the names
// so the category table covers more than the ingested products mention.
func backfillCategories(ctx context.Context, p config.Pipeline, x *executor.Executor, client *ingest.Client) error {
	cats, err := ingest.ScrapeCategories(ctx, client.HTTP, p.Source.CategoriesURL)
	if err != nil {
		return err
	}

	entities := make([]entity.Entity, 0, len(cats))
	for i := range cats {
		entities = append(entities, &cats[i])
	}
	return x.InsertAll(ctx, entities)
}

func fatalf(format string, v ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", v...)
	os.Exit(2)
}
