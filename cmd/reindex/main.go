// Package main is an operator tool that rebuilds the search indices from
// the database: install (or recreate) the pipelines, mappings and indices,
// then re-index every record directly, bypassing the queue.
package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	_ "github.com/jackc/pgx/v5/stdlib"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/ttahub/searchsync/internal/blobstore"
	"github.com/ttahub/searchsync/internal/integration"
	"github.com/ttahub/searchsync/internal/logging"
	"github.com/ttahub/searchsync/internal/records"
	"github.com/ttahub/searchsync/internal/searchconfig"
)

func main() {
	logger := logging.New()
	if err := run(logger); err != nil {
		logger.Error("Reindex failed", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

func run(logger *slog.Logger) error {
	recreate := flag.Bool("recreate", false, "drop and recreate the indices before reindexing (discards all documents)")
	pipelinesOnly := flag.Bool("pipelines-only", false, "install pipelines and mappings, then exit without reindexing")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	databaseURL := os.Getenv("DATABASE_URL")
	if databaseURL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}
	fileStorageURL := os.Getenv("FILE_STORAGE_URL")
	if *recreate && !*pipelinesOnly && fileStorageURL == "" {
		// Recreating drops the file index; without attachment storage the
		// file documents could not be rebuilt afterwards.
		return fmt.Errorf("FILE_STORAGE_URL is required with -recreate")
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return fmt.Errorf("load AWS config: %w", err)
	}

	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	reports := records.NewActivityReportStore(db)
	files := records.NewFileStore(db)
	registry := records.NewRegistry()
	registry.Register("ActivityReport", reports)
	registry.Register("File", files)

	var blobs blobstore.Downloader
	if fileStorageURL != "" {
		blobs = blobstore.NewHTTPDownloader(fileStorageURL, &http.Client{
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		})
	}

	integ, err := integration.Initialize(integration.Options{
		Env:      searchconfig.Getenv(os.Getenv),
		Region:   awsCfg.Region,
		Registry: registry,
		Views:    reports,
		Blobs:    blobs,
		Logger:   logger,
	})
	if err != nil {
		return err
	}
	if !integ.Enabled {
		return fmt.Errorf("search backend is not configured")
	}

	if err := integ.InstallPipelines(ctx, *recreate); err != nil {
		return fmt.Errorf("install pipelines: %w", err)
	}
	if *pipelinesOnly {
		return nil
	}

	ids, err := reports.ListIDs(ctx)
	if err != nil {
		return fmt.Errorf("list activity reports: %w", err)
	}

	var indexed, failed int
	total := len(ids)
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return err
		}
		rec, err := reports.FindByPK(ctx, id)
		if err != nil {
			logger.Error("Skipping unreadable record",
				slog.String("record_id", id),
				slog.String("error", err.Error()),
			)
			failed++
			continue
		}
		if err := integ.IndexRecord(ctx, rec); err != nil {
			logger.Error("Failed to index record",
				slog.String("record_id", id),
				slog.String("error", err.Error()),
			)
			failed++
			continue
		}
		indexed++
	}

	if blobs == nil {
		logger.Warn("Skipping file reindex; FILE_STORAGE_URL not set")
	} else {
		fileIDs, err := files.ListIDs(ctx)
		if err != nil {
			return fmt.Errorf("list files: %w", err)
		}
		total += len(fileIDs)
		for _, id := range fileIDs {
			if err := ctx.Err(); err != nil {
				return err
			}
			rec, err := files.FindByPK(ctx, id)
			if err != nil {
				logger.Error("Skipping unreadable file",
					slog.String("record_id", id),
					slog.String("error", err.Error()),
				)
				failed++
				continue
			}
			file, ok := rec.(*records.File)
			if !ok {
				return fmt.Errorf("file store returned %T", rec)
			}
			if err := integ.IndexFile(ctx, file); err != nil {
				logger.Error("Failed to index file",
					slog.String("record_id", id),
					slog.String("error", err.Error()),
				)
				failed++
				continue
			}
			indexed++
		}
	}

	logger.Info("Reindex complete",
		slog.Int("indexed", indexed),
		slog.Int("failed", failed),
	)
	if failed > 0 {
		return fmt.Errorf("%d of %d records failed to index", failed, total)
	}
	return nil
}
