// Package main runs the search synchronization worker: it consumes queued
// index/remove jobs and applies them to the search backend.
package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	_ "github.com/jackc/pgx/v5/stdlib"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/ttahub/searchsync/internal/blobstore"
	"github.com/ttahub/searchsync/internal/integration"
	"github.com/ttahub/searchsync/internal/logging"
	"github.com/ttahub/searchsync/internal/queue"
	"github.com/ttahub/searchsync/internal/records"
	"github.com/ttahub/searchsync/internal/searchconfig"
)

func main() {
	logger := logging.New()
	if err := run(logger); err != nil {
		logger.Error("Worker exited", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

func run(logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	queueURL := os.Getenv("SEARCH_QUEUE_URL")
	if queueURL == "" {
		return fmt.Errorf("SEARCH_QUEUE_URL is required")
	}
	databaseURL := os.Getenv("DATABASE_URL")
	if databaseURL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}
	// File jobs are always registered, so the worker cannot run without a
	// place to download attachments from.
	fileStorageURL := os.Getenv("FILE_STORAGE_URL")
	if fileStorageURL == "" {
		return fmt.Errorf("FILE_STORAGE_URL is required")
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

	blobs := blobstore.NewHTTPDownloader(fileStorageURL, &http.Client{
		Transport: otelhttp.NewTransport(http.DefaultTransport),
	})

	jobs := queue.New(sqs.NewFromConfig(awsCfg), queueURL, logger)

	integ, err := integration.Initialize(integration.Options{
		Env:      searchconfig.Getenv(os.Getenv),
		Region:   awsCfg.Region,
		Queue:    jobs,
		Registry: registry,
		Views:    reports,
		Blobs:    blobs,
		Logger:   logger,
	})
	if err != nil {
		return err
	}
	if !integ.Enabled {
		return fmt.Errorf("search backend is not configured; nothing to consume")
	}

	// Only one instance installs the shared pipeline and mapping
	// definitions; the rest just consume.
	if idx := os.Getenv("CF_INSTANCE_INDEX"); idx == "" || idx == "0" {
		if err := integ.InstallPipelines(ctx, false); err != nil {
			return fmt.Errorf("install pipelines: %w", err)
		}
	}

	if err := integ.StartWorker(); err != nil {
		return err
	}

	logger.Info("Search sync worker started", slog.String("queue", queueURL))
	return jobs.Run(ctx)
}
