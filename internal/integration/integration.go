// Package integration wires search synchronization into the application:
// it resolves configuration, builds the backend client, attaches lifecycle
// hooks, and exposes the direct search/index/remove entry points.
package integration

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/ttahub/searchsync/internal/blobstore"
	"github.com/ttahub/searchsync/internal/formatter"
	"github.com/ttahub/searchsync/internal/hooks"
	"github.com/ttahub/searchsync/internal/logging"
	"github.com/ttahub/searchsync/internal/pipelines"
	"github.com/ttahub/searchsync/internal/queue"
	"github.com/ttahub/searchsync/internal/records"
	"github.com/ttahub/searchsync/internal/search"
	"github.com/ttahub/searchsync/internal/searchconfig"
	"github.com/ttahub/searchsync/internal/worker"
)

// Backend is the slice of the search client the integration consumes.
type Backend interface {
	Index(ctx context.Context, index, id string, body any, pipeline string) error
	Delete(ctx context.Context, index, id string) error
	Search(ctx context.Context, index, text string) (json.RawMessage, error)
}

// observable is implemented by queues that expose failure/completion
// events.
type observable interface {
	OnFailed(fn func(queue.Job, error))
	OnCompleted(fn func(queue.Job))
}

// Options configures Initialize. Queue, Registry and Hooks are owned by
// the caller and passed down explicitly so tests can supply fakes.
type Options struct {
	// Env is the environment map consulted for backend configuration.
	Env map[string]string
	// Region for request signing against a managed backend.
	Region string
	// Backend overrides the client built from Env. Mainly for tests.
	Backend Backend
	// Queue carries search-sync jobs between processes.
	Queue worker.JobQueue
	// Registry resolves record types to their stores.
	Registry *records.Registry
	// Views, when set, backs the fuller activity-report projection.
	Views records.ReportViews
	// Hooks is the data layer's lifecycle-observer registry. Hooks are
	// attached only when the backend is enabled.
	Hooks *records.Hooks
	// Blobs downloads attachment content for file indexing.
	Blobs blobstore.Downloader
	Logger *slog.Logger
}

// Integration is the wired search-sync subsystem.
type Integration struct {
	// Enabled mirrors the resolved configuration. When false every
	// operation fails with search.ErrNotEnabled and no hooks were
	// attached.
	Enabled bool

	backend Backend
	worker  *worker.Worker
	logger  *slog.Logger
}

// Initialize resolves configuration and wires the subsystem. On a disabled
// backend it returns a stub that refuses operations; record writes then
// proceed with no search side effects at all.
func Initialize(opts Options) (*Integration, error) {
	logger := opts.Logger
	if logger == nil {
		logger = logging.New()
	}

	cfg := searchconfig.FromEnv(opts.Env)
	if !cfg.Enabled && opts.Backend == nil {
		return &Integration{logger: logger}, nil
	}

	backend := opts.Backend
	if backend == nil {
		client, err := search.NewClient(cfg, search.Options{
			Region:    opts.Region,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		})
		if err != nil {
			return nil, err
		}
		backend = client
	}

	formatters := formatter.NewRegistry()
	if opts.Views != nil {
		formatters.Register("ActivityReport", formatter.FullReport(opts.Views))
	}

	w := worker.New(worker.Config{
		Client:     backend,
		Registry:   opts.Registry,
		Formatters: formatters,
		Blobs:      opts.Blobs,
		Queue:      opts.Queue,
		Logger:     logger,
	})

	if q, ok := opts.Queue.(observable); ok {
		q.OnFailed(func(job queue.Job, err error) {
			var payload worker.RecordJob
			_ = json.Unmarshal(job.Data, &payload)
			logger.Error("Search sync job failed",
				slog.String("job", job.Name),
				slog.String("record_type", payload.Type),
				slog.String("record_id", string(payload.ID)),
				slog.String("error", err.Error()),
			)
		})
	}

	integ := &Integration{
		Enabled: true,
		backend: backend,
		worker:  w,
		logger:  logger,
	}

	if opts.Hooks != nil {
		opts.Hooks.OnAfterWrite("ActivityReport", hooks.AfterCommit(logger, w.ScheduleIndex))
		opts.Hooks.OnAfterDelete("ActivityReport", hooks.AfterCommit(logger, w.ScheduleRemove))
		opts.Hooks.OnAfterWrite("File", hooks.AfterCommit(logger, w.ScheduleIndex))
		opts.Hooks.OnAfterDelete("File", hooks.AfterCommit(logger, w.ScheduleRemove))
	}

	return integ, nil
}

// IndexRecord formats and upserts a record's document synchronously,
// bypassing the queue.
func (i *Integration) IndexRecord(ctx context.Context, rec records.Record) error {
	if !i.Enabled {
		return search.ErrNotEnabled
	}
	return i.worker.IndexRecord(ctx, rec)
}

// IndexFile downloads a file attachment and indexes it through the
// attachment pipeline synchronously. Used by bulk-reindex tooling.
func (i *Integration) IndexFile(ctx context.Context, file *records.File) error {
	if !i.Enabled {
		return search.ErrNotEnabled
	}
	return i.worker.IndexFile(ctx, file)
}

// RemoveRecord deletes a record's document synchronously.
func (i *Integration) RemoveRecord(ctx context.Context, rec records.Record) error {
	if !i.Enabled {
		return search.ErrNotEnabled
	}
	return i.worker.RemoveRecord(ctx, rec)
}

// Search runs a query-string search over a record type's index and returns
// the raw backend response.
func (i *Integration) Search(ctx context.Context, recordType, text string) (json.RawMessage, error) {
	if !i.Enabled {
		return nil, search.ErrNotEnabled
	}
	return i.backend.Search(ctx, search.IndexNameFor(recordType), text)
}

// StartWorker registers the job processors with the queue. Safe to call
// more than once.
func (i *Integration) StartWorker() error {
	if !i.Enabled {
		return search.ErrNotEnabled
	}
	i.worker.Start()
	return nil
}

// InstallPipelines pushes the static pipeline and mapping definitions to
// the backend.
func (i *Integration) InstallPipelines(ctx context.Context, recreate bool) error {
	if !i.Enabled {
		return search.ErrNotEnabled
	}
	installer, ok := i.backend.(pipelines.Installer)
	if !ok {
		return fmt.Errorf("search backend does not manage pipelines")
	}
	return pipelines.Install(ctx, installer, recreate)
}
