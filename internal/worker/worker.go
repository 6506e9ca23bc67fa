// Package worker turns queued search-sync jobs into backend mutations. It
// reloads the canonical record at processing time, so redelivered or
// reordered jobs converge on the current database state; every index call
// is a full-document replace.
package worker

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/ttahub/searchsync/internal/blobstore"
	"github.com/ttahub/searchsync/internal/formatter"
	"github.com/ttahub/searchsync/internal/queue"
	"github.com/ttahub/searchsync/internal/records"
	"github.com/ttahub/searchsync/internal/search"
)

// Job type names on the queue.
const (
	JobIndexModel  = "indexModel"
	JobRemoveModel = "removeModel"
	JobIndexFile   = "indexFile"
	JobRemoveFile  = "removeFile"
)

// notFoundSkipAfter is the delivery count after which a job referencing a
// missing record is treated as a skip instead of a retryable failure.
// Early deliveries retry to ride out read lag; a record still missing by
// this point was genuinely deleted.
const notFoundSkipAfter = 3

// ErrNoDownloader means file indexing was requested but no attachment
// downloader was configured.
var ErrNoDownloader = errors.New("no attachment downloader configured")

// RecordID accepts both JSON numbers and strings, since job payloads carry
// whichever form the enqueuing side had for the primary key.
type RecordID string

// UnmarshalJSON implements json.Unmarshaler.
func (r *RecordID) UnmarshalJSON(b []byte) error {
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*r = RecordID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	*r = RecordID(n.String())
	return nil
}

// RecordJob is the payload of indexModel/removeModel jobs.
type RecordJob struct {
	Type string   `json:"type"`
	ID   RecordID `json:"id"`
}

// FileJob is the payload of indexFile/removeFile jobs.
type FileJob struct {
	ID RecordID `json:"id"`
}

// SearchClient is the slice of the backend client the worker mutates
// through.
type SearchClient interface {
	Index(ctx context.Context, index, id string, body any, pipeline string) error
	Delete(ctx context.Context, index, id string) error
}

// JobQueue schedules jobs and registers their processors.
type JobQueue interface {
	Enqueue(ctx context.Context, job string, data any) error
	Process(job string, h queue.Handler)
}

// Config collects the worker's collaborators.
type Config struct {
	Client     SearchClient
	Registry   *records.Registry
	Formatters *formatter.Registry
	Blobs      blobstore.Downloader
	Queue      JobQueue
	Logger     *slog.Logger
}

// Worker processes search-sync jobs and exposes the direct (non-queued)
// index/remove entry points.
type Worker struct {
	client     SearchClient
	registry   *records.Registry
	formatters *formatter.Registry
	blobs      blobstore.Downloader
	queue      JobQueue
	logger     *slog.Logger
}

// New creates a Worker.
func New(cfg Config) *Worker {
	return &Worker{
		client:     cfg.Client,
		registry:   cfg.Registry,
		formatters: cfg.Formatters,
		blobs:      cfg.Blobs,
		queue:      cfg.Queue,
		logger:     cfg.Logger,
	}
}

// Start registers all job processors with the queue. Calling it again
// re-registers the same processors; it never causes duplicate delivery.
func (w *Worker) Start() {
	w.queue.Process(JobIndexModel, w.processIndexModel)
	w.queue.Process(JobRemoveModel, w.processRemoveModel)
	w.queue.Process(JobIndexFile, w.processIndexFile)
	w.queue.Process(JobRemoveFile, w.processRemoveFile)
}

// ScheduleIndex enqueues an indexing job for a mutated record. File
// attachments go through their own job type: their content is indexed from
// blob storage, not from the row.
func (w *Worker) ScheduleIndex(ctx context.Context, rec records.Record) error {
	if rec.RecordType() == "File" {
		return w.queue.Enqueue(ctx, JobIndexFile, FileJob{ID: RecordID(rec.PrimaryKey())})
	}
	return w.queue.Enqueue(ctx, JobIndexModel, RecordJob{
		Type: rec.RecordType(),
		ID:   RecordID(rec.PrimaryKey()),
	})
}

// ScheduleRemove enqueues a removal job for a deleted record.
func (w *Worker) ScheduleRemove(ctx context.Context, rec records.Record) error {
	if rec.RecordType() == "File" {
		return w.queue.Enqueue(ctx, JobRemoveFile, FileJob{ID: RecordID(rec.PrimaryKey())})
	}
	return w.queue.Enqueue(ctx, JobRemoveModel, RecordJob{
		Type: rec.RecordType(),
		ID:   RecordID(rec.PrimaryKey()),
	})
}

// IndexRecord formats a record and upserts its search document directly,
// bypassing the queue. Used by tests and bulk-reindex tooling.
func (w *Worker) IndexRecord(ctx context.Context, rec records.Record) error {
	doc, err := w.formatters.Format(ctx, rec)
	if err != nil {
		return err
	}
	return w.client.Index(ctx,
		search.IndexNameFor(rec.RecordType()), rec.PrimaryKey(), doc, rec.RecordType())
}

// IndexFile downloads a file's content and indexes it through the
// attachment-extraction pipeline, bypassing the queue.
func (w *Worker) IndexFile(ctx context.Context, file *records.File) error {
	if w.blobs == nil {
		return fmt.Errorf("index File #%s: %w", file.PrimaryKey(), ErrNoDownloader)
	}

	content, err := w.blobs.Download(ctx, file.Key)
	if err != nil {
		return fmt.Errorf("download %s: %w", file.Key, err)
	}

	w.logger.DebugContext(ctx, "Indexing file attachment",
		slog.String("record_id", file.PrimaryKey()),
		slog.Int("size", len(content)),
	)
	return w.client.Index(ctx, search.IndexNameFor("File"), file.PrimaryKey(), map[string]any{
		"activityReportId": fmt.Sprint(file.ActivityReportID),
		"data":             base64.StdEncoding.EncodeToString(content),
	}, "File")
}

// RemoveRecord deletes a record's search document directly.
func (w *Worker) RemoveRecord(ctx context.Context, rec records.Record) error {
	return w.client.Delete(ctx, search.IndexNameFor(rec.RecordType()), rec.PrimaryKey())
}

// processIndexModel loads the canonical record and indexes it.
func (w *Worker) processIndexModel(ctx context.Context, job queue.Job) error {
	var payload RecordJob
	if err := json.Unmarshal(job.Data, &payload); err != nil {
		return fmt.Errorf("decode %s payload: %w", job.Name, err)
	}

	store, err := w.registry.Lookup(payload.Type)
	if err != nil {
		return err
	}

	rec, err := store.FindByPK(ctx, string(payload.ID))
	if errors.Is(err, records.ErrNotFound) {
		if job.ReceiveCount >= notFoundSkipAfter {
			w.logger.WarnContext(ctx, "Record gone, skipping index job",
				slog.String("record_type", payload.Type),
				slog.String("record_id", string(payload.ID)),
				slog.Int("receive_count", job.ReceiveCount),
			)
			return nil
		}
		return err
	}
	if err != nil {
		return err
	}

	w.logger.DebugContext(ctx, "Indexing record",
		slog.String("record_type", payload.Type),
		slog.String("record_id", string(payload.ID)),
	)
	return w.IndexRecord(ctx, rec)
}

// processRemoveModel deletes the record's document. The database is not
// consulted: the document id is all a removal needs, and the row is
// usually already gone.
func (w *Worker) processRemoveModel(ctx context.Context, job queue.Job) error {
	var payload RecordJob
	if err := json.Unmarshal(job.Data, &payload); err != nil {
		return fmt.Errorf("decode %s payload: %w", job.Name, err)
	}
	return w.client.Delete(ctx, search.IndexNameFor(payload.Type), string(payload.ID))
}

// processIndexFile downloads the attachment and indexes it through the
// attachment-extraction pipeline.
func (w *Worker) processIndexFile(ctx context.Context, job queue.Job) error {
	var payload FileJob
	if err := json.Unmarshal(job.Data, &payload); err != nil {
		return fmt.Errorf("decode %s payload: %w", job.Name, err)
	}

	store, err := w.registry.Lookup("File")
	if err != nil {
		return err
	}

	rec, err := store.FindByPK(ctx, string(payload.ID))
	if errors.Is(err, records.ErrNotFound) {
		if job.ReceiveCount >= notFoundSkipAfter {
			w.logger.WarnContext(ctx, "File gone, skipping index job",
				slog.String("record_id", string(payload.ID)),
				slog.Int("receive_count", job.ReceiveCount),
			)
			return nil
		}
		return err
	}
	if err != nil {
		return err
	}

	file, ok := rec.(*records.File)
	if !ok {
		return fmt.Errorf("file store returned %T", rec)
	}
	return w.IndexFile(ctx, file)
}

// processRemoveFile deletes the attachment's document.
func (w *Worker) processRemoveFile(ctx context.Context, job queue.Job) error {
	var payload FileJob
	if err := json.Unmarshal(job.Data, &payload); err != nil {
		return fmt.Errorf("decode %s payload: %w", job.Name, err)
	}
	return w.client.Delete(ctx, search.IndexNameFor("File"), string(payload.ID))
}
