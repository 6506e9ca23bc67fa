// Package hooks adapts side-effecting callbacks into transaction-aware
// lifecycle observers. Deferring until commit guarantees a record is never
// indexed from data that could still be rolled back.
package hooks

import (
	"context"
	"log/slog"

	"github.com/ttahub/searchsync/internal/records"
)

// Callback is the side effect to run for a mutated record, typically an
// enqueue of a search-sync job.
type Callback func(ctx context.Context, rec records.Record) error

// AfterCommit wraps cb into a records.HookFunc. When the mutation ran
// inside a transaction, cb is registered with the transaction's
// commit-completion mechanism and the hook returns immediately; nothing is
// enqueued before commit, and a rollback means cb never runs. Without a
// transaction, cb runs right away and its error propagates to the emitter.
//
// Errors from a deferred cb can only be logged: the write has already
// committed, and search-index staleness must never fail the write path.
func AfterCommit(logger *slog.Logger, cb Callback) records.HookFunc {
	return func(ctx context.Context, rec records.Record, tx records.Tx) error {
		if tx == nil {
			return cb(ctx, rec)
		}

		tx.AfterCommit(func(ctx context.Context) {
			if err := cb(ctx, rec); err != nil {
				logger.ErrorContext(ctx, "Post-commit search sync failed",
					slog.String("record_type", rec.RecordType()),
					slog.String("record_id", rec.PrimaryKey()),
					slog.String("error", err.Error()),
				)
			}
		})
		return nil
	}
}
