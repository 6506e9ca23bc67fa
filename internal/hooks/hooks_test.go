package hooks

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/ttahub/searchsync/internal/records"
)

// fakeTx implements records.Tx and lets the test decide when (or whether)
// the transaction commits.
type fakeTx struct {
	deferred []func(ctx context.Context)
}

func (t *fakeTx) AfterCommit(fn func(ctx context.Context)) {
	t.deferred = append(t.deferred, fn)
}

func (t *fakeTx) commit(ctx context.Context) {
	for _, fn := range t.deferred {
		fn(ctx)
	}
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestAfterCommit_NoTransactionRunsImmediately(t *testing.T) {
	var calls int
	hook := AfterCommit(discardLogger(), func(ctx context.Context, rec records.Record) error {
		calls++
		return nil
	})

	err := hook(context.Background(), &records.ActivityReport{ID: 1}, nil)
	if err != nil {
		t.Fatalf("hook: %v", err)
	}
	if calls != 1 {
		t.Errorf("callback calls = %d, want 1 (immediate)", calls)
	}
}

func TestAfterCommit_NoTransactionPropagatesError(t *testing.T) {
	boom := errors.New("queue down")
	hook := AfterCommit(discardLogger(), func(ctx context.Context, rec records.Record) error {
		return boom
	})

	err := hook(context.Background(), &records.ActivityReport{ID: 1}, nil)
	if !errors.Is(err, boom) {
		t.Errorf("hook error = %v, want boom", err)
	}
}

func TestAfterCommit_DefersUntilCommit(t *testing.T) {
	var calls int
	hook := AfterCommit(discardLogger(), func(ctx context.Context, rec records.Record) error {
		calls++
		return nil
	})

	tx := &fakeTx{}
	if err := hook(context.Background(), &records.ActivityReport{ID: 2}, tx); err != nil {
		t.Fatalf("hook: %v", err)
	}

	if len(tx.deferred) != 1 {
		t.Fatalf("deferred callbacks = %d, want 1", len(tx.deferred))
	}
	if calls != 0 {
		t.Fatalf("callback ran before commit, calls = %d", calls)
	}

	tx.commit(context.Background())
	if calls != 1 {
		t.Errorf("callback calls after commit = %d, want 1", calls)
	}
}

func TestAfterCommit_RollbackNeverRuns(t *testing.T) {
	var calls int
	hook := AfterCommit(discardLogger(), func(ctx context.Context, rec records.Record) error {
		calls++
		return nil
	})

	tx := &fakeTx{}
	if err := hook(context.Background(), &records.File{ID: 3}, tx); err != nil {
		t.Fatalf("hook: %v", err)
	}

	// Transaction rolls back: deferred callbacks are simply dropped.
	if calls != 0 {
		t.Errorf("callback calls = %d, want 0 after rollback", calls)
	}
}

func TestAfterCommit_DeferredErrorIsSwallowed(t *testing.T) {
	hook := AfterCommit(discardLogger(), func(ctx context.Context, rec records.Record) error {
		return errors.New("enqueue failed")
	})

	tx := &fakeTx{}
	if err := hook(context.Background(), &records.ActivityReport{ID: 4}, tx); err != nil {
		t.Fatalf("hook: %v", err)
	}

	// The commit path has no one to return an error to; it must not panic.
	tx.commit(context.Background())
}
