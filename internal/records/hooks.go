package records

import (
	"context"
	"errors"
	"sync"
)

// HookFunc observes a completed write or delete. tx is nil when the
// mutation ran outside a transaction; otherwise implementations may use it
// to defer work until after commit.
type HookFunc func(ctx context.Context, rec Record, tx Tx) error

// Hooks is an explicit observer registry for data-layer lifecycle events.
// The write path calls AfterWrite/AfterDelete once a mutation has been
// persisted; interested subsystems register callbacks per record type.
type Hooks struct {
	mu          sync.RWMutex
	afterWrite  map[string][]HookFunc
	afterDelete map[string][]HookFunc
}

// NewHooks creates an empty Hooks registry.
func NewHooks() *Hooks {
	return &Hooks{
		afterWrite:  make(map[string][]HookFunc),
		afterDelete: make(map[string][]HookFunc),
	}
}

// OnAfterWrite registers fn to run after every write of the given record type.
func (h *Hooks) OnAfterWrite(recordType string, fn HookFunc) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.afterWrite[recordType] = append(h.afterWrite[recordType], fn)
}

// OnAfterDelete registers fn to run after every delete of the given record type.
func (h *Hooks) OnAfterDelete(recordType string, fn HookFunc) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.afterDelete[recordType] = append(h.afterDelete[recordType], fn)
}

// AfterWrite notifies all write observers for rec's type.
func (h *Hooks) AfterWrite(ctx context.Context, rec Record, tx Tx) error {
	h.mu.RLock()
	fns := h.afterWrite[rec.RecordType()]
	h.mu.RUnlock()
	return run(ctx, fns, rec, tx)
}

// AfterDelete notifies all delete observers for rec's type.
func (h *Hooks) AfterDelete(ctx context.Context, rec Record, tx Tx) error {
	h.mu.RLock()
	fns := h.afterDelete[rec.RecordType()]
	h.mu.RUnlock()
	return run(ctx, fns, rec, tx)
}

func run(ctx context.Context, fns []HookFunc, rec Record, tx Tx) error {
	var errs []error
	for _, fn := range fns {
		if err := fn(ctx, rec, tx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
