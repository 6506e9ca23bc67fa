// Package records is the seam between search synchronization and the
// relational data layer. It defines the read-only record contracts the
// indexing path consumes, the lifecycle-hook registry the write path emits
// into, and thin PostgreSQL stores for the record types that participate in
// search. Nothing here ever mutates the database.
package records

import (
	"context"
	"errors"
	"fmt"
)

// Error types for record lookups.
var (
	// ErrNotFound means the record no longer exists in the database.
	ErrNotFound = errors.New("record not found")
	// ErrUnknownType means no store is registered for a record type.
	ErrUnknownType = errors.New("unknown record type")
)

// Record is a relational record eligible for search indexing.
type Record interface {
	// RecordType is the logical entity kind, e.g. "ActivityReport".
	RecordType() string
	// PrimaryKey is the stringified primary key; it becomes the search
	// document id.
	PrimaryKey() string
	// Fields is the default search projection: every indexed column
	// except the primary key.
	Fields() map[string]any
}

// Store loads canonical records by primary key.
type Store interface {
	FindByPK(ctx context.Context, id string) (Record, error)
}

// Lister enumerates primary keys, for bulk reindex tooling.
type Lister interface {
	ListIDs(ctx context.Context) ([]string, error)
}

// ReportViews assembles the fuller activity-report read used by the custom
// search formatter, richer than the bare stored columns.
type ReportViews interface {
	FullActivityReport(ctx context.Context, id string) (map[string]any, error)
}

// Tx is the slice of a database transaction the indexing path needs: the
// ability to defer work until after commit. The callback receives a context
// valid after the transaction has completed.
type Tx interface {
	AfterCommit(fn func(ctx context.Context))
}

// Registry maps record type names to their stores.
type Registry struct {
	stores map[string]Store
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{stores: make(map[string]Store)}
}

// Register adds (or replaces) the store for a record type.
func (r *Registry) Register(recordType string, s Store) {
	r.stores[recordType] = s
}

// Lookup returns the store for a record type.
func (r *Registry) Lookup(recordType string) (Store, error) {
	s, ok := r.stores[recordType]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownType, recordType)
	}
	return s, nil
}
