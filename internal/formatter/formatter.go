// Package formatter turns relational records into search documents.
package formatter

import (
	"context"
	"errors"
	"fmt"

	"github.com/ttahub/searchsync/internal/records"
)

// ErrFormat wraps document projection failures. Usually caused by a
// transient read-path failure, so format errors are retryable.
var ErrFormat = errors.New("format document")

// Func produces the search document for one record.
type Func func(ctx context.Context, rec records.Record) (map[string]any, error)

// Registry dispatches formatting by record type, falling back to the
// record's own field projection when no custom formatter is registered.
// The primary key never appears in the document body; it is the document id.
type Registry struct {
	custom map[string]Func
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{custom: make(map[string]Func)}
}

// Register installs (or replaces) the custom formatter for a record type.
func (r *Registry) Register(recordType string, f Func) {
	r.custom[recordType] = f
}

// Format builds the search document for rec.
func (r *Registry) Format(ctx context.Context, rec records.Record) (map[string]any, error) {
	if f, ok := r.custom[rec.RecordType()]; ok {
		doc, err := f(ctx, rec)
		if err != nil {
			return nil, fmt.Errorf("%w: %s #%s: %w", ErrFormat, rec.RecordType(), rec.PrimaryKey(), err)
		}
		return doc, nil
	}
	return rec.Fields(), nil
}

// FullReport returns a Func that assembles the fuller activity-report view
// through the richer read path rather than the bare stored columns.
func FullReport(views records.ReportViews) Func {
	return func(ctx context.Context, rec records.Record) (map[string]any, error) {
		return views.FullActivityReport(ctx, rec.PrimaryKey())
	}
}
