// Package pipelines holds the static backend-side document processing and
// mapping definitions for every record type that participates in search.
// Definitions are versioned by deploy, never mutated at runtime.
package pipelines

import (
	"context"
	"fmt"

	"github.com/ttahub/searchsync/internal/search"
)

// reportHTMLFields are the ActivityReport fields that contain rich text.
// The backend's html_strip processor removes the markup at index time.
var reportHTMLFields = []string{
	"additionalNotes",
	"context",
}

// Pipeline is a backend ingest-pipeline definition.
type Pipeline struct {
	Description string           `json:"description"`
	Processors  []map[string]any `json:"processors"`
}

// Definitions maps record type names to their ingest pipelines. The
// pipeline name passed at index time is the record type itself.
func Definitions() map[string]Pipeline {
	reportProcessors := make([]map[string]any, 0, len(reportHTMLFields))
	for _, field := range reportHTMLFields {
		reportProcessors = append(reportProcessors, map[string]any{
			"html_strip": map[string]any{"field": field},
		})
	}

	return map[string]Pipeline{
		"ActivityReport": {
			Description: "Processes incoming activity reports",
			Processors:  reportProcessors,
		},
		"File": {
			Description: "Processes incoming file attachments",
			Processors: []map[string]any{
				{
					"attachment": map[string]any{
						"field":      "data",
						"properties": []string{"content", "title"},
					},
				},
				// The extracted text is kept; the base64 original is not.
				{
					"remove": map[string]any{"field": "data"},
				},
			},
		},
	}
}

// Mappings maps record type names to index field mappings.
func Mappings() map[string]map[string]any {
	return map[string]map[string]any{
		"ActivityReport": {
			"properties": map[string]any{
				"additionalNotes":  map[string]any{"type": "text"},
				"context":          map[string]any{"type": "text"},
				"calculatedStatus": map[string]any{"type": "keyword"},
				"deliveryMethod":   map[string]any{"type": "keyword"},
				"startDate":        map[string]any{"type": "date"},
				"endDate":          map[string]any{"type": "date"},
				"goals":            map[string]any{"type": "text"},
				"objectives":       map[string]any{"type": "text"},
				"recipients":       map[string]any{"type": "text"},
			},
		},
		"File": {
			"properties": map[string]any{
				"activityReportId": map[string]any{"type": "keyword"},
				"originalFileName": map[string]any{"type": "text"},
				"status":           map[string]any{"type": "keyword"},
				"attachment": map[string]any{
					"properties": map[string]any{
						"content": map[string]any{"type": "text"},
						"title":   map[string]any{"type": "text"},
					},
				},
			},
		},
	}
}

// Installer is the slice of the search client needed to install
// definitions.
type Installer interface {
	CreateIndex(ctx context.Context, index string) error
	DeleteIndex(ctx context.Context, index string) error
	PutMapping(ctx context.Context, index string, mapping any) error
	PutPipeline(ctx context.Context, name string, pipeline any) error
}

// Install pushes every pipeline and mapping to the backend, creating the
// indices first. With recreate set, existing indices are dropped — that
// discards indexed documents and requires a full reindex afterwards.
func Install(ctx context.Context, client Installer, recreate bool) error {
	for name, pipeline := range Definitions() {
		if err := client.PutPipeline(ctx, name, pipeline); err != nil {
			return fmt.Errorf("install pipeline %s: %w", name, err)
		}
	}

	for recordType, mapping := range Mappings() {
		index := search.IndexNameFor(recordType)

		if recreate {
			if err := client.DeleteIndex(ctx, index); err != nil {
				return fmt.Errorf("recreate index %s: %w", index, err)
			}
		}
		if err := client.CreateIndex(ctx, index); err != nil {
			return fmt.Errorf("create index %s: %w", index, err)
		}
		if err := client.PutMapping(ctx, index, mapping); err != nil {
			return fmt.Errorf("install mapping %s: %w", index, err)
		}
	}
	return nil
}
