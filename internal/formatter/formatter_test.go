package formatter

import (
	"context"
	"encoding/json"
	"errors"
	"reflect"
	"testing"

	"github.com/ttahub/searchsync/internal/records"
)

func TestFormat_DefaultProjectionExcludesPrimaryKey(t *testing.T) {
	reg := NewRegistry()
	rec := &records.File{
		ID:               42,
		ActivityReportID: 7,
		Key:              "uploads/report.pdf",
		OriginalFileName: "report.pdf",
		Status:           "APPROVED",
		FileSize:         2048,
	}

	doc, err := reg.Format(context.Background(), rec)
	if err != nil {
		t.Fatalf("Format: %v", err)
	}

	if _, ok := doc["id"]; ok {
		t.Error("document contains primary key, want it excluded")
	}
	if doc["key"] != "uploads/report.pdf" {
		t.Errorf("key = %v, want uploads/report.pdf", doc["key"])
	}
	if doc["activityReportId"] != "7" {
		t.Errorf("activityReportId = %v, want \"7\"", doc["activityReportId"])
	}
}

func TestFormat_Idempotent(t *testing.T) {
	reg := NewRegistry()
	rec := &records.ActivityReport{ID: 1, Context: "site visit", CalculatedStatus: "approved"}

	first, err := reg.Format(context.Background(), rec)
	if err != nil {
		t.Fatalf("Format: %v", err)
	}
	second, err := reg.Format(context.Background(), rec)
	if err != nil {
		t.Fatalf("Format: %v", err)
	}

	a, _ := json.Marshal(first)
	b, _ := json.Marshal(second)
	if string(a) != string(b) {
		t.Errorf("documents differ across calls:\n%s\n%s", a, b)
	}
}

func TestFormat_CustomFormatterWins(t *testing.T) {
	reg := NewRegistry()
	reg.Register("ActivityReport", func(ctx context.Context, rec records.Record) (map[string]any, error) {
		return map[string]any{"custom": true}, nil
	})

	doc, err := reg.Format(context.Background(), &records.ActivityReport{ID: 1})
	if err != nil {
		t.Fatalf("Format: %v", err)
	}
	if !reflect.DeepEqual(doc, map[string]any{"custom": true}) {
		t.Errorf("doc = %v, want custom formatter output", doc)
	}
}

func TestFormat_CustomFormatterErrorWrapped(t *testing.T) {
	reg := NewRegistry()
	reg.Register("ActivityReport", func(ctx context.Context, rec records.Record) (map[string]any, error) {
		return nil, errors.New("related fetch failed")
	})

	_, err := reg.Format(context.Background(), &records.ActivityReport{ID: 1})
	if !errors.Is(err, ErrFormat) {
		t.Errorf("Format error = %v, want ErrFormat", err)
	}
}

type fakeViews struct {
	doc map[string]any
	id  string
}

func (v *fakeViews) FullActivityReport(ctx context.Context, id string) (map[string]any, error) {
	v.id = id
	return v.doc, nil
}

func TestFullReport_UsesRicherReadPath(t *testing.T) {
	views := &fakeViews{doc: map[string]any{"goals": "literacy"}}
	reg := NewRegistry()
	reg.Register("ActivityReport", FullReport(views))

	doc, err := reg.Format(context.Background(), &records.ActivityReport{ID: 1234})
	if err != nil {
		t.Fatalf("Format: %v", err)
	}
	if views.id != "1234" {
		t.Errorf("views queried with id %q, want 1234", views.id)
	}
	if doc["goals"] != "literacy" {
		t.Errorf("doc = %v, want fuller view", doc)
	}
}
