package records

import (
	"strconv"
	"time"
)

// ActivityReport is the primary reportable entity synchronized to search.
type ActivityReport struct {
	ID               int64
	AdditionalNotes  string
	Context          string
	CalculatedStatus string
	DeliveryMethod   string
	StartDate        time.Time
	EndDate          time.Time
}

func (r *ActivityReport) RecordType() string { return "ActivityReport" }

func (r *ActivityReport) PrimaryKey() string { return strconv.FormatInt(r.ID, 10) }

func (r *ActivityReport) Fields() map[string]any {
	fields := map[string]any{
		"additionalNotes":  r.AdditionalNotes,
		"context":          r.Context,
		"calculatedStatus": r.CalculatedStatus,
		"deliveryMethod":   r.DeliveryMethod,
	}
	if !r.StartDate.IsZero() {
		fields["startDate"] = r.StartDate.Format("2006-01-02")
	}
	if !r.EndDate.IsZero() {
		fields["endDate"] = r.EndDate.Format("2006-01-02")
	}
	return fields
}

// File is an attachment on an activity report. Its binary content is
// indexed through the attachment pipeline, not the field projection.
type File struct {
	ID               int64
	ActivityReportID int64
	Key              string
	OriginalFileName string
	Status           string
	FileSize         int64
}

func (f *File) RecordType() string { return "File" }

func (f *File) PrimaryKey() string { return strconv.FormatInt(f.ID, 10) }

func (f *File) Fields() map[string]any {
	return map[string]any{
		"activityReportId": strconv.FormatInt(f.ActivityReportID, 10),
		"key":              f.Key,
		"originalFileName": f.OriginalFileName,
		"status":           f.Status,
		"fileSize":         f.FileSize,
	}
}
