package records

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
)

// ActivityReportStore reads activity reports from PostgreSQL.
type ActivityReportStore struct {
	db *sql.DB
}

// NewActivityReportStore creates a new ActivityReportStore.
func NewActivityReportStore(db *sql.DB) *ActivityReportStore {
	return &ActivityReportStore{db: db}
}

// FindByPK implements Store.
func (s *ActivityReportStore) FindByPK(ctx context.Context, id string) (Record, error) {
	pk, err := parsePK("ActivityReport", id)
	if err != nil {
		return nil, err
	}

	row := s.db.QueryRowContext(ctx, `
		SELECT id,
		       COALESCE("additionalNotes", ''),
		       COALESCE(context, ''),
		       COALESCE("calculatedStatus", ''),
		       COALESCE("deliveryMethod", ''),
		       "startDate",
		       "endDate"
		FROM "ActivityReports"
		WHERE id = $1`, pk)

	var rec ActivityReport
	var start, end sql.NullTime
	err = row.Scan(&rec.ID, &rec.AdditionalNotes, &rec.Context,
		&rec.CalculatedStatus, &rec.DeliveryMethod, &start, &end)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: ActivityReport #%s", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("load ActivityReport #%s: %w", id, err)
	}
	if start.Valid {
		rec.StartDate = start.Time
	}
	if end.Valid {
		rec.EndDate = end.Time
	}
	return &rec, nil
}

// ListIDs implements Lister for bulk reindexing.
func (s *ActivityReportStore) ListIDs(ctx context.Context) ([]string, error) {
	return listIDs(ctx, s.db, `SELECT id FROM "ActivityReports" ORDER BY id`)
}

// FullActivityReport implements ReportViews: the base projection plus
// searchable text assembled from the report's goals, objectives and
// recipient names.
func (s *ActivityReportStore) FullActivityReport(ctx context.Context, id string) (map[string]any, error) {
	rec, err := s.FindByPK(ctx, id)
	if err != nil {
		return nil, err
	}
	doc := rec.Fields()

	pk, err := parsePK("ActivityReport", id)
	if err != nil {
		return nil, err
	}

	row := s.db.QueryRowContext(ctx, `
		SELECT COALESCE(string_agg(DISTINCT g.name, ' '), ''),
		       COALESCE(string_agg(DISTINCT o.title, ' '), '')
		FROM "ActivityReportGoals" arg
		JOIN "Goals" g ON g.id = arg."goalId"
		LEFT JOIN "Objectives" o ON o."goalId" = g.id
		WHERE arg."activityReportId" = $1`, pk)

	var goals, objectives string
	if err := row.Scan(&goals, &objectives); err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("load goals for ActivityReport #%s: %w", id, err)
	}
	doc["goals"] = goals
	doc["objectives"] = objectives

	row = s.db.QueryRowContext(ctx, `
		SELECT COALESCE(string_agg(DISTINCT rcp.name, ' '), '')
		FROM "ActivityRecipients" ar
		JOIN "Grants" gr ON gr.id = ar."grantId"
		JOIN "Recipients" rcp ON rcp.id = gr."recipientId"
		WHERE ar."activityReportId" = $1`, pk)

	var recipients string
	if err := row.Scan(&recipients); err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("load recipients for ActivityReport #%s: %w", id, err)
	}
	doc["recipients"] = recipients

	return doc, nil
}

// FileStore reads file attachments from PostgreSQL.
type FileStore struct {
	db *sql.DB
}

// NewFileStore creates a new FileStore.
func NewFileStore(db *sql.DB) *FileStore {
	return &FileStore{db: db}
}

// FindByPK implements Store.
func (s *FileStore) FindByPK(ctx context.Context, id string) (Record, error) {
	pk, err := parsePK("File", id)
	if err != nil {
		return nil, err
	}

	row := s.db.QueryRowContext(ctx, `
		SELECT id,
		       "activityReportId",
		       key,
		       COALESCE("originalFileName", ''),
		       COALESCE(status, ''),
		       COALESCE("fileSize", 0)
		FROM "Files"
		WHERE id = $1`, pk)

	var rec File
	err = row.Scan(&rec.ID, &rec.ActivityReportID, &rec.Key,
		&rec.OriginalFileName, &rec.Status, &rec.FileSize)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: File #%s", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("load File #%s: %w", id, err)
	}
	return &rec, nil
}

// ListIDs implements Lister.
func (s *FileStore) ListIDs(ctx context.Context) ([]string, error) {
	return listIDs(ctx, s.db, `SELECT id FROM "Files" ORDER BY id`)
}

func listIDs(ctx context.Context, db *sql.DB, query string) ([]string, error) {
	rows, err := db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, strconv.FormatInt(id, 10))
	}
	return ids, rows.Err()
}

// parsePK validates a job-supplied primary key. A key that cannot be a
// primary key is indistinguishable from a deleted record.
func parsePK(recordType, id string) (int64, error) {
	pk, err := strconv.ParseInt(id, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %s #%s", ErrNotFound, recordType, id)
	}
	return pk, nil
}
