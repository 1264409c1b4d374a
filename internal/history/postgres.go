package history

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"time"

	_ "github.com/lib/pq"
)

// PostgresSchema creates the reports table
const PostgresSchema = `
CREATE TABLE IF NOT EXISTS reports (
	id BIGSERIAL PRIMARY KEY,
	report_id TEXT NOT NULL UNIQUE,
	patient_id TEXT NOT NULL DEFAULT '',
	file_name TEXT NOT NULL DEFAULT '',
	drugs JSONB NOT NULL,
	results JSONB NOT NULL,
	summary JSONB NOT NULL,
	created_at TIMESTAMP WITH TIME ZONE DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS idx_reports_patient_id ON reports(patient_id);
CREATE INDEX IF NOT EXISTS idx_reports_created_at ON reports(created_at);
`

// PostgresStore implements the Store interface using PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new PostgreSQL report store on an open connection.
func NewPostgresStore(db *sql.DB) (*PostgresStore, error) {
	if db == nil {
		return nil, fmt.Errorf("database connection is required")
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &PostgresStore{db: db}, nil
}

// NewPostgresStoreFromURL opens a connection pool, ensures the schema and
// returns a store.
func NewPostgresStoreFromURL(ctx context.Context, databaseURL string) (*PostgresStore, error) {
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	store, err := NewPostgresStore(db)
	if err != nil {
		db.Close()
		return nil, err
	}
	if err := store.EnsureSchema(ctx); err != nil {
		db.Close()
		return nil, err
	}

	return store, nil
}

// EnsureSchema creates the reports table if it doesn't exist
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, PostgresSchema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

// Save inserts a report, replacing one with the same report id.
func (s *PostgresStore) Save(ctx context.Context, report *Report) error {
	if err := prepare(report); err != nil {
		return err
	}
	enc, err := encodeReport(report)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO reports (report_id, patient_id, file_name, drugs, results, summary, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (report_id) DO UPDATE SET
			patient_id = EXCLUDED.patient_id,
			file_name = EXCLUDED.file_name,
			drugs = EXCLUDED.drugs,
			results = EXCLUDED.results,
			summary = EXCLUDED.summary
		RETURNING id, created_at
	`

	err = s.db.QueryRowContext(ctx, query,
		report.ReportID,
		report.PatientID,
		report.FileName,
		enc.drugs,
		enc.results,
		enc.summary,
		report.CreatedAt,
	).Scan(&report.ID, &report.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to save report: %w", err)
	}
	return nil
}

// Get retrieves a report by its report id.
func (s *PostgresStore) Get(ctx context.Context, reportID string) (*Report, error) {
	query := `
		SELECT id, report_id, patient_id, file_name, drugs, results, summary, created_at
		FROM reports
		WHERE report_id = $1
	`

	r, err := scanReport(s.db.QueryRowContext(ctx, query, reportID))
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get report: %w", err)
	}
	return r, nil
}

// List returns reports newest first with pagination.
func (s *PostgresStore) List(ctx context.Context, limit, offset int) ([]*Report, error) {
	query := `
		SELECT id, report_id, patient_id, file_name, drugs, results, summary, created_at
		FROM reports
		ORDER BY created_at DESC, id DESC
		LIMIT $1 OFFSET $2
	`

	rows, err := s.db.QueryContext(ctx, query, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list reports: %w", err)
	}
	defer rows.Close()

	var result []*Report
	for rows.Next() {
		r, err := scanReport(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan report: %w", err)
		}
		result = append(result, r)
	}
	return result, rows.Err()
}

// Count returns the total number of reports.
func (s *PostgresStore) Count(ctx context.Context) (int64, error) {
	var count int64
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM reports").Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count reports: %w", err)
	}
	return count, nil
}

// Delete removes a report by report id.
func (s *PostgresStore) Delete(ctx context.Context, reportID string) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM reports WHERE report_id = $1", reportID)
	if err != nil {
		return fmt.Errorf("failed to delete report: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to delete report: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// ExportJSON exports all reports to a JSON writer.
func (s *PostgresStore) ExportJSON(ctx context.Context, writer io.Writer) error {
	return exportJSON(ctx, s, writer)
}

// ImportJSON imports reports from a JSON reader.
func (s *PostgresStore) ImportJSON(ctx context.Context, reader io.Reader) (imported int, skipped int, err error) {
	return importJSON(ctx, s, reader)
}

// Close closes the store and releases resources.
func (s *PostgresStore) Close() error {
	return s.db.Close()
}
