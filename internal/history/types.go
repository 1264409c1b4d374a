// Package history keeps completed analyses so reports can be listed and
// exported after the wizard session that produced them is gone.
package history

import (
	"context"
	"errors"
	"io"
	"time"

	"github.com/google/uuid"

	"github.com/pharmaguard-wizard/internal/domain"
)

// ErrNotFound is returned when a report id is unknown
var ErrNotFound = errors.New("report not found")

// ExportVersion tags the JSON export format
const ExportVersion = "1.0"

// Report is one completed analysis
type Report struct {
	ID        int64                `json:"id,omitempty"`
	ReportID  string               `json:"report_id"`
	PatientID string               `json:"patient_id"`
	FileName  string               `json:"file_name,omitempty"`
	Drugs     []domain.Drug        `json:"drugs"`
	Results   []domain.RiskResult  `json:"results"`
	Summary   domain.ResultSummary `json:"summary"`
	CreatedAt time.Time            `json:"created_at"`
}

// NewReport builds an unsaved report with a fresh report id
func NewReport(patientID, fileName string, drugs []domain.Drug, results []domain.RiskResult) *Report {
	return &Report{
		ReportID:  uuid.New().String(),
		PatientID: patientID,
		FileName:  fileName,
		Drugs:     append([]domain.Drug(nil), drugs...),
		Results:   append([]domain.RiskResult(nil), results...),
		Summary:   domain.Summarize(results),
	}
}

// Store defines the interface for report storage operations.
type Store interface {
	// Save inserts a report. A report with the same ReportID is replaced.
	Save(ctx context.Context, report *Report) error

	// Get retrieves a report by its report id. Unknown ids return ErrNotFound.
	Get(ctx context.Context, reportID string) (*Report, error)

	// List returns reports newest first with pagination.
	List(ctx context.Context, limit, offset int) ([]*Report, error)

	// Count returns the total number of reports.
	Count(ctx context.Context) (int64, error)

	// Delete removes a report. Unknown ids return ErrNotFound.
	Delete(ctx context.Context, reportID string) error

	// ExportJSON writes every report to writer.
	ExportJSON(ctx context.Context, writer io.Writer) error

	// ImportJSON loads an export, skipping reports that already exist.
	ImportJSON(ctx context.Context, reader io.Reader) (imported int, skipped int, err error)

	// Close closes the store and releases resources.
	Close() error
}

// Export represents the JSON export format.
type Export struct {
	Version    string    `json:"version"`
	ExportedAt time.Time `json:"exported_at"`
	Count      int       `json:"count"`
	Reports    []*Report `json:"reports"`
}
