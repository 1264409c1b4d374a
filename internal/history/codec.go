package history

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/pharmaguard-wizard/internal/domain"
)

// maxExportLimit is the maximum number of reports to export at once.
const maxExportLimit = 1000000

// scanner is an interface for sql.Row and sql.Rows
type scanner interface {
	Scan(dest ...interface{}) error
}

// encoded holds the JSON columns of a report
type encoded struct {
	drugs   string
	results string
	summary string
}

func encodeReport(r *Report) (encoded, error) {
	drugs, err := json.Marshal(r.Drugs)
	if err != nil {
		return encoded{}, fmt.Errorf("failed to encode drugs: %w", err)
	}
	results, err := json.Marshal(r.Results)
	if err != nil {
		return encoded{}, fmt.Errorf("failed to encode results: %w", err)
	}
	summary, err := json.Marshal(r.Summary)
	if err != nil {
		return encoded{}, fmt.Errorf("failed to encode summary: %w", err)
	}
	return encoded{drugs: string(drugs), results: string(results), summary: string(summary)}, nil
}

// scanReport scans a row into a Report.
func scanReport(s scanner) (*Report, error) {
	r := &Report{}
	var drugs, results, summary string

	if err := s.Scan(&r.ID, &r.ReportID, &r.PatientID, &r.FileName, &drugs, &results, &summary, &r.CreatedAt); err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(drugs), &r.Drugs); err != nil {
		return nil, fmt.Errorf("failed to decode drugs: %w", err)
	}
	if err := json.Unmarshal([]byte(results), &r.Results); err != nil {
		return nil, fmt.Errorf("failed to decode results: %w", err)
	}
	if err := json.Unmarshal([]byte(summary), &r.Summary); err != nil {
		return nil, fmt.Errorf("failed to decode summary: %w", err)
	}
	return r, nil
}

func prepare(r *Report) error {
	if r == nil {
		return domain.NewValidationError("report", "report is required", nil)
	}
	if r.ReportID == "" {
		return domain.NewValidationError("report_id", "report id is required", r.ReportID)
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now().UTC()
	}
	return nil
}

func exportJSON(ctx context.Context, s Store, writer io.Writer) error {
	all, err := s.List(ctx, maxExportLimit, 0)
	if err != nil {
		return fmt.Errorf("failed to list reports: %w", err)
	}
	if all == nil {
		all = []*Report{}
	}

	export := &Export{
		Version:    ExportVersion,
		ExportedAt: time.Now().UTC(),
		Count:      len(all),
		Reports:    all,
	}

	encoder := json.NewEncoder(writer)
	encoder.SetIndent("", "  ")
	return encoder.Encode(export)
}

func importJSON(ctx context.Context, s Store, reader io.Reader) (imported int, skipped int, err error) {
	var export Export
	if err := json.NewDecoder(reader).Decode(&export); err != nil {
		return 0, 0, fmt.Errorf("failed to decode JSON: %w", err)
	}

	for _, r := range export.Reports {
		_, err := s.Get(ctx, r.ReportID)
		if err == nil {
			skipped++
			continue
		}
		if !errors.Is(err, ErrNotFound) {
			return imported, skipped, fmt.Errorf("failed to check existing: %w", err)
		}

		r.ID = 0
		if err := s.Save(ctx, r); err != nil {
			return imported, skipped, fmt.Errorf("failed to save: %w", err)
		}
		imported++
	}

	return imported, skipped, nil
}
