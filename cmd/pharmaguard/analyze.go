package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/pharmaguard-wizard/internal/domain"
	"github.com/pharmaguard-wizard/internal/history"
	"github.com/pharmaguard-wizard/internal/upload"
	"github.com/pharmaguard-wizard/pkg/backend"
)

// analysisOutput is what `analyze` prints
type analysisOutput struct {
	ReportID  string               `json:"report_id,omitempty"`
	PatientID string               `json:"patient_id,omitempty"`
	File      string               `json:"file"`
	Results   []domain.RiskResult  `json:"results"`
	Summary   domain.ResultSummary `json:"summary"`
}

func analyzeCmd(a *app) *cobra.Command {
	var (
		filePath  string
		drugNames []string
		patientID string
		save      bool
		gene      string
		phenotype string
	)

	cmd := &cobra.Command{
		Use:   "analyze",
		Short: "Assess drug risks for a VCF file and print the results as JSON",
		Example: `  pharmaguard analyze --file patient.vcf --drug codeine --drug warfarin
  pharmaguard analyze --file patient.vcf.gz --drug CLOPIDOGREL,SIMVASTATIN --patient P-001 --save
  pharmaguard analyze --gene CYP2D6 --phenotype "Poor Metabolizer" --drug CODEINE`,
		RunE: func(cmd *cobra.Command, args []string) error {
			drugs, err := parseDrugs(drugNames)
			if err != nil {
				return err
			}
			if err := a.setup(logStderr); err != nil {
				return err
			}
			ctx := cmd.Context()

			if gene != "" {
				return runManual(ctx, a, cmd.OutOrStdout(), gene, phenotype, drugs)
			}
			if filePath == "" {
				return fmt.Errorf("--file is required")
			}

			file, err := upload.Open(filePath)
			if err != nil {
				return err
			}
			results, err := a.gateway().Analyze(ctx, file, drugs, patientID)
			if err != nil {
				return err
			}

			out := analysisOutput{
				PatientID: patientID,
				File:      file.Name,
				Results:   results,
				Summary:   domain.Summarize(results),
			}
			if save {
				reportID, err := saveReport(ctx, a, patientID, file.Name, drugs, results)
				if err != nil {
					return err
				}
				out.ReportID = reportID
			}
			return writeJSON(cmd.OutOrStdout(), out)
		},
	}

	cmd.Flags().StringVarP(&filePath, "file", "f", "", "VCF file (.vcf or .vcf.gz, 50 MB at most)")
	cmd.Flags().StringSliceVarP(&drugNames, "drug", "d", nil, "drug to assess; repeat or comma-separate")
	cmd.Flags().StringVarP(&patientID, "patient", "p", "", "patient identifier sent with the analysis")
	cmd.Flags().BoolVar(&save, "save", false, "record the report in the history store")
	cmd.Flags().StringVar(&gene, "gene", "", "gene for a manual gene/phenotype lookup instead of a file")
	cmd.Flags().StringVar(&phenotype, "phenotype", "", "phenotype for a manual lookup")
	_ = cmd.MarkFlagRequired("drug")
	cmd.MarkFlagsMutuallyExclusive("file", "gene")

	return cmd
}

// parseDrugs converts flag values to drugs, dropping duplicates
func parseDrugs(names []string) ([]domain.Drug, error) {
	var drugs []domain.Drug
	seen := make(map[domain.Drug]bool)
	for _, name := range names {
		d, err := domain.ParseDrug(name)
		if err != nil {
			return nil, err
		}
		if seen[d] {
			continue
		}
		seen[d] = true
		drugs = append(drugs, d)
	}
	if len(drugs) == 0 {
		return nil, fmt.Errorf("at least one --drug is required")
	}
	return drugs, nil
}

// runManual sends one gene/phenotype lookup per drug
func runManual(ctx context.Context, a *app, w io.Writer, gene, phenotype string, drugs []domain.Drug) error {
	responses := make([]*backend.ManualResponse, 0, len(drugs))
	for _, d := range drugs {
		resp, err := a.backend.AnalyzeManual(ctx, backend.ManualRequest{
			Gene:      gene,
			Phenotype: phenotype,
			Drug:      string(d),
		})
		if err != nil {
			return fmt.Errorf("manual analysis for %s failed: %w", d, err)
		}
		responses = append(responses, resp)
	}
	return writeJSON(w, responses)
}

func saveReport(ctx context.Context, a *app, patientID, fileName string, drugs []domain.Drug, results []domain.RiskResult) (string, error) {
	store, err := a.requireHistory(ctx)
	if err != nil {
		return "", err
	}
	defer store.Close()

	report := history.NewReport(patientID, fileName, drugs, results)
	if err := store.Save(ctx, report); err != nil {
		return "", fmt.Errorf("failed to save report: %w", err)
	}
	a.logger.WithField("report_id", report.ReportID).Info("Report saved")
	return report.ReportID, nil
}

func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
