package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/cobra"

	"github.com/pharmaguard-wizard/internal/history"
)

func reportsCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "reports",
		Short: "Manage the history of completed analyses",
	}
	cmd.AddCommand(reportsListCmd(a))
	cmd.AddCommand(reportsShowCmd(a))
	cmd.AddCommand(reportsDeleteCmd(a))
	cmd.AddCommand(reportsExportCmd(a))
	cmd.AddCommand(reportsImportCmd(a))
	return cmd
}

func reportsListCmd(a *app) *cobra.Command {
	var limit, offset int

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List saved reports, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.setup(logStderr); err != nil {
				return err
			}
			ctx := cmd.Context()
			store, err := a.requireHistory(ctx)
			if err != nil {
				return err
			}
			defer store.Close()

			reports, err := store.List(ctx, limit, offset)
			if err != nil {
				return err
			}
			total, err := store.Count(ctx)
			if err != nil {
				return err
			}

			fmt.Fprintln(cmd.OutOrStdout(), renderReportTable(reports))
			fmt.Fprintf(cmd.OutOrStdout(), "%d of %d report(s)\n", len(reports), total)
			return nil
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "maximum number of reports")
	cmd.Flags().IntVar(&offset, "offset", 0, "number of reports to skip")
	return cmd
}

func renderReportTable(reports []*history.Report) string {
	t := table.New().
		Border(lipgloss.NormalBorder()).
		Headers("REPORT ID", "CREATED", "PATIENT", "FILE", "DRUGS", "HIGHEST RISK")
	for _, r := range reports {
		drugs := make([]string, len(r.Drugs))
		for i, d := range r.Drugs {
			drugs[i] = string(d)
		}
		t.Row(
			r.ReportID,
			r.CreatedAt.Local().Format("2006-01-02 15:04"),
			r.PatientID,
			r.FileName,
			strings.Join(drugs, ", "),
			string(r.Summary.Highest),
		)
	}
	return t.Render()
}

func reportsShowCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "show <report-id>",
		Short: "Print one report as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.setup(logStderr); err != nil {
				return err
			}
			ctx := cmd.Context()
			store, err := a.requireHistory(ctx)
			if err != nil {
				return err
			}
			defer store.Close()

			report, err := store.Get(ctx, args[0])
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), report)
		},
	}
}

func reportsDeleteCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <report-id>",
		Short: "Delete a saved report",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.setup(logStderr); err != nil {
				return err
			}
			ctx := cmd.Context()
			store, err := a.requireHistory(ctx)
			if err != nil {
				return err
			}
			defer store.Close()

			if err := store.Delete(ctx, args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Deleted report %s\n", args[0])
			return nil
		},
	}
}

func reportsExportCmd(a *app) *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export every report as JSON",
		Long:  "Export every report as JSON. Without --output the file is written to the exports directory; use --output - for stdout.",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.setup(logStderr); err != nil {
				return err
			}
			ctx := cmd.Context()
			store, err := a.requireHistory(ctx)
			if err != nil {
				return err
			}
			defer store.Close()

			if output == "-" {
				return store.ExportJSON(ctx, cmd.OutOrStdout())
			}
			if output == "" {
				if err := a.config.EnsureDataDir(); err != nil {
					return err
				}
				output = filepath.Join(a.config.ExportDir(), fmt.Sprintf("reports-%s.json", time.Now().Format("20060102-150405")))
			}

			f, err := os.Create(output)
			if err != nil {
				return fmt.Errorf("failed to create export file: %w", err)
			}
			if err := store.ExportJSON(ctx, f); err != nil {
				f.Close()
				return err
			}
			if err := f.Close(); err != nil {
				return fmt.Errorf("failed to write export file: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Exported reports to %s\n", output)
			return nil
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "export file, or - for stdout")
	return cmd
}

func reportsImportCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "import <file>",
		Short: "Import reports from a JSON export, skipping ones already present",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.setup(logStderr); err != nil {
				return err
			}
			ctx := cmd.Context()
			store, err := a.requireHistory(ctx)
			if err != nil {
				return err
			}
			defer store.Close()

			f, err := os.Open(args[0])
			if err != nil {
				return fmt.Errorf("failed to open export file: %w", err)
			}
			defer f.Close()

			imported, skipped, err := store.ImportJSON(ctx, f)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Imported %d report(s), skipped %d\n", imported, skipped)
			return nil
		},
	}
}
