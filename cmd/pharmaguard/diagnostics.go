package main

import (
	"github.com/spf13/cobra"

	"github.com/pharmaguard-wizard/internal/upload"
)

func inspectCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "inspect <file>",
		Short: "List the pharmacogenomic variants the backend finds in a VCF file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.setup(logStderr); err != nil {
				return err
			}
			file, err := upload.Open(args[0])
			if err != nil {
				return err
			}
			inspection, err := a.backend.InspectVCF(cmd.Context(), file.Name, file.Content)
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), inspection)
		},
	}
}

func healthCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Check that the analysis backend is reachable",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.setup(logStderr); err != nil {
				return err
			}
			status, err := a.backend.Health(cmd.Context())
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), map[string]interface{}{
				"backend": a.backend.BaseURL(),
				"status":  status,
			})
		},
	}
}
