package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/pharmaguard-wizard/internal/analysis"
	"github.com/pharmaguard-wizard/internal/catalog"
	"github.com/pharmaguard-wizard/internal/config"
	"github.com/pharmaguard-wizard/internal/history"
	"github.com/pharmaguard-wizard/internal/logging"
	"github.com/pharmaguard-wizard/pkg/backend"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

// logTarget says where a command may write its logs
type logTarget int

const (
	// logConfigured uses logging.output as configured
	logConfigured logTarget = iota
	// logStderr keeps stdout free for command output
	logStderr
	// logFile writes to the data directory, for full-screen UIs
	logFile
)

// app holds the collaborators shared by every subcommand
type app struct {
	configFile string

	config  *config.Manager
	logger  *logrus.Logger
	catalog *catalog.Catalog
	backend *backend.Client
}

func newRootCmd() *cobra.Command {
	a := &app{}

	root := &cobra.Command{
		Use:          "pharmaguard",
		Short:        "Pharmacogenomic risk assessment wizard",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&a.configFile, "config", "", "configuration file (default: ./config.yaml)")

	root.AddCommand(serveCmd(a))
	root.AddCommand(wizardCmd(a))
	root.AddCommand(analyzeCmd(a))
	root.AddCommand(inspectCmd(a))
	root.AddCommand(healthCmd(a))
	root.AddCommand(reportsCmd(a))

	return root
}

// setup loads and validates configuration, then builds the logger, catalog
// and backend client
func (a *app) setup(target logTarget) error {
	var opts []config.Option
	if a.configFile != "" {
		opts = append(opts, config.WithConfigFile(a.configFile))
	}
	manager, err := config.NewManager(opts...)
	if err != nil {
		return err
	}
	if err := manager.Validate(); err != nil {
		return fmt.Errorf("configuration validation failed: %w", err)
	}
	cfg := manager.GetConfig()

	logCfg := cfg.Logging
	switch target {
	case logStderr:
		if logCfg.Output == "" || logCfg.Output == "stdout" {
			logCfg.Output = "stderr"
		}
	case logFile:
		if err := manager.EnsureDataDir(); err != nil {
			return err
		}
		logCfg.Output = filepath.Join(manager.DataDir(), "pharmaguard.log")
	}
	logger, err := logging.New(logCfg)
	if err != nil {
		return err
	}

	cat, err := catalog.Load(cfg.Catalog.Path)
	if err != nil {
		return err
	}

	a.config = manager
	a.logger = logger
	a.catalog = cat
	a.backend = backend.NewClient(cfg.Backend, backend.WithLogger(logger))
	return nil
}

func (a *app) gateway() *analysis.Gateway {
	return analysis.NewGatewayFromConfig(a.backend, a.catalog, *a.config.GetBackendConfig(), a.logger)
}

// openHistory opens the configured report store. A nil store means history is disabled.
func (a *app) openHistory(ctx context.Context) (history.Store, error) {
	historyCfg := *a.config.GetHistoryConfig()
	if historyCfg.Driver == "" || historyCfg.Driver == "sqlite" {
		if err := a.config.EnsureDataDir(); err != nil {
			return nil, err
		}
	}
	store, err := history.Open(ctx, historyCfg, a.config.HistoryDBPath())
	if err != nil {
		return nil, fmt.Errorf("failed to open report history: %w", err)
	}
	return store, nil
}

// requireHistory is openHistory for commands that cannot work without one
func (a *app) requireHistory(ctx context.Context) (history.Store, error) {
	store, err := a.openHistory(ctx)
	if err != nil {
		return nil, err
	}
	if store == nil {
		return nil, fmt.Errorf("report history is disabled (history.driver=none)")
	}
	return store, nil
}
