package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/pharmaguard-wizard/internal/api"
	"github.com/pharmaguard-wizard/internal/events"
	"github.com/pharmaguard-wizard/internal/session"
	"github.com/pharmaguard-wizard/internal/tui"
)

func serveCmd(a *app) *cobra.Command {
	var port int

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the wizard HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.setup(logConfigured); err != nil {
				return err
			}
			cfg := a.config.GetConfig()
			if port > 0 {
				cfg.Server.Port = port
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			store, err := a.openHistory(ctx)
			if err != nil {
				return err
			}
			if store != nil {
				defer store.Close()
			}

			hub := events.NewHub(a.logger)
			opts := []session.Option{session.WithHub(hub), session.WithLogger(a.logger)}
			if store != nil {
				opts = append(opts, session.WithHistory(store))
			}
			sessions := session.NewManager(a.gateway(), a.catalog, cfg.Session, opts...)
			defer sessions.Purge()

			server := api.NewServer(a.config, api.Dependencies{
				Sessions: sessions,
				Catalog:  a.catalog,
				Backend:  a.backend,
				History:  store,
				Hub:      hub,
				Logger:   a.logger,
			})

			a.logger.WithFields(logrus.Fields{
				"host":        cfg.Server.Host,
				"port":        cfg.Server.Port,
				"backend":     a.backend.BaseURL(),
				"history":     cfg.History.Driver,
				"environment": cfg.Environment,
			}).Info("Starting PharmaGuard API")

			if err := server.Start(ctx); err != nil {
				return err
			}
			a.logger.Info("Server stopped")
			return nil
		},
	}
	cmd.Flags().IntVar(&port, "port", 0, "listen port (overrides server.port)")
	return cmd
}

func wizardCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "wizard",
		Short: "Run the wizard in the terminal",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.setup(logFile); err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			store, err := a.openHistory(ctx)
			if err != nil {
				return err
			}
			if store != nil {
				defer store.Close()
			}

			opts := []session.Option{session.WithLogger(a.logger)}
			if store != nil {
				opts = append(opts, session.WithHistory(store))
			}
			sessions := session.NewManager(a.gateway(), a.catalog, *a.config.GetSessionConfig(), opts...)
			s := sessions.Create()
			defer sessions.Delete(s.ID)

			return tui.Run(ctx, s.Controller)
		},
	}
}
