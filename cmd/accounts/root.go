package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/goliatone/go-accounts"
	"github.com/goliatone/go-print"
	"github.com/spf13/cobra"
)

func newRootCommand() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:           "accounts",
		Short:         "Identity provider reconciliation and account lifecycle service",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", os.Getenv("ACCOUNTS_CONFIG"), "path to a YAML config file (env ACCOUNTS_CONFIG)")

	root.AddCommand(
		newServeCommand(&configPath),
		newSyncCommand(&configPath),
		newMigrateCommand(&configPath),
	)
	return root
}

func newServeCommand(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the account actions HTTP endpoint",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, err := bootstrap(ctx, *configPath)
			if err != nil {
				return err
			}
			defer a.Close()

			return serve(ctx, a)
		},
	}
}

func serve(ctx context.Context, a *app) error {
	srv := fiber.New(fiber.Config{
		AppName:               "accounts",
		DisableStartupMessage: true,
	})

	controller := accounts.NewHTTPController(a.service,
		accounts.WithControllerPath(a.cfg.Server.Path),
		accounts.WithAllowedOrigin(a.cfg.Server.AllowedOrigin),
		accounts.WithRequireAdminToken(a.cfg.Auth.RequireAdminToken),
		accounts.WithControllerLogger(a.logger),
		accounts.WithRequestObserver(a.metrics),
	)
	controller.Register(srv)

	if path := a.cfg.Server.MetricsPath; path != "" {
		srv.Get(path, adaptor.HTTPHandler(a.metrics.Handler()))
	}

	errCh := make(chan error, 1)
	go func() {
		a.logger.Info("accounts server listening",
			"addr", a.cfg.Server.Addr,
			"path", controller.Path(),
			"provider", a.provider.Name(),
		)
		errCh <- srv.Listen(a.cfg.Server.Addr)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	a.logger.Info("shutting down accounts server", "grace", a.cfg.Server.ShutdownGrace)
	return srv.ShutdownWithTimeout(a.cfg.Server.ShutdownGrace)
}

func newSyncCommand(configPath *string) *cobra.Command {
	var userID string

	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Reconcile profile flags with provider group membership",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, err := bootstrap(ctx, *configPath)
			if err != nil {
				return err
			}
			defer a.Close()

			if userID != "" {
				updated, err := a.service.Reconciler.SyncUser(ctx, userID)
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), print.MaybePrettyJSON(map[string]any{
					"userId":  userID,
					"updated": updated,
				}))
				return nil
			}

			report, err := a.service.Reconciler.SyncAll(ctx)
			if report != nil {
				fmt.Fprintln(cmd.OutOrStdout(), print.MaybePrettyJSON(report))
			}
			if err != nil {
				return err
			}
			if !report.Success() {
				return fmt.Errorf("sync finished with %d errors", len(report.Errors))
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&userID, "user", "", "reconcile a single user id")
	return cmd
}

func newMigrateCommand(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create the profiles table",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := bootstrapDatabase(*configPath)
			if err != nil {
				return err
			}
			defer a.Close()

			if err := a.store.Migrate(cmd.Context()); err != nil {
				return err
			}
			a.logger.Info("profiles table ready", "driver", a.cfg.Database.Driver)
			return nil
		},
	}
}
