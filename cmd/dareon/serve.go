package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/dareon-io/dareon2/common/environment"
	"github.com/dareon-io/dareon2/common/version"
	"github.com/dareon-io/dareon2/internal/dareon/app"
	"github.com/dareon-io/dareon2/internal/dareon/config"
	"github.com/dareon-io/dareon2/internal/dareon/observability"
)

func newServeCmd() *cobra.Command {
	var configPath, envFile string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API server",
		Example: `  dareon serve
  dareon serve --config /etc/dareon/config.yaml --env-file /etc/dareon/.env`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := config.LoadEnvFile(envFile); err != nil {
				return err
			}
			cfg, err := config.Load(configPath, environment.OS(config.EnvPrefix))
			if err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return fmt.Errorf("invalid configuration:\n%w", err)
			}

			logger, closer := observability.Setup(observability.Options{
				Level:  cfg.Log.Level,
				Format: cfg.Log.Format,
				Dir:    cfg.Log.Dir,
			})
			defer closer.Close()
			logger.Info("starting dareon", "version", version.Version, "commit", version.GitCommit,
				"environment", cfg.Server.Environment, "port", cfg.Server.Port)

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, err := app.New(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer a.Close()

			if err := a.Run(ctx); err != nil {
				logger.Error("server stopped", "err", err)
				return err
			}
			logger.Info("shutdown complete")
			return nil
		},
	}
	cmd.Flags().StringVar(&configPath, "config", "", "path to a YAML config file")
	cmd.Flags().StringVar(&envFile, "env-file", ".env", "dotenv file loaded before reading the environment")
	return cmd
}
