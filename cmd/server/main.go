package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"biomagnet-assist/internal/config"
	"biomagnet-assist/internal/platform/database"
	"biomagnet-assist/internal/platform/logger"
)

var configPath string

func main() {
	root := &cobra.Command{
		Use:           "biomagnet-assist",
		Short:         "Clinical notes and session analysis backend for biomagnetism therapists",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to a YAML config file")
	root.AddCommand(serveCmd(), migrateCmd())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run migrations and start the HTTP API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, log, err := bootstrap()
			if err != nil {
				return err
			}
			defer log.Sync()
			return serve(cmd.Context(), cfg, log)
		},
	}
}

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations and exit",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, log, err := bootstrap()
			if err != nil {
				return err
			}
			defer log.Sync()

			db, err := database.Open(cmd.Context(), cfg.Storage.Driver, cfg.Storage.DSN, log)
			if err != nil {
				return err
			}
			defer db.Close()
			if err := database.Migrate(db, cfg.Storage.Driver); err != nil {
				return err
			}
			log.Info("migrations applied", "driver", cfg.Storage.Driver)
			return nil
		},
	}
}

func bootstrap() (*config.Config, *logger.Logger, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, err
	}
	var opts []logger.Option
	if cfg.Log.HashSalt != "" {
		opts = append(opts, logger.WithHashSalt(cfg.Log.HashSalt))
	}
	log, err := logger.New(cfg.Log.Mode, opts...)
	if err != nil {
		return nil, nil, fmt.Errorf("init logger: %w", err)
	}
	return cfg, log, nil
}
