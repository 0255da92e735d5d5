package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"schooltrans-service/internal/app"
	"schooltrans-service/internal/config"
	"schooltrans-service/internal/logger"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

func main() {
	// Load .env file if it exists (ignore error if file doesn't exist)
	_ = godotenv.Load()

	rootCmd := &cobra.Command{
		Use:     app.ServiceName,
		Short:   "School transport console backend",
		Version: fmt.Sprintf("%s (%s, built %s)", app.Version, app.GitCommit, app.BuildTime),
		RunE:    runServe,
	}
	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())

	if err := rootCmd.Execute(); err != nil {
		log.Fatal().Err(err).Msg("command failed")
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API, gRPC health server and notification poller",
		RunE:  runServe,
	}
}

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create the payment tables",
		RunE: func(cmd *cobra.Command, args []string) error {
			l := setupLogger()
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), time.Minute)
			defer cancel()
			if err := app.Migrate(ctx, cfg, l); err != nil {
				return err
			}
			l.Info("migrations applied")
			return nil
		},
	}
}

func setupLogger() *slog.Logger {
	l := logger.NewWithServiceContext(app.ServiceName, app.Version)
	slog.SetDefault(l)
	return l
}

func runServe(cmd *cobra.Command, args []string) error {
	l := setupLogger()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	application, err := app.New(ctx, cfg, l)
	if err != nil {
		return fmt.Errorf("failed to initialize application: %w", err)
	}

	runErr := application.Run(ctx)
	if runErr != nil {
		l.Error("server stopped", "error", runErr)
	}
	stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := application.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
		os.Exit(1)
	}
	if runErr != nil {
		return runErr
	}

	l.Info("Server exited gracefully")
	return nil
}
