package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"baletrack/config"
	"baletrack/infrastructure/audit"
	"baletrack/infrastructure/sqlite"
	"baletrack/production/products"
)

func main() {
	// Process environment wins over .env.
	if err := godotenv.Load(); err != nil {
		log.Println("no .env file found, using process environment")
	}
	if err := newRootCmd(config.LoadEnv()).Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd(cfg *config.Config) *cobra.Command {
	serve := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API (default).",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context(), cfg)
		},
	}

	migrate := &cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations and exit.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runMigrate(cmd.Context(), cfg, cmd)
		},
	}

	importProducts := &cobra.Command{
		Use:   "import-products",
		Short: "Load a sku,name CSV into the product catalog.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			path, _ := cmd.Flags().GetString("file")
			actor, _ := cmd.Flags().GetString("actor")
			return runImportProducts(cmd.Context(), cfg, cmd, path, actor)
		},
	}
	importProducts.Flags().String("file", "", "CSV file with a sku,name header")
	importProducts.Flags().String("actor", "cli", "actor recorded in the audit trail")
	_ = importProducts.MarkFlagRequired("file")

	root := &cobra.Command{
		Use:           "baletrack",
		Short:         "Production lifecycle and warehouse reconciliation service",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          serve.RunE,
	}
	root.AddCommand(serve, migrate, importProducts)
	return root
}

func runServe(ctx context.Context, cfg *config.Config) error {
	if ctx == nil {
		ctx = context.Background()
	}
	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.Start(); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	<-ctx.Done()
	a.logger.Info("shutting down")
	return nil
}

func runMigrate(ctx context.Context, cfg *config.Config, cmd *cobra.Command) error {
	db, err := sqlite.OpenDB(cfg.SQLite.Path)
	if err != nil {
		return fmt.Errorf("open db: %w", err)
	}
	defer db.Close()

	pending, err := sqlite.PendingMigrations(ctx, db)
	if err != nil {
		return err
	}
	if err := sqlite.ApplyMigrations(ctx, db, cfg.SQLite.MigrationsDir); err != nil {
		return fmt.Errorf("apply migrations: %w", err)
	}
	cmd.Printf("applied %d migration(s) to %s\n", len(pending), cfg.SQLite.Path)
	return nil
}

func runImportProducts(ctx context.Context, cfg *config.Config, cmd *cobra.Command, path, actor string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open csv: %w", err)
	}
	defer f.Close()

	db, err := sqlite.OpenDB(cfg.SQLite.Path)
	if err != nil {
		return fmt.Errorf("open db: %w", err)
	}
	defer db.Close()
	if err := sqlite.ApplyMigrations(ctx, db, cfg.SQLite.MigrationsDir); err != nil {
		return fmt.Errorf("apply migrations: %w", err)
	}

	logger, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck

	sink, closeSinks := buildSinks(ctx, cfg, audit.NewService(db, logger), logger)
	defer closeSinks()

	svc := products.NewService(db, nil, sink, logger)
	summary, err := svc.ImportCSV(ctx, actor, f)
	if err != nil {
		return err
	}
	logger.Info("products imported",
		zap.String("file", path),
		zap.Int("inserted", summary.Inserted),
		zap.Int("updated", summary.Updated),
		zap.Int("errors", summary.Errors))
	cmd.Printf("inserted=%d updated=%d errors=%d\n", summary.Inserted, summary.Updated, summary.Errors)
	return nil
}
