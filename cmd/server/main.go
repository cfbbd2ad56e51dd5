/*
main.go - Application entry point

PURPOSE:
  The clubportal binary. Serves the HTTP API and runs the admin data
  jobs (CSV import, backup export, legacy clear) against the same store.

COMMANDS:
  serve                    HTTP server
  import <file.csv>        Bulk import, schema detected per row
  export members|logs      Backup CSV to stdout or -o file
  clear-legacy             Delete every legacy record

FLAGS (all commands):
  --config   Config file (default configs/config.yaml, optional)
  --db       Overrides database.path; ":memory:" for an in-memory database

STARTUP SEQUENCE (serve):
  1. Load config, install JSON slog handler
  2. Open SQLite store, declare group indexes
  3. Open blob store (S3 when blob.bucket is set, else in-memory)
  4. Build auth service and API handler
  5. Start server with graceful shutdown

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop accepting new connections
  2. Wait for active requests to complete (30s timeout)
  3. Close database connection
  4. Exit

ENVIRONMENT:
  Every config key, upper-cased with "." as "_": JWT_SECRET, SERVER_PORT,
  DATABASE_PATH, BLOB_BUCKET, LOG_LEVEL, ...

SEE ALSO:
  - config/config.go: Configuration keys and defaults
  - api/server.go: Router configuration
  - store/sqlite/sqlite.go: Database implementation
*/
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/warp/clubportal/api"
	"github.com/warp/clubportal/auth"
	"github.com/warp/clubportal/config"
	"github.com/warp/clubportal/generic"
	memstore "github.com/warp/clubportal/generic/store"
	"github.com/warp/clubportal/sheets"
	"github.com/warp/clubportal/store/s3store"
	"github.com/warp/clubportal/store/sqlite"
)

var (
	configPath string
	dbOverride string
)

var rootCmd = &cobra.Command{
	Use:   "clubportal",
	Short: "Club membership portal server and data tools",
	Long: `clubportal serves the member portal API and runs admin data jobs
(bulk CSV import, backup export, legacy cleanup) against the same database.`,
	SilenceUsage: true,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API server",
	Args:  cobra.NoArgs,
	RunE:  runServe,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", config.DefaultPath, "Config file path")
	rootCmd.PersistentFlags().StringVar(&dbOverride, "db", "", "SQLite database path (overrides database.path)")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(importCmd)
	rootCmd.AddCommand(exportCmd)
	rootCmd.AddCommand(clearLegacyCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// =============================================================================
// SHARED SETUP
// =============================================================================

// setup loads config, installs the logger and opens the store with its
// declared group indexes.
func setup(ctx context.Context) (*config.Config, *sqlite.Store, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, err
	}
	if dbOverride != "" {
		cfg.Database.Path = dbOverride
	}

	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.LogLevel()})))

	indexes, err := cfg.Indexes()
	if err != nil {
		return nil, nil, err
	}

	store, err := sqlite.New(cfg.Database.Path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	for _, idx := range indexes {
		if err := store.EnsureGroupIndex(ctx, idx.Group, idx.Field); err != nil {
			store.Close()
			return nil, nil, fmt.Errorf("failed to declare index %s.%s: %w", idx.Group, idx.Field, err)
		}
	}
	return cfg, store, nil
}

func openBlobs(ctx context.Context, cfg *config.Config) (sheets.BlobStore, error) {
	if cfg.Blob.Bucket == "" {
		slog.Warn("blob.bucket not set, sheet images are kept in memory")
		return memstore.NewMemoryBlobs(fmt.Sprintf("http://localhost:%d/blobs/", cfg.Server.Port)), nil
	}
	blobs, err := s3store.New(ctx, s3store.Options{
		Bucket:        cfg.Blob.Bucket,
		Endpoint:      cfg.Blob.Endpoint,
		Region:        cfg.Blob.Region,
		AccessKey:     cfg.Blob.AccessKey,
		SecretKey:     cfg.Blob.SecretKey,
		PublicBaseURL: cfg.Blob.PublicBaseURL,
	})
	if err != nil {
		return nil, err
	}
	return blobs, nil
}

// =============================================================================
// SERVE
// =============================================================================

func runServe(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	cfg, store, err := setup(ctx)
	if err != nil {
		return err
	}
	defer store.Close()

	if err := cfg.ValidateServe(); err != nil {
		return err
	}

	blobs, err := openBlobs(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to open blob store: %w", err)
	}

	jwtm := auth.NewJWTManager(cfg.JWT.Secret, cfg.JWT.Issuer, cfg.JWT.ExpirationHours)
	authSvc := auth.NewService(store, jwtm, auth.LogMailer{ResetURL: cfg.Auth.ResetURL})

	handler := api.NewHandler(store, authSvc, blobs, api.Options{
		Clock:     generic.SystemClock{},
		ChunkSize: cfg.Import.ChunkSize,
	})
	router := api.NewRouter(handler, cfg.Server.CorsAllowedOrigins)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("server starting", "addr", server.Addr, "db", cfg.Database.Path)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case err := <-errCh:
		return fmt.Errorf("server failed: %w", err)
	case <-quit:
	}

	slog.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	slog.Info("server stopped")
	return nil
}
