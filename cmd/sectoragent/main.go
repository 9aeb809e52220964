package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/boddenberg/intranet-sector-agent-go/internal/config"
	"github.com/boddenberg/intranet-sector-agent-go/internal/infra/observability"
	"github.com/boddenberg/intranet-sector-agent-go/internal/sector"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

const serviceName = "intranet-sector-agent"

var rootCmd = &cobra.Command{
	Use:   "sectoragent",
	Short: "Holdprint intranet sector agent",
	Long: `Builds per-sector context from the Holdprint ERP, the synchronized
document history, support tables and the production kanban, and relays
the answer of the selected LLM provider as a stream.

Run without arguments to start the HTTP server.`,
	SilenceUsage: true,
	RunE:         runServe,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP server",
	RunE:  runServe,
}

var resyncCmd = &cobra.Command{
	Use:   "resync",
	Short: "Run one synchronous resync pass for a sector",
	Long: `Copies the last months of ERP records of every endpoint of the sector
into the document store and prints the report as JSON.

Example:
  sectoragent resync --sector comercial`,
	RunE: runResync,
}

var sectorsCmd = &cobra.Command{
	Use:   "sectors",
	Short: "List the configured sectors",
	RunE:  runSectors,
}

var resyncSector string

func init() {
	resyncCmd.Flags().StringVar(&resyncSector, "sector", "", "sector id (unknown ids use the default sector)")
	rootCmd.AddCommand(serveCmd, resyncCmd, sectorsCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// bootstrap loads .env, configuration and the logger shared by every command.
func bootstrap() (*config.Config, *zap.Logger, error) {
	// --- Load .env file (for local development) ---
	if err := config.LoadDotEnv(".env"); err != nil {
		return nil, nil, fmt.Errorf("load .env: %w", err)
	}

	// --- Config ---
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, err
	}

	// --- Logger ---
	logger := observability.NewLogger(cfg.LogLevel, serviceName)

	logger.Info("configuration loaded",
		zap.Int("port", cfg.Port),
		zap.String("log_level", cfg.LogLevel),
		zap.Duration("http_timeout", cfg.HTTPTimeout),
		zap.Int("max_retries", cfg.MaxRetries),
		zap.Duration("initial_backoff", cfg.InitialBackoff),
		zap.Int("max_concurrent_resyncs", cfg.MaxConcurrentResyncs),
		zap.String("doc_store", cfg.DocStoreDriver),
		zap.Bool("supabase", cfg.SupabaseURL != ""),
		zap.Bool("redis", cfg.RedisURL != ""),
		zap.Bool("nats", cfg.NATSURL != ""),
		zap.Bool("kanban", cfg.KanbanURL != ""),
		zap.String("default_llm", cfg.LLM.DefaultProvider),
	)
	return cfg, logger, nil
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, logger, err := bootstrap()
	if err != nil {
		return err
	}
	defer logger.Sync()

	// --- Tracing ---
	shutdown, err := observability.InitTracer(cfg.OTLPEndpoint, serviceName)
	if err != nil {
		logger.Error("failed to init tracer", zap.Error(err))
		return err
	}
	defer shutdown(context.Background())

	a, err := buildApp(cmd.Context(), cfg, logger)
	if err != nil {
		logger.Error("failed to build app", zap.Error(err))
		return err
	}
	defer a.close()

	// --- Server ---
	// No WriteTimeout: answers are streamed.
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           a.router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server starting", zap.Int("port", cfg.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	// --- Graceful shutdown ---
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-quit:
	case err := <-errCh:
		if err != nil {
			logger.Error("server failed", zap.Error(err))
			return err
		}
	}

	logger.Info("server shutting down...")
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("server forced shutdown", zap.Error(err))
	}

	logger.Info("waiting for background resyncs")
	if abandoned, err := a.resyncer.WaitContext(ctx); err != nil {
		logger.Warn("shutdown deadline reached, abandoning resyncs",
			zap.Int("in_flight", abandoned),
			zap.Error(err),
		)
	}

	logger.Info("server stopped")
	return nil
}

func runResync(cmd *cobra.Command, _ []string) error {
	cfg, logger, err := bootstrap()
	if err != nil {
		return err
	}
	defer logger.Sync()

	a, err := buildApp(cmd.Context(), cfg, logger)
	if err != nil {
		return err
	}
	defer a.close()

	profile := a.registry.Resolve(resyncSector)
	report := a.resyncer.Run(cmd.Context(), profile)

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(report)
}

func runSectors(cmd *cobra.Command, _ []string) error {
	reg, err := sector.Load()
	if err != nil {
		return err
	}
	for _, id := range reg.Sectors() {
		p := reg.Resolve(id)
		marker := ""
		if id == reg.Default() {
			marker = " (default)"
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%-14s %-20s %v%s\n", p.ID, p.Label, p.Endpoints, marker)
	}
	return nil
}
