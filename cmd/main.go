package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/okian/finsight/internal/adapters/http/api"
	"github.com/okian/finsight/internal/adapters/http/swagger"
	app "github.com/okian/finsight/internal/app"
	"github.com/okian/finsight/internal/config"
	"github.com/okian/finsight/pkg/logger"
	"github.com/okian/finsight/pkg/metrics"

	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
)

// HTTP server timeout constants.
const (
	readTimeout            = 10 * time.Second
	writeTimeout           = 60 * time.Second
	idleTimeout            = 60 * time.Second
	readHeaderTimeout      = 5 * time.Second
	shutdownTimeout        = 30 * time.Second
	serviceMetricsInterval = 5 * time.Second
)

const envConfig = "FINSIGHT_CONFIG"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		os.Stderr.WriteString(err.Error() + "\n")
		stop()
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:           "finsight",
		Short:         "Financial news analysis and portfolio intelligence",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(*cobra.Command, []string) error {
			if configPath != "" {
				return os.Setenv(envConfig, configPath)
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context())
		},
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "YAML config file (overrides "+envConfig+")")

	root.AddCommand(newServeCmd(), newPortfolioCmd(), newAnalyzeCmd())
	return root
}

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the ingest pipeline and the HTTP API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context())
		},
	}
}

// bootstrap loads configuration, initializes logging and builds a started
// service. The caller owns svc.Stop.
func bootstrap(ctx context.Context) (*config.Config, logger.Logger, *app.Service, error) {
	cfg, err := config.Load(ctx)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to load config: %w", err)
	}

	if err := logger.Init(logger.WithFormat(cfg.LogFormat)); err != nil {
		return nil, nil, nil, fmt.Errorf("failed to initialize logging: %w", err)
	}
	log := logger.Get()
	if err := logger.SetLevelString(cfg.LogLevel); err != nil {
		log.Warn(ctx, "invalid log_level; falling back to info", logger.String("log_level", cfg.LogLevel), logger.Error(err))
		_ = logger.SetLevelString("info")
	}

	st, err := app.OpenStore(ctx, cfg)
	if err != nil {
		return nil, nil, nil, err
	}
	gen, err := app.NewGenerator(ctx, cfg, log)
	if err != nil {
		_ = st.Close()
		return nil, nil, nil, err
	}

	svc := app.New(app.Options(cfg, st, gen, log)...)
	if err := svc.Start(ctx); err != nil {
		_ = st.Close()
		return nil, nil, nil, fmt.Errorf("failed to start service: %w", err)
	}
	return cfg, log, svc, nil
}

func runServe(ctx context.Context) error {
	cfg, log, svc, err := bootstrap(ctx)
	if err != nil {
		return err
	}
	defer svc.Stop()
	defer func() {
		if err := logger.Sync(); err != nil {
			os.Stderr.WriteString("failed to sync logger: " + err.Error() + "\n")
		}
	}()

	registerRuntimeCollectors()
	go startServiceMetricsUpdater(ctx, svc)

	mux := http.NewServeMux()
	swagger.Register(ctx, mux)
	api.NewServer(svc, svc,
		api.WithInsightsLimit(cfg.TopInsightsLimit),
		api.WithMaxInsightsLimit(cfg.MaxInsightsLimit),
		api.WithLogger(log.Named("api")),
	).Register(ctx, mux)

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           mux,
		ReadTimeout:       readTimeout,
		WriteTimeout:      writeTimeout,
		IdleTimeout:       idleTimeout,
		ReadHeaderTimeout: readHeaderTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info(ctx, "starting HTTP server", logger.String("addr", cfg.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		return fmt.Errorf("HTTP server failed: %w", err)
	}
	log.Info(ctx, "shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error(ctx, "server shutdown failed", logger.Error(err))
	}

	log.Info(ctx, "server stopped")
	return nil
}

// registerRuntimeCollectors adds Go runtime and process metrics to the
// application registry served on /healthz.
func registerRuntimeCollectors() {
	reg := metrics.GetRegistry()
	_ = reg.Register(collectors.NewGoCollector())
	_ = reg.Register(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
}

// startServiceMetricsUpdater refreshes service gauges until ctx ends.
func startServiceMetricsUpdater(ctx context.Context, svc *app.Service) {
	ticker := time.NewTicker(serviceMetricsInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			updateServiceMetrics(svc)
		}
	}
}

// updateServiceMetrics updates service-level metrics.
func updateServiceMetrics(svc *app.Service) {
	// GetStats refreshes most gauges itself
	stats := svc.GetStats()

	if active, ok := stats["activeWorkers"].(int); ok {
		metrics.UpdateWorkerActiveCount(active)
	}
	if size, ok := stats["queueSize"].(int); ok {
		metrics.UpdateQueueCapacity(size)
	}
}
