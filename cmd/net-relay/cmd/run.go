package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/Annihilater/net-relay/internal/adapter/inbound/api"
	"github.com/Annihilater/net-relay/internal/adapter/inbound/httpconnect"
	"github.com/Annihilater/net-relay/internal/adapter/inbound/proxy"
	"github.com/Annihilater/net-relay/internal/adapter/inbound/socks5"
	"github.com/Annihilater/net-relay/internal/adapter/outbound/cel"
	"github.com/Annihilater/net-relay/internal/adapter/outbound/memory"
	"github.com/Annihilater/net-relay/internal/config"
	"github.com/Annihilater/net-relay/internal/domain/ratelimit"
	"github.com/Annihilater/net-relay/internal/telemetry"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the proxy: SOCKS5 + HTTP CONNECT listeners and the management API",
	RunE:  runProxy,
}

func init() {
	rootCmd.AddCommand(runCmd)
}

func runProxy(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	logger := newLogger(cfg.Logging)
	slog.SetDefault(logger)

	if path := config.ConfigFileUsed(); path != "" {
		logger.Info("loaded config", "file", path)
	} else {
		logger.Info("no config file found, running with documented defaults")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store := storeFromConfig(cfg)

	ruleEval, err := cel.NewEvaluator()
	if err != nil {
		return fmt.Errorf("failed to create cel evaluator: %w", err)
	}

	stats := memory.NewStatsRegistry(cfg.Stats.MaxHistory)

	sessionStore := memory.NewSessionStore()
	sessionStore.StartCleanup(ctx)
	defer sessionStore.Stop()

	tp, err := telemetry.NewProvider(ctx, "net-relay")
	if err != nil {
		return fmt.Errorf("failed to create telemetry provider: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = tp.Shutdown(shutdownCtx)
	}()

	metricsRegistry, metricsSet := api.MetricsRegistry()

	deps := &proxy.Deps{
		Store:    store,
		RuleEval: ruleEval,
		Stats:    stats,
		ConnSem:  ratelimit.NewConnSemaphore(cfg.Limits.MaxConnections),
		Logger:   logger,
		Metrics:  metricsSet,
	}

	socksListener := socks5.New(deps)
	httpListener := httpconnect.New(deps)
	apiHandler := api.New(store, stats, sessionStore,
		api.WithLogger(logger),
		api.WithMetricsRegistry(metricsRegistry),
	)

	server := cfg.Server
	errCh := make(chan error, 3)

	go func() { errCh <- socksListener.ListenAndServe(ctx, fmt.Sprintf("%s:%d", server.Host, server.SocksPort)) }()
	go func() { errCh <- httpListener.ListenAndServe(ctx, fmt.Sprintf("%s:%d", server.Host, server.HTTPPort)) }()

	apiAddr := fmt.Sprintf("%s:%d", server.Host, server.APIPort)
	apiServer := &http.Server{Addr: apiAddr, Handler: apiHandler.Routes()}
	go func() {
		logger.Info("management api listening", "addr", apiAddr)
		if err := apiServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- fmt.Errorf("management api: %w", err)
			return
		}
		errCh <- nil
	}()

	logger.Info("net-relay started",
		"socks_addr", fmt.Sprintf("%s:%d", server.Host, server.SocksPort),
		"http_addr", fmt.Sprintf("%s:%d", server.Host, server.HTTPPort),
		"api_addr", apiAddr,
		"auth_enabled", cfg.Security.AuthEnabled,
	)

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case err := <-errCh:
		if err != nil {
			logger.Error("listener failed", "error", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = apiServer.Shutdown(shutdownCtx)

	return nil
}

// storeFromConfig binds the Config Store's persistence callback to the file
// the config was loaded from, if any.
func storeFromConfig(cfg *config.Config) *config.Store {
	if path := config.ConfigFileUsed(); path != "" {
		return config.NewStoreWithFile(*cfg, path)
	}
	return config.NewStore(*cfg)
}

func newLogger(lc config.LoggingConfig) *slog.Logger {
	level := parseLogLevel(lc.Level)
	opts := &slog.HandlerOptions{Level: level}
	if lc.Format == "json" {
		return slog.New(slog.NewJSONHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stderr, opts))
}

func parseLogLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
