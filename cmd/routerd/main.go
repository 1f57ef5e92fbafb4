// Routerd is the modelrouter daemon.
//
// It serves the routing HTTP API, optionally listens for rewards on NATS and
// optionally forwards execute requests to an OpenAI-compatible endpoint.
//
// Configuration is loaded from environment variables, optionally layered on
// a YAML file. See internal/config for details.
//
// Usage:
//
//	# Start with defaults
//	routerd
//
//	# Start with a config file (router tunables are hot-reloaded)
//	routerd --config /etc/modelrouter/config.yaml
//
//	# Configure via environment
//	SERVER_PORT=9090 NATS_URL=nats://localhost:4222 routerd
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/nats-io/nats.go"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/modelrouter/internal/bandit"
	"github.com/fyrsmithlabs/modelrouter/internal/cache"
	"github.com/fyrsmithlabs/modelrouter/internal/config"
	"github.com/fyrsmithlabs/modelrouter/internal/feedback"
	httpserver "github.com/fyrsmithlabs/modelrouter/internal/http"
	"github.com/fyrsmithlabs/modelrouter/internal/llm"
	"github.com/fyrsmithlabs/modelrouter/internal/logging"
	"github.com/fyrsmithlabs/modelrouter/internal/routing"
	"github.com/fyrsmithlabs/modelrouter/internal/telemetry"
)

// Version information (set via ldflags during build)
var (
	version   = "dev"
	gitCommit = "unknown"
	buildDate = "unknown"
)

func main() {
	configPath := flag.String("config", "", "path to a YAML config file")
	flag.Parse()
	args := flag.Args()

	if len(args) > 0 {
		switch args[0] {
		case "version":
			printVersion()
			os.Exit(0)
		default:
			fmt.Fprintf(os.Stderr, "Unknown command: %s\n", args[0])
			fmt.Fprintf(os.Stderr, "\nUsage:\n")
			fmt.Fprintf(os.Stderr, "  routerd [--config FILE]   Start the router daemon\n")
			fmt.Fprintf(os.Stderr, "  routerd version           Show version information\n")
			os.Exit(1)
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		log.Printf("Received signal %v, shutting down gracefully...", sig)
		cancel()
	}()

	if err := run(ctx, *configPath); err != nil {
		log.Fatalf("Server error: %v", err)
	}

	log.Println("Server shutdown complete")
}

// printVersion prints version information
func printVersion() {
	fmt.Printf("routerd by Fyrsmith Labs\n")
	fmt.Printf("Version:    %s\n", version)
	fmt.Printf("Commit:     %s\n", gitCommit)
	fmt.Printf("Build Date: %s\n", buildDate)
}

// run starts the router daemon and blocks until ctx is cancelled.
//
// Startup order:
//  1. Loads and validates configuration
//  2. Initializes telemetry and the logger
//  3. Builds the cache manager, routers and optional LLM client
//  4. Connects to NATS when a URL is configured
//  5. Starts the config watcher when a file is given
//  6. Serves HTTP until ctx is cancelled, then shuts everything down
func run(ctx context.Context, configPath string) error {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}

	tel, err := telemetry.New(ctx, telemetry.FromObservability(cfg.Observability, version))
	if err != nil {
		return fmt.Errorf("failed to initialize telemetry: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		_ = tel.Shutdown(shutdownCtx)
	}()

	logger, err := initLogger(cfg, tel)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer func() {
		_ = logger.Sync() // Best-effort sync on shutdown
	}()

	logger.Info("Starting routerd",
		zap.String("version", version),
		zap.Int("port", cfg.Server.Port),
		zap.Bool("thompson_enabled", cfg.Router.ThompsonEnabled),
		zap.Bool("contextual_enabled", cfg.Router.ContextualEnabled),
		zap.Bool("persist_enabled", cfg.Router.PersistEnabled))
	if err := tel.Degraded(); err != nil {
		logger.Warn("telemetry export degraded", zap.Error(err))
	}

	deps, err := initDependencies(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize dependencies: %w", err)
	}
	defer deps.Close()

	svc, err := initService(cfg, deps, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize routing service: %w", err)
	}

	if deps.natsConn != nil {
		sub, err := feedback.NewSubscriber(deps.natsConn, cfg.NATS.RewardSubject, svc, logger)
		if err != nil {
			return fmt.Errorf("failed to create reward subscriber: %w", err)
		}
		if err := sub.Start(ctx); err != nil {
			return fmt.Errorf("failed to start reward subscriber: %w", err)
		}
		deps.subscriber = sub
	}

	if configPath != "" {
		w, err := config.NewWatcher(configPath, deps.live, config.WithWatcherLogger(logger))
		if err != nil {
			logger.Warn("Config hot reload disabled", zap.Error(err))
		} else if err := w.Start(ctx); err != nil {
			logger.Warn("Config hot reload disabled", zap.Error(err))
			w.Stop()
		} else {
			deps.watcher = w
		}
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		deps.caches.Collector(),
	)

	srv, err := httpserver.NewServer(svc, deps.caches, logger, &httpserver.Config{
		Host:            cfg.Server.Host,
		Port:            cfg.Server.Port,
		Version:         version,
		Gatherer:        registry,
		FeedbackEnabled: deps.natsConn != nil,
	})
	if err != nil {
		return fmt.Errorf("failed to create http server: %w", err)
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("Shutting down routerd")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	var shutdownErr error
	if err := srv.Shutdown(shutdownCtx); err != nil {
		shutdownErr = fmt.Errorf("http shutdown: %w", err)
	}

	// Stop returns once queued rewards are applied, so the snapshot includes them.
	if deps.subscriber != nil {
		if err := deps.subscriber.Stop(); err != nil {
			logger.Warn("Reward subscriber drain failed", zap.Error(err))
		}
	}
	if deps.live.Router().PersistEnabled {
		if err := svc.Save(); err != nil {
			logger.Error("Failed to save router state", zap.Error(err))
		} else {
			logger.Info("Router state saved", zap.String("dir", deps.live.Router().StateDir))
		}
	}

	return shutdownErr
}

// loadConfig reads the config file when one is given, otherwise the
// environment, and validates the result.
func loadConfig(configPath string) (*config.Config, error) {
	var cfg *config.Config
	if configPath != "" {
		loaded, err := config.LoadWithFile(configPath)
		if err != nil {
			return nil, fmt.Errorf("failed to load configuration: %w", err)
		}
		cfg = loaded
	} else {
		cfg = config.Load()
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// initLogger builds the structured logger. Log records are also exported
// through OTEL when telemetry provides a logger provider.
func initLogger(cfg *config.Config, tel *telemetry.Telemetry) (*zap.Logger, error) {
	logCfg, err := logging.FromSettings(cfg.Logging.Level, cfg.Logging.Format)
	if err != nil {
		return nil, err
	}
	logCfg.OTEL = tel.LoggerProvider() != nil
	return logging.NewLogger(logCfg, tel.LoggerProvider())
}

// dependencies holds the long-lived components shared by the service.
type dependencies struct {
	live       *config.Live
	caches     *cache.Manager
	metrics    *bandit.Metrics
	thompson   *bandit.Thompson
	linucb     *bandit.LinUCB
	client     llm.Client
	natsConn   *nats.Conn
	publisher  *feedback.Publisher
	subscriber *feedback.Subscriber
	watcher    *config.Watcher
}

// Close releases every resource in reverse start order.
func (d *dependencies) Close() {
	if d.watcher != nil {
		d.watcher.Stop()
	}
	if d.subscriber != nil {
		_ = d.subscriber.Stop()
	}
	if d.natsConn != nil {
		d.natsConn.Close()
	}
	if d.caches != nil {
		_ = d.caches.Close()
	}
}

// initDependencies builds the caches, routers, LLM client and NATS
// connection.
//
// NATS and the LLM client are optional: they are skipped when their URL is
// not configured.
func initDependencies(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*dependencies, error) {
	d := &dependencies{
		live:   config.NewLive(cfg.Router),
		caches: cache.NewManager(logger),
	}
	d.caches.StartJanitor(ctx, cfg.Cache.CleanupInterval)

	if cfg.Router.PersistEnabled {
		if err := config.EnsureStateDir(cfg.Router.StateDir); err != nil {
			d.Close()
			return nil, fmt.Errorf("failed to prepare state directory: %w", err)
		}
	}

	d.metrics = bandit.NewMetrics(logger)
	d.thompson = bandit.NewThompson(d.live,
		bandit.WithThompsonLogger(logger),
		bandit.WithThompsonMetrics(d.metrics))

	linucb, err := bandit.NewLinUCB(cfg.Router.LinUCBDimension, d.live,
		bandit.WithLinUCBLogger(logger),
		bandit.WithLinUCBMetrics(d.metrics))
	if err != nil {
		d.Close()
		return nil, fmt.Errorf("failed to create linucb router: %w", err)
	}
	d.linucb = linucb

	if cfg.LLM.BaseURL != "" {
		base, err := llm.NewLangchainClient(cfg.LLM, logger)
		if err != nil {
			d.Close()
			return nil, fmt.Errorf("failed to create llm client: %w", err)
		}
		cached, err := llm.NewCachedClient(base, d.caches, cfg.Cache, cfg.LLM, llm.WithCachedLogger(logger))
		if err != nil {
			d.Close()
			return nil, fmt.Errorf("failed to create llm cache: %w", err)
		}
		d.client = cached
		logger.Info("LLM client initialized",
			zap.String("base_url", cfg.LLM.BaseURL),
			zap.Float64("rate_limit", cfg.LLM.RateLimit))
	}

	if cfg.NATS.URL != "" {
		nc, err := feedback.Connect(cfg.NATS.URL, logger)
		if err != nil {
			d.Close()
			return nil, fmt.Errorf("failed to connect to NATS at %s: %w", cfg.NATS.URL, err)
		}
		d.natsConn = nc

		pub, err := feedback.NewPublisher(nc, cfg.NATS.DecisionSubject, logger)
		if err != nil {
			d.Close()
			return nil, fmt.Errorf("failed to create decision publisher: %w", err)
		}
		d.publisher = pub
		logger.Info("Connected to NATS",
			zap.String("url", cfg.NATS.URL),
			zap.String("reward_subject", cfg.NATS.RewardSubject))
	}

	return d, nil
}

// initService wires the routing service over the dependencies.
func initService(cfg *config.Config, d *dependencies, logger *zap.Logger) (*routing.Service, error) {
	opts := []routing.Option{routing.WithLogger(logger)}
	if d.client != nil {
		opts = append(opts, routing.WithLLMClient(d.client))
	}
	if d.publisher != nil {
		opts = append(opts, routing.WithPublisher(d.publisher))
	}
	return routing.NewService(d.thompson, d.linucb, d.live, d.caches, cfg.Cache, opts...)
}
