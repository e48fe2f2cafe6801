package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"openclaw/hub/pkg/alerts"
	"openclaw/hub/pkg/budget"
	"openclaw/hub/pkg/config"
	"openclaw/hub/pkg/dashboard"
	"openclaw/hub/pkg/executor"
	"openclaw/hub/pkg/health"
	"openclaw/hub/pkg/monitor"
	"openclaw/hub/pkg/pipeline"
	"openclaw/hub/pkg/routing"
	"openclaw/hub/pkg/server"
	"openclaw/hub/pkg/storage"
	"openclaw/hub/pkg/telemetry/metrics"
	"openclaw/hub/pkg/vault"
)

var runFlags struct {
	listenHost string
	listenPort int
	logLevel   string
	dryRun     bool
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Start the gateway server",
	Long: `Start the gateway server with the specified configuration.

The server listens on the configured address (localhost by default) and
serves the OpenAI-compatible completion endpoint, the dashboard API, and
the metrics endpoint.

Examples:
  # Start with default config
  hub run

  # Start with custom config
  hub run --config /etc/hub/hub.yaml

  # Validate config without starting server
  hub run --dry-run`,
	RunE: runServer,
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().StringVar(&runFlags.listenHost, "host", "", "override bind host")
	runCmd.Flags().IntVar(&runFlags.listenPort, "port", 0, "override listen port")
	runCmd.Flags().StringVar(&runFlags.logLevel, "log-level", "", "override log level (debug, info, warn, error)")
	runCmd.Flags().BoolVar(&runFlags.dryRun, "dry-run", false, "validate config without starting server")
}

func runServer(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if runFlags.listenHost != "" {
		cfg.Server.Host = runFlags.listenHost
	}
	if runFlags.listenPort != 0 {
		cfg.Server.Port = runFlags.listenPort
	}
	if runFlags.logLevel != "" {
		cfg.Telemetry.Logging.Level = runFlags.logLevel
	}
	if verbose {
		cfg.Telemetry.Logging.Level = "debug"
	}

	logLevel := new(slog.LevelVar)
	logLevel.Set(parseLevel(cfg.Telemetry.Logging.Level))

	var handler slog.Handler
	opts := &slog.HandlerOptions{Level: logLevel}
	if cfg.Telemetry.Logging.Format == "text" {
		handler = slog.NewTextHandler(os.Stdout, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}
	logger := slog.New(handler)
	slog.SetDefault(logger)

	if runFlags.dryRun {
		fmt.Println("✓ Configuration valid")
		return nil
	}

	fmt.Printf("OpenClaw Hub v%s\n", Version)
	fmt.Printf("Loading configuration from: %s\n", cfgFile)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Vault: generate and persist a key on first start.
	if cfg.Vault.SecretKey == "" {
		key, err := vault.GenerateKey()
		if err != nil {
			return fmt.Errorf("failed to generate vault key: %w", err)
		}
		if err := config.PersistSecretKey(cfgFile, key); err != nil {
			return fmt.Errorf("failed to persist vault key: %w", err)
		}
		cfg.Vault.SecretKey = key
		logger.Warn("generated new vault secret key",
			"config_file", cfgFile,
			"note", "back up the config file; losing the key loses all stored credentials",
		)
	}
	v, err := vault.New(cfg.Vault.SecretKey)
	if err != nil {
		return fmt.Errorf("failed to open vault: %w", err)
	}

	store, err := storage.Open(storage.Config{
		Path:     cfg.Database.Path,
		PoolSize: cfg.Server.PoolSize(),
	}, logger)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer store.Close()
	fmt.Printf("✓ Database opened (%s)\n", cfg.Database.Path)

	if err := importEnvConnections(ctx, store, v, cfg, logger); err != nil {
		return fmt.Errorf("failed to import environment connections: %w", err)
	}

	// Request pipeline.
	tracker := health.NewTracker(cfg.Alerts.ConsecutiveErrorThreshold,
		cfg.Alerts.LatencyMultiplier, logger)
	router := routing.New(cfg.Routing.Rules, routing.ParseFallbackRules(cfg.Routing.Fallbacks))
	enforcer := budget.New(store, logger)
	exec := executor.New(executor.Config{
		Enabled:     cfg.Retry.Enabled,
		MaxAttempts: cfg.Retry.MaxAttempts,
		Base:        cfg.Retry.Base,
		Growth:      cfg.Retry.Growth,
	}, logger)
	factory := pipeline.NewFactory(v, store, cfg.Providers.OllamaURL, logger)
	pipe := pipeline.New(store, router, enforcer, exec, factory, tracker,
		cfg.Providers.DefaultLocalModel, logger)

	// Alert dispatch channels.
	var channels []alerts.Channel
	if cfg.Alerts.WebhookURL != "" {
		webhook := alerts.NewWebhookChannel(cfg.Alerts.WebhookURL, logger)
		defer webhook.Close()
		channels = append(channels, webhook)
	}
	if cfg.Alerts.DesktopNotify {
		channels = append(channels, alerts.NewDesktopChannel(logger))
	}
	alertMgr := alerts.NewManager(store, channels, logger)

	// Background probe and alert loops.
	if cfg.Alerts.Enabled {
		mon := monitor.New(monitor.Config{
			ProbePeriod:               cfg.Health.ProbePeriod,
			ProbeTimeout:              cfg.Health.ProbeTimeout,
			CheckPeriod:               cfg.Alerts.CheckPeriod,
			ConsecutiveErrorThreshold: cfg.Alerts.ConsecutiveErrorThreshold,
			LatencyMultiplier:         cfg.Alerts.LatencyMultiplier,
			BudgetThresholdPercent:    cfg.Alerts.BudgetThresholdPercent,
		}, store, tracker, enforcer, alertMgr, pipe.Probe, logger)
		if err := mon.Start(ctx); err != nil {
			return fmt.Errorf("failed to start monitor: %w", err)
		}
		defer mon.Stop()
		fmt.Println("✓ Monitor started")
	}

	// Config watcher: routing rules and the log level apply live;
	// everything else takes effect on restart.
	watcher, err := config.NewWatcher(cfgFile, logger)
	if err != nil {
		logger.Warn("config watcher unavailable", "error", err)
	} else {
		go func() {
			err := watcher.Watch(ctx, func(next *config.Config) {
				logLevel.Set(parseLevel(next.Telemetry.Logging.Level))
				router.Update(next.Routing.Rules, routing.ParseFallbackRules(next.Routing.Fallbacks))
				logger.Info("configuration reloaded",
					"log_level", next.Telemetry.Logging.Level,
					"note", "server and database changes take effect on restart",
				)
			})
			if err != nil {
				logger.Warn("config watcher stopped", "error", err)
			}
		}()
		defer watcher.Stop()
	}

	var collector *metrics.Collector
	if cfg.Telemetry.Metrics.Enabled {
		collector = metrics.NewCollector(cfg.Telemetry.Metrics.Namespace)
	}

	srv := server.New(cfg, server.Deps{
		Pipeline:  pipe,
		Dashboard: dashboard.New(store, v, tracker, logger),
		Store:     store,
		Vault:     v,
		Tracker:   tracker,
		Metrics:   collector,
		Version:   Version,
	})

	fmt.Printf("✓ Listening on http://%s\n", cfg.Server.ListenAddress())
	fmt.Printf("✓ Health endpoint: http://%s/health\n", cfg.Server.ListenAddress())
	if cfg.Telemetry.Metrics.Enabled {
		fmt.Printf("✓ Metrics endpoint: http://%s%s\n", cfg.Server.ListenAddress(), cfg.Telemetry.Metrics.Path)
	}
	fmt.Println("\nPress Ctrl+C to stop")

	return srv.Start(ctx)
}

// importEnvConnections creates connection rows from well-known environment
// variables when no connection for that family exists yet. Keys are
// encrypted before they touch the database; rows created by hand always
// win over the environment.
func importEnvConnections(ctx context.Context, store *storage.Store, v *vault.Vault, cfg *config.Config, logger *slog.Logger) error {
	existing, err := store.ListConnections(ctx)
	if err != nil {
		return err
	}
	present := make(map[string]bool, len(existing))
	for _, conn := range existing {
		present[conn.Service] = true
	}

	type candidate struct {
		service string
		apiKey  string
		baseURL string
	}
	candidates := []candidate{
		{service: routing.FamilyOpenAI, apiKey: os.Getenv("OPENAI_API_KEY")},
		{service: routing.FamilyAnthropic, apiKey: os.Getenv("ANTHROPIC_API_KEY")},
		{service: routing.FamilyOllama, baseURL: os.Getenv("OLLAMA_URL")},
	}

	for _, c := range candidates {
		if present[c.service] {
			continue
		}
		if c.apiKey == "" && c.baseURL == "" {
			continue
		}

		var encrypted string
		if c.apiKey != "" {
			encrypted, err = v.Encrypt(c.apiKey)
			if err != nil {
				return err
			}
		}
		conn := &storage.Connection{
			Name:            c.service + " (env)",
			Service:         c.service,
			BaseURL:         c.baseURL,
			APIKeyEncrypted: encrypted,
			Enabled:         true,
		}
		if err := store.CreateConnection(ctx, conn); err != nil {
			return err
		}
		logger.Info("imported connection from environment",
			"service", c.service, "connection_id", conn.ID)
	}
	return nil
}

func parseLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
