package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"

	"github.com/Reddy-45/siem/internal/adapters/detection"
	"github.com/Reddy-45/siem/internal/adapters/enrichment"
	"github.com/Reddy-45/siem/internal/adapters/httpapi"
	"github.com/Reddy-45/siem/internal/adapters/input"
	"github.com/Reddy-45/siem/internal/adapters/output"
	"github.com/Reddy-45/siem/internal/adapters/textgen"
	"github.com/Reddy-45/siem/internal/app"
	"github.com/Reddy-45/siem/internal/domain"
	"github.com/Reddy-45/siem/internal/ports"
	"github.com/Reddy-45/siem/internal/tui"
)

const enrichmentCacheTTL = time.Hour

var (
	cfgFile string

	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

var rootCmd = &cobra.Command{
	Use:   "siem",
	Short: "Brute-force detection and blocking service",
	Long: `siem ingests authentication events, counts failed attempts per
source address over a sliding window and blocks addresses that cross the
threshold. Each block produces an incident report in the background.

Event sources:
  - HTTP: POST /api/log
  - File: tail a JSON-lines or sshd auth log
  - Demo: synthetic traffic with attacker addresses`,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP service and configured event sources",
	Long: `Start the ingestion API together with any configured event sources.

Examples:
  siem serve
  siem serve --port 9000 --threshold 3 --window 60
  siem serve --tail /var/log/auth.log --tail-format sshd
  siem serve --demo --demo-rate 50 --generator none`,
	RunE: runServe,
}

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Terminal dashboard for a running service",
	Long: `Poll a running siem service and show its events, top failing sources,
blocked addresses and incident reports. Blocks can be lifted from the
dashboard.

Examples:
  siem watch
  siem watch --server http://10.0.0.5:8000 --interval 500ms`,
	RunE: runWatch,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("siem %s\n", Version)
		fmt.Printf("Commit:  %s\n", Commit)
		fmt.Printf("Built:   %s\n", BuildTime)
	},
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ./configs/config.yaml)")
	rootCmd.PersistentFlags().String("log-level", "info", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().Bool("console", false, "human-readable console logging")

	flags := serveCmd.Flags()
	flags.String("host", "0.0.0.0", "listen host")
	flags.IntP("port", "p", 8000, "listen port")
	flags.Int("threshold", 5, "failed attempts that trigger a block")
	flags.Int("window", 300, "detection window in seconds")
	flags.String("generator", app.GeneratorCommand, "report generator (command, ollama, none)")
	flags.Bool("no-enrichment", false, "disable address enrichment")
	flags.String("persist", "", "event log file for persistence across restarts")
	flags.StringP("tail", "t", "", "event log file to tail")
	flags.String("tail-format", "json", "tailed line format (json, sshd)")
	flags.Bool("full", false, "read the tailed file from the beginning")
	flags.Bool("demo", false, "generate synthetic authentication traffic")
	flags.Int("demo-rate", 20, "demo events per second")

	viper.BindPFlag("logging.level", rootCmd.PersistentFlags().Lookup("log-level"))
	viper.BindPFlag("logging.console", rootCmd.PersistentFlags().Lookup("console"))
	viper.BindPFlag("server.host", flags.Lookup("host"))
	viper.BindPFlag("server.port", flags.Lookup("port"))
	viper.BindPFlag("detection.brute_force.threshold", flags.Lookup("threshold"))
	viper.BindPFlag("detection.brute_force.window_seconds", flags.Lookup("window"))
	viper.BindPFlag("reports.generator", flags.Lookup("generator"))
	viper.BindPFlag("store.persist_path", flags.Lookup("persist"))
	viper.BindPFlag("sources.tail_path", flags.Lookup("tail"))
	viper.BindPFlag("sources.tail_format", flags.Lookup("tail-format"))
	viper.BindPFlag("sources.tail_from_beginning", flags.Lookup("full"))
	viper.BindPFlag("sources.demo", flags.Lookup("demo"))
	viper.BindPFlag("sources.demo_rate", flags.Lookup("demo-rate"))

	watchCmd.Flags().StringP("server", "s", "http://localhost:8000", "base URL of the siem service")
	watchCmd.Flags().Duration("interval", time.Second, "poll interval")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(watchCmd)
	rootCmd.AddCommand(versionCmd)
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
		viper.AddConfigPath("./configs")
		viper.AddConfigPath(".")
		viper.AddConfigPath("/etc/siem")
	}

	app.SetDefaults(viper.GetViper())

	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			log.Warn().Err(err).Msg("Error reading config file")
		}
	}

	viper.SetEnvPrefix("SIEM")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()
	// PORT is honoured for container platforms that inject it.
	_ = viper.BindEnv("server.port", "SIEM_SERVER_PORT", "PORT")
}

func setupLogging(cfg app.LoggingConfig) {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix

	switch cfg.Level {
	case "debug":
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	case "warn":
		zerolog.SetGlobalLevel(zerolog.WarnLevel)
	case "error":
		zerolog.SetGlobalLevel(zerolog.ErrorLevel)
	default:
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}

	if cfg.Console {
		log.Logger = log.Output(zerolog.ConsoleWriter{
			Out:        os.Stderr,
			TimeFormat: "15:04:05",
		})
	} else {
		log.Logger = zerolog.New(os.Stderr).With().Timestamp().Logger()
	}
}

func runServe(cmd *cobra.Command, args []string) error {
	if cmd.Flags().Changed("no-enrichment") {
		viper.Set("enrichment.enabled", false)
	}

	cfg, err := app.LoadConfig(viper.GetViper())
	if err != nil {
		return err
	}
	setupLogging(cfg.Logging)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store := detection.NewEventStore(detection.EventStoreConfig{
		Retention: cfg.Store.Retention,
		MaxEvents: cfg.Store.MaxEvents,
	})
	if cfg.Store.PersistPath != "" {
		events, err := output.LoadEventLog(cfg.Store.PersistPath)
		if err != nil {
			log.Warn().Err(err).Str("path", cfg.Store.PersistPath).Msg("Persisted event log unreadable, starting empty")
		} else if len(events) > 0 {
			store.Restore(events)
			log.Info().Int("events", store.Len()).Msg("Event history restored")
		}
	}

	registry := detection.NewBlockRegistry()
	detector, err := detection.NewBruteForceDetector(store, registry, cfg.Detection)
	if err != nil {
		return fmt.Errorf("failed to create detector: %w", err)
	}

	reports := output.NewReportLog()
	metrics := domain.NewEngineMetrics()

	enricher := buildEnricher(cfg.Enrichment)

	generator, err := buildGenerator(cfg.Reports)
	if err != nil {
		return err
	}

	var (
		dispatcher *app.ReportDispatcher
		archive    *output.BoltReportArchive
	)
	if generator != nil {
		dispatcher, archive, err = buildDispatcher(cfg.Reports, generator, reports, metrics)
		if err != nil {
			return err
		}
		defer dispatcher.Stop()
	}

	var (
		recorder ports.EventRecorder
		eventLog *output.FileEventLog
	)
	if cfg.Store.PersistPath != "" {
		eventLog, err = output.NewFileEventLog(cfg.Store.PersistPath, cfg.Store.FlushInterval, store.All)
		if err != nil {
			return fmt.Errorf("failed to open event log: %w", err)
		}
		defer func() {
			if err := eventLog.Close(); err != nil {
				log.Error().Err(err).Msg("Event log close failed")
			}
		}()
		recorder = eventLog
	}

	var (
		observers      []ports.EngineObserver
		metricsHandler http.Handler
	)
	if cfg.Metrics.Enabled {
		sources := output.MetricsSources{
			BlockedAddresses: registry.Len,
			StoredEvents:     store.Len,
		}
		if dispatcher != nil {
			sources.ReportQueue = dispatcher.QueueLength
		}
		prom := output.NewPrometheusMetrics(nil, "siem", sources)
		observers = append(observers, prom)
		metricsHandler = prom.Handler()
		if dispatcher != nil {
			dispatcher.AddObserver(prom)
		}
	}

	opts := app.EngineOptions{
		Store:             store,
		Registry:          registry,
		Detector:          detector,
		Reports:           reports,
		Enricher:          enricher,
		Recorder:          recorder,
		Observers:         observers,
		Metrics:           metrics,
		EnrichmentTimeout: cfg.Enrichment.Timeout,
	}
	var queue output.QueueStats
	if dispatcher != nil {
		opts.Scheduler = dispatcher
		queue = dispatcher
	}

	engine, err := app.NewEngine(opts)
	if err != nil {
		return fmt.Errorf("failed to create engine: %w", err)
	}

	if viper.ConfigFileUsed() != "" {
		reloader := app.NewPolicyReloader(viper.GetViper(), engine)
		reloader.StartWatching()
		defer reloader.Stop()
	}

	routerConfig := httpapi.RouterConfig{
		TrustForwardedFor: cfg.Server.TrustForwardedFor,
		AllowedOrigins:    cfg.Server.AllowedOrigins,
		RateLimitRequests: cfg.Server.RateLimitRequests,
		RateLimitWindow:   cfg.Server.RateLimitWindow,
		Health:            output.NewHealthChecker(queue, output.DefaultHealthCheckerConfig()),
		Metrics:           metricsHandler,
	}
	if archive != nil {
		routerConfig.Archive = archive
	}
	server := &http.Server{
		Addr:              cfg.Server.Addr(),
		Handler:           httpapi.NewRouter(engine, routerConfig),
		ReadHeaderTimeout: 10 * time.Second,
	}

	pumps, err := buildPumps(cfg.Sources, engine)
	if err != nil {
		return err
	}

	policy := engine.Policy()
	log.Info().
		Str("addr", server.Addr).
		Int("threshold", policy.Threshold).
		Dur("window", policy.Window).
		Bool("login_only", policy.LoginOnly).
		Str("generator", cfg.Reports.Generator).
		Bool("enrichment", enricher != nil).
		Int("sources", len(pumps)).
		Msg("siem started")

	g, gctx := errgroup.WithContext(ctx)

	if dispatcher != nil {
		dispatcher.Start(gctx)
	}

	g.Go(func() error {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		log.Info().Msg("Shutting down...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Warn().Err(err).Msg("Shutdown timeout, forcing exit")
			return server.Close()
		}
		return nil
	})

	for _, pump := range pumps {
		pump := pump // per-iteration copy (go 1.21 loop semantics)
		g.Go(func() error {
			return pump.Run(gctx)
		})
	}

	err = g.Wait()

	events, blocked := engine.Stats()
	snapshot := engine.Metrics()
	log.Info().
		Int("events", events).
		Int("blocked", blocked).
		Int64("ingested", snapshot.EventsIngested).
		Int64("reports", snapshot.ReportsGenerated).
		Msg("Shutdown complete")

	return err
}

func runWatch(cmd *cobra.Command, args []string) error {
	server, _ := cmd.Flags().GetString("server")
	interval, _ := cmd.Flags().GetDuration("interval")

	// The dashboard owns the terminal.
	zerolog.SetGlobalLevel(zerolog.ErrorLevel)

	dashboard := tui.NewApp(tui.NewClient(server, 5*time.Second), interval)
	dashboard.SetThreshold(viper.GetInt("detection.brute_force.threshold"))

	var runErr error
	func() {
		defer func() {
			if r := recover(); r != nil {
				runErr = fmt.Errorf("dashboard panic: %v", r)
			}
		}()
		runErr = dashboard.Run()
	}()
	return runErr
}

func buildEnricher(cfg app.EnrichmentConfig) ports.Enricher {
	if !cfg.Enabled || cfg.Provider == app.ProviderNone {
		return nil
	}

	var enricher ports.Enricher = enrichment.NewIPAPIEnricher(enrichment.IPAPIConfig{
		BaseURL:       cfg.BaseURL,
		Timeout:       cfg.Timeout,
		RatePerMinute: cfg.RatePerMinute,
		SkipPrivate:   cfg.SkipPrivate,
	})
	if cfg.CacheSize > 0 {
		enricher = enrichment.NewCachedEnricher(enricher, cfg.CacheSize, enrichmentCacheTTL)
	}
	log.Debug().Str("provider", cfg.Provider).Int("cache_size", cfg.CacheSize).Msg("Enrichment enabled")
	return enricher
}

func buildGenerator(cfg app.ReportsConfig) (ports.TextGenerator, error) {
	if !cfg.Enabled {
		return nil, nil
	}

	switch cfg.Generator {
	case app.GeneratorCommand:
		generator, err := textgen.NewCommandGenerator(textgen.CommandConfig{Command: cfg.Command})
		if err != nil {
			return nil, fmt.Errorf("failed to create report generator: %w", err)
		}
		return generator, nil
	case app.GeneratorOllama:
		return textgen.NewOllamaGenerator(textgen.OllamaConfig{
			BaseURL: cfg.OllamaURL,
			Model:   cfg.Model,
		}), nil
	default:
		return nil, nil
	}
}

func buildDispatcher(cfg app.ReportsConfig, generator ports.TextGenerator, reports ports.ReportLog, metrics *domain.EngineMetrics) (*app.ReportDispatcher, *output.BoltReportArchive, error) {
	dispatcher := app.NewReportDispatcher(app.ReportDispatcherConfig{
		WorkerCount:    cfg.Workers,
		QueueSize:      cfg.QueueSize,
		JobTimeout:     cfg.Timeout,
		OverflowPath:   cfg.OverflowPath,
		QuarantinePath: cfg.QuarantinePath,
	}, generator, reports, metrics)

	if cfg.JSONLPath != "" {
		sink, err := output.NewJSONReportSink(output.JSONReportSinkConfig{FilePath: cfg.JSONLPath})
		if err != nil {
			dispatcher.Stop()
			return nil, nil, fmt.Errorf("failed to create report sink: %w", err)
		}
		dispatcher.AddSink(sink)
	}

	var archive *output.BoltReportArchive
	if cfg.ArchivePath != "" {
		var err error
		archive, err = output.NewBoltReportArchive(cfg.ArchivePath)
		if err != nil {
			dispatcher.Stop()
			return nil, nil, fmt.Errorf("failed to open report archive: %w", err)
		}
		dispatcher.AddSink(archive)
	}
	return dispatcher, archive, nil
}

func buildPumps(cfg app.SourcesConfig, engine *app.Engine) ([]*app.Pump, error) {
	var pumps []*app.Pump

	if cfg.TailPath != "" {
		parser, err := input.NewParser(cfg.TailFormat)
		if err != nil {
			return nil, err
		}
		tailer := input.NewFileTailer(input.FileTailerConfig{
			Path:          cfg.TailPath,
			FromBeginning: cfg.TailFromBeginning,
		}, parser)
		pumps = append(pumps, app.NewPump("tail:"+cfg.TailPath, tailer, engine))
		if cfg.TailFromBeginning {
			log.Info().Str("path", cfg.TailPath).Msg("Reading tailed file from the beginning")
		}
	}

	if cfg.Demo {
		generator := input.NewDemoGenerator(input.DemoConfig{Rate: cfg.DemoRate})
		pumps = append(pumps, app.NewPump("demo", generator, engine))
	}

	return pumps, nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
