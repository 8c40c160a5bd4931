package app

import (
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"

	"github.com/Reddy-45/siem/internal/adapters/detection"
)

// Config is the full service configuration as read from viper.
type Config struct {
	Server     ServerConfig
	Detection  detection.DetectionPolicy
	Store      StoreConfig
	Enrichment EnrichmentConfig
	Reports    ReportsConfig
	Metrics    MetricsConfig
	Logging    LoggingConfig
	Sources    SourcesConfig
}

type ServerConfig struct {
	Host              string
	Port              int
	TrustForwardedFor bool
	AllowedOrigins    []string
	RateLimitRequests int // Requests per RateLimitWindow per client (0 disables)
	RateLimitWindow   time.Duration
	ShutdownTimeout   time.Duration
}

// Addr returns the listen address.
func (c ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

type StoreConfig struct {
	Retention     time.Duration
	MaxEvents     int
	PersistPath   string
	FlushInterval time.Duration
}

type EnrichmentConfig struct {
	Enabled       bool
	Provider      string
	BaseURL       string
	Timeout       time.Duration
	CacheSize     int
	RatePerMinute int
	SkipPrivate   bool
}

type ReportsConfig struct {
	Enabled        bool
	Generator      string
	Command        []string
	OllamaURL      string
	Model          string
	Timeout        time.Duration
	Workers        int
	QueueSize      int
	JSONLPath      string
	ArchivePath    string
	OverflowPath   string
	QuarantinePath string
}

type MetricsConfig struct {
	Enabled bool
}

type LoggingConfig struct {
	Level   string
	Console bool
}

type SourcesConfig struct {
	TailPath          string
	TailFormat        string
	TailFromBeginning bool
	Demo              bool
	DemoRate          int
}

const (
	GeneratorCommand = "command"
	GeneratorOllama  = "ollama"
	GeneratorNone    = "none"

	ProviderIPAPI = "ip-api"
	ProviderNone  = "none"
)

// SetDefaults registers every configuration key with its default value.
func SetDefaults(v *viper.Viper) {
	policy := detection.DefaultDetectionPolicy()

	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8000)
	v.SetDefault("server.trust_forwarded_for", true)
	v.SetDefault("server.cors.allowed_origins", []string{"*"})
	v.SetDefault("server.rate_limit.requests", 0)
	v.SetDefault("server.rate_limit.window", time.Minute)
	v.SetDefault("server.shutdown_timeout", 10*time.Second)

	v.SetDefault("detection.brute_force.threshold", policy.Threshold)
	v.SetDefault("detection.brute_force.window_seconds", int(policy.Window/time.Second))
	v.SetDefault("detection.brute_force.login_only", policy.LoginOnly)
	v.SetDefault("detection.brute_force.login_event_types", policy.LoginEventTypes)
	v.SetDefault("detection.brute_force.forgive_on_unblock", policy.ForgiveOnUnblock)

	v.SetDefault("store.retention_seconds", 3600)
	v.SetDefault("store.max_events", 100000)
	v.SetDefault("store.persist_path", "")
	v.SetDefault("store.flush_interval", time.Duration(0))

	v.SetDefault("enrichment.enabled", true)
	v.SetDefault("enrichment.provider", ProviderIPAPI)
	v.SetDefault("enrichment.base_url", "http://ip-api.com/json")
	v.SetDefault("enrichment.timeout", DefaultEnrichmentTimeout)
	v.SetDefault("enrichment.cache_size", 1024)
	v.SetDefault("enrichment.rate_per_minute", 45)
	v.SetDefault("enrichment.skip_private", true)

	v.SetDefault("reports.enabled", true)
	v.SetDefault("reports.generator", GeneratorCommand)
	v.SetDefault("reports.command", []string{"ollama", "run", "llama3"})
	v.SetDefault("reports.ollama_url", "http://localhost:11434")
	v.SetDefault("reports.model", "llama3")
	v.SetDefault("reports.timeout", 60*time.Second)
	v.SetDefault("reports.workers", 2)
	v.SetDefault("reports.queue_size", 256)
	v.SetDefault("reports.jsonl_path", "")
	v.SetDefault("reports.archive_path", "")
	v.SetDefault("reports.overflow_path", "")
	v.SetDefault("reports.quarantine_path", "")

	v.SetDefault("metrics.enabled", true)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.console", false)

	v.SetDefault("sources.tail_path", "")
	v.SetDefault("sources.tail_format", "json")
	v.SetDefault("sources.tail_from_beginning", false)
	v.SetDefault("sources.demo", false)
	v.SetDefault("sources.demo_rate", 20)
}

// LoadConfig reads and validates the configuration held by v.
func LoadConfig(v *viper.Viper) (Config, error) {
	cfg := Config{
		Server: ServerConfig{
			Host:              v.GetString("server.host"),
			Port:              v.GetInt("server.port"),
			TrustForwardedFor: v.GetBool("server.trust_forwarded_for"),
			AllowedOrigins:    v.GetStringSlice("server.cors.allowed_origins"),
			RateLimitRequests: v.GetInt("server.rate_limit.requests"),
			RateLimitWindow:   v.GetDuration("server.rate_limit.window"),
			ShutdownTimeout:   v.GetDuration("server.shutdown_timeout"),
		},
		Detection: LoadDetectionPolicy(v),
		Store: StoreConfig{
			Retention:     time.Duration(v.GetInt("store.retention_seconds")) * time.Second,
			MaxEvents:     v.GetInt("store.max_events"),
			PersistPath:   v.GetString("store.persist_path"),
			FlushInterval: v.GetDuration("store.flush_interval"),
		},
		Enrichment: EnrichmentConfig{
			Enabled:       v.GetBool("enrichment.enabled"),
			Provider:      strings.ToLower(v.GetString("enrichment.provider")),
			BaseURL:       v.GetString("enrichment.base_url"),
			Timeout:       v.GetDuration("enrichment.timeout"),
			CacheSize:     v.GetInt("enrichment.cache_size"),
			RatePerMinute: v.GetInt("enrichment.rate_per_minute"),
			SkipPrivate:   v.GetBool("enrichment.skip_private"),
		},
		Reports: ReportsConfig{
			Enabled:        v.GetBool("reports.enabled"),
			Generator:      strings.ToLower(v.GetString("reports.generator")),
			Command:        v.GetStringSlice("reports.command"),
			OllamaURL:      v.GetString("reports.ollama_url"),
			Model:          v.GetString("reports.model"),
			Timeout:        v.GetDuration("reports.timeout"),
			Workers:        v.GetInt("reports.workers"),
			QueueSize:      v.GetInt("reports.queue_size"),
			JSONLPath:      v.GetString("reports.jsonl_path"),
			ArchivePath:    v.GetString("reports.archive_path"),
			OverflowPath:   v.GetString("reports.overflow_path"),
			QuarantinePath: v.GetString("reports.quarantine_path"),
		},
		Metrics: MetricsConfig{
			Enabled: v.GetBool("metrics.enabled"),
		},
		Logging: LoggingConfig{
			Level:   v.GetString("logging.level"),
			Console: v.GetBool("logging.console"),
		},
		Sources: SourcesConfig{
			TailPath:          v.GetString("sources.tail_path"),
			TailFormat:        strings.ToLower(v.GetString("sources.tail_format")),
			TailFromBeginning: v.GetBool("sources.tail_from_beginning"),
			Demo:              v.GetBool("sources.demo"),
			DemoRate:          v.GetInt("sources.demo_rate"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	// The store must hold at least one full detection window.
	if cfg.Store.Retention > 0 && cfg.Store.Retention < cfg.Detection.Window {
		cfg.Store.Retention = cfg.Detection.Window
	}
	return cfg, nil
}

// LoadDetectionPolicy reads the brute-force policy keys. The result is not
// validated.
func LoadDetectionPolicy(v *viper.Viper) detection.DetectionPolicy {
	return detection.DetectionPolicy{
		Threshold:        v.GetInt("detection.brute_force.threshold"),
		Window:           time.Duration(v.GetInt("detection.brute_force.window_seconds")) * time.Second,
		LoginOnly:        v.GetBool("detection.brute_force.login_only"),
		LoginEventTypes:  v.GetStringSlice("detection.brute_force.login_event_types"),
		ForgiveOnUnblock: v.GetBool("detection.brute_force.forgive_on_unblock"),
	}
}

// Validate checks ranges and enumerations.
func (c Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return &ConfigValidationError{Field: "server.port", Value: c.Server.Port, Reason: "must be between 1 and 65535"}
	}
	if c.Server.RateLimitRequests < 0 {
		return &ConfigValidationError{Field: "server.rate_limit.requests", Value: c.Server.RateLimitRequests, Reason: "must not be negative"}
	}
	if c.Server.RateLimitRequests > 0 && c.Server.RateLimitWindow <= 0 {
		return &ConfigValidationError{Field: "server.rate_limit.window", Value: c.Server.RateLimitWindow, Reason: "must be positive when rate limiting is enabled"}
	}

	if err := validatePolicy(c.Detection); err != nil {
		return err
	}

	if c.Store.Retention < 0 {
		return &ConfigValidationError{Field: "store.retention_seconds", Value: c.Store.Retention, Reason: "must not be negative"}
	}
	if c.Store.MaxEvents < 1 {
		return &ConfigValidationError{Field: "store.max_events", Value: c.Store.MaxEvents, Reason: "must be positive"}
	}
	if c.Store.FlushInterval < 0 {
		return &ConfigValidationError{Field: "store.flush_interval", Value: c.Store.FlushInterval, Reason: "must not be negative"}
	}

	if c.Enrichment.Enabled {
		switch c.Enrichment.Provider {
		case ProviderIPAPI, ProviderNone:
		default:
			return &ConfigValidationError{Field: "enrichment.provider", Value: c.Enrichment.Provider, Reason: "must be ip-api or none"}
		}
		if c.Enrichment.Timeout <= 0 {
			return &ConfigValidationError{Field: "enrichment.timeout", Value: c.Enrichment.Timeout, Reason: "must be positive"}
		}
		if c.Enrichment.CacheSize < 0 {
			return &ConfigValidationError{Field: "enrichment.cache_size", Value: c.Enrichment.CacheSize, Reason: "must not be negative"}
		}
		if c.Enrichment.RatePerMinute < 1 {
			return &ConfigValidationError{Field: "enrichment.rate_per_minute", Value: c.Enrichment.RatePerMinute, Reason: "must be positive"}
		}
	}

	if c.Reports.Enabled {
		switch c.Reports.Generator {
		case GeneratorCommand:
			if len(c.Reports.Command) == 0 {
				return &ConfigValidationError{Field: "reports.command", Value: c.Reports.Command, Reason: "must not be empty for the command generator"}
			}
		case GeneratorOllama:
			if c.Reports.Model == "" {
				return &ConfigValidationError{Field: "reports.model", Value: c.Reports.Model, Reason: "must not be empty for the ollama generator"}
			}
		case GeneratorNone:
		default:
			return &ConfigValidationError{Field: "reports.generator", Value: c.Reports.Generator, Reason: "must be command, ollama or none"}
		}
		if c.Reports.Timeout <= 0 {
			return &ConfigValidationError{Field: "reports.timeout", Value: c.Reports.Timeout, Reason: "must be positive"}
		}
		if c.Reports.Workers < 1 || c.Reports.Workers > 64 {
			return &ConfigValidationError{Field: "reports.workers", Value: c.Reports.Workers, Reason: "must be between 1 and 64"}
		}
		if c.Reports.QueueSize < 1 {
			return &ConfigValidationError{Field: "reports.queue_size", Value: c.Reports.QueueSize, Reason: "must be positive"}
		}
	}

	if _, err := zerolog.ParseLevel(c.Logging.Level); err != nil {
		return &ConfigValidationError{Field: "logging.level", Value: c.Logging.Level, Reason: "must be debug, info, warn or error"}
	}

	if c.Sources.TailPath != "" {
		switch c.Sources.TailFormat {
		case "json", "sshd":
		default:
			return &ConfigValidationError{Field: "sources.tail_format", Value: c.Sources.TailFormat, Reason: "must be json or sshd"}
		}
	}
	if c.Sources.Demo && c.Sources.DemoRate < 1 {
		return &ConfigValidationError{Field: "sources.demo_rate", Value: c.Sources.DemoRate, Reason: "must be positive"}
	}

	return nil
}

func validatePolicy(p detection.DetectionPolicy) error {
	if p.Threshold < 1 {
		return &ConfigValidationError{Field: "detection.brute_force.threshold", Value: p.Threshold, Reason: "must be positive"}
	}
	if p.Window <= 0 {
		return &ConfigValidationError{Field: "detection.brute_force.window_seconds", Value: p.Window, Reason: "must be positive"}
	}
	if p.LoginOnly && len(p.LoginEventTypes) == 0 {
		return &ConfigValidationError{Field: "detection.brute_force.login_event_types", Value: p.LoginEventTypes, Reason: "must not be empty when login_only is set"}
	}
	return nil
}

type ConfigValidationError struct {
	Field  string
	Value  interface{}
	Reason string
}

func (e *ConfigValidationError) Error() string {
	return fmt.Sprintf("config validation error: %s = %v - %s", e.Field, e.Value, e.Reason)
}

// PolicyTarget receives reloaded detection policies. Implemented by Engine.
type PolicyTarget interface {
	Policy() detection.DetectionPolicy
	SetPolicy(policy detection.DetectionPolicy) error
}

// PolicyReloader hot-reloads the detection policy when the config file
// changes. Only the brute-force keys are reloaded; everything else needs a
// restart. An invalid file is rejected and the running policy kept.
type PolicyReloader struct {
	v       *viper.Viper
	target  PolicyTarget
	mu      sync.Mutex
	stopped atomic.Bool
}

func NewPolicyReloader(v *viper.Viper, target PolicyTarget) *PolicyReloader {
	return &PolicyReloader{v: v, target: target}
}

// StartWatching registers the fsnotify watch through viper.
func (r *PolicyReloader) StartWatching() {
	r.v.OnConfigChange(func(e fsnotify.Event) {
		log.Info().
			Str("file", e.Name).
			Str("op", e.Op.String()).
			Msg("Config file changed, reloading detection policy...")

		if err := r.v.ReadInConfig(); err != nil {
			log.Error().Err(err).Msg("Failed to re-read config, keeping current detection policy")
			return
		}
		if _, err := r.Apply(); err != nil {
			log.Error().Err(err).Msg("Invalid detection policy, rejecting reload")
		}
	})

	r.v.WatchConfig()
	log.Info().Str("config", r.v.ConfigFileUsed()).Msg("Hot-reload config watching started")
}

// Apply reads the policy keys from viper and installs them.
//
// Returns:
//   - true if the policy changed
//   - error if the new policy is invalid (the running policy is kept)
func (r *PolicyReloader) Apply() (bool, error) {
	if r.stopped.Load() {
		return false, nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	policy := LoadDetectionPolicy(r.v)
	if err := validatePolicy(policy); err != nil {
		return false, err
	}

	current := r.target.Policy()
	if policiesEqual(current, policy) {
		return false, nil
	}
	if err := r.target.SetPolicy(policy); err != nil {
		return false, err
	}

	log.Info().
		Int("threshold", policy.Threshold).
		Dur("window", policy.Window).
		Bool("login_only", policy.LoginOnly).
		Bool("forgive_on_unblock", policy.ForgiveOnUnblock).
		Msg("Detection policy hot-reloaded")
	return true, nil
}

// Stop makes later file changes no-ops. viper offers no way to remove the
// watch itself.
func (r *PolicyReloader) Stop() {
	if r.stopped.CompareAndSwap(false, true) {
		log.Info().Msg("Hot-reload config watcher stopped")
	}
}

func policiesEqual(a, b detection.DetectionPolicy) bool {
	if a.Threshold != b.Threshold || a.Window != b.Window || a.LoginOnly != b.LoginOnly ||
		a.ForgiveOnUnblock != b.ForgiveOnUnblock {
		return false
	}
	if len(a.LoginEventTypes) != len(b.LoginEventTypes) {
		return false
	}
	for i := range a.LoginEventTypes {
		if a.LoginEventTypes[i] != b.LoginEventTypes[i] {
			return false
		}
	}
	return true
}
