package app

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Reddy-45/siem/internal/adapters/detection"
)

func newTestViper() *viper.Viper {
	v := viper.New()
	SetDefaults(v)
	return v
}

func TestLoadConfig_Defaults(t *testing.T) {
	cfg, err := LoadConfig(newTestViper())
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0:8000", cfg.Server.Addr())
	assert.True(t, cfg.Server.TrustForwardedFor)
	assert.Equal(t, []string{"*"}, cfg.Server.AllowedOrigins)
	assert.Equal(t, 0, cfg.Server.RateLimitRequests)

	assert.Equal(t, 5, cfg.Detection.Threshold)
	assert.Equal(t, 300*time.Second, cfg.Detection.Window)
	assert.False(t, cfg.Detection.LoginOnly)
	assert.True(t, cfg.Detection.ForgiveOnUnblock)
	assert.Contains(t, cfg.Detection.LoginEventTypes, "ssh_login")

	assert.Equal(t, time.Hour, cfg.Store.Retention)
	assert.Equal(t, 100000, cfg.Store.MaxEvents)
	assert.Empty(t, cfg.Store.PersistPath)

	assert.True(t, cfg.Enrichment.Enabled)
	assert.Equal(t, ProviderIPAPI, cfg.Enrichment.Provider)
	assert.Equal(t, 5*time.Second, cfg.Enrichment.Timeout)
	assert.Equal(t, 45, cfg.Enrichment.RatePerMinute)

	assert.Equal(t, GeneratorCommand, cfg.Reports.Generator)
	assert.Equal(t, []string{"ollama", "run", "llama3"}, cfg.Reports.Command)
	assert.Equal(t, 60*time.Second, cfg.Reports.Timeout)
	assert.Equal(t, 2, cfg.Reports.Workers)
	assert.Equal(t, 256, cfg.Reports.QueueSize)

	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, "json", cfg.Sources.TailFormat)
	assert.Equal(t, 20, cfg.Sources.DemoRate)
}

func TestLoadConfig_RetentionCoversWindow(t *testing.T) {
	v := newTestViper()
	v.Set("detection.brute_force.window_seconds", 7200)
	v.Set("store.retention_seconds", 60)

	cfg, err := LoadConfig(v)
	require.NoError(t, err)
	assert.Equal(t, 2*time.Hour, cfg.Store.Retention)
}

func TestLoadConfig_Validation(t *testing.T) {
	tests := []struct {
		name  string
		key   string
		value interface{}
		field string
	}{
		{"port too high", "server.port", 70000, "server.port"},
		{"zero threshold", "detection.brute_force.threshold", 0, "detection.brute_force.threshold"},
		{"zero window", "detection.brute_force.window_seconds", 0, "detection.brute_force.window_seconds"},
		{"negative rate limit", "server.rate_limit.requests", -1, "server.rate_limit.requests"},
		{"zero max events", "store.max_events", 0, "store.max_events"},
		{"unknown provider", "enrichment.provider", "maxmind", "enrichment.provider"},
		{"zero enrichment rate", "enrichment.rate_per_minute", 0, "enrichment.rate_per_minute"},
		{"unknown generator", "reports.generator", "gpt", "reports.generator"},
		{"empty command", "reports.command", []string{}, "reports.command"},
		{"too many workers", "reports.workers", 100, "reports.workers"},
		{"zero queue", "reports.queue_size", 0, "reports.queue_size"},
		{"bad log level", "logging.level", "verbose", "logging.level"},
	}

	for _, tt := range tests {
		tt := tt // per-iteration copy (go 1.21 loop semantics)
		t.Run(tt.name, func(t *testing.T) {
			v := newTestViper()
			v.Set(tt.key, tt.value)

			_, err := LoadConfig(v)
			require.Error(t, err)

			var cfgErr *ConfigValidationError
			require.True(t, errors.As(err, &cfgErr))
			assert.Equal(t, tt.field, cfgErr.Field)
		})
	}
}

func TestLoadConfig_LoginOnlyNeedsTypes(t *testing.T) {
	v := newTestViper()
	v.Set("detection.brute_force.login_only", true)
	v.Set("detection.brute_force.login_event_types", []string{})

	_, err := LoadConfig(v)
	var cfgErr *ConfigValidationError
	require.True(t, errors.As(err, &cfgErr))
	assert.Equal(t, "detection.brute_force.login_event_types", cfgErr.Field)
}

func TestLoadConfig_DisabledSectionsSkipValidation(t *testing.T) {
	v := newTestViper()
	v.Set("reports.enabled", false)
	v.Set("reports.generator", "gpt")
	v.Set("enrichment.enabled", false)
	v.Set("enrichment.provider", "maxmind")

	_, err := LoadConfig(v)
	assert.NoError(t, err)
}

func TestLoadConfig_TailFormat(t *testing.T) {
	v := newTestViper()
	v.Set("sources.tail_path", "/var/log/auth.log")
	v.Set("sources.tail_format", "SSHD")

	cfg, err := LoadConfig(v)
	require.NoError(t, err)
	assert.Equal(t, "sshd", cfg.Sources.TailFormat)

	v.Set("sources.tail_format", "syslog")
	_, err = LoadConfig(v)
	assert.Error(t, err)
}

func TestConfigValidationError_Message(t *testing.T) {
	err := &ConfigValidationError{Field: "server.port", Value: 70000, Reason: "must be between 1 and 65535"}
	assert.Equal(t, "config validation error: server.port = 70000 - must be between 1 and 65535", err.Error())
}

type policyHolder struct {
	policy detection.DetectionPolicy
	sets   int
}

func (p *policyHolder) Policy() detection.DetectionPolicy { return p.policy }

func (p *policyHolder) SetPolicy(policy detection.DetectionPolicy) error {
	if err := policy.Validate(); err != nil {
		return err
	}
	p.policy = policy
	p.sets++
	return nil
}

func TestPolicyReloader_Apply(t *testing.T) {
	v := newTestViper()
	holder := &policyHolder{policy: LoadDetectionPolicy(v)}
	reloader := NewPolicyReloader(v, holder)

	changed, err := reloader.Apply()
	require.NoError(t, err)
	assert.False(t, changed, "unchanged policy is not reinstalled")
	assert.Equal(t, 0, holder.sets)

	v.Set("detection.brute_force.threshold", 10)
	v.Set("detection.brute_force.window_seconds", 60)
	changed, err = reloader.Apply()
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, 10, holder.policy.Threshold)
	assert.Equal(t, time.Minute, holder.policy.Window)

	v.Set("detection.brute_force.forgive_on_unblock", false)
	changed, err = reloader.Apply()
	require.NoError(t, err)
	assert.True(t, changed, "forgiveness toggle is a policy change")
	assert.False(t, holder.policy.ForgiveOnUnblock)
}

func TestPolicyReloader_RejectsInvalid(t *testing.T) {
	v := newTestViper()
	holder := &policyHolder{policy: LoadDetectionPolicy(v)}
	reloader := NewPolicyReloader(v, holder)

	v.Set("detection.brute_force.threshold", -3)
	changed, err := reloader.Apply()
	assert.Error(t, err)
	assert.False(t, changed)
	assert.Equal(t, 5, holder.policy.Threshold)
}

func TestPolicyReloader_StoppedIgnoresChanges(t *testing.T) {
	v := newTestViper()
	holder := &policyHolder{policy: LoadDetectionPolicy(v)}
	reloader := NewPolicyReloader(v, holder)
	reloader.Stop()

	v.Set("detection.brute_force.threshold", 9)
	changed, err := reloader.Apply()
	require.NoError(t, err)
	assert.False(t, changed)
	assert.Equal(t, 5, holder.policy.Threshold)
}

func TestPolicyReloader_ReadsConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("detection:\n  brute_force:\n    threshold: 3\n    window_seconds: 30\n"), 0o644))

	v := newTestViper()
	v.SetConfigFile(path)
	require.NoError(t, v.ReadInConfig())

	engine, err := NewEngine(EngineOptions{})
	require.NoError(t, err)
	reloader := NewPolicyReloader(v, engine)

	changed, err := reloader.Apply()
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, 3, engine.Policy().Threshold)
	assert.Equal(t, 30*time.Second, engine.Policy().Window)
}
