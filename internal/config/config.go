package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	ferrors "git.home.luguber.info/inful/showroom/internal/foundation/errors"
)

// Config represents the kiosk runtime configuration.
type Config struct {
	Remote    RemoteConfig    `yaml:"remote"`
	Cache     CacheConfig     `yaml:"cache"`
	Sync      SyncConfig      `yaml:"sync"`
	Heartbeat HeartbeatConfig `yaml:"heartbeat"`
	Playback  PlaybackConfig  `yaml:"playback"`
	Device    DeviceConfig    `yaml:"device"`
	HTTP      HTTPConfig      `yaml:"http"`
	Metrics   MetricsConfig   `yaml:"metrics"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// RemoteBackend selects the RemoteStore implementation.
type RemoteBackend string

const (
	RemoteBackendMemory   RemoteBackend = "memory"
	RemoteBackendNATS     RemoteBackend = "nats"
	RemoteBackendPostgres RemoteBackend = "postgres"
)

// RemoteConfig configures the shared document store.
type RemoteConfig struct {
	Backend        RemoteBackend `yaml:"backend" validate:"oneof=memory nats postgres"`
	NATSURL        string        `yaml:"nats_url" validate:"required_if=Backend nats"`
	DocumentBucket string        `yaml:"document_bucket" validate:"required_if=Backend nats"`
	FleetBucket    string        `yaml:"fleet_bucket" validate:"required_if=Backend nats"`
	PostgresDSN    string        `yaml:"postgres_dsn" validate:"required_if=Backend postgres"`
	DocumentID     string        `yaml:"document_id" validate:"required"`
	Timeout        time.Duration `yaml:"timeout" validate:"gt=0"`
}

// CacheConfig configures the local sqlite cache.
type CacheConfig struct {
	Path     string `yaml:"path" validate:"required"`
	MaxBytes int64  `yaml:"max_bytes" validate:"gte=0"`
}

// SyncConfig holds the coordinator timing rules.
type SyncConfig struct {
	PollInterval      time.Duration    `yaml:"poll_interval" validate:"gt=0"`
	GuardWindow       time.Duration    `yaml:"guard_window" validate:"gte=0"`
	LockGrace         time.Duration    `yaml:"lock_grace" validate:"gte=0"`
	ChangeDebounce    time.Duration    `yaml:"change_debounce" validate:"gte=0"`
	ArchiveMaxAge     time.Duration    `yaml:"archive_max_age" validate:"gte=0"`
	ArchiveMaxEntries int              `yaml:"archive_max_entries" validate:"gte=0"`
	OutboxBackoff     RetryBackoffMode `yaml:"outbox_backoff" validate:"omitempty,oneof=fixed linear exponential"`
	OutboxInitial     time.Duration    `yaml:"outbox_initial" validate:"gte=0"`
	OutboxMax         time.Duration    `yaml:"outbox_max" validate:"gte=0"`
}

// HeartbeatConfig configures the device liveness reporter.
type HeartbeatConfig struct {
	Interval     time.Duration `yaml:"interval" validate:"gt=0"`
	ProbeTimeout time.Duration `yaml:"probe_timeout" validate:"gt=0"`
}

// PlaybackConfig configures the idle playback engine outside of the document settings.
type PlaybackConfig struct {
	Enabled       bool          `yaml:"enabled"`
	VideoWatchdog time.Duration `yaml:"video_watchdog" validate:"gt=0"`
	SleepRecheck  time.Duration `yaml:"sleep_recheck" validate:"gt=0"`
}

// DeviceConfig locates the persisted device identity.
type DeviceConfig struct {
	IdentityPath string `yaml:"identity_path" validate:"required"`
}

// HTTPConfig configures the local API for the host UI.
type HTTPConfig struct {
	Addr string `yaml:"addr" validate:"required,hostname_port"`
}

// MetricsConfig toggles the Prometheus recorder.
type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
}

// LoggingConfig configures slog output.
type LoggingConfig struct {
	Level      string `yaml:"level"`
	Format     string `yaml:"format"`
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb" validate:"gte=0"`
	MaxBackups int    `yaml:"max_backups" validate:"gte=0"`
	MaxAgeDays int    `yaml:"max_age_days" validate:"gte=0"`
	Compress   bool   `yaml:"compress"`
}

// Load reads the configuration file, expands environment variables, applies
// defaults and validates the result. An empty path yields the defaults.
func Load(configPath string) (*Config, error) {
	loadEnvFiles()

	cfg := Default()
	if configPath == "" {
		return cfg, Validate(cfg)
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ferrors.ConfigError(fmt.Sprintf("configuration file not found: %s", configPath)).Build()
		}
		return nil, ferrors.WrapError(err, ferrors.CategoryConfig, "failed to read config file").Build()
	}

	if err := yaml.Unmarshal([]byte(os.ExpandEnv(string(data))), cfg); err != nil {
		return nil, ferrors.WrapError(err, ferrors.CategoryConfig, "failed to unmarshal config").
			WithContext("path", configPath).
			Build()
	}

	applyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Init writes an example configuration file.
func Init(configPath string, force bool) error {
	if _, err := os.Stat(configPath); err == nil && !force {
		return ferrors.ValidationError(fmt.Sprintf("configuration file already exists: %s (use --force to overwrite)", configPath)).Build()
	}
	data, err := yaml.Marshal(Default())
	if err != nil {
		return ferrors.WrapError(err, ferrors.CategoryInternal, "failed to marshal example config").Build()
	}
	if err := os.WriteFile(configPath, data, 0o600); err != nil {
		return ferrors.WrapError(err, ferrors.CategoryConfig, "failed to write config file").Build()
	}
	return nil
}
