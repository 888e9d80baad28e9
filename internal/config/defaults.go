package config

import (
	"time"

	"git.home.luguber.info/inful/showroom/internal/foundation/normalization"
)

var backendNormalizer = normalization.NewNormalizer(map[string]RemoteBackend{
	"memory":   RemoteBackendMemory,
	"nats":     RemoteBackendNATS,
	"postgres": RemoteBackendPostgres,
}, RemoteBackendMemory)

// Default returns a configuration that runs fully offline with the in-memory backend.
func Default() *Config {
	cfg := &Config{}
	applyDefaults(cfg)
	return cfg
}

func applyDefaults(cfg *Config) {
	r := &cfg.Remote
	// Unknown names are left alone so validation reports them.
	if b, err := backendNormalizer.NormalizeWithError(string(r.Backend)); err == nil {
		r.Backend = b
	}
	if r.Backend == "" {
		r.Backend = RemoteBackendMemory
	}
	if r.DocumentID == "" {
		r.DocumentID = "store_config"
	}
	if r.Backend == RemoteBackendNATS {
		if r.DocumentBucket == "" {
			r.DocumentBucket = "showroom_store"
		}
		if r.FleetBucket == "" {
			r.FleetBucket = "showroom_fleet"
		}
	}
	if r.Timeout == 0 {
		r.Timeout = 10 * time.Second
	}

	if cfg.Cache.Path == "" {
		cfg.Cache.Path = "showroom-cache.db"
	}
	if cfg.Cache.MaxBytes == 0 {
		cfg.Cache.MaxBytes = 5 << 20
	}

	s := &cfg.Sync
	if s.PollInterval == 0 {
		s.PollInterval = 30 * time.Second
	}
	if s.GuardWindow == 0 {
		s.GuardWindow = 5 * time.Second
	}
	if s.LockGrace == 0 {
		s.LockGrace = 2 * time.Second
	}
	if s.ChangeDebounce == 0 {
		s.ChangeDebounce = time.Second
	}
	if s.ArchiveMaxAge == 0 {
		s.ArchiveMaxAge = 365 * 24 * time.Hour
	}
	if s.ArchiveMaxEntries == 0 {
		s.ArchiveMaxEntries = 500
	}
	if m := NormalizeRetryBackoff(string(s.OutboxBackoff)); m != "" {
		s.OutboxBackoff = m
	}
	if s.OutboxBackoff == "" {
		s.OutboxBackoff = RetryBackoffExponential
	}
	if s.OutboxInitial == 0 {
		s.OutboxInitial = 5 * time.Second
	}
	if s.OutboxMax == 0 {
		s.OutboxMax = 5 * time.Minute
	}

	if cfg.Heartbeat.Interval == 0 {
		cfg.Heartbeat.Interval = 30 * time.Second
	}
	if cfg.Heartbeat.ProbeTimeout == 0 {
		cfg.Heartbeat.ProbeTimeout = 5 * time.Second
	}

	if cfg.Playback.VideoWatchdog == 0 {
		cfg.Playback.VideoWatchdog = 180 * time.Second
	}
	if cfg.Playback.SleepRecheck == 0 {
		cfg.Playback.SleepRecheck = 60 * time.Second
	}

	if cfg.Device.IdentityPath == "" {
		cfg.Device.IdentityPath = "identity.toml"
	}
	if cfg.HTTP.Addr == "" {
		cfg.HTTP.Addr = "127.0.0.1:8787"
	}

	cfg.Logging.Level = string(NormalizeLogLevel(cfg.Logging.Level))
	cfg.Logging.Format = string(NormalizeLogFormat(cfg.Logging.Format))
	if cfg.Logging.File != "" {
		if cfg.Logging.MaxSizeMB == 0 {
			cfg.Logging.MaxSizeMB = 10
		}
		if cfg.Logging.MaxBackups == 0 {
			cfg.Logging.MaxBackups = 3
		}
		if cfg.Logging.MaxAgeDays == 0 {
			cfg.Logging.MaxAgeDays = 14
		}
	}
}
