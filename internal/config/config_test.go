package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	ferrors "git.home.luguber.info/inful/showroom/internal/foundation/errors"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "showroom.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestDefault(t *testing.T) {
	cfg := Default()

	require.Equal(t, RemoteBackendMemory, cfg.Remote.Backend)
	require.Equal(t, "store_config", cfg.Remote.DocumentID)
	require.Equal(t, 30*time.Second, cfg.Sync.PollInterval)
	require.Equal(t, 5*time.Second, cfg.Sync.GuardWindow)
	require.Equal(t, 2*time.Second, cfg.Sync.LockGrace)
	require.Equal(t, time.Second, cfg.Sync.ChangeDebounce)
	require.Equal(t, 30*time.Second, cfg.Heartbeat.Interval)
	require.Equal(t, 180*time.Second, cfg.Playback.VideoWatchdog)
	require.Equal(t, 60*time.Second, cfg.Playback.SleepRecheck)
	require.Equal(t, "info", cfg.Logging.Level)
	require.NoError(t, Validate(cfg))
}

func TestLoad_EmptyPathUsesDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	require.Equal(t, Default(), cfg)
}

func TestLoad_ExpandsEnvAndAppliesDefaults(t *testing.T) {
	t.Setenv("SHOWROOM_TEST_NATS", "nats://kiosk-hub:4222")
	path := writeConfig(t, `
remote:
  backend: nats
  nats_url: ${SHOWROOM_TEST_NATS}
sync:
  poll_interval: 45s
logging:
  level: DEBUG
  format: json
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "nats://kiosk-hub:4222", cfg.Remote.NATSURL)
	require.Equal(t, "showroom_store", cfg.Remote.DocumentBucket)
	require.Equal(t, "showroom_fleet", cfg.Remote.FleetBucket)
	require.Equal(t, 45*time.Second, cfg.Sync.PollInterval)
	require.Equal(t, 5*time.Second, cfg.Sync.GuardWindow)
	require.Equal(t, "debug", cfg.Logging.Level)
	require.Equal(t, "json", cfg.Logging.Format)
}

func TestLoad_ValidationFailure(t *testing.T) {
	path := writeConfig(t, `
remote:
  backend: postgres
`)

	_, err := Load(path)
	require.Error(t, err)
	require.True(t, ferrors.HasCategory(err, ferrors.CategoryValidation))
	require.Contains(t, err.Error(), "PostgresDSN")
}

func TestLoad_UnknownBackend(t *testing.T) {
	path := writeConfig(t, "remote:\n  backend: dynamo\n")
	_, err := Load(path)
	require.Error(t, err)
	require.Contains(t, err.Error(), "Backend")
}

func TestLoad_BackendNameIsCaseInsensitive(t *testing.T) {
	path := writeConfig(t, "remote:\n  backend: \" NATS \"\n  nats_url: nats://127.0.0.1:4222\n")
	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, RemoteBackendNATS, cfg.Remote.Backend)
	require.Equal(t, "showroom_store", cfg.Remote.DocumentBucket)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
	require.True(t, ferrors.HasCategory(err, ferrors.CategoryConfig))
}

func TestInit(t *testing.T) {
	path := filepath.Join(t.TempDir(), "showroom.yaml")
	require.NoError(t, Init(path, false))
	require.Error(t, Init(path, false))
	require.NoError(t, Init(path, true))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, RemoteBackendMemory, cfg.Remote.Backend)
}

func TestNormalizers(t *testing.T) {
	require.Equal(t, LogLevelWarn, NormalizeLogLevel(" Warning "))
	require.Equal(t, LogLevelInfo, NormalizeLogLevel("verbose"))
	require.Equal(t, LogFormatJSON, NormalizeLogFormat("JSON"))
	require.Equal(t, RetryBackoffLinear, NormalizeRetryBackoff("Linear"))
	require.Equal(t, RetryBackoffMode(""), NormalizeRetryBackoff("weird"))
}
