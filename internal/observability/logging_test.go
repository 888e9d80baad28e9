package observability

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/showroom/internal/config"
)

func TestLogContextValues(t *testing.T) {
	ctx := WithDeviceID(t.Context(), "dev-1")
	ctx = WithRequestID(ctx, "req-2")
	ctx = WithJob(ctx, "heartbeat")

	lc := GetContext(ctx)
	require.Equal(t, "dev-1", lc.DeviceID)
	require.Equal(t, "req-2", lc.RequestID)
	require.Equal(t, "heartbeat", lc.Job)
	require.Equal(t, LogContext{}, GetContext(context.Background()))
}

func TestContextHandlerAddsAttrs(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(NewContextHandler(slog.NewJSONHandler(&buf, nil)))

	logger.InfoContext(WithDeviceID(t.Context(), "dev-9"), "hello", slog.String("extra", "x"))

	var rec map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	require.Equal(t, "dev-9", rec["device_id"])
	require.Equal(t, "x", rec["extra"])
	require.NotContains(t, rec, "request_id")
}

func TestNewLoggingLevelAndFormat(t *testing.T) {
	var buf bytes.Buffer
	l := NewLogging(config.LoggingConfig{Level: "warn", Format: "json"}, &buf)
	t.Cleanup(func() { _ = l.Close() })

	l.Logger.Info("dropped")
	require.Zero(t, buf.Len())

	l.Logger.Warn("kept")
	require.Contains(t, buf.String(), `"msg":"kept"`)

	l.SetLevel("debug")
	require.Equal(t, slog.LevelDebug, l.Level())
	buf.Reset()
	l.Logger.Debug("now visible")
	require.Contains(t, buf.String(), "now visible")
}

func TestNewLoggingTextDefault(t *testing.T) {
	var buf bytes.Buffer
	l := NewLogging(config.LoggingConfig{}, &buf)
	l.Logger.Info("plain")
	require.Contains(t, buf.String(), "msg=plain")
	require.Equal(t, slog.LevelInfo, l.Level())
}

func TestNewLoggingFileTee(t *testing.T) {
	path := filepath.Join(t.TempDir(), "showroom.log")
	var buf bytes.Buffer
	l := NewLogging(config.LoggingConfig{File: path, MaxSizeMB: 1}, &buf)

	l.Logger.Info("to both")
	require.NoError(t, l.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Contains(t, string(data), "to both")
	require.Contains(t, buf.String(), "to both")
}
