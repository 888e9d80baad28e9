package kiosk

import (
	"context"
	"io"
	"net/http"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/showroom/internal/config"
	"git.home.luguber.info/inful/showroom/internal/events"
	ferrors "git.home.luguber.info/inful/showroom/internal/foundation/errors"
	"git.home.luguber.info/inful/showroom/internal/heartbeat"
	"git.home.luguber.info/inful/showroom/internal/identity"
	"git.home.luguber.info/inful/showroom/internal/model"
	"git.home.luguber.info/inful/showroom/internal/remote"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()
	cfg := config.Default()
	cfg.Cache.Path = filepath.Join(dir, "cache.db")
	cfg.Device.IdentityPath = filepath.Join(dir, "identity.toml")
	cfg.HTTP.Addr = "127.0.0.1:0"
	cfg.Playback.Enabled = true
	cfg.Metrics.Enabled = true
	return cfg
}

func startRuntime(t *testing.T, cfg *config.Config, opts Options) *Runtime {
	t.Helper()
	if opts.Network == nil {
		opts.Network = heartbeat.StaticNetwork(heartbeat.SignalGood)
	}
	rt, err := New(t.Context(), cfg, opts)
	require.NoError(t, err)
	require.NoError(t, rt.Start(t.Context()))
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
		defer cancel()
		_ = rt.Stop(ctx)
	})
	return rt
}

func get(t *testing.T, url string) (int, string) {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, string(body)
}

func TestRuntimeStartsOfflineWithDefaults(t *testing.T) {
	store := remote.NewMemoryStore()
	rt := startRuntime(t, testConfig(t), Options{Remote: store})

	require.Equal(t, StatusRunning, rt.GetStatus())
	require.NotNil(t, rt.Coordinator.Document())
	require.Equal(t, events.SourceDefault, rt.Coordinator.Snapshot().Source)
	require.NotNil(t, rt.Engine)

	base := "http://" + rt.Server.Addr()
	code, _ := get(t, base+"/healthz")
	require.Equal(t, http.StatusOK, code)

	code, body := get(t, base+"/api/identity")
	require.Equal(t, http.StatusOK, code)
	require.Contains(t, body, `"configured":false`)

	code, body = get(t, base+"/metrics")
	require.Equal(t, http.StatusOK, code)
	require.Contains(t, body, "showroom_")

	require.Error(t, rt.Start(t.Context()))
}

func TestRuntimeLoadsRemoteDocument(t *testing.T) {
	store := remote.NewMemoryStore()
	doc := model.Default()
	doc.Brands = []model.Brand{{ID: "b1", Name: "Acme"}}
	require.NoError(t, store.UpsertDocument(t.Context(), model.ForRemote(doc)))

	rt := startRuntime(t, testConfig(t), Options{Remote: store, DisableHTTP: true})

	require.Nil(t, rt.Server)
	require.Equal(t, events.SourceRemote, rt.Coordinator.Snapshot().Source)
	require.Len(t, rt.Coordinator.Document().Brands, 1)
}

func TestRuntimeForgetsDeletedDevice(t *testing.T) {
	cfg := testConfig(t)
	ids, err := identity.Open(cfg.Device.IdentityPath)
	require.NoError(t, err)
	_, err = ids.Provision("Front desk", model.DeviceKiosk)
	require.NoError(t, err)

	// No fleet row exists for the device, so the first heartbeat reports it deleted.
	rt := startRuntime(t, cfg, Options{Remote: remote.NewMemoryStore(), DisableHTTP: true})

	require.Eventually(t, func() bool { return !rt.Identity.Get().Configured() }, 5*time.Second, 10*time.Millisecond)
	require.Equal(t, "Front desk", rt.Identity.Get().Name)
}

func TestRuntimeForwardsRestartRequests(t *testing.T) {
	cfg := testConfig(t)
	ids, err := identity.Open(cfg.Device.IdentityPath)
	require.NoError(t, err)
	dev, err := ids.Provision("Lobby", model.DeviceTV)
	require.NoError(t, err)

	store := remote.NewMemoryStore()
	store.PutFleetRow(model.FleetDevice{ID: dev.ID, Name: "Lobby", DeviceType: model.DeviceTV, RestartRequestID: "req-1"})

	got := make(chan events.RestartRequested, 1)
	startRuntime(t, cfg, Options{
		Remote:      store,
		DisableHTTP: true,
		OnRestart:   func(evt events.RestartRequested) { got <- evt },
	})

	select {
	case evt := <-got:
		require.Equal(t, dev.ID, evt.DeviceID)
		require.Equal(t, "req-1", evt.RequestID)
	case <-time.After(5 * time.Second):
		t.Fatal("restart request not forwarded")
	}

	row, err := store.FetchFleetRow(t.Context(), dev.ID)
	require.NoError(t, err)
	require.False(t, row.RestartPending())
	require.Equal(t, "req-1", row.RestartAckID)
}

func TestRuntimeStopIsIdempotent(t *testing.T) {
	rt, err := New(t.Context(), testConfig(t), Options{Remote: remote.NewMemoryStore(), DisableHTTP: true})
	require.NoError(t, err)
	require.NoError(t, rt.Start(t.Context()))

	require.NoError(t, rt.Stop(t.Context()))
	require.Equal(t, StatusStopped, rt.GetStatus())
	require.NoError(t, rt.Stop(t.Context()))
}

func TestNewRequiresConfig(t *testing.T) {
	_, err := New(t.Context(), nil, Options{})
	require.True(t, ferrors.HasCategory(err, ferrors.CategoryConfig))
}

func TestOpenRemote(t *testing.T) {
	s, err := OpenRemote(t.Context(), config.RemoteConfig{Backend: config.RemoteBackendMemory})
	require.NoError(t, err)
	require.IsType(t, &remote.MemoryStore{}, s)

	_, err = OpenRemote(t.Context(), config.RemoteConfig{Backend: "carrier-pigeon"})
	require.True(t, ferrors.HasCategory(err, ferrors.CategoryConfig))
}

func TestReloadChangesLogLevel(t *testing.T) {
	rt, err := New(t.Context(), testConfig(t), Options{Remote: remote.NewMemoryStore(), DisableHTTP: true})
	require.NoError(t, err)
	t.Cleanup(func() { _ = rt.Close(context.Background()) })

	// Without a Logging handle reload is a no-op.
	next := testConfig(t)
	next.Logging.Level = "debug"
	require.NoError(t, rt.Reload(t.Context(), next))
}

func TestCloseWithoutStart(t *testing.T) {
	rt, err := New(t.Context(), testConfig(t), Options{Remote: remote.NewMemoryStore(), DisableHTTP: true})
	require.NoError(t, err)

	src, err := rt.Coordinator.Init(t.Context())
	require.NoError(t, err)
	require.Equal(t, events.SourceDefault, src)

	require.NoError(t, rt.Close(t.Context()))
	require.NoError(t, rt.Close(t.Context()))
}
