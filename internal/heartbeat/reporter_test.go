package heartbeat

import (
	"context"
	stderrors "errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/showroom/internal/events"
	ferrors "git.home.luguber.info/inful/showroom/internal/foundation/errors"
	"git.home.luguber.info/inful/showroom/internal/identity"
	"git.home.luguber.info/inful/showroom/internal/model"
	"git.home.luguber.info/inful/showroom/internal/remote"
)

type fixture struct {
	store    *remote.MemoryStore
	ids      *identity.Store
	bus      *events.Bus
	clock    *clockwork.FakeClock
	reporter *Reporter
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ids, err := identity.Open(filepath.Join(t.TempDir(), "identity.toml"))
	require.NoError(t, err)
	f := &fixture{
		store: remote.NewMemoryStore(),
		ids:   ids,
		bus:   events.NewBus(),
		clock: clockwork.NewFakeClockAt(time.Date(2026, 3, 2, 9, 30, 0, 0, time.UTC)),
	}
	t.Cleanup(f.bus.Close)
	f.reporter = New(Options{
		Remote:   f.store,
		Identity: ids,
		Network:  StaticNetwork(SignalGood),
		Bus:      f.bus,
		Clock:    f.clock,
		Version:  "1.2.3",
	})
	return f
}

func (f *fixture) provision(t *testing.T) identity.Identity {
	t.Helper()
	id, err := f.ids.Provision("Lobby", model.DeviceKiosk)
	require.NoError(t, err)
	require.NoError(t, f.reporter.Register(t.Context()))
	return id
}

func TestBeatSkippedWithoutIdentity(t *testing.T) {
	f := newFixture(t)
	res, err := f.reporter.Beat(t.Context())
	require.NoError(t, err)
	require.True(t, res.Skipped)
}

func TestBeatWritesLiveness(t *testing.T) {
	f := newFixture(t)
	id := f.provision(t)

	res, err := f.reporter.Beat(t.Context())
	require.NoError(t, err)
	require.False(t, res.Changed)
	require.False(t, res.Restart)

	row, err := f.store.FetchFleetRow(t.Context(), id.ID)
	require.NoError(t, err)
	require.Equal(t, "online", row.Status)
	require.Equal(t, 3, row.SignalStrength)
	require.Equal(t, "4g", row.ConnectionType)
	require.Equal(t, "1.2.3", row.Version)
	require.Equal(t, "2026-03-02T09:30:00Z", row.LastSeen)
}

func TestBeatAppliesRemoteAssignments(t *testing.T) {
	f := newFixture(t)
	id := f.provision(t)

	row, err := f.store.FetchFleetRow(t.Context(), id.ID)
	require.NoError(t, err)
	row.Name = "Showroom window"
	row.DeviceType = model.DeviceTV
	row.AssignedZone = "homeBottomLeft"
	f.store.PutFleetRow(row)

	res, err := f.reporter.Beat(t.Context())
	require.NoError(t, err)
	require.True(t, res.Changed)
	got := f.ids.Get()
	require.Equal(t, "Showroom window", got.Name)
	require.Equal(t, model.DeviceTV, got.DeviceType)
	require.Equal(t, "homeBottomLeft", got.AssignedZone)

	// An unknown device type from the remote side is ignored.
	row.DeviceType = "toaster"
	f.store.PutFleetRow(row)
	_, err = f.reporter.Beat(t.Context())
	require.NoError(t, err)
	require.Equal(t, model.DeviceTV, f.ids.Get().DeviceType)
}

func TestBeatAcknowledgesRestart(t *testing.T) {
	f := newFixture(t)
	id := f.provision(t)
	restarts, unsubscribe := events.Subscribe[events.RestartRequested](f.bus, 1)
	defer unsubscribe()

	row, err := f.store.FetchFleetRow(t.Context(), id.ID)
	require.NoError(t, err)
	row.RestartRequested = true
	row.RestartRequestID = "req-42"
	f.store.PutFleetRow(row)

	res, err := f.reporter.Beat(t.Context())
	require.NoError(t, err)
	require.True(t, res.Restart)
	require.Equal(t, "req-42", (<-restarts).RequestID)

	row, err = f.store.FetchFleetRow(t.Context(), id.ID)
	require.NoError(t, err)
	require.False(t, row.RestartRequested)
	require.Equal(t, "req-42", row.RestartAckID)
	require.False(t, row.RestartPending())

	res, err = f.reporter.Beat(t.Context())
	require.NoError(t, err)
	require.False(t, res.Restart, "an acknowledged request is not replayed")
}

func TestBeatReportsDeletedDevice(t *testing.T) {
	f := newFixture(t)
	id := f.provision(t)
	deleted, unsubscribe := events.Subscribe[events.DeviceDeleted](f.bus, 1)
	defer unsubscribe()

	f.store.DeleteFleetRow(id.ID)
	_, err := f.reporter.Beat(t.Context())
	require.ErrorIs(t, err, ErrDeviceDeleted)
	require.True(t, ferrors.HasCategory(err, ferrors.CategoryIdentity))
	require.Equal(t, id.ID, (<-deleted).DeviceID)
}

func TestBeatNetworkFailure(t *testing.T) {
	f := newFixture(t)
	f.provision(t)
	f.store.SetFailure(stderrors.New("offline"))

	_, err := f.reporter.Beat(t.Context())
	require.Error(t, err)
	require.True(t, ferrors.HasCategory(err, ferrors.CategoryNetwork))
	require.NotErrorIs(t, err, ErrDeviceDeleted)
}

func TestLatencyProbe(t *testing.T) {
	clock := clockwork.NewFakeClock()
	probe := func(rtt time.Duration, err error) LatencyProbe {
		return LatencyProbe{Clock: clock, Probe: func(context.Context) error {
			clock.Advance(rtt)
			return err
		}}
	}

	require.Equal(t, SignalExcellent, probe(20*time.Millisecond, nil).Estimate(t.Context()))
	require.Equal(t, SignalGood, probe(200*time.Millisecond, nil).Estimate(t.Context()))
	require.Equal(t, SignalFair, probe(600*time.Millisecond, nil).Estimate(t.Context()))
	require.Equal(t, SignalPoor, probe(3*time.Second, nil).Estimate(t.Context()))
	require.Equal(t, SignalOffline, probe(0, stderrors.New("down")).Estimate(t.Context()))
	require.Equal(t, SignalOffline, LatencyProbe{}.Estimate(t.Context()))
}
