// Package heartbeat reports device liveness to the fleet table and applies
// the fields an administrator assigned to this device remotely.
package heartbeat

import (
	"context"
	stderrors "errors"
	"log/slog"

	"github.com/jonboulle/clockwork"

	"git.home.luguber.info/inful/showroom/internal/events"
	ferrors "git.home.luguber.info/inful/showroom/internal/foundation/errors"
	"git.home.luguber.info/inful/showroom/internal/identity"
	"git.home.luguber.info/inful/showroom/internal/logfields"
	"git.home.luguber.info/inful/showroom/internal/metrics"
	"git.home.luguber.info/inful/showroom/internal/model"
	"git.home.luguber.info/inful/showroom/internal/remote"
)

// ErrDeviceDeleted means this device's fleet row no longer exists. The host
// should re-enter provisioning instead of retrying.
var ErrDeviceDeleted = ferrors.IdentityError("device is no longer registered").Build()

// Options configures a Reporter.
type Options struct {
	Remote   remote.Store
	Identity *identity.Store
	Network  NetworkInfo
	Bus      *events.Bus
	Clock    clockwork.Clock
	Recorder metrics.Recorder
	Version  string
}

// Reporter is the HeartbeatReporter.
type Reporter struct {
	remote   remote.Store
	identity *identity.Store
	network  NetworkInfo
	bus      *events.Bus
	clock    clockwork.Clock
	recorder metrics.Recorder
	version  string
}

// Result describes one heartbeat.
type Result struct {
	Skipped bool              `json:"skipped"`
	Changed bool              `json:"changed"`
	Restart bool              `json:"restart"`
	Signal  Signal            `json:"signal"`
	Device  identity.Identity `json:"device"`
}

func New(opts Options) *Reporter {
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}
	if opts.Recorder == nil {
		opts.Recorder = metrics.NoopRecorder{}
	}
	if opts.Network == nil {
		opts.Network = StaticNetwork(SignalExcellent)
	}
	return &Reporter{
		remote:   opts.Remote,
		identity: opts.Identity,
		network:  opts.Network,
		bus:      opts.Bus,
		clock:    opts.Clock,
		recorder: opts.Recorder,
		version:  opts.Version,
	}
}

// Beat reads the remote-assigned fields for this device, applies changes to
// the local identity, then writes liveness, signal and connection label. An
// observed restart request is acknowledged in the same write. Beat is skipped
// when the identity is not configured.
func (r *Reporter) Beat(ctx context.Context) (Result, error) {
	dev := r.identity.Get()
	if !dev.Configured() {
		r.recorder.IncHeartbeat(metrics.ResultSkipped)
		return Result{Skipped: true, Device: dev}, nil
	}

	row, err := r.remote.FetchFleetRow(ctx, dev.ID)
	if stderrors.Is(err, remote.ErrNotFound) {
		r.recorder.IncHeartbeat(metrics.ResultFailed)
		r.bus.Offer(events.DeviceDeleted{DeviceID: dev.ID, At: r.clock.Now()})
		slog.Warn("Device no longer registered", logfields.DeviceID(dev.ID))
		return Result{Device: dev}, ErrDeviceDeleted.WithContext("device_id", dev.ID)
	}
	if err != nil {
		r.recorder.IncHeartbeat(metrics.ResultFailed)
		return Result{Device: dev}, ferrors.WrapError(err, ferrors.CategoryNetwork, "read fleet row").NextTick().Build()
	}

	changed, err := r.identity.Update(func(i *identity.Identity) { applyRemote(i, row) })
	if err != nil {
		slog.Warn("Failed to persist remote identity changes", logfields.Error(err))
	}
	dev = r.identity.Get()
	if changed {
		slog.Info("Applied remote device settings",
			logfields.DeviceID(dev.ID),
			logfields.DeviceName(dev.Name),
			slog.String("device_type", string(dev.DeviceType)),
			slog.String("zone", dev.AssignedZone))
	}

	signal := r.network.Estimate(ctx)
	r.recorder.SetSignalLevel(signal.Level)

	now := r.clock.Now().UTC()
	patch := remote.FleetPatch{
		Name:           remote.Ptr(dev.Name),
		DeviceType:     remote.Ptr(dev.DeviceType),
		Status:         remote.Ptr("online"),
		LastSeen:       &now,
		SignalStrength: remote.Ptr(signal.Level),
		ConnectionType: remote.Ptr(signal.Label),
	}
	if r.version != "" {
		patch.Version = remote.Ptr(r.version)
	}
	restart := row.RestartPending()
	if restart {
		patch.RestartRequested = remote.Ptr(false)
		if row.RestartRequestID != "" {
			patch.RestartAckID = remote.Ptr(row.RestartRequestID)
		}
	}

	if err := r.remote.UpsertFleetRow(ctx, dev.ID, patch); err != nil {
		r.recorder.IncHeartbeat(metrics.ResultFailed)
		return Result{Changed: changed, Signal: signal, Device: dev},
			ferrors.WrapError(err, ferrors.CategoryNetwork, "write fleet row").NextTick().Build()
	}
	r.recorder.IncHeartbeat(metrics.ResultSuccess)

	if restart {
		slog.Info("Restart requested remotely", logfields.DeviceID(dev.ID), logfields.Key(row.RestartRequestID))
		r.bus.Offer(events.RestartRequested{DeviceID: dev.ID, RequestID: row.RestartRequestID, At: r.clock.Now()})
	}
	return Result{Changed: changed, Restart: restart, Signal: signal, Device: dev}, nil
}

// applyRemote copies administrator-assigned fields from the fleet row.
func applyRemote(i *identity.Identity, row model.FleetDevice) {
	if row.Name != "" {
		i.Name = row.Name
	}
	if identity.ValidDeviceType(row.DeviceType) {
		i.DeviceType = row.DeviceType
	}
	i.AssignedZone = row.AssignedZone
}

// Register creates or refreshes this device's fleet row, used right after provisioning.
func (r *Reporter) Register(ctx context.Context) error {
	dev := r.identity.Get()
	if !dev.Configured() {
		return ferrors.IdentityError("device identity is not configured").Build()
	}
	now := r.clock.Now().UTC()
	patch := remote.FleetPatch{
		Name:       remote.Ptr(dev.Name),
		DeviceType: remote.Ptr(dev.DeviceType),
		Status:     remote.Ptr("online"),
		LastSeen:   &now,
	}
	if r.version != "" {
		patch.Version = remote.Ptr(r.version)
	}
	if err := r.remote.UpsertFleetRow(ctx, dev.ID, patch); err != nil {
		return ferrors.WrapError(err, ferrors.CategoryNetwork, "register device").Build()
	}
	return nil
}
