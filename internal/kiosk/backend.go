package kiosk

import (
	"context"
	"errors"

	"git.home.luguber.info/inful/showroom/internal/config"
	ferrors "git.home.luguber.info/inful/showroom/internal/foundation/errors"
	"git.home.luguber.info/inful/showroom/internal/remote"
	"git.home.luguber.info/inful/showroom/internal/remote/natskv"
	"git.home.luguber.info/inful/showroom/internal/remote/postgres"
)

// OpenRemote opens the configured remote store backend.
func OpenRemote(ctx context.Context, cfg config.RemoteConfig) (remote.Store, error) {
	switch cfg.Backend {
	case config.RemoteBackendMemory, "":
		return remote.NewMemoryStore(), nil
	case config.RemoteBackendNATS:
		s, err := natskv.Open(ctx, natskv.Options{
			URL:            cfg.NATSURL,
			DocumentBucket: cfg.DocumentBucket,
			FleetBucket:    cfg.FleetBucket,
			DocumentKey:    cfg.DocumentID,
			Timeout:        cfg.Timeout,
		})
		if err != nil {
			return nil, ferrors.WrapError(err, ferrors.CategoryNetwork, "failed to open nats remote").
				WithContext("url", cfg.NATSURL).
				Build()
		}
		return s, nil
	case config.RemoteBackendPostgres:
		openCtx, cancel := context.WithTimeout(ctx, cfg.Timeout)
		defer cancel()
		s, err := postgres.Open(openCtx, cfg.PostgresDSN, cfg.DocumentID)
		if err != nil {
			return nil, ferrors.WrapError(err, ferrors.CategoryNetwork, "failed to open postgres remote").Build()
		}
		return s, nil
	default:
		return nil, ferrors.ConfigError("unknown remote backend").WithContext("backend", string(cfg.Backend)).Build()
	}
}

// fleetProbe measures a round trip by reading this device's fleet row. A
// missing row still proves the store answered.
func fleetProbe(store remote.Store, deviceID func() string) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		_, err := store.FetchFleetRow(ctx, deviceID())
		if errors.Is(err, remote.ErrNotFound) {
			return nil
		}
		return err
	}
}
