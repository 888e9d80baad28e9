// Package responses defines API response types used by the kiosk HTTP handlers.
package responses

import (
	"time"

	"git.home.luguber.info/inful/showroom/internal/coordinator"
	"git.home.luguber.info/inful/showroom/internal/events"
	"git.home.luguber.info/inful/showroom/internal/identity"
	"git.home.luguber.info/inful/showroom/internal/localcache"
)

// HealthResponse represents the health check API response.
type HealthResponse struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
	Version   string    `json:"version"`
	Uptime    float64   `json:"uptime"`
}

// StatusResponse reports the sync state to the host's status indicator.
// Journal lists recent sync journal entries, newest first.
type StatusResponse struct {
	Status     events.SyncStatus    `json:"status"`
	Sync       coordinator.Snapshot `json:"sync"`
	Device     identity.Identity    `json:"device"`
	Journal    []localcache.Entry   `json:"journal,omitempty"`
	CacheBytes int64                `json:"cacheBytes"`
	Timestamp  time.Time            `json:"timestamp"`
}

// IdentityResponse represents the device identity endpoint.
type IdentityResponse struct {
	identity.Identity
	Configured bool `json:"configured"`
}

// SaveResponse is returned after a successful save or reset.
type SaveResponse struct {
	Status   string            `json:"status"`
	Revision uint64            `json:"revision"`
	Sync     events.SyncStatus `json:"sync"`
}

// SyncResponse is returned by a foreground refresh.
type SyncResponse struct {
	Status     string               `json:"status"`
	Sync       coordinator.Snapshot `json:"sync"`
	Catalogues int                  `json:"catalogues"`
	Brands     int                  `json:"brands"`
}

// AckResponse acknowledges a playback callback.
type AckResponse struct {
	Status string `json:"status"`
}
