package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"git.home.luguber.info/inful/showroom/internal/foundation/errors"
	"git.home.luguber.info/inful/showroom/internal/identity"
	"git.home.luguber.info/inful/showroom/internal/localcache"
	"git.home.luguber.info/inful/showroom/internal/logfields"
	"git.home.luguber.info/inful/showroom/internal/server/responses"
	"git.home.luguber.info/inful/showroom/internal/version"
)

// IdentitySource exposes the persisted device identity.
type IdentitySource interface {
	Get() identity.Identity
}

// JournalSource exposes the local sync journal and the cache footprint.
type JournalSource interface {
	Recent(ctx context.Context, n int) ([]localcache.Entry, error)
	Usage(ctx context.Context) (int64, error)
}

// StatusJournalEntries is how many journal lines /api/status carries.
const StatusJournalEntries = 20

// MonitoringHandlers contains health, status and identity handlers.
type MonitoringHandlers struct {
	docs         DocumentService
	device       IdentitySource
	journal      JournalSource
	startTime    time.Time
	errorAdapter *errors.HTTPErrorAdapter
}

// NewMonitoringHandlers creates a new monitoring handlers instance. journal
// may be nil.
func NewMonitoringHandlers(docs DocumentService, device IdentitySource, journal JournalSource, startTime time.Time) *MonitoringHandlers {
	return &MonitoringHandlers{
		docs:         docs,
		device:       device,
		journal:      journal,
		startTime:    startTime,
		errorAdapter: errors.NewHTTPErrorAdapter(slog.Default()),
	}
}

// HandleHealthCheck handles the health check endpoint.
func (h *MonitoringHandlers) HandleHealthCheck(w http.ResponseWriter, r *http.Request) {
	health := &responses.HealthResponse{
		Status:    "healthy",
		Timestamp: time.Now().UTC(),
		Version:   version.Version,
		Uptime:    time.Since(h.startTime).Seconds(),
	}
	if err := writeJSONPretty(w, r, http.StatusOK, health); err != nil {
		internalErr := errors.WrapError(err, errors.CategoryInternal, "failed to write health response").
			Build()
		h.errorAdapter.WriteErrorResponse(w, r, internalErr)
	}
}

// HandleStatus reports the latest sync status for the host's indicator.
func (h *MonitoringHandlers) HandleStatus(w http.ResponseWriter, r *http.Request) {
	snap := h.docs.Snapshot()
	resp := &responses.StatusResponse{
		Status:    snap.Status,
		Sync:      snap,
		Timestamp: time.Now().UTC(),
	}
	if h.device != nil {
		resp.Device = h.device.Get()
	}
	if h.journal != nil {
		// Journal trouble degrades the status view, never fails it.
		entries, err := h.journal.Recent(r.Context(), StatusJournalEntries)
		if err != nil {
			slog.Warn("Reading sync journal failed", logfields.Error(err))
		}
		resp.Journal = entries
		if resp.CacheBytes, err = h.journal.Usage(r.Context()); err != nil {
			slog.Warn("Reading cache usage failed", logfields.Error(err))
		}
	}
	if err := writeJSONPretty(w, r, http.StatusOK, resp); err != nil {
		internalErr := errors.WrapError(err, errors.CategoryInternal, "failed to write status response").
			Build()
		h.errorAdapter.WriteErrorResponse(w, r, internalErr)
	}
}

// HandleIdentity returns the device identity.
func (h *MonitoringHandlers) HandleIdentity(w http.ResponseWriter, r *http.Request) {
	if h.device == nil {
		h.errorAdapter.WriteErrorResponse(w, r, errors.NotFoundError("device identity unavailable").Build())
		return
	}
	id := h.device.Get()
	if err := writeJSONPretty(w, r, http.StatusOK, responses.IdentityResponse{Identity: id, Configured: id.Configured()}); err != nil {
		internalErr := errors.WrapError(err, errors.CategoryInternal, "failed to write identity response").
			Build()
		h.errorAdapter.WriteErrorResponse(w, r, internalErr)
	}
}
