package httpserver

import (
	"net/http"
	"time"

	"git.home.luguber.info/inful/showroom/internal/events"
	"git.home.luguber.info/inful/showroom/internal/server/handlers"
)

// Options wires the runtime components behind the API.
type Options struct {
	Docs     handlers.DocumentService
	Playback handlers.PlaybackService
	Identity handlers.IdentitySource

	// Optional: sync journal and cache usage shown on /api/status.
	Journal handlers.JournalSource

	// Optional: bus streamed on /api/events.
	Bus *events.Bus

	// EventKeepAlive is the comment interval on idle streams.
	EventKeepAlive time.Duration

	// Optional: Prometheus exposition handler for /metrics.
	PrometheusHandler http.Handler

	StartTime time.Time
}
