package handlers

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"git.home.luguber.info/inful/showroom/internal/events"
	"git.home.luguber.info/inful/showroom/internal/foundation/errors"
	"git.home.luguber.info/inful/showroom/internal/logfields"
	"git.home.luguber.info/inful/showroom/internal/playback"
)

// Stream event names.
const (
	EventStatus   = "status"
	EventPlayback = "playback"
	EventDocument = "document"
)

const (
	streamBuffer     = 64
	defaultKeepAlive = 15 * time.Second
)

// EventHandlers streams sync status, playback commands and document
// replacements to the host as server-sent events.
type EventHandlers struct {
	bus          *events.Bus
	docs         DocumentService
	done         <-chan struct{}
	keepAlive    time.Duration
	errorAdapter *errors.HTTPErrorAdapter
}

// NewEventHandlers creates the stream handler. Closing done ends every open
// stream; keepAlive <= 0 uses the default comment interval.
func NewEventHandlers(bus *events.Bus, docs DocumentService, done <-chan struct{}, keepAlive time.Duration) *EventHandlers {
	if keepAlive <= 0 {
		keepAlive = defaultKeepAlive
	}
	return &EventHandlers{
		bus:          bus,
		docs:         docs,
		done:         done,
		keepAlive:    keepAlive,
		errorAdapter: errors.NewHTTPErrorAdapter(slog.Default()),
	}
}

// HandleStream serves GET /api/events. The current sync status is sent first,
// then every bus event until the client goes away or the server stops.
// Events a slow client cannot take are dropped by the bus.
func (h *EventHandlers) HandleStream(w http.ResponseWriter, r *http.Request) {
	if h.bus == nil {
		h.errorAdapter.WriteErrorResponse(w, r, errors.NotFoundError("event stream unavailable").Build())
		return
	}
	rc := http.NewResponseController(w)

	status, unsubStatus := events.Subscribe[events.SyncStatus](h.bus, streamBuffer)
	defer unsubStatus()
	commands, unsubCommands := events.Subscribe[playback.Command](h.bus, streamBuffer)
	defer unsubCommands()
	replaced, unsubReplaced := events.Subscribe[events.DocumentReplaced](h.bus, streamBuffer)
	defer unsubReplaced()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	if err := writeEvent(w, EventStatus, h.docs.Status()); err != nil {
		slog.Debug("Event stream write failed", logfields.Error(err))
		return
	}
	if err := rc.Flush(); err != nil {
		slog.Warn("Event stream cannot flush", logfields.Error(err))
		return
	}

	ticker := time.NewTicker(h.keepAlive)
	defer ticker.Stop()
	for {
		var (
			name    string
			payload any
			ok      bool
			err     error
		)
		select {
		case <-r.Context().Done():
			return
		case <-h.done:
			return
		case <-ticker.C:
			_, err = io.WriteString(w, ": keep-alive\n\n")
			ok = true
		case payload, ok = <-status:
			name = EventStatus
		case payload, ok = <-commands:
			name = EventPlayback
		case payload, ok = <-replaced:
			name = EventDocument
		}
		if !ok {
			return
		}
		if name != "" {
			err = writeEvent(w, name, payload)
		}
		if err == nil {
			err = rc.Flush()
		}
		if err != nil {
			slog.Debug("Event stream closed", logfields.Error(err))
			return
		}
	}
}

func writeEvent(w io.Writer, name string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", name, data)
	return err
}
