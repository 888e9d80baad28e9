// Package httpserver serves the kiosk's local API to the host UI.
package httpserver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	derrors "git.home.luguber.info/inful/showroom/internal/foundation/errors"
	"git.home.luguber.info/inful/showroom/internal/logfields"
	"git.home.luguber.info/inful/showroom/internal/server/handlers"
	smw "git.home.luguber.info/inful/showroom/internal/server/middleware"
)

const readHeaderTimeout = 10 * time.Second

// Server manages the local API listener.
type Server struct {
	addr         string
	opts         Options
	router       chi.Router
	errorAdapter *derrors.HTTPErrorAdapter

	// streams is closed on Stop so open event streams let Shutdown finish.
	streams     chan struct{}
	streamsOnce sync.Once

	mu       sync.Mutex
	srv      *http.Server
	listener net.Listener
}

// New constructs the server and its routes. Docs is required.
func New(addr string, opts Options) (*Server, error) {
	if opts.Docs == nil {
		return nil, derrors.ConfigError("http server requires a document service").Build()
	}
	if opts.StartTime.IsZero() {
		opts.StartTime = time.Now()
	}
	s := &Server{
		addr:         addr,
		opts:         opts,
		errorAdapter: derrors.NewHTTPErrorAdapter(slog.Default()),
		streams:      make(chan struct{}),
	}
	s.setupRoutes()
	return s, nil
}

func (s *Server) setupRoutes() {
	docs := handlers.NewDocumentHandlers(s.opts.Docs)
	monitoring := handlers.NewMonitoringHandlers(s.opts.Docs, s.opts.Identity, s.opts.Journal, s.opts.StartTime)
	pb := handlers.NewPlaybackHandlers(s.opts.Playback)
	stream := handlers.NewEventHandlers(s.opts.Bus, s.opts.Docs, s.streams, s.opts.EventKeepAlive)

	r := chi.NewRouter()
	r.Use(smw.Chain(slog.Default(), s.errorAdapter))
	r.Use(chimw.NoCache)

	r.Get("/healthz", monitoring.HandleHealthCheck)
	if s.opts.PrometheusHandler != nil {
		r.Method(http.MethodGet, "/metrics", s.opts.PrometheusHandler)
	}

	r.Route("/api", func(r chi.Router) {
		r.Get("/status", monitoring.HandleStatus)
		r.Get("/identity", monitoring.HandleIdentity)
		r.Get("/events", stream.HandleStream)
		r.Post("/sync", docs.HandleSync)

		r.Route("/document", func(r chi.Router) {
			r.Get("/", docs.HandleGet)
			r.Put("/", docs.HandleSave)
			r.Post("/reset", docs.HandleReset)
		})

		r.Route("/playback", func(r chi.Router) {
			r.Get("/", pb.HandleSnapshot)
			r.Post("/touch", pb.HandleTouch)
			r.Post("/ready", pb.HandleReady)
			r.Post("/ended", pb.HandleEnded)
			r.Post("/failed", pb.HandleFailed)
		})
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		s.errorAdapter.WriteErrorResponse(w, r,
			derrors.NotFoundError("route not found").WithContext("path", r.URL.Path).Build())
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		s.errorAdapter.WriteErrorResponse(w, r,
			derrors.ValidationError("invalid HTTP method").WithContext("method", r.Method).Build())
	})

	s.router = r
}

// Handler returns the routed handler, for tests and embedding.
func (s *Server) Handler() http.Handler { return s.router }

// Start binds the listener and serves in the background. Bind errors are
// returned immediately.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.srv != nil {
		return derrors.RuntimeError("http server already started").Build()
	}

	lc := net.ListenConfig{}
	ln, err := lc.Listen(ctx, "tcp", s.addr)
	if err != nil {
		return fmt.Errorf("http startup failed: %w", err)
	}
	srv := &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: readHeaderTimeout,
		BaseContext:       func(net.Listener) context.Context { return context.WithoutCancel(ctx) },
	}
	s.srv = srv
	s.listener = ln

	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("HTTP server error", logfields.Error(err))
		}
	}()
	slog.Info("HTTP server started", slog.String("addr", ln.Addr().String()))
	return nil
}

// Addr returns the bound address once started, or the configured one.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.addr
}

// Stop ends open event streams and gracefully shuts down the listener. A
// stopped server does not stream events again.
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	srv := s.srv
	s.srv = nil
	s.listener = nil
	s.mu.Unlock()
	if srv == nil {
		return nil
	}
	s.streamsOnce.Do(func() { close(s.streams) })
	if err := srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("http server shutdown: %w", err)
	}
	slog.Info("HTTP server stopped")
	return nil
}
