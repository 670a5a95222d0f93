// Package web provides an HTTP status server for the button hub.
package web

import (
	"context"
	"net"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/sweeney/button-hub/internal/metrics"
	"github.com/sweeney/button-hub/internal/status"
)

// Server serves the status page over HTTP.
type Server struct {
	httpServer *http.Server
	tracker    *status.Tracker
}

// New creates a Server that reads state from the given tracker. When m is
// non-nil, requests are counted and /metrics is served.
func New(addr string, tracker *status.Tracker, m *metrics.Metrics) *Server {
	s := &Server{tracker: tracker}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	if m != nil {
		r.Use(m.Middleware)
		r.Method(http.MethodGet, "/metrics", m.Handler())
	}
	r.Get("/", s.handleIndex)
	r.Get("/index.html", s.handleIndex)
	r.Get("/index.json", s.handleJSON)

	s.httpServer = &http.Server{
		Addr:    addr,
		Handler: r,
	}
	return s
}

// Handler returns the routed handler.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// ListenAndServe starts listening. It blocks until the server is shut down.
func (s *Server) ListenAndServe() error {
	return s.httpServer.ListenAndServe()
}

// Serve accepts connections on the given listener. Useful for tests.
func (s *Server) Serve(ln net.Listener) error {
	return s.httpServer.Serve(ln)
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	snap := s.tracker.Snapshot()
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	renderHTML(w, snap)
}

func (s *Server) handleJSON(w http.ResponseWriter, r *http.Request) {
	snap := s.tracker.Snapshot()
	w.Header().Set("Content-Type", "application/json")
	w.Write(status.FormatJSON(snap))
}
