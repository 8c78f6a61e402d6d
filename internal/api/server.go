package api

import (
	"context"
	"errors"
	"net"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/forPelevin/cuestream/internal/metrics"
	"github.com/forPelevin/cuestream/internal/realtime"
)

// LiveSource reports the session currently being reconciled, or nil.
type LiveSource interface {
	Current() *realtime.Session
}

// Tracker is a LiveSource the pipeline updates when a session starts.
type Tracker struct {
	cur atomic.Pointer[realtime.Session]
}

func (t *Tracker) Set(s *realtime.Session) { t.cur.Store(s) }

func (t *Tracker) Current() *realtime.Session { return t.cur.Load() }

type Server struct {
	http      *http.Server
	log       zerolog.Logger
	startTime time.Time
}

func NewServer(addr string, live LiveSource, log zerolog.Logger) *Server {
	s := &Server{log: log.With().Str("component", "api").Logger(), startTime: time.Now()}

	r := chi.NewRouter()
	r.Use(RequestID)
	r.Use(Logger(s.log, live))
	r.Use(Recoverer)
	r.Use(metrics.InstrumentHandler)

	r.Get("/healthz", s.health)
	r.Handle("/metrics", metrics.Handler())
	r.Get("/api/v1/session", sessionHandler(live))

	s.http = &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler { return s.http.Handler }

// Start blocks serving on ln until Shutdown.
func (s *Server) Start(ln net.Listener) error {
	s.log.Info().Str("addr", ln.Addr().String()).Msg("http server starting")
	err := s.http.Serve(ln)
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Listen binds the configured address.
func (s *Server) Listen() (net.Listener, error) {
	return net.Listen("tcp", s.http.Addr)
}

func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info().Msg("http server shutting down")
	return s.http.Shutdown(ctx)
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	WriteJSON(w, r, http.StatusOK, map[string]any{
		"status":         "ok",
		"uptime_seconds": int64(time.Since(s.startTime).Seconds()),
	})
}

func sessionHandler(live LiveSource) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var sess *realtime.Session
		if live != nil {
			sess = live.Current()
		}
		if sess == nil {
			WriteError(w, r, http.StatusNotFound, "no active session")
			return
		}
		snap, err := sess.Snapshot(r.Context())
		switch {
		case errors.Is(err, realtime.ErrSessionStopped):
			WriteError(w, r, http.StatusGone, "session finished")
			return
		case err != nil:
			WriteError(w, r, http.StatusServiceUnavailable, err.Error())
			return
		}
		WriteJSON(w, r, http.StatusOK, snap)
	}
}
