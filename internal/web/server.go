package web

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/time/rate"

	"myplanner/internal/config"
	appLog "myplanner/internal/log"
	"myplanner/internal/metrics"
	"myplanner/internal/store"
	"myplanner/internal/suggest"
)

// Server exposes the host API over the event collection: CRUD with the
// conflict workflow, bulk draft intake, series deletes and the ICS share
// feed. It is a thin surface; the scheduling semantics live in
// internal/schedule and internal/alert.
type Server struct {
	cfg       *config.Config
	store     *store.Store
	suggester suggest.Suggester
	loc       *time.Location
}

// NewServer constructs a Server. suggester may be nil; conflicts are then
// always resolved by the local computation.
func NewServer(cfg *config.Config, st *store.Store, suggester suggest.Suggester) *Server {
	return &Server{
		cfg:       cfg,
		store:     st,
		suggester: suggester,
		loc:       cfg.Location(),
	}
}

// Router wires all HTTP routes.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(metrics.Middleware())

	r.Get("/health", s.handleHealth)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())
	r.Get("/export.ics", s.handleExportICS)

	limiter := newIPRateLimiter(rate.Limit(20), 50, 5*time.Minute)
	r.Route("/api", func(r chi.Router) {
		r.Use(limiter.middleware)

		r.Get("/events", s.handleListEvents)
		r.Post("/events", s.handleSaveEvent)
		r.Post("/events/bulk", s.handleBulkInsert)
		r.Post("/events/resolve", s.handleResolveConflict)
		r.Delete("/events/{id}", s.handleDeleteEvent)
	})

	h := http.Handler(r)
	if s.basicAuthEnabled() {
		appLog.Info("HTTP basic auth enabled", "listen", "http://"+s.cfg.Listen)
		h = basicAuthMiddleware(s.cfg.BasicAuth, h)
	}
	return h
}

// Serve runs the HTTP server until ctx is cancelled, then shuts down
// gracefully.
func (s *Server) Serve(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Listen,
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		appLog.Info("starting HTTP server", "listen", "http://"+s.cfg.Listen)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

func (s *Server) basicAuthEnabled() bool {
	if s.cfg == nil || s.cfg.BasicAuth == nil {
		return false
	}
	// Empty username or password counts as disabled.
	return s.cfg.BasicAuth.Username != "" && s.cfg.BasicAuth.Password != ""
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		appLog.Error("failed to write JSON response", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	type errResp struct {
		Error string `json:"error"`
	}
	writeJSON(w, status, errResp{Error: msg})
}
