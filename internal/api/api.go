// Package api provides the operational HTTP surface for Reachout.
//
// It exposes endpoints to trigger a daily pipeline run on demand, inspect
// a contact's processing ledger, and check liveness. The run endpoint is
// guarded so at most one pipeline run is in flight per process.
package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/reachout/reachout/internal/cadence"
	"github.com/reachout/reachout/internal/models"
	"github.com/reachout/reachout/internal/store"
)

// Runner executes one daily pipeline run anchored at ref.
type Runner interface {
	RunDaily(ctx context.Context, ref time.Time) (models.RunSummary, error)
}

// Opts holds configuration options for the API server.
type Opts struct {
	Addr string
	Loc  *time.Location
}

// Option configures the API server.
type Option func(*Opts)

// WithAddr overrides the listen address.
func WithAddr(addr string) Option {
	return func(o *Opts) { o.Addr = addr }
}

// WithTimezone sets the timezone used to anchor triggered runs.
func WithTimezone(loc *time.Location) Option {
	return func(o *Opts) { o.Loc = loc }
}

// Server is the Reachout API server.
type Server struct {
	runner  Runner
	store   store.Store
	loc     *time.Location
	addr    string
	httpSrv *http.Server
	running atomic.Bool
}

// NewServer creates an API server over the given pipeline runner and store.
func NewServer(runner Runner, st store.Store, opts ...Option) *Server {
	cfg := Opts{Addr: ":8080", Loc: time.UTC}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.Loc == nil {
		cfg.Loc = time.UTC
	}
	return &Server{runner: runner, store: st, loc: cfg.Loc, addr: cfg.Addr}
}

// Handler builds the route tree.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)

	r.Get("/v1/healthz", s.healthHandler)
	r.Post("/v1/run", s.triggerRunHandler)
	r.Get("/v1/contacts/{contactID}/status", s.contactStatusHandler)

	return r
}

// Start begins serving in a background goroutine. It returns once the
// listener is set up; serve errors other than graceful shutdown are logged.
func (s *Server) Start() error {
	s.httpSrv = &http.Server{
		Addr:              s.addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	slog.Info("API server starting", "addr", s.addr)
	go func() {
		if err := s.httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("API server failed", "error", err)
		}
	}()
	return nil
}

// Shutdown gracefully stops the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpSrv == nil {
		return nil
	}
	return s.httpSrv.Shutdown(ctx)
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	writeJSONResponse(w, http.StatusOK, models.Success(map[string]string{"status": "healthy"}))
}

// triggerRunHandler kicks off a daily run anchored at the current time.
// Only one run may be in flight per process; concurrent triggers get 409.
func (s *Server) triggerRunHandler(w http.ResponseWriter, r *http.Request) {
	if !s.running.CompareAndSwap(false, true) {
		writeJSONResponse(w, http.StatusConflict, models.Error("a pipeline run is already in progress"))
		return
	}
	defer s.running.Store(false)

	ref := time.Now().In(s.loc)
	summary, err := s.runner.RunDaily(r.Context(), ref)
	if err != nil {
		slog.Error("Server.triggerRunHandler: pipeline run failed", "error", err)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error(fmt.Sprintf("pipeline run failed: %v", err)))
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Success(summary))
}

// contactStatusHandler returns a contact's ledger row for a processing date.
// The date query parameter defaults to today in the configured timezone.
func (s *Server) contactStatusHandler(w http.ResponseWriter, r *http.Request) {
	contactID := chi.URLParam(r, "contactID")
	if contactID == "" {
		writeJSONResponse(w, http.StatusBadRequest, models.Error("contact ID is required"))
		return
	}

	date := r.URL.Query().Get("date")
	if date == "" {
		date = cadence.ProcessingDate(time.Now().In(s.loc), s.loc)
	} else if _, err := time.Parse("2006-01-02", date); err != nil {
		writeJSONResponse(w, http.StatusBadRequest, models.Error("date must be in YYYY-MM-DD format"))
		return
	}

	entry, err := s.store.GetProcessingLog(contactID, date)
	if err != nil {
		slog.Error("Server.contactStatusHandler: ledger lookup failed", "error", err, "contactID", contactID, "date", date)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("failed to look up processing status"))
		return
	}
	if entry == nil {
		writeJSONResponse(w, http.StatusNotFound, models.Error("no processing record for this contact and date"))
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Success(entry))
}
