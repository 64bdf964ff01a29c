// Package server exposes batch runs over an HTTP control API: start a run,
// poll its progress, cancel it and download its results as CSV.
package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/enrich-cli/internal/export"
	"github.com/sells-group/enrich-cli/internal/model"
	"github.com/sells-group/enrich-cli/internal/store"
)

// RunStatus is the API view of a run.
type RunStatus struct {
	ID         string                    `json:"id"`
	Source     string                    `json:"source"`
	Spec       model.QuerySpec           `json:"spec"`
	Completed  int                       `json:"completed"`
	Total      int                       `json:"total"`
	Finished   bool                      `json:"finished"`
	Cancelled  bool                      `json:"cancelled"`
	StartedAt  time.Time                 `json:"started_at"`
	FinishedAt *time.Time                `json:"finished_at,omitempty"`
	Summary    model.Summary             `json:"summary"`
	InFlight   map[int]model.EntityState `json:"in_flight,omitempty"`
	Outcomes   []model.ExtractionOutcome `json:"outcomes,omitempty"`
	ExportedTo string                    `json:"exported_to,omitempty"`
}

func statusOf(run *model.BatchRun, withOutcomes bool) RunStatus {
	st := RunStatus{
		ID:         run.ID,
		Source:     run.Source,
		Spec:       run.Spec,
		Completed:  run.Completed,
		Total:      run.Total,
		Finished:   run.Finished(),
		Cancelled:  run.Cancelled,
		StartedAt:  run.StartedAt,
		FinishedAt: run.FinishedAt,
		Summary:    run.Summary(),
	}
	if withOutcomes {
		st.Outcomes = run.Outcomes
	}
	return st
}

// Option configures the router.
type Option func(*options)

type options struct {
	allowedOrigins []string
}

// WithAllowedOrigins sets the CORS origins allowed to call the API.
func WithAllowedOrigins(origins []string) Option {
	return func(o *options) { o.allowedOrigins = origins }
}

// NewRouter builds the HTTP handler for m.
func NewRouter(m *Manager, opts ...Option) http.Handler {
	o := options{allowedOrigins: []string{"*"}}
	for _, opt := range opts {
		opt(&o)
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: o.allowedOrigins,
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	h := &handlers{m: m}
	r.Get("/health", h.health)
	r.Route("/runs", func(r chi.Router) {
		r.Get("/", h.listRuns)
		r.Post("/", h.startRun)
		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", h.getRun)
			r.Post("/cancel", h.cancelRun)
			r.Get("/export", h.exportRun)
		})
	})
	return r
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		zap.L().Debug("http request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("elapsed", time.Since(start)),
			zap.String("request_id", middleware.GetReqID(r.Context())),
		)
	})
}

type handlers struct {
	m *Manager
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zap.L().Debug("server: encode response", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func (h *handlers) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *handlers) startRun(w http.ResponseWriter, r *http.Request) {
	var req StartRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, eris.New("invalid request body"))
		return
	}
	if req.Source == "" {
		writeError(w, http.StatusBadRequest, eris.New("source is required"))
		return
	}

	run, err := h.m.Start(r.Context(), req)
	if err != nil {
		status := http.StatusBadRequest
		var se *model.SourceError
		switch {
		case errors.Is(err, ErrShuttingDown):
			status = http.StatusServiceUnavailable
		case errors.As(err, &se):
			status = http.StatusUnprocessableEntity
		}
		writeError(w, status, err)
		return
	}
	snap := run.Snapshot()
	writeJSON(w, http.StatusAccepted, statusOf(&snap, false))
}

func (h *handlers) listRuns(w http.ResponseWriter, r *http.Request) {
	active := h.m.List()
	out := make([]RunStatus, 0, len(active))
	seen := make(map[string]bool, len(active))
	for i := range active {
		out = append(out, statusOf(&active[i], false))
		seen[active[i].ID] = true
	}

	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	history, err := h.m.History(r.Context(), store.RunFilter{Source: r.URL.Query().Get("source"), Limit: limit})
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	for _, s := range history {
		if seen[s.ID] {
			continue
		}
		finished := s.FinishedAt
		out = append(out, RunStatus{
			ID:         s.ID,
			Source:     s.Source,
			Spec:       model.QuerySpec{Template: s.Template},
			Completed:  s.OK + s.Partial + s.Failed,
			Total:      s.Total,
			Finished:   true,
			Cancelled:  s.Cancelled,
			StartedAt:  s.StartedAt,
			FinishedAt: &finished,
			Summary:    model.Summary{Total: s.Total, OK: s.OK, Partial: s.Partial, Failed: s.Failed},
		})
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *handlers) lookup(w http.ResponseWriter, r *http.Request) (*model.BatchRun, bool) {
	id := chi.URLParam(r, "id")
	run, err := h.m.Lookup(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, eris.Errorf("run %s not found", id))
		return nil, false
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return nil, false
	}
	return run, true
}

func (h *handlers) getRun(w http.ResponseWriter, r *http.Request) {
	run, ok := h.lookup(w, r)
	if !ok {
		return
	}
	st := statusOf(run, r.URL.Query().Get("outcomes") != "false")
	if active, ok := h.m.Get(run.ID); ok && !run.Finished() {
		st.InFlight = active.States()
	}
	st.ExportedTo = h.m.ExportedTo(run.ID)
	writeJSON(w, http.StatusOK, st)
}

func (h *handlers) cancelRun(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if !h.m.Cancel(id) {
		writeError(w, http.StatusNotFound, eris.Errorf("run %s not active", id))
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "cancelling", "id": id})
}

func (h *handlers) exportRun(w http.ResponseWriter, r *http.Request) {
	run, ok := h.lookup(w, r)
	if !ok {
		return
	}
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="results-%s.csv"`, run.ID))
	if err := export.WriteCSV(r.Context(), run, w); err != nil {
		zap.L().Error("server: csv export failed", zap.String("run_id", run.ID), zap.Error(err))
	}
}
