package server

import (
	"context"
	"slices"
	"sync"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/enrich-cli/internal/batch"
	"github.com/sells-group/enrich-cli/internal/export"
	"github.com/sells-group/enrich-cli/internal/model"
	"github.com/sells-group/enrich-cli/internal/query"
	"github.com/sells-group/enrich-cli/internal/source"
	"github.com/sells-group/enrich-cli/internal/store"
	"github.com/sells-group/enrich-cli/internal/table"
)

// ErrShuttingDown is returned by Start once Shutdown has been called.
var ErrShuttingDown = eris.New("server: shutting down")

// Starter begins a batch run. *batch.Orchestrator satisfies it.
type Starter interface {
	Start(ctx context.Context, sourceName string, spec model.QuerySpec, records []model.EntityRecord) *batch.Run
}

// Opener reads and validates an entity source.
type Opener func(ctx context.Context, desc source.Descriptor) (*source.Source, error)

// StartRequest describes a run submitted over the API.
type StartRequest struct {
	Source      string            `json:"source"`
	Column      string            `json:"column"`
	Range       string            `json:"range,omitempty"`
	Template    string            `json:"template"`
	Fields      []model.FieldSpec `json:"fields"`
	Destination string            `json:"destination,omitempty"`
}

// Spec returns the query spec of the request.
func (r StartRequest) Spec() model.QuerySpec {
	return model.QuerySpec{Template: r.Template, Fields: r.Fields}
}

// Manager owns the runs started through the API. Runs live in memory until
// the process exits; finished runs are also saved to the store when one is
// configured.
type Manager struct {
	ctx   context.Context
	start Starter
	open  Opener
	store store.Store
	deps  table.Deps

	mu      sync.RWMutex
	runs    map[string]*batch.Run
	order   []string
	exports map[string]string
	closed  bool
	wg      sync.WaitGroup
}

// NewManager creates a Manager. Runs are bound to ctx, not to the request
// that started them. st may be nil.
func NewManager(ctx context.Context, start Starter, open Opener, st store.Store, deps table.Deps) *Manager {
	return &Manager{
		ctx:     ctx,
		start:   start,
		open:    open,
		store:   st,
		deps:    deps,
		runs:    make(map[string]*batch.Run),
		exports: make(map[string]string),
	}
}

// Start validates req, reads its source and begins the run.
func (m *Manager) Start(ctx context.Context, req StartRequest) (*batch.Run, error) {
	spec := req.Spec()
	if err := spec.Validate(); err != nil {
		return nil, err
	}
	src, err := m.open(ctx, source.Descriptor{Location: req.Source, Column: req.Column, Range: req.Range})
	if err != nil {
		return nil, err
	}
	if err := query.Validate(spec.Template, src.Header()); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, ErrShuttingDown
	}
	run := m.start.Start(m.ctx, req.Source, spec, src.All())
	id := run.ID()
	m.runs[id] = run
	m.order = append(m.order, id)

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		m.finish(run, req.Destination)
	}()
	return run, nil
}

// finish waits for run and persists its results.
func (m *Manager) finish(run *batch.Run, destination string) {
	final := run.Wait()
	log := zap.L().With(zap.String("run_id", final.ID))

	// The run context may already be cancelled; results are still written.
	ctx := context.WithoutCancel(m.ctx)
	if destination != "" {
		written, err := export.Export(ctx, &final, destination, m.deps)
		if err != nil {
			log.Error("server: export failed", zap.String("destination", destination), zap.Error(err))
		} else {
			m.mu.Lock()
			m.exports[final.ID] = written
			m.mu.Unlock()
		}
	}
	if m.store != nil {
		if err := m.store.SaveRun(ctx, &final); err != nil {
			log.Error("server: save run failed", zap.Error(err))
		}
	}
}

// Get returns the in-memory run with id.
func (m *Manager) Get(id string) (*batch.Run, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.runs[id]
	return r, ok
}

// ExportedTo returns where the results of run id were written, or "" when
// they were not exported.
func (m *Manager) ExportedTo(id string) string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.exports[id]
}

// Lookup returns a snapshot of run id from memory, falling back to the
// store for runs of earlier processes.
func (m *Manager) Lookup(ctx context.Context, id string) (*model.BatchRun, error) {
	if r, ok := m.Get(id); ok {
		snap := r.Snapshot()
		return &snap, nil
	}
	if m.store == nil {
		return nil, store.ErrNotFound
	}
	return m.store.GetRun(ctx, id)
}

// List returns snapshots of the in-memory runs, newest first.
func (m *Manager) List() []model.BatchRun {
	m.mu.RLock()
	ids := slices.Clone(m.order)
	runs := make([]*batch.Run, len(ids))
	for i, id := range ids {
		runs[i] = m.runs[id]
	}
	m.mu.RUnlock()

	out := make([]model.BatchRun, 0, len(runs))
	for i := len(runs) - 1; i >= 0; i-- {
		out = append(out, runs[i].Snapshot())
	}
	return out
}

// History lists stored runs.
func (m *Manager) History(ctx context.Context, filter store.RunFilter) ([]store.RunSummary, error) {
	if m.store == nil {
		return nil, nil
	}
	runs, err := m.store.ListRuns(ctx, filter)
	return runs, eris.Wrap(err, "server: list stored runs")
}

// Cancel cancels run id. It reports false when the run is unknown.
func (m *Manager) Cancel(id string) bool {
	r, ok := m.Get(id)
	if !ok {
		return false
	}
	r.Cancel()
	return true
}

// Shutdown cancels every active run and waits until their results are
// written or ctx ends. Start fails with ErrShuttingDown afterwards.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	m.closed = true
	for _, r := range m.runs {
		r.Cancel()
	}
	m.mu.Unlock()

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return eris.Wrap(ctx.Err(), "server: shutdown")
	}
}

// Wait blocks until every started run has been finalized and persisted.
func (m *Manager) Wait() { m.wg.Wait() }
