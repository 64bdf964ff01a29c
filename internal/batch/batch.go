// Package batch drives every entity of a source through query rendering,
// search, optional page fetch and extraction on a bounded worker pool.
//
// Workers never touch the BatchRun. They report state changes and finished
// outcomes over one channel to a writer goroutine that owns the run;
// readers get copies through Run.Snapshot.
package batch

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/enrich-cli/internal/model"
	"github.com/sells-group/enrich-cli/internal/query"
)

// Searcher runs one query and optionally fetches result pages.
type Searcher interface {
	Search(ctx context.Context, query string) (*model.SearchResult, error)
	Enrich(ctx context.Context, res *model.SearchResult, topN, concurrency int) int
}

// Extractor turns search results for one entity into an outcome. It never
// returns an error; failures are carried in the outcome.
type Extractor interface {
	Extract(ctx context.Context, rec model.EntityRecord, res *model.SearchResult, spec model.QuerySpec) model.ExtractionOutcome
}

// ProgressFunc receives a progress event after each entity completes. It is
// called from the writer goroutine and must not block for long.
type ProgressFunc func(model.Progress)

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithConcurrency sets the number of entities processed at once.
func WithConcurrency(n int) Option {
	return func(o *Orchestrator) {
		if n > 0 {
			o.concurrency = n
		}
	}
}

// WithCancelGrace sets how long in-flight entities may keep running after
// the run is cancelled. Zero abandons them immediately.
func WithCancelGrace(d time.Duration) Option {
	return func(o *Orchestrator) {
		if d >= 0 {
			o.grace = d
		}
	}
}

// WithFetch enables page fetching for the first topN results of each entity.
func WithFetch(topN, concurrency int) Option {
	return func(o *Orchestrator) {
		o.fetchTopN = topN
		o.fetchConcurrency = concurrency
	}
}

// WithProgress registers a progress callback.
func WithProgress(fn ProgressFunc) Option {
	return func(o *Orchestrator) { o.progress = fn }
}

// WithClock overrides the time source for StartedAt and FinishedAt.
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) { o.now = now }
}

// Orchestrator schedules entities onto workers. One Orchestrator may start
// any number of runs; runs share no state.
type Orchestrator struct {
	search           Searcher
	extract          Extractor
	concurrency      int
	grace            time.Duration
	fetchTopN        int
	fetchConcurrency int
	progress         ProgressFunc
	now              func() time.Time
}

// New creates an Orchestrator. Defaults: 3 workers, 10s cancel grace, no
// page fetch.
func New(s Searcher, x Extractor, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		search:      s,
		extract:     x,
		concurrency: 3,
		grace:       10 * time.Second,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// event is the only thing workers send to the writer.
type event struct {
	id      int
	state   model.EntityState
	outcome *model.ExtractionOutcome
}

// Run is a batch run in progress or finished.
type Run struct {
	mu     sync.RWMutex
	run    model.BatchRun
	states map[int]model.EntityState

	cancel context.CancelFunc
	done   chan struct{}
}

// ID returns the run ID.
func (r *Run) ID() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.run.ID
}

// Snapshot returns a copy of the run safe to read while processing goes on.
func (r *Run) Snapshot() model.BatchRun {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.run.Clone()
}

// States returns the current pipeline state of every entity not yet done.
func (r *Run) States() map[int]model.EntityState {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[int]model.EntityState, len(r.states))
	for id, s := range r.states {
		out[id] = s
	}
	return out
}

// Cancel stops scheduling new entities. In-flight entities get the cancel
// grace period to finish.
func (r *Run) Cancel() { r.cancel() }

// Done is closed once the run is finalized.
func (r *Run) Done() <-chan struct{} { return r.done }

// Wait blocks until the run is finalized and returns its final state.
func (r *Run) Wait() model.BatchRun {
	<-r.done
	return r.Snapshot()
}

// Start begins processing records in the background and returns at once.
// Cancelling ctx has the same effect as Run.Cancel.
func (o *Orchestrator) Start(ctx context.Context, sourceName string, spec model.QuerySpec, records []model.EntityRecord) *Run {
	ctx, cancel := context.WithCancel(ctx)
	r := &Run{
		run: model.BatchRun{
			ID:        uuid.NewString(),
			Source:    sourceName,
			Spec:      spec,
			Total:     len(records),
			Outcomes:  make([]model.ExtractionOutcome, 0, len(records)),
			StartedAt: o.now(),
		},
		states: make(map[int]model.EntityState, len(records)),
		cancel: cancel,
		done:   make(chan struct{}),
	}
	for _, rec := range records {
		r.states[rec.ID] = model.StatePending
	}

	events := make(chan event, o.concurrency)
	go o.schedule(ctx, r.run.ID, spec, records, events)
	go o.write(ctx, r, events)
	return r
}

// Process runs records to completion and returns the finalized run.
func (o *Orchestrator) Process(ctx context.Context, sourceName string, spec model.QuerySpec, records []model.EntityRecord) model.BatchRun {
	return o.Start(ctx, sourceName, spec, records).Wait()
}

// schedule hands records to workers in source order until ctx is cancelled,
// then closes events once every started worker has returned.
func (o *Orchestrator) schedule(ctx context.Context, runID string, spec model.QuerySpec, records []model.EntityRecord, events chan<- event) {
	defer close(events)

	// Workers run on a context that outlives ctx by the grace period.
	work, abandon := context.WithCancel(context.WithoutCancel(ctx))
	defer abandon()
	stop := context.AfterFunc(ctx, func() {
		if o.grace <= 0 {
			abandon()
			return
		}
		time.AfterFunc(o.grace, abandon)
	})
	defer stop()

	log := zap.L().With(zap.String("run_id", runID))
	log.Info("batch: run started",
		zap.Int("entities", len(records)),
		zap.Int("concurrency", o.concurrency),
	)

	var g errgroup.Group
	g.SetLimit(o.concurrency)
	for _, rec := range records {
		if ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			// A slot can free up after cancellation.
			if ctx.Err() != nil {
				return nil
			}
			out := o.process(work, log, spec, rec, func(s model.EntityState) {
				events <- event{id: rec.ID, state: s}
			})
			if work.Err() != nil {
				log.Debug("batch: entity abandoned", zap.Int("entity_id", rec.ID), zap.String("entity", rec.Value))
				return nil
			}
			events <- event{id: rec.ID, state: model.StateDone, outcome: &out}
			return nil
		})
	}
	_ = g.Wait()
}

// process runs one entity through the pipeline. Every failure becomes a
// failed outcome.
func (o *Orchestrator) process(ctx context.Context, log *zap.Logger, spec model.QuerySpec, rec model.EntityRecord, emit func(model.EntityState)) model.ExtractionOutcome {
	log = log.With(zap.Int("entity_id", rec.ID), zap.String("entity", rec.Value))
	names := spec.FieldNames()

	emit(model.StateQuerying)
	queries, err := query.Expand(spec, rec)
	if err != nil {
		log.Warn("batch: query render failed", zap.Error(err))
		return model.FailedOutcome(rec, names, err)
	}

	emit(model.StateSearching)
	results := make([]*model.SearchResult, 0, len(queries))
	var firstErr error
	for _, q := range queries {
		res, err := o.search.Search(ctx, q)
		if err != nil {
			if ctx.Err() != nil {
				out := model.FailedOutcome(rec, names, err)
				out.Queries = queries
				return out
			}
			log.Warn("batch: search failed", zap.String("query", q), zap.Error(err))
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		results = append(results, res)
	}
	if len(results) == 0 {
		out := model.FailedOutcome(rec, names, firstErr)
		out.Queries = queries
		return out
	}
	merged := model.MergeResults(results...)

	if o.fetchTopN > 0 && !merged.Empty() {
		emit(model.StateFetching)
		n := o.search.Enrich(ctx, merged, o.fetchTopN, o.fetchConcurrency)
		log.Debug("batch: pages fetched", zap.Int("pages", n))
	}

	emit(model.StateExtracting)
	out := o.extract.Extract(ctx, rec, merged, spec)
	out.Queries = queries
	return out
}

// insert adds out to the run's outcomes, keeping them in entity ID order.
// Callers hold r.mu.
func (r *Run) insert(out model.ExtractionOutcome) {
	i, _ := slices.BinarySearchFunc(r.run.Outcomes, out.EntityID, func(o model.ExtractionOutcome, id int) int {
		return o.EntityID - id
	})
	r.run.Outcomes = slices.Insert(r.run.Outcomes, i, out)
}

// write is the single writer of r. It applies events until the channel is
// closed, then finalizes the run.
func (o *Orchestrator) write(ctx context.Context, r *Run, events <-chan event) {
	defer close(r.done)
	log := zap.L().With(zap.String("run_id", r.run.ID))

	for ev := range events {
		r.mu.Lock()
		if ev.outcome == nil {
			r.states[ev.id] = ev.state
			r.mu.Unlock()
			continue
		}
		delete(r.states, ev.id)
		r.insert(*ev.outcome)
		r.run.Completed++
		p := model.Progress{RunID: r.run.ID, Completed: r.run.Completed, Total: r.run.Total}
		r.mu.Unlock()

		last := *ev.outcome
		p.Last = &last
		log.Info("batch: entity done",
			zap.Int("entity_id", last.EntityID),
			zap.String("entity", last.Entity),
			zap.String("status", string(last.Status)),
			zap.String("category", string(last.ErrorCategory)),
			zap.Int("completed", p.Completed),
			zap.Int("total", p.Total),
		)
		if o.progress != nil {
			o.progress(p)
		}
	}

	r.mu.Lock()
	finished := o.now()
	r.run.FinishedAt = &finished
	r.run.Cancelled = ctx.Err() != nil && r.run.Completed < r.run.Total
	r.states = map[int]model.EntityState{}
	summary := r.run.Summary()
	cancelled := r.run.Cancelled
	r.mu.Unlock()

	r.cancel()
	log.Info("batch: run finished",
		zap.Int("ok", summary.OK),
		zap.Int("partial", summary.Partial),
		zap.Int("failed", summary.Failed),
		zap.Bool("cancelled", cancelled),
	)
}
