// Package store keeps the history of finished batch runs in SQLite or
// Postgres. It is written once per run and never read during processing.
package store

import (
	"context"
	"encoding/json"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/rotisserie/eris"

	"github.com/sells-group/enrich-cli/internal/config"
	"github.com/sells-group/enrich-cli/internal/model"
)

// ErrNotFound is returned when a run ID is not in the store.
var ErrNotFound = eris.New("store: run not found")

// RunFilter specifies criteria for listing runs.
type RunFilter struct {
	Source string `json:"source,omitempty"`
	Limit  int    `json:"limit,omitempty"`
	Offset int    `json:"offset,omitempty"`
}

// RunSummary is one row of the run listing.
type RunSummary struct {
	ID         string    `json:"id"`
	Source     string    `json:"source"`
	Template   string    `json:"template"`
	Total      int       `json:"total"`
	OK         int       `json:"ok"`
	Partial    int       `json:"partial"`
	Failed     int       `json:"failed"`
	Cancelled  bool      `json:"cancelled"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
}

// Store persists finalized runs.
type Store interface {
	SaveRun(ctx context.Context, run *model.BatchRun) error
	GetRun(ctx context.Context, id string) (*model.BatchRun, error)
	ListRuns(ctx context.Context, filter RunFilter) ([]RunSummary, error)

	Migrate(ctx context.Context) error
	Close() error
}

// Open connects the backend named by cfg.Driver and migrates it. Driver
// "none" or "" returns a nil Store.
func Open(ctx context.Context, cfg config.StoreConfig) (Store, error) {
	var (
		st  Store
		err error
	)
	switch cfg.Driver {
	case "", "none":
		return nil, nil
	case "sqlite":
		st, err = NewSQLite(cfg.DatabaseURL)
	case "postgres":
		st, err = NewPostgres(ctx, cfg.DatabaseURL, nil)
	default:
		return nil, eris.Errorf("store: unknown driver %q", cfg.Driver)
	}
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, err
	}
	return st, nil
}

const defaultListLimit = 100

var summaryColumns = []string{
	"id", "source", "template", "total", "ok", "partial", "failed", "cancelled", "started_at", "finished_at",
}

// listQuery builds the run listing for the given placeholder style.
func listQuery(filter RunFilter, ph sq.PlaceholderFormat) (string, []any, error) {
	q := sq.Select(summaryColumns...).From("runs")
	if filter.Source != "" {
		q = q.Where(sq.Eq{"source": filter.Source})
	}
	limit := filter.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}
	q = q.OrderBy("started_at DESC").Limit(uint64(limit))
	if filter.Offset > 0 {
		q = q.Offset(uint64(filter.Offset))
	}
	sqlStr, args, err := q.PlaceholderFormat(ph).ToSql()
	return sqlStr, args, eris.Wrap(err, "store: build list query")
}

// record is the column form of a finalized run.
type record struct {
	summary  RunSummary
	spec     []byte
	outcomes []byte
}

func toRecord(run *model.BatchRun) (*record, error) {
	if run.FinishedAt == nil {
		return nil, eris.Errorf("store: run %s is not finished", run.ID)
	}
	spec, err := json.Marshal(run.Spec)
	if err != nil {
		return nil, eris.Wrap(err, "store: marshal spec")
	}
	outcomes, err := json.Marshal(run.Outcomes)
	if err != nil {
		return nil, eris.Wrap(err, "store: marshal outcomes")
	}
	s := run.Summary()
	return &record{
		summary: RunSummary{
			ID:         run.ID,
			Source:     run.Source,
			Template:   run.Spec.Template,
			Total:      s.Total,
			OK:         s.OK,
			Partial:    s.Partial,
			Failed:     s.Failed,
			Cancelled:  run.Cancelled,
			StartedAt:  run.StartedAt.UTC(),
			FinishedAt: run.FinishedAt.UTC(),
		},
		spec:     spec,
		outcomes: outcomes,
	}, nil
}

func (r *record) toRun() (*model.BatchRun, error) {
	run := &model.BatchRun{
		ID:        r.summary.ID,
		Source:    r.summary.Source,
		Total:     r.summary.Total,
		StartedAt: r.summary.StartedAt,
		Cancelled: r.summary.Cancelled,
	}
	finished := r.summary.FinishedAt
	run.FinishedAt = &finished
	if err := json.Unmarshal(r.spec, &run.Spec); err != nil {
		return nil, eris.Wrap(err, "store: unmarshal spec")
	}
	if err := json.Unmarshal(r.outcomes, &run.Outcomes); err != nil {
		return nil, eris.Wrap(err, "store: unmarshal outcomes")
	}
	run.Completed = len(run.Outcomes)
	return run, nil
}
