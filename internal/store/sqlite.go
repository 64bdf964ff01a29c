package store

import (
	"context"
	"database/sql"
	"errors"

	sq "github.com/Masterminds/squirrel"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/enrich-cli/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	if dsn == "" {
		dsn = "enrich.db"
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS runs (
	id          TEXT PRIMARY KEY,
	source      TEXT NOT NULL,
	template    TEXT NOT NULL,
	spec        TEXT NOT NULL,
	total       INTEGER NOT NULL,
	ok          INTEGER NOT NULL,
	partial     INTEGER NOT NULL,
	failed      INTEGER NOT NULL,
	cancelled   BOOLEAN NOT NULL DEFAULT 0,
	outcomes    TEXT NOT NULL,
	started_at  DATETIME NOT NULL,
	finished_at DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_runs_source ON runs(source);
CREATE INDEX IF NOT EXISTS idx_runs_started_at ON runs(started_at);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// SaveRun inserts run, replacing an earlier save of the same ID.
func (s *SQLiteStore) SaveRun(ctx context.Context, run *model.BatchRun) error {
	rec, err := toRecord(run)
	if err != nil {
		return err
	}
	sum := rec.summary
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO runs (id, source, template, spec, total, ok, partial, failed, cancelled, outcomes, started_at, finished_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			total = excluded.total, ok = excluded.ok, partial = excluded.partial, failed = excluded.failed,
			cancelled = excluded.cancelled, outcomes = excluded.outcomes, finished_at = excluded.finished_at`,
		sum.ID, sum.Source, sum.Template, string(rec.spec), sum.Total, sum.OK, sum.Partial, sum.Failed,
		sum.Cancelled, string(rec.outcomes), sum.StartedAt, sum.FinishedAt,
	)
	return eris.Wrapf(err, "sqlite: save run %s", run.ID)
}

func (s *SQLiteStore) GetRun(ctx context.Context, id string) (*model.BatchRun, error) {
	var rec record
	var spec, outcomes string
	sum := &rec.summary
	err := s.db.QueryRowContext(ctx,
		`SELECT id, source, template, total, ok, partial, failed, cancelled, started_at, finished_at, spec, outcomes
		FROM runs WHERE id = ?`, id,
	).Scan(&sum.ID, &sum.Source, &sum.Template, &sum.Total, &sum.OK, &sum.Partial, &sum.Failed,
		&sum.Cancelled, &sum.StartedAt, &sum.FinishedAt, &spec, &outcomes)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "sqlite: get run %s", id)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get run %s", id)
	}
	rec.spec, rec.outcomes = []byte(spec), []byte(outcomes)
	return rec.toRun()
}

func (s *SQLiteStore) ListRuns(ctx context.Context, filter RunFilter) ([]RunSummary, error) {
	query, args, err := listQuery(filter, sq.Question)
	if err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list runs")
	}
	defer rows.Close() //nolint:errcheck

	var runs []RunSummary
	for rows.Next() {
		var r RunSummary
		if err := rows.Scan(&r.ID, &r.Source, &r.Template, &r.Total, &r.OK, &r.Partial, &r.Failed,
			&r.Cancelled, &r.StartedAt, &r.FinishedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan run")
		}
		runs = append(runs, r)
	}
	return runs, eris.Wrap(rows.Err(), "sqlite: list runs iterate")
}
