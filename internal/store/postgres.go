package store

import (
	"context"
	"errors"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sells-group/enrich-cli/internal/model"
)

// Pool is the subset of pgxpool.Pool used by PostgresStore.
type Pool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    Pool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(4)
	minConns := int32(1)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS runs (
	id          TEXT PRIMARY KEY,
	source      TEXT NOT NULL,
	template    TEXT NOT NULL,
	spec        JSONB NOT NULL,
	total       INTEGER NOT NULL,
	ok          INTEGER NOT NULL,
	partial     INTEGER NOT NULL,
	failed      INTEGER NOT NULL,
	cancelled   BOOLEAN NOT NULL DEFAULT false,
	outcomes    JSONB NOT NULL,
	started_at  TIMESTAMPTZ NOT NULL,
	finished_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_runs_source ON runs(source);
CREATE INDEX IF NOT EXISTS idx_runs_started_at ON runs(started_at DESC);
`

func (s *PostgresStore) Ping(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, "SELECT 1")
	return eris.Wrap(err, "postgres: ping")
}

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

// SaveRun inserts run, replacing an earlier save of the same ID.
func (s *PostgresStore) SaveRun(ctx context.Context, run *model.BatchRun) error {
	rec, err := toRecord(run)
	if err != nil {
		return err
	}
	sum := rec.summary
	_, err = s.pool.Exec(ctx,
		`INSERT INTO runs (id, source, template, spec, total, ok, partial, failed, cancelled, outcomes, started_at, finished_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (id) DO UPDATE SET
			total = EXCLUDED.total, ok = EXCLUDED.ok, partial = EXCLUDED.partial, failed = EXCLUDED.failed,
			cancelled = EXCLUDED.cancelled, outcomes = EXCLUDED.outcomes, finished_at = EXCLUDED.finished_at`,
		sum.ID, sum.Source, sum.Template, rec.spec, sum.Total, sum.OK, sum.Partial, sum.Failed,
		sum.Cancelled, rec.outcomes, sum.StartedAt, sum.FinishedAt,
	)
	return eris.Wrapf(err, "postgres: save run %s", run.ID)
}

func (s *PostgresStore) GetRun(ctx context.Context, id string) (*model.BatchRun, error) {
	var rec record
	sum := &rec.summary
	err := s.pool.QueryRow(ctx,
		`SELECT id, source, template, total, ok, partial, failed, cancelled, started_at, finished_at, spec, outcomes
		FROM runs WHERE id = $1`, id,
	).Scan(&sum.ID, &sum.Source, &sum.Template, &sum.Total, &sum.OK, &sum.Partial, &sum.Failed,
		&sum.Cancelled, &sum.StartedAt, &sum.FinishedAt, &rec.spec, &rec.outcomes)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "postgres: get run %s", id)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get run %s", id)
	}
	return rec.toRun()
}

func (s *PostgresStore) ListRuns(ctx context.Context, filter RunFilter) ([]RunSummary, error) {
	query, args, err := listQuery(filter, sq.Dollar)
	if err != nil {
		return nil, err
	}
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list runs")
	}
	defer rows.Close()

	var runs []RunSummary
	for rows.Next() {
		var r RunSummary
		if err := rows.Scan(&r.ID, &r.Source, &r.Template, &r.Total, &r.OK, &r.Partial, &r.Failed,
			&r.Cancelled, &r.StartedAt, &r.FinishedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan run")
		}
		runs = append(runs, r)
	}
	return runs, eris.Wrap(rows.Err(), "postgres: list runs iterate")
}
