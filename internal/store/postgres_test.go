package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newMockPostgresStore creates a PostgresStore backed by pgxmock for unit testing.
func newMockPostgresStore(t *testing.T) (*PostgresStore, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { mock.Close() })

	s := &PostgresStore{pool: mock}
	return s, mock
}

func TestPostgresStore_Migrate(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`CREATE TABLE IF NOT EXISTS runs`).
		WillReturnResult(pgxmock.NewResult("CREATE", 0))

	require.NoError(t, s.Migrate(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_SaveRun(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	started := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	run := finishedRun("run-1", "entities.csv", started)

	mock.ExpectExec(`INSERT INTO runs .* ON CONFLICT \(id\) DO UPDATE`).
		WithArgs("run-1", "entities.csv", "{entity} headquarters location", pgxmock.AnyArg(),
			2, 1, 0, 1, false, pgxmock.AnyArg(), started, started.Add(time.Minute)).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, s.SaveRun(context.Background(), run))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_GetRun(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	started := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	finished := started.Add(time.Minute)

	spec := []byte(`{"template":"{entity} email","fields":[{"name":"email"}]}`)
	outcomes := []byte(`[{"entity_id":0,"entity":"Acme","fields":{"email":"info@acme.com"},"confidence":{"email":0.9},"status":"ok"}]`)
	mock.ExpectQuery(`SELECT id, source, template, .* FROM runs WHERE id = \$1`).
		WithArgs("run-1").
		WillReturnRows(pgxmock.NewRows([]string{
			"id", "source", "template", "total", "ok", "partial", "failed", "cancelled", "started_at", "finished_at", "spec", "outcomes",
		}).AddRow("run-1", "src.csv", "{entity} email", 1, 1, 0, 0, false, started, finished, spec, outcomes))

	got, err := s.GetRun(context.Background(), "run-1")
	require.NoError(t, err)
	assert.Equal(t, "src.csv", got.Source)
	assert.Equal(t, "{entity} email", got.Spec.Template)
	assert.Equal(t, []string{"email"}, got.Spec.FieldNames())
	require.Len(t, got.Outcomes, 1)
	assert.Equal(t, "info@acme.com", got.Outcomes[0].Fields["email"])
	assert.Equal(t, 1, got.Completed)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_GetRun_NotFound(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`SELECT id, source, template, .* FROM runs WHERE id = \$1`).
		WithArgs("nonexistent-run").
		WillReturnError(pgx.ErrNoRows)

	_, err := s.GetRun(context.Background(), "nonexistent-run")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNotFound))
	assert.Contains(t, err.Error(), "get run")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_ListRuns(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	started := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	mock.ExpectQuery(`SELECT id, source, .* FROM runs WHERE source = \$1 ORDER BY started_at DESC LIMIT 100`).
		WithArgs("a.csv").
		WillReturnRows(pgxmock.NewRows([]string{
			"id", "source", "template", "total", "ok", "partial", "failed", "cancelled", "started_at", "finished_at",
		}).
			AddRow("run-2", "a.csv", "{entity}", 3, 2, 1, 0, false, started.Add(time.Hour), started.Add(2*time.Hour)).
			AddRow("run-1", "a.csv", "{entity}", 5, 1, 1, 1, true, started, started.Add(time.Hour)))

	runs, err := s.ListRuns(context.Background(), RunFilter{Source: "a.csv"})
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, "run-2", runs[0].ID)
	assert.Equal(t, 2, runs[0].OK)
	assert.True(t, runs[1].Cancelled)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_ListRuns_QueryError(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`SELECT id, source`).WillReturnError(errors.New("connection reset"))

	_, err := s.ListRuns(context.Background(), RunFilter{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "list runs")
	assert.NoError(t, mock.ExpectationsWereMet())
}
