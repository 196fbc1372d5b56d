package reconcile

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var fixedNow = time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)

func setupMockJournal(t *testing.T) (*sql.DB, sqlmock.Sqlmock, *Journal) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)

	j := NewJournal(db, "", zap.NewNop())
	j.now = func() time.Time { return fixedNow }
	return db, mock, j
}

func TestRecord(t *testing.T) {
	db, mock, j := setupMockJournal(t)
	defer db.Close()

	mock.ExpectExec(`INSERT INTO "telemed".reconciliation_entries`).
		WithArgs(sqlmock.AnyArg(), "42", "Ann", "create consultation", "http 500", fixedNow).
		WillReturnResult(sqlmock.NewResult(0, 1))

	e, err := j.Record(context.Background(), "42", "Ann", "create consultation", errors.New("http 500"))

	require.NoError(t, err)
	assert.NotEmpty(t, e.ID)
	assert.Equal(t, "http 500", e.Error)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRecord_DBError(t *testing.T) {
	db, mock, j := setupMockJournal(t)
	defer db.Close()

	mock.ExpectExec(`INSERT`).WillReturnError(errors.New("connection reset"))

	_, err := j.Record(context.Background(), "42", "Ann", "create consultation", nil)

	assert.ErrorContains(t, err, "connection reset")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestList_OpenOnly(t *testing.T) {
	db, mock, j := setupMockJournal(t)
	defer db.Close()

	rows := sqlmock.NewRows([]string{"id", "patient_id", "patient_name", "step", "error", "created_at", "resolved_at", "resolution"}).
		AddRow("a", "1", "Ann", "create consultation", "boom", fixedNow, nil, "").
		AddRow("b", "2", "Bob", "create consultation", "boom", fixedNow, fixedNow, "fixed by hand")
	mock.ExpectQuery(`SELECT .* FROM "telemed".reconciliation_entries\s+WHERE resolved_at IS NULL ORDER BY created_at ASC`).
		WillReturnRows(rows)

	entries, err := j.List(context.Background(), false)

	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Nil(t, entries[0].ResolvedAt)
	require.NotNil(t, entries[1].ResolvedAt)
	assert.Equal(t, "fixed by hand", entries[1].Resolution)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestResolve(t *testing.T) {
	db, mock, j := setupMockJournal(t)
	defer db.Close()

	mock.ExpectExec(`UPDATE "telemed".reconciliation_entries SET resolved_at`).
		WithArgs("a", fixedNow, "created record manually").
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, j.Resolve(context.Background(), "a", "created record manually"))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestResolve_NotFound(t *testing.T) {
	db, mock, j := setupMockJournal(t)
	defer db.Close()

	mock.ExpectExec(`UPDATE`).WillReturnResult(sqlmock.NewResult(0, 0))

	err := j.Resolve(context.Background(), "missing", "")

	assert.ErrorIs(t, err, ErrEntryNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPurge(t *testing.T) {
	db, mock, j := setupMockJournal(t)
	defer db.Close()

	mock.ExpectExec(`DELETE FROM "telemed".reconciliation_entries`).
		WithArgs(fixedNow.Add(-RetentionPeriod)).
		WillReturnResult(sqlmock.NewResult(0, 3))

	n, err := j.Purge(context.Background())

	require.NoError(t, err)
	assert.Equal(t, int64(3), n)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEnsureSchema(t *testing.T) {
	db, mock, j := setupMockJournal(t)
	defer db.Close()

	mock.ExpectExec(`CREATE SCHEMA IF NOT EXISTS "telemed"`).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(`CREATE TABLE IF NOT EXISTS "telemed".reconciliation_entries`).WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, j.EnsureSchema(context.Background()))
	require.NoError(t, mock.ExpectationsWereMet())
}
