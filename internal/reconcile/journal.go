// Package reconcile journals consultation saves that left the backend
// inconsistent: the patient was marked completed but no consultation record
// was created. Operators list and resolve entries with cmd/reconcile.
package reconcile

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"go.uber.org/zap"
)

// RetentionPeriod is how long resolved entries are kept.
const RetentionPeriod = 365 * 24 * time.Hour

const DefaultSchema = "telemed"

var ErrEntryNotFound = errors.New("reconciliation entry not found or already resolved")

type Entry struct {
	ID          string
	PatientID   string
	PatientName string
	Step        string
	Error       string
	CreatedAt   time.Time
	ResolvedAt  *time.Time
	Resolution  string
}

// Journal stores entries in <schema>.reconciliation_entries.
type Journal struct {
	db     *sql.DB
	table  string
	schema string
	logger *zap.Logger
	now    func() time.Time
}

func NewJournal(db *sql.DB, schema string, logger *zap.Logger) *Journal {
	if schema == "" {
		schema = DefaultSchema
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Journal{
		db:     db,
		schema: schema,
		table:  pq.QuoteIdentifier(schema) + ".reconciliation_entries",
		logger: logger,
		now:    time.Now,
	}
}

// EnsureSchema creates the schema and table when missing.
func (j *Journal) EnsureSchema(ctx context.Context) error {
	stmts := []string{
		fmt.Sprintf("CREATE SCHEMA IF NOT EXISTS %s", pq.QuoteIdentifier(j.schema)),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			id UUID PRIMARY KEY,
			patient_id TEXT NOT NULL,
			patient_name TEXT NOT NULL DEFAULT '',
			step TEXT NOT NULL,
			error TEXT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL,
			resolved_at TIMESTAMPTZ,
			resolution TEXT NOT NULL DEFAULT ''
		)`, j.table),
	}
	for _, s := range stmts {
		if _, err := j.db.ExecContext(ctx, s); err != nil {
			return fmt.Errorf("failed to prepare journal: %w", err)
		}
	}
	return nil
}

// Record stores a new open entry and returns it with its id.
func (j *Journal) Record(ctx context.Context, patientID, patientName, step string, cause error) (*Entry, error) {
	e := &Entry{
		ID:          uuid.NewString(),
		PatientID:   patientID,
		PatientName: patientName,
		Step:        step,
		CreatedAt:   j.now().UTC(),
	}
	if cause != nil {
		e.Error = cause.Error()
	}

	query := fmt.Sprintf(`
		INSERT INTO %s (id, patient_id, patient_name, step, error, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, j.table)
	if _, err := j.db.ExecContext(ctx, query, e.ID, e.PatientID, e.PatientName, e.Step, e.Error, e.CreatedAt); err != nil {
		return nil, fmt.Errorf("failed to record reconciliation entry: %w", err)
	}

	j.logger.Warn("consultation inconsistency journaled",
		zap.String("entry_id", e.ID),
		zap.String("patient_id", patientID),
		zap.String("step", step),
	)
	return e, nil
}

// List returns entries oldest first. Resolved entries are included only
// when all is set.
func (j *Journal) List(ctx context.Context, all bool) ([]Entry, error) {
	query := fmt.Sprintf(`
		SELECT id, patient_id, patient_name, step, error, created_at, resolved_at, resolution
		FROM %s
	`, j.table)
	if !all {
		query += " WHERE resolved_at IS NULL"
	}
	query += " ORDER BY created_at ASC"

	rows, err := j.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query reconciliation entries: %w", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var e Entry
		var resolved sql.NullTime
		if err := rows.Scan(&e.ID, &e.PatientID, &e.PatientName, &e.Step, &e.Error, &e.CreatedAt, &resolved, &e.Resolution); err != nil {
			return nil, fmt.Errorf("failed to scan reconciliation entry: %w", err)
		}
		if resolved.Valid {
			t := resolved.Time
			e.ResolvedAt = &t
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating reconciliation entries: %w", err)
	}
	return out, nil
}

// Resolve closes an open entry with a note.
func (j *Journal) Resolve(ctx context.Context, id, resolution string) error {
	query := fmt.Sprintf(`
		UPDATE %s SET resolved_at = $2, resolution = $3
		WHERE id = $1 AND resolved_at IS NULL
	`, j.table)
	res, err := j.db.ExecContext(ctx, query, id, j.now().UTC(), resolution)
	if err != nil {
		return fmt.Errorf("failed to resolve entry: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if n == 0 {
		return ErrEntryNotFound
	}
	j.logger.Info("reconciliation entry resolved", zap.String("entry_id", id))
	return nil
}

// Purge deletes entries resolved before the retention period.
func (j *Journal) Purge(ctx context.Context) (int64, error) {
	cutoff := j.now().Add(-RetentionPeriod).UTC()
	query := fmt.Sprintf(`
		DELETE FROM %s
		WHERE resolved_at IS NOT NULL AND resolved_at < $1
	`, j.table)
	res, err := j.db.ExecContext(ctx, query, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to purge reconciliation entries: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	j.logger.Info("purged resolved reconciliation entries", zap.Int64("count", n))
	return n, nil
}
