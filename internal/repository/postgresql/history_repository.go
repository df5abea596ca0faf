package postgresql

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"transcription-service/internal/entity"
)

var ErrNotFound = errors.New("not found")

func NewPool(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse dsn: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping: %w", err)
	}
	return pool, nil
}

// HistoryRepository keeps one row per finished job. Job state itself stays
// in memory; this table only records outcomes.
type HistoryRepository struct {
	pool *pgxpool.Pool
}

func NewHistoryRepository(pool *pgxpool.Pool) *HistoryRepository {
	return &HistoryRepository{pool: pool}
}

func (r *HistoryRepository) Migrate(ctx context.Context) error {
	const q = `
CREATE TABLE IF NOT EXISTS transcription_history (
	job_id      UUID PRIMARY KEY,
	kind        TEXT NOT NULL,
	status      TEXT NOT NULL,
	filename    TEXT NOT NULL DEFAULT '',
	language    TEXT NOT NULL DEFAULT '',
	segments    INTEGER NOT NULL DEFAULT 0,
	error       TEXT,
	created_at  TIMESTAMPTZ NOT NULL,
	finished_at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS transcription_history_finished_idx
	ON transcription_history (finished_at DESC);
`
	_, err := r.pool.Exec(ctx, q)
	return err
}

func (r *HistoryRepository) Record(ctx context.Context, e entity.HistoryEntry) error {
	const q = `
INSERT INTO transcription_history (job_id, kind, status, filename, language, segments, error, created_at, finished_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
ON CONFLICT (job_id) DO UPDATE
SET status=EXCLUDED.status, language=EXCLUDED.language, segments=EXCLUDED.segments,
    error=EXCLUDED.error, finished_at=EXCLUDED.finished_at;
`
	_, err := r.pool.Exec(ctx, q,
		e.JobID, string(e.Kind), string(e.Status), e.Filename, e.Language,
		e.Segments, e.Error, e.CreatedAt, e.FinishedAt,
	)
	return err
}

const selectHistory = `
SELECT job_id, kind, status, filename, language, segments, error, created_at, finished_at
FROM transcription_history
`

func (r *HistoryRepository) Recent(ctx context.Context, limit int) ([]entity.HistoryEntry, error) {
	rows, err := r.pool.Query(ctx, selectHistory+`ORDER BY finished_at DESC LIMIT $1;`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]entity.HistoryEntry, 0, limit)
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (r *HistoryRepository) GetByID(ctx context.Context, id uuid.UUID) (entity.HistoryEntry, error) {
	e, err := scanEntry(r.pool.QueryRow(ctx, selectHistory+`WHERE job_id = $1;`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return entity.HistoryEntry{}, ErrNotFound
	}
	return e, err
}

func scanEntry(row pgx.Row) (entity.HistoryEntry, error) {
	var (
		e      entity.HistoryEntry
		kind   string
		status string
	)
	if err := row.Scan(
		&e.JobID,
		&kind,
		&status,
		&e.Filename,
		&e.Language,
		&e.Segments,
		&e.Error, // NULL => nil
		&e.CreatedAt,
		&e.FinishedAt,
	); err != nil {
		return entity.HistoryEntry{}, err
	}
	e.Kind = entity.JobKind(kind)
	e.Status = entity.JobStatus(status)
	return e, nil
}
