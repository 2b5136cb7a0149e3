package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// WorkQueue implements scout.WorkQueue on Postgres. PopOne deletes the oldest
// row in one statement, so the fetch+delete pair the controller relies on is
// a single externally-visible step even with competing consumers.
type WorkQueue struct {
	db   Querier
	pool *pgxpool.Pool
}

// NewWorkQueue connects a pooled WorkQueue and verifies the connection.
func NewWorkQueue(ctx context.Context, dsn string) (*WorkQueue, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("create connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return &WorkQueue{db: pool, pool: pool}, nil
}

// NewWorkQueueWithQuerier wires an existing Querier (tests).
func NewWorkQueueWithQuerier(q Querier) *WorkQueue {
	return &WorkQueue{db: q}
}

// EnsureSchema creates the work_queue table when absent.
func (q *WorkQueue) EnsureSchema(ctx context.Context) error {
	query := `
		CREATE TABLE IF NOT EXISTS work_queue (
			id       BIGSERIAL PRIMARY KEY,
			term     TEXT NOT NULL,
			added_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);
	`
	if _, err := q.db.Exec(ctx, query); err != nil {
		return fmt.Errorf("ensure work_queue schema: %w", err)
	}
	return nil
}

// Push appends a seed term to the queue.
func (q *WorkQueue) Push(ctx context.Context, term string) error {
	if _, err := q.db.Exec(ctx, `INSERT INTO work_queue (term) VALUES ($1);`, term); err != nil {
		return fmt.Errorf("push work item: %w", err)
	}
	return nil
}

// PopOne removes and returns the oldest term. SKIP LOCKED keeps concurrent
// chains from blocking on each other's pops.
func (q *WorkQueue) PopOne(ctx context.Context) (string, bool, error) {
	query := `
		DELETE FROM work_queue
		WHERE id = (
			SELECT id FROM work_queue
			ORDER BY id
			LIMIT 1
			FOR UPDATE SKIP LOCKED
		)
		RETURNING term;
	`
	var term string
	err := q.db.QueryRow(ctx, query).Scan(&term)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("pop work item: %w", err)
	}
	return term, true, nil
}

// Close releases the underlying connection pool.
func (q *WorkQueue) Close() {
	if q.pool != nil {
		q.pool.Close()
	}
}
