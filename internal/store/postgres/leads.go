// Package postgres provides Postgres-backed persistence implementations.
package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/appscout/appscout/internal/scout"
)

// Querier is the subset of pgxpool.Pool the stores use; pgxmock satisfies it
// in tests.
type Querier interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// LeadStore implements scout.DedupStore on Postgres. Reservation atomicity
// comes from the primary key on the escaped contact key: concurrent runs that
// race on the same contact see exactly one insert win.
type LeadStore struct {
	db   Querier
	pool *pgxpool.Pool
}

// NewLeadStore connects a pooled LeadStore and verifies the connection.
func NewLeadStore(ctx context.Context, dsn string) (*LeadStore, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("create connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return &LeadStore{db: pool, pool: pool}, nil
}

// NewLeadStoreWithQuerier wires an existing Querier (tests).
func NewLeadStoreWithQuerier(q Querier) *LeadStore {
	return &LeadStore{db: q}
}

// EnsureSchema creates the leads table when absent.
func (s *LeadStore) EnsureSchema(ctx context.Context) error {
	query := `
		CREATE TABLE IF NOT EXISTS leads (
			key        TEXT PRIMARY KEY,
			app_name   TEXT NOT NULL,
			app_id     TEXT NOT NULL,
			email      TEXT NOT NULL,
			rating     DOUBLE PRECISION NOT NULL DEFAULT 0,
			reviews    INTEGER NOT NULL DEFAULT 0,
			installs   TEXT NOT NULL DEFAULT '',
			region     TEXT NOT NULL,
			term       TEXT NOT NULL,
			seed       TEXT NOT NULL DEFAULT '',
			found_at   TIMESTAMPTZ NOT NULL
		);
	`
	if _, err := s.db.Exec(ctx, query); err != nil {
		return fmt.Errorf("ensure leads schema: %w", err)
	}
	return nil
}

// TryReserve inserts the lead if the key is absent. The insert-if-absent is a
// single statement, so first-writer-wins holds across processes.
func (s *LeadStore) TryReserve(ctx context.Context, key string, lead scout.Lead) (bool, error) {
	query := `
		INSERT INTO leads (key, app_name, app_id, email, rating, reviews, installs, region, term, seed, found_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (key) DO NOTHING;
	`
	tag, err := s.db.Exec(ctx, query,
		key,
		lead.AppName,
		lead.AppID,
		lead.Email,
		lead.Rating,
		lead.Reviews,
		lead.Installs,
		lead.Region,
		lead.Term,
		lead.Seed,
		lead.FoundAt,
	)
	if err != nil {
		return false, fmt.Errorf("reserve lead key: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// ReadAll returns every stored lead ordered by key.
func (s *LeadStore) ReadAll(ctx context.Context) ([]scout.Lead, error) {
	query := `
		SELECT key, app_name, app_id, email, rating, reviews, installs, region, term, seed, found_at
		FROM leads
		ORDER BY key;
	`
	rows, err := s.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("read leads: %w", err)
	}
	defer rows.Close()

	var leads []scout.Lead
	for rows.Next() {
		var lead scout.Lead
		if err := rows.Scan(
			&lead.Key,
			&lead.AppName,
			&lead.AppID,
			&lead.Email,
			&lead.Rating,
			&lead.Reviews,
			&lead.Installs,
			&lead.Region,
			&lead.Term,
			&lead.Seed,
			&lead.FoundAt,
		); err != nil {
			return nil, fmt.Errorf("scan lead row: %w", err)
		}
		leads = append(leads, lead)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate lead rows: %w", err)
	}
	return leads, nil
}

// DeleteAll removes every stored lead.
func (s *LeadStore) DeleteAll(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, `DELETE FROM leads;`); err != nil {
		return fmt.Errorf("delete leads: %w", err)
	}
	return nil
}

// Count returns the number of stored leads.
func (s *LeadStore) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRow(ctx, `SELECT COUNT(*) FROM leads;`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count leads: %w", err)
	}
	return n, nil
}

// Close releases the underlying connection pool.
func (s *LeadStore) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}
