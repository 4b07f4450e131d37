// Package postgres provides a PostgreSQL implementation of storage.HistoryStore
// using pgx/v5 connection pooling.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/rhuss/aython/pkg/api"
	"github.com/rhuss/aython/pkg/storage"
)

// Store is a PostgreSQL-backed HistoryStore.
type Store struct {
	pool *pgxpool.Pool
}

var _ storage.HistoryStore = (*Store)(nil)

// New creates a new PostgreSQL store with the given configuration.
// If MigrateOnStart is true, schema migrations are applied automatically.
func New(ctx context.Context, cfg Config) (*Store, error) {
	cfg.defaults()

	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parsing DSN: %w", err)
	}

	poolCfg.MaxConns = cfg.MaxConns
	poolCfg.MinConns = cfg.MinConns
	poolCfg.MaxConnLifetime = cfg.MaxConnLifetime

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("creating connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("connecting to database: %w", err)
	}

	s := &Store{pool: pool}

	if cfg.MigrateOnStart {
		if err := s.migrate(ctx); err != nil {
			pool.Close()
			return nil, fmt.Errorf("running migrations: %w", err)
		}
	}

	return s, nil
}

const selectColumns = `id, tenant_id, requirement, model, code, exit_code,
	stdout, stderr, error, attempts, created_at`

// Save inserts a run.
func (s *Store) Save(ctx context.Context, rec *api.RunRecord) error {
	tenantID := rec.TenantID
	if tenantID == "" {
		tenantID = storage.GetTenant(ctx)
	}

	_, err := s.pool.Exec(ctx, `
		INSERT INTO runs (`+selectColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`,
		rec.ID, tenantID, rec.Requirement, rec.Model, rec.Code, rec.ExitCode,
		rec.Stdout, rec.Stderr, rec.Error, rec.Attempts, rec.CreatedAt,
	)
	if err != nil {
		if isDuplicateKey(err) {
			return storage.ErrConflict
		}
		return fmt.Errorf("inserting run: %w", err)
	}
	return nil
}

// Get retrieves a run by ID, scoped by tenant.
func (s *Store) Get(ctx context.Context, id string) (*api.RunRecord, error) {
	query := "SELECT " + selectColumns + " FROM runs WHERE id = $1"
	args := []any{id}

	if tenantID := storage.GetTenant(ctx); tenantID != "" {
		query += " AND tenant_id = $2"
		args = append(args, tenantID)
	}

	rec, err := scanRun(s.pool.QueryRow(ctx, query, args...))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying run: %w", err)
	}
	return rec, nil
}

// List returns runs ordered by creation time with keyset pagination on
// (created_at, id).
func (s *Store) List(ctx context.Context, opts storage.ListOptions) ([]*api.RunRecord, error) {
	var (
		where []string
		args  []any
	)
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if tenantID := storage.GetTenant(ctx); tenantID != "" {
		where = append(where, "tenant_id = "+arg(tenantID))
	}
	if opts.Model != "" {
		where = append(where, "model = "+arg(opts.Model))
	}

	dir, cmp := "DESC", "<"
	if opts.Order == "asc" {
		dir, cmp = "ASC", ">"
	}

	if opts.After != "" {
		cursor := arg(opts.After)
		where = append(where, fmt.Sprintf(
			"(created_at, id) %s (SELECT created_at, id FROM runs WHERE id = %s)", cmp, cursor))
	}

	query := "SELECT " + selectColumns + " FROM runs"
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += fmt.Sprintf(" ORDER BY created_at %s, id %s", dir, dir)
	if limit := opts.EffectiveLimit(); limit > 0 {
		query += " LIMIT " + arg(limit)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing runs: %w", err)
	}
	defer rows.Close()

	runs := []*api.RunRecord{}
	for rows.Next() {
		rec, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning run: %w", err)
		}
		runs = append(runs, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating runs: %w", err)
	}
	return runs, nil
}

// HealthCheck verifies the database connection.
func (s *Store) HealthCheck(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Close releases the connection pool.
func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

func scanRun(row pgx.Row) (*api.RunRecord, error) {
	var rec api.RunRecord
	err := row.Scan(
		&rec.ID, &rec.TenantID, &rec.Requirement, &rec.Model, &rec.Code, &rec.ExitCode,
		&rec.Stdout, &rec.Stderr, &rec.Error, &rec.Attempts, &rec.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	rec.CreatedAt = rec.CreatedAt.UTC()
	return &rec, nil
}

// isDuplicateKey checks if the error is a PostgreSQL unique violation (23505).
func isDuplicateKey(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
