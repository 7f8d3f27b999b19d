package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/bizmatters/cad-copilot/internal/models"
)

const postgresSchema = `
CREATE TABLE IF NOT EXISTS operators (
	id TEXT PRIMARY KEY,
	name TEXT NOT NULL,
	email TEXT NOT NULL UNIQUE,
	hashed_password TEXT NOT NULL,
	roles TEXT[] NOT NULL DEFAULT '{}',
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE TABLE IF NOT EXISTS runs (
	id TEXT PRIMARY KEY,
	kind TEXT NOT NULL,
	operator_id TEXT,
	user_message TEXT,
	title TEXT,
	code TEXT NOT NULL,
	success BOOLEAN NOT NULL,
	error TEXT,
	attempts INTEGER NOT NULL DEFAULT 0,
	category TEXT,
	patch TEXT,
	duration_ms BIGINT NOT NULL DEFAULT 0,
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS runs_created_at_idx ON runs (created_at DESC);
`

// PostgresStore keeps operators and runs in PostgreSQL
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore opens a pool for databaseURL and creates the schema
func NewPostgresStore(ctx context.Context, databaseURL string) (*PostgresStore, error) {
	poolConfig, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database URL: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if _, err := pool.Exec(ctx, postgresSchema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	return &PostgresStore{pool: pool}, nil
}

func (s *PostgresStore) RecordRun(ctx context.Context, run *models.RunRecord) error {
	if run.ID == "" {
		run.ID = uuid.New().String()
	}
	if run.CreatedAt.IsZero() {
		run.CreatedAt = time.Now().UTC()
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO runs (id, kind, operator_id, user_message, title, code, success, error, attempts, category, patch, duration_ms, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		run.ID, string(run.Kind), run.OperatorID, run.UserMessage, run.Title, run.Code,
		run.Success, run.Error, run.Attempts, run.Category, run.Patch, run.DurationMS, run.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to record run: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListRuns(ctx context.Context, limit int) ([]models.RunRecord, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, kind, COALESCE(operator_id, ''), COALESCE(user_message, ''), COALESCE(title, ''), code,
		       success, error, attempts, category, patch, duration_ms, created_at
		FROM runs ORDER BY created_at DESC LIMIT $1`, clampLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	runs := []models.RunRecord{}
	for rows.Next() {
		var r models.RunRecord
		var kind string
		if err := rows.Scan(&r.ID, &kind, &r.OperatorID, &r.UserMessage, &r.Title, &r.Code,
			&r.Success, &r.Error, &r.Attempts, &r.Category, &r.Patch, &r.DurationMS, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		r.Kind = models.RunKind(kind)
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

func (s *PostgresStore) CreateOperator(ctx context.Context, op *models.Operator) error {
	if op.ID == "" {
		op.ID = uuid.New().String()
	}
	if op.CreatedAt.IsZero() {
		op.CreatedAt = time.Now().UTC()
	}
	roles := op.Roles
	if roles == nil {
		roles = []string{}
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO operators (id, name, email, hashed_password, roles, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		op.ID, op.Name, op.Email, op.HashedPassword, roles, op.CreatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return fmt.Errorf("operator %s: %w", op.Email, ErrDuplicate)
		}
		return fmt.Errorf("failed to create operator: %w", err)
	}
	return nil
}

func (s *PostgresStore) FindOperatorByEmail(ctx context.Context, email string) (*models.Operator, error) {
	var op models.Operator
	err := s.pool.QueryRow(ctx, `
		SELECT id, name, email, hashed_password, roles, created_at
		FROM operators WHERE email = $1`, email,
	).Scan(&op.ID, &op.Name, &op.Email, &op.HashedPassword, &op.Roles, &op.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find operator: %w", err)
	}
	return &op, nil
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

func (s *PostgresStore) Close() {
	s.pool.Close()
}
