package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/bizmatters/cad-copilot/internal/models"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS operators (
	id TEXT PRIMARY KEY,
	name TEXT NOT NULL,
	email TEXT NOT NULL UNIQUE,
	hashed_password TEXT NOT NULL,
	roles TEXT NOT NULL DEFAULT '',
	created_at TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS runs (
	id TEXT PRIMARY KEY,
	kind TEXT NOT NULL,
	operator_id TEXT,
	user_message TEXT,
	title TEXT,
	code TEXT NOT NULL,
	success INTEGER NOT NULL,
	error TEXT,
	attempts INTEGER NOT NULL DEFAULT 0,
	category TEXT,
	patch TEXT,
	duration_ms INTEGER NOT NULL DEFAULT 0,
	created_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS runs_created_at_idx ON runs (created_at DESC);
`

// SQLiteStore keeps operators and runs in a single SQLite file
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (or creates) the database at path
func NewSQLiteStore(ctx context.Context, path string) (*SQLiteStore, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create store directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite store: %w", err)
	}
	// a single writer avoids SQLITE_BUSY under concurrent requests
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) RecordRun(ctx context.Context, run *models.RunRecord) error {
	if run.ID == "" {
		run.ID = uuid.New().String()
	}
	if run.CreatedAt.IsZero() {
		run.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `INSERT INTO runs
		(id, kind, operator_id, user_message, title, code, success, error, attempts, category, patch, duration_ms, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID, string(run.Kind), run.OperatorID, run.UserMessage, run.Title, run.Code,
		boolToInt(run.Success), run.Error, run.Attempts, run.Category, run.Patch, run.DurationMS,
		run.CreatedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("failed to record run: %w", err)
	}
	return nil
}

func (s *SQLiteStore) ListRuns(ctx context.Context, limit int) ([]models.RunRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, kind, COALESCE(operator_id, ''), COALESCE(user_message, ''), COALESCE(title, ''), code,
		       success, error, attempts, category, patch, duration_ms, created_at
		FROM runs ORDER BY created_at DESC LIMIT ?`, clampLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	runs := []models.RunRecord{}
	for rows.Next() {
		var r models.RunRecord
		var kind, ts string
		var success int
		var runErr, category, patch sql.NullString
		if err := rows.Scan(&r.ID, &kind, &r.OperatorID, &r.UserMessage, &r.Title, &r.Code,
			&success, &runErr, &r.Attempts, &category, &patch, &r.DurationMS, &ts); err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		r.Kind = models.RunKind(kind)
		r.Success = success == 1
		r.Error = nullable(runErr)
		r.Category = nullable(category)
		r.Patch = nullable(patch)
		if t, err := time.Parse(time.RFC3339Nano, ts); err == nil {
			r.CreatedAt = t
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

func (s *SQLiteStore) CreateOperator(ctx context.Context, op *models.Operator) error {
	if op.ID == "" {
		op.ID = uuid.New().String()
	}
	if op.CreatedAt.IsZero() {
		op.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `INSERT INTO operators
		(id, name, email, hashed_password, roles, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		op.ID, op.Name, op.Email, op.HashedPassword, strings.Join(op.Roles, ","),
		op.CreatedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return fmt.Errorf("operator %s: %w", op.Email, ErrDuplicate)
		}
		return fmt.Errorf("failed to create operator: %w", err)
	}
	return nil
}

func (s *SQLiteStore) FindOperatorByEmail(ctx context.Context, email string) (*models.Operator, error) {
	var op models.Operator
	var roles, ts string
	err := s.db.QueryRowContext(ctx, `SELECT id, name, email, hashed_password, roles, created_at
		FROM operators WHERE email = ?`, email,
	).Scan(&op.ID, &op.Name, &op.Email, &op.HashedPassword, &roles, &ts)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find operator: %w", err)
	}
	op.Roles = splitRoles(roles)
	if t, err := time.Parse(time.RFC3339Nano, ts); err == nil {
		op.CreatedAt = t
	}
	return &op, nil
}

func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *SQLiteStore) Close() {
	_ = s.db.Close()
}

func boolToInt(v bool) int {
	if v {
		return 1
	}
	return 0
}

func nullable(v sql.NullString) *string {
	if !v.Valid {
		return nil
	}
	s := v.String
	return &s
}

func splitRoles(joined string) []string {
	if joined == "" {
		return []string{}
	}
	return strings.Split(joined, ",")
}
