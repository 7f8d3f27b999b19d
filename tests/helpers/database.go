package helpers

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/bizmatters/cad-copilot/internal/models"
	"github.com/bizmatters/cad-copilot/internal/store"
)

// OperatorStore is the part of the store the helpers seed
type OperatorStore interface {
	CreateOperator(ctx context.Context, op *models.Operator) error
}

// NewTestSQLite opens a fresh SQLite store in a temporary directory
func NewTestSQLite(t *testing.T) *store.SQLiteStore {
	t.Helper()
	st, err := store.NewSQLiteStore(context.Background(), filepath.Join(t.TempDir(), "copilot.db"))
	if err != nil {
		t.Fatalf("Failed to create test database: %v", err)
	}
	t.Cleanup(st.Close)
	return st
}

// NewTestPostgres connects to the database named by the POSTGRES_* variables.
// The test is skipped when POSTGRES_HOST is unset.
func NewTestPostgres(t *testing.T) *store.PostgresStore {
	t.Helper()
	if os.Getenv("POSTGRES_HOST") == "" {
		t.Skip("POSTGRES_HOST not set")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	st, err := store.NewPostgresStore(ctx, buildDatabaseURL())
	if err != nil {
		t.Fatalf("Failed to create test database: %v", err)
	}
	t.Cleanup(st.Close)
	return st
}

// buildDatabaseURL constructs the database URL from environment variables
func buildDatabaseURL() string {
	host := os.Getenv("POSTGRES_HOST")

	port := os.Getenv("POSTGRES_PORT")
	if port == "" {
		port = "5432"
	}

	user := os.Getenv("POSTGRES_USER")
	if user == "" {
		user = "postgres"
	}

	password := os.Getenv("POSTGRES_PASSWORD")
	if password == "" {
		password = "postgres"
	}

	dbname := os.Getenv("POSTGRES_DB")
	if dbname == "" {
		dbname = "cad_copilot_test"
	}

	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=prefer",
		user, password, host, port, dbname)
}

// CreateTestOperator stores an operator with a bcrypt hash of password and returns it
func CreateTestOperator(t *testing.T, st OperatorStore, fixture TestOperator) *models.Operator {
	t.Helper()
	hashed, err := bcrypt.GenerateFromPassword([]byte(fixture.Password), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("Failed to hash password: %v", err)
	}

	op := &models.Operator{
		Name:           fixture.Name,
		Email:          fixture.Email,
		HashedPassword: string(hashed),
		Roles:          fixture.Roles,
	}
	if err := st.CreateOperator(context.Background(), op); err != nil {
		t.Fatalf("Failed to create test operator: %v", err)
	}
	return op
}

// UniqueEmail returns an address no earlier test run has used
func UniqueEmail(prefix string) string {
	return fmt.Sprintf("%s-%d@example.com", prefix, time.Now().UnixNano())
}
