// Package store persists operators and pipeline run history.
package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/bizmatters/cad-copilot/internal/config"
	"github.com/bizmatters/cad-copilot/internal/models"
)

// ErrNotFound is returned when a lookup matches no row
var ErrNotFound = errors.New("not found")

// ErrDuplicate is returned when an operator email is already registered
var ErrDuplicate = errors.New("already exists")

// DefaultListLimit caps ListRuns when the caller passes no limit
const DefaultListLimit = 50

// Store is the persistence boundary used by the gateway and orchestrator
type Store interface {
	RecordRun(ctx context.Context, run *models.RunRecord) error
	ListRuns(ctx context.Context, limit int) ([]models.RunRecord, error)
	CreateOperator(ctx context.Context, op *models.Operator) error
	FindOperatorByEmail(ctx context.Context, email string) (*models.Operator, error)
	Ping(ctx context.Context) error
	Close()
}

// Open connects the store selected by cfg and ensures its schema exists
func Open(ctx context.Context, cfg config.StoreConfig) (Store, error) {
	switch cfg.Driver {
	case config.DriverPostgres:
		return NewPostgresStore(ctx, cfg.DSN)
	case config.DriverSQLite:
		return NewSQLiteStore(ctx, cfg.DSN)
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.Driver)
	}
}

func clampLimit(limit int) int {
	if limit <= 0 || limit > 500 {
		return DefaultListLimit
	}
	return limit
}
