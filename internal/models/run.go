package models

import (
	"time"
)

// RunKind distinguishes recorded pipeline calls
type RunKind string

const (
	RunKindGeneration RunKind = "generation"
	RunKindExecution  RunKind = "execution"
)

// RunRecord is one persisted pipeline call
type RunRecord struct {
	ID          string    `json:"id" db:"id"`
	Kind        RunKind   `json:"kind" db:"kind"`
	OperatorID  string    `json:"operator_id,omitempty" db:"operator_id"`
	UserMessage string    `json:"user_message,omitempty" db:"user_message"`
	Title       string    `json:"title,omitempty" db:"title"`
	Code        string    `json:"code" db:"code"`
	Success     bool      `json:"success" db:"success"`
	Error       *string   `json:"error,omitempty" db:"error"`
	Attempts    int       `json:"attempts" db:"attempts"`
	Category    *string   `json:"category,omitempty" db:"category"`
	Patch       *string   `json:"patch,omitempty" db:"patch"`
	DurationMS  int64     `json:"duration_ms" db:"duration_ms"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
}
