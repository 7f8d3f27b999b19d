package models

import "time"

// ExecutionResult is the outcome of running one piece of code against the document
type ExecutionResult struct {
	Success       bool          `json:"success"`
	Output        string        `json:"output"`
	Error         *string       `json:"error"`
	StackTrace    *string       `json:"stack_trace"`
	ExecutionTime time.Duration `json:"execution_time" swaggertype:"integer"`
}

// DiagnosisCategory classifies a failed execution
type DiagnosisCategory string

const (
	CategoryNullReference    DiagnosisCategory = "null_reference"
	CategoryMissingAttribute DiagnosisCategory = "missing_attribute"
	CategoryTypeMismatch     DiagnosisCategory = "type_mismatch"
	CategoryUnknown          DiagnosisCategory = "unknown"
)

// Diagnosis explains a failed execution and may carry a corrected script
type Diagnosis struct {
	Category      DiagnosisCategory `json:"category"`
	Summary       string            `json:"summary"`
	LikelyFixes   []string          `json:"likely_fixes"`
	CorrectedCode *string           `json:"corrected_code"`
}

// RetryState tracks one diagnose-and-retry loop
type RetryState struct {
	AttemptCount int     `json:"attempt_count"`
	MaxAttempts  int     `json:"max_attempts"`
	LastError    *string `json:"last_error"`
}

// Exhausted reports whether no further attempt is allowed
func (r RetryState) Exhausted() bool {
	return r.AttemptCount >= r.MaxAttempts
}

// ExecutionOutcome is what an execute request returns: the last attempt's
// result and, when any attempt failed, the diagnosis of the last failure.
type ExecutionOutcome struct {
	Result    ExecutionResult `json:"result"`
	Diagnosis *Diagnosis      `json:"diagnosis"`
	Attempts  int             `json:"attempts"`
}
