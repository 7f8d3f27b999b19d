// Package diagnostics classifies execution failures and suggests fixes.
package diagnostics

import (
	"regexp"
	"unicode/utf8"

	"github.com/bizmatters/cad-copilot/internal/models"
)

// Fix texts. Callers and the UI match on these, so they are part of the contract.
const (
	FixVerifyExistence = "verify object existence before access"
	FixNullGuard       = "add explicit null guard before the failing call"
	FixMemberName      = "confirm the API member name and owning type"
	FixArgumentTypes   = "confirm argument types against the API signature"
	FixInspectTrace    = "inspect the full stack trace"
)

// summaryLimit caps the error excerpt quoted in an unknown diagnosis
const summaryLimit = 100

type rule struct {
	category models.DiagnosisCategory
	pattern  *regexp.Regexp
	summary  string
	fixes    []string
}

// rules are checked in order; the first match wins
var rules = []rule{
	{
		category: models.CategoryNullReference,
		pattern:  regexp.MustCompile(`NoneType|\bNone\b|\bnull\b|nil pointer|NullReference`),
		summary:  "Likely accessing a null object. Check that the document, component or feature exists.",
		fixes:    []string{FixVerifyExistence, FixNullGuard},
	},
	{
		category: models.CategoryMissingAttribute,
		pattern:  regexp.MustCompile(`AttributeError|has no attribute|has no member`),
		summary:  "The API attribute or method does not exist on this object.",
		fixes:    []string{FixMemberName},
	},
	{
		category: models.CategoryTypeMismatch,
		pattern:  regexp.MustCompile(`TypeError|incompatible type|wrong type`),
		summary:  "A value of the wrong type was passed to the API.",
		fixes:    []string{FixArgumentTypes},
	},
}

// Engine classifies failures. It is stateless, so Analyze is idempotent and
// safe for concurrent use.
type Engine struct{}

// NewEngine creates a diagnostics engine
func NewEngine() *Engine {
	return &Engine{}
}

// Analyze classifies errorText. code is accepted for future repair support;
// CorrectedCode is always nil.
func (e *Engine) Analyze(errorText, code string) models.Diagnosis {
	for _, r := range rules {
		if r.pattern.MatchString(errorText) {
			return models.Diagnosis{
				Category:    r.category,
				Summary:     r.summary,
				LikelyFixes: append([]string(nil), r.fixes...),
			}
		}
	}
	return models.Diagnosis{
		Category:    models.CategoryUnknown,
		Summary:     "Error: " + excerpt(errorText, summaryLimit),
		LikelyFixes: []string{FixInspectTrace},
	}
}

func excerpt(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	runes := []rune(s)
	return string(runes[:n])
}
