// Package codegen turns a user request plus document context into a
// generation prompt, and the generation service's reply into a result.
package codegen

import (
	"bytes"
	"fmt"
	"strings"
	"text/template"
	"unicode/utf8"

	"github.com/bizmatters/cad-copilot/internal/models"
)

// DefaultMaxParameters is how many parameters and components the rendered
// context lists before summarising the rest.
const DefaultMaxParameters = 5

const systemInstructions = `You are an expert CAD automation assistant that writes Python scripts against the Fusion 360 API.

Follow these rules:
1. Generate runnable code for the user's request using only valid API calls.
2. Prefer parametric design: drive dimensions from user parameters, creating them when missing.
3. Give every feature, sketch and body a descriptive name so later requests can find it.
4. Check every object returned by the API for None before using it and fail with a clear message.
5. Be idempotent where reasonable and do not duplicate existing features.
6. When editing existing geometry, read the current parameters and feature names first and leave unrelated geometry unchanged.
7. The names app, doc, design and adsk are already bound; do not create a new document.`

const schemaDirective = `Respond with a single JSON object and nothing else:
{
  "title": "Brief task name",
  "plan": ["Step 1", "Step 2"],
  "code": "Python code",
  "notes": "Assumptions and possible variations"
}`

var promptTemplate = template.Must(template.New("prompt").Parse(`{{.System}}

## Current CAD Context:
{{.Context}}

## User Request:
{{.UserMessage}}

## Expected Output Format:
{{.Schema}}
`))

// Message is one chat message sent to a generation backend
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Task says what a payload asks the generation service for
type Task string

const (
	TaskGenerate Task = "generate"
	TaskExplain  Task = "explain"
)

// Payload is the assembled request for the generation service
type Payload struct {
	Task        Task
	System      string
	Context     string
	UserMessage string
	Schema      string
	// Dropped lists the context sections removed to fit the budget, in order
	Dropped []string
	// Code is the script under explanation for TaskExplain
	Code string
}

// Text renders the payload as a single prompt
func (p Payload) Text() string {
	tmpl := promptTemplate
	if p.Task == TaskExplain {
		tmpl = explainTemplate
	}
	var buf bytes.Buffer
	// The templates only reference string fields, so Execute cannot fail.
	_ = tmpl.Execute(&buf, p)
	return buf.String()
}

// Messages renders the payload as a system and a user chat message
func (p Payload) Messages() []Message {
	user := strings.TrimPrefix(p.Text(), p.System)
	return []Message{
		{Role: "system", Content: p.System},
		{Role: "user", Content: strings.TrimSpace(user)},
	}
}

// AssemblerOptions bound the rendered context
type AssemblerOptions struct {
	// MaxParameters caps listed parameters and components; <= 0 uses the default
	MaxParameters int
	// MaxContextChars bounds the rendered context; <= 0 means unbounded
	MaxContextChars int
}

// Assembler builds prompts. It holds no state beyond its options, so one
// value may be shared between goroutines.
type Assembler struct {
	opts AssemblerOptions
}

// NewAssembler creates an assembler
func NewAssembler(opts AssemblerOptions) *Assembler {
	if opts.MaxParameters <= 0 {
		opts.MaxParameters = DefaultMaxParameters
	}
	return &Assembler{opts: opts}
}

// Section names, listed in the order they are dropped to fit the budget.
// Document identity is never dropped, only shortened.
const (
	SectionComponents = "components"
	SectionParameters = "parameters"
	SectionSelection  = "selection"
	SectionUnits      = "units"
	SectionDocument   = "document"
)

var dropOrder = []string{SectionComponents, SectionParameters, SectionSelection, SectionUnits}

// Build assembles the payload for one request
func (a *Assembler) Build(userMessage string, snap models.ContextSnapshot) Payload {
	sections := a.renderSections(snap)

	var dropped []string
	rendered := joinSections(sections)
	if budget := a.opts.MaxContextChars; budget > 0 {
		for _, name := range dropOrder {
			if len(rendered) <= budget {
				break
			}
			if sections[name] == "" {
				continue
			}
			delete(sections, name)
			dropped = append(dropped, name)
			rendered = joinSections(sections)
		}
		if len(rendered) > budget {
			rendered = truncate(rendered, budget)
			dropped = append(dropped, SectionDocument)
		}
	}

	return Payload{
		Task:        TaskGenerate,
		System:      systemInstructions,
		Context:     rendered,
		UserMessage: userMessage,
		Schema:      schemaDirective,
		Dropped:     dropped,
	}
}

// renderSections renders each non-empty part of the snapshot.
// Empty sections are absent from the map.
func (a *Assembler) renderSections(snap models.ContextSnapshot) map[string]string {
	sections := make(map[string]string)

	if snap.Document == nil {
		sections[SectionDocument] = models.NoActiveDocument
		return sections
	}

	doc := snap.Document
	var lines []string
	lines = append(lines, "Document: "+doc.Name)
	if doc.Path != "" {
		lines = append(lines, "Path: "+doc.Path)
	}
	if doc.RootComponentName != "" {
		lines = append(lines, "Root component: "+doc.RootComponentName)
	}
	if !doc.Saved {
		lines = append(lines, "Unsaved changes: yes")
	}
	sections[SectionDocument] = strings.Join(lines, "\n")

	var env []string
	if snap.Units != "" {
		env = append(env, "Units: "+snap.Units)
	}
	if snap.Workspace != "" {
		env = append(env, "Workspace: "+snap.Workspace)
	}
	if len(env) > 0 {
		sections[SectionUnits] = strings.Join(env, "\n")
	}

	if snap.Selection.Count > 0 {
		types := make([]string, 0, len(snap.Selection.Entities))
		seen := make(map[string]bool)
		for _, e := range snap.Selection.Entities {
			if e.Type != "" && !seen[e.Type] {
				seen[e.Type] = true
				types = append(types, e.Type)
			}
		}
		line := fmt.Sprintf("Selection: %d entities selected", snap.Selection.Count)
		if len(types) > 0 {
			line += " (" + strings.Join(types, ", ") + ")"
		}
		sections[SectionSelection] = line
	}

	if n := len(snap.Parameters); n > 0 {
		lines := []string{fmt.Sprintf("User Parameters: %d defined", n)}
		for i, p := range snap.Parameters {
			if i == a.opts.MaxParameters {
				lines = append(lines, fmt.Sprintf("  ... and %d more", n-i))
				break
			}
			value := p.Value
			if p.Unit != "" {
				value += " " + p.Unit
			}
			lines = append(lines, fmt.Sprintf("  - %s: %s", p.Name, value))
		}
		sections[SectionParameters] = strings.Join(lines, "\n")
	}

	if n := len(snap.Components); n > 0 {
		lines := []string{fmt.Sprintf("Components: %d top-level components", n)}
		for i, c := range snap.Components {
			if i == a.opts.MaxParameters {
				lines = append(lines, fmt.Sprintf("  ... and %d more", n-i))
				break
			}
			lines = append(lines, fmt.Sprintf("  - %s (%d occurrences)", c.Name, c.OccurrenceCount))
		}
		sections[SectionComponents] = strings.Join(lines, "\n")
	}

	return sections
}

var renderOrder = []string{SectionDocument, SectionUnits, SectionSelection, SectionParameters, SectionComponents}

func joinSections(sections map[string]string) string {
	var parts []string
	for _, name := range renderOrder {
		if s := sections[name]; s != "" {
			parts = append(parts, s)
		}
	}
	if len(parts) == 0 {
		return "No context available"
	}
	return strings.Join(parts, "\n")
}

// truncate cuts s to at most n bytes without splitting a UTF-8 sequence
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	cut := n
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}
