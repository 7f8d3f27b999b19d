package codegen

import (
	"encoding/json"
	"regexp"
	"strings"

	"github.com/bizmatters/cad-copilot/internal/models"
)

// jsonFencePattern matches a reply that is nothing but one ```json block holding an object
var jsonFencePattern = regexp.MustCompile("(?s)^```json[ \t]*\\r?\\n(\\{.*\\})\\s*```$")

// Parse decodes a generation reply. It never fails: replies that are not
// JSON fall back to markdown scanning, and replies with no recognisable
// markdown become a plaintext result with defaults.
func Parse(raw string) models.GenerationResult {
	trimmed := strings.TrimSpace(raw)

	if res, ok := parseStructured(trimmed); ok {
		return res
	}
	if m := jsonFencePattern.FindStringSubmatch(trimmed); m != nil {
		if res, ok := parseStructured(m[1]); ok {
			return res
		}
	}
	return parseMarkdown(raw)
}

// parseStructured accepts a JSON object. Missing or mistyped fields take
// their defaults rather than rejecting the reply.
func parseStructured(text string) (models.GenerationResult, bool) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal([]byte(text), &fields); err != nil || fields == nil {
		return models.GenerationResult{}, false
	}

	res := models.GenerationResult{
		Title:     models.DefaultTitle,
		Plan:      []string{},
		ParseMode: models.ParseModeStructured,
	}

	var title string
	if raw, ok := fields["title"]; ok && json.Unmarshal(raw, &title) == nil {
		res.Title = title
	}
	var plan []string
	if raw, ok := fields["plan"]; ok && json.Unmarshal(raw, &plan) == nil && plan != nil {
		res.Plan = plan
	}
	var code string
	if raw, ok := fields["code"]; ok && json.Unmarshal(raw, &code) == nil {
		res.Code = code
	}
	var notes string
	if raw, ok := fields["notes"]; ok && json.Unmarshal(raw, &notes) == nil {
		res.Notes = notes
	}
	return res, true
}

// parseMarkdown scans line by line. A line starting with a triple backtick
// toggles the code fence; outside a fence "# " sets the title (last one
// wins) and "- " adds a plan step. An unterminated fence keeps what it
// collected. Notes are not extracted from markdown.
func parseMarkdown(text string) models.GenerationResult {
	res := models.GenerationResult{
		Title: models.DefaultTitle,
		Plan:  []string{},
	}

	var code []string
	inFence, matched := false, false

	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSuffix(line, "\r")
		switch {
		case strings.HasPrefix(line, "```"):
			inFence = !inFence
			matched = true
		case inFence:
			code = append(code, line)
		case strings.HasPrefix(line, "# "):
			res.Title = strings.TrimSpace(line[2:])
			matched = true
		case strings.HasPrefix(line, "- "):
			res.Plan = append(res.Plan, strings.TrimSpace(line[2:]))
			matched = true
		}
	}

	if !matched {
		res.ParseMode = models.ParseModePlaintext
		return res
	}
	res.Code = strings.Join(code, "\n")
	res.ParseMode = models.ParseModeMarkdown
	return res
}
