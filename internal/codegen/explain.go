package codegen

import (
	"fmt"
	"strings"
	"text/template"
)

const explainInstructions = `You are an expert CAD automation assistant reviewing a Python script written against the Fusion 360 API.
Explain what the script does to the active design in a few short paragraphs: the features it creates or edits, the parameters it depends on, and anything that could fail at run time.`

var explainTemplate = template.Must(template.New("explain").Parse(`{{.System}}

## Code:
{{.Context}}

## User Request:
{{.UserMessage}}
`))

const explainRequest = "Explain what this code does."

// ExplainPayload builds the request asking the generation service to explain code
func ExplainPayload(code string) Payload {
	return Payload{
		Task:        TaskExplain,
		System:      explainInstructions,
		Context:     "```python\n" + strings.TrimRight(code, "\n") + "\n```",
		UserMessage: explainRequest,
		Code:        code,
	}
}

// Outline summarises a script without a model: its leading comments and the
// functions it defines. It backs explanations when no model is configured.
func Outline(code string) string {
	var comments, funcs []string
	for _, line := range strings.Split(code, "\n") {
		trimmed := strings.TrimSpace(line)
		switch {
		case strings.HasPrefix(trimmed, "#"):
			if text := strings.TrimSpace(strings.TrimLeft(trimmed, "#")); text != "" {
				comments = append(comments, text)
			}
		case strings.HasPrefix(trimmed, "def "):
			name := strings.TrimPrefix(trimmed, "def ")
			if i := strings.IndexByte(name, '('); i > 0 {
				name = name[:i]
			}
			funcs = append(funcs, name)
		}
	}

	var b strings.Builder
	lines := strings.Count(strings.TrimRight(code, "\n"), "\n") + 1
	if strings.TrimSpace(code) == "" {
		lines = 0
	}
	fmt.Fprintf(&b, "The script has %d lines", lines)
	if len(funcs) > 0 {
		fmt.Fprintf(&b, " and defines %s", strings.Join(funcs, ", "))
	}
	b.WriteString(".")
	for _, c := range comments {
		b.WriteString("\n- " + c)
	}
	return b.String()
}
