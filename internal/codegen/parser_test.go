package codegen

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bizmatters/cad-copilot/internal/models"
)

func TestParse_Structured(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want models.GenerationResult
	}{
		{
			name: "all fields",
			raw:  `{"title":"Add fillet","plan":["find edges","fillet 2mm"],"code":"print(1)","notes":"assumes mm"}`,
			want: models.GenerationResult{Title: "Add fillet", Plan: []string{"find edges", "fillet 2mm"}, Code: "print(1)", Notes: "assumes mm", ParseMode: models.ParseModeStructured},
		},
		{
			name: "missing fields take defaults",
			raw:  `{"code":"x = 1"}`,
			want: models.GenerationResult{Title: "Generated Code", Plan: []string{}, Code: "x = 1", ParseMode: models.ParseModeStructured},
		},
		{
			name: "surrounding whitespace",
			raw:  "\n  {\"title\":\"T\"}  \n",
			want: models.GenerationResult{Title: "T", Plan: []string{}, ParseMode: models.ParseModeStructured},
		},
		{
			name: "mistyped plan falls back to empty",
			raw:  `{"title":"T","plan":"one step"}`,
			want: models.GenerationResult{Title: "T", Plan: []string{}, ParseMode: models.ParseModeStructured},
		},
		{
			name: "single json fence",
			raw:  "```json\n{\"title\":\"Fenced\",\"code\":\"pass\"}\n```",
			want: models.GenerationResult{Title: "Fenced", Plan: []string{}, Code: "pass", ParseMode: models.ParseModeStructured},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Parse(tt.raw))
		})
	}
}

func TestParse_StructuredRoundTrip(t *testing.T) {
	in := map[string]any{
		"title": "Shell body",
		"plan":  []string{"select body", "shell 1.5mm"},
		"code":  "body = design.rootComponent.bRepBodies.item(0)\nprint(body.name)",
		"notes": "inside faces removed",
	}
	raw, err := json.Marshal(in)
	require.NoError(t, err)

	got := Parse(string(raw))

	assert.Equal(t, models.ParseModeStructured, got.ParseMode)
	assert.Equal(t, in["title"], got.Title)
	assert.Equal(t, in["plan"], got.Plan)
	assert.Equal(t, in["code"], got.Code)
	assert.Equal(t, in["notes"], got.Notes)
}

func TestParse_Markdown(t *testing.T) {
	raw := "# Create Bracket\n" +
		"Here is the plan:\n" +
		"- Add parameters\n" +
		"- Sketch profile\n" +
		"```python\n" +
		"import adsk.core\n" +
		"# comment inside code\n" +
		"- not a plan step\n" +
		"```\n" +
		"# Final Title\n" +
		"Notes: none\n"

	got := Parse(raw)

	assert.Equal(t, models.ParseModeMarkdown, got.ParseMode)
	assert.Equal(t, "Final Title", got.Title)
	assert.Equal(t, []string{"Add parameters", "Sketch profile"}, got.Plan)
	assert.Equal(t, "import adsk.core\n# comment inside code\n- not a plan step", got.Code)
	// notes are not recovered from markdown replies
	assert.Empty(t, got.Notes)
	assert.Nil(t, got.Error)
}

func TestParse_MarkdownUnterminatedFence(t *testing.T) {
	got := Parse("Sure!\n```python\nsketch = root.sketches.add(plane)\nsketch.name = 'Base'")

	assert.Equal(t, models.ParseModeMarkdown, got.ParseMode)
	assert.Equal(t, "sketch = root.sketches.add(plane)\nsketch.name = 'Base'", got.Code)
	assert.Equal(t, "Generated Code", got.Title)
}

func TestParse_MarkdownCRLF(t *testing.T) {
	got := Parse("# Title\r\n```\r\nprint(1)\r\n```\r\n")

	assert.Equal(t, "Title", got.Title)
	assert.Equal(t, "print(1)", got.Code)
}

func TestParse_JSONNotObjectFallsBack(t *testing.T) {
	for _, raw := range []string{`"just a string"`, `[1, 2]`, `null`, `42`} {
		got := Parse(raw)
		assert.Equal(t, models.ParseModePlaintext, got.ParseMode, raw)
	}
}

func TestParse_Plaintext(t *testing.T) {
	got := Parse("I cannot help with that request.")

	assert.Equal(t, models.GenerationResult{
		Title:     "Generated Code",
		Plan:      []string{},
		ParseMode: models.ParseModePlaintext,
	}, got)
}

func TestParse_Total(t *testing.T) {
	inputs := []string{"", "```", "{", "# ", "- ", "{\"title\":", "\x00\xff", "```json\n{bad}\n```"}
	for _, raw := range inputs {
		assert.NotPanics(t, func() {
			got := Parse(raw)
			assert.NotNil(t, got.Plan)
			assert.NotEmpty(t, got.ParseMode)
		}, raw)
	}
}
