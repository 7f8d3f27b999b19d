package codegen

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bizmatters/cad-copilot/internal/models"
)

func TestPatch_ApplyRestoresModified(t *testing.T) {
	original := "sketch = root.sketches.add(root.xYConstructionPlane)\nprofile = sketch.profiles.item(0)\n"
	modified := "sketch = root.sketches.add(root.xYConstructionPlane)\nif sketch.profiles.count == 0:\n    raise RuntimeError('empty sketch')\nprofile = sketch.profiles.item(0)\n"

	patch := Patch(original, modified)
	require.NotEmpty(t, patch)

	got, err := ApplyPatch(original, patch)
	require.NoError(t, err)
	assert.Equal(t, modified, got)
}

func TestPatch_Identical(t *testing.T) {
	assert.Empty(t, Patch("a = 1", "a = 1"))

	got, err := ApplyPatch("a = 1", "")
	require.NoError(t, err)
	assert.Equal(t, "a = 1", got)
}

func TestApplyPatch_Malformed(t *testing.T) {
	_, err := ApplyPatch("a = 1", "@@ not a patch")
	assert.Error(t, err)
}

func TestDiffStats(t *testing.T) {
	add, del := DiffStats("width = 10", "width = 12.5")
	assert.Greater(t, add, 0)
	assert.Greater(t, del, 0)
}

func TestTemplates(t *testing.T) {
	for _, tmpl := range Templates() {
		t.Run(tmpl.Key, func(t *testing.T) {
			assert.NotEmpty(t, tmpl.Code())

			res := Parse(tmpl.Reply())
			assert.Equal(t, models.ParseModeStructured, res.ParseMode)
			assert.Equal(t, tmpl.Title, res.Title)
			assert.Equal(t, tmpl.Plan, res.Plan)
			assert.Equal(t, tmpl.Code(), res.Code)
		})
	}
}

func TestMatchTemplate(t *testing.T) {
	tests := []struct {
		msg  string
		want string
	}{
		{"Create a 3-axis setup for face milling", "cam_setup"},
		{"Make a drawing with top, front and side views", "drawing_generation"},
		{"parametric bracket with width and height", "parametric_bracket"},
		{"something unrelated", "parametric_bracket"},
	}
	for _, tt := range tests {
		t.Run(tt.msg, func(t *testing.T) {
			assert.Equal(t, tt.want, MatchTemplate(tt.msg).Key)
		})
	}
}
