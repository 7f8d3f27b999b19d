package codegen

import (
	"embed"
	"encoding/json"
	"strings"
)

//go:embed templates/*.py
var templateFS embed.FS

// Template is a canned script served when no generation backend is reachable
type Template struct {
	Key      string
	Title    string
	Plan     []string
	Notes    string
	Keywords []string
}

var templates = []Template{
	{
		Key:   "parametric_bracket",
		Title: "Parametric Bracket",
		Plan: []string{
			"Create BracketWidth, BracketHeight and BracketThickness user parameters",
			"Sketch the bracket profile on the XY plane",
			"Extrude the profile by BracketThickness as a new body",
		},
		Notes:    "Offline template. Edit the user parameters to resize the bracket.",
		Keywords: []string{"bracket", "parametric", "plate", "extrude"},
	},
	{
		Key:   "cam_setup",
		Title: "CAM Setup",
		Plan: []string{
			"Open the manufacturing product of the document",
			"Create a milling setup named Face Mill Setup",
			"Assign the design bodies as setup models",
		},
		Notes:    "Offline template. Stock and WCS keep their defaults.",
		Keywords: []string{"cam", "setup", "mill", "milling", "toolpath", "machining"},
	},
	{
		Key:   "drawing_generation",
		Title: "Drawing Generation",
		Plan: []string{
			"Create a drawing document",
			"Open its first sheet",
		},
		Notes:    "Offline template. Views are not placed automatically.",
		Keywords: []string{"drawing", "sheet", "view", "views", "blueprint"},
	},
}

// Templates lists the offline templates
func Templates() []Template {
	return templates
}

// Code returns the template's script
func (t Template) Code() string {
	b, err := templateFS.ReadFile("templates/" + t.Key + ".py")
	if err != nil {
		return ""
	}
	return string(b)
}

// Reply renders the template as a structured generation reply
func (t Template) Reply() string {
	b, _ := json.Marshal(map[string]any{
		"title": t.Title,
		"plan":  t.Plan,
		"code":  t.Code(),
		"notes": t.Notes,
	})
	return string(b)
}

// MatchTemplate picks the template whose keywords best match the request.
// The bracket template wins ties and requests that match nothing.
func MatchTemplate(userMessage string) Template {
	words := strings.FieldsFunc(strings.ToLower(userMessage), func(r rune) bool {
		return !(r >= 'a' && r <= 'z' || r >= '0' && r <= '9')
	})

	best, bestScore := templates[0], 0
	for _, t := range templates {
		score := 0
		for _, w := range words {
			for _, k := range t.Keywords {
				if w == k {
					score++
				}
			}
		}
		if score > bestScore {
			best, bestScore = t, score
		}
	}
	return best
}
