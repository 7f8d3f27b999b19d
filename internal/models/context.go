package models

// DefaultUnits is reported when the document's unit system cannot be read.
const DefaultUnits = "mm"

// DefaultWorkspace is reported when the active workspace cannot be read.
const DefaultWorkspace = "Design"

// NoActiveDocument is the capture and execution error used when no document is open.
const NoActiveDocument = "No active document"

// ContextSnapshot is a point-in-time view of the active CAD document.
// Slices and FieldErrors are never nil so the JSON form always carries every key.
type ContextSnapshot struct {
	Document     *DocumentInfo     `json:"document"`
	Selection    SelectionInfo     `json:"selection"`
	Parameters   []Parameter       `json:"parameters"`
	Components   []ComponentInfo   `json:"components"`
	Units        string            `json:"units"`
	Workspace    string            `json:"workspace"`
	CaptureError *string           `json:"capture_error"`
	FieldErrors  map[string]string `json:"field_errors"`
}

// DocumentInfo identifies the active document
type DocumentInfo struct {
	Name              string `json:"name"`
	Path              string `json:"path"`
	Saved             bool   `json:"saved"`
	RootComponentName string `json:"root_component_name"`
}

// SelectionInfo describes the current user selection
type SelectionInfo struct {
	Count    int              `json:"count"`
	Entities []SelectedEntity `json:"entities"`
}

// SelectedEntity is one selected object
type SelectedEntity struct {
	Type  string `json:"type"`
	Index int    `json:"index"`
}

// Parameter is a user parameter of the design
type Parameter struct {
	Name  string `json:"name"`
	Value string `json:"value"`
	Unit  string `json:"unit"`
}

// ComponentInfo describes a component of the design
type ComponentInfo struct {
	Name            string `json:"name"`
	OccurrenceCount int    `json:"occurrence_count"`
}

// EmptySnapshot returns the canonical snapshot for "nothing could be read".
func EmptySnapshot() ContextSnapshot {
	return ContextSnapshot{
		Selection:   SelectionInfo{Entities: []SelectedEntity{}},
		Parameters:  []Parameter{},
		Components:  []ComponentInfo{},
		Units:       DefaultUnits,
		Workspace:   DefaultWorkspace,
		FieldErrors: map[string]string{},
	}
}

// HasDocument reports whether the snapshot was taken against an open document.
func (s ContextSnapshot) HasDocument() bool {
	return s.Document != nil
}
