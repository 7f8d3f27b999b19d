package models

// Tool is one entry of a CAM tool library
type Tool struct {
	Name     string  `json:"name"`
	Type     string  `json:"type"`
	Diameter float64 `json:"diameter"`
	Flutes   int     `json:"flutes"`
	Material string  `json:"material"`
}

// ProjectFiles lists project files by category, relative to the project root
type ProjectFiles struct {
	Geometry      []string `json:"geometry"`
	Documentation []string `json:"documentation"`
	Images        []string `json:"images"`
	ToolLibraries []string `json:"tool_libraries"`
}

// GeometryMetadata is the file-level metadata of a geometry file
type GeometryMetadata struct {
	FileName   string  `json:"file_name"`
	FileSizeMB float64 `json:"file_size_mb"`
	Extension  string  `json:"extension"`
}
