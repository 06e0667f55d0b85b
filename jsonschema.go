package widgets

// JSONSchema represents a form schema document.
type JSONSchema struct {
	Name       string                     `json:"name"`
	Title      string                     `json:"title"`
	Version    string                     `json:"version"`
	Schema     string                     `json:"schema"`
	Properties map[string]*PropertySchema `json:"properties"`
	Required   []string                   `json:"required"`
}

// PropertySchema defines the schema for a single question or group.
type PropertySchema struct {
	Name       string                     `json:"name"`
	Type       string                     `json:"type"` // "string", "integer", "number", "boolean", "array", "object"
	Format     string                     `json:"format,omitempty"`
	Title      string                     `json:"title,omitempty"`
	Items      *PropertySchema            `json:"items,omitempty"`
	Properties map[string]*PropertySchema `json:"properties,omitempty"`
	Required   bool                       `json:"required"`
	Enum       []any                      `json:"enum,omitempty"`

	// XFormType overrides the question type derived from Type and Format (x-xform-type).
	XFormType string `json:"x-xform-type,omitempty"`
	// Labels holds per-language labels (x-label given as an object).
	Labels map[string]string `json:"x-label-languages,omitempty"`
	// Choices carries labelled options of select questions (x-choices).
	Choices []Choice `json:"x-choices,omitempty"`
}
