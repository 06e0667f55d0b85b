package internal

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/lychee-technology/widgets"
)

// parseSchemaDocument checks a form schema document with jsonschema-go and converts it
// into the widgets.JSONSchema structure.
func parseSchemaDocument(name string, data []byte) (widgets.JSONSchema, error) {
	var checked jsonschema.Schema
	if err := json.Unmarshal(data, &checked); err != nil {
		return widgets.JSONSchema{}, fmt.Errorf("failed to unmarshal into jsonschema.Schema: %w", err)
	}
	if _, err := checked.Resolve(&jsonschema.ResolveOptions{}); err != nil {
		return widgets.JSONSchema{}, fmt.Errorf("failed to resolve JSON schema: %w", err)
	}

	var rawSchema map[string]any
	if err := json.Unmarshal(data, &rawSchema); err != nil {
		return widgets.JSONSchema{}, fmt.Errorf("failed to unmarshal JSON schema: %w", err)
	}

	doc := widgets.JSONSchema{
		Name:       name,
		Schema:     string(data),
		Properties: make(map[string]*widgets.PropertySchema),
	}
	if title, ok := rawSchema["title"].(string); ok {
		doc.Title = title
	}
	if version, ok := rawSchema["x-version"].(string); ok {
		doc.Version = version
	}
	doc.Required = stringList(rawSchema["required"])

	defs := make(map[string]any)
	if d, ok := rawSchema["$defs"].(map[string]any); ok {
		defs = d
	}
	if properties, ok := rawSchema["properties"].(map[string]any); ok {
		for propName, propValue := range properties {
			if propMap, ok := propValue.(map[string]any); ok {
				doc.Properties[propName] = parsePropertySchema(propName, propMap, defs, doc.Required)
			}
		}
	}

	return doc, nil
}

// parsePropertySchema parses a single property from JSON Schema
func parsePropertySchema(name string, prop map[string]any, defs map[string]any, requiredFields []string) *widgets.PropertySchema {
	if ref, ok := prop["$ref"].(string); ok {
		if resolved := resolveRef(ref, defs); resolved != nil {
			merged := make(map[string]any, len(resolved)+len(prop))
			for k, v := range resolved {
				merged[k] = v
			}
			for k, v := range prop {
				if k != "$ref" {
					merged[k] = v
				}
			}
			prop = merged
		}
	}

	schema := &widgets.PropertySchema{
		Name: name,
	}

	for _, r := range requiredFields {
		if r == name {
			schema.Required = true
			break
		}
	}

	if t, ok := prop["type"].(string); ok {
		schema.Type = t
	}
	if f, ok := prop["format"].(string); ok {
		schema.Format = f
	}
	if t, ok := prop["title"].(string); ok {
		schema.Title = t
	}
	if e, ok := prop["enum"].([]any); ok {
		schema.Enum = e
	}
	if xt, ok := prop["x-xform-type"].(string); ok {
		schema.XFormType = xt
	}

	// x-label is either a plain label or a language -> label object
	switch label := prop["x-label"].(type) {
	case string:
		schema.Title = label
	case map[string]any:
		schema.Labels = stringMap(label)
	}

	if choices, ok := prop["x-choices"].([]any); ok {
		schema.Choices = parseChoices(choices)
	}

	if items, ok := prop["items"].(map[string]any); ok {
		schema.Items = parsePropertySchema("", items, defs, nil)
	}

	if nestedProps, ok := prop["properties"].(map[string]any); ok {
		schema.Properties = make(map[string]*widgets.PropertySchema)
		nestedRequired := stringList(prop["required"])
		for nestedName, nestedValue := range nestedProps {
			if nestedMap, ok := nestedValue.(map[string]any); ok {
				schema.Properties[nestedName] = parsePropertySchema(nestedName, nestedMap, defs, nestedRequired)
			}
		}
	}

	return schema
}

// resolveRef resolves a JSON Schema $ref reference
func resolveRef(ref string, defs map[string]any) map[string]any {
	if len(ref) > 8 && ref[:8] == "#/$defs/" {
		defName := ref[8:]
		if def, ok := defs[defName].(map[string]any); ok {
			return def
		}
	}
	return nil
}

func parseChoices(raw []any) []widgets.Choice {
	choices := make([]widgets.Choice, 0, len(raw))
	for _, item := range raw {
		m, ok := item.(map[string]any)
		if !ok {
			continue
		}
		name, _ := m["name"].(string)
		if name == "" {
			continue
		}
		choice := widgets.Choice{Name: name}
		switch label := m["label"].(type) {
		case string:
			choice.Label = label
		case map[string]any:
			choice.Labels = stringMap(label)
		}
		choices = append(choices, choice)
	}
	return choices
}

func stringList(v any) []string {
	raw, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, r := range raw {
		if s, ok := r.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

func stringMap(m map[string]any) map[string]string {
	out := make(map[string]string, len(m))
	for k, v := range m {
		if s, ok := v.(string); ok {
			out[k] = s
		}
	}
	return out
}

func sortedPropertyNames(props map[string]*widgets.PropertySchema) []string {
	names := make([]string, 0, len(props))
	for name := range props {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
