package internal

import (
	"fmt"

	"github.com/lychee-technology/widgets"
)

// metadataHeaders are the pipeline columns every submission export carries.
var metadataHeaders = []string{
	"_id",
	"_uuid",
	widgets.SubmissionTime,
	"_tags",
	"_notes",
	"_version",
	"_duration",
	"_submitted_by",
	"_total_media",
	"_media_count",
	"_media_all_received",
}

// dataDictionary is the flattened view of a form schema document.
type dataDictionary struct {
	name      string
	fields    []*widgets.SchemaField
	byName    map[string]*widgets.SchemaField
	byXPath   map[string]*widgets.SchemaField
	headers   []string
	headerSet map[string]struct{}
}

// newDataDictionary flattens doc into fields and export headers.
func newDataDictionary(doc widgets.JSONSchema) *dataDictionary {
	dd := &dataDictionary{
		name:      doc.Name,
		byName:    make(map[string]*widgets.SchemaField),
		byXPath:   make(map[string]*widgets.SchemaField),
		headerSet: make(map[string]struct{}),
	}

	for _, name := range sortedPropertyNames(doc.Properties) {
		dd.addProperty(doc.Properties[name], "")
	}
	for _, h := range metadataHeaders {
		dd.addHeader(h)
	}

	return dd
}

func (dd *dataDictionary) addProperty(prop *widgets.PropertySchema, parentXPath string) *widgets.SchemaField {
	xpath := prop.Name
	if parentXPath != "" {
		xpath = parentXPath + "/" + prop.Name
	}

	field := &widgets.SchemaField{
		FieldName:   prop.Name,
		XPath:       xpath,
		FieldType:   questionType(prop),
		FieldLabel:  prop.Title,
		Labels:      prop.Labels,
		Required:    prop.Required,
		ParentXPath: parentXPath,
		Choices:     questionChoices(prop),
	}

	dd.fields = append(dd.fields, field)
	if _, exists := dd.byName[field.FieldName]; !exists {
		dd.byName[field.FieldName] = field
	}
	dd.byXPath[field.XPath] = field

	switch field.FieldType {
	case widgets.FieldTypeGroup:
		for _, name := range sortedPropertyNames(prop.Properties) {
			field.Children = append(field.Children, dd.addProperty(prop.Properties[name], xpath))
		}
	case widgets.FieldTypeRepeat:
		if prop.Items != nil {
			for _, name := range sortedPropertyNames(prop.Items.Properties) {
				field.Children = append(field.Children, dd.addProperty(prop.Items.Properties[name], xpath))
			}
		}
	case widgets.FieldTypeSelectMultiple:
		dd.addHeader(xpath)
		for _, choice := range field.Choices {
			dd.addHeader(xpath + "/" + choice.Name)
		}
	default:
		dd.addHeader(xpath)
	}

	return field
}

func (dd *dataDictionary) addHeader(h string) {
	if _, exists := dd.headerSet[h]; exists {
		return
	}
	dd.headerSet[h] = struct{}{}
	dd.headers = append(dd.headers, h)
}

// questionType derives the question type from the JSON Schema property.
func questionType(prop *widgets.PropertySchema) string {
	if prop.XFormType != "" {
		return prop.XFormType
	}

	switch prop.Type {
	case "object":
		return widgets.FieldTypeGroup
	case "array":
		if prop.Items != nil {
			if prop.Items.Type == "object" || len(prop.Items.Properties) > 0 {
				return widgets.FieldTypeRepeat
			}
			if len(prop.Items.Enum) > 0 || len(prop.Items.Choices) > 0 || len(prop.Choices) > 0 {
				return widgets.FieldTypeSelectMultiple
			}
		}
		return widgets.FieldTypeText
	case "integer":
		return widgets.FieldTypeInteger
	case "number":
		return widgets.FieldTypeDecimal
	case "boolean":
		return "acknowledge"
	case "string":
		if len(prop.Enum) > 0 || len(prop.Choices) > 0 {
			return widgets.FieldTypeSelectOne
		}
		switch prop.Format {
		case "date":
			return widgets.FieldTypeDate
		case "date-time":
			return widgets.FieldTypeDateTime
		case "time":
			return "time"
		}
		return widgets.FieldTypeText
	default:
		if len(prop.Properties) > 0 {
			return widgets.FieldTypeGroup
		}
		return widgets.FieldTypeText
	}
}

// questionChoices returns labelled choices, falling back to bare enum values.
func questionChoices(prop *widgets.PropertySchema) []widgets.Choice {
	if len(prop.Choices) > 0 {
		return prop.Choices
	}
	if prop.Items != nil && len(prop.Items.Choices) > 0 {
		return prop.Items.Choices
	}

	enum := prop.Enum
	if len(enum) == 0 && prop.Items != nil {
		enum = prop.Items.Enum
	}
	if len(enum) == 0 {
		return nil
	}
	choices := make([]widgets.Choice, 0, len(enum))
	for _, v := range enum {
		choices = append(choices, widgets.Choice{Name: fmt.Sprint(v)})
	}
	return choices
}

func (dd *dataDictionary) Headers() []string {
	out := make([]string, len(dd.headers))
	copy(out, dd.headers)
	return out
}

func (dd *dataDictionary) HasHeader(column string) bool {
	_, ok := dd.headerSet[column]
	return ok
}

func (dd *dataDictionary) FieldByName(name string) (*widgets.SchemaField, bool) {
	if f, ok := dd.byName[name]; ok {
		return f, true
	}
	f, ok := dd.byXPath[name]
	return f, ok
}

func (dd *dataDictionary) Fields() []*widgets.SchemaField {
	out := make([]*widgets.SchemaField, len(dd.fields))
	copy(out, dd.fields)
	return out
}

// LoadDataDictionary parses a form schema document outside the registry, e.g. to check
// a document before publishing it.
func LoadDataDictionary(name string, data []byte) (widgets.DataDictionary, error) {
	doc, err := parseSchemaDocument(name, data)
	if err != nil {
		return nil, widgets.NewSchemaInvalidError(name, err)
	}
	return newDataDictionary(doc), nil
}
