package widgets

import (
	"sort"
)

// FieldType values used by the form schema.
const (
	FieldTypeText           = "text"
	FieldTypeInteger        = "integer"
	FieldTypeDecimal        = "decimal"
	FieldTypeDate           = "date"
	FieldTypeDateTime       = "datetime"
	FieldTypeStart          = "start"
	FieldTypeEnd            = "end"
	FieldTypeSelectOne      = "select one"
	FieldTypeSelectMultiple = "select all that apply"
	FieldTypeGroup          = "group"
	FieldTypeRepeat         = "repeat"
	FieldTypeCalculate      = "calculate"
	FieldTypeGeopoint       = "geopoint"
)

// Data types reported to chart renderers.
const (
	DataTypeNumeric     = "numeric"
	DataTypeTimeBased   = "time_based"
	DataTypeCategorized = "categorized"
)

// DataTypeMap maps schema field types to the coarser display category.
var DataTypeMap = map[string]string{
	FieldTypeInteger:  DataTypeNumeric,
	FieldTypeDecimal:  DataTypeNumeric,
	FieldTypeDateTime: DataTypeTimeBased,
	FieldTypeDate:     DataTypeTimeBased,
	FieldTypeStart:    DataTypeTimeBased,
	FieldTypeEnd:      DataTypeTimeBased,
}

// DataTypeFor returns the display category for a field type.
func DataTypeFor(fieldType string) string {
	if dt, ok := DataTypeMap[fieldType]; ok {
		return dt
	}
	return DataTypeCategorized
}

// IsNumericType reports whether answers of this type aggregate as numbers.
func IsNumericType(fieldType string) bool {
	return fieldType == FieldTypeInteger || fieldType == FieldTypeDecimal
}

// FieldOrigin tells where a field descriptor came from.
type FieldOrigin string

const (
	FieldOriginSchema    FieldOrigin = "schema"
	FieldOriginSynthetic FieldOrigin = "synthetic"
)

// FieldDescriptor is the uniform view over schema fields and synthetic metadata fields.
type FieldDescriptor interface {
	Name() string
	Type() string
	AbbreviatedXPath() string
	Label() string
	Origin() FieldOrigin
}

// Choice is one option of a select question.
type Choice struct {
	Name   string            `json:"name"`
	Label  string            `json:"label,omitempty"`
	Labels map[string]string `json:"labels,omitempty"`
}

// DisplayLabel returns the choice label, falling back to its name.
func (c Choice) DisplayLabel(languageIndex int) string {
	if label := pickLanguage(c.Labels, languageIndex); label != "" {
		return label
	}
	if c.Label != "" {
		return c.Label
	}
	return c.Name
}

// SchemaField is a question declared in a form schema.
type SchemaField struct {
	FieldName   string
	XPath       string
	FieldType   string
	FieldLabel  string
	Labels      map[string]string
	Choices     []Choice
	Children    []*SchemaField
	Required    bool
	ParentXPath string
}

func (f *SchemaField) Name() string             { return f.FieldName }
func (f *SchemaField) Type() string             { return f.FieldType }
func (f *SchemaField) AbbreviatedXPath() string { return f.XPath }
func (f *SchemaField) Origin() FieldOrigin      { return FieldOriginSchema }

// Label returns the raw default label.
func (f *SchemaField) Label() string { return f.FieldLabel }

// LocalizedLabels returns labels keyed by language.
func (f *SchemaField) LocalizedLabels() map[string]string { return f.Labels }

// ChoiceLabel returns the display label for a choice name, or the name itself.
func (f *SchemaField) ChoiceLabel(name string, languageIndex int) string {
	for _, c := range f.Choices {
		if c.Name == name {
			return c.DisplayLabel(languageIndex)
		}
	}
	return name
}

// SyntheticField describes a pipeline metadata column that is not part of the schema.
type SyntheticField struct {
	FieldName  string
	FieldType  string
	FieldLabel string
}

func (f *SyntheticField) Name() string             { return f.FieldName }
func (f *SyntheticField) Type() string             { return f.FieldType }
func (f *SyntheticField) AbbreviatedXPath() string { return f.FieldName }
func (f *SyntheticField) Label() string            { return f.FieldLabel }
func (f *SyntheticField) Origin() FieldOrigin      { return FieldOriginSynthetic }

// SubmissionTimeField returns the synthetic descriptor of the submission timestamp.
func SubmissionTimeField() *SyntheticField {
	return &SyntheticField{
		FieldName:  SubmissionTime,
		FieldType:  FieldTypeDateTime,
		FieldLabel: "Submission Time",
	}
}

type localizedField interface {
	LocalizedLabels() map[string]string
}

// FieldLabel derives the human readable label of a field. Multi-language labels
// resolve by language index over the sorted language names; otherwise the label is
// used, falling back to the field name.
func FieldLabel(field FieldDescriptor, languageIndex int) string {
	if field == nil {
		return ""
	}
	if lf, ok := field.(localizedField); ok {
		if label := pickLanguage(lf.LocalizedLabels(), languageIndex); label != "" {
			return label
		}
	}
	if label := field.Label(); label != "" {
		return label
	}
	return field.Name()
}

func pickLanguage(labels map[string]string, languageIndex int) string {
	if len(labels) == 0 {
		return ""
	}
	languages := make([]string, 0, len(labels))
	for lang := range labels {
		languages = append(languages, lang)
	}
	sort.Strings(languages)
	if languageIndex < 0 {
		languageIndex = 0
	}
	if languageIndex > len(languages)-1 {
		languageIndex = len(languages) - 1
	}
	return labels[languages[languageIndex]]
}
