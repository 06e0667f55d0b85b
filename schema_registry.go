package widgets

import (
	"context"
)

// DataDictionary is the parsed schema of a form.
type DataDictionary interface {
	// Headers enumerates every exportable column of the form, including the
	// pipeline metadata columns.
	Headers() []string
	// HasHeader reports whether column is one of Headers.
	HasHeader(column string) bool
	// FieldByName looks a question up by name, then by abbreviated xpath.
	FieldByName(name string) (*SchemaField, bool)
	// Fields returns every question in document order.
	Fields() []*SchemaField
}

// SchemaRegistry provides data dictionary lookups for forms.
// Implementations can load schemas from files, object storage or other sources.
type SchemaRegistry interface {
	// DataDictionary returns the parsed schema of form. A form without a schema
	// document yields a not-found WidgetError.
	DataDictionary(ctx context.Context, form *Form) (DataDictionary, error)
	// Invalidate drops any cached dictionary of form.
	Invalidate(form *Form)
}
