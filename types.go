package widgets

import (
	"bytes"
	"encoding/json"
	"net/url"
	"strings"
	"time"
)

// ContentKind tags the resource a widget is attached to.
type ContentKind string

const (
	ContentKindForm     ContentKind = "xform"
	ContentKindDataView ContentKind = "dataview"
)

// WidgetType enumerates the supported widget renderers.
type WidgetType string

const (
	WidgetTypeCharts WidgetType = "charts"
)

// SubmissionTime is the pipeline metadata column holding the submission timestamp.
const SubmissionTime = "_submission_time"

// Form is a data-collection definition owning a schema.
type Form struct {
	ID        int64  `json:"formid"`
	IDString  string `json:"id_string"`
	Title     string `json:"title"`
	ProjectID int64  `json:"project"`
}

// FilteredView is a saved projection over the submissions of a Form.
type FilteredView struct {
	ID        int64    `json:"dataviewid"`
	Name      string   `json:"name"`
	FormID    int64    `json:"xform"`
	ProjectID int64    `json:"project"`
	Columns   []string `json:"columns"`

	// Form is the back reference to the wrapped form. Repositories populate it.
	Form *Form `json:"-"`
}

// ContentObject is the owner of a widget. Exactly one of Form or DataView is set,
// matching Kind.
type ContentObject struct {
	Kind     ContentKind
	Form     *Form
	DataView *FilteredView
}

// FormContent wraps a form as a widget owner.
func FormContent(form *Form) ContentObject {
	return ContentObject{Kind: ContentKindForm, Form: form}
}

// DataViewContent wraps a filtered view as a widget owner.
func DataViewContent(view *FilteredView) ContentObject {
	return ContentObject{Kind: ContentKindDataView, DataView: view}
}

// IsZero reports whether no owner is set.
func (c ContentObject) IsZero() bool {
	return c.Kind == "" && c.Form == nil && c.DataView == nil
}

// OwningForm returns the form whose schema describes the owner's data.
func (c ContentObject) OwningForm() (*Form, error) {
	switch c.Kind {
	case ContentKindForm:
		if c.Form == nil {
			return nil, NewUnsupportedContentError(c.Kind)
		}
		return c.Form, nil
	case ContentKindDataView:
		if c.DataView == nil || c.DataView.Form == nil {
			return nil, NewUnsupportedContentError(c.Kind)
		}
		return c.DataView.Form, nil
	default:
		return nil, NewUnsupportedContentError(c.Kind)
	}
}

// ObjectID returns the primary key of the referenced owner, or 0 when unset.
func (c ContentObject) ObjectID() int64 {
	switch c.Kind {
	case ContentKindForm:
		if c.Form != nil {
			return c.Form.ID
		}
	case ContentKindDataView:
		if c.DataView != nil {
			return c.DataView.ID
		}
	}
	return 0
}

// ProjectID returns the project the owner belongs to.
func (c ContentObject) ProjectID() int64 {
	switch c.Kind {
	case ContentKindForm:
		if c.Form != nil {
			return c.Form.ProjectID
		}
	case ContentKindDataView:
		if c.DataView != nil {
			return c.DataView.ProjectID
		}
	}
	return 0
}

// Same reports whether both values reference the same owner.
func (c ContentObject) Same(other ContentObject) bool {
	return c.Kind == other.Kind && c.ObjectID() == other.ObjectID()
}

// Widget is a chart definition bound to one column of a form or data view.
type Widget struct {
	ID          int64
	Key         string
	Title       string
	Description string
	WidgetType  WidgetType
	ViewType    string
	Order       int
	Column      string
	GroupBy     string
	Aggregation string
	Content     ContentObject
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Persisted reports whether the widget has been stored.
func (w *Widget) Persisted() bool {
	return w != nil && w.ID != 0
}

// WidgetPayload is the inbound JSON body for create and update requests.
// Pointer fields distinguish "absent" from "empty" for partial updates.
type WidgetPayload struct {
	Title         *string `json:"title" validate:"omitempty,max=255"`
	Description   *string `json:"description" validate:"omitempty,max=255"`
	WidgetType    *string `json:"widget_type" validate:"omitempty,oneof=charts"`
	Order         *int    `json:"order" validate:"omitempty,min=0"`
	ViewType      *string `json:"view_type" validate:"omitempty,max=50"`
	Column        *string `json:"column" validate:"omitempty,max=255"`
	GroupBy       *string `json:"group_by" validate:"omitempty,max=255"`
	Aggregation   *string `json:"aggregation" validate:"omitempty,max=255"`
	ContentObject any     `json:"content_object"`

	// ContentObjectNull is set when the body carried "content_object": null.
	ContentObjectNull bool `json:"-"`
}

// UnmarshalJSON decodes a payload and records an explicit null owner reference.
func (p *WidgetPayload) UnmarshalJSON(data []byte) error {
	type payload WidgetPayload
	var decoded payload
	if err := json.Unmarshal(data, &decoded); err != nil {
		return err
	}
	var keys map[string]json.RawMessage
	if err := json.Unmarshal(data, &keys); err != nil {
		return err
	}
	*p = WidgetPayload(decoded)
	if raw, ok := keys["content_object"]; ok && bytes.Equal(bytes.TrimSpace(raw), []byte("null")) {
		p.ContentObjectNull = true
	}
	return nil
}

// WidgetAttrs holds validated attributes ready to be applied to a widget.
type WidgetAttrs struct {
	Title         *string
	Description   *string
	WidgetType    *WidgetType
	Order         *int
	ViewType      *string
	Column        *string
	GroupBy       *string
	Aggregation   *string
	ContentObject *ContentObject
}

// Apply copies every supplied attribute onto the widget. Order is left to the
// repository since it shifts siblings.
func (a *WidgetAttrs) Apply(w *Widget) {
	if a.Title != nil {
		w.Title = *a.Title
	}
	if a.Description != nil {
		w.Description = *a.Description
	}
	if a.WidgetType != nil {
		w.WidgetType = *a.WidgetType
	}
	if a.ViewType != nil {
		w.ViewType = *a.ViewType
	}
	if a.Column != nil {
		w.Column = *a.Column
	}
	if a.GroupBy != nil {
		w.GroupBy = *a.GroupBy
	}
	if a.Aggregation != nil {
		w.Aggregation = *a.Aggregation
	}
	if a.ContentObject != nil {
		w.Content = *a.ContentObject
	}
	if w.WidgetType == "" {
		w.WidgetType = WidgetTypeCharts
	}
}

// WidgetRepresentation is the outbound JSON form of a widget.
type WidgetRepresentation struct {
	ID            int64   `json:"id"`
	URL           string  `json:"url"`
	Key           string  `json:"key"`
	Title         *string `json:"title"`
	Description   *string `json:"description"`
	WidgetType    string  `json:"widget_type"`
	Order         int     `json:"order"`
	ViewType      string  `json:"view_type"`
	Column        string  `json:"column"`
	GroupBy       *string `json:"group_by"`
	ContentObject string  `json:"content_object"`
	Data          any     `json:"data"`
	Aggregation   *string `json:"aggregation"`
	FieldType     *string `json:"field_type"`
	DataType      *string `json:"data_type"`
	FieldXPath    *string `json:"field_xpath"`
	FieldLabel    *string `json:"field_label"`
}

// WidgetData is the result of running a widget's query.
type WidgetData struct {
	FieldType  string           `json:"field_type"`
	DataType   string           `json:"data_type"`
	FieldXPath string           `json:"field_xpath"`
	FieldLabel string           `json:"field_label"`
	GroupedBy  *string          `json:"grouped_by"`
	Data       []map[string]any `json:"data"`
}

// RequestContext carries the per-request inputs a serializer needs.
type RequestContext struct {
	// User is the acting username; empty for anonymous requests.
	User string
	// Query holds the request's query parameters.
	Query url.Values
	// BaseURL is scheme and host of the request, e.g. "https://api.example.com".
	BaseURL string
}

// WantsData reports whether the request asks for widget result data.
func (rc RequestContext) WantsData() bool {
	if rc.Query == nil {
		return false
	}
	return StrToBool(rc.Query.Get("data")) || rc.Query.Get("key") != ""
}

// StrToBool interprets the usual truthy query-string spellings.
func StrToBool(value string) bool {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "yes", "true", "t", "1":
		return true
	default:
		return false
	}
}

// WidgetFilter narrows widget listings to a single owner.
type WidgetFilter struct {
	Kind     ContentKind
	ObjectID int64
}
