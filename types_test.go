package widgets

import (
	"encoding/json"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// =============================================================================
// ContentObject Tests
// =============================================================================

func TestContentObject_OwningForm(t *testing.T) {
	form := &Form{ID: 7, IDString: "households", ProjectID: 3}
	view := &FilteredView{ID: 11, FormID: 7, ProjectID: 3, Form: form}

	tests := []struct {
		name    string
		content ContentObject
		want    *Form
		wantErr bool
	}{
		{name: "form owner", content: FormContent(form), want: form},
		{name: "dataview owner uses underlying form", content: DataViewContent(view), want: form},
		{name: "dataview without loaded form", content: DataViewContent(&FilteredView{ID: 2}), wantErr: true},
		{name: "empty owner", content: ContentObject{}, wantErr: true},
		{name: "unknown kind", content: ContentObject{Kind: "project", Form: form}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.content.OwningForm()
			if tt.wantErr {
				require.Error(t, err)
				var we *WidgetError
				require.ErrorAs(t, err, &we)
				assert.Equal(t, ErrCodeUnsupportedContent, we.Code)
				return
			}
			require.NoError(t, err)
			assert.Same(t, tt.want, got)
		})
	}
}

func TestContentObject_Identity(t *testing.T) {
	form := &Form{ID: 7, ProjectID: 3}
	view := &FilteredView{ID: 7, ProjectID: 4, Form: form}

	assert.Equal(t, int64(7), FormContent(form).ObjectID())
	assert.Equal(t, int64(3), FormContent(form).ProjectID())
	assert.Equal(t, int64(4), DataViewContent(view).ProjectID())
	assert.False(t, FormContent(form).Same(DataViewContent(view)), "same pk, different kind")
	assert.True(t, FormContent(form).Same(FormContent(&Form{ID: 7})))
	assert.True(t, ContentObject{}.IsZero())
	assert.Equal(t, int64(0), ContentObject{}.ObjectID())
}

// =============================================================================
// RequestContext Tests
// =============================================================================

func TestRequestContext_WantsData(t *testing.T) {
	tests := []struct {
		query string
		want  bool
	}{
		{query: "", want: false},
		{query: "data=true", want: true},
		{query: "data=True", want: true},
		{query: "data=1", want: true},
		{query: "data=yes", want: true},
		{query: "data=false", want: false},
		{query: "data=0", want: false},
		{query: "key=abc123", want: true},
		{query: "data=false&key=abc", want: true},
		{query: "key=", want: false},
	}

	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			q, err := url.ParseQuery(tt.query)
			require.NoError(t, err)
			assert.Equal(t, tt.want, RequestContext{Query: q}.WantsData())
		})
	}

	assert.False(t, RequestContext{}.WantsData())
}

// =============================================================================
// WidgetAttrs Tests
// =============================================================================

func TestWidgetAttrs_Apply(t *testing.T) {
	title := "Ages"
	column := "age"
	form := &Form{ID: 1}
	content := FormContent(form)

	w := &Widget{Title: "old", Column: "name", ViewType: "horizontal-bar"}
	attrs := &WidgetAttrs{Title: &title, Column: &column, ContentObject: &content}
	attrs.Apply(w)

	assert.Equal(t, "Ages", w.Title)
	assert.Equal(t, "age", w.Column)
	assert.Equal(t, "horizontal-bar", w.ViewType, "absent attributes are left alone")
	assert.Equal(t, WidgetTypeCharts, w.WidgetType, "widget type defaults to charts")
	assert.Same(t, form, w.Content.Form)
}

func TestWidgetPayload_UnmarshalKeepsRawContentObject(t *testing.T) {
	var p WidgetPayload
	require.NoError(t, json.Unmarshal([]byte(`{"column":"age","content_object":42}`), &p))
	require.NotNil(t, p.Column)
	assert.Equal(t, "age", *p.Column)
	assert.Equal(t, float64(42), p.ContentObject)
	assert.Nil(t, p.Title)
}

func TestWidgetPayload_UnmarshalExplicitNullContentObject(t *testing.T) {
	var p WidgetPayload
	require.NoError(t, json.Unmarshal([]byte(`{"title":"x","content_object": null}`), &p))
	assert.True(t, p.ContentObjectNull)
	assert.Nil(t, p.ContentObject)
	require.NotNil(t, p.Title)

	var absent WidgetPayload
	require.NoError(t, json.Unmarshal([]byte(`{"title":"x"}`), &absent))
	assert.False(t, absent.ContentObjectNull)

	var given WidgetPayload
	require.NoError(t, json.Unmarshal([]byte(`{"content_object":"/api/v1/forms/1"}`), &given))
	assert.False(t, given.ContentObjectNull)
	assert.Equal(t, "/api/v1/forms/1", given.ContentObject)
}
