package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/lychee-technology/widgets"
	"github.com/lychee-technology/widgets/internal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockWidgetManager struct {
	lastRC      widgets.RequestContext
	lastFilter  widgets.WidgetFilter
	lastPayload *widgets.WidgetPayload
	lastPartial bool
	rep         *widgets.WidgetRepresentation
	err         error
	deleted     []int64
}

func (m *mockWidgetManager) List(_ context.Context, rc widgets.RequestContext, filter widgets.WidgetFilter) ([]*widgets.WidgetRepresentation, error) {
	m.lastRC, m.lastFilter = rc, filter
	if m.err != nil {
		return nil, m.err
	}
	return []*widgets.WidgetRepresentation{m.rep}, nil
}

func (m *mockWidgetManager) Get(_ context.Context, rc widgets.RequestContext, id int64) (*widgets.WidgetRepresentation, error) {
	m.lastRC = rc
	if m.err != nil {
		return nil, m.err
	}
	return m.rep, nil
}

func (m *mockWidgetManager) GetByKey(_ context.Context, rc widgets.RequestContext, key string) (*widgets.WidgetRepresentation, error) {
	m.lastRC = rc
	if m.err != nil {
		return nil, m.err
	}
	return m.rep, nil
}

func (m *mockWidgetManager) Create(_ context.Context, rc widgets.RequestContext, payload *widgets.WidgetPayload) (*widgets.WidgetRepresentation, error) {
	m.lastRC, m.lastPayload = rc, payload
	if m.err != nil {
		return nil, m.err
	}
	return m.rep, nil
}

func (m *mockWidgetManager) Update(_ context.Context, rc widgets.RequestContext, id int64, payload *widgets.WidgetPayload, partial bool) (*widgets.WidgetRepresentation, error) {
	m.lastRC, m.lastPayload, m.lastPartial = rc, payload, partial
	if m.err != nil {
		return nil, m.err
	}
	return m.rep, nil
}

func (m *mockWidgetManager) Delete(_ context.Context, rc widgets.RequestContext, id int64) error {
	m.lastRC = rc
	if m.err != nil {
		return m.err
	}
	m.deleted = append(m.deleted, id)
	return nil
}

func (m *mockWidgetManager) GetForm(_ context.Context, rc widgets.RequestContext, id int64) (*widgets.Form, error) {
	if m.err != nil {
		return nil, m.err
	}
	return &widgets.Form{ID: id, IDString: "households", ProjectID: 10}, nil
}

func (m *mockWidgetManager) GetDataView(_ context.Context, rc widgets.RequestContext, id int64) (*widgets.FilteredView, error) {
	return nil, widgets.NewDataViewNotFoundError(id)
}

const testSecret = "s3cret"

func newTestServer(m *mockWidgetManager) *Server {
	s := NewServer(m, newTokenAuthenticator(widgets.AuthConfig{JWTSecret: testSecret}), "")
	s.RegisterRoutes("/")
	return s
}

func do(t *testing.T, s *Server, method, target, user, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, bytes.NewReader([]byte(body)))
	if user != "" {
		req.Header.Set("Authorization", "Bearer "+signToken(t, testSecret, user))
	}
	rec := httptest.NewRecorder()
	s.mux.ServeHTTP(rec, req)
	return rec
}

func TestHandleListWidgets(t *testing.T) {
	m := &mockWidgetManager{rep: &widgets.WidgetRepresentation{ID: 7}}
	s := newTestServer(m)

	rec := do(t, s, http.MethodGet, "/api/v1/widgets?dataview=5", "alice", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, widgets.WidgetFilter{Kind: widgets.ContentKindDataView, ObjectID: 5}, m.lastFilter)
	assert.Equal(t, "alice", m.lastRC.User)
	assert.Equal(t, "http://example.com", m.lastRC.BaseURL)

	var reps []widgets.WidgetRepresentation
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &reps))
	require.Len(t, reps, 1)
	assert.Equal(t, int64(7), reps[0].ID)

	rec = do(t, s, http.MethodGet, "/api/v1/widgets?xform=1&dataview=5", "alice", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleListWidgetsByKey(t *testing.T) {
	m := &mockWidgetManager{rep: &widgets.WidgetRepresentation{ID: 7, Key: "abc"}}
	s := newTestServer(m)

	rec := do(t, s, http.MethodGet, "/api/v1/widgets?key=abc", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "", m.lastRC.User)
	assert.True(t, m.lastRC.WantsData())
}

func TestHandleCreateWidget(t *testing.T) {
	m := &mockWidgetManager{rep: &widgets.WidgetRepresentation{ID: 9}}
	s := newTestServer(m)

	body := `{"content_object": "http://example.com/api/v1/forms/1", "column": "age", "view_type": "bar", "order": 2}`
	rec := do(t, s, http.MethodPost, "/api/v1/widgets", "alice", body)
	require.Equal(t, http.StatusCreated, rec.Code)
	require.NotNil(t, m.lastPayload)
	assert.Equal(t, "http://example.com/api/v1/forms/1", m.lastPayload.ContentObject)
	require.NotNil(t, m.lastPayload.Order)
	assert.Equal(t, 2, *m.lastPayload.Order)

	rec = do(t, s, http.MethodPost, "/api/v1/widgets", "alice", `{"column": `)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleUpdateWidgetPartial(t *testing.T) {
	m := &mockWidgetManager{rep: &widgets.WidgetRepresentation{ID: 9}}
	s := newTestServer(m)

	rec := do(t, s, http.MethodPatch, "/api/v1/widgets/9", "alice", `{"title": "x"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, m.lastPartial)
	assert.False(t, m.lastPayload.ContentObjectNull)

	rec = do(t, s, http.MethodPatch, "/api/v1/widgets/9", "alice", `{"content_object": null}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, m.lastPayload.ContentObjectNull)

	rec = do(t, s, http.MethodPut, "/api/v1/widgets/9", "alice", `{"title": "x"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.False(t, m.lastPartial)
}

func TestHandleDeleteWidget(t *testing.T) {
	m := &mockWidgetManager{}
	s := newTestServer(m)

	rec := do(t, s, http.MethodDelete, "/api/v1/widgets/4", "alice", "")
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, []int64{4}, m.deleted)

	rec = do(t, s, http.MethodDelete, "/api/v1/widgets/abc", "alice", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandlerErrorMapping(t *testing.T) {
	ve := widgets.NewValidationErrors()
	ve.Add(widgets.NewFieldError("column", "invalid", "'gone' not in the form."))

	tests := []struct {
		name   string
		err    error
		status int
	}{
		{"validation", ve, http.StatusBadRequest},
		{"unauthenticated", widgets.NewAuthenticationRequiredError(), http.StatusUnauthorized},
		{"forbidden", widgets.NewPermissionDeniedError("nope"), http.StatusForbidden},
		{"not found", widgets.NewWidgetNotFoundError(int64(3)), http.StatusNotFound},
		{"wrapped not found", fmt.Errorf("load: %w", widgets.NewFormNotFoundError(1)), http.StatusNotFound},
		{"internal", fmt.Errorf("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestServer(&mockWidgetManager{err: tt.err})
			rec := do(t, s, http.MethodGet, "/api/v1/widgets/3", "alice", "")
			assert.Equal(t, tt.status, rec.Code)
		})
	}

	s := newTestServer(&mockWidgetManager{err: ve})
	rec := do(t, s, http.MethodPost, "/api/v1/widgets", "alice", `{}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.JSONEq(t, `{"column": ["'gone' not in the form."]}`, rec.Body.String())
}

func TestHandleOwners(t *testing.T) {
	s := newTestServer(&mockWidgetManager{})

	rec := do(t, s, http.MethodGet, "/api/v1/forms/1", "alice", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"formid": 1, "id_string": "households", "title": "", "project": 10}`, rec.Body.String())

	rec = do(t, s, http.MethodGet, "/api/v1/dataviews/1", "alice", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRoutesUnderScriptPrefix(t *testing.T) {
	m := &mockWidgetManager{rep: &widgets.WidgetRepresentation{ID: 1}}
	s := NewServer(m, newTokenAuthenticator(widgets.AuthConfig{JWTSecret: testSecret}), "https://dash.example.org/")
	s.RegisterRoutes("/ona/")

	rec := do(t, s, http.MethodGet, "/ona/api/v1/widgets/1", "alice", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "https://dash.example.org", m.lastRC.BaseURL)

	rec = do(t, s, http.MethodGet, "/api/v1/widgets/1", "alice", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestMountedRoutesMatchLinkRoutes(t *testing.T) {
	routes := internal.DefaultRoutes()
	for _, prefix := range []string{"/", "/ona/"} {
		s := NewServer(&mockWidgetManager{}, newTokenAuthenticator(widgets.AuthConfig{JWTSecret: testSecret}), "")
		s.RegisterRoutes(prefix)

		for _, name := range []string{internal.RouteFormDetail, internal.RouteDataViewDetail, internal.RouteWidgetList, internal.RouteWidgetDetail} {
			path, err := routes.Reverse(name, map[string]string{"pk": "7"})
			require.NoError(t, err)
			target := prefix + path[1:]

			_, pattern := s.mux.Handler(httptest.NewRequest(http.MethodGet, target, nil))
			assert.NotEmpty(t, pattern, "no handler mounted for %s", target)
		}
	}
}

func TestHandleHealth(t *testing.T) {
	s := newTestServer(&mockWidgetManager{})
	assert.Equal(t, http.StatusOK, do(t, s, http.MethodGet, "/healthz", "", "").Code)

	s.health = func(context.Context) error { return fmt.Errorf("db down") }
	assert.Equal(t, http.StatusServiceUnavailable, do(t, s, http.MethodGet, "/healthz", "", "").Code)
}
