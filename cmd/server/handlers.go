package main

import (
	"fmt"
	"net/http"

	"github.com/lychee-technology/widgets"
	"go.uber.org/zap"
)

// requestContext authenticates the request and captures what the serializer needs.
func (s *Server) requestContext(r *http.Request) (widgets.RequestContext, error) {
	user, err := s.auth.Authenticate(r)
	if err != nil {
		return widgets.RequestContext{}, err
	}
	return widgets.RequestContext{
		User:    user,
		Query:   r.URL.Query(),
		BaseURL: baseURL(r, s.publicBaseURL),
	}, nil
}

// withRequest resolves the request context and the {pk} path value, writing the error
// response itself when either is invalid.
func (s *Server) withRequest(w http.ResponseWriter, r *http.Request, needID bool) (widgets.RequestContext, int64, bool) {
	rc, err := s.requestContext(r)
	if err != nil {
		zap.S().Debugw("rejected bearer token", "path", r.URL.Path, "error", err)
		writeError(w, http.StatusUnauthorized, err.Error())
		return rc, 0, false
	}
	if !needID {
		return rc, 0, true
	}
	id, err := parseID(r.PathValue("pk"))
	if err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return rc, 0, false
	}
	return rc, id, true
}

// handleListWidgets handles GET /api/v1/widgets?xform=|dataview=|key=
func (s *Server) handleListWidgets(w http.ResponseWriter, r *http.Request) {
	rc, _, ok := s.withRequest(w, r, false)
	if !ok {
		return
	}

	if key := rc.Query.Get("key"); key != "" {
		rep, err := s.manager.GetByKey(r.Context(), rc, key)
		if err != nil {
			writeManagerError(w, r, err)
			return
		}
		writeSuccess(w, http.StatusOK, rep)
		return
	}

	filter, err := parseWidgetFilter(rc.Query)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	reps, err := s.manager.List(r.Context(), rc, filter)
	if err != nil {
		writeManagerError(w, r, err)
		return
	}
	writeSuccess(w, http.StatusOK, reps)
}

// handleGetWidget handles GET /api/v1/widgets/{pk}
func (s *Server) handleGetWidget(w http.ResponseWriter, r *http.Request) {
	rc, id, ok := s.withRequest(w, r, true)
	if !ok {
		return
	}
	rep, err := s.manager.Get(r.Context(), rc, id)
	if err != nil {
		writeManagerError(w, r, err)
		return
	}
	writeSuccess(w, http.StatusOK, rep)
}

// handleCreateWidget handles POST /api/v1/widgets
func (s *Server) handleCreateWidget(w http.ResponseWriter, r *http.Request) {
	rc, _, ok := s.withRequest(w, r, false)
	if !ok {
		return
	}
	var payload widgets.WidgetPayload
	if err := readJSONBody(r, &payload); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid json body: %v", err))
		return
	}
	rep, err := s.manager.Create(r.Context(), rc, &payload)
	if err != nil {
		writeManagerError(w, r, err)
		return
	}
	writeSuccess(w, http.StatusCreated, rep)
}

// handleUpdateWidget handles PUT and PATCH /api/v1/widgets/{pk}
func (s *Server) handleUpdateWidget(w http.ResponseWriter, r *http.Request) {
	rc, id, ok := s.withRequest(w, r, true)
	if !ok {
		return
	}
	var payload widgets.WidgetPayload
	if err := readJSONBody(r, &payload); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid json body: %v", err))
		return
	}
	rep, err := s.manager.Update(r.Context(), rc, id, &payload, r.Method == http.MethodPatch)
	if err != nil {
		writeManagerError(w, r, err)
		return
	}
	writeSuccess(w, http.StatusOK, rep)
}

// handleDeleteWidget handles DELETE /api/v1/widgets/{pk}
func (s *Server) handleDeleteWidget(w http.ResponseWriter, r *http.Request) {
	rc, id, ok := s.withRequest(w, r, true)
	if !ok {
		return
	}
	if err := s.manager.Delete(r.Context(), rc, id); err != nil {
		writeManagerError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleGetForm handles GET /api/v1/forms/{pk}
func (s *Server) handleGetForm(w http.ResponseWriter, r *http.Request) {
	rc, id, ok := s.withRequest(w, r, true)
	if !ok {
		return
	}
	form, err := s.manager.GetForm(r.Context(), rc, id)
	if err != nil {
		writeManagerError(w, r, err)
		return
	}
	writeSuccess(w, http.StatusOK, form)
}

// handleGetDataView handles GET /api/v1/dataviews/{pk}
func (s *Server) handleGetDataView(w http.ResponseWriter, r *http.Request) {
	rc, id, ok := s.withRequest(w, r, true)
	if !ok {
		return
	}
	view, err := s.manager.GetDataView(r.Context(), rc, id)
	if err != nil {
		writeManagerError(w, r, err)
		return
	}
	writeSuccess(w, http.StatusOK, view)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.health != nil {
		if err := s.health(r.Context()); err != nil {
			writeError(w, http.StatusServiceUnavailable, err.Error())
			return
		}
	}
	writeSuccess(w, http.StatusOK, map[string]string{"status": "ok"})
}
