package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/lychee-technology/widgets"
	"go.uber.org/zap"
)

// APIResponse is the standard error response format
type APIResponse struct {
	Success bool   `json:"success"`
	Code    string `json:"code,omitempty"`
	Error   string `json:"error,omitempty"`
}

// writeJSON writes JSON response to http.ResponseWriter
func writeJSON(w http.ResponseWriter, statusCode int, data any) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	return json.NewEncoder(w).Encode(data)
}

// writeError writes an error response
func writeError(w http.ResponseWriter, statusCode int, message string) error {
	return writeJSON(w, statusCode, APIResponse{
		Success: false,
		Error:   message,
	})
}

// writeSuccess writes a success response
func writeSuccess(w http.ResponseWriter, statusCode int, data any) error {
	return writeJSON(w, statusCode, data)
}

// writeManagerError maps widget errors to HTTP statuses. Validation failures are
// written as a field to messages object.
func writeManagerError(w http.ResponseWriter, r *http.Request, err error) {
	var ve *widgets.ValidationErrors
	if errors.As(err, &ve) {
		writeJSON(w, http.StatusBadRequest, ve)
		return
	}

	status := http.StatusInternalServerError
	var we *widgets.WidgetError
	if errors.As(err, &we) {
		switch we.Type {
		case widgets.ErrorTypeValidation:
			status = http.StatusBadRequest
		case widgets.ErrorTypeUnauthorized:
			status = http.StatusUnauthorized
		case widgets.ErrorTypeForbidden:
			status = http.StatusForbidden
		case widgets.ErrorTypeNotFound:
			status = http.StatusNotFound
		}
		if status != http.StatusInternalServerError {
			writeJSON(w, status, APIResponse{Code: we.Code, Error: we.Message})
			return
		}
	}

	zap.S().Errorw("request failed", "method", r.Method, "path", r.URL.Path, "error", err)
	writeError(w, status, "internal server error")
}

// readJSONBody reads and decodes JSON from request body
func readJSONBody(r *http.Request, v any) error {
	defer r.Body.Close()
	return json.NewDecoder(r.Body).Decode(v)
}

// parseID parses a positive integer primary key.
func parseID(s string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid id %q", s)
	}
	return id, nil
}

// parseWidgetFilter reads the owner filter of a widget listing. At most one of xform
// and dataview may be given.
func parseWidgetFilter(query url.Values) (widgets.WidgetFilter, error) {
	xform, dataview := query.Get("xform"), query.Get("dataview")
	switch {
	case xform != "" && dataview != "":
		return widgets.WidgetFilter{}, fmt.Errorf("filter by xform or dataview, not both")
	case xform != "":
		id, err := parseID(xform)
		if err != nil {
			return widgets.WidgetFilter{}, err
		}
		return widgets.WidgetFilter{Kind: widgets.ContentKindForm, ObjectID: id}, nil
	case dataview != "":
		id, err := parseID(dataview)
		if err != nil {
			return widgets.WidgetFilter{}, err
		}
		return widgets.WidgetFilter{Kind: widgets.ContentKindDataView, ObjectID: id}, nil
	default:
		return widgets.WidgetFilter{}, nil
	}
}

// baseURL returns scheme and host the client used, honouring proxy headers.
func baseURL(r *http.Request, override string) string {
	if override != "" {
		return strings.TrimSuffix(override, "/")
	}
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	if proto := r.Header.Get("X-Forwarded-Proto"); proto != "" {
		scheme, _, _ = strings.Cut(proto, ",")
		scheme = strings.TrimSpace(scheme)
	}
	host := r.Host
	if fwd := r.Header.Get("X-Forwarded-Host"); fwd != "" {
		host, _, _ = strings.Cut(fwd, ",")
		host = strings.TrimSpace(host)
	}
	return scheme + "://" + host
}
