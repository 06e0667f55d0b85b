package internal

import (
	"errors"
	"fmt"
	"strings"
)

// Route names of the API resources.
const (
	RouteFormDetail     = "xform-detail"
	RouteDataViewDetail = "dataviews-detail"
	RouteWidgetList     = "widgets-list"
	RouteWidgetDetail   = "widgets-detail"
)

// ErrNoRouteMatch is returned when a path does not match any route.
var ErrNoRouteMatch = errors.New("no route matches path")

// Route is a named path template. Segments of the form {name} capture one path segment.
type Route struct {
	Name     string
	Template string
	segments []string
}

// RouteMatch is a resolved path.
type RouteMatch struct {
	Name string
	Args map[string]string
}

// RouteTable reverses and resolves API paths.
type RouteTable struct {
	routes []*Route
	byName map[string]*Route
}

// DefaultRoutes returns the API route table.
func DefaultRoutes() *RouteTable {
	return NewRouteTable(
		Route{Name: RouteFormDetail, Template: "/api/v1/forms/{pk}"},
		Route{Name: RouteDataViewDetail, Template: "/api/v1/dataviews/{pk}"},
		Route{Name: RouteWidgetList, Template: "/api/v1/widgets"},
		Route{Name: RouteWidgetDetail, Template: "/api/v1/widgets/{pk}"},
	)
}

// NewRouteTable builds a table from routes. Later routes with a duplicate name are ignored.
func NewRouteTable(routes ...Route) *RouteTable {
	t := &RouteTable{byName: make(map[string]*Route, len(routes))}
	for _, r := range routes {
		if _, exists := t.byName[r.Name]; exists {
			continue
		}
		route := r
		route.segments = splitPath(r.Template)
		t.routes = append(t.routes, &route)
		t.byName[route.Name] = &route
	}
	return t
}

// Template returns the template registered under name.
func (t *RouteTable) Template(name string) (string, bool) {
	r, ok := t.byName[name]
	if !ok {
		return "", false
	}
	return r.Template, true
}

// Reverse fills the template of the named route with args.
func (t *RouteTable) Reverse(name string, args map[string]string) (string, error) {
	r, ok := t.byName[name]
	if !ok {
		return "", fmt.Errorf("reverse for '%s' not found", name)
	}

	parts := make([]string, len(r.segments))
	for i, seg := range r.segments {
		if param, isParam := paramName(seg); isParam {
			value, ok := args[param]
			if !ok || value == "" {
				return "", fmt.Errorf("reverse for '%s' missing argument '%s'", name, param)
			}
			parts[i] = value
			continue
		}
		parts[i] = seg
	}
	return "/" + strings.Join(parts, "/"), nil
}

// Resolve matches path against the table. A single trailing slash is ignored.
func (t *RouteTable) Resolve(path string) (*RouteMatch, error) {
	segments := splitPath(path)
	for _, r := range t.routes {
		if args, ok := r.match(segments); ok {
			return &RouteMatch{Name: r.Name, Args: args}, nil
		}
	}
	return nil, fmt.Errorf("%w: %q", ErrNoRouteMatch, path)
}

func (r *Route) match(segments []string) (map[string]string, bool) {
	if len(segments) != len(r.segments) {
		return nil, false
	}
	args := make(map[string]string)
	for i, seg := range r.segments {
		if param, isParam := paramName(seg); isParam {
			if segments[i] == "" {
				return nil, false
			}
			args[param] = segments[i]
			continue
		}
		if seg != segments[i] {
			return nil, false
		}
	}
	return args, true
}

func splitPath(path string) []string {
	path = strings.TrimPrefix(path, "/")
	path = strings.TrimSuffix(path, "/")
	if path == "" {
		return nil
	}
	return strings.Split(path, "/")
}

func paramName(segment string) (string, bool) {
	if len(segment) > 2 && segment[0] == '{' && segment[len(segment)-1] == '}' {
		return segment[1 : len(segment)-1], true
	}
	return "", false
}
