package internal

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/lychee-technology/widgets"
)

// Messages of the relation field failures.
const (
	msgRelationRequired       = "This field is required."
	msgRelationIncorrectType  = "Incorrect type. Expected URL string, received %s."
	msgRelationNoMatch        = "Invalid hyperlink - No URL match."
	msgRelationIncorrectMatch = "`%s` is not a valid relation."
	msgRelationDoesNotExist   = "Invalid hyperlink - Object does not exist."
)

type fetchContentFunc func(ctx context.Context, pk int64) (widgets.ContentObject, error)

// relationTarget binds an owner kind to its detail route and loader.
type relationTarget struct {
	kind  widgets.ContentKind
	route string
	fetch fetchContentFunc
}

// GenericRelatedField serializes a widget owner to its detail URL and back.
type GenericRelatedField struct {
	routes       *RouteTable
	scriptPrefix string
	byKind       map[widgets.ContentKind]relationTarget
	byRoute      map[string]relationTarget
}

// NewGenericRelatedField registers the form and data view targets.
func NewGenericRelatedField(routes *RouteTable, scriptPrefix string, forms widgets.FormRepository, views widgets.DataViewRepository) *GenericRelatedField {
	f := &GenericRelatedField{
		routes:       routes,
		scriptPrefix: normalizeScriptPrefix(scriptPrefix),
		byKind:       make(map[widgets.ContentKind]relationTarget),
		byRoute:      make(map[string]relationTarget),
	}
	f.register(relationTarget{
		kind:  widgets.ContentKindForm,
		route: RouteFormDetail,
		fetch: func(ctx context.Context, pk int64) (widgets.ContentObject, error) {
			form, err := forms.GetForm(ctx, pk)
			if err != nil {
				return widgets.ContentObject{}, err
			}
			return widgets.FormContent(form), nil
		},
	})
	f.register(relationTarget{
		kind:  widgets.ContentKindDataView,
		route: RouteDataViewDetail,
		fetch: func(ctx context.Context, pk int64) (widgets.ContentObject, error) {
			view, err := views.GetDataView(ctx, pk)
			if err != nil {
				return widgets.ContentObject{}, err
			}
			return widgets.DataViewContent(view), nil
		},
	})
	return f
}

func (f *GenericRelatedField) register(t relationTarget) {
	f.byKind[t.kind] = t
	f.byRoute[t.route] = t
}

// ToRepresentation returns the absolute detail URL of obj.
func (f *GenericRelatedField) ToRepresentation(rc widgets.RequestContext, obj widgets.ContentObject) (string, error) {
	target, ok := f.byKind[obj.Kind]
	if !ok || obj.ObjectID() == 0 {
		return "", widgets.NewUnsupportedContentError(obj.Kind)
	}
	path, err := f.routes.Reverse(target.route, map[string]string{"pk": strconv.FormatInt(obj.ObjectID(), 10)})
	if err != nil {
		return "", widgets.NewInternalError("failed to build content_object url", err)
	}
	return f.absoluteURL(rc, path), nil
}

// URLFor returns the absolute URL of a named route.
func (f *GenericRelatedField) URLFor(rc widgets.RequestContext, route string, pk int64) (string, error) {
	path, err := f.routes.Reverse(route, map[string]string{"pk": strconv.FormatInt(pk, 10)})
	if err != nil {
		return "", err
	}
	return f.absoluteURL(rc, path), nil
}

func (f *GenericRelatedField) absoluteURL(rc widgets.RequestContext, path string) string {
	return strings.TrimSuffix(rc.BaseURL, "/") + f.scriptPrefix + strings.TrimPrefix(path, "/")
}

// ToInternalValue resolves a detail URL to the owner it names. Validation failures are
// returned as *widgets.FieldError without a field name; lookup failures other than
// not-found are returned as is.
func (f *GenericRelatedField) ToInternalValue(ctx context.Context, data any) (widgets.ContentObject, error) {
	if data == nil {
		return widgets.ContentObject{}, widgets.NewFieldError("", widgets.RelationRequired, msgRelationRequired)
	}
	raw, ok := data.(string)
	if !ok {
		return widgets.ContentObject{}, widgets.NewFieldError("", widgets.RelationIncorrectType,
			fmt.Sprintf(msgRelationIncorrectType, jsonTypeName(data)))
	}

	path, ok := f.relativePath(raw)
	if !ok {
		return widgets.ContentObject{}, widgets.NewFieldError("", widgets.RelationNoMatch, msgRelationNoMatch)
	}

	match, err := f.routes.Resolve(path)
	if err != nil {
		return widgets.ContentObject{}, widgets.NewFieldError("", widgets.RelationNoMatch, msgRelationNoMatch)
	}

	target, ok := f.byRoute[match.Name]
	if !ok {
		return widgets.ContentObject{}, widgets.NewFieldError("", widgets.RelationIncorrectMatch,
			fmt.Sprintf(msgRelationIncorrectMatch, raw))
	}

	pk, err := strconv.ParseInt(match.Args["pk"], 10, 64)
	if err != nil || pk <= 0 {
		return widgets.ContentObject{}, widgets.NewFieldError("", widgets.RelationDoesNotExist, msgRelationDoesNotExist)
	}

	obj, err := target.fetch(ctx, pk)
	if err != nil {
		if widgets.IsNotFoundError(err) {
			return widgets.ContentObject{}, widgets.NewFieldError("", widgets.RelationDoesNotExist, msgRelationDoesNotExist)
		}
		return widgets.ContentObject{}, err
	}
	return obj, nil
}

// relativePath strips scheme, host and the script prefix from absolute URLs.
// Relative input is used as given.
func (f *GenericRelatedField) relativePath(raw string) (string, bool) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", false
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		if u.Scheme != "" || u.Host != "" {
			return "", false
		}
		return u.Path, true
	}

	path := u.Path
	if strings.HasPrefix(path, f.scriptPrefix) {
		path = "/" + path[len(f.scriptPrefix):]
	}
	return path, true
}

func normalizeScriptPrefix(prefix string) string {
	if prefix == "" {
		return "/"
	}
	if !strings.HasPrefix(prefix, "/") {
		prefix = "/" + prefix
	}
	if !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}
	return prefix
}

func jsonTypeName(v any) string {
	switch v.(type) {
	case bool:
		return "boolean"
	case float64, float32, int, int64, int32:
		return "number"
	case []any:
		return "array"
	case map[string]any:
		return "object"
	default:
		return fmt.Sprintf("%T", v)
	}
}
