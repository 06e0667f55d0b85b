package internal

import (
	"context"
	"fmt"
	"net/url"
	"slices"

	"github.com/lychee-technology/widgets"
	"go.uber.org/zap"
)

type widgetService struct {
	widgets     widgets.WidgetRepository
	forms       widgets.FormRepository
	views       widgets.DataViewRepository
	permissions widgets.PermissionRepository
	serializer  *WidgetSerializer
}

// WidgetServiceDeps groups the collaborators of the widget service.
type WidgetServiceDeps struct {
	Widgets     widgets.WidgetRepository
	Forms       widgets.FormRepository
	Views       widgets.DataViewRepository
	Permissions widgets.PermissionRepository
	Serializer  *WidgetSerializer
}

// NewWidgetService creates a new WidgetManager instance
func NewWidgetService(deps WidgetServiceDeps) widgets.WidgetManager {
	return &widgetService{
		widgets:     deps.Widgets,
		forms:       deps.Forms,
		views:       deps.Views,
		permissions: deps.Permissions,
		serializer:  deps.Serializer,
	}
}

// loadContent fetches the full owner for a stub that only carries its primary key.
func (s *widgetService) loadContent(ctx context.Context, kind widgets.ContentKind, id int64) (widgets.ContentObject, error) {
	switch kind {
	case widgets.ContentKindForm:
		form, err := s.forms.GetForm(ctx, id)
		if err != nil {
			return widgets.ContentObject{}, err
		}
		return widgets.FormContent(form), nil
	case widgets.ContentKindDataView:
		view, err := s.views.GetDataView(ctx, id)
		if err != nil {
			return widgets.ContentObject{}, err
		}
		return widgets.DataViewContent(view), nil
	default:
		return widgets.ContentObject{}, widgets.NewUnsupportedContentError(kind)
	}
}

func (s *widgetService) hydrate(ctx context.Context, w *widgets.Widget) error {
	content, err := s.loadContent(ctx, w.Content.Kind, w.Content.ObjectID())
	if err != nil {
		return fmt.Errorf("load owner of widget %d: %w", w.ID, err)
	}
	w.Content = content
	return nil
}

func (s *widgetService) hasPermission(ctx context.Context, user string, projectID int64) (bool, error) {
	if user == "" {
		return false, nil
	}
	users, err := s.permissions.UsersWithPermissions(ctx, projectID)
	if err != nil {
		return false, fmt.Errorf("list project %d users: %w", projectID, err)
	}
	return slices.Contains(users, user), nil
}

// authorize requires an authenticated user holding a permission on the owner's project.
func (s *widgetService) authorize(ctx context.Context, rc widgets.RequestContext, content widgets.ContentObject) error {
	if rc.User == "" {
		return widgets.NewAuthenticationRequiredError()
	}
	ok, err := s.hasPermission(ctx, rc.User, content.ProjectID())
	if err != nil {
		return err
	}
	if !ok {
		zap.S().Infow("owner access denied", "user", rc.User, "kind", content.Kind, "object", content.ObjectID())
		return widgets.NewPermissionDeniedError("You do not have permission to perform this action.")
	}
	return nil
}

func (s *widgetService) loadWidget(ctx context.Context, rc widgets.RequestContext, id int64) (*widgets.Widget, error) {
	w, err := s.widgets.GetWidget(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.hydrate(ctx, w); err != nil {
		return nil, err
	}
	if err := s.authorize(ctx, rc, w.Content); err != nil {
		return nil, err
	}
	return w, nil
}

// List returns the widgets of one owner, or of every owner the user may read when the
// filter is empty.
func (s *widgetService) List(ctx context.Context, rc widgets.RequestContext, filter widgets.WidgetFilter) ([]*widgets.WidgetRepresentation, error) {
	if rc.User == "" {
		return nil, widgets.NewAuthenticationRequiredError()
	}

	if filter.Kind != "" && filter.ObjectID != 0 {
		content, err := s.loadContent(ctx, filter.Kind, filter.ObjectID)
		if err != nil {
			return nil, err
		}
		if err := s.authorize(ctx, rc, content); err != nil {
			return nil, err
		}
		found, err := s.widgets.ListWidgets(ctx, filter)
		if err != nil {
			return nil, err
		}
		for _, w := range found {
			w.Content = content
		}
		return s.represent(ctx, rc, found)
	}

	found, err := s.widgets.ListWidgets(ctx, filter)
	if err != nil {
		return nil, err
	}

	type ownerKey struct {
		kind widgets.ContentKind
		id   int64
	}
	owners := make(map[ownerKey]widgets.ContentObject)
	allowed := make(map[int64]bool)
	visible := make([]*widgets.Widget, 0, len(found))
	for _, w := range found {
		key := ownerKey{w.Content.Kind, w.Content.ObjectID()}
		content, ok := owners[key]
		if !ok {
			content, err = s.loadContent(ctx, key.kind, key.id)
			if err != nil {
				if widgets.IsNotFoundError(err) {
					zap.S().Debugw("skipping widget of missing owner", "widget", w.ID, "kind", key.kind, "object", key.id)
					continue
				}
				return nil, err
			}
			owners[key] = content
		}

		projectID := content.ProjectID()
		permitted, seen := allowed[projectID]
		if !seen {
			if permitted, err = s.hasPermission(ctx, rc.User, projectID); err != nil {
				return nil, err
			}
			allowed[projectID] = permitted
		}
		if permitted {
			w.Content = content
			visible = append(visible, w)
		}
	}
	return s.represent(ctx, rc, visible)
}

func (s *widgetService) represent(ctx context.Context, rc widgets.RequestContext, list []*widgets.Widget) ([]*widgets.WidgetRepresentation, error) {
	out := make([]*widgets.WidgetRepresentation, 0, len(list))
	for _, w := range list {
		rep, err := s.serializer.ToRepresentation(ctx, rc, w)
		if err != nil {
			return nil, err
		}
		out = append(out, rep)
	}
	return out, nil
}

func (s *widgetService) Get(ctx context.Context, rc widgets.RequestContext, id int64) (*widgets.WidgetRepresentation, error) {
	w, err := s.loadWidget(ctx, rc, id)
	if err != nil {
		return nil, err
	}
	return s.serializer.ToRepresentation(ctx, rc, w)
}

// GetByKey serves a widget to anyone holding its key, always with data.
func (s *widgetService) GetByKey(ctx context.Context, rc widgets.RequestContext, key string) (*widgets.WidgetRepresentation, error) {
	w, err := s.widgets.GetWidgetByKey(ctx, key)
	if err != nil {
		return nil, err
	}
	if err := s.hydrate(ctx, w); err != nil {
		return nil, err
	}

	query := url.Values{}
	for k, v := range rc.Query {
		query[k] = v
	}
	query.Set("key", key)
	rc.Query = query
	return s.serializer.ToRepresentation(ctx, rc, w)
}

func (s *widgetService) Create(ctx context.Context, rc widgets.RequestContext, payload *widgets.WidgetPayload) (*widgets.WidgetRepresentation, error) {
	if rc.User == "" {
		return nil, widgets.NewAuthenticationRequiredError()
	}

	attrs, err := s.serializer.Validate(ctx, rc, payload, nil, false)
	if err != nil {
		return nil, err
	}

	w := &widgets.Widget{}
	attrs.Apply(w)
	if err := s.widgets.CreateWidget(ctx, w); err != nil {
		return nil, err
	}
	if attrs.Order != nil && *attrs.Order != w.Order {
		if err := s.widgets.Reorder(ctx, w, *attrs.Order); err != nil {
			return nil, err
		}
	}

	zap.S().Infow("widget created", "widget", w.ID, "user", rc.User, "kind", w.Content.Kind, "object", w.Content.ObjectID())
	return s.serializer.ToRepresentation(ctx, rc, w)
}

func (s *widgetService) Update(ctx context.Context, rc widgets.RequestContext, id int64, payload *widgets.WidgetPayload, partial bool) (*widgets.WidgetRepresentation, error) {
	w, err := s.loadWidget(ctx, rc, id)
	if err != nil {
		return nil, err
	}

	attrs, err := s.serializer.Validate(ctx, rc, payload, w, partial)
	if err != nil {
		return nil, err
	}
	moved := attrs.ContentObject != nil && !attrs.ContentObject.Same(w.Content)

	attrs.Apply(w)
	if err := s.widgets.UpdateWidget(ctx, w); err != nil {
		return nil, err
	}
	if moved && attrs.Order != nil && *attrs.Order != w.Order {
		if err := s.widgets.Reorder(ctx, w, *attrs.Order); err != nil {
			return nil, err
		}
	}

	zap.S().Infow("widget updated", "widget", w.ID, "user", rc.User, "partial", partial)
	return s.serializer.ToRepresentation(ctx, rc, w)
}

func (s *widgetService) Delete(ctx context.Context, rc widgets.RequestContext, id int64) error {
	w, err := s.loadWidget(ctx, rc, id)
	if err != nil {
		return err
	}
	if err := s.widgets.DeleteWidget(ctx, w.ID); err != nil {
		return err
	}
	zap.S().Infow("widget deleted", "widget", w.ID, "user", rc.User)
	return nil
}

func (s *widgetService) GetForm(ctx context.Context, rc widgets.RequestContext, id int64) (*widgets.Form, error) {
	form, err := s.forms.GetForm(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.authorize(ctx, rc, widgets.FormContent(form)); err != nil {
		return nil, err
	}
	return form, nil
}

func (s *widgetService) GetDataView(ctx context.Context, rc widgets.RequestContext, id int64) (*widgets.FilteredView, error) {
	view, err := s.views.GetDataView(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.authorize(ctx, rc, widgets.DataViewContent(view)); err != nil {
		return nil, err
	}
	return view, nil
}
