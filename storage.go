package widgets

import (
	"context"
)

// FormRepository reads forms.
type FormRepository interface {
	GetForm(ctx context.Context, id int64) (*Form, error)
}

// DataViewRepository reads filtered views. Returned views carry their Form.
type DataViewRepository interface {
	GetDataView(ctx context.Context, id int64) (*FilteredView, error)
}

// PermissionRepository enumerates the users holding any permission on a project.
type PermissionRepository interface {
	UsersWithPermissions(ctx context.Context, projectID int64) ([]string, error)
}

// WidgetRepository persists widgets.
type WidgetRepository interface {
	GetWidget(ctx context.Context, id int64) (*Widget, error)
	GetWidgetByKey(ctx context.Context, key string) (*Widget, error)
	ListWidgets(ctx context.Context, filter WidgetFilter) ([]*Widget, error)
	CreateWidget(ctx context.Context, widget *Widget) error
	UpdateWidget(ctx context.Context, widget *Widget) error
	DeleteWidget(ctx context.Context, id int64) error
	// Reorder moves widget to position order among the widgets of the same owner.
	Reorder(ctx context.Context, widget *Widget, order int) error
}

// WidgetDataQuerier computes a widget's chart data from submissions.
type WidgetDataQuerier interface {
	QueryData(ctx context.Context, widget *Widget) (*WidgetData, error)
}

// WidgetManager is the request-level API over widgets.
type WidgetManager interface {
	List(ctx context.Context, rc RequestContext, filter WidgetFilter) ([]*WidgetRepresentation, error)
	Get(ctx context.Context, rc RequestContext, id int64) (*WidgetRepresentation, error)
	GetByKey(ctx context.Context, rc RequestContext, key string) (*WidgetRepresentation, error)
	Create(ctx context.Context, rc RequestContext, payload *WidgetPayload) (*WidgetRepresentation, error)
	Update(ctx context.Context, rc RequestContext, id int64, payload *WidgetPayload, partial bool) (*WidgetRepresentation, error)
	Delete(ctx context.Context, rc RequestContext, id int64) error

	GetForm(ctx context.Context, rc RequestContext, id int64) (*Form, error)
	GetDataView(ctx context.Context, rc RequestContext, id int64) (*FilteredView, error)
}
