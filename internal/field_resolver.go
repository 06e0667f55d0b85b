package internal

import (
	"context"

	"github.com/lychee-technology/widgets"
	"go.uber.org/zap"
)

// FieldResolver finds the schema field a widget's column refers to.
type FieldResolver struct {
	schemas widgets.SchemaRegistry
}

// NewFieldResolver creates a resolver backed by the schema registry.
func NewFieldResolver(schemas widgets.SchemaRegistry) *FieldResolver {
	return &FieldResolver{schemas: schemas}
}

// ResolveWidgetField returns the descriptor of widget.Column on the owning form.
//
// A nil descriptor with a nil error means there is no metadata: the form has no schema
// document or the column is not a question of it. Unsupported owners, malformed schemas
// and storage failures are returned as errors.
func (r *FieldResolver) ResolveWidgetField(ctx context.Context, widget *widgets.Widget) (widgets.FieldDescriptor, error) {
	if widget == nil {
		return nil, nil
	}
	form, err := widget.Content.OwningForm()
	if err != nil {
		return nil, err
	}
	return r.ResolveColumn(ctx, form, widget.Column)
}

// ResolveColumn looks column up on form's data dictionary.
func (r *FieldResolver) ResolveColumn(ctx context.Context, form *widgets.Form, column string) (widgets.FieldDescriptor, error) {
	if column == widgets.SubmissionTime {
		return widgets.SubmissionTimeField(), nil
	}

	dd, err := r.schemas.DataDictionary(ctx, form)
	if err != nil {
		if widgets.IsNotFoundError(err) {
			zap.S().Debugw("no data dictionary for widget field", "form", form.ID, "column", column, "error", err)
			return nil, nil
		}
		return nil, err
	}

	field, ok := dd.FieldByName(column)
	if !ok {
		return nil, nil
	}
	return field, nil
}
