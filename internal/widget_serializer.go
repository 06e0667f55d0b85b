package internal

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"slices"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/lychee-technology/widgets"
	"go.uber.org/zap"
)

const (
	fieldContentObject = "content_object"
	fieldColumn        = "column"
	fieldViewType      = "view_type"

	msgFieldRequired    = "This field is required."
	msgFieldNull        = "This field may not be null."
	msgColumnNotInForm  = "'%s' not in the form."
	msgPermissionDenied = "You don't have permission to the XForm."
)

// WidgetSerializer converts widgets to their API representation and validates inbound
// payloads.
type WidgetSerializer struct {
	relation      *GenericRelatedField
	resolver      *FieldResolver
	schemas       widgets.SchemaRegistry
	permissions   widgets.PermissionRepository
	repo          widgets.WidgetRepository
	data          widgets.WidgetDataQuerier
	validate      *validator.Validate
	languageIndex int
}

// WidgetSerializerDeps groups the collaborators of a WidgetSerializer.
type WidgetSerializerDeps struct {
	Relation      *GenericRelatedField
	Schemas       widgets.SchemaRegistry
	Permissions   widgets.PermissionRepository
	Widgets       widgets.WidgetRepository
	Data          widgets.WidgetDataQuerier
	LanguageIndex int
}

// NewWidgetSerializer creates a serializer.
func NewWidgetSerializer(deps WidgetSerializerDeps) *WidgetSerializer {
	return &WidgetSerializer{
		relation:      deps.Relation,
		resolver:      NewFieldResolver(deps.Schemas),
		schemas:       deps.Schemas,
		permissions:   deps.Permissions,
		repo:          deps.Widgets,
		data:          deps.Data,
		validate:      newPayloadValidator(),
		languageIndex: deps.LanguageIndex,
	}
}

func newPayloadValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name, _, _ := strings.Cut(fld.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// ToRepresentation renders w for the request.
func (s *WidgetSerializer) ToRepresentation(ctx context.Context, rc widgets.RequestContext, w *widgets.Widget) (*widgets.WidgetRepresentation, error) {
	selfURL, err := s.relation.URLFor(rc, RouteWidgetDetail, w.ID)
	if err != nil {
		return nil, widgets.NewInternalError("failed to build widget url", err)
	}
	contentURL, err := s.relation.ToRepresentation(rc, w.Content)
	if err != nil {
		return nil, err
	}

	rep := &widgets.WidgetRepresentation{
		ID:            w.ID,
		URL:           selfURL,
		Key:           w.Key,
		Title:         optionalString(w.Title),
		Description:   optionalString(w.Description),
		WidgetType:    string(w.WidgetType),
		Order:         w.Order,
		ViewType:      w.ViewType,
		Column:        w.Column,
		GroupBy:       optionalString(w.GroupBy),
		ContentObject: contentURL,
		Aggregation:   optionalString(w.Aggregation),
		Data:          []any{},
	}

	if rc.WantsData() && w.Persisted() {
		data, err := s.data.QueryData(ctx, w)
		if err != nil {
			return nil, err
		}
		rep.Data = data
	}

	field, err := s.resolver.ResolveWidgetField(ctx, w)
	if err != nil {
		return nil, err
	}
	if field != nil {
		fieldType := field.Type()
		dataType := widgets.DataTypeFor(fieldType)
		xpath := field.AbbreviatedXPath()
		label := widgets.FieldLabel(field, s.languageIndex)
		rep.FieldType = &fieldType
		rep.DataType = &dataType
		rep.FieldXPath = &xpath
		rep.FieldLabel = &label
	}

	return rep, nil
}

// Validate checks payload against instance, which is nil on create. partial relaxes the
// required fields for PATCH. A supplied order is applied to an existing instance right
// away unless the payload moves it to another owner, which requires a permission on the
// new owner. Field failures are returned as *widgets.ValidationErrors.
func (s *WidgetSerializer) Validate(ctx context.Context, rc widgets.RequestContext, payload *widgets.WidgetPayload, instance *widgets.Widget, partial bool) (*widgets.WidgetAttrs, error) {
	if payload == nil {
		payload = &widgets.WidgetPayload{}
	}
	creating := !instance.Persisted()
	ve := widgets.NewValidationErrors()

	s.validateFields(payload, ve)

	if !partial {
		if payload.ViewType == nil && !ve.HasField(fieldViewType) {
			ve.Add(widgets.NewFieldError(fieldViewType, widgets.RelationRequired, msgFieldRequired))
		}
		if payload.Column == nil && !ve.HasField(fieldColumn) {
			ve.Add(widgets.NewFieldError(fieldColumn, widgets.RelationRequired, msgFieldRequired))
		}
	}

	var content *widgets.ContentObject
	switch {
	case payload.ContentObjectNull && payload.ContentObject == nil:
		ve.Add(widgets.NewFieldError(fieldContentObject, "null", msgFieldNull))
	case payload.ContentObject != nil || !partial:
		obj, err := s.relation.ToInternalValue(ctx, payload.ContentObject)
		if err != nil {
			var fe *widgets.FieldError
			if !errors.As(err, &fe) {
				return nil, err
			}
			ve.Add(widgets.NewFieldError(fieldContentObject, fe.Code, fe.Message))
			break
		}
		switch {
		case creating:
			if err := s.checkContentPermission(ctx, rc, obj, ve); err != nil {
				return nil, err
			}
		case !obj.Same(instance.Content):
			if err := s.authorizeMove(ctx, rc, instance, obj); err != nil {
				return nil, err
			}
		}
		content = &obj
	}

	if ve.HasErrors() {
		return nil, s.reject(ctx, ve)
	}

	attrs := &widgets.WidgetAttrs{
		Title:         payload.Title,
		Description:   payload.Description,
		Order:         payload.Order,
		ViewType:      payload.ViewType,
		Column:        payload.Column,
		GroupBy:       payload.GroupBy,
		Aggregation:   payload.Aggregation,
		ContentObject: content,
	}
	if payload.WidgetType != nil {
		wt := widgets.WidgetType(*payload.WidgetType)
		attrs.WidgetType = &wt
	}

	owner := content
	if owner == nil && payload.Column != nil && !creating {
		owner = &instance.Content
	}
	if owner != nil {
		column := ""
		if payload.Column != nil {
			column = *payload.Column
		} else if instance != nil {
			column = instance.Column
		}
		if err := s.validateColumn(ctx, *owner, column, ve); err != nil {
			return nil, err
		}
		if ve.HasErrors() {
			return nil, s.reject(ctx, ve)
		}
	}

	// A moved widget is reordered by the caller once it sits under its new owner.
	moving := content != nil && !creating && !content.Same(instance.Content)
	if payload.Order != nil && !creating && !moving {
		if err := s.repo.Reorder(ctx, instance, *payload.Order); err != nil {
			return nil, err
		}
	}

	return attrs, nil
}

func (s *WidgetSerializer) reject(ctx context.Context, ve *widgets.ValidationErrors) error {
	for _, field := range ve.Fields() {
		EmitValidationFailure(ctx, field)
	}
	return ve
}

func (s *WidgetSerializer) validateFields(payload *widgets.WidgetPayload, ve *widgets.ValidationErrors) {
	err := s.validate.Struct(payload)
	if err == nil {
		return
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		ve.Add(widgets.NewFieldError(widgets.NonFieldErrors, "invalid", err.Error()))
		return
	}
	for _, fe := range verrs {
		ve.Add(widgets.NewFieldError(fe.Field(), fe.Tag(), validationMessage(fe)))
	}
}

func validationMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "max":
		if fe.Kind() == reflect.String {
			return fmt.Sprintf("Ensure this field has no more than %s characters.", fe.Param())
		}
		return fmt.Sprintf("Ensure this value is less than or equal to %s.", fe.Param())
	case "min":
		return fmt.Sprintf("Ensure this value is greater than or equal to %s.", fe.Param())
	case "oneof":
		return fmt.Sprintf("\"%v\" is not a valid choice.", fe.Value())
	default:
		return "Invalid value."
	}
}

// checkContentPermission requires the acting user to hold a permission on the owner's
// project.
func (s *WidgetSerializer) checkContentPermission(ctx context.Context, rc widgets.RequestContext, obj widgets.ContentObject, ve *widgets.ValidationErrors) error {
	users, err := s.permissions.UsersWithPermissions(ctx, obj.ProjectID())
	if err != nil {
		return err
	}
	if rc.User == "" || !slices.Contains(users, rc.User) {
		zap.S().Infow("widget owner permission denied", "user", rc.User, "kind", obj.Kind, "object", obj.ObjectID())
		ve.Add(widgets.NewFieldError(fieldContentObject, "permission_denied", msgPermissionDenied))
	}
	return nil
}

// authorizeMove requires the acting user to hold a permission on the project of the
// owner w is moved to.
func (s *WidgetSerializer) authorizeMove(ctx context.Context, rc widgets.RequestContext, w *widgets.Widget, to widgets.ContentObject) error {
	users, err := s.permissions.UsersWithPermissions(ctx, to.ProjectID())
	if err != nil {
		return err
	}
	if rc.User == "" || !slices.Contains(users, rc.User) {
		zap.S().Infow("widget move denied", "widget", w.ID, "user", rc.User, "kind", to.Kind, "object", to.ObjectID())
		return widgets.NewPermissionDeniedError("You do not have permission to perform this action.")
	}
	return nil
}

// validateColumn requires column among the owning form's headers. A form without a
// schema document has no headers. A miss reloads the dictionary once before failing.
func (s *WidgetSerializer) validateColumn(ctx context.Context, obj widgets.ContentObject, column string, ve *widgets.ValidationErrors) error {
	form, err := obj.OwningForm()
	if err != nil {
		return err
	}

	dd, err := s.schemas.DataDictionary(ctx, form)
	if err != nil && !widgets.IsNotFoundError(err) {
		return err
	}
	if dd != nil && !dd.HasHeader(column) {
		// Reload once: the cached document may be older than the stored one.
		s.schemas.Invalidate(form)
		zap.S().Debugw("column missing from cached schema, reloading", "form", form.IDString, "column", column)
		dd, err = s.schemas.DataDictionary(ctx, form)
		if err != nil && !widgets.IsNotFoundError(err) {
			return err
		}
	}
	if dd == nil || !dd.HasHeader(column) {
		ve.Add(widgets.NewFieldError(fieldColumn, "invalid", fmt.Sprintf(msgColumnNotInForm, column)))
	}
	return nil
}

func optionalString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
