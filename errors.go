package widgets

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
)

// ErrorType represents the category of error
type ErrorType string

const (
	ErrorTypeValidation   ErrorType = "validation"
	ErrorTypeUnauthorized ErrorType = "unauthorized"
	ErrorTypeForbidden    ErrorType = "forbidden"
	ErrorTypeNotFound     ErrorType = "not_found"
	ErrorTypeInternal     ErrorType = "internal"
	ErrorTypeTransaction  ErrorType = "transaction"
	ErrorTypeQuery        ErrorType = "query"
)

// WidgetError is the unified error type returned by widget operations.
type WidgetError struct {
	Type    ErrorType      `json:"type"`
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Field   string         `json:"field,omitempty"`
	Details map[string]any `json:"details,omitempty"`
	Cause   error          `json:"-"`
}

func (e *WidgetError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("[%s:%s] field '%s': %s", e.Type, e.Code, e.Field, e.Message)
	}
	return fmt.Sprintf("[%s:%s] %s", e.Type, e.Code, e.Message)
}

func (e *WidgetError) Unwrap() error {
	return e.Cause
}

// WithDetail adds a single detail
func (e *WidgetError) WithDetail(key string, value any) *WidgetError {
	if e.Details == nil {
		e.Details = make(map[string]any)
	}
	e.Details[key] = value
	return e
}

// WithCause adds a cause
func (e *WidgetError) WithCause(cause error) *WidgetError {
	e.Cause = cause
	return e
}

// WithField adds field context
func (e *WidgetError) WithField(field string) *WidgetError {
	e.Field = field
	return e
}

// Error codes
const (
	ErrCodeWidgetNotFound       = "WIDGET_NOT_FOUND"
	ErrCodeFormNotFound         = "FORM_NOT_FOUND"
	ErrCodeDataViewNotFound     = "DATAVIEW_NOT_FOUND"
	ErrCodeSchemaNotFound       = "SCHEMA_NOT_FOUND"
	ErrCodeSchemaInvalid        = "SCHEMA_INVALID"
	ErrCodeFieldNotFound        = "FIELD_NOT_FOUND"
	ErrCodeUnsupportedContent   = "UNSUPPORTED_CONTENT_OBJECT"
	ErrCodeValidationFailed     = "VALIDATION_FAILED"
	ErrCodePermissionDenied     = "PERMISSION_DENIED"
	ErrCodeAuthenticationNeeded = "AUTHENTICATION_REQUIRED"
	ErrCodeQueryFailed          = "QUERY_FAILED"
	ErrCodeTransactionFailed    = "TRANSACTION_FAILED"
	ErrCodeInternalError        = "INTERNAL_ERROR"
)

// Relation field failure codes. The messages mirror what API clients already parse.
const (
	RelationRequired       = "required"
	RelationIncorrectType  = "incorrect_type"
	RelationNoMatch        = "no_match"
	RelationIncorrectMatch = "incorrect_match"
	RelationDoesNotExist   = "does_not_exist"
)

// NewWidgetError creates a new WidgetError
func NewWidgetError(errorType ErrorType, code, message string) *WidgetError {
	return &WidgetError{
		Type:    errorType,
		Code:    code,
		Message: message,
	}
}

// NewWidgetNotFoundError creates a widget not found error
func NewWidgetNotFoundError(id any) *WidgetError {
	return NewWidgetError(ErrorTypeNotFound, ErrCodeWidgetNotFound, fmt.Sprintf("widget %v not found", id)).
		WithDetail("id", id)
}

// NewFormNotFoundError creates a form not found error
func NewFormNotFoundError(id int64) *WidgetError {
	return NewWidgetError(ErrorTypeNotFound, ErrCodeFormNotFound, fmt.Sprintf("form %d not found", id)).
		WithDetail("id", id)
}

// NewDataViewNotFoundError creates a data view not found error
func NewDataViewNotFoundError(id int64) *WidgetError {
	return NewWidgetError(ErrorTypeNotFound, ErrCodeDataViewNotFound, fmt.Sprintf("dataview %d not found", id)).
		WithDetail("id", id)
}

// NewSchemaNotFoundError creates a schema not found error
func NewSchemaNotFoundError(name string) *WidgetError {
	return NewWidgetError(ErrorTypeNotFound, ErrCodeSchemaNotFound, fmt.Sprintf("schema '%s' not found", name)).
		WithDetail("schema_name", name)
}

// NewSchemaInvalidError creates an error for a schema document that cannot be used
func NewSchemaInvalidError(name string, cause error) *WidgetError {
	return NewWidgetError(ErrorTypeInternal, ErrCodeSchemaInvalid, fmt.Sprintf("schema '%s' is invalid", name)).
		WithDetail("schema_name", name).
		WithCause(cause)
}

// NewFieldNotFoundError creates an error for a column missing from a schema
func NewFieldNotFoundError(column string) *WidgetError {
	return NewWidgetError(ErrorTypeNotFound, ErrCodeFieldNotFound,
		fmt.Sprintf("field %s does not exist on the form", column)).WithField(column)
}

// NewUnsupportedContentError reports an owner that is neither a form nor a data view
func NewUnsupportedContentError(kind ContentKind) *WidgetError {
	return NewWidgetError(ErrorTypeInternal, ErrCodeUnsupportedContent,
		fmt.Sprintf("unknown type for content_object: %q", kind))
}

// NewPermissionDeniedError creates a permission error
func NewPermissionDeniedError(message string) *WidgetError {
	return NewWidgetError(ErrorTypeForbidden, ErrCodePermissionDenied, message)
}

// NewAuthenticationRequiredError is returned when an anonymous request needs a user
func NewAuthenticationRequiredError() *WidgetError {
	return NewWidgetError(ErrorTypeUnauthorized, ErrCodeAuthenticationNeeded,
		"authentication credentials were not provided")
}

// NewQueryError wraps a failed database query
func NewQueryError(message string, cause error) *WidgetError {
	return NewWidgetError(ErrorTypeQuery, ErrCodeQueryFailed, message).WithCause(cause)
}

// NewTransactionError creates a transaction error
func NewTransactionError(message string, cause error) *WidgetError {
	return NewWidgetError(ErrorTypeTransaction, ErrCodeTransactionFailed, message).WithCause(cause)
}

// NewInternalError creates an internal error
func NewInternalError(message string, cause error) *WidgetError {
	return NewWidgetError(ErrorTypeInternal, ErrCodeInternalError, message).WithCause(cause)
}

// ============================================================================
// FieldError and ValidationErrors
// ============================================================================

// NonFieldErrors is the key used for errors that do not belong to a single field.
const NonFieldErrors = "non_field_errors"

// FieldError is a single field-scoped validation failure.
type FieldError struct {
	Field   string `json:"field"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// NewFieldError creates a field-scoped validation failure
func NewFieldError(field, code, message string) *FieldError {
	return &FieldError{Field: field, Code: code, Message: message}
}

// ValidationErrors collects field-scoped validation failures.
type ValidationErrors struct {
	Errors []*FieldError
}

// NewValidationErrors creates an empty collection
func NewValidationErrors() *ValidationErrors {
	return &ValidationErrors{Errors: make([]*FieldError, 0)}
}

// Error implements the error interface for ValidationErrors
func (ve *ValidationErrors) Error() string {
	if len(ve.Errors) == 0 {
		return "no validation errors"
	}
	parts := make([]string, 0, len(ve.Errors))
	for _, fe := range ve.Errors {
		parts = append(parts, fe.Error())
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// Add adds a new error to the collection
func (ve *ValidationErrors) Add(err *FieldError) {
	ve.Errors = append(ve.Errors, err)
}

// HasErrors returns true if there are any errors
func (ve *ValidationErrors) HasErrors() bool {
	return len(ve.Errors) > 0
}

// HasField reports whether a failure was recorded for field.
func (ve *ValidationErrors) HasField(field string) bool {
	for _, fe := range ve.Errors {
		if fe.Field == field {
			return true
		}
	}
	return false
}

// Messages groups messages by field.
func (ve *ValidationErrors) Messages() map[string][]string {
	out := make(map[string][]string, len(ve.Errors))
	for _, fe := range ve.Errors {
		out[fe.Field] = append(out[fe.Field], fe.Message)
	}
	return out
}

// Fields returns the sorted names of the failing fields.
func (ve *ValidationErrors) Fields() []string {
	messages := ve.Messages()
	fields := make([]string, 0, len(messages))
	for field := range messages {
		fields = append(fields, field)
	}
	sort.Strings(fields)
	return fields
}

// MarshalJSON renders {"field": ["message", ...]}.
func (ve *ValidationErrors) MarshalJSON() ([]byte, error) {
	return json.Marshal(ve.Messages())
}

// ============================================================================
// Error checking utilities
// ============================================================================

// IsNotFoundError checks if an error is a not found error
func IsNotFoundError(err error) bool {
	var we *WidgetError
	if errors.As(err, &we) {
		return we.Type == ErrorTypeNotFound
	}
	return false
}

// IsValidationError checks if an error carries field validation failures
func IsValidationError(err error) bool {
	var ve *ValidationErrors
	if errors.As(err, &ve) {
		return true
	}
	var we *WidgetError
	if errors.As(err, &we) {
		return we.Type == ErrorTypeValidation
	}
	return false
}

// IsPermissionError checks if an error is a forbidden error
func IsPermissionError(err error) bool {
	var we *WidgetError
	if errors.As(err, &we) {
		return we.Type == ErrorTypeForbidden
	}
	return false
}

// IsUnauthorizedError checks if an error asks for authentication
func IsUnauthorizedError(err error) bool {
	var we *WidgetError
	if errors.As(err, &we) {
		return we.Type == ErrorTypeUnauthorized
	}
	return false
}
