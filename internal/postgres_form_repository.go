package internal

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/lychee-technology/widgets"
)

type formPool interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresFormRepository reads forms, their data views and project permissions.
type PostgresFormRepository struct {
	pool        formPool
	forms       string
	dataViews   string
	permissions string
}

// NewPostgresFormRepository creates a read-only repository over the configured tables.
func NewPostgresFormRepository(pool formPool, tables widgets.TableNames) *PostgresFormRepository {
	return &PostgresFormRepository{
		pool:        pool,
		forms:       sanitizeIdentifier(tables.Forms),
		dataViews:   sanitizeIdentifier(tables.DataViews),
		permissions: sanitizeIdentifier(tables.Permissions),
	}
}

func (r *PostgresFormRepository) GetForm(ctx context.Context, id int64) (*widgets.Form, error) {
	query := fmt.Sprintf(`SELECT id, id_string, title, project_id FROM %s WHERE id = $1 AND deleted_at IS NULL`, r.forms)

	var f widgets.Form
	if err := r.pool.QueryRow(ctx, query, id).Scan(&f.ID, &f.IDString, &f.Title, &f.ProjectID); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, widgets.NewFormNotFoundError(id)
		}
		return nil, fmt.Errorf("get form %d: %w", id, err)
	}
	return &f, nil
}

// GetDataView returns the view with its Form populated.
func (r *PostgresFormRepository) GetDataView(ctx context.Context, id int64) (*widgets.FilteredView, error) {
	query := fmt.Sprintf(`SELECT v.id, v.name, v.xform_id, v.project_id, v.columns,
			f.id_string, f.title, f.project_id
		FROM %s v
		JOIN %s f ON f.id = v.xform_id AND f.deleted_at IS NULL
		WHERE v.id = $1 AND v.deleted_at IS NULL`, r.dataViews, r.forms)

	var (
		v    widgets.FilteredView
		form widgets.Form
	)
	err := r.pool.QueryRow(ctx, query, id).Scan(
		&v.ID, &v.Name, &v.FormID, &v.ProjectID, &v.Columns,
		&form.IDString, &form.Title, &form.ProjectID,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, widgets.NewDataViewNotFoundError(id)
		}
		return nil, fmt.Errorf("get dataview %d: %w", id, err)
	}
	form.ID = v.FormID
	v.Form = &form
	return &v, nil
}

func (r *PostgresFormRepository) UsersWithPermissions(ctx context.Context, projectID int64) ([]string, error) {
	query := fmt.Sprintf(`SELECT DISTINCT username FROM %s WHERE project_id = $1 ORDER BY username`, r.permissions)

	rows, err := r.pool.Query(ctx, query, projectID)
	if err != nil {
		return nil, fmt.Errorf("list project %d permissions: %w", projectID, err)
	}
	defer rows.Close()

	users := make([]string, 0)
	for rows.Next() {
		var username string
		if err := rows.Scan(&username); err != nil {
			return nil, fmt.Errorf("scan permission row: %w", err)
		}
		users = append(users, username)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate permission rows: %w", err)
	}
	return users, nil
}
