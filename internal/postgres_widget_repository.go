package internal

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lychee-technology/widgets"
	"go.uber.org/zap"
)

type widgetPool interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	BeginTx(ctx context.Context, txOptions pgx.TxOptions) (pgx.Tx, error)
}

type rowScanner interface {
	Scan(dest ...any) error
}

const widgetColumns = `id, widget_key, title, description, widget_type, view_type, "order", column_name, group_by, aggregation, content_type, object_id, created_at, updated_at`

// PostgresWidgetRepository stores widgets in a single table. Owners are stored as
// (content_type, object_id); returned widgets carry owner stubs holding only the id.
type PostgresWidgetRepository struct {
	pool    widgetPool
	table   string
	nowFunc func() time.Time
	keyFunc func() string
}

// NewPostgresWidgetRepository creates a repository over table.
func NewPostgresWidgetRepository(pool widgetPool, table string) *PostgresWidgetRepository {
	return &PostgresWidgetRepository{
		pool:    pool,
		table:   sanitizeIdentifier(table),
		nowFunc: time.Now,
		keyFunc: newWidgetKey,
	}
}

func (r *PostgresWidgetRepository) withClock(now func() time.Time) {
	if now == nil {
		return
	}
	r.nowFunc = now
}

// newWidgetKey returns 32 lowercase hex characters.
func newWidgetKey() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}

func (r *PostgresWidgetRepository) now() time.Time {
	return r.nowFunc().UTC()
}

func scanWidget(row rowScanner) (*widgets.Widget, error) {
	var (
		w                                        widgets.Widget
		title, description, groupBy, aggregation *string
		widgetType, contentType                  string
		objectID                                 int64
	)
	if err := row.Scan(
		&w.ID, &w.Key, &title, &description, &widgetType, &w.ViewType, &w.Order,
		&w.Column, &groupBy, &aggregation, &contentType, &objectID, &w.CreatedAt, &w.UpdatedAt,
	); err != nil {
		return nil, err
	}
	w.Title = derefString(title)
	w.Description = derefString(description)
	w.GroupBy = derefString(groupBy)
	w.Aggregation = derefString(aggregation)
	w.WidgetType = widgets.WidgetType(widgetType)
	w.Content = contentStub(widgets.ContentKind(contentType), objectID)
	return &w, nil
}

func contentStub(kind widgets.ContentKind, id int64) widgets.ContentObject {
	switch kind {
	case widgets.ContentKindForm:
		return widgets.FormContent(&widgets.Form{ID: id})
	case widgets.ContentKindDataView:
		return widgets.DataViewContent(&widgets.FilteredView{ID: id})
	default:
		return widgets.ContentObject{Kind: kind}
	}
}

func (r *PostgresWidgetRepository) GetWidget(ctx context.Context, id int64) (*widgets.Widget, error) {
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE id = $1`, widgetColumns, r.table)
	w, err := scanWidget(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, widgets.NewWidgetNotFoundError(id)
		}
		return nil, fmt.Errorf("get widget %d: %w", id, err)
	}
	return w, nil
}

func (r *PostgresWidgetRepository) GetWidgetByKey(ctx context.Context, key string) (*widgets.Widget, error) {
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE widget_key = $1`, widgetColumns, r.table)
	w, err := scanWidget(r.pool.QueryRow(ctx, query, key))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, widgets.NewWidgetNotFoundError(key)
		}
		return nil, fmt.Errorf("get widget by key: %w", err)
	}
	return w, nil
}

func (r *PostgresWidgetRepository) ListWidgets(ctx context.Context, filter widgets.WidgetFilter) ([]*widgets.Widget, error) {
	var (
		conds []string
		args  []any
	)
	if filter.Kind != "" {
		args = append(args, string(filter.Kind))
		conds = append(conds, fmt.Sprintf("content_type = $%d", len(args)))
	}
	if filter.ObjectID != 0 {
		args = append(args, filter.ObjectID)
		conds = append(conds, fmt.Sprintf("object_id = $%d", len(args)))
	}
	where := ""
	if len(conds) > 0 {
		where = " WHERE " + strings.Join(conds, " AND ")
	}

	query := fmt.Sprintf(`SELECT %s FROM %s%s ORDER BY content_type, object_id, "order", id`, widgetColumns, r.table, where)
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list widgets: %w", err)
	}
	defer rows.Close()

	out := make([]*widgets.Widget, 0)
	for rows.Next() {
		w, err := scanWidget(rows)
		if err != nil {
			return nil, fmt.Errorf("scan widget: %w", err)
		}
		out = append(out, w)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate widgets: %w", err)
	}
	return out, nil
}

// CreateWidget inserts w at the end of its owner's ordering and fills the generated
// columns back in.
func (r *PostgresWidgetRepository) CreateWidget(ctx context.Context, w *widgets.Widget) error {
	if w == nil {
		return fmt.Errorf("widget cannot be nil")
	}
	if w.Content.ObjectID() == 0 {
		return widgets.NewUnsupportedContentError(w.Content.Kind)
	}
	if w.Key == "" {
		w.Key = r.keyFunc()
	}
	if w.WidgetType == "" {
		w.WidgetType = widgets.WidgetTypeCharts
	}
	now := r.now()

	query := fmt.Sprintf(`INSERT INTO %[1]s
		(widget_key, title, description, widget_type, view_type, "order", column_name, group_by, aggregation, content_type, object_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5,
			(SELECT COALESCE(MAX("order") + 1, 0) FROM %[1]s WHERE content_type = $9 AND object_id = $10),
			$6, $7, $8, $9, $10, $11, $11)
		RETURNING id, "order"`, r.table)

	err := r.pool.QueryRow(ctx, query,
		w.Key, nullableString(w.Title), nullableString(w.Description), string(w.WidgetType), w.ViewType,
		w.Column, nullableString(w.GroupBy), nullableString(w.Aggregation),
		string(w.Content.Kind), w.Content.ObjectID(), now,
	).Scan(&w.ID, &w.Order)
	if err != nil {
		return fmt.Errorf("insert widget: %w", err)
	}
	w.CreatedAt = now
	w.UpdatedAt = now
	return nil
}

// UpdateWidget writes every attribute except the key. The order is left to Reorder,
// except that a widget moved to another owner is appended to that owner's ordering.
func (r *PostgresWidgetRepository) UpdateWidget(ctx context.Context, w *widgets.Widget) error {
	if !w.Persisted() {
		return fmt.Errorf("widget must be persisted before update")
	}
	now := r.now()

	query := fmt.Sprintf(`UPDATE %[1]s AS w SET
		title = $2, description = $3, widget_type = $4, view_type = $5, column_name = $6,
		group_by = $7, aggregation = $8, content_type = $9, object_id = $10, updated_at = $11,
		"order" = CASE WHEN w.content_type = $9 AND w.object_id = $10 THEN w."order"
			ELSE (SELECT COALESCE(MAX(s."order") + 1, 0) FROM %[1]s s WHERE s.content_type = $9 AND s.object_id = $10)
		END
		WHERE w.id = $1
		RETURNING w."order"`, r.table)

	err := r.pool.QueryRow(ctx, query,
		w.ID, nullableString(w.Title), nullableString(w.Description), string(w.WidgetType), w.ViewType,
		w.Column, nullableString(w.GroupBy), nullableString(w.Aggregation),
		string(w.Content.Kind), w.Content.ObjectID(), now,
	).Scan(&w.Order)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return widgets.NewWidgetNotFoundError(w.ID)
		}
		return fmt.Errorf("update widget %d: %w", w.ID, err)
	}
	w.UpdatedAt = now
	return nil
}

func (r *PostgresWidgetRepository) DeleteWidget(ctx context.Context, id int64) error {
	tag, err := r.pool.Exec(ctx, fmt.Sprintf(`DELETE FROM %s WHERE id = $1`, r.table), id)
	if err != nil {
		return fmt.Errorf("delete widget %d: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return widgets.NewWidgetNotFoundError(id)
	}
	return nil
}

// Reorder moves w to position order among its owner's widgets, shifting the widgets
// in between by one.
func (r *PostgresWidgetRepository) Reorder(ctx context.Context, w *widgets.Widget, order int) error {
	if !w.Persisted() {
		return fmt.Errorf("widget must be persisted before reorder")
	}
	if order < 0 {
		order = 0
	}

	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return widgets.NewTransactionError("begin transaction", err)
	}
	defer tx.Rollback(ctx) // no-op if committed

	var current int
	lockQuery := fmt.Sprintf(`SELECT "order" FROM %s WHERE id = $1 FOR UPDATE`, r.table)
	if err := tx.QueryRow(ctx, lockQuery, w.ID).Scan(&current); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return widgets.NewWidgetNotFoundError(w.ID)
		}
		return fmt.Errorf("lock widget %d: %w", w.ID, err)
	}

	if order != current {
		var shift string
		if order < current {
			shift = fmt.Sprintf(`UPDATE %s SET "order" = "order" + 1
				WHERE content_type = $1 AND object_id = $2 AND "order" >= $3 AND "order" < $4`, r.table)
			_, err = tx.Exec(ctx, shift, string(w.Content.Kind), w.Content.ObjectID(), order, current)
		} else {
			shift = fmt.Sprintf(`UPDATE %s SET "order" = "order" - 1
				WHERE content_type = $1 AND object_id = $2 AND "order" > $3 AND "order" <= $4`, r.table)
			_, err = tx.Exec(ctx, shift, string(w.Content.Kind), w.Content.ObjectID(), current, order)
		}
		if err != nil {
			return fmt.Errorf("shift sibling widgets: %w", err)
		}

		move := fmt.Sprintf(`UPDATE %s SET "order" = $2, updated_at = $3 WHERE id = $1`, r.table)
		if _, err := tx.Exec(ctx, move, w.ID, order, r.now()); err != nil {
			return fmt.Errorf("move widget %d: %w", w.ID, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return widgets.NewTransactionError("commit transaction", err)
	}

	zap.S().Debugw("widget reordered", "widget", w.ID, "from", current, "to", order)
	w.Order = order
	return nil
}
