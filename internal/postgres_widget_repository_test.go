package internal

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/lychee-technology/widgets"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var widgetRowColumns = []string{
	"id", "widget_key", "title", "description", "widget_type", "view_type", "order",
	"column_name", "group_by", "aggregation", "content_type", "object_id", "created_at", "updated_at",
}

func newWidgetRepoMock(t *testing.T) (*PostgresWidgetRepository, pgxmock.PgxPoolIface, time.Time) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	mock.MatchExpectationsInOrder(true)

	repo := NewPostgresWidgetRepository(mock, "widgets")
	fixed := time.Date(2024, 10, 17, 9, 30, 0, 0, time.UTC)
	repo.withClock(func() time.Time { return fixed })
	repo.keyFunc = func() string { return "8b2f0d3e5c6a4b1f9e7d2c3b4a5f6e7d" }
	return repo, mock, fixed
}

func TestNewWidgetKey(t *testing.T) {
	key := newWidgetKey()
	assert.Regexp(t, `^[0-9a-f]{32}$`, key)
	assert.NotEqual(t, key, newWidgetKey())
}

func TestGetWidgetWithMockPool(t *testing.T) {
	repo, mock, fixed := newWidgetRepoMock(t)

	rows := pgxmock.NewRows(widgetRowColumns).AddRow(
		int64(3), "8b2f0d3e5c6a4b1f9e7d2c3b4a5f6e7d", strPtr("Ages"), (*string)(nil), "charts", "horizontal-bar", 2,
		"age", (*string)(nil), strPtr("count"), "dataview", int64(5), fixed, fixed,
	)
	mock.ExpectQuery(`^SELECT id, widget_key, .* FROM "widgets" WHERE id = \$1$`).
		WithArgs(int64(3)).
		WillReturnRows(rows)

	w, err := repo.GetWidget(context.Background(), 3)
	require.NoError(t, err)
	assert.Equal(t, int64(3), w.ID)
	assert.Equal(t, "Ages", w.Title)
	assert.Empty(t, w.Description)
	assert.Equal(t, "count", w.Aggregation)
	assert.Equal(t, 2, w.Order)
	assert.Equal(t, widgets.ContentKindDataView, w.Content.Kind)
	assert.Equal(t, int64(5), w.Content.ObjectID())

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetWidgetNotFound(t *testing.T) {
	repo, mock, _ := newWidgetRepoMock(t)

	mock.ExpectQuery(`FROM "widgets" WHERE widget_key = \$1`).
		WithArgs("missing").
		WillReturnError(pgx.ErrNoRows)

	_, err := repo.GetWidgetByKey(context.Background(), "missing")
	assert.True(t, widgets.IsNotFoundError(err))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestListWidgetsWithMockPool(t *testing.T) {
	repo, mock, fixed := newWidgetRepoMock(t)

	rows := pgxmock.NewRows(widgetRowColumns).
		AddRow(int64(1), "k1", (*string)(nil), (*string)(nil), "charts", "bar", 0, "age", (*string)(nil), (*string)(nil), "xform", int64(1), fixed, fixed).
		AddRow(int64(2), "k2", (*string)(nil), (*string)(nil), "charts", "pie", 1, "gender", strPtr("age"), (*string)(nil), "xform", int64(1), fixed, fixed)
	mock.ExpectQuery(regexp.QuoteMeta(`WHERE content_type = $1 AND object_id = $2 ORDER BY content_type, object_id, "order", id`)).
		WithArgs("xform", int64(1)).
		WillReturnRows(rows)

	list, err := repo.ListWidgets(context.Background(), widgets.WidgetFilter{Kind: widgets.ContentKindForm, ObjectID: 1})
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "gender", list[1].Column)
	assert.Equal(t, "age", list[1].GroupBy)

	mock.ExpectQuery(`FROM "widgets" ORDER BY`).
		WillReturnRows(pgxmock.NewRows(widgetRowColumns))
	list, err = repo.ListWidgets(context.Background(), widgets.WidgetFilter{})
	require.NoError(t, err)
	assert.Empty(t, list)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateWidgetWithMockPool(t *testing.T) {
	repo, mock, fixed := newWidgetRepoMock(t)

	w := &widgets.Widget{
		Title:    "Ages",
		ViewType: "horizontal-bar",
		Column:   "age",
		Content:  widgets.FormContent(&widgets.Form{ID: 1}),
	}
	mock.ExpectQuery(`^INSERT INTO "widgets"`).
		WithArgs("8b2f0d3e5c6a4b1f9e7d2c3b4a5f6e7d", "Ages", nil, "charts", "horizontal-bar",
			"age", nil, nil, "xform", int64(1), fixed).
		WillReturnRows(pgxmock.NewRows([]string{"id", "order"}).AddRow(int64(11), 4))

	require.NoError(t, repo.CreateWidget(context.Background(), w))
	assert.Equal(t, int64(11), w.ID)
	assert.Equal(t, 4, w.Order)
	assert.Equal(t, "8b2f0d3e5c6a4b1f9e7d2c3b4a5f6e7d", w.Key)
	assert.Equal(t, widgets.WidgetTypeCharts, w.WidgetType)
	assert.Equal(t, fixed, w.CreatedAt)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateWidgetWithoutOwner(t *testing.T) {
	repo, _, _ := newWidgetRepoMock(t)
	err := repo.CreateWidget(context.Background(), &widgets.Widget{Column: "age"})
	require.Error(t, err)
}

func TestUpdateAndDeleteWidgetWithMockPool(t *testing.T) {
	repo, mock, fixed := newWidgetRepoMock(t)

	w := &widgets.Widget{
		ID:         3,
		Title:      "Renamed",
		WidgetType: widgets.WidgetTypeCharts,
		ViewType:   "pie",
		Column:     "gender",
		Content:    widgets.DataViewContent(&widgets.FilteredView{ID: 5}),
	}
	mock.ExpectQuery(`^UPDATE "widgets" AS w SET`).
		WithArgs(int64(3), "Renamed", nil, "charts", "pie", "gender", nil, nil, "dataview", int64(5), fixed).
		WillReturnRows(pgxmock.NewRows([]string{"order"}).AddRow(4))
	require.NoError(t, repo.UpdateWidget(context.Background(), w))
	assert.Equal(t, fixed, w.UpdatedAt)
	assert.Equal(t, 4, w.Order)

	mock.ExpectQuery(`^UPDATE "widgets" AS w SET`).
		WithArgs(int64(3), "Renamed", nil, "charts", "pie", "gender", nil, nil, "dataview", int64(5), fixed).
		WillReturnError(pgx.ErrNoRows)
	err := repo.UpdateWidget(context.Background(), w)
	assert.True(t, widgets.IsNotFoundError(err))

	mock.ExpectExec(`^DELETE FROM "widgets" WHERE id = \$1$`).
		WithArgs(int64(3)).
		WillReturnResult(pgxmock.NewResult("DELETE", 0))
	err = repo.DeleteWidget(context.Background(), 3)
	assert.True(t, widgets.IsNotFoundError(err))

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestReorderWidgetWithMockPool(t *testing.T) {
	tests := []struct {
		name    string
		current int
		to      int
		shift   string
		args    []any
	}{
		{
			name:    "move up",
			current: 3,
			to:      1,
			shift:   `SET "order" = "order" \+ 1`,
			args:    []any{"xform", int64(1), 1, 3},
		},
		{
			name:    "move down",
			current: 1,
			to:      3,
			shift:   `SET "order" = "order" - 1`,
			args:    []any{"xform", int64(1), 1, 3},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo, mock, fixed := newWidgetRepoMock(t)
			w := &widgets.Widget{ID: 7, Order: tt.current, Content: widgets.FormContent(&widgets.Form{ID: 1})}

			mock.ExpectBegin()
			mock.ExpectQuery(`SELECT "order" FROM "widgets" WHERE id = \$1 FOR UPDATE`).
				WithArgs(int64(7)).
				WillReturnRows(pgxmock.NewRows([]string{"order"}).AddRow(tt.current))
			mock.ExpectExec(tt.shift).
				WithArgs(tt.args...).
				WillReturnResult(pgxmock.NewResult("UPDATE", 2))
			mock.ExpectExec(`UPDATE "widgets" SET "order" = \$2, updated_at = \$3 WHERE id = \$1`).
				WithArgs(int64(7), tt.to, fixed).
				WillReturnResult(pgxmock.NewResult("UPDATE", 1))
			mock.ExpectCommit()
			mock.ExpectRollback()

			require.NoError(t, repo.Reorder(context.Background(), w, tt.to))
			assert.Equal(t, tt.to, w.Order)
		})
	}
}

func TestReorderSamePositionOnlyLocks(t *testing.T) {
	repo, mock, _ := newWidgetRepoMock(t)
	w := &widgets.Widget{ID: 7, Order: 2, Content: widgets.FormContent(&widgets.Form{ID: 1})}

	mock.ExpectBegin()
	mock.ExpectQuery(`FOR UPDATE`).
		WithArgs(int64(7)).
		WillReturnRows(pgxmock.NewRows([]string{"order"}).AddRow(2))
	mock.ExpectCommit()
	mock.ExpectRollback()

	require.NoError(t, repo.Reorder(context.Background(), w, 2))
}

func TestReorderBeginFailure(t *testing.T) {
	repo, mock, _ := newWidgetRepoMock(t)
	w := &widgets.Widget{ID: 7, Content: widgets.FormContent(&widgets.Form{ID: 1})}

	mock.ExpectBegin().WillReturnError(errors.New("pool exhausted"))

	err := repo.Reorder(context.Background(), w, 1)
	var we *widgets.WidgetError
	require.True(t, errors.As(err, &we))
	assert.Equal(t, widgets.ErrorTypeTransaction, we.Type)
}
