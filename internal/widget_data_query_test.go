package internal

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/lychee-technology/widgets"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func floatPtr(v float64) *float64 { return &v }

func newDataQueryMock(t *testing.T) (*WidgetDataQuery, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	mock.MatchExpectationsInOrder(true)

	q := NewWidgetDataQuery(mock, householdsRegistry(t), WidgetDataQueryOptions{
		InstancesTable: "instances",
		Timeout:        time.Second,
		Breaker:        NewCircuitBreaker(3, time.Minute, time.Minute),
	})
	return q, mock
}

func TestWidgetDataQuery_Counts(t *testing.T) {
	q, mock := newDataQueryMock(t)

	mock.ExpectQuery(regexp.QuoteMeta(q.countQuery())).
		WithArgs("gender", int64(1)).
		WillReturnRows(pgxmock.NewRows([]string{"value", "count"}).
			AddRow(strPtr("female"), int64(7)).
			AddRow(strPtr("male"), int64(5)).
			AddRow((*string)(nil), int64(2)))

	got, err := q.QueryData(context.Background(), &widgets.Widget{
		ID: 1, Column: "gender", Content: widgets.FormContent(householdsForm),
	})
	require.NoError(t, err)

	want := &widgets.WidgetData{
		FieldType:  "select one",
		DataType:   "categorized",
		FieldXPath: "gender",
		FieldLabel: "Gender",
		Data: []map[string]any{
			{"gender": "Female", "count": int64(7)},
			{"gender": "Male", "count": int64(5)},
			{"gender": nil, "count": int64(2)},
		},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("QueryData mismatch (-want +got):\n%s", diff)
	}
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestWidgetDataQuery_NumericCounts(t *testing.T) {
	q, mock := newDataQueryMock(t)

	mock.ExpectQuery(regexp.QuoteMeta(q.countQuery())).
		WithArgs("age", int64(1)).
		WillReturnRows(pgxmock.NewRows([]string{"value", "count"}).
			AddRow(strPtr("30"), int64(2)).
			AddRow(strPtr("4.5"), int64(1)))

	got, err := q.QueryData(context.Background(), &widgets.Widget{
		ID: 1, Column: "age", Content: widgets.DataViewContent(householdsView),
	})
	require.NoError(t, err)
	assert.Equal(t, "numeric", got.DataType)
	assert.Nil(t, got.GroupedBy)
	assert.Equal(t, []map[string]any{
		{"age": int64(30), "count": int64(2)},
		{"age": 4.5, "count": int64(1)},
	}, got.Data)
}

func TestWidgetDataQuery_SelectMultipleSplit(t *testing.T) {
	q, mock := newDataQueryMock(t)

	mock.ExpectQuery(regexp.QuoteMeta(q.countQuery())).
		WithArgs("fruits", int64(1)).
		WillReturnRows(pgxmock.NewRows([]string{"value", "count"}).
			AddRow(strPtr("mango apple"), int64(3)).
			AddRow(strPtr("apple"), int64(2)).
			AddRow(strPtr("orange"), int64(3)))

	got, err := q.QueryData(context.Background(), &widgets.Widget{
		ID: 1, Column: "fruits", Content: widgets.FormContent(householdsForm),
	})
	require.NoError(t, err)
	assert.Equal(t, []map[string]any{
		{"fruits": "Apple", "count": int64(5)},
		{"fruits": "Mango", "count": int64(3)},
		{"fruits": "Orange", "count": int64(3)},
	}, got.Data)
}

func TestWidgetDataQuery_NumericGroupedBy(t *testing.T) {
	q, mock := newDataQueryMock(t)

	mock.ExpectQuery(regexp.QuoteMeta(q.groupedNumericQuery())).
		WithArgs("income", "gender", int64(1)).
		WillReturnRows(pgxmock.NewRows([]string{"group", "sum", "mean"}).
			AddRow(strPtr("female"), floatPtr(300), floatPtr(100)).
			AddRow(strPtr("male"), floatPtr(50), floatPtr(25)))

	got, err := q.QueryData(context.Background(), &widgets.Widget{
		ID: 1, Column: "income", GroupBy: "gender", Content: widgets.FormContent(householdsForm),
	})
	require.NoError(t, err)
	require.NotNil(t, got.GroupedBy)
	assert.Equal(t, "gender", *got.GroupedBy)
	assert.Equal(t, []map[string]any{
		{"gender": "Female", "sum": 300.0, "mean": 100.0},
		{"gender": "Male", "sum": 50.0, "mean": 25.0},
	}, got.Data)
}

func TestWidgetDataQuery_GroupedCounts(t *testing.T) {
	q, mock := newDataQueryMock(t)

	mock.ExpectQuery(regexp.QuoteMeta(q.groupedCountQuery())).
		WithArgs("gender", "name", int64(1)).
		WillReturnRows(pgxmock.NewRows([]string{"value", "group", "count"}).
			AddRow(strPtr("male"), strPtr("Juma"), int64(1)))

	got, err := q.QueryData(context.Background(), &widgets.Widget{
		ID: 1, Column: "gender", GroupBy: "name", Content: widgets.FormContent(householdsForm),
	})
	require.NoError(t, err)
	assert.Equal(t, []map[string]any{{"gender": "Male", "name": "Juma", "count": int64(1)}}, got.Data)
}

func TestWidgetDataQuery_SubmissionTime(t *testing.T) {
	q, mock := newDataQueryMock(t)

	mock.ExpectQuery(regexp.QuoteMeta(q.countQuery())).
		WithArgs("_submission_time", int64(1)).
		WillReturnRows(pgxmock.NewRows([]string{"value", "count"}).
			AddRow(strPtr("2024-10-17T09:00:00"), int64(1)))

	got, err := q.QueryData(context.Background(), &widgets.Widget{
		ID: 1, Column: "_submission_time", Content: widgets.FormContent(householdsForm),
	})
	require.NoError(t, err)
	assert.Equal(t, "time_based", got.DataType)
	assert.Equal(t, "Submission Time", got.FieldLabel)
}

func TestWidgetDataQuery_UnknownColumn(t *testing.T) {
	q, _ := newDataQueryMock(t)

	_, err := q.QueryData(context.Background(), &widgets.Widget{
		ID: 1, Column: "gone", Content: widgets.FormContent(householdsForm),
	})
	assert.True(t, widgets.IsNotFoundError(err))
}

func TestWidgetDataQuery_FailuresOpenBreaker(t *testing.T) {
	q, mock := newDataQueryMock(t)
	w := &widgets.Widget{ID: 1, Column: "gender", Content: widgets.FormContent(householdsForm)}

	for i := 0; i < 3; i++ {
		mock.ExpectQuery(regexp.QuoteMeta(q.countQuery())).
			WithArgs("gender", int64(1)).
			WillReturnError(errors.New("statement timeout"))
		_, err := q.QueryData(context.Background(), w)
		var we *widgets.WidgetError
		require.True(t, errors.As(err, &we))
		assert.Equal(t, widgets.ErrorTypeQuery, we.Type)
	}

	_, err := q.QueryData(context.Background(), w)
	require.ErrorIs(t, err, ErrCircuitOpen)
	require.NoError(t, mock.ExpectationsWereMet())
}
