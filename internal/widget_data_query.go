package internal

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/lychee-technology/widgets"
	"go.uber.org/zap"
)

type submissionQuerier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// WidgetDataQuery aggregates the submissions of a widget's owning form.
type WidgetDataQuery struct {
	pool          submissionQuerier
	instances     string
	resolver      *FieldResolver
	languageIndex int
	timeout       time.Duration
	breaker       *CircuitBreaker
}

// WidgetDataQueryOptions tunes a WidgetDataQuery.
type WidgetDataQueryOptions struct {
	InstancesTable string
	LanguageIndex  int
	Timeout        time.Duration
	Breaker        *CircuitBreaker
}

// NewWidgetDataQuery creates a querier over the submissions table.
func NewWidgetDataQuery(pool submissionQuerier, schemas widgets.SchemaRegistry, opts WidgetDataQueryOptions) *WidgetDataQuery {
	return &WidgetDataQuery{
		pool:          pool,
		instances:     sanitizeIdentifier(opts.InstancesTable),
		resolver:      NewFieldResolver(schemas),
		languageIndex: opts.LanguageIndex,
		timeout:       opts.Timeout,
		breaker:       opts.Breaker,
	}
}

func (q *WidgetDataQuery) countQuery() string {
	return fmt.Sprintf(`SELECT json->>$1::text AS value, COUNT(*) AS count
		FROM %s
		WHERE xform_id = $2 AND deleted_at IS NULL
		GROUP BY 1
		ORDER BY 2 DESC, 1`, q.instances)
}

func (q *WidgetDataQuery) groupedCountQuery() string {
	return fmt.Sprintf(`SELECT json->>$1::text AS value, json->>$2::text AS "group", COUNT(*) AS count
		FROM %s
		WHERE xform_id = $3 AND deleted_at IS NULL
		GROUP BY 1, 2
		ORDER BY 1, 2`, q.instances)
}

func (q *WidgetDataQuery) groupedNumericQuery() string {
	return fmt.Sprintf(`SELECT json->>$2::text AS "group",
			SUM((json->>$1::text)::float8) AS sum,
			AVG((json->>$1::text)::float8) AS mean
		FROM %s
		WHERE xform_id = $3 AND deleted_at IS NULL
		GROUP BY 1
		ORDER BY 1`, q.instances)
}

// QueryData counts answers to the widget's column, optionally grouped by a second
// column. Numeric columns grouped by another column report sum and mean instead.
func (q *WidgetDataQuery) QueryData(ctx context.Context, w *widgets.Widget) (*widgets.WidgetData, error) {
	form, err := w.Content.OwningForm()
	if err != nil {
		return nil, err
	}
	field, err := q.resolver.ResolveColumn(ctx, form, w.Column)
	if err != nil {
		return nil, err
	}
	if field == nil {
		return nil, widgets.NewFieldNotFoundError(w.Column)
	}

	result := &widgets.WidgetData{
		FieldType:  field.Type(),
		DataType:   widgets.DataTypeFor(field.Type()),
		FieldXPath: field.AbbreviatedXPath(),
		FieldLabel: widgets.FieldLabel(field, q.languageIndex),
	}

	var groupField widgets.FieldDescriptor
	if w.GroupBy != "" {
		groupBy := w.GroupBy
		result.GroupedBy = &groupBy
		if groupField, err = q.resolver.ResolveColumn(ctx, form, groupBy); err != nil {
			return nil, err
		}
	}

	if q.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, q.timeout)
		defer cancel()
	}

	started := time.Now()
	err = q.breaker.Execute(func() error {
		var qerr error
		switch {
		case w.GroupBy == "":
			result.Data, qerr = q.queryCounts(ctx, form.ID, w.Column, field)
		case widgets.IsNumericType(field.Type()):
			result.Data, qerr = q.queryNumericGroups(ctx, form.ID, w.Column, w.GroupBy, groupField)
		default:
			result.Data, qerr = q.queryGroupedCounts(ctx, form.ID, w.Column, w.GroupBy, field, groupField)
		}
		return qerr
	}, func(err error) bool { return !errors.Is(err, context.Canceled) })
	if err != nil {
		zap.S().Warnw("widget data query failed", "widget", w.ID, "form", form.ID, "column", w.Column, "error", err)
		return nil, widgets.NewQueryError("failed to query widget data", err).WithDetail("widget", w.ID)
	}

	EmitLatency(ctx, w.GroupBy != "", time.Since(started).Milliseconds())
	EmitRowCount(ctx, result.DataType, int64(len(result.Data)))
	return result, nil
}

func (q *WidgetDataQuery) queryCounts(ctx context.Context, formID int64, column string, field widgets.FieldDescriptor) ([]map[string]any, error) {
	rows, err := q.pool.Query(ctx, q.countQuery(), column, formID)
	if err != nil {
		return nil, fmt.Errorf("count answers: %w", err)
	}
	defer rows.Close()

	var answers []answerCount
	for rows.Next() {
		var a answerCount
		if err := rows.Scan(&a.value, &a.count); err != nil {
			return nil, fmt.Errorf("scan answer count: %w", err)
		}
		answers = append(answers, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate answer counts: %w", err)
	}

	if field.Type() == widgets.FieldTypeSelectMultiple {
		return q.splitMultipleChoice(column, field, answers), nil
	}

	out := make([]map[string]any, 0, len(answers))
	for _, a := range answers {
		out = append(out, map[string]any{
			column:  q.displayValue(field, a.value),
			"count": a.count,
		})
	}
	return out, nil
}

func (q *WidgetDataQuery) queryGroupedCounts(ctx context.Context, formID int64, column, groupBy string, field, groupField widgets.FieldDescriptor) ([]map[string]any, error) {
	rows, err := q.pool.Query(ctx, q.groupedCountQuery(), column, groupBy, formID)
	if err != nil {
		return nil, fmt.Errorf("count grouped answers: %w", err)
	}
	defer rows.Close()

	out := make([]map[string]any, 0)
	for rows.Next() {
		var (
			value, group *string
			count        int64
		)
		if err := rows.Scan(&value, &group, &count); err != nil {
			return nil, fmt.Errorf("scan grouped count: %w", err)
		}
		out = append(out, map[string]any{
			column:  q.displayValue(field, value),
			groupBy: q.displayValue(groupField, group),
			"count": count,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate grouped counts: %w", err)
	}
	return out, nil
}

func (q *WidgetDataQuery) queryNumericGroups(ctx context.Context, formID int64, column, groupBy string, groupField widgets.FieldDescriptor) ([]map[string]any, error) {
	rows, err := q.pool.Query(ctx, q.groupedNumericQuery(), column, groupBy, formID)
	if err != nil {
		return nil, fmt.Errorf("aggregate grouped answers: %w", err)
	}
	defer rows.Close()

	out := make([]map[string]any, 0)
	for rows.Next() {
		var (
			group     *string
			sum, mean *float64
		)
		if err := rows.Scan(&group, &sum, &mean); err != nil {
			return nil, fmt.Errorf("scan grouped aggregate: %w", err)
		}
		out = append(out, map[string]any{
			groupBy: q.displayValue(groupField, group),
			"sum":   floatOrNil(sum),
			"mean":  floatOrNil(mean),
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate grouped aggregates: %w", err)
	}
	return out, nil
}

type answerCount struct {
	value *string
	count int64
}

// splitMultipleChoice re-counts space separated multiple choice answers per choice.
func (q *WidgetDataQuery) splitMultipleChoice(column string, field widgets.FieldDescriptor, answers []answerCount) []map[string]any {
	counts := make(map[string]int64)
	for _, a := range answers {
		if a.value == nil {
			continue
		}
		for _, choice := range strings.Fields(*a.value) {
			counts[choice] += a.count
		}
	}

	choices := make([]string, 0, len(counts))
	for choice := range counts {
		choices = append(choices, choice)
	}
	sort.Slice(choices, func(i, j int) bool {
		if counts[choices[i]] != counts[choices[j]] {
			return counts[choices[i]] > counts[choices[j]]
		}
		return choices[i] < choices[j]
	})

	out := make([]map[string]any, 0, len(choices))
	for _, choice := range choices {
		c := choice
		out = append(out, map[string]any{
			column:  q.displayValue(field, &c),
			"count": counts[choice],
		})
	}
	return out
}

// displayValue converts a raw answer for output: choice names become labels and
// numeric answers become numbers.
func (q *WidgetDataQuery) displayValue(field widgets.FieldDescriptor, raw *string) any {
	if raw == nil {
		return nil
	}
	if field == nil {
		return *raw
	}
	if sf, ok := field.(*widgets.SchemaField); ok {
		switch sf.FieldType {
		case widgets.FieldTypeSelectOne, widgets.FieldTypeSelectMultiple:
			return sf.ChoiceLabel(*raw, q.languageIndex)
		}
	}
	if widgets.IsNumericType(field.Type()) {
		return tryParseNumber(*raw)
	}
	return *raw
}

func floatOrNil(v *float64) any {
	if v == nil {
		return nil
	}
	return *v
}
