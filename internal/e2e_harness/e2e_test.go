package e2e_harness

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"testing"
	"time"

	"github.com/lychee-technology/widgets"
	"github.com/lychee-technology/widgets/factory"
	"github.com/lychee-technology/widgets/internal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func strPtr(s string) *string { return &s }
func intPtr(i int) *int       { return &i }

func TestE2EWidgetLifecycle(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping E2E harness in -short mode")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Minute)
	defer cancel()
	h := &TestHarness{}
	defer h.Stop(context.Background())

	config, err := h.Start(ctx)
	require.NoError(t, err)

	seeded, err := SeedPostgres(ctx, h.PGDB, config.Database.TableNames)
	require.NoError(t, err)

	doc, err := os.ReadFile("../testdata/households.json")
	require.NoError(t, err)
	require.NoError(t, UploadSchema(ctx, config.Schema, "households", doc))

	source, err := factory.NewSchemaSource(ctx, config.Schema)
	require.NoError(t, err)
	require.NoError(t, internal.S3HealthCheck(ctx, source, 0))

	mgr, err := factory.NewWidgetManager(ctx, config, h.PGPool, source)
	require.NoError(t, err)

	const base = "http://dash.example.com"
	alice := widgets.RequestContext{User: "alice", BaseURL: base, Query: url.Values{}}

	created, err := mgr.Create(ctx, alice, &widgets.WidgetPayload{
		ContentObject: fmt.Sprintf("%s/api/v1/forms/%d", base, seeded.FormID),
		Column:        strPtr("gender"),
		ViewType:      strPtr("bar"),
		Title:         strPtr("Respondents by gender"),
	})
	require.NoError(t, err)
	assert.NotEmpty(t, created.Key)
	assert.Equal(t, 0, created.Order)
	require.NotNil(t, created.FieldType)
	assert.Equal(t, "select one", *created.FieldType)
	assert.Equal(t, fmt.Sprintf("%s/api/v1/forms/%d", base, seeded.FormID), created.ContentObject)

	second, err := mgr.Create(ctx, alice, &widgets.WidgetPayload{
		ContentObject: fmt.Sprintf("%s/api/v1/dataviews/%d", base, seeded.DataViewID),
		Column:        strPtr("age"),
		ViewType:      strPtr("histogram"),
	})
	require.NoError(t, err)
	assert.Equal(t, fmt.Sprintf("%s/api/v1/dataviews/%d", base, seeded.DataViewID), second.ContentObject)

	withData := alice
	withData.Query = url.Values{"data": {"true"}}
	got, err := mgr.Get(ctx, withData, created.ID)
	require.NoError(t, err)
	data, ok := got.Data.(*widgets.WidgetData)
	require.True(t, ok, "expected widget data, got %T", got.Data)
	assert.Equal(t, "categorized", data.DataType)
	assert.Equal(t, []map[string]any{
		{"gender": "Female", "count": int64(3)},
		{"gender": "Male", "count": int64(1)},
		{"gender": nil, "count": int64(1)},
	}, data.Data)

	anonymous := widgets.RequestContext{BaseURL: base}
	byKey, err := mgr.GetByKey(ctx, anonymous, created.Key)
	require.NoError(t, err)
	assert.Equal(t, created.ID, byKey.ID)
	assert.IsType(t, &widgets.WidgetData{}, byKey.Data)

	_, err = mgr.Get(ctx, widgets.RequestContext{User: "mallory", BaseURL: base}, created.ID)
	var we *widgets.WidgetError
	require.True(t, errors.As(err, &we))
	assert.Equal(t, widgets.ErrorTypeForbidden, we.Type)

	list, err := mgr.List(ctx, alice, widgets.WidgetFilter{Kind: widgets.ContentKindForm, ObjectID: seeded.FormID})
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, created.ID, list[0].ID)

	moved, err := mgr.Update(ctx, alice, second.ID, &widgets.WidgetPayload{
		ContentObject: fmt.Sprintf("%s/api/v1/forms/%d", base, seeded.FormID),
		Order:         intPtr(0),
	}, true)
	require.NoError(t, err)
	assert.Equal(t, 0, moved.Order)

	list, err = mgr.List(ctx, alice, widgets.WidgetFilter{Kind: widgets.ContentKindForm, ObjectID: seeded.FormID})
	require.NoError(t, err)
	orders := make(map[int64]int, len(list))
	for _, w := range list {
		orders[w.ID] = w.Order
	}
	assert.Equal(t, map[int64]int{second.ID: 0, created.ID: 1}, orders)

	updated, err := mgr.Update(ctx, alice, created.ID, &widgets.WidgetPayload{Column: strPtr("gone")}, true)
	assert.Nil(t, updated)
	var ve *widgets.ValidationErrors
	require.True(t, errors.As(err, &ve))

	require.NoError(t, mgr.Delete(ctx, alice, created.ID))
	_, err = mgr.Get(ctx, alice, created.ID)
	require.True(t, errors.As(err, &we))
	assert.Equal(t, widgets.ErrorTypeNotFound, we.Type)
}
