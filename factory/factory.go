package factory

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lychee-technology/widgets"
	"github.com/lychee-technology/widgets/internal"
	"go.uber.org/zap"
)

// Pool is the subset of *pgxpool.Pool the widget repositories use.
type Pool interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	BeginTx(ctx context.Context, txOptions pgx.TxOptions) (pgx.Tx, error)
}

// NewSchemaSource creates the schema document source selected by cfg.Source.
func NewSchemaSource(ctx context.Context, cfg widgets.SchemaConfig) (internal.SchemaSource, error) {
	switch cfg.Source {
	case widgets.SchemaSourceS3:
		if err := internal.ValidateS3Config(cfg); err != nil {
			return nil, err
		}
		return internal.NewS3SchemaSource(ctx, cfg)
	case widgets.SchemaSourceFile, "":
		return internal.NewFileSchemaSource(cfg.Directory), nil
	default:
		return nil, fmt.Errorf("unsupported schema source %q", cfg.Source)
	}
}

// NewWidgetManagerWithConfig creates a WidgetManager with the provided configuration and
// database pool. This is the primary way for external projects to create one.
//
// Usage:
//
//	config := widgets.DefaultConfig()
//	config.Schema.Directory = "./schemas"
//	wm, err := factory.NewWidgetManagerWithConfig(ctx, config, pool)
//	if err != nil {
//	    // handle error
//	}
func NewWidgetManagerWithConfig(ctx context.Context, config *widgets.Config, pool Pool) (widgets.WidgetManager, error) {
	source, err := NewSchemaSource(ctx, config.Schema)
	if err != nil {
		return nil, fmt.Errorf("failed to create schema source: %w", err)
	}
	return NewWidgetManager(ctx, config, pool, source)
}

// NewWidgetManager wires the repositories, serializer and data query around an existing
// schema source. The required tables must exist.
func NewWidgetManager(ctx context.Context, config *widgets.Config, pool Pool, source internal.SchemaSource) (widgets.WidgetManager, error) {
	if config == nil {
		return nil, fmt.Errorf("config is required")
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if err := verifyTables(ctx, pool, config.Database.TableNames); err != nil {
		return nil, err
	}

	tables := config.Database.TableNames
	formRepo := internal.NewPostgresFormRepository(pool, tables)
	widgetRepo := internal.NewPostgresWidgetRepository(pool, tables.Widgets)
	registry := internal.NewSchemaRegistry(source, config.Schema.CacheTTL)

	dataQuery := internal.NewWidgetDataQuery(pool, registry, internal.WidgetDataQueryOptions{
		InstancesTable: tables.Instances,
		LanguageIndex:  config.Widget.LabelLanguageIndex,
		Timeout:        config.Widget.DataQueryTimeout,
		Breaker:        internal.NewCircuitBreaker(5, time.Minute, 30*time.Second),
	})

	relation := internal.NewGenericRelatedField(internal.DefaultRoutes(), config.Server.ScriptPrefix, formRepo, formRepo)
	serializer := internal.NewWidgetSerializer(internal.WidgetSerializerDeps{
		Relation:      relation,
		Schemas:       registry,
		Permissions:   formRepo,
		Widgets:       widgetRepo,
		Data:          dataQuery,
		LanguageIndex: config.Widget.LabelLanguageIndex,
	})

	zap.S().Infow("widget manager ready", "schemaSource", config.Schema.Source, "scriptPrefix", config.Server.ScriptPrefix)
	return internal.NewWidgetService(internal.WidgetServiceDeps{
		Widgets:     widgetRepo,
		Forms:       formRepo,
		Views:       formRepo,
		Permissions: formRepo,
		Serializer:  serializer,
	}), nil
}

func verifyTables(ctx context.Context, pool Pool, names widgets.TableNames) error {
	rows, err := pool.Query(ctx, `SELECT table_name FROM information_schema.tables
		WHERE table_schema = 'public' AND table_type = 'BASE TABLE'`)
	if err != nil {
		return fmt.Errorf("failed to verify database connection: %w", err)
	}
	defer rows.Close()

	tables := []string{}
	for rows.Next() {
		var tableName string
		if err := rows.Scan(&tableName); err != nil {
			return fmt.Errorf("failed to scan table name: %w", err)
		}
		tables = append(tables, tableName)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("error iterating rows: %w", err)
	}

	var missing []string
	for _, name := range []string{names.Forms, names.DataViews, names.Widgets, names.Permissions, names.Instances} {
		if !slices.Contains(tables, name) {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("required tables are missing in the database: %v", missing)
	}
	return nil
}
