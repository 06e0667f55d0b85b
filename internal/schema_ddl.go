package internal

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lychee-technology/widgets"
)

type execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// EnsureTables creates the tables and indexes the widget repositories rely on.
func EnsureTables(ctx context.Context, db execer, tables widgets.TableNames) error {
	forms := sanitizeIdentifier(tables.Forms)
	dataViews := sanitizeIdentifier(tables.DataViews)
	widgetTable := sanitizeIdentifier(tables.Widgets)
	permissions := sanitizeIdentifier(tables.Permissions)
	instances := sanitizeIdentifier(tables.Instances)

	statements := []struct {
		what string
		sql  string
	}{
		{"forms table", fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			id          BIGSERIAL PRIMARY KEY,
			id_string   TEXT NOT NULL,
			title       TEXT NOT NULL DEFAULT '',
			project_id  BIGINT NOT NULL,
			deleted_at  TIMESTAMPTZ
		)`, forms)},
		{"dataviews table", fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			id          BIGSERIAL PRIMARY KEY,
			name        TEXT NOT NULL,
			xform_id    BIGINT NOT NULL,
			project_id  BIGINT NOT NULL,
			columns     TEXT[] NOT NULL DEFAULT '{}',
			deleted_at  TIMESTAMPTZ
		)`, dataViews)},
		{"widgets table", fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			id            BIGSERIAL PRIMARY KEY,
			widget_key    TEXT NOT NULL UNIQUE,
			title         VARCHAR(255),
			description   VARCHAR(255),
			widget_type   VARCHAR(25) NOT NULL DEFAULT 'charts',
			view_type     VARCHAR(50) NOT NULL,
			"order"       INTEGER NOT NULL DEFAULT 0,
			column_name   VARCHAR(255) NOT NULL,
			group_by      VARCHAR(255),
			aggregation   VARCHAR(255),
			content_type  TEXT NOT NULL,
			object_id     BIGINT NOT NULL,
			created_at    TIMESTAMPTZ NOT NULL,
			updated_at    TIMESTAMPTZ NOT NULL
		)`, widgetTable)},
		{"widgets owner index", fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s ON %s (content_type, object_id, "order")`,
			sanitizeIdentifier(indexName(tables.Widgets, "owner")), widgetTable)},
		{"permissions table", fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			project_id  BIGINT NOT NULL,
			username    TEXT NOT NULL,
			role        TEXT NOT NULL DEFAULT 'readonly',
			PRIMARY KEY (project_id, username, role)
		)`, permissions)},
		{"instances table", fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			id          BIGSERIAL PRIMARY KEY,
			xform_id    BIGINT NOT NULL,
			json        JSONB NOT NULL DEFAULT '{}',
			deleted_at  TIMESTAMPTZ
		)`, instances)},
		{"instances form index", fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s ON %s (xform_id) WHERE deleted_at IS NULL`,
			sanitizeIdentifier(indexName(tables.Instances, "xform")), instances)},
	}

	for _, stmt := range statements {
		if _, err := db.Exec(ctx, stmt.sql); err != nil {
			return fmt.Errorf("ensure %s: %w", stmt.what, err)
		}
	}
	return nil
}

func indexName(table, suffix string) string {
	base := strings.ReplaceAll(table, ".", "_")
	base = strings.ReplaceAll(base, `"`, "")
	return fmt.Sprintf("%s_%s_idx", base, suffix)
}
