package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/lychee-technology/widgets"
	"github.com/lychee-technology/widgets/internal"
)

type execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

type initDBOptions struct {
	host      string
	port      int
	database  string
	user      string
	password  string
	sslMode   string
	tables    widgets.TableNames
	schemaDir string
	projectID int64
}

func runInitDB(args []string) error {
	flags := flag.NewFlagSet("init-db", flag.ContinueOnError)
	flags.SetOutput(os.Stdout)
	flags.Usage = func() {
		fmt.Println("Usage: widgets-tools init-db [options]")
		fmt.Println("")
		fmt.Println("Options:")
		flags.PrintDefaults()
	}

	defaults := widgets.DefaultConfig().Database.TableNames
	opts := initDBOptions{}
	flags.StringVar(&opts.host, "db-host", getenvDefault("DB_HOST", "localhost"), "database host")
	flags.IntVar(&opts.port, "db-port", getenvDefaultInt("DB_PORT", 5432), "database port")
	flags.StringVar(&opts.database, "db-name", getenvDefault("DB_NAME", "widgets"), "database name")
	flags.StringVar(&opts.user, "db-user", getenvDefault("DB_USER", "postgres"), "database user")
	flags.StringVar(&opts.password, "db-password", getenvDefault("DB_PASSWORD", "postgres"), "database password")
	flags.StringVar(&opts.sslMode, "db-ssl-mode", getenvDefault("DB_SSL_MODE", "disable"), "database sslmode")
	flags.StringVar(&opts.tables.Forms, "forms-table", getenvDefault("FORMS_TABLE", defaults.Forms), "forms table name")
	flags.StringVar(&opts.tables.DataViews, "dataviews-table", getenvDefault("DATAVIEWS_TABLE", defaults.DataViews), "dataviews table name")
	flags.StringVar(&opts.tables.Widgets, "widgets-table", getenvDefault("WIDGETS_TABLE", defaults.Widgets), "widgets table name")
	flags.StringVar(&opts.tables.Permissions, "permissions-table", getenvDefault("PERMISSIONS_TABLE", defaults.Permissions), "project permissions table name")
	flags.StringVar(&opts.tables.Instances, "instances-table", getenvDefault("INSTANCES_TABLE", defaults.Instances), "submissions table name")
	flags.StringVar(&opts.schemaDir, "schema-dir", getenvDefault("SCHEMA_DIR", ""), "Directory of <id_string>.json form schemas to register (optional)")
	flags.Int64Var(&opts.projectID, "project", 1, "project the registered forms belong to")

	if err := flags.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return nil
		}
		return err
	}

	return initDatabase(opts)
}

func initDatabase(opts initDBOptions) error {
	ctx := context.Background()

	pool, err := pgxpool.New(ctx, buildConnString(opts))
	if err != nil {
		return fmt.Errorf("create connection pool: %w", err)
	}
	defer pool.Close()

	conn, err := pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	if err := withTx(ctx, conn, func(tx pgx.Tx) error {
		if err := internal.EnsureTables(ctx, tx, opts.tables); err != nil {
			return err
		}
		if opts.schemaDir != "" {
			return registerForms(ctx, tx, opts.tables.Forms, opts.schemaDir, opts.projectID)
		}
		return nil
	}); err != nil {
		return err
	}

	fmt.Println("Database initialized successfully.")
	return nil
}

func buildConnString(opts initDBOptions) string {
	var userInfo *url.Userinfo
	if opts.password != "" {
		userInfo = url.UserPassword(opts.user, opts.password)
	} else {
		userInfo = url.User(opts.user)
	}

	u := &url.URL{
		Scheme: "postgres",
		User:   userInfo,
		Host:   fmt.Sprintf("%s:%d", opts.host, opts.port),
		Path:   "/" + opts.database,
	}

	q := url.Values{}
	if opts.sslMode != "" {
		q.Set("sslmode", opts.sslMode)
	}
	u.RawQuery = q.Encode()

	return u.String()
}

// registerForms inserts a form row for every valid schema document in schemaDir that
// is not registered yet.
func registerForms(ctx context.Context, tx execer, formsTable, schemaDir string, projectID int64) error {
	entries, err := os.ReadDir(schemaDir)
	if err != nil {
		return fmt.Errorf("read schema directory(%s): %w", schemaDir, err)
	}

	var files []string
	for _, entry := range entries {
		if !entry.IsDir() && strings.HasSuffix(entry.Name(), ".json") {
			files = append(files, entry.Name())
		}
	}
	if len(files) == 0 {
		fmt.Printf("No schema files found, dir: %s\n", schemaDir)
		return nil
	}
	sort.Strings(files)

	quotedTable := quoteIdentifier(formsTable)
	insertSQL := fmt.Sprintf(`INSERT INTO %s (id_string, title, project_id)
		SELECT $1, $2, $3
		WHERE NOT EXISTS (SELECT 1 FROM %s WHERE id_string = $1 AND project_id = $3 AND deleted_at IS NULL)`,
		quotedTable, quotedTable)

	registered := 0
	for _, file := range files {
		idString := strings.TrimSuffix(file, ".json")
		data, err := os.ReadFile(filepath.Join(schemaDir, file))
		if err != nil {
			return fmt.Errorf("read schema %s: %w", file, err)
		}
		dd, err := internal.LoadDataDictionary(idString, data)
		if err != nil {
			return err
		}

		result, err := tx.Exec(ctx, insertSQL, idString, formTitle(idString, data), projectID)
		if err != nil {
			return fmt.Errorf("insert form %s: %w", idString, err)
		}
		if result.RowsAffected() > 0 {
			registered++
			fmt.Printf("Registered form, id_string: %s, questions: %d\n", idString, len(dd.Fields()))
		} else {
			fmt.Printf("Form already exists, id_string: %s\n", idString)
		}
	}

	fmt.Printf("Registered forms from directory, count: %d, dir: %s\n", registered, schemaDir)
	return nil
}

// formTitle reads the document title, falling back to the id_string.
func formTitle(idString string, data []byte) string {
	var doc struct {
		Title string `json:"title"`
	}
	if err := json.Unmarshal(data, &doc); err != nil || strings.TrimSpace(doc.Title) == "" {
		return idString
	}
	return doc.Title
}

func withTx(ctx context.Context, conn *pgxpool.Conn, fn func(pgx.Tx) error) error {
	tx, err := conn.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}

	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(ctx); rbErr != nil {
			return fmt.Errorf("%w; rollback failed: %v", err, rbErr)
		}
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}

	return nil
}

func quoteIdentifier(name string) string {
	return pgx.Identifier(splitIdentifier(name)).Sanitize()
}

func splitIdentifier(name string) []string {
	parts := strings.Split(name, ".")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part != "" {
			result = append(result, part)
		}
	}
	if len(result) == 0 {
		return []string{name}
	}
	return result
}

func getenvDefault(key, def string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return def
}

func getenvDefaultInt(key string, def int) int {
	if val := os.Getenv(key); val != "" {
		if parsed, err := strconv.Atoi(val); err == nil {
			return parsed
		}
	}
	return def
}
