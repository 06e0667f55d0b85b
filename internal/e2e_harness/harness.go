package e2e_harness

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/docker/go-connections/nat"
	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/lib/pq"
	"github.com/lychee-technology/widgets"
	"github.com/lychee-technology/widgets/internal"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

const (
	surveyDatabase = "survey"
	surveyPassword = "password"
	schemaBucket   = "form-schemas"
	schemaPrefix   = "forms/"
)

// TestHarness runs the survey database and the schema document store the widget
// manager is wired against.
type TestHarness struct {
	PGContainer testcontainers.Container
	PGDSN       string
	// PGDB seeds fixtures through lib/pq; PGPool backs the widget manager.
	PGDB        *sql.DB
	PGPool      *pgxpool.Pool
	S3Container testcontainers.Container
	S3Endpoint  string
}

// Start brings up both containers, creates the widget tables and returns a config
// whose schema source reads from the harness bucket. Call Stop when done.
func (h *TestHarness) Start(ctx context.Context) (*widgets.Config, error) {
	if _, err := h.StartPostgres(ctx); err != nil {
		return nil, fmt.Errorf("start postgres: %w", err)
	}
	endpoint, err := h.StartS3(ctx)
	if err != nil {
		return nil, fmt.Errorf("start object store: %w", err)
	}

	config := widgets.DefaultConfig()
	config.Schema = widgets.SchemaConfig{
		Source:    widgets.SchemaSourceS3,
		Bucket:    schemaBucket,
		Prefix:    schemaPrefix,
		Region:    "us-east-1",
		Endpoint:  endpoint,
		AccessKey: S3AccessKey,
		SecretKey: S3SecretKey,
		CacheTTL:  time.Minute,
	}
	if err := internal.EnsureTables(ctx, h.PGPool, config.Database.TableNames); err != nil {
		return nil, fmt.Errorf("create widget tables: %w", err)
	}
	return config, nil
}

// Stop tears down whatever Start brought up.
func (h *TestHarness) Stop(ctx context.Context) error {
	return errors.Join(h.StopS3(ctx), h.StopPostgres(ctx))
}

func runContainer(ctx context.Context, image, port string, env map[string]string) (testcontainers.Container, string, error) {
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        image,
			ExposedPorts: []string{port + "/tcp"},
			Env:          env,
			WaitingFor:   wait.ForListeningPort(nat.Port(port + "/tcp")).WithStartupTimeout(30 * time.Second),
		},
		Started: true,
	})
	if err != nil {
		return nil, "", err
	}
	host, err := container.Host(ctx)
	if err != nil {
		return container, "", err
	}
	mapped, err := container.MappedPort(ctx, nat.Port(port))
	if err != nil {
		return container, "", err
	}
	return container, fmt.Sprintf("%s:%s", host, mapped.Port()), nil
}

// StartPostgres starts the survey database and returns its DSN once it answers pings.
func (h *TestHarness) StartPostgres(ctx context.Context) (string, error) {
	container, addr, err := runContainer(ctx, "postgres:16", "5432", map[string]string{
		"POSTGRES_PASSWORD": surveyPassword,
		"POSTGRES_USER":     "postgres",
		"POSTGRES_DB":       surveyDatabase,
	})
	h.PGContainer = container
	if err != nil {
		return "", err
	}
	h.PGDSN = fmt.Sprintf("postgres://postgres:%s@%s/%s?sslmode=disable", surveyPassword, addr, surveyDatabase)

	db, err := sql.Open("postgres", h.PGDSN)
	if err != nil {
		return "", err
	}
	deadline := time.Now().Add(20 * time.Second)
	for {
		err := db.PingContext(ctx)
		if err == nil {
			break
		}
		if time.Now().After(deadline) {
			db.Close()
			return "", fmt.Errorf("postgres did not become ready: %w", err)
		}
		time.Sleep(200 * time.Millisecond)
	}
	h.PGDB = db

	pool, err := pgxpool.New(ctx, h.PGDSN)
	if err != nil {
		return "", fmt.Errorf("open pgx pool: %w", err)
	}
	h.PGPool = pool
	return h.PGDSN, nil
}

// StopPostgres closes both connection handles and terminates the database.
func (h *TestHarness) StopPostgres(ctx context.Context) error {
	if h.PGPool != nil {
		h.PGPool.Close()
		h.PGPool = nil
	}
	if h.PGDB != nil {
		h.PGDB.Close()
		h.PGDB = nil
	}
	if h.PGContainer != nil {
		if err := h.PGContainer.Terminate(ctx); err != nil {
			return err
		}
		h.PGContainer = nil
	}
	return nil
}

// StartS3 starts the rustfs store holding form schema documents.
func (h *TestHarness) StartS3(ctx context.Context) (string, error) {
	container, addr, err := runContainer(ctx, "rustfs/rustfs:latest", "9000", map[string]string{
		"RUSTFS_ACCESS_KEY": S3AccessKey,
		"RUSTFS_SECRET_KEY": S3SecretKey,
	})
	h.S3Container = container
	if err != nil {
		return "", err
	}
	h.S3Endpoint = "http://" + addr
	return h.S3Endpoint, nil
}

// StopS3 terminates the schema store.
func (h *TestHarness) StopS3(ctx context.Context) error {
	if h.S3Container != nil {
		if err := h.S3Container.Terminate(ctx); err != nil {
			return err
		}
		h.S3Container = nil
	}
	return nil
}
