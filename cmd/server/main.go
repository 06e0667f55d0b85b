package main

import (
	"context"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/lychee-technology/widgets"
	"github.com/lychee-technology/widgets/factory"
	"github.com/lychee-technology/widgets/internal"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// Server represents the HTTP server with WidgetManager
type Server struct {
	manager       widgets.WidgetManager
	auth          *tokenAuthenticator
	publicBaseURL string
	mux           *http.ServeMux
	health        func(ctx context.Context) error
}

// NewServer creates a new Server instance
func NewServer(manager widgets.WidgetManager, auth *tokenAuthenticator, publicBaseURL string) *Server {
	return &Server{
		manager:       manager,
		auth:          auth,
		publicBaseURL: publicBaseURL,
		mux:           http.NewServeMux(),
	}
}

// RegisterRoutes registers all API routes under prefix, which starts and ends with "/".
// Paths come from the same route table the widget links are built from.
func (s *Server) RegisterRoutes(prefix string) {
	routes := internal.DefaultRoutes()
	bindings := []struct {
		method  string
		route   string
		handler http.HandlerFunc
	}{
		{http.MethodGet, internal.RouteWidgetList, s.handleListWidgets},
		{http.MethodPost, internal.RouteWidgetList, s.handleCreateWidget},
		{http.MethodGet, internal.RouteWidgetDetail, s.handleGetWidget},
		{http.MethodPut, internal.RouteWidgetDetail, s.handleUpdateWidget},
		{http.MethodPatch, internal.RouteWidgetDetail, s.handleUpdateWidget},
		{http.MethodDelete, internal.RouteWidgetDetail, s.handleDeleteWidget},
		{http.MethodGet, internal.RouteFormDetail, s.handleGetForm},
		{http.MethodGet, internal.RouteDataViewDetail, s.handleGetDataView},
	}
	for _, b := range bindings {
		template, ok := routes.Template(b.route)
		if !ok {
			panic("route not registered: " + b.route)
		}
		s.mux.HandleFunc(b.method+" "+prefix+strings.TrimPrefix(template, "/"), b.handler)
	}
	s.mux.HandleFunc("GET /healthz", s.handleHealth)
}

// Handle mounts an extra handler, e.g. the metrics endpoint.
func (s *Server) Handle(pattern string, h http.Handler) {
	s.mux.Handle(pattern, h)
}

// Start starts the HTTP server on the given port
func (s *Server) Start(port string) error {
	zap.S().Infow("starting server", "port", port)
	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           s.mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return srv.ListenAndServe()
}

func main() {
	logger, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	defer logger.Sync()
	zap.ReplaceGlobals(logger)
	sugar := logger.Sugar()

	config := loadConfig()
	if err := config.Validate(); err != nil {
		sugar.Fatalf("invalid configuration: %v", err)
	}

	ctx := context.Background()
	pool, err := internal.NewPostgresPool(ctx, config.Database)
	if err != nil {
		sugar.Fatalf("failed to create database pool: %v", err)
	}
	defer pool.Close()

	source, err := factory.NewSchemaSource(ctx, config.Schema)
	if err != nil {
		sugar.Fatalf("failed to create schema source: %v", err)
	}
	if err := internal.S3HealthCheck(ctx, source, 5*time.Second); err != nil {
		sugar.Fatalf("schema bucket unreachable: %v", err)
	}

	manager, err := factory.NewWidgetManager(ctx, config, pool, source)
	if err != nil {
		sugar.Fatalf("failed to create widget manager: %v", err)
	}

	if config.Auth.JWTSecret == "" {
		sugar.Warnw("JWT_SECRET not set; every request is anonymous")
	}
	server := NewServer(manager, newTokenAuthenticator(config.Auth), config.Server.PublicBaseURL)
	server.health = func(ctx context.Context) error {
		if err := internal.PostgresHealthCheck(ctx, pool, 2*time.Second); err != nil {
			return err
		}
		return internal.S3HealthCheck(ctx, source, 2*time.Second)
	}
	server.RegisterRoutes(config.Server.ScriptPrefix)

	if config.Metrics.Enabled {
		registry := prometheus.NewRegistry()
		registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
		emitter, err := internal.NewPrometheusEmitter(registry, config.Metrics.Namespace)
		if err != nil {
			sugar.Fatalf("failed to register metrics: %v", err)
		}
		internal.RegisterTelemetryEmitter(emitter.Emit)
		server.Handle("GET "+config.Metrics.Endpoint, promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	}

	if err := server.Start(config.Server.Port); err != nil {
		sugar.Fatalf("server error: %v", err)
	}
}

// loadConfig overlays environment variables on the default configuration.
func loadConfig() *widgets.Config {
	config := widgets.DefaultConfig()

	db := &config.Database
	db.Host = getEnv("DB_HOST", db.Host)
	db.Port = getEnvInt("DB_PORT", db.Port)
	db.Database = getEnv("DB_NAME", db.Database)
	db.Username = getEnv("DB_USER", db.Username)
	db.Password = getEnv("DB_PASSWORD", db.Password)
	db.SSLMode = getEnv("DB_SSL_MODE", db.SSLMode)
	db.MaxConnections = getEnvInt("DB_MAX_CONNECTIONS", db.MaxConnections)
	db.MaxIdleConns = getEnvInt("DB_MAX_IDLE_CONNS", db.MaxIdleConns)
	db.ConnMaxLifetime = getEnvSeconds("DB_CONN_MAX_LIFETIME_SECONDS", db.ConnMaxLifetime)
	db.ConnMaxIdleTime = getEnvSeconds("DB_CONN_MAX_IDLE_TIME_SECONDS", db.ConnMaxIdleTime)
	db.Timeout = getEnvSeconds("DB_TIMEOUT_SECONDS", db.Timeout)
	db.TableNames.Forms = getEnv("FORMS_TABLE", db.TableNames.Forms)
	db.TableNames.DataViews = getEnv("DATAVIEWS_TABLE", db.TableNames.DataViews)
	db.TableNames.Widgets = getEnv("WIDGETS_TABLE", db.TableNames.Widgets)
	db.TableNames.Permissions = getEnv("PERMISSIONS_TABLE", db.TableNames.Permissions)
	db.TableNames.Instances = getEnv("INSTANCES_TABLE", db.TableNames.Instances)

	config.Server.Port = getEnv("PORT", config.Server.Port)
	config.Server.ScriptPrefix = getEnv("SCRIPT_PREFIX", config.Server.ScriptPrefix)
	config.Server.PublicBaseURL = getEnv("PUBLIC_BASE_URL", config.Server.PublicBaseURL)

	schema := &config.Schema
	schema.Source = widgets.SchemaSourceKind(getEnv("SCHEMA_SOURCE", string(schema.Source)))
	schema.Directory = getEnv("SCHEMA_DIR", schema.Directory)
	schema.Bucket = getEnv("SCHEMA_BUCKET", schema.Bucket)
	schema.Prefix = getEnv("SCHEMA_PREFIX", schema.Prefix)
	schema.Region = getEnv("AWS_REGION", schema.Region)
	schema.Endpoint = getEnv("S3_ENDPOINT", schema.Endpoint)
	schema.AccessKey = getEnv("S3_ACCESS_KEY", schema.AccessKey)
	schema.SecretKey = getEnv("S3_SECRET_KEY", schema.SecretKey)
	schema.CacheTTL = getEnvSeconds("SCHEMA_CACHE_TTL_SECONDS", schema.CacheTTL)

	config.Widget.LabelLanguageIndex = getEnvInt("LABEL_LANGUAGE_INDEX", config.Widget.LabelLanguageIndex)
	config.Widget.DataQueryTimeout = getEnvSeconds("DATA_QUERY_TIMEOUT_SECONDS", config.Widget.DataQueryTimeout)

	config.Auth.JWTSecret = getEnv("JWT_SECRET", config.Auth.JWTSecret)
	config.Auth.Issuer = getEnv("JWT_ISSUER", config.Auth.Issuer)

	config.Metrics.Enabled = getEnv("METRICS_ENABLED", "true") != "false"
	config.Metrics.Endpoint = getEnv("METRICS_ENDPOINT", config.Metrics.Endpoint)
	return config
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvSeconds(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if seconds, err := strconv.Atoi(value); err == nil {
			return time.Duration(seconds) * time.Second
		}
	}
	return defaultValue
}
