package widgets

import (
	"strings"
	"time"
)

// Config consolidates settings for the widget service
type Config struct {
	Database DatabaseConfig `json:"database"`
	Server   ServerConfig   `json:"server"`
	Schema   SchemaConfig   `json:"schema"`
	Widget   WidgetConfig   `json:"widget"`
	Auth     AuthConfig     `json:"auth"`
	Logging  LoggingConfig  `json:"logging"`
	Metrics  MetricsConfig  `json:"metrics"`
}

// DatabaseConfig contains database connection settings
type DatabaseConfig struct {
	Host            string        `json:"host"`
	Port            int           `json:"port"`
	Database        string        `json:"database"`
	Username        string        `json:"username"`
	Password        string        `json:"password"`
	SSLMode         string        `json:"sslMode"`
	MaxConnections  int           `json:"maxConnections"`
	MaxIdleConns    int           `json:"maxIdleConns"`
	ConnMaxLifetime time.Duration `json:"connMaxLifetime"`
	ConnMaxIdleTime time.Duration `json:"connMaxIdleTime"`
	Timeout         time.Duration `json:"timeout"`
	TableNames      TableNames    `json:"tableNames"`
}

// TableNames names the tables the repositories read and write.
type TableNames struct {
	Forms       string `json:"forms"`
	DataViews   string `json:"dataViews"`
	Widgets     string `json:"widgets"`
	Permissions string `json:"permissions"`
	Instances   string `json:"instances"`
}

// ServerConfig contains HTTP settings
type ServerConfig struct {
	Port string `json:"port"`
	// ScriptPrefix is the path the API is mounted under behind a proxy, e.g. "/ona/".
	ScriptPrefix string `json:"scriptPrefix"`
	// PublicBaseURL overrides the scheme and host used for hyperlinks when set.
	PublicBaseURL string `json:"publicBaseURL"`
}

// SchemaSourceKind selects where form schema documents are read from.
type SchemaSourceKind string

const (
	SchemaSourceFile SchemaSourceKind = "file"
	SchemaSourceS3   SchemaSourceKind = "s3"
)

// SchemaConfig contains settings for loading form schemas
type SchemaConfig struct {
	Source    SchemaSourceKind `json:"source"`
	Directory string           `json:"directory"`
	Bucket    string           `json:"bucket"`
	Prefix    string           `json:"prefix"`
	Region    string           `json:"region"`
	Endpoint  string           `json:"endpoint"`
	AccessKey string           `json:"accessKey"`
	SecretKey string           `json:"secretKey"`
	CacheTTL  time.Duration    `json:"cacheTTL"`
}

// WidgetConfig contains widget presentation settings
type WidgetConfig struct {
	// LabelLanguageIndex picks the language of multi-language field labels.
	LabelLanguageIndex int `json:"labelLanguageIndex"`
	// DataQueryTimeout bounds the widget data query.
	DataQueryTimeout time.Duration `json:"dataQueryTimeout"`
}

// AuthConfig contains bearer token settings
type AuthConfig struct {
	JWTSecret string `json:"jwtSecret"`
	Issuer    string `json:"issuer"`
}

// LoggingConfig contains logging settings
type LoggingConfig struct {
	Level  string `json:"level"`
	Format string `json:"format"`
}

// MetricsConfig contains metrics collection settings
type MetricsConfig struct {
	Enabled   bool   `json:"enabled"`
	Namespace string `json:"namespace"`
	Endpoint  string `json:"endpoint"`
}

// DefaultConfig returns a default configuration
func DefaultConfig() *Config {
	return &Config{
		Database: DatabaseConfig{
			Host:            "localhost",
			Port:            5432,
			Database:        "widgets",
			Username:        "postgres",
			SSLMode:         "disable",
			MaxConnections:  25,
			MaxIdleConns:    5,
			ConnMaxLifetime: 5 * time.Minute,
			ConnMaxIdleTime: 5 * time.Minute,
			Timeout:         30 * time.Second,
			TableNames: TableNames{
				Forms:       "forms",
				DataViews:   "dataviews",
				Widgets:     "widgets",
				Permissions: "project_permissions",
				Instances:   "instances",
			},
		},
		Server: ServerConfig{
			Port:         "8080",
			ScriptPrefix: "/",
		},
		Schema: SchemaConfig{
			Source:   SchemaSourceFile,
			CacheTTL: 5 * time.Minute,
		},
		Widget: WidgetConfig{
			LabelLanguageIndex: 0,
			DataQueryTimeout:   30 * time.Second,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Metrics: MetricsConfig{
			Enabled:   true,
			Namespace: "widgets",
			Endpoint:  "/metrics",
		},
	}
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Database.MaxConnections <= 0 {
		return &ConfigError{Field: "database.maxConnections", Message: "must be greater than 0"}
	}

	tables := c.Database.TableNames
	for field, name := range map[string]string{
		"database.tableNames.forms":       tables.Forms,
		"database.tableNames.dataViews":   tables.DataViews,
		"database.tableNames.widgets":     tables.Widgets,
		"database.tableNames.permissions": tables.Permissions,
		"database.tableNames.instances":   tables.Instances,
	} {
		if strings.TrimSpace(name) == "" {
			return &ConfigError{Field: field, Message: "cannot be empty"}
		}
	}

	if !strings.HasPrefix(c.Server.ScriptPrefix, "/") || !strings.HasSuffix(c.Server.ScriptPrefix, "/") {
		return &ConfigError{Field: "server.scriptPrefix", Message: "must start and end with '/'"}
	}

	switch c.Schema.Source {
	case SchemaSourceFile:
		if c.Schema.Directory == "" {
			return &ConfigError{Field: "schema.directory", Message: "required for file schema source"}
		}
	case SchemaSourceS3:
		if c.Schema.Bucket == "" {
			return &ConfigError{Field: "schema.bucket", Message: "required for s3 schema source"}
		}
	default:
		return &ConfigError{Field: "schema.source", Message: "must be one of: file, s3"}
	}

	if c.Widget.LabelLanguageIndex < 0 {
		return &ConfigError{Field: "widget.labelLanguageIndex", Message: "must not be negative"}
	}

	return nil
}

// ConfigError represents a configuration validation error
type ConfigError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func (e *ConfigError) Error() string {
	return "config validation error for field '" + e.Field + "': " + e.Message
}
