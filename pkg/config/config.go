// Package config resolves query server settings. Precedence, lowest first:
// built-in defaults, the YAML file, then environment variables.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Source  SourceConfig  `yaml:"source"`
	Redis   RedisConfig   `yaml:"redis"`
	Kafka   KafkaConfig   `yaml:"kafka"`
	Search  SearchConfig  `yaml:"search"`
	Logging LoggingConfig `yaml:"logging"`
	Metrics MetricsConfig `yaml:"metrics"`
}

type ServerConfig struct {
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"readTimeout"`
	WriteTimeout    time.Duration `yaml:"writeTimeout"`
	ShutdownTimeout time.Duration `yaml:"shutdownTimeout"`
	AllowOrigins    []string      `yaml:"allowOrigins"`
	RateLimit       RateLimit     `yaml:"rateLimit"`
}

// RateLimit bounds per-client request rates. Zero RequestsPerSecond disables
// limiting.
type RateLimit struct {
	RequestsPerSecond float64 `yaml:"requestsPerSecond"`
	Burst             int     `yaml:"burst"`
}

// Source kinds understood by SourceConfig.Kind.
const (
	SourceGraph    = "graph"
	SourcePostgres = "postgres"
	SourceFile     = "file"
	SourceNone     = "none"
)

// SourceConfig selects and configures the document source consulted once at
// startup.
type SourceConfig struct {
	Kind         string         `yaml:"kind"`
	FetchTimeout time.Duration  `yaml:"fetchTimeout"`
	Graph        GraphConfig    `yaml:"graph"`
	Postgres     PostgresConfig `yaml:"postgres"`
	File         FileConfig     `yaml:"file"`
}

// GraphConfig holds Microsoft Graph credentials and listing limits.
type GraphConfig struct {
	TenantID          string   `yaml:"tenantId"`
	ClientID          string   `yaml:"clientId"`
	ClientSecret      string   `yaml:"clientSecret"`
	BaseURL           string   `yaml:"baseUrl"`
	AuthorityURL      string   `yaml:"authorityUrl"`
	MaxSites          int      `yaml:"maxSites"`
	MaxFilesPerSite   int      `yaml:"maxFilesPerSite"`
	Extensions        []string `yaml:"extensions"`
	RequestsPerSecond float64  `yaml:"requestsPerSecond"`
	Concurrency       int      `yaml:"concurrency"`
}

// TokenURL returns the Azure AD v2 token endpoint for the configured tenant.
func (g GraphConfig) TokenURL() string {
	return fmt.Sprintf("%s/%s/oauth2/v2.0/token", strings.TrimRight(g.AuthorityURL, "/"), g.TenantID)
}

// HasCredentials reports whether all three client-credential fields are set.
func (g GraphConfig) HasCredentials() bool {
	return g.TenantID != "" && g.ClientID != "" && g.ClientSecret != ""
}

// PostgresConfig locates the catalog table read by the postgres source.
type PostgresConfig struct {
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	Database        string        `yaml:"database"`
	User            string        `yaml:"user"`
	Password        string        `yaml:"password"`
	SSLMode         string        `yaml:"sslMode"`
	Table           string        `yaml:"table"`
	Limit           int           `yaml:"limit"`
	MaxOpenConns    int           `yaml:"maxOpenConns"`
	MaxIdleConns    int           `yaml:"maxIdleConns"`
	ConnMaxLifetime time.Duration `yaml:"connMaxLifetime"`
}

// DSN renders the key=value form lib/pq accepts.
func (p PostgresConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		p.Host, p.Port, p.User, p.Password, p.Database, p.SSLMode,
	)
}

// FileConfig points at a YAML seed file of documents.
type FileConfig struct {
	Path string `yaml:"path"`
}

// RedisConfig enables the shared query cache. CacheTTL applies per entry.
type RedisConfig struct {
	Enabled  bool          `yaml:"enabled"`
	Addr     string        `yaml:"addr"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	PoolSize int           `yaml:"poolSize"`
	CacheTTL time.Duration `yaml:"cacheTTL"`
}

// KafkaConfig enables publishing search events.
type KafkaConfig struct {
	Enabled    bool     `yaml:"enabled"`
	Brokers    []string `yaml:"brokers"`
	Topic      string   `yaml:"topic"`
	BufferSize int      `yaml:"bufferSize"`
	// BatchSize and FlushInterval bound how long events wait before publish.
	BatchSize     int           `yaml:"batchSize"`
	FlushInterval time.Duration `yaml:"flushInterval"`
}

// SearchConfig controls how many matches a query response carries.
type SearchConfig struct {
	MaxResults int `yaml:"maxResults"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// MetricsConfig exposes /metrics on its own port when enabled.
type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
	Port    int  `yaml:"port"`
}

// Load layers the file at path (skipped when empty) and the environment over
// the defaults, then validates the result.
func Load(path string) (*Config, error) {
	cfg := defaultConfig()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file %s: %w", path, err)
		}
	}
	applyEnvOverrides(cfg)
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port %d", c.Server.Port)
	}
	switch c.Source.Kind {
	case SourceGraph, SourcePostgres, SourceFile, SourceNone:
	default:
		return fmt.Errorf("unknown source kind %q", c.Source.Kind)
	}
	if c.Search.MaxResults <= 0 {
		return fmt.Errorf("search.maxResults must be positive, got %d", c.Search.MaxResults)
	}
	if c.Kafka.Enabled && (len(c.Kafka.Brokers) == 0 || c.Kafka.Topic == "") {
		return fmt.Errorf("kafka is enabled but brokers or topic are missing")
	}
	return nil
}

func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            8080,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    30 * time.Second,
			ShutdownTimeout: 15 * time.Second,
			RateLimit:       RateLimit{Burst: 20},
		},
		Source: SourceConfig{
			Kind:         SourceGraph,
			FetchTimeout: 2 * time.Minute,
			Graph: GraphConfig{
				BaseURL:           "https://graph.microsoft.com/v1.0",
				AuthorityURL:      "https://login.microsoftonline.com",
				MaxSites:          5,
				MaxFilesPerSite:   10,
				Extensions:        []string{".txt", ".md", ".docx", ".pdf"},
				RequestsPerSecond: 8,
				Concurrency:       4,
			},
			Postgres: PostgresConfig{
				Host:            "localhost",
				Port:            5432,
				Database:        "docquery",
				User:            "docquery",
				Password:        "localdev",
				SSLMode:         "disable",
				Table:           "documents",
				Limit:           1000,
				MaxOpenConns:    5,
				MaxIdleConns:    2,
				ConnMaxLifetime: 5 * time.Minute,
			},
		},
		Redis: RedisConfig{
			Addr:     "localhost:6379",
			PoolSize: 10,
			CacheTTL: 60 * time.Second,
		},
		Kafka: KafkaConfig{
			Brokers:       []string{"localhost:9092"},
			Topic:         "search-analytics",
			BufferSize:    10000,
			BatchSize:     100,
			FlushInterval: time.Second,
		},
		Search: SearchConfig{
			MaxResults: 5,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Port:    9090,
		},
	}
}

// applyEnvOverrides reads DQ_* environment variables (plus PORT and the
// AZURE_* credential variables) and overrides the corresponding fields.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("DQ_SERVER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("DQ_SERVER_ALLOW_ORIGINS"); v != "" {
		cfg.Server.AllowOrigins = strings.Split(v, ",")
	}
	if v := os.Getenv("DQ_SERVER_RATE_LIMIT_RPS"); v != "" {
		if rps, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Server.RateLimit.RequestsPerSecond = rps
		}
	}
	if v := os.Getenv("DQ_SOURCE_KIND"); v != "" {
		cfg.Source.Kind = v
	}
	if v := os.Getenv("DQ_SOURCE_FETCH_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Source.FetchTimeout = d
		}
	}
	if v := os.Getenv("AZURE_TENANT_ID"); v != "" {
		cfg.Source.Graph.TenantID = v
	}
	if v := os.Getenv("AZURE_CLIENT_ID"); v != "" {
		cfg.Source.Graph.ClientID = v
	}
	if v := os.Getenv("AZURE_CLIENT_SECRET"); v != "" {
		cfg.Source.Graph.ClientSecret = v
	}
	if v := os.Getenv("DQ_GRAPH_MAX_SITES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Source.Graph.MaxSites = n
		}
	}
	if v := os.Getenv("DQ_GRAPH_MAX_FILES_PER_SITE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Source.Graph.MaxFilesPerSite = n
		}
	}
	if v := os.Getenv("DQ_POSTGRES_HOST"); v != "" {
		cfg.Source.Postgres.Host = v
	}
	if v := os.Getenv("DQ_POSTGRES_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Source.Postgres.Port = port
		}
	}
	if v := os.Getenv("DQ_POSTGRES_DATABASE"); v != "" {
		cfg.Source.Postgres.Database = v
	}
	if v := os.Getenv("DQ_POSTGRES_USER"); v != "" {
		cfg.Source.Postgres.User = v
	}
	if v := os.Getenv("DQ_POSTGRES_PASSWORD"); v != "" {
		cfg.Source.Postgres.Password = v
	}
	if v := os.Getenv("DQ_FILE_PATH"); v != "" {
		cfg.Source.File.Path = v
	}
	if v := os.Getenv("DQ_REDIS_ENABLED"); v != "" {
		cfg.Redis.Enabled = parseBool(v, cfg.Redis.Enabled)
	}
	if v := os.Getenv("DQ_REDIS_ADDR"); v != "" {
		cfg.Redis.Addr = v
	}
	if v := os.Getenv("DQ_REDIS_PASSWORD"); v != "" {
		cfg.Redis.Password = v
	}
	if v := os.Getenv("DQ_KAFKA_ENABLED"); v != "" {
		cfg.Kafka.Enabled = parseBool(v, cfg.Kafka.Enabled)
	}
	if v := os.Getenv("DQ_KAFKA_BROKERS"); v != "" {
		cfg.Kafka.Brokers = strings.Split(v, ",")
	}
	if v := os.Getenv("DQ_LOGGING_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("DQ_LOGGING_FORMAT"); v != "" {
		cfg.Logging.Format = v
	}
	if v := os.Getenv("DQ_METRICS_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Metrics.Port = port
		}
	}
}

func parseBool(v string, fallback bool) bool {
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}
