package config

import (
	"fmt"
	"strings"

	"github.com/ilyakaznacheev/cleanenv"
)

// Config holds all configuration for codegraph-engine.
// Configuration can come from YAML file (config.yaml) or environment variables.
// Environment variables always override YAML values for fields that support both.
// Secrets (passwords, keys) must only come from environment variables.
type Config struct {
	// Server configuration
	BindAddr string `yaml:"bind_addr" env:"BIND_ADDR" env-default:"127.0.0.1"`
	Port     string `yaml:"port" env:"PORT" env-default:"3780"`
	Env      string `yaml:"env" env:"ENVIRONMENT" env-default:"local"`
	Version  string `yaml:"-"` // Set at load time, not from config

	// Database configuration (PostgreSQL, source registry persistence)
	Database DatabaseConfig `yaml:"database"`

	// Redis configuration (optional job status mirror)
	Redis RedisConfig `yaml:"redis"`

	// Graph store configuration (Neo4j)
	Graph GraphConfig `yaml:"graph"`

	// Artifact storage configuration
	Artifacts ArtifactsConfig `yaml:"artifacts"`

	// Analysis pipeline configuration
	Analysis AnalysisConfig `yaml:"analysis"`

	// AnalysisTenantsStr declares which tenants have static analysis enabled,
	// optionally with repositories to register at startup.
	// Format: "tenant1=org/repo-a;org/repo-b,tenant2="
	AnalysisTenantsStr string `yaml:"analysis_tenants" env:"ANALYSIS_TENANTS" env-default:""`

	// AnalysisTenants is the parsed map from AnalysisTenantsStr (not from config file).
	AnalysisTenants map[string][]string `yaml:"-"`
}

// DatabaseConfig holds PostgreSQL database configuration.
type DatabaseConfig struct {
	Host           string `yaml:"host" env:"PGHOST" env-default:"localhost"`
	Port           int    `yaml:"port" env:"PGPORT" env-default:"5432"`
	User           string `yaml:"user" env:"PGUSER" env-default:"codegraph"`
	Password       string `yaml:"-" env:"PGPASSWORD"` // Secret - not in YAML
	Database       string `yaml:"database" env:"PGDATABASE" env-default:"codegraph_engine"`
	MaxConnections int32  `yaml:"max_connections" env:"PGMAX_CONNECTIONS" env-default:"25"`
	SSLMode        string `yaml:"ssl_mode" env:"PGSSLMODE" env-default:"disable"`
	MigrationsPath string `yaml:"migrations_path" env:"PGMIGRATIONS_PATH" env-default:"migrations"`
}

// RedisConfig holds optional Redis configuration for job status mirroring.
// An empty host disables Redis entirely.
type RedisConfig struct {
	Host     string `yaml:"host" env:"REDIS_HOST" env-default:""`
	Port     int    `yaml:"port" env:"REDIS_PORT" env-default:"6379"`
	Password string `yaml:"-" env:"REDIS_PASSWORD"` // Secret - not in YAML
	DB       int    `yaml:"db" env:"REDIS_DB" env-default:"0"`
}

// GraphConfig holds Neo4j graph store configuration.
// An empty host disables the graph store; analysis publishing and graph
// retrieval report unavailability instead of failing the process.
type GraphConfig struct {
	Host     string `yaml:"host" env:"NEO4J_HOST" env-default:""`
	Port     int    `yaml:"port" env:"NEO4J_PORT" env-default:"7687"`
	User     string `yaml:"user" env:"NEO4J_USER" env-default:"neo4j"`
	Password string `yaml:"-" env:"NEO4J_PASSWORD"` // Secret - not in YAML
	SSL      bool   `yaml:"ssl" env:"NEO4J_SSL" env-default:"false"`
}

// ArtifactsConfig holds analysis artifact storage configuration.
type ArtifactsConfig struct {
	// Backend selects the storage implementation: "local" or "s3".
	Backend string `yaml:"backend" env:"ARTIFACTS_BACKEND" env-default:"local"`

	// LocalPath is the base directory for the local filesystem backend.
	LocalPath string `yaml:"local_path" env:"ARTIFACTS_LOCAL_PATH" env-default:"data/artifacts"`

	// S3 backend settings (MinIO / S3-compatible object storage).
	S3Endpoint  string `yaml:"s3_endpoint" env:"ARTIFACTS_S3_ENDPOINT" env-default:""`
	S3Region    string `yaml:"s3_region" env:"ARTIFACTS_S3_REGION" env-default:""`
	S3Bucket    string `yaml:"s3_bucket" env:"ARTIFACTS_S3_BUCKET" env-default:"codegraph-artifacts"`
	S3AccessKey string `yaml:"-" env:"ARTIFACTS_S3_ACCESS_KEY"` // Secret - not in YAML
	S3SecretKey string `yaml:"-" env:"ARTIFACTS_S3_SECRET_KEY"` // Secret - not in YAML
	S3UseSSL    bool   `yaml:"s3_use_ssl" env:"ARTIFACTS_S3_USE_SSL" env-default:"true"`
}

// AnalysisConfig holds settings for the external analysis toolchain and the
// orchestration pipeline.
type AnalysisConfig struct {
	// ToolPath is the path to the analysis database build tool executable.
	ToolPath string `yaml:"tool_path" env:"CODEQL_PATH" env-default:"codeql"`

	// QueriesDir is the directory containing extraction query files.
	QueriesDir string `yaml:"queries_dir" env:"ANALYSIS_QUERIES_DIR" env-default:"queries"`

	// WorkDir is where working copies are materialized before building.
	WorkDir string `yaml:"work_dir" env:"ANALYSIS_WORK_DIR" env-default:"data/workdir"`

	// BuildTimeoutMinutes bounds one external database build invocation.
	BuildTimeoutMinutes int `yaml:"build_timeout_minutes" env:"ANALYSIS_BUILD_TIMEOUT_MINUTES" env-default:"60"`

	// QueryTimeoutSeconds bounds one extraction query invocation.
	QueryTimeoutSeconds int `yaml:"query_timeout_seconds" env:"ANALYSIS_QUERY_TIMEOUT_SECONDS" env-default:"300"`

	// MaxConcurrentBuilds throttles how many sources build at the same time
	// during a tenant-wide trigger.
	MaxConcurrentBuilds int `yaml:"max_concurrent_builds" env:"ANALYSIS_MAX_CONCURRENT_BUILDS" env-default:"2"`

	// GitRemoteBase is the base URL for hosted-repository sources
	// (e.g. "https://gitlab.example.com"). Source paths are appended to it.
	GitRemoteBase string `yaml:"git_remote_base" env:"ANALYSIS_GIT_REMOTE_BASE" env-default:""`
}

// Load reads configuration from config.yaml with environment variable overrides.
// The version parameter is injected at build time and set on the returned Config.
// Secrets (PGPASSWORD, NEO4J_PASSWORD, ARTIFACTS_S3_* keys) must come from
// environment variables (yaml:"-" fields).
func Load(version string) (*Config, error) {
	cfg := &Config{
		Version: version,
	}

	if err := cleanenv.ReadConfig("config.yaml", cfg); err != nil {
		return nil, fmt.Errorf("failed to read config.yaml: %w", err)
	}

	cfg.AnalysisTenants = parseAnalysisTenants(cfg.AnalysisTenantsStr)

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// validate checks cross-field constraints that cleanenv cannot express.
func (c *Config) validate() error {
	switch c.Artifacts.Backend {
	case "local":
		if c.Artifacts.LocalPath == "" {
			return fmt.Errorf("artifacts.local_path must be set for the local backend")
		}
	case "s3":
		if c.Artifacts.S3Endpoint == "" {
			return fmt.Errorf("artifacts.s3_endpoint must be set for the s3 backend")
		}
		if c.Artifacts.S3AccessKey == "" || c.Artifacts.S3SecretKey == "" {
			return fmt.Errorf("ARTIFACTS_S3_ACCESS_KEY and ARTIFACTS_S3_SECRET_KEY must be set for the s3 backend")
		}
	default:
		return fmt.Errorf("unknown artifacts backend: %q", c.Artifacts.Backend)
	}

	if c.Analysis.BuildTimeoutMinutes <= 0 {
		return fmt.Errorf("analysis.build_timeout_minutes must be positive")
	}
	if c.Analysis.QueryTimeoutSeconds <= 0 {
		return fmt.Errorf("analysis.query_timeout_seconds must be positive")
	}
	if c.Analysis.MaxConcurrentBuilds <= 0 {
		return fmt.Errorf("analysis.max_concurrent_builds must be positive")
	}

	return nil
}

// TenantEnabled reports whether static analysis is enabled for a tenant.
func (c *Config) TenantEnabled(tenant string) bool {
	_, ok := c.AnalysisTenants[tenant]
	return ok
}

// parseAnalysisTenants parses the analysis tenants declaration string.
// Format: "tenant1=org/repo-a;org/repo-b,tenant2=" — a tenant with no repos
// is still analysis-enabled, it just has no declaratively registered sources.
func parseAnalysisTenants(value string) map[string][]string {
	tenants := make(map[string][]string)
	if value == "" {
		return tenants
	}

	pairs := strings.Split(value, ",")
	for _, pair := range pairs {
		parts := strings.SplitN(pair, "=", 2)
		if len(parts) != 2 {
			continue
		}
		tenant := strings.TrimSpace(parts[0])
		if tenant == "" {
			continue
		}

		var repos []string
		for _, repo := range strings.Split(parts[1], ";") {
			repo = strings.TrimSpace(repo)
			if repo != "" {
				repos = append(repos, repo)
			}
		}
		tenants[tenant] = repos
	}
	return tenants
}

// ConnectionString returns a PostgreSQL connection string.
func (c *DatabaseConfig) ConnectionString() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
}

// URI returns the Neo4j connection URI.
func (c *GraphConfig) URI() string {
	scheme := "neo4j"
	if c.SSL {
		scheme = "neo4j+s"
	}
	return fmt.Sprintf("%s://%s:%d", scheme, c.Host, c.Port)
}

// Configured reports whether a graph store host has been set.
func (c *GraphConfig) Configured() bool {
	return c.Host != ""
}
