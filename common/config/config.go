package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/kp-forecasting/forecast-client/common/clients"
)

// Config holds all service configuration
type Config struct {
	Service   ServiceConfig
	Client    ClientConfig
	Poll      PollConfig
	Retry     RetryConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	Storage   StorageConfig
	Telemetry TelemetryConfig
	Mock      MockConfig
}

// ServiceConfig holds service-specific settings
type ServiceConfig struct {
	Name        string
	Port        int
	Environment string
	LogLevel    string
	LogFormat   string
}

// ClientConfig holds the forecast service endpoint and per-call limits
type ClientConfig struct {
	BaseURL          string
	UploadTimeout    time.Duration
	StatusTimeout    time.Duration
	DownloadTimeout  time.Duration
	MaxArtifactBytes int64
}

// PollConfig mirrors clients.PollPolicy
type PollConfig struct {
	Interval    time.Duration
	MaxInterval time.Duration
	Multiplier  float64
	MaxAttempts int
	MaxDuration time.Duration
}

// RetryConfig mirrors clients.RetryPolicy
type RetryConfig struct {
	MaxRetries int
	BaseDelay  time.Duration
	MaxDelay   time.Duration
	Jitter     float64
}

// DatabaseConfig holds Postgres connection settings for job history
type DatabaseConfig struct {
	Enabled     bool
	Host        string
	Port        int
	Database    string
	User        string
	Password    string
	MaxConns    int
	MinConns    int
	MaxIdleTime time.Duration
	MaxLifetime time.Duration
}

// RedisConfig holds Redis connection settings
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// StorageConfig selects where downloaded artifacts are written
type StorageConfig struct {
	Kind      string // "dir" or "minio"
	OutputDir string
	Minio     MinioConfig
}

// MinioConfig holds S3-compatible object storage settings
type MinioConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
}

// TelemetryConfig holds observability settings
type TelemetryConfig struct {
	EnablePprof   bool
	PprofPort     int
	EnableMetrics bool
	MetricsPort   int
}

// MockConfig tunes the local mock of the forecast service
type MockConfig struct {
	Store           string // "memory" or "redis"
	ProcessingDelay time.Duration
	Workers         int
	MaxUploadBytes  int64
	FailPrefix      string
	TaskTTL         time.Duration
	RateLimit       int64 // requests per RateWindow and client, 0 disables
	RateWindow      time.Duration
}

const (
	StorageDir   = "dir"
	StorageMinio = "minio"

	StoreMemory = "memory"
	StoreRedis  = "redis"
)

// Load loads configuration from environment variables
func Load(serviceName string) (*Config, error) {
	return load(serviceName, source{})
}

// LoadFile loads configuration from a YAML file overlaid by environment variables.
// File keys are the environment variable names in any case, e.g. forecast_base_url.
func LoadFile(serviceName, path string) (*Config, error) {
	if path == "" {
		return Load(serviceName)
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	return load(serviceName, source{file: v})
}

// LoadEnvFile loads a .env file into the process environment.
// A missing file is not an error; variables already set are kept.
func LoadEnvFile(path string) error {
	if path == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to load .env file: %w", err)
	}
	return nil
}

func load(serviceName string, src source) (*Config, error) {
	cfg := &Config{
		Service: ServiceConfig{
			Name:        serviceName,
			Port:        src.getInt("PORT", 8000),
			Environment: src.get("ENVIRONMENT", "development"),
			LogLevel:    src.get("LOG_LEVEL", "info"),
			LogFormat:   src.get("LOG_FORMAT", "text"), // Default to text for development
		},
		Client: ClientConfig{
			BaseURL:          src.get("FORECAST_BASE_URL", "http://localhost:8000"),
			UploadTimeout:    src.getDuration("FORECAST_UPLOAD_TIMEOUT", 30*time.Second),
			StatusTimeout:    src.getDuration("FORECAST_STATUS_TIMEOUT", 10*time.Second),
			DownloadTimeout:  src.getDuration("FORECAST_DOWNLOAD_TIMEOUT", 5*time.Minute),
			MaxArtifactBytes: src.getInt64("FORECAST_MAX_ARTIFACT_BYTES", 512<<20),
		},
		Poll: PollConfig{
			Interval:    src.getDuration("POLL_INTERVAL", 2*time.Second),
			MaxInterval: src.getDuration("POLL_MAX_INTERVAL", 15*time.Second),
			Multiplier:  src.getFloat("POLL_MULTIPLIER", 1.5),
			MaxAttempts: src.getInt("POLL_MAX_ATTEMPTS", 0),
			MaxDuration: src.getDuration("POLL_MAX_DURATION", 10*time.Minute),
		},
		Retry: RetryConfig{
			MaxRetries: src.getInt("RETRY_MAX_RETRIES", 3),
			BaseDelay:  src.getDuration("RETRY_BASE_DELAY", 500*time.Millisecond),
			MaxDelay:   src.getDuration("RETRY_MAX_DELAY", 5*time.Second),
			Jitter:     src.getFloat("RETRY_JITTER", 0.25),
		},
		Database: DatabaseConfig{
			Enabled:     src.getBool("HISTORY_ENABLED", false),
			Host:        src.get("POSTGRES_HOST", "localhost"),
			Port:        src.getInt("POSTGRES_PORT", 5432),
			Database:    src.get("POSTGRES_DB", "forecast"),
			User:        src.get("POSTGRES_USER", "forecast"),
			Password:    src.get("POSTGRES_PASSWORD", "forecast"),
			MaxConns:    src.getInt("POSTGRES_MAX_CONNS", 10),
			MinConns:    src.getInt("POSTGRES_MIN_CONNS", 1),
			MaxIdleTime: src.getDuration("POSTGRES_MAX_IDLE_TIME", 30*time.Minute),
			MaxLifetime: src.getDuration("POSTGRES_MAX_LIFETIME", 1*time.Hour),
		},
		Redis: RedisConfig{
			Addr:     src.get("REDIS_ADDR", "localhost:6379"),
			Password: src.get("REDIS_PASSWORD", ""),
			DB:       src.getInt("REDIS_DB", 0),
		},
		Storage: StorageConfig{
			Kind:      src.get("STORAGE_KIND", StorageDir),
			OutputDir: src.get("OUTPUT_DIR", "."),
			Minio: MinioConfig{
				Endpoint:  src.get("MINIO_ENDPOINT", "localhost:9000"),
				AccessKey: src.get("MINIO_ACCESS_KEY", ""),
				SecretKey: src.get("MINIO_SECRET_KEY", ""),
				Bucket:    src.get("MINIO_BUCKET", "forecasts"),
				UseSSL:    src.getBool("MINIO_USE_SSL", false),
			},
		},
		Telemetry: TelemetryConfig{
			EnablePprof:   src.getBool("ENABLE_PPROF", false),
			PprofPort:     src.getInt("PPROF_PORT", 6060),
			EnableMetrics: src.getBool("ENABLE_METRICS", false),
			MetricsPort:   src.getInt("METRICS_PORT", 9090),
		},
		Mock: MockConfig{
			Store:           src.get("MOCK_STORE", StoreMemory),
			ProcessingDelay: src.getDuration("MOCK_PROCESSING_DELAY", 3*time.Second),
			Workers:         src.getInt("MOCK_WORKERS", 2),
			MaxUploadBytes:  src.getInt64("MOCK_MAX_UPLOAD_BYTES", 50<<20),
			FailPrefix:      src.get("MOCK_FAIL_PREFIX", "FAIL"),
			TaskTTL:         src.getDuration("MOCK_TASK_TTL", 24*time.Hour),
			RateLimit:       src.getInt64("MOCK_RATE_LIMIT", 0),
			RateWindow:      src.getDuration("MOCK_RATE_WINDOW", time.Minute),
		},
	}

	return cfg, cfg.Validate()
}

// Validate checks if configuration is valid
func (c *Config) Validate() error {
	if c.Service.Port < 1 || c.Service.Port > 65535 {
		return fmt.Errorf("invalid port: %d", c.Service.Port)
	}

	if err := c.ClientConfig().Validate(); err != nil {
		return fmt.Errorf("invalid client config: %w", err)
	}

	if err := c.PollPolicy().Validate(); err != nil {
		return fmt.Errorf("invalid poll config: %w", err)
	}

	if c.Database.Enabled {
		if c.Database.Host == "" {
			return fmt.Errorf("database host is required")
		}
		if c.Database.MaxConns < c.Database.MinConns {
			return fmt.Errorf("max_conns must be >= min_conns")
		}
	}

	switch c.Storage.Kind {
	case StorageDir:
	case StorageMinio:
		if c.Storage.Minio.Endpoint == "" || c.Storage.Minio.Bucket == "" {
			return fmt.Errorf("minio endpoint and bucket are required")
		}
	default:
		return fmt.Errorf("unknown storage kind: %s", c.Storage.Kind)
	}

	switch c.Mock.Store {
	case StoreMemory, StoreRedis:
	default:
		return fmt.Errorf("unknown mock store: %s", c.Mock.Store)
	}
	if c.Mock.Workers < 1 {
		return fmt.Errorf("mock workers must be >= 1")
	}
	if c.Mock.RateLimit < 0 || (c.Mock.RateLimit > 0 && c.Mock.RateWindow <= 0) {
		return fmt.Errorf("mock rate limit needs a positive window")
	}

	return nil
}

// DatabaseURL returns the PostgreSQL connection string
func (c *Config) DatabaseURL() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=disable",
		c.Database.User,
		c.Database.Password,
		c.Database.Host,
		c.Database.Port,
		c.Database.Database,
	)
}

// ClientConfig converts to the forecast client's transport config
func (c *Config) ClientConfig() clients.Config {
	return clients.Config{
		BaseURL:          c.Client.BaseURL,
		UploadTimeout:    c.Client.UploadTimeout,
		StatusTimeout:    c.Client.StatusTimeout,
		DownloadTimeout:  c.Client.DownloadTimeout,
		MaxArtifactBytes: c.Client.MaxArtifactBytes,
		Retry:            c.RetryPolicy(),
	}
}

// PollPolicy converts the poll settings
func (c *Config) PollPolicy() clients.PollPolicy {
	return clients.PollPolicy(c.Poll)
}

// RetryPolicy converts the retry settings
func (c *Config) RetryPolicy() clients.RetryPolicy {
	return clients.RetryPolicy(c.Retry)
}

// source resolves a key from the environment first, then the optional file
type source struct {
	file *viper.Viper
}

func (s source) lookup(key string) (string, bool) {
	if value := os.Getenv(key); value != "" {
		return value, true
	}
	if s.file != nil && s.file.IsSet(key) {
		if value := strings.TrimSpace(s.file.GetString(key)); value != "" {
			return value, true
		}
	}
	return "", false
}

// Helper functions

func (s source) get(key, defaultValue string) string {
	if value, ok := s.lookup(key); ok {
		return value
	}
	return defaultValue
}

func (s source) getInt(key string, defaultValue int) int {
	if value, ok := s.lookup(key); ok {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func (s source) getInt64(key string, defaultValue int64) int64 {
	if value, ok := s.lookup(key); ok {
		if intVal, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func (s source) getFloat(key string, defaultValue float64) float64 {
	if value, ok := s.lookup(key); ok {
		if floatVal, err := strconv.ParseFloat(value, 64); err == nil {
			return floatVal
		}
	}
	return defaultValue
}

func (s source) getBool(key string, defaultValue bool) bool {
	if value, ok := s.lookup(key); ok {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

func (s source) getDuration(key string, defaultValue time.Duration) time.Duration {
	if value, ok := s.lookup(key); ok {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
