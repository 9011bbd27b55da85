package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/newsinsight/docservice/pkg/logger"
	"github.com/spf13/viper"
)

// Config holds application configuration
type Config struct {
	Server    ServerConfig
	Storage   StorageConfig
	MongoDB   MongoDBConfig
	Postgres  PostgresConfig
	Redis     RedisConfig
	Blob      BlobConfig
	Analyzer  AnalyzerConfig
	Callback  CallbackConfig
	Sweep     SweepConfig
	RateLimit RateLimitConfig
}

type ServerConfig struct {
	Port         string
	Host         string
	Environment  string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	MaxUploadMB  int64
}

// StorageConfig selects the document repository backend: memory, mongo or postgres.
type StorageConfig struct {
	Driver string
}

type MongoDBConfig struct {
	URI      string
	Database string
	Timeout  time.Duration
}

type PostgresConfig struct {
	DSN          string
	MaxOpenConns int
	Timeout      time.Duration
}

type RedisConfig struct {
	Host     string
	Port     string
	Password string
	DB       int
}

// Addr returns host:port, or "" when Redis is not configured.
func (r RedisConfig) Addr() string {
	if r.Host == "" {
		return ""
	}
	return r.Host + ":" + r.Port
}

// BlobConfig covers both the upload client and the public URL convention.
type BlobConfig struct {
	Endpoint      string
	AccessKey     string
	SecretKey     string
	UseSSL        bool
	Bucket        string
	Region        string
	KeyPrefix     string
	UploadTimeout time.Duration
}

type AnalyzerConfig struct {
	BaseURL  string
	Timeout  time.Duration
	Workers  int
	QueueKey string
	Enqueue  bool
	// MetricsAddr is where the worker process serves /health and /metrics.
	MetricsAddr string
}

type CallbackConfig struct {
	BaseURL  string
	Secret   string
	TokenTTL time.Duration
}

type SweepConfig struct {
	Interval time.Duration
	StaleTTL time.Duration
}

type RateLimitConfig struct {
	Enabled       bool
	UseRedis      bool
	RPS           float64
	Burst         int
	WindowSeconds int
}

// LoadConfig loads configuration from environment variables and an optional .env file
func LoadConfig() (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.AutomaticEnv()

	v.SetDefault("SERVER_PORT", "33333")
	v.SetDefault("SERVER_HOST", "0.0.0.0")
	v.SetDefault("SERVER_ENVIRONMENT", "development")
	v.SetDefault("SERVER_MAX_UPLOAD_MB", 32)
	v.SetDefault("STORAGE_DRIVER", "memory")
	v.SetDefault("MONGODB_DATABASE", "docservice")
	v.SetDefault("MONGODB_TIMEOUT", 10)
	v.SetDefault("POSTGRES_MAX_OPEN_CONNS", 10)
	v.SetDefault("POSTGRES_TIMEOUT", 10)
	v.SetDefault("REDIS_PORT", "6379")
	v.SetDefault("BLOB_KEY_PREFIX", "documents")
	v.SetDefault("BLOB_UPLOAD_TIMEOUT", 60)
	v.SetDefault("AWS_S3_ENDPOINT", "s3.amazonaws.com")
	v.SetDefault("AWS_S3_USE_SSL", true)
	v.SetDefault("PDF_ANALYZER_BASE_URL", "http://localhost:33333")
	v.SetDefault("PDF_ANALYZER_TIMEOUT", 120)
	v.SetDefault("ANALYZER_WORKERS", 2)
	v.SetDefault("ANALYZER_QUEUE_KEY", "analysis:jobs")
	v.SetDefault("ANALYZER_ENQUEUE", true)
	v.SetDefault("ANALYZER_METRICS_ADDR", ":9102")
	v.SetDefault("DOCUMENT_API_BASE_URL", "http://localhost:33333")
	v.SetDefault("CALLBACK_TOKEN_TTL", 300)
	v.SetDefault("SWEEP_INTERVAL", 0)
	v.SetDefault("SWEEP_STALE_TTL", 3600)
	v.SetDefault("RATE_LIMIT_RPS", 5)
	v.SetDefault("RATE_LIMIT_BURST", 10)
	v.SetDefault("RATE_LIMIT_WINDOW_SECONDS", 1)

	cfg := &Config{
		Server: ServerConfig{
			Port:         v.GetString("SERVER_PORT"),
			Host:         v.GetString("SERVER_HOST"),
			Environment:  v.GetString("SERVER_ENVIRONMENT"),
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 30 * time.Second,
			MaxUploadMB:  v.GetInt64("SERVER_MAX_UPLOAD_MB"),
		},
		Storage: StorageConfig{
			Driver: strings.ToLower(strings.TrimSpace(v.GetString("STORAGE_DRIVER"))),
		},
		MongoDB: MongoDBConfig{
			URI:      v.GetString("MONGODB_URI"),
			Database: v.GetString("MONGODB_DATABASE"),
			Timeout:  seconds(v, "MONGODB_TIMEOUT"),
		},
		Postgres: PostgresConfig{
			DSN:          v.GetString("DATABASE_DSN"),
			MaxOpenConns: v.GetInt("POSTGRES_MAX_OPEN_CONNS"),
			Timeout:      seconds(v, "POSTGRES_TIMEOUT"),
		},
		Redis: RedisConfig{
			Host:     v.GetString("REDIS_HOST"),
			Port:     v.GetString("REDIS_PORT"),
			Password: v.GetString("REDIS_PASSWORD"),
			DB:       v.GetInt("REDIS_DB"),
		},
		Blob: BlobConfig{
			Endpoint:      v.GetString("AWS_S3_ENDPOINT"),
			AccessKey:     v.GetString("AWS_ACCESS_KEY_ID"),
			SecretKey:     v.GetString("AWS_SECRET_ACCESS_KEY"),
			UseSSL:        v.GetBool("AWS_S3_USE_SSL"),
			Bucket:        v.GetString("AWS_S3_BUCKET"),
			Region:        v.GetString("AWS_REGION"),
			KeyPrefix:     v.GetString("BLOB_KEY_PREFIX"),
			UploadTimeout: seconds(v, "BLOB_UPLOAD_TIMEOUT"),
		},
		Analyzer: AnalyzerConfig{
			BaseURL:  v.GetString("PDF_ANALYZER_BASE_URL"),
			Timeout:  seconds(v, "PDF_ANALYZER_TIMEOUT"),
			Workers:  v.GetInt("ANALYZER_WORKERS"),
			QueueKey: v.GetString("ANALYZER_QUEUE_KEY"),
			Enqueue:  v.GetBool("ANALYZER_ENQUEUE"),

			MetricsAddr: v.GetString("ANALYZER_METRICS_ADDR"),
		},
		Callback: CallbackConfig{
			BaseURL:  v.GetString("DOCUMENT_API_BASE_URL"),
			Secret:   v.GetString("CALLBACK_JWT_SECRET"),
			TokenTTL: seconds(v, "CALLBACK_TOKEN_TTL"),
		},
		Sweep: SweepConfig{
			Interval: seconds(v, "SWEEP_INTERVAL"),
			StaleTTL: seconds(v, "SWEEP_STALE_TTL"),
		},
		RateLimit: RateLimitConfig{
			Enabled:       v.GetBool("RATE_LIMIT_ENABLED"),
			UseRedis:      v.GetBool("RATE_LIMIT_USE_REDIS"),
			RPS:           v.GetFloat64("RATE_LIMIT_RPS"),
			Burst:         v.GetInt("RATE_LIMIT_BURST"),
			WindowSeconds: v.GetInt("RATE_LIMIT_WINDOW_SECONDS"),
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	// the URL convention is checked again on every projection; warn early
	if cfg.Blob.Bucket == "" || cfg.Blob.Region == "" {
		logger.Warnf("AWS_S3_BUCKET or AWS_REGION is not set; document responses will fail until configured")
	}
	if cfg.Callback.Secret == "" {
		logger.Warnf("CALLBACK_JWT_SECRET is not set; result callbacks are not authenticated")
	}
	return cfg, nil
}

func (c *Config) validate() error {
	switch c.Storage.Driver {
	case "memory":
	case "mongo":
		if c.MongoDB.URI == "" {
			return fmt.Errorf("STORAGE_DRIVER=mongo requires MONGODB_URI")
		}
	case "postgres":
		if c.Postgres.DSN == "" {
			return fmt.Errorf("STORAGE_DRIVER=postgres requires DATABASE_DSN")
		}
	default:
		return fmt.Errorf("unknown STORAGE_DRIVER %q (want memory, mongo or postgres)", c.Storage.Driver)
	}
	return nil
}

func seconds(v *viper.Viper, key string) time.Duration {
	return time.Duration(v.GetInt(key)) * time.Second
}
