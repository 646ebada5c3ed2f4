// Package config provides configuration loading for the OCR services.
// Supports YAML files, .env files and environment variable overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the OCR services.
type Config struct {
	Server        ServerConfig        `yaml:"server"`
	Raster        RasterConfig        `yaml:"raster"`
	Pipeline      PipelineConfig      `yaml:"pipeline"`
	Services      ServicesConfig      `yaml:"services"`
	Recognition   RecognitionConfig   `yaml:"recognition"`
	Gemini        GeminiConfig        `yaml:"gemini"`
	Tesseract     TesseractConfig     `yaml:"tesseract"`
	Cache         CacheConfig         `yaml:"cache"`
	Storage       StorageConfig       `yaml:"storage"`
	Observability ObservabilityConfig `yaml:"observability"`

	envErrors []error
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host             string        `yaml:"host"`
	Port             int           `yaml:"port"`
	ReadTimeout      time.Duration `yaml:"read_timeout"`
	WriteTimeout     time.Duration `yaml:"write_timeout"`
	IdleTimeout      time.Duration `yaml:"idle_timeout"`
	RequestTimeout   time.Duration `yaml:"request_timeout"`
	GracefulShutdown time.Duration `yaml:"graceful_shutdown"`
	MaxUploadBytes   int64         `yaml:"max_upload_bytes"`
}

// RasterConfig controls how uploads become page images.
type RasterConfig struct {
	DPI          float64 `yaml:"dpi"`
	MaxPages     int     `yaml:"max_pages"`
	MaxDimension int     `yaml:"max_dimension"`
}

// PipelineConfig holds the page pipeline tunables.
type PipelineConfig struct {
	BatchSize           int  `yaml:"batch_size"`
	ConfidenceThreshold int  `yaml:"confidence_threshold"`
	KeepEmptyElements   bool `yaml:"keep_empty_elements"`
}

// ServicesConfig describes the layout/recognition model server.
type ServicesConfig struct {
	BaseURL            string        `yaml:"base_url"`
	Timeout            time.Duration `yaml:"timeout"`
	MaxRetries         int           `yaml:"max_retries"`
	InitialBackoff     time.Duration `yaml:"initial_backoff"`
	MaxBackoff         time.Duration `yaml:"max_backoff"`
	MaxConcurrentCalls int64         `yaml:"max_concurrent_calls"`
}

// RecognitionConfig selects the recognizer backing the layout-aware engine.
type RecognitionConfig struct {
	Backend     string        `yaml:"backend"` // surya or gemini
	CallTimeout time.Duration `yaml:"call_timeout"`
}

// GeminiConfig holds settings for the Gemini recognizer.
type GeminiConfig struct {
	APIKey string `yaml:"api_key"`
	Model  string `yaml:"model"`
}

// TesseractConfig holds settings for the flat engine.
type TesseractConfig struct {
	Languages []string `yaml:"languages"`
}

// CacheConfig holds result cache settings.
type CacheConfig struct {
	Driver     string        `yaml:"driver"` // none, memory or redis
	TTL        time.Duration `yaml:"ttl"`
	MaxEntries int           `yaml:"max_entries"`
	Redis      RedisConfig   `yaml:"redis"`
}

// RedisConfig holds Redis-specific settings.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	PoolSize int    `yaml:"pool_size"`
	Prefix   string `yaml:"prefix"`
}

// StorageConfig holds result persistence settings.
type StorageConfig struct {
	Driver   string         `yaml:"driver"` // none, sqlite or postgres
	SQLite   SQLiteConfig   `yaml:"sqlite"`
	Postgres PostgresConfig `yaml:"postgres"`
}

// SQLiteConfig holds SQLite-specific settings.
type SQLiteConfig struct {
	Path string `yaml:"path"`
}

// PostgresConfig holds Postgres-specific settings.
type PostgresConfig struct {
	DSN             string        `yaml:"dsn"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
}

// ObservabilityConfig holds logging settings.
type ObservabilityConfig struct {
	LogLevel    string `yaml:"log_level"`
	LogFormat   string `yaml:"log_format"`
	ServiceName string `yaml:"service_name"`
}

// Load reads configuration from a YAML file and applies environment overrides.
// A .env file in the working directory is loaded first if present.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}

		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config file: %w", err)
		}
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return cfg, nil
}

// DefaultConfig returns a configuration with defaults for local development.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:             "0.0.0.0",
			Port:             8000,
			ReadTimeout:      60 * time.Second,
			WriteTimeout:     15 * time.Minute,
			IdleTimeout:      120 * time.Second,
			RequestTimeout:   15 * time.Minute,
			GracefulShutdown: 30 * time.Second,
			MaxUploadBytes:   100 << 20,
		},
		Raster: RasterConfig{
			DPI:          144,
			MaxPages:     0,
			MaxDimension: 0,
		},
		Pipeline: PipelineConfig{
			BatchSize:           8,
			ConfidenceThreshold: 50,
		},
		Services: ServicesConfig{
			BaseURL:            "http://localhost:8001",
			Timeout:            5 * time.Minute,
			MaxRetries:         3,
			InitialBackoff:     time.Second,
			MaxBackoff:         30 * time.Second,
			MaxConcurrentCalls: 1,
		},
		Recognition: RecognitionConfig{
			Backend:     "surya",
			CallTimeout: 5 * time.Minute,
		},
		Gemini: GeminiConfig{
			Model: "gemini-1.5-flash",
		},
		Tesseract: TesseractConfig{
			Languages: []string{"eng"},
		},
		Cache: CacheConfig{
			Driver:     "memory",
			TTL:        time.Hour,
			MaxEntries: 256,
			Redis: RedisConfig{
				Addr:     "localhost:6379",
				PoolSize: 10,
				Prefix:   "ocr:",
			},
		},
		Storage: StorageConfig{
			Driver: "none",
			SQLite: SQLiteConfig{
				Path: "ocr_results.db",
			},
			Postgres: PostgresConfig{
				MaxOpenConns:    10,
				ConnMaxLifetime: 5 * time.Minute,
			},
		},
		Observability: ObservabilityConfig{
			LogLevel:    "info",
			LogFormat:   "json",
			ServiceName: "doc-ocr",
		},
	}
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if len(c.envErrors) > 0 {
		return errors.Join(c.envErrors...)
	}

	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}

	if c.Raster.DPI <= 0 {
		return fmt.Errorf("raster dpi must be positive")
	}

	if c.Pipeline.BatchSize < 1 {
		return fmt.Errorf("batch_size must be at least 1")
	}

	if c.Pipeline.ConfidenceThreshold < 0 {
		return fmt.Errorf("confidence_threshold must not be negative")
	}

	if c.Services.MaxConcurrentCalls < 1 {
		return fmt.Errorf("max_concurrent_calls must be at least 1")
	}

	switch c.Recognition.Backend {
	case "surya":
	case "gemini":
		if c.Gemini.APIKey == "" {
			return fmt.Errorf("gemini backend requires an api key")
		}
	default:
		return fmt.Errorf("invalid recognition backend: %s", c.Recognition.Backend)
	}

	switch c.Cache.Driver {
	case "none", "memory", "redis":
	default:
		return fmt.Errorf("invalid cache driver: %s", c.Cache.Driver)
	}

	switch c.Storage.Driver {
	case "none", "sqlite":
	case "postgres":
		if c.Storage.Postgres.DSN == "" {
			return fmt.Errorf("postgres storage requires a dsn")
		}
	default:
		return fmt.Errorf("invalid storage driver: %s", c.Storage.Driver)
	}

	return nil
}

// StorageDSN returns the connection string for the configured storage driver.
func (c *Config) StorageDSN() string {
	if c.Storage.Driver == "postgres" {
		return c.Storage.Postgres.DSN
	}
	return c.Storage.SQLite.Path
}

// applyEnvOverrides applies environment variable overrides to config.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("SERVER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}

	if v := os.Getenv("SERVER_HOST"); v != "" {
		cfg.Server.Host = v
	}

	if v := os.Getenv("SURYA_URL"); v != "" {
		cfg.Services.BaseURL = v
	}

	if v := os.Getenv("OCR_BATCH_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Pipeline.BatchSize = n
		}
	}

	if v := os.Getenv("OCR_CONFIDENCE_THRESHOLD"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Pipeline.ConfidenceThreshold = n
		}
	}

	if v := os.Getenv("OCR_MAX_CONCURRENT_CALLS"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			cfg.Services.MaxConcurrentCalls = n
		}
	}

	if v := os.Getenv("RECOGNITION_BACKEND"); v != "" {
		cfg.Recognition.Backend = v
	}

	if v := os.Getenv("GEMINI_API_KEY"); v != "" {
		cfg.Gemini.APIKey = v
	}

	if v := os.Getenv("GEMINI_MODEL"); v != "" {
		cfg.Gemini.Model = v
	}

	if v := os.Getenv("TESSERACT_LANGUAGES"); v != "" {
		cfg.Tesseract.Languages = strings.Split(v, "+")
	}

	if v := os.Getenv("REDIS_URL"); v != "" {
		if opts, err := redis.ParseURL(v); err == nil {
			cfg.Cache.Driver = "redis"
			cfg.Cache.Redis.Addr = opts.Addr
			cfg.Cache.Redis.Password = opts.Password
			cfg.Cache.Redis.DB = opts.DB
		} else {
			cfg.envErrors = append(cfg.envErrors, fmt.Errorf("REDIS_URL: %w", err))
		}
	}

	if v := os.Getenv("DATABASE_URL"); v != "" {
		if strings.HasPrefix(v, "sqlite:") {
			cfg.Storage.Driver = "sqlite"
			cfg.Storage.SQLite.Path = strings.TrimPrefix(v, "sqlite:")
		} else if strings.HasPrefix(v, "postgres") {
			cfg.Storage.Driver = "postgres"
			cfg.Storage.Postgres.DSN = v
		}
	}

	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Observability.LogLevel = v
	}

	if v := os.Getenv("LOG_FORMAT"); v != "" {
		cfg.Observability.LogFormat = v
	}
}
