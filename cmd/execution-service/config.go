package main

import (
	"fmt"
	"os"
	"strings"
	"time"

	"coderank/internal/admission"
	"coderank/internal/common/cache"
	"coderank/internal/common/db"
	"coderank/internal/common/mq"
	"coderank/internal/common/storage"
	"coderank/internal/execution/language"
	"coderank/internal/execution/runner"
	"coderank/internal/gateway/middleware"
	"coderank/internal/submission/controller"
	"coderank/internal/submission/repository"
	"coderank/pkg/utils/logger"

	"github.com/segmentio/kafka-go"
	"gopkg.in/yaml.v3"
)

const (
	defaultHTTPAddr        = "0.0.0.0:8080"
	defaultReadTimeout     = 5 * time.Second
	defaultWriteTimeout    = 30 * time.Second
	defaultIdleTimeout     = 60 * time.Second
	defaultShutdownTimeout = 30 * time.Second

	defaultStatusTopic     = "execution.status.final"
	defaultArchiveBucket   = "executions"
	defaultArchivePrefix   = "submissions/"
	defaultRecoveryAge     = 10 * time.Minute
	defaultCleanupInterval = 5 * time.Minute
	defaultMetricsPath     = "/metrics"
	defaultMaxSourceLength = 10000
)

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Addr            string        `yaml:"addr"`
	Mode            string        `yaml:"mode"`
	ReadTimeout     time.Duration `yaml:"readTimeout"`
	WriteTimeout    time.Duration `yaml:"writeTimeout"`
	IdleTimeout     time.Duration `yaml:"idleTimeout"`
	ShutdownTimeout time.Duration `yaml:"shutdownTimeout"`
}

// DatabaseConfig selects the submission store backend.
type DatabaseConfig struct {
	// Driver is mysql, postgres or memory.
	Driver   string                    `yaml:"driver"`
	MySQL    db.MySQLConfig            `yaml:"mysql"`
	Postgres repository.PostgresConfig `yaml:"postgres"`
}

// RedisSettings enables the shared Redis client.
type RedisSettings struct {
	Enabled           bool `yaml:"enabled"`
	cache.RedisConfig `yaml:",inline"`
}

// CacheConfig controls the read-through submission cache. It requires Redis.
type CacheConfig struct {
	Enabled  bool          `yaml:"enabled"`
	TTL      time.Duration `yaml:"ttl"`
	EmptyTTL time.Duration `yaml:"emptyTTL"`
}

// KafkaSettings is the yaml form of mq.KafkaConfig.
type KafkaSettings struct {
	Enabled      bool          `yaml:"enabled"`
	Brokers      []string      `yaml:"brokers"`
	ClientID     string        `yaml:"clientID"`
	RequiredAcks int           `yaml:"requiredAcks"`
	BatchSize    int           `yaml:"batchSize"`
	BatchTimeout time.Duration `yaml:"batchTimeout"`
	Compression  string        `yaml:"compression"`
	DialTimeout  time.Duration `yaml:"dialTimeout"`
	WriteTimeout time.Duration `yaml:"writeTimeout"`
	StatusTopic  string        `yaml:"statusTopic"`
}

func (k KafkaSettings) toKafkaConfig() mq.KafkaConfig {
	return mq.KafkaConfig{
		Brokers:      k.Brokers,
		ClientID:     k.ClientID,
		RequiredAcks: kafka.RequiredAcks(k.RequiredAcks),
		BatchSize:    k.BatchSize,
		BatchTimeout: k.BatchTimeout,
		Compression:  parseCompression(k.Compression),
		DialTimeout:  k.DialTimeout,
		WriteTimeout: k.WriteTimeout,
	}
}

// ArchiveConfig enables the MinIO archive of finished submissions.
type ArchiveConfig struct {
	Enabled             bool   `yaml:"enabled"`
	Prefix              string `yaml:"prefix"`
	storage.MinIOConfig `yaml:",inline"`
}

// AuthConfig holds caller authentication settings.
type AuthConfig struct {
	// Mode is jwt or header.
	Mode      string   `yaml:"mode"`
	JWTSecret string   `yaml:"jwtSecret"`
	JWTIssuer string   `yaml:"jwtIssuer"`
	Roles     []string `yaml:"roles"`
	// Blacklist checks revoked tokens in Redis.
	Blacklist    bool          `yaml:"blacklist"`
	RedisTimeout time.Duration `yaml:"redisTimeout"`
}

// AdmissionConfig holds per-owner rate limits.
type AdmissionConfig struct {
	Enabled bool `yaml:"enabled"`
	// Backend is memory or redis.
	Backend         string           `yaml:"backend"`
	Policy          admission.Policy `yaml:"policy"`
	RedisTimeout    time.Duration    `yaml:"redisTimeout"`
	// CleanupInterval also bounds how long an idle owner keeps its bucket.
	CleanupInterval time.Duration    `yaml:"cleanupInterval"`
}

// ExecutionConfig holds the worker pool and runner settings.
type ExecutionConfig struct {
	WorkerPoolSize int           `yaml:"workerPoolSize"`
	QueueSize      int           `yaml:"queueSize"`
	Timeout        time.Duration `yaml:"timeout"`
	StoreTimeout   time.Duration `yaml:"storeTimeout"`
	EventTimeout   time.Duration `yaml:"eventTimeout"`
	MaxPageSize    int           `yaml:"maxPageSize"`
	Runner         runner.Config `yaml:"runner"`
}

// ValidatorConfig holds source screening settings.
type ValidatorConfig struct {
	MaxLength int `yaml:"maxLength"`
	// RulesFile replaces the built-in rule set when set.
	RulesFile string `yaml:"rulesFile"`
}

// RecoveryConfig controls the startup sweep of records left by a previous process.
type RecoveryConfig struct {
	Enabled   bool          `yaml:"enabled"`
	OlderThan time.Duration `yaml:"olderThan"`
}

// MetricsConfig controls the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// AppConfig holds execution-service configuration.
type AppConfig struct {
	Server    ServerConfig            `yaml:"server"`
	Logger    logger.Config           `yaml:"logger"`
	Database  DatabaseConfig          `yaml:"database"`
	Redis     RedisSettings           `yaml:"redis"`
	Cache     CacheConfig             `yaml:"cache"`
	Kafka     KafkaSettings           `yaml:"kafka"`
	Archive   ArchiveConfig           `yaml:"archive"`
	Auth      AuthConfig              `yaml:"auth"`
	Admission AdmissionConfig         `yaml:"admission"`
	Execution ExecutionConfig         `yaml:"execution"`
	Validator ValidatorConfig         `yaml:"validator"`
	Languages []language.Spec         `yaml:"languages"`
	Recovery  RecoveryConfig          `yaml:"recovery"`
	Stream    controller.StreamConfig `yaml:"stream"`
	CORS      middleware.CORSConfig   `yaml:"cors"`
	Metrics   MetricsConfig           `yaml:"metrics"`
}

func loadYAML(path string, out interface{}) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file failed: %w", err)
	}
	if err := yaml.Unmarshal(data, out); err != nil {
		return fmt.Errorf("parse config file failed: %w", err)
	}
	return nil
}

func loadAppConfig(path string) (*AppConfig, error) {
	var cfg AppConfig
	if err := loadYAML(path, &cfg); err != nil {
		return nil, err
	}
	applyDefaults(&cfg)
	if err := validateConfig(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func applyDefaults(cfg *AppConfig) {
	if cfg.Server.Addr == "" {
		cfg.Server.Addr = defaultHTTPAddr
	}
	if cfg.Server.ReadTimeout == 0 {
		cfg.Server.ReadTimeout = defaultReadTimeout
	}
	if cfg.Server.WriteTimeout == 0 {
		cfg.Server.WriteTimeout = defaultWriteTimeout
	}
	if cfg.Server.IdleTimeout == 0 {
		cfg.Server.IdleTimeout = defaultIdleTimeout
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = defaultShutdownTimeout
	}

	cfg.Database.Driver = strings.ToLower(strings.TrimSpace(cfg.Database.Driver))
	if cfg.Database.Driver == "" {
		cfg.Database.Driver = "memory"
	}

	if cfg.Kafka.StatusTopic == "" {
		cfg.Kafka.StatusTopic = defaultStatusTopic
	}
	if cfg.Archive.Bucket == "" {
		cfg.Archive.Bucket = defaultArchiveBucket
	}
	if cfg.Archive.Prefix == "" {
		cfg.Archive.Prefix = defaultArchivePrefix
	}

	if cfg.Auth.Mode == "" {
		cfg.Auth.Mode = "jwt"
	}

	if cfg.Admission.Backend == "" {
		cfg.Admission.Backend = "memory"
	}
	if cfg.Admission.Policy.Window == 0 && len(cfg.Admission.Policy.Limits) == 0 {
		cfg.Admission.Policy = admission.DefaultPolicy()
	}
	if cfg.Admission.CleanupInterval == 0 {
		cfg.Admission.CleanupInterval = defaultCleanupInterval
	}

	if cfg.Validator.MaxLength == 0 {
		cfg.Validator.MaxLength = defaultMaxSourceLength
	}
	if cfg.Recovery.OlderThan == 0 {
		cfg.Recovery.OlderThan = defaultRecoveryAge
	}
	if cfg.Metrics.Path == "" {
		cfg.Metrics.Path = defaultMetricsPath
	}
}

func validateConfig(cfg *AppConfig) error {
	switch cfg.Database.Driver {
	case "mysql", "postgres", "memory":
	default:
		return fmt.Errorf("unknown database driver %q", cfg.Database.Driver)
	}
	if cfg.Cache.Enabled && !cfg.Redis.Enabled {
		return fmt.Errorf("cache requires redis to be enabled")
	}
	if cfg.Admission.Enabled && cfg.Admission.Backend == "redis" && !cfg.Redis.Enabled {
		return fmt.Errorf("redis admission backend requires redis to be enabled")
	}
	switch strings.ToLower(cfg.Auth.Mode) {
	case "jwt":
		if cfg.Auth.JWTSecret == "" {
			return fmt.Errorf("auth.jwtSecret is required in jwt mode")
		}
	case "header":
	default:
		return fmt.Errorf("unknown auth mode %q", cfg.Auth.Mode)
	}
	if cfg.Auth.Blacklist && !cfg.Redis.Enabled {
		return fmt.Errorf("token blacklist requires redis to be enabled")
	}
	return nil
}

func parseCompression(raw string) kafka.Compression {
	switch strings.ToLower(raw) {
	case "gzip":
		return kafka.Gzip
	case "snappy":
		return kafka.Snappy
	case "lz4":
		return kafka.Lz4
	case "zstd":
		return kafka.Zstd
	default:
		return kafka.Compression(0)
	}
}
