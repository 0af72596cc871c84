// File: internal/config/config.go
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// MemoryDatabaseURL selects the in-process store instead of Postgres.
const MemoryDatabaseURL = "memory"

type RuntimeConfig struct {
	Dev bool
}

type HTTPConfig struct {
	Addr           string        `yaml:"addr"`
	ReadTimeout    time.Duration `yaml:"read_timeout"`
	WriteTimeout   time.Duration `yaml:"write_timeout"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
	CORSOrigins    []string      `yaml:"cors_origins"`
}

type AuthConfig struct {
	JWTSecret string `yaml:"jwt_secret"`
	Issuer    string `yaml:"issuer"`
}

type LogConfig struct {
	Level    string `yaml:"level"`    // trace|debug|info|warn|error
	Format   string `yaml:"format"`   // json|console
	Sampling bool   `yaml:"sampling"` // enable sampling in prod
}

type DatabaseConfig struct {
	URL      string `yaml:"url"`
	MaxConns int32  `yaml:"max_conns"`
}

// RedisConfig is optional; an empty URL disables the entitlement cache.
type RedisConfig struct {
	URL      string        `yaml:"url"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	TTL      time.Duration `yaml:"ttl"`
}

type CodesConfig struct {
	MaxPerGame   int           `yaml:"max_per_game"`
	MaxAttempts  int           `yaml:"max_attempts"`
	RetryBackoff time.Duration `yaml:"retry_backoff"`
	Groups       int           `yaml:"groups"`
	GroupSize    int           `yaml:"group_size"`
}

type AuditConfig struct {
	Workers   int  `yaml:"workers"`
	QueueSize int  `yaml:"queue_size"`
	Persist   bool `yaml:"persist"` // also write events to the audit_events table
}

type SchedulerConfig struct {
	ConsistencyCheckCron string `yaml:"consistency_check_cron"`
	PoolStatsCron        string `yaml:"pool_stats_cron"`
}

type Config struct {
	HTTP      HTTPConfig      `yaml:"http"`
	Auth      AuthConfig      `yaml:"auth"`
	Log       LogConfig       `yaml:"log"`
	Database  DatabaseConfig  `yaml:"database"`
	Redis     RedisConfig     `yaml:"redis"`
	Codes     CodesConfig     `yaml:"codes"`
	Audit     AuditConfig     `yaml:"audit"`
	Scheduler SchedulerConfig `yaml:"scheduler"`

	Runtime RuntimeConfig `yaml:"-"`
}

// LoadConfig reads the yaml file at path, applies environment overrides
// (DATABASE_URL, REDIS_URL, JWT_SECRET) and fills defaults. In dev mode an
// empty database url selects the in-memory store.
// A missing file is not an error when the environment supplies the required values.
func LoadConfig(path string, dev bool) (*Config, error) {
	var cfg Config
	if path != "" {
		b, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(b, &cfg); err != nil {
				return nil, fmt.Errorf("parse config: %w", err)
			}
		case errors.Is(err, os.ErrNotExist):
		default:
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	applyEnv(&cfg)
	if dev && cfg.Database.URL == "" {
		cfg.Database.URL = MemoryDatabaseURL
	}
	applyDefaults(&cfg)
	cfg.Runtime.Dev = dev

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("DATABASE_URL"); v != "" {
		cfg.Database.URL = v
	}
	if v := os.Getenv("REDIS_URL"); v != "" {
		cfg.Redis.URL = v
	}
	if v := os.Getenv("JWT_SECRET"); v != "" {
		cfg.Auth.JWTSecret = v
	}
}

func applyDefaults(cfg *Config) {
	if cfg.HTTP.Addr == "" {
		cfg.HTTP.Addr = ":8080"
	}
	if cfg.HTTP.ReadTimeout <= 0 {
		cfg.HTTP.ReadTimeout = 10 * time.Second
	}
	if cfg.HTTP.WriteTimeout <= 0 {
		cfg.HTTP.WriteTimeout = 30 * time.Second
	}
	if cfg.HTTP.RequestTimeout <= 0 {
		cfg.HTTP.RequestTimeout = 15 * time.Second
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "json"
	}
	if cfg.Database.MaxConns <= 0 {
		cfg.Database.MaxConns = 20
	}
	cfg.Redis.TTL = normalizeTTL(cfg.Redis.TTL)

	if cfg.Codes.MaxPerGame <= 0 {
		cfg.Codes.MaxPerGame = 1000
	}
	if cfg.Codes.MaxAttempts <= 0 {
		cfg.Codes.MaxAttempts = 5
	}
	if cfg.Codes.RetryBackoff < 0 {
		cfg.Codes.RetryBackoff = 0
	} else if cfg.Codes.RetryBackoff == 0 {
		cfg.Codes.RetryBackoff = 5 * time.Millisecond
	}
	if cfg.Codes.Groups <= 0 {
		cfg.Codes.Groups = 4
	}
	if cfg.Codes.GroupSize <= 0 {
		cfg.Codes.GroupSize = 4
	}
	if cfg.Audit.Workers <= 0 {
		cfg.Audit.Workers = 2
	}
	if cfg.Audit.QueueSize <= 0 {
		cfg.Audit.QueueSize = 1024
	}
	if cfg.Scheduler.ConsistencyCheckCron == "" {
		cfg.Scheduler.ConsistencyCheckCron = "@every 10m"
	}
	if cfg.Scheduler.PoolStatsCron == "" {
		cfg.Scheduler.PoolStatsCron = "@every 30s"
	}
}

// Validate checks the fields that have no usable default.
func (c *Config) Validate() error {
	if c.Database.URL == "" {
		return errors.New("database.url is required (use \"memory\" for the in-process store)")
	}
	if c.Auth.JWTSecret == "" {
		return errors.New("auth.jwt_secret is required")
	}
	if c.Codes.MaxPerGame > 100000 {
		return fmt.Errorf("codes.max_per_game too large: %d", c.Codes.MaxPerGame)
	}
	// A 16-char prefix plus the random groups must fit the 64-char code column.
	if 16+c.Codes.Groups*(c.Codes.GroupSize+1) > 64 {
		return fmt.Errorf("codes: %d groups of %d characters exceed the maximum code length", c.Codes.Groups, c.Codes.GroupSize)
	}
	if c.Codes.Groups*c.Codes.GroupSize < 8 {
		return fmt.Errorf("codes: %d groups of %d characters leave too little entropy", c.Codes.Groups, c.Codes.GroupSize)
	}
	return nil
}

// UseMemoryStore reports whether the in-process store was requested.
func (c *Config) UseMemoryStore() bool {
	return strings.EqualFold(c.Database.URL, MemoryDatabaseURL)
}

func normalizeTTL(d time.Duration) time.Duration {
	if d <= 0 {
		return 30 * time.Second
	}
	return d
}
