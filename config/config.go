package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the overall application configuration.
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Database   DatabaseConfig   `yaml:"database"`
	Store      StoreConfig      `yaml:"store"`
	Queue      QueueConfig      `yaml:"queue"`
	Reconciler ReconcilerConfig `yaml:"reconciler"`
	Bus        BusConfig        `yaml:"bus"`
	Push       PushConfig       `yaml:"push"`
	WorkerPool WorkerPoolConfig `yaml:"worker_pool"`
	Directory  DirectoryConfig  `yaml:"directory"`
	Log        LogConfig        `yaml:"log"`
}

// ServerConfig holds the server-related configuration.
type ServerConfig struct {
	Port            int      `yaml:"port"`
	RateLimitPerSec float64  `yaml:"rate_limit_per_sec"`
	RateLimitBurst  int      `yaml:"rate_limit_burst"`
	CacheTTLSeconds int      `yaml:"cache_ttl_seconds"`
	CORSOrigins     []string `yaml:"cors_origins"`
	JWTSecret       string   `yaml:"jwt_secret"`
}

// DatabaseConfig holds the database connection configuration.
type DatabaseConfig struct {
	Driver                 string `yaml:"driver"`
	DSN                    string `yaml:"dsn"`
	MaxOpenConns           int    `yaml:"max_open_conns"`
	MaxIdleConns           int    `yaml:"max_idle_conns"`
	ConnMaxLifetimeMinutes int    `yaml:"conn_max_lifetime_minutes"`
	LogLevel               string `yaml:"log_level"`
}

// StoreConfig bounds every store call.
type StoreConfig struct {
	OpTimeoutSeconds   int           `yaml:"op_timeout_seconds"`
	OpTimeout          time.Duration `yaml:"-"`
	AllocationAttempts int           `yaml:"allocation_attempts"`
}

// QueueConfig holds booking and estimation policy.
type QueueConfig struct {
	Timezone             string         `yaml:"timezone"`
	Location             *time.Location `yaml:"-"`
	ConsultationMinutes  int            `yaml:"consultation_minutes"`
	PatientWindowMinutes int            `yaml:"patient_window_minutes"`
	SlotStepMinutes      int            `yaml:"slot_step_minutes"`
	Suggestions          int            `yaml:"suggestions"`
	EnforceAvailability  bool           `yaml:"enforce_availability"`
}

// ReconcilerConfig holds the missed-appointment sweep configuration.
type ReconcilerConfig struct {
	// The sweep runs unless explicitly disabled.
	Disabled        bool          `yaml:"disabled"`
	IntervalSeconds int           `yaml:"interval_seconds"`
	Interval        time.Duration `yaml:"-"` // Ignored by YAML parser
	GraceMinutes    int           `yaml:"grace_minutes"`
	Grace           time.Duration `yaml:"-"`
}

// BusConfig holds the notification bus configuration.
type BusConfig struct {
	SubscriberBuffer int    `yaml:"subscriber_buffer"`
	RedisURL         string `yaml:"redis_url"`
	RedisChannel     string `yaml:"redis_channel"`
}

// PushConfig holds the VAPID keys for web push notifications.
type PushConfig struct {
	PublicKey  string `yaml:"vapid_public_key"`
	PrivateKey string `yaml:"vapid_private_key"`
	Subject    string `yaml:"subject"`
	TTL        int    `yaml:"ttl"`
}

// WorkerPoolConfig holds the configuration for the push worker pool.
type WorkerPoolConfig struct {
	Size int `yaml:"size"`
}

// DirectoryConfig controls the doctor directory cache.
type DirectoryConfig struct {
	CacheTTLSeconds int `yaml:"cache_ttl_seconds"`
}

// LogConfig selects the zerolog level and output format.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Load reads the configuration from the given path.
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var cfg Config
	decoder := yaml.NewDecoder(f)
	if err := decoder.Decode(&cfg); err != nil {
		return nil, err
	}

	if err := cfg.ApplyDefaults(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// ApplyDefaults fills zero values and derives the duration fields. Tests
// that build a Config by hand call it directly.
func (cfg *Config) ApplyDefaults() error {
	if cfg.Server.Port <= 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.RateLimitPerSec <= 0 {
		cfg.Server.RateLimitPerSec = 10
	}
	if cfg.Server.RateLimitBurst <= 0 {
		cfg.Server.RateLimitBurst = 20
	}
	if cfg.Server.CacheTTLSeconds <= 0 {
		cfg.Server.CacheTTLSeconds = 5
	}

	if cfg.Database.Driver == "" {
		cfg.Database.Driver = "postgres"
	}
	if cfg.Database.LogLevel == "" {
		cfg.Database.LogLevel = "warn"
	}

	if cfg.Store.OpTimeoutSeconds <= 0 {
		cfg.Store.OpTimeoutSeconds = 5
	}
	cfg.Store.OpTimeout = time.Duration(cfg.Store.OpTimeoutSeconds) * time.Second
	if cfg.Store.AllocationAttempts <= 0 {
		cfg.Store.AllocationAttempts = 3
	}

	if cfg.Queue.Timezone == "" {
		cfg.Queue.Timezone = "Local"
	}
	loc, err := time.LoadLocation(cfg.Queue.Timezone)
	if err != nil {
		return fmt.Errorf("failed to load timezone %q: %w", cfg.Queue.Timezone, err)
	}
	cfg.Queue.Location = loc
	if cfg.Queue.ConsultationMinutes <= 0 {
		cfg.Queue.ConsultationMinutes = 15
	}
	if cfg.Queue.PatientWindowMinutes <= 0 {
		cfg.Queue.PatientWindowMinutes = 20
	}
	if cfg.Queue.SlotStepMinutes <= 0 {
		cfg.Queue.SlotStepMinutes = 15
	}
	if cfg.Queue.Suggestions == 0 {
		cfg.Queue.Suggestions = 3
	}

	if cfg.Reconciler.IntervalSeconds <= 0 {
		cfg.Reconciler.IntervalSeconds = 300
	}
	cfg.Reconciler.Interval = time.Duration(cfg.Reconciler.IntervalSeconds) * time.Second
	if cfg.Reconciler.GraceMinutes <= 0 {
		cfg.Reconciler.GraceMinutes = 10
	}
	cfg.Reconciler.Grace = time.Duration(cfg.Reconciler.GraceMinutes) * time.Minute

	if cfg.Bus.SubscriberBuffer <= 0 {
		cfg.Bus.SubscriberBuffer = 64
	}
	if cfg.Bus.RedisChannel == "" {
		cfg.Bus.RedisChannel = "clinic:events"
	}

	if cfg.Push.TTL <= 0 {
		cfg.Push.TTL = 3600
	}
	if cfg.WorkerPool.Size <= 0 {
		cfg.WorkerPool.Size = 1
	}
	if cfg.Directory.CacheTTLSeconds <= 0 {
		cfg.Directory.CacheTTLSeconds = 60
	}

	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "json"
	}
	return nil
}
