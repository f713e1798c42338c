package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/spf13/viper"
)

// EnvPrefix namespaces environment overrides, e.g. TELEMED_DATABASE_HOST.
const EnvPrefix = "telemed"

type Config struct {
	Server        ServerConfig        `mapstructure:"server"`
	Database      DatabaseConfig      `mapstructure:"database"`
	JWT           JWTConfig           `mapstructure:"jwt"`
	Redis         RedisConfig         `mapstructure:"redis"`
	Log           LogConfig           `mapstructure:"log"`
	RateLimit     RateLimitConfig     `mapstructure:"rate_limit" envconfig:"rate_limit"`
	CORS          CORSConfig          `mapstructure:"cors"`
	Consultation  ConsultationConfig  `mapstructure:"consultation"`
	Relationship  RelationshipConfig  `mapstructure:"relationship"`
	Emergency     EmergencyConfig     `mapstructure:"emergency"`
	Outbox        OutboxConfig        `mapstructure:"outbox"`
	Audit         AuditConfig         `mapstructure:"audit"`
	SMTP          SMTPConfig          `mapstructure:"smtp"`
	HospitalCache HospitalCacheConfig `mapstructure:"hospital_cache" envconfig:"hospital_cache"`
	Worker        WorkerConfig        `mapstructure:"worker"`
}

type ServerConfig struct {
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout" envconfig:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout" envconfig:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" envconfig:"shutdown_timeout"`
	Mode            string        `mapstructure:"mode"`
}

type DatabaseConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	Name            string        `mapstructure:"name"`
	SSLMode         string        `mapstructure:"sslmode"`
	MaxOpenConns    int           `mapstructure:"max_open_conns" envconfig:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns" envconfig:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime" envconfig:"conn_max_lifetime"`
}

// DSN returns the lib/pq connection string.
func (c DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode,
	)
}

type JWTConfig struct {
	Secret      string `mapstructure:"secret"`
	Issuer      string `mapstructure:"issuer"`
	ExpiryHours int    `mapstructure:"expiry_hours" envconfig:"expiry_hours"`
}

type RedisConfig struct {
	URL     string `mapstructure:"url"`
	Channel string `mapstructure:"channel"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type RateLimitConfig struct {
	Rate  float64 `mapstructure:"rate"`
	Burst int     `mapstructure:"burst"`
}

type CORSConfig struct {
	AllowedOrigins []string `mapstructure:"allowed_origins" envconfig:"allowed_origins"`
}

type ConsultationConfig struct {
	DefaultMaxConcurrent int    `mapstructure:"default_max_concurrent" envconfig:"default_max_concurrent"`
	RejectPolicy         string `mapstructure:"reject_policy" envconfig:"reject_policy"`
}

type RelationshipConfig struct {
	ReestablishMethods []string `mapstructure:"reestablish_methods" envconfig:"reestablish_methods"`
}

type EmergencyConfig struct {
	RecentWindow time.Duration `mapstructure:"recent_window" envconfig:"recent_window"`
	NotifyEmail  string        `mapstructure:"notify_email" envconfig:"notify_email"`
}

type OutboxConfig struct {
	BatchSize     int           `mapstructure:"batch_size" envconfig:"batch_size"`
	PollInterval  time.Duration `mapstructure:"poll_interval" envconfig:"poll_interval"`
	RetryAttempts int           `mapstructure:"retry_attempts" envconfig:"retry_attempts"`
	RetryDelay    time.Duration `mapstructure:"retry_delay" envconfig:"retry_delay"`
	Retention     time.Duration `mapstructure:"retention"`
}

type AuditConfig struct {
	RetentionDays   int           `mapstructure:"retention_days" envconfig:"retention_days"`
	CleanupInterval time.Duration `mapstructure:"cleanup_interval" envconfig:"cleanup_interval"`
}

type SMTPConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	From     string `mapstructure:"from"`
}

// Enabled reports whether outgoing mail is configured.
func (c SMTPConfig) Enabled() bool {
	return c.Host != ""
}

type HospitalCacheConfig struct {
	TTL             time.Duration `mapstructure:"ttl"`
	CleanupInterval time.Duration `mapstructure:"cleanup_interval" envconfig:"cleanup_interval"`
}

type WorkerConfig struct {
	HealthPort int `mapstructure:"health_port" envconfig:"health_port"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", 15*time.Second)
	v.SetDefault("server.write_timeout", 15*time.Second)
	v.SetDefault("server.shutdown_timeout", 5*time.Second)
	v.SetDefault("server.mode", "release")

	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.name", "telemed")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.max_open_conns", 25)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", 5*time.Minute)

	v.SetDefault("jwt.issuer", "telemed-api")
	v.SetDefault("jwt.expiry_hours", 24)

	v.SetDefault("redis.url", "redis://localhost:6379/0")
	v.SetDefault("redis.channel", "telemed.events")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	v.SetDefault("rate_limit.rate", 20)
	v.SetDefault("rate_limit.burst", 40)

	v.SetDefault("cors.allowed_origins", []string{"*"})

	v.SetDefault("consultation.default_max_concurrent", 5)
	v.SetDefault("consultation.reject_policy", "release")

	v.SetDefault("relationship.reestablish_methods", []string{"consultation", "referral", "emergency", "patient_request"})

	v.SetDefault("emergency.recent_window", 24*time.Hour)

	v.SetDefault("outbox.batch_size", 50)
	v.SetDefault("outbox.poll_interval", 2*time.Second)
	v.SetDefault("outbox.retry_attempts", 5)
	v.SetDefault("outbox.retry_delay", 10*time.Second)
	v.SetDefault("outbox.retention", 7*24*time.Hour)

	v.SetDefault("audit.retention_days", 365*7)
	v.SetDefault("audit.cleanup_interval", 24*time.Hour)

	v.SetDefault("smtp.port", 587)

	v.SetDefault("hospital_cache.ttl", 10*time.Minute)
	v.SetDefault("hospital_cache.cleanup_interval", 30*time.Minute)

	v.SetDefault("worker.health_port", 8081)
}

// Load reads config.yml (optional), then applies TELEMED_* environment overrides.
// An explicit path must exist.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		v.AddConfigPath("/app/config")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("failed to apply environment overrides: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects settings the services cannot run with.
func (c *Config) Validate() error {
	if c.Consultation.DefaultMaxConcurrent <= 0 {
		return fmt.Errorf("consultation.default_max_concurrent must be positive")
	}
	switch c.Consultation.RejectPolicy {
	case "release", "cancel":
	default:
		return fmt.Errorf("consultation.reject_policy must be release or cancel, got %q", c.Consultation.RejectPolicy)
	}
	for _, m := range c.Relationship.ReestablishMethods {
		switch m {
		case "consultation", "doctor_initiated", "referral", "emergency", "patient_request":
		default:
			return fmt.Errorf("relationship.reestablish_methods: unknown method %q", m)
		}
	}
	if c.Emergency.RecentWindow < 0 {
		return fmt.Errorf("emergency.recent_window must not be negative")
	}
	return nil
}
