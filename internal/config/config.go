package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Apify     ApifyConfig     `mapstructure:"apify"`
	Auth      AuthConfig      `mapstructure:"auth"`
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`
	Analysis  AnalysisConfig  `mapstructure:"analysis"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
}

type ServerConfig struct {
	Port int        `mapstructure:"port"`
	Mode string     `mapstructure:"mode"`
	CORS CORSConfig `mapstructure:"cors"`
}

type CORSConfig struct {
	AllowedOrigins  []string `mapstructure:"allowed_origins"`
	AllowAllOrigins bool     `mapstructure:"allow_all_origins"`
}

type DatabaseConfig struct {
	Driver          string        `mapstructure:"driver"` // sqlite or postgres
	Path            string        `mapstructure:"path"`   // sqlite only
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	Name            string        `mapstructure:"name"`
	SSLMode         string        `mapstructure:"ssl_mode"`
	AutoMigrate     bool          `mapstructure:"auto_migrate"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

// DSN builds the driver-specific connection string.
// Parameters: none.
// Returns:
//   - string: DSN for the configured driver.
func (c *DatabaseConfig) DSN() string {
	if c.Driver == "postgres" {
		return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
			c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode)
	}
	return c.Path
}

type ApifyConfig struct {
	BaseURL            string        `mapstructure:"base_url"`
	SerpActorID        string        `mapstructure:"serp_actor_id"`
	MetricsActorID     string        `mapstructure:"metrics_actor_id"`
	PollInterval       time.Duration `mapstructure:"poll_interval"`
	MaxPollAttempts    int           `mapstructure:"max_poll_attempts"`
	DatasetSettleDelay time.Duration `mapstructure:"dataset_settle_delay"`
	MaxDatasetAttempts int           `mapstructure:"max_dataset_attempts"`
	RequestTimeout     time.Duration `mapstructure:"request_timeout"`
}

type AuthConfig struct {
	JWTSecret string        `mapstructure:"jwt_secret"`
	TokenTTL  time.Duration `mapstructure:"token_ttl"`
}

type RateLimitConfig struct {
	Enabled   bool          `mapstructure:"enabled"`
	Requests  int           `mapstructure:"requests"`
	Window    time.Duration `mapstructure:"window"`
	RedisAddr string        `mapstructure:"redis_addr"` // empty: in-process limiter
	RedisDB   int           `mapstructure:"redis_db"`
}

type AnalysisConfig struct {
	Strategy             string  `mapstructure:"strategy"` // parallel or sequential
	BatchSize            int     `mapstructure:"batch_size"`
	MaxRetries           int     `mapstructure:"max_retries"` // sequential strategy only
	MinLowAuthorityCount int     `mapstructure:"min_low_authority_count"`
	TopNDomains          int     `mapstructure:"top_n_domains"`
	AuthorityThreshold   float64 `mapstructure:"authority_threshold"`
}

type SchedulerConfig struct {
	Enabled            bool          `mapstructure:"enabled"`
	CooldownSpec       string        `mapstructure:"cooldown_spec"`
	CredentialCooldown time.Duration `mapstructure:"credential_cooldown"`
}

func Load(configPath string) (*Config, error) {
	// Load .env file if exists
	_ = godotenv.Load()

	v := viper.New()

	// Set config file path
	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("./configs")
		v.AddConfigPath(".")
	}

	// Enable environment variable override
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// Set defaults
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.mode", "debug")
	v.SetDefault("server.cors.allow_all_origins", true)
	v.SetDefault("server.cors.allowed_origins", []string{})
	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.path", "./data/serpgap.db")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.ssl_mode", "disable")
	v.SetDefault("database.auto_migrate", true)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.max_open_conns", 25)
	v.SetDefault("database.conn_max_lifetime", 30*time.Minute)
	v.SetDefault("apify.base_url", "https://api.apify.com")
	v.SetDefault("apify.serp_actor_id", "apify~google-search-scraper")
	v.SetDefault("apify.metrics_actor_id", "serpgap~domain-authority-checker")
	v.SetDefault("apify.poll_interval", 5*time.Second)
	v.SetDefault("apify.max_poll_attempts", 60)
	v.SetDefault("apify.dataset_settle_delay", 20*time.Second)
	v.SetDefault("apify.max_dataset_attempts", 60)
	v.SetDefault("apify.request_timeout", 30*time.Second)
	v.SetDefault("auth.token_ttl", 24*time.Hour)
	v.SetDefault("rate_limit.enabled", true)
	v.SetDefault("rate_limit.requests", 10)
	v.SetDefault("rate_limit.window", 60*time.Second)
	v.SetDefault("rate_limit.redis_addr", "")
	v.SetDefault("rate_limit.redis_db", 0)
	v.SetDefault("analysis.strategy", "parallel")
	v.SetDefault("analysis.batch_size", 10)
	v.SetDefault("analysis.max_retries", 3)
	v.SetDefault("analysis.min_low_authority_count", 5)
	v.SetDefault("analysis.top_n_domains", 10)
	v.SetDefault("analysis.authority_threshold", 35)
	v.SetDefault("scheduler.enabled", true)
	v.SetDefault("scheduler.cooldown_spec", "@every 5m")
	v.SetDefault("scheduler.credential_cooldown", time.Hour)

	// Read config file
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	// Bind environment variables explicitly for sensitive data
	v.BindEnv("database.host", "DATABASE_HOST")
	v.BindEnv("database.user", "DATABASE_USER")
	v.BindEnv("database.password", "DATABASE_PASSWORD")
	v.BindEnv("database.name", "DATABASE_NAME")
	v.BindEnv("auth.jwt_secret", "JWT_SECRET")
	v.BindEnv("rate_limit.redis_addr", "REDIS_ADDR")
	v.BindEnv("apify.base_url", "APIFY_BASE_URL")
	v.BindEnv("apify.serp_actor_id", "APIFY_SERP_ACTOR_ID")
	v.BindEnv("apify.metrics_actor_id", "APIFY_METRICS_ACTOR_ID")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if cfg.Auth.JWTSecret == "" {
		return nil, fmt.Errorf("auth.jwt_secret (JWT_SECRET) is required")
	}

	return &cfg, nil
}
