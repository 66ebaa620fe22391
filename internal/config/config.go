package config

import (
	"errors"
	"fmt"
	"io/fs"
	"slices"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Store drivers
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
	DriverRedis    = "redis"
	DriverMemory   = "memory"
)

// ActivityTypeNames lists the activity kinds that can be tracked.
var ActivityTypeNames = []string{"playing", "streaming", "listening", "watching", "custom", "competing"}

// Config holds all configuration for our application
type Config struct {
	DiscordToken string `mapstructure:"discord_token"`

	StoreDriver   string `mapstructure:"store_driver"`
	DBPath        string `mapstructure:"playtime_db"`
	DatabaseDSN   string `mapstructure:"database_dsn"`
	RedisAddr     string `mapstructure:"redis_addr"`
	RedisPassword string `mapstructure:"redis_password"`
	RedisDB       int    `mapstructure:"redis_db"`

	Timezone           string `mapstructure:"playtime_tz"`
	HeartbeatSeconds   int    `mapstructure:"heartbeat_seconds"`
	TrackActivityTypes string `mapstructure:"track_activity_types"`
	NameCacheSize      int    `mapstructure:"name_cache_size"`

	MetricsAddr string `mapstructure:"metrics_addr"`
	LogLevel    string `mapstructure:"log_level"`
	LogFormat   string `mapstructure:"log_format"`
}

// Load loads configuration from an optional .env file, an optional config
// file and environment variables, in increasing precedence.
func Load(configPath string) (*Config, error) {
	return load(configPath, true)
}

// LoadOffline is Load for tools that read the store without connecting to
// Discord; DISCORD_TOKEN is not required.
func LoadOffline(configPath string) (*Config, error) {
	return load(configPath, false)
}

func load(configPath string, requireToken bool) (*Config, error) {
	// Load .env file if it exists
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to read .env: %w", err)
	}

	v := viper.New()
	setDefaults(v)
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := validate(&config, requireToken); err != nil {
		return nil, err
	}

	return &config, nil
}

// setDefaults registers every key so AutomaticEnv can see it during
// Unmarshal.
func setDefaults(v *viper.Viper) {
	v.SetDefault("discord_token", "")

	v.SetDefault("store_driver", DriverSQLite)
	v.SetDefault("playtime_db", "playtime.sqlite3")
	v.SetDefault("database_dsn", "")
	v.SetDefault("redis_addr", "localhost:6379")
	v.SetDefault("redis_password", "")
	v.SetDefault("redis_db", 0)

	v.SetDefault("playtime_tz", "UTC")
	v.SetDefault("heartbeat_seconds", 60)
	v.SetDefault("track_activity_types", "playing")
	v.SetDefault("name_cache_size", 4096)

	v.SetDefault("metrics_addr", "")
	v.SetDefault("log_level", "info")
	v.SetDefault("log_format", "json")
}

func validate(cfg *Config, requireToken bool) error {
	if requireToken && cfg.DiscordToken == "" {
		return &ConfigError{Field: "DISCORD_TOKEN", Message: "DISCORD_TOKEN is required"}
	}

	cfg.StoreDriver = strings.ToLower(strings.TrimSpace(cfg.StoreDriver))
	switch cfg.StoreDriver {
	case DriverSQLite:
		if cfg.DBPath == "" {
			return &ConfigError{Field: "PLAYTIME_DB", Message: "PLAYTIME_DB is required for the sqlite store"}
		}
	case DriverPostgres:
		if cfg.DatabaseDSN == "" {
			return &ConfigError{Field: "DATABASE_DSN", Message: "DATABASE_DSN is required for the postgres store"}
		}
	case DriverRedis:
		if cfg.RedisAddr == "" {
			return &ConfigError{Field: "REDIS_ADDR", Message: "REDIS_ADDR is required for the redis store"}
		}
	case DriverMemory:
	default:
		return &ConfigError{Field: "STORE_DRIVER", Message: fmt.Sprintf("unknown store driver %q", cfg.StoreDriver)}
	}

	if cfg.HeartbeatSeconds <= 0 {
		return &ConfigError{Field: "HEARTBEAT_SECONDS", Message: "HEARTBEAT_SECONDS must be positive"}
	}
	if cfg.NameCacheSize <= 0 {
		return &ConfigError{Field: "NAME_CACHE_SIZE", Message: "NAME_CACHE_SIZE must be positive"}
	}

	types := cfg.ActivityTypes()
	if len(types) == 0 {
		return &ConfigError{Field: "TRACK_ACTIVITY_TYPES", Message: "TRACK_ACTIVITY_TYPES must name at least one activity type"}
	}
	for _, t := range types {
		if !slices.Contains(ActivityTypeNames, t) {
			return &ConfigError{
				Field:   "TRACK_ACTIVITY_TYPES",
				Message: fmt.Sprintf("unknown activity type %q (expected one of %s)", t, strings.Join(ActivityTypeNames, ", ")),
			}
		}
	}

	return nil
}

// HeartbeatInterval returns the heartbeat period.
func (c *Config) HeartbeatInterval() time.Duration {
	return time.Duration(c.HeartbeatSeconds) * time.Second
}

// ActivityTypes returns the lower-cased, de-duplicated tracked activity
// type names.
func (c *Config) ActivityTypes() []string {
	var out []string
	for _, part := range strings.Split(c.TrackActivityTypes, ",") {
		name := strings.ToLower(strings.TrimSpace(part))
		if name == "" || slices.Contains(out, name) {
			continue
		}
		out = append(out, name)
	}
	return out
}

// ConfigError represents a configuration error
type ConfigError struct {
	Field   string
	Message string
}

func (e *ConfigError) Error() string {
	return e.Message
}
