package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server    ServerConfig   `mapstructure:"server"`
	Database  DatabaseConfig `mapstructure:"database"`
	Table     TableConfig    `mapstructure:"table"`
	Events    EventsConfig   `mapstructure:"events"`
	JWTSecret string         `mapstructure:"jwt_secret"`
}

type ServerConfig struct {
	Port int `mapstructure:"port"`
}

type DatabaseConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	Name     string `mapstructure:"name"`
	PoolSize int    `mapstructure:"pool_size"`
}

type TableConfig struct {
	TokenSecret     string `mapstructure:"token_secret"`
	TokenMaxAgeSecs int    `mapstructure:"token_max_age_seconds"`
	DefaultPerPage  int    `mapstructure:"default_per_page"`
}

type EventsConfig struct {
	Enabled       bool `mapstructure:"enabled"`
	BufferSize    int  `mapstructure:"buffer_size"`
	FlushMillis   int  `mapstructure:"flush_interval_ms"`
	RetentionDays int  `mapstructure:"retention_days"`
}

// FlushInterval returns the event buffer flush interval as a duration.
func (e EventsConfig) FlushInterval() time.Duration {
	return time.Duration(e.FlushMillis) * time.Millisecond
}

// TokenMaxAge returns the capability-token max age as a duration.
func (t TableConfig) TokenMaxAge() time.Duration {
	return time.Duration(t.TokenMaxAgeSecs) * time.Second
}

// ConnString returns the PostgreSQL connection string.
func (d DatabaseConfig) ConnString() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=disable",
		d.User, d.Password, d.Host, d.Port, d.Name)
}

func Load() (*Config, error) {
	viper.SetConfigName("app")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("../..")

	viper.SetDefault("server.port", 8080)
	viper.SetDefault("database.host", "localhost")
	viper.SetDefault("database.port", 5432)
	viper.SetDefault("database.pool_size", 10)
	viper.SetDefault("jwt_secret", "changeme-secret")
	viper.SetDefault("table.token_secret", "changeme-table-secret")
	viper.SetDefault("table.token_max_age_seconds", 86400)
	viper.SetDefault("table.default_per_page", 25)
	viper.SetDefault("events.enabled", true)
	viper.SetDefault("events.buffer_size", 200)
	viper.SetDefault("events.flush_interval_ms", 2000)
	viper.SetDefault("events.retention_days", 30)

	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	return &cfg, nil
}
