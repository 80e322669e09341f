// Package config loads the engine's runtime configuration with viper,
// replacing the teacher's ad hoc getEnv helper (cmd/server/main.go) while
// keeping the same sub-struct-per-concern shape as the original config.go.
package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Environment string `mapstructure:"environment"`

	Database DatabaseConfig `mapstructure:"database"`
	Cache    CacheConfig    `mapstructure:"cache"`
	Export   ExportConfig   `mapstructure:"export"`
	Realtime RealtimeConfig `mapstructure:"realtime"`
}

type DatabaseConfig struct {
	URL                       string        `mapstructure:"url"`
	MaxConns                  int32         `mapstructure:"max_conns"`
	DisablePreparedStatements bool          `mapstructure:"disable_prepared_statements"`
	StatementTimeout          time.Duration `mapstructure:"statement_timeout"`
}

type CacheConfig struct {
	RedisAddr     string `mapstructure:"redis_addr"`
	RedisPassword string `mapstructure:"redis_password"`
	RedisDB       int    `mapstructure:"redis_db"`
}

type ExportConfig struct {
	Directory       string `mapstructure:"directory"`
	DownloadBaseURL string `mapstructure:"download_base_url"`
}

type RealtimeConfig struct {
	ActiveFunnelsCacheTTL time.Duration `mapstructure:"active_funnels_cache_ttl"`
	UserStateCacheTTL     time.Duration `mapstructure:"user_state_cache_ttl"`
}

// Load reads FUNNEL_-prefixed environment variables plus an optional
// config.yaml on the given search paths, applying the same defaults the
// teacher's config.go hardcodes inline.
func Load(searchPaths ...string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("FUNNEL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("environment", "development")
	v.SetDefault("database.max_conns", 10)
	v.SetDefault("database.disable_prepared_statements", false)
	v.SetDefault("database.statement_timeout", 30*time.Second)
	v.SetDefault("cache.redis_addr", "localhost:6379")
	v.SetDefault("cache.redis_db", 0)
	v.SetDefault("export.directory", "/tmp/exports")
	v.SetDefault("realtime.active_funnels_cache_ttl", 5*time.Minute)
	v.SetDefault("realtime.user_state_cache_ttl", time.Minute)

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	for _, p := range searchPaths {
		v.AddConfigPath(p)
	}
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) IsProduction() bool { return c.Environment == "production" }
