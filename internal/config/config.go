package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Database struct {
		Path          string `yaml:"path"`
		BusyTimeoutMs int    `yaml:"busy_timeout_ms"`
	} `yaml:"database"`

	Backup struct {
		Enabled       bool   `yaml:"enabled"`
		IntervalHours int    `yaml:"interval_hours"`
		Path          string `yaml:"path"`
		RetentionDays int    `yaml:"retention_days"`
	} `yaml:"backup"`

	Redis struct {
		Address        string `yaml:"address"`
		Password       string `yaml:"password"`
		DB             int    `yaml:"db"`
		LockTTLSeconds int    `yaml:"lock_ttl_seconds"`
	} `yaml:"redis"`

	API struct {
		Port               int     `yaml:"port"`
		APIKey             string  `yaml:"api_key"`
		RateLimitPerSecond float64 `yaml:"rate_limit_per_second"`
		RateLimitBurst     int     `yaml:"rate_limit_burst"`
	} `yaml:"api"`

	Monitoring struct {
		HealthCheckPort   int  `yaml:"health_check_port"`
		PrometheusEnabled bool `yaml:"prometheus_enabled"`
		PrometheusPort    int  `yaml:"prometheus_port"`
	} `yaml:"monitoring"`

	Engine struct {
		Timezone              string `yaml:"timezone"`
		ResourcesConfigPath   string `yaml:"resources_config_path"`
		ReloadIntervalSeconds int    `yaml:"reload_interval_seconds"`
		LockTimeoutSeconds    int    `yaml:"lock_timeout_seconds"`
	} `yaml:"engine"`

	Logging struct {
		Level  string `yaml:"level"`
		Pretty bool   `yaml:"pretty"`
	} `yaml:"logging"`
}

func Load(path string) (*Config, error) {
	if path == "" {
		path = "configs/config.yaml"
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	// Support ${ENV_VAR} placeholders in YAML config.
	data = []byte(os.ExpandEnv(string(data)))

	var cfg Config
	if err = yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	cfg.applyDefaults()

	if err = cfg.Validate(); err != nil {
		return nil, err
	}

	if err = os.MkdirAll(filepath.Dir(cfg.Database.Path), 0o755); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate rejects settings the engine cannot run with.
func (c *Config) Validate() error {
	if _, err := c.Location(); err != nil {
		return err
	}
	if c.Redis.Address != "" {
		if held := c.LockTimeout() + c.BusyTimeout(); c.LockTTL() <= held {
			return fmt.Errorf("redis.lock_ttl_seconds (%s) must exceed engine.lock_timeout_seconds + database.busy_timeout_ms (%s)",
				c.LockTTL(), held)
		}
	}
	return nil
}

func (c *Config) applyDefaults() {
	if c.Database.Path == "" {
		c.Database.Path = "data/bookcore.db"
	}
	if c.Backup.Path == "" {
		c.Backup.Path = "backups"
	}
	if c.Backup.IntervalHours <= 0 {
		c.Backup.IntervalHours = 24
	}
	if c.Backup.RetentionDays <= 0 {
		c.Backup.RetentionDays = 14
	}
	if c.API.Port == 0 {
		c.API.Port = 8080
	}
	if c.API.RateLimitPerSecond <= 0 {
		c.API.RateLimitPerSecond = 20
	}
	if c.API.RateLimitBurst <= 0 {
		c.API.RateLimitBurst = 40
	}
	if c.Monitoring.HealthCheckPort == 0 {
		c.Monitoring.HealthCheckPort = 8090
	}
	if c.Monitoring.PrometheusPort == 0 {
		c.Monitoring.PrometheusPort = 9090
	}
	if c.Engine.Timezone == "" {
		c.Engine.Timezone = "UTC"
	}
	if c.Engine.ResourcesConfigPath == "" {
		c.Engine.ResourcesConfigPath = "configs/resources.yaml"
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
}

// Location resolves the business time zone.
func (c *Config) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.Engine.Timezone)
	if err != nil {
		return nil, fmt.Errorf("engine.timezone: %w", err)
	}
	return loc, nil
}

func (c *Config) ReloadInterval() time.Duration {
	if c.Engine.ReloadIntervalSeconds <= 0 {
		return 30 * time.Second
	}
	return time.Duration(c.Engine.ReloadIntervalSeconds) * time.Second
}

func (c *Config) LockTimeout() time.Duration {
	if c.Engine.LockTimeoutSeconds <= 0 {
		return 5 * time.Second
	}
	return time.Duration(c.Engine.LockTimeoutSeconds) * time.Second
}

func (c *Config) BusyTimeout() time.Duration {
	if c.Database.BusyTimeoutMs <= 0 {
		return 5 * time.Second
	}
	return time.Duration(c.Database.BusyTimeoutMs) * time.Millisecond
}

func (c *Config) LockTTL() time.Duration {
	if c.Redis.LockTTLSeconds <= 0 {
		return 15 * time.Second
	}
	return time.Duration(c.Redis.LockTTLSeconds) * time.Second
}

func (c *Config) BackupInterval() time.Duration {
	return time.Duration(c.Backup.IntervalHours) * time.Hour
}

func (c *Config) BackupRetention() time.Duration {
	return time.Duration(c.Backup.RetentionDays) * 24 * time.Hour
}

// LogLevel parses logging.level, falling back to info.
func (c *Config) LogLevel() zerolog.Level {
	lvl, err := zerolog.ParseLevel(c.Logging.Level)
	if err != nil || lvl == zerolog.NoLevel {
		return zerolog.InfoLevel
	}
	return lvl
}
