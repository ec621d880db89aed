package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v2"
)

type Config struct {
	Server struct {
		Address         string        `yaml:"address"`
		ReadTimeout     time.Duration `yaml:"read_timeout"`
		WriteTimeout    time.Duration `yaml:"write_timeout"`
		ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	} `yaml:"server"`

	Registry struct {
		IDPrefix string `yaml:"id_prefix"`
		MinID    int    `yaml:"min_id"`
		MaxID    int    `yaml:"max_id"`
	} `yaml:"registry"`

	Presence struct {
		PingInterval     time.Duration `yaml:"ping_interval"`
		HeartbeatTimeout time.Duration `yaml:"heartbeat_timeout"`
		SweepInterval    time.Duration `yaml:"sweep_interval"`
	} `yaml:"presence"`

	LiveKit struct {
		APIKey    string        `yaml:"api_key"`
		APISecret string        `yaml:"api_secret"`
		URL       string        `yaml:"url"`    // http(s) API endpoint
		WSURL     string        `yaml:"ws_url"` // ws(s) endpoint handed to clients
		TokenTTL  time.Duration `yaml:"token_ttl"`
	} `yaml:"livekit"`

	Monitoring struct {
		PrometheusEnabled bool `yaml:"prometheus_enabled"`
		PrometheusPort    int  `yaml:"prometheus_port"`
	} `yaml:"monitoring"`

	Tracing struct {
		Enabled    bool    `yaml:"enabled"`
		JaegerURL  string  `yaml:"jaeger_url"`
		SampleRate float64 `yaml:"sample_rate"`
	} `yaml:"tracing"`

	Logging struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"logging"`

	Redis struct {
		Enabled  bool   `yaml:"enabled"`
		Address  string `yaml:"address"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
		PoolSize int    `yaml:"pool_size"`
	} `yaml:"redis"`

	Auth struct {
		JWTSecret       string        `yaml:"jwt_secret"`
		AccessTokenTTL  time.Duration `yaml:"access_token_ttl"`
		RefreshTokenTTL time.Duration `yaml:"refresh_token_ttl"`
		AllowedOrigins  []string      `yaml:"allowed_origins"`
	} `yaml:"auth"`

	Backup struct {
		Enabled   bool          `yaml:"enabled"`
		Directory string        `yaml:"directory"`
		Interval  time.Duration `yaml:"interval"`
		Retention int           `yaml:"retention"` // snapshots kept
	} `yaml:"backup"`

	RateLimiting struct {
		Enabled bool `yaml:"enabled"`

		HTTP struct {
			RequestsPerSecond float64 `yaml:"requests_per_second"`
			Burst             int     `yaml:"burst"`
		} `yaml:"http"`

		Register struct {
			RequestsPerMinute float64 `yaml:"requests_per_minute"`
			Burst             int     `yaml:"burst"`
		} `yaml:"register"`
	} `yaml:"rate_limiting"`
}

// Validate checks that configuration values are within acceptable ranges.
func (c *Config) Validate() error {
	// Server
	if c.Server.Address == "" {
		return fmt.Errorf("server.address must not be empty")
	}
	if c.Server.ReadTimeout <= 0 {
		return fmt.Errorf("server.read_timeout must be > 0")
	}
	if c.Server.WriteTimeout <= 0 {
		return fmt.Errorf("server.write_timeout must be > 0")
	}
	if c.Server.ShutdownTimeout <= 0 {
		return fmt.Errorf("server.shutdown_timeout must be > 0")
	}

	// Registry
	if c.Registry.IDPrefix == "" {
		return fmt.Errorf("registry.id_prefix must not be empty")
	}
	if c.Registry.MinID < 1 || c.Registry.MaxID > 99 || c.Registry.MinID > c.Registry.MaxID {
		return fmt.Errorf("registry.min_id/max_id must satisfy 1 <= min <= max <= 99")
	}

	// Presence
	if c.Presence.PingInterval <= 0 {
		return fmt.Errorf("presence.ping_interval must be > 0")
	}
	if c.Presence.HeartbeatTimeout <= c.Presence.PingInterval {
		return fmt.Errorf("presence.heartbeat_timeout must be > presence.ping_interval")
	}
	if c.Presence.SweepInterval <= 0 {
		return fmt.Errorf("presence.sweep_interval must be > 0")
	}

	// LiveKit
	if c.LiveKit.APIKey == "" || c.LiveKit.APISecret == "" {
		return fmt.Errorf("livekit.api_key and livekit.api_secret must not be empty")
	}
	if c.LiveKit.URL == "" {
		return fmt.Errorf("livekit.url must not be empty")
	}
	if c.LiveKit.WSURL == "" {
		return fmt.Errorf("livekit.ws_url must not be empty")
	}
	if c.LiveKit.TokenTTL <= 0 {
		return fmt.Errorf("livekit.token_ttl must be > 0")
	}

	// Monitoring
	if c.Monitoring.PrometheusEnabled && c.Monitoring.PrometheusPort <= 0 {
		return fmt.Errorf("monitoring.prometheus_port must be > 0 when prometheus_enabled=true")
	}

	// Logging
	if c.Logging.Level == "" {
		return fmt.Errorf("logging.level must not be empty")
	}

	// Redis
	if c.Redis.Enabled {
		if c.Redis.Address == "" {
			return fmt.Errorf("redis.address must not be empty when redis.enabled=true")
		}
		if c.Redis.PoolSize <= 0 {
			return fmt.Errorf("redis.pool_size must be > 0 when redis.enabled=true")
		}
	}

	// Auth
	if c.Auth.JWTSecret == "" {
		return fmt.Errorf("auth.jwt_secret must not be empty")
	}
	if c.Auth.AccessTokenTTL <= 0 {
		return fmt.Errorf("auth.access_token_ttl must be > 0")
	}
	if c.Auth.RefreshTokenTTL <= 0 {
		return fmt.Errorf("auth.refresh_token_ttl must be > 0")
	}

	// Backup
	if c.Backup.Enabled {
		if c.Backup.Directory == "" {
			return fmt.Errorf("backup.directory must not be empty when backup.enabled=true")
		}
		if c.Backup.Interval <= 0 {
			return fmt.Errorf("backup.interval must be > 0 when backup.enabled=true")
		}
		if c.Backup.Retention <= 0 {
			return fmt.Errorf("backup.retention must be > 0 when backup.enabled=true")
		}
	}

	// Rate limiting
	if c.RateLimiting.Enabled {
		if c.RateLimiting.HTTP.RequestsPerSecond <= 0 {
			return fmt.Errorf("rate_limiting.http.requests_per_second must be > 0 when rate limiting is enabled")
		}
		if c.RateLimiting.HTTP.Burst <= 0 {
			return fmt.Errorf("rate_limiting.http.burst must be > 0 when rate limiting is enabled")
		}
		if c.RateLimiting.Register.RequestsPerMinute <= 0 {
			return fmt.Errorf("rate_limiting.register.requests_per_minute must be > 0 when rate limiting is enabled")
		}
		if c.RateLimiting.Register.Burst <= 0 {
			return fmt.Errorf("rate_limiting.register.burst must be > 0 when rate limiting is enabled")
		}
	}

	return nil
}

// Load reads configuration from YAML file, applies defaults and env overrides.
func Load(configPath string) (*Config, error) {
	// If file does not exist, fall back to defaults
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		cfg := DefaultConfig()
		cfg.applyEnvOverrides()
		return cfg, nil
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", configPath, err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config yaml: %w", err)
	}

	cfg.applyEnvOverrides()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// DefaultConfig returns configuration with sane defaults.
func DefaultConfig() *Config {
	cfg := &Config{}

	cfg.Server.Address = ":8080"
	cfg.Server.ReadTimeout = 30 * time.Second
	cfg.Server.WriteTimeout = 30 * time.Second
	cfg.Server.ShutdownTimeout = 30 * time.Second

	cfg.Registry.IDPrefix = "YRAT"
	cfg.Registry.MinID = 1
	cfg.Registry.MaxID = 99

	cfg.Presence.PingInterval = 15 * time.Second
	cfg.Presence.HeartbeatTimeout = 45 * time.Second
	cfg.Presence.SweepInterval = 5 * time.Second

	cfg.LiveKit.APIKey = "devkey"
	cfg.LiveKit.APISecret = "devsecret-change-me"
	cfg.LiveKit.URL = "http://localhost:7880"
	cfg.LiveKit.WSURL = "ws://localhost:7880"
	cfg.LiveKit.TokenTTL = 6 * time.Hour

	cfg.Monitoring.PrometheusEnabled = true
	cfg.Monitoring.PrometheusPort = 9090

	cfg.Tracing.Enabled = false
	cfg.Tracing.JaegerURL = "http://localhost:14268/api/traces"
	cfg.Tracing.SampleRate = 1.0

	cfg.Logging.Level = "info"
	cfg.Logging.Format = "json"

	cfg.Redis.Enabled = false
	cfg.Redis.Address = "localhost:6379"
	cfg.Redis.DB = 0
	cfg.Redis.PoolSize = 10

	cfg.Auth.JWTSecret = "change-me-in-production"
	cfg.Auth.AccessTokenTTL = 15 * time.Minute
	cfg.Auth.RefreshTokenTTL = 7 * 24 * time.Hour // 7 days
	cfg.Auth.AllowedOrigins = []string{"*"}

	cfg.Backup.Enabled = false
	cfg.Backup.Directory = "backups"
	cfg.Backup.Interval = 15 * time.Minute
	cfg.Backup.Retention = 48

	// Rate limiting defaults (disabled by default)
	cfg.RateLimiting.Enabled = false
	cfg.RateLimiting.HTTP.RequestsPerSecond = 50
	cfg.RateLimiting.HTTP.Burst = 100
	cfg.RateLimiting.Register.RequestsPerMinute = 10
	cfg.RateLimiting.Register.Burst = 5

	return cfg
}

func (c *Config) applyEnvOverrides() {
	// Apply environment variable overrides
	if addr := os.Getenv("FLEETCAST_SERVER_ADDRESS"); addr != "" {
		c.Server.Address = addr
	}
	if level := os.Getenv("FLEETCAST_LOG_LEVEL"); level != "" {
		c.Logging.Level = level
	}
	if secret := os.Getenv("FLEETCAST_JWT_SECRET"); secret != "" {
		c.Auth.JWTSecret = secret
	}
	if key := os.Getenv("LIVEKIT_API_KEY"); key != "" {
		c.LiveKit.APIKey = key
	}
	if secret := os.Getenv("LIVEKIT_API_SECRET"); secret != "" {
		c.LiveKit.APISecret = secret
	}
	if url := os.Getenv("LIVEKIT_URL"); url != "" {
		c.LiveKit.URL = url
	}
	if url := os.Getenv("LIVEKIT_WS_URL"); url != "" {
		c.LiveKit.WSURL = url
	}
}
