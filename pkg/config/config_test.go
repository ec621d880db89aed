package config

import (
	"testing"
)

// helper to build a minimal valid config that can be tweaked in tests.
func validBaseConfig() *Config {
	cfg := DefaultConfig()
	cfg.RateLimiting.Enabled = true
	cfg.RateLimiting.HTTP.RequestsPerSecond = 10
	cfg.RateLimiting.HTTP.Burst = 20
	cfg.RateLimiting.Register.RequestsPerMinute = 10
	cfg.RateLimiting.Register.Burst = 5
	return cfg
}

func TestValidate_Defaults(t *testing.T) {
	if err := DefaultConfig().Validate(); err != nil {
		t.Fatalf("expected default config to be valid, got error: %v", err)
	}
}

func TestValidate_RateLimitingDisabled_AllowsZeroValues(t *testing.T) {
	cfg := DefaultConfig()
	cfg.RateLimiting.Enabled = false
	// Zero out rate limiting values to ensure they are ignored when disabled.
	cfg.RateLimiting.HTTP.RequestsPerSecond = 0
	cfg.RateLimiting.HTTP.Burst = 0
	cfg.RateLimiting.Register.RequestsPerMinute = 0
	cfg.RateLimiting.Register.Burst = 0

	if err := cfg.Validate(); err != nil {
		t.Fatalf("expected config to be valid when rate limiting disabled, got error: %v", err)
	}
}

func TestValidate_InvalidValues(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{
			name: "http rps must be > 0",
			mutate: func(c *Config) {
				c.RateLimiting.HTTP.RequestsPerSecond = 0
			},
		},
		{
			name: "http burst must be > 0",
			mutate: func(c *Config) {
				c.RateLimiting.HTTP.Burst = 0
			},
		},
		{
			name: "register rpm must be > 0",
			mutate: func(c *Config) {
				c.RateLimiting.Register.RequestsPerMinute = 0
			},
		},
		{
			name: "registry prefix required",
			mutate: func(c *Config) {
				c.Registry.IDPrefix = ""
			},
		},
		{
			name: "registry range ordered",
			mutate: func(c *Config) {
				c.Registry.MinID = 50
				c.Registry.MaxID = 10
			},
		},
		{
			name: "heartbeat timeout exceeds ping interval",
			mutate: func(c *Config) {
				c.Presence.HeartbeatTimeout = c.Presence.PingInterval
			},
		},
		{
			name: "livekit key required",
			mutate: func(c *Config) {
				c.LiveKit.APIKey = ""
			},
		},
		{
			name: "livekit token ttl must be > 0",
			mutate: func(c *Config) {
				c.LiveKit.TokenTTL = 0
			},
		},
		{
			name: "backup directory required when enabled",
			mutate: func(c *Config) {
				c.Backup.Enabled = true
				c.Backup.Directory = ""
			},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := validBaseConfig()
			tc.mutate(cfg)

			if err := cfg.Validate(); err == nil {
				t.Fatalf("expected validation error for case %q, got nil", tc.name)
			}
		})
	}
}
