// Copyright 2025 ToolGate
// SPDX-License-Identifier: BUSL-1.1

package gateway

import (
	"fmt"
	"os"
	"regexp"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root gateway configuration, loaded from a YAML file with
// environment variable expansion.
type Config struct {
	Version string       `yaml:"version"`
	Server  ServerConfig `yaml:"server"`
	Auth    AuthConfig   `yaml:"auth"`
	Redis   RedisConfig  `yaml:"redis"`
	Ledger  LedgerConfig `yaml:"ledger"`
	Tools   ToolsConfig  `yaml:"tools"`
}

// ServerConfig controls the HTTP listener
type ServerConfig struct {
	ListenAddr     string   `yaml:"listen_addr"`
	AllowedOrigins []string `yaml:"allowed_origins"`
	// ShutdownGraceMs bounds graceful shutdown on SIGTERM
	ShutdownGraceMs int `yaml:"shutdown_grace_ms"`
}

// AuthConfig controls bearer token validation and rate limits
type AuthConfig struct {
	JWTSecret          string `yaml:"jwt_secret"`
	RateLimitPerMinute int    `yaml:"rate_limit_per_minute"`
}

// RedisConfig points at the rate limit backend. An empty URL means the
// in-memory limiter is used.
type RedisConfig struct {
	URL string `yaml:"url"`
}

// LedgerConfig controls the billing ledger
type LedgerConfig struct {
	DatabaseURL string `yaml:"database_url"`
	// DeferringSources lists usage sources allowed to report cost late
	DeferringSources []string `yaml:"deferring_sources"`
	MarkupPercent    float64  `yaml:"markup_percent"`
	CreditsPerUSD    float64  `yaml:"credits_per_usd"`
}

// ToolsConfig controls the built-in tool implementations
type ToolsConfig struct {
	FetchAllowedHosts  []string `yaml:"fetch_allowed_hosts"`
	FetchTimeoutMs     int      `yaml:"fetch_timeout_ms"`
	FetchMaxBodyBytes  int64    `yaml:"fetch_max_body_bytes"`
	QueryDatabaseURL   string   `yaml:"query_database_url"`
	DisablePrivateSSRF bool     `yaml:"allow_private_ips"`
}

// LoadConfig reads and parses the gateway configuration file. Environment
// variables referenced as ${VAR} or ${VAR:-default} are expanded before
// parsing.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	expanded := expandEnvVars(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Server.ListenAddr == "" {
		c.Server.ListenAddr = ":8080"
	}
	if c.Server.ShutdownGraceMs == 0 {
		c.Server.ShutdownGraceMs = 10000
	}
	if c.Auth.RateLimitPerMinute == 0 {
		c.Auth.RateLimitPerMinute = 60
	}
	if c.Ledger.MarkupPercent == 0 {
		c.Ledger.MarkupPercent = 20
	}
	if c.Ledger.CreditsPerUSD == 0 {
		c.Ledger.CreditsPerUSD = 1000
	}
	if c.Tools.FetchTimeoutMs == 0 {
		c.Tools.FetchTimeoutMs = 30000
	}
	if c.Tools.FetchMaxBodyBytes == 0 {
		c.Tools.FetchMaxBodyBytes = 1 * 1024 * 1024
	}
}

// Validate checks the parts of the config that cannot have a safe default
func (c *Config) Validate() error {
	if c.Version == "" {
		return fmt.Errorf("config file must specify a version")
	}
	if c.Auth.JWTSecret == "" {
		return fmt.Errorf("auth.jwt_secret is required")
	}
	if c.Auth.RateLimitPerMinute < 0 {
		return fmt.Errorf("auth.rate_limit_per_minute must not be negative")
	}
	return nil
}

// ShutdownGrace returns the graceful-shutdown window as a duration
func (c *Config) ShutdownGrace() time.Duration {
	return time.Duration(c.Server.ShutdownGraceMs) * time.Millisecond
}

// FetchTimeout returns the per-fetch timeout as a duration
func (c *ToolsConfig) FetchTimeout() time.Duration {
	return time.Duration(c.FetchTimeoutMs) * time.Millisecond
}

// envVarRegex matches ${VAR_NAME} or $VAR_NAME patterns
var envVarRegex = regexp.MustCompile(`\$\{([^}]+)\}|\$([A-Za-z_][A-Za-z0-9_]*)`)

// expandEnvVars expands environment variable references in the string.
// Supports ${VAR_NAME}, $VAR_NAME, and ${VAR_NAME:-default} syntax; undefined
// variables without a default become empty strings.
func expandEnvVars(content string) string {
	return envVarRegex.ReplaceAllStringFunc(content, func(match string) string {
		var varName string
		if strings.HasPrefix(match, "${") {
			varName = match[2 : len(match)-1]
		} else {
			varName = match[1:]
		}

		defaultVal := ""
		if idx := strings.Index(varName, ":-"); idx != -1 {
			defaultVal = varName[idx+2:]
			varName = varName[:idx]
		}

		if value := os.Getenv(varName); value != "" {
			return value
		}
		return defaultVal
	})
}
