// SPDX-License-Identifier: MIT

// Package config resolves the appliance configuration with the precedence
// ENV > config file > defaults. The rest of the codebase never reads the
// process environment directly; everything is resolved here at startup.
package config

import (
	"fmt"
	"strings"
	"time"
)

// Environment values recognised for LICD_ENVIRONMENT. Development selects the
// dev artifact folder; anything else selects the production folder.
const (
	EnvDevelopment = "Development"
	EnvProduction  = "Production"
)

// Defaults for the appliance ports and intervals.
const (
	DefaultListenAddr         = ":7890"
	DefaultDiscoveryPort      = 41234
	DefaultDatabasePort       = 5432
	DefaultReannounceInterval = 60 * time.Second
	DefaultStaleAfter         = 2 * time.Hour
	DefaultMaxSkew            = 600 * time.Second
	DefaultFlushInterval      = 10 * time.Second
	DefaultIssuerTimeout      = 15 * time.Second
)

// AppConfig is the resolved configuration of the licensing appliance.
type AppConfig struct {
	LogLevel   string `yaml:"logLevel"`
	LogService string `yaml:"logService"`

	// Environment selects the artifact folder name (Development vs production).
	Environment string `yaml:"environment"`
	// ArtifactPath overrides the platform-derived sealed artifact location.
	ArtifactPath string `yaml:"artifactPath"`

	ListenAddr  string `yaml:"listenAddr"`
	MetricsAddr string `yaml:"metricsAddr"`

	// Discovery
	DiscoveryEnabled   bool          `yaml:"discoveryEnabled"`
	DiscoveryPort      int           `yaml:"discoveryPort"`
	MDNSEnabled        bool          `yaml:"mdnsEnabled"`
	ReannounceInterval time.Duration `yaml:"reannounceInterval"`

	// Embedded database announcement
	DatabaseDiscovery  bool   `yaml:"databaseDiscovery"`
	DatabaseInstanceID string `yaml:"databaseInstanceId"`
	DatabasePort       int    `yaml:"databasePort"`
	DatabaseVersion    string `yaml:"databaseVersion"`

	// Upstream issuer
	IssuerBaseURL string        `yaml:"issuerBaseUrl"`
	IssuerAPIKey  string        `yaml:"issuerApiKey"`
	IssuerTimeout time.Duration `yaml:"issuerTimeout"`

	// Admission thresholds
	StaleAfter time.Duration `yaml:"staleAfter"`
	MaxSkew    time.Duration `yaml:"maxSkew"`

	// Statement quota flush cadence
	FlushInterval time.Duration `yaml:"flushInterval"`

	// Rate limiting
	RateLimitEnabled bool `yaml:"rateLimitEnabled"`
	RateLimitRPM     int  `yaml:"rateLimitRpm"`
}

// Defaults returns the built-in configuration defaults.
func Defaults() AppConfig {
	return AppConfig{
		LogLevel:           "info",
		LogService:         "licensed",
		Environment:        EnvProduction,
		ListenAddr:         DefaultListenAddr,
		DiscoveryEnabled:   true,
		DiscoveryPort:      DefaultDiscoveryPort,
		MDNSEnabled:        true,
		ReannounceInterval: DefaultReannounceInterval,
		DatabaseDiscovery:  false,
		DatabasePort:       DefaultDatabasePort,
		DatabaseVersion:    "16",
		IssuerTimeout:      DefaultIssuerTimeout,
		StaleAfter:         DefaultStaleAfter,
		MaxSkew:            DefaultMaxSkew,
		FlushInterval:      DefaultFlushInterval,
		RateLimitEnabled:   true,
		RateLimitRPM:       600,
	}
}

// Load resolves the configuration: defaults, then the optional YAML file at
// filePath (empty string skips the file layer), then environment overrides.
func Load(filePath string) (AppConfig, error) {
	cfg := Defaults()

	if filePath != "" {
		if err := mergeFile(&cfg, filePath); err != nil {
			return AppConfig{}, fmt.Errorf("config file %s: %w", filePath, err)
		}
	}

	mergeEnv(&cfg)

	if err := cfg.Validate(); err != nil {
		return AppConfig{}, err
	}
	return cfg, nil
}

// mergeEnv applies LICD_* environment overrides on top of cfg.
func mergeEnv(cfg *AppConfig) {
	cfg.LogLevel = ParseString("LICD_LOG_LEVEL", cfg.LogLevel)
	cfg.LogService = ParseString("LICD_LOG_SERVICE", cfg.LogService)
	cfg.Environment = ParseString("LICD_ENVIRONMENT", cfg.Environment)
	cfg.ArtifactPath = ParseString("LICD_ARTIFACT_PATH", cfg.ArtifactPath)
	cfg.ListenAddr = ParseString("LICD_LISTEN", cfg.ListenAddr)
	cfg.MetricsAddr = ParseString("LICD_METRICS_LISTEN", cfg.MetricsAddr)

	cfg.DiscoveryEnabled = ParseBool("LICD_DISCOVERY_ENABLED", cfg.DiscoveryEnabled)
	cfg.DiscoveryPort = ParseInt("LICD_DISCOVERY_PORT", cfg.DiscoveryPort)
	cfg.MDNSEnabled = ParseBool("LICD_MDNS_ENABLED", cfg.MDNSEnabled)
	cfg.ReannounceInterval = ParseDuration("LICD_MDNS_REANNOUNCE_INTERVAL", cfg.ReannounceInterval)

	cfg.DatabaseDiscovery = ParseBool("LICD_DATABASE_DISCOVERY", cfg.DatabaseDiscovery)
	cfg.DatabaseInstanceID = ParseString("LICD_DATABASE_INSTANCE_ID", cfg.DatabaseInstanceID)
	cfg.DatabasePort = ParseInt("LICD_DATABASE_PORT", cfg.DatabasePort)
	cfg.DatabaseVersion = ParseString("LICD_DATABASE_VERSION", cfg.DatabaseVersion)

	cfg.IssuerBaseURL = ParseString("LICD_ISSUER_BASE_URL", cfg.IssuerBaseURL)
	cfg.IssuerAPIKey = ParseString("LICD_ISSUER_API_KEY", cfg.IssuerAPIKey)
	cfg.IssuerTimeout = ParseDuration("LICD_ISSUER_TIMEOUT", cfg.IssuerTimeout)

	cfg.StaleAfter = ParseDuration("LICD_LICENSE_STALE_AFTER", cfg.StaleAfter)
	cfg.MaxSkew = ParseDuration("LICD_LICENSE_MAX_SKEW", cfg.MaxSkew)
	cfg.FlushInterval = ParseDuration("LICD_FLUSH_INTERVAL", cfg.FlushInterval)

	cfg.RateLimitEnabled = ParseBool("LICD_RATE_LIMIT_ENABLED", cfg.RateLimitEnabled)
	cfg.RateLimitRPM = ParseInt("LICD_RATE_LIMIT_RPM", cfg.RateLimitRPM)
}

// IsDevelopment reports whether the dev artifact folder should be used.
func (c AppConfig) IsDevelopment() bool {
	return c.Environment == EnvDevelopment
}

// Validate checks the resolved configuration for values that cannot work.
func (c AppConfig) Validate() error {
	if c.DiscoveryPort <= 0 || c.DiscoveryPort > 65535 {
		return fmt.Errorf("invalid discovery port %d", c.DiscoveryPort)
	}
	if c.DatabasePort <= 0 || c.DatabasePort > 65535 {
		return fmt.Errorf("invalid database port %d", c.DatabasePort)
	}
	if c.ReannounceInterval < 10*time.Second {
		return fmt.Errorf("reannounce interval %s below 10s minimum", c.ReannounceInterval)
	}
	if c.MaxSkew <= 0 {
		return fmt.Errorf("max skew must be positive, got %s", c.MaxSkew)
	}
	if c.FlushInterval <= 0 {
		return fmt.Errorf("flush interval must be positive, got %s", c.FlushInterval)
	}
	if strings.TrimSpace(c.ListenAddr) == "" {
		return fmt.Errorf("listen address must not be empty")
	}
	return nil
}
