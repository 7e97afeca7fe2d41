// Package config loads and validates the tool's configuration: endpoint
// definitions, the sync specification, and run options.
package config

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/spf13/viper"
)

// Endpoint types.
const (
	TypeGlance = "glance"
	TypeS3     = "s3"
)

// Defaults matching a stock OpenStack deployment.
const (
	DefaultGlancePort      = 9292
	DefaultGlanceVersion   = "v2"
	DefaultKeystonePort    = 5000
	DefaultKeystoneVersion = "v3"
)

// EndpointConfig describes one image endpoint. Glance endpoints carry
// service and Keystone coordinates; S3 endpoints carry bucket coordinates.
type EndpointConfig struct {
	Type string `mapstructure:"type"`

	// Glance
	URL         string `mapstructure:"url"`
	Port        int    `mapstructure:"port"`
	APIVersion  string `mapstructure:"api_version"`
	Username    string `mapstructure:"username"`
	Password    string `mapstructure:"password"`
	Tenant      string `mapstructure:"tenant"`
	Domain      string `mapstructure:"domain"`
	AuthURL     string `mapstructure:"auth_url"`
	AuthPort    int    `mapstructure:"auth_port"`
	AuthVersion string `mapstructure:"auth_version"`
	Region      string `mapstructure:"region"`

	// S3
	Bucket string `mapstructure:"bucket"`
	Prefix string `mapstructure:"prefix"`
}

// ImageURL returns the Glance service endpoint, e.g. http://host:9292/v2.
func (e EndpointConfig) ImageURL() string {
	if e.URL == "" {
		return ""
	}
	port := e.Port
	if port == 0 {
		port = DefaultGlancePort
	}
	version := e.APIVersion
	if version == "" {
		version = DefaultGlanceVersion
	}
	return fmt.Sprintf("%s:%d/%s", strings.TrimRight(e.URL, "/"), port, version)
}

// AuthEndpoint returns the Keystone endpoint, defaulting to the service
// host when no separate auth URL is configured.
func (e EndpointConfig) AuthEndpoint() string {
	url := e.AuthURL
	if url == "" {
		url = e.URL
	}
	if url == "" {
		return ""
	}
	port := e.AuthPort
	if port == 0 {
		port = DefaultKeystonePort
	}
	version := e.AuthVersion
	if version == "" {
		version = DefaultKeystoneVersion
	}
	return fmt.Sprintf("%s:%d/%s", strings.TrimRight(url, "/"), port, version)
}

// Config holds all application configuration.
type Config struct {
	// Endpoint topology
	Master    string                    `mapstructure:"master"`
	Slaves    []string                  `mapstructure:"slaves"`
	Endpoints map[string]EndpointConfig `mapstructure:"endpoints"`

	// Sync specification
	SyncList []string `mapstructure:"images"`
	Pattern  string   `mapstructure:"pattern"`

	// Staging
	StagingDir string `mapstructure:"staging-dir"`
	Clean      bool   `mapstructure:"clean"`

	// History database
	HistoryDB string `mapstructure:"history-db"`

	Verbose bool `mapstructure:"verbose"`
}

// Load reads configuration from defaults, the config file, environment,
// and bound flags.
func Load() (*Config, error) {
	viper.SetDefault("staging-dir", "/tmp/glance-sync")
	viper.SetDefault("clean", false)
	viper.SetDefault("history-db", ".glance-sync/history.db")

	// Environment variables (GLANCE_SYNC_STAGING_DIR, etc.)
	viper.SetEnvPrefix("GLANCE_SYNC")
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))

	if cfgFile := viper.GetString("config"); cfgFile != "" {
		viper.SetConfigFile(cfgFile)
		if err := viper.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", cfgFile, err)
		}
	} else {
		viper.SetConfigName("glance-sync")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")
		viper.AddConfigPath("$HOME/.glance-sync")
		viper.AddConfigPath("/etc/glance-sync")

		// Config file is optional when everything comes from flags/env.
		_ = viper.ReadInConfig()
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	return &cfg, nil
}

// Validate checks configuration for errors. A validation failure is fatal
// before any transfer is attempted.
func (c *Config) Validate() error {
	if c.Master == "" {
		return fmt.Errorf("master endpoint is not configured")
	}
	if len(c.Slaves) == 0 {
		return fmt.Errorf("at least one slave endpoint is required")
	}
	if _, ok := c.Endpoints[c.Master]; !ok {
		return fmt.Errorf("master endpoint %q is not defined under endpoints", c.Master)
	}
	for _, slave := range c.Slaves {
		if _, ok := c.Endpoints[slave]; !ok {
			return fmt.Errorf("slave endpoint %q is not defined under endpoints", slave)
		}
		if slave == c.Master {
			return fmt.Errorf("endpoint %q cannot be both master and slave", slave)
		}
	}
	for name, ep := range c.Endpoints {
		if err := ep.validate(); err != nil {
			return fmt.Errorf("endpoint %q: %w", name, err)
		}
	}
	if c.Pattern != "" {
		if _, err := regexp.Compile(c.Pattern); err != nil {
			return fmt.Errorf("invalid image pattern %q: %w", c.Pattern, err)
		}
	}
	if c.StagingDir == "" {
		return fmt.Errorf("staging-dir cannot be empty")
	}
	if c.HistoryDB == "" {
		return fmt.Errorf("history-db cannot be empty")
	}
	return nil
}

func (e EndpointConfig) validate() error {
	switch e.Type {
	case "", TypeGlance:
		if e.URL == "" {
			return fmt.Errorf("url is required for glance endpoints")
		}
		if e.Username == "" || e.Password == "" {
			return fmt.Errorf("username and password are required for glance endpoints")
		}
	case TypeS3:
		if e.Bucket == "" {
			return fmt.Errorf("bucket is required for s3 endpoints")
		}
		if e.Region == "" {
			return fmt.Errorf("region is required for s3 endpoints")
		}
	default:
		return fmt.Errorf("unknown endpoint type %q", e.Type)
	}
	return nil
}
