// Package config provides YAML-based configuration loading for Switchboard.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"
)

// Config is the top-level Switchboard configuration, loaded from
// switchboard.yaml.
type Config struct {
	Platform      string       `yaml:"platform"`       // "discord" or "slack"
	CommandPrefix string       `yaml:"command_prefix"` // defaults to "!"
	DataDir       string       `yaml:"data_dir"`       // per-community config records
	TokenFile     string       `yaml:"token_file"`     // bot credential, read once at startup
	SlackAppToken string       `yaml:"slack_app_token"`
	Ollama        OllamaConfig `yaml:"ollama"`
	Audit         AuditConfig  `yaml:"audit"`
	Panel         PanelConfig  `yaml:"panel"`
	RandomMinLen  int          `yaml:"random_min_len"` // minimum message length for random replies
	PagerTimeout  string       `yaml:"pager_timeout"`  // pagination control lifetime, e.g. "5m"
}

// OllamaConfig holds settings for the local inference backend.
type OllamaConfig struct {
	URL         string `yaml:"url"`
	Timeout     string `yaml:"timeout"`      // per-generate request bound, e.g. "60s"
	RefreshCron string `yaml:"refresh_cron"` // 5-field cron for model list refresh
}

// AuditConfig selects the audit database. SQLite is the default; MySQL is
// available for shared deployments.
type AuditConfig struct {
	Driver string `yaml:"driver"` // "sqlite" or "mysql"
	DSN    string `yaml:"dsn"`
}

// PanelConfig holds settings for the operator control panel.
type PanelConfig struct {
	Enabled bool `yaml:"enabled"`
	Port    int  `yaml:"port"`
}

// Load reads a YAML config file from path and returns a validated Config.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	return Parse(data)
}

// Parse unmarshals YAML bytes into a validated Config.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse: %w", err)
	}
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// cronParser accepts standard 5-field cron expressions.
var cronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

// applyDefaults fills in derived and default values.
func (c *Config) applyDefaults() {
	if c.Platform == "" {
		c.Platform = "discord"
	}
	if c.CommandPrefix == "" {
		c.CommandPrefix = "!"
	}
	if c.DataDir == "" {
		c.DataDir = "data/communities"
	}
	if c.TokenFile == "" {
		c.TokenFile = "data/bot_token.txt"
	}
	if c.Ollama.URL == "" {
		c.Ollama.URL = "http://localhost:11434"
	}
	if c.Ollama.Timeout == "" {
		c.Ollama.Timeout = "60s"
	}
	if c.Ollama.RefreshCron == "" {
		c.Ollama.RefreshCron = "*/5 * * * *"
	}
	if c.Audit.Driver == "" {
		c.Audit.Driver = "sqlite"
	}
	if c.Audit.Driver == "sqlite" && c.Audit.DSN == "" {
		c.Audit.DSN = "data/audit.db"
	}
	if c.Panel.Port == 0 {
		c.Panel.Port = 8472
	}
	if c.RandomMinLen == 0 {
		c.RandomMinLen = 10
	}
	if c.PagerTimeout == "" {
		c.PagerTimeout = "5m"
	}
}

// OllamaTimeout returns the parsed per-generate request bound. The string
// form is validated at load time.
func (c *Config) OllamaTimeout() time.Duration {
	d, err := time.ParseDuration(c.Ollama.Timeout)
	if err != nil {
		return 60 * time.Second
	}
	return d
}

// PagerLifetime returns the parsed pagination control lifetime.
func (c *Config) PagerLifetime() time.Duration {
	d, err := time.ParseDuration(c.PagerTimeout)
	if err != nil {
		return 5 * time.Minute
	}
	return d
}

// validate checks that all required fields are present and consistent.
func (c *Config) validate() error {
	var errs []string
	switch c.Platform {
	case "discord", "slack":
	default:
		errs = append(errs, fmt.Sprintf("platform %q is not supported (discord, slack)", c.Platform))
	}
	if c.Platform == "slack" && c.SlackAppToken == "" {
		errs = append(errs, "slack_app_token is required for the slack platform")
	}
	switch c.Audit.Driver {
	case "sqlite", "mysql":
	default:
		errs = append(errs, fmt.Sprintf("audit.driver %q is not supported (sqlite, mysql)", c.Audit.Driver))
	}
	if c.Audit.Driver == "mysql" && c.Audit.DSN == "" {
		errs = append(errs, "audit.dsn is required for the mysql driver")
	}
	if _, err := cronParser.Parse(c.Ollama.RefreshCron); err != nil {
		errs = append(errs, fmt.Sprintf("ollama.refresh_cron %q: %v", c.Ollama.RefreshCron, err))
	}
	if d, err := time.ParseDuration(c.Ollama.Timeout); err != nil || d <= 0 {
		errs = append(errs, fmt.Sprintf("ollama.timeout %q is not a positive duration", c.Ollama.Timeout))
	}
	if d, err := time.ParseDuration(c.PagerTimeout); err != nil || d <= 0 {
		errs = append(errs, fmt.Sprintf("pager_timeout %q is not a positive duration", c.PagerTimeout))
	}
	if len(errs) > 0 {
		return fmt.Errorf("config: validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}
