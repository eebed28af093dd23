package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

// Defaults applied when neither the config file nor the environment
// provides a value.
const (
	DefaultBaseURL         = "https://fitblocks.nl"
	DefaultListenAddr      = ":8099"
	DefaultRefreshInterval = 30 * time.Minute
)

// Config is the top-level application configuration.
type Config struct {
	// BaseURL is the upstream portal root, without trailing slash.
	BaseURL string `yaml:"base_url"`

	// Box is the tenant/gym slug segment in the upstream URL path.
	Box string `yaml:"box"`

	// Username is the account email used for the login flow.
	Username string `yaml:"username"`

	// Password is the account password.
	Password string `yaml:"password"`

	// DisplayName optionally overrides the name derived from the
	// account email.
	DisplayName string `yaml:"display_name"`

	// Timezone is the IANA zone used to interpret timezone-naive
	// upstream timestamps. Empty means the system local zone.
	Timezone string `yaml:"timezone"`

	// RefreshInterval is how often the schedule is polled.
	RefreshInterval time.Duration `yaml:"refresh_interval"`

	// ListenAddr is the HTTP listen address for the host-facing API.
	ListenAddr string `yaml:"listen"`
}

// UnmarshalYAML decodes the config, accepting refresh_interval as a Go
// duration string ("30m") which yaml cannot map onto time.Duration
// directly.
func (c *Config) UnmarshalYAML(value *yaml.Node) error {
	type rawConfig struct {
		BaseURL         string `yaml:"base_url"`
		Box             string `yaml:"box"`
		Username        string `yaml:"username"`
		Password        string `yaml:"password"`
		DisplayName     string `yaml:"display_name"`
		Timezone        string `yaml:"timezone"`
		RefreshInterval string `yaml:"refresh_interval"`
		ListenAddr      string `yaml:"listen"`
	}
	var raw rawConfig
	if err := value.Decode(&raw); err != nil {
		return err
	}

	c.BaseURL = raw.BaseURL
	c.Box = raw.Box
	c.Username = raw.Username
	c.Password = raw.Password
	c.DisplayName = raw.DisplayName
	c.Timezone = raw.Timezone
	c.ListenAddr = raw.ListenAddr
	if raw.RefreshInterval != "" {
		d, err := time.ParseDuration(raw.RefreshInterval)
		if err != nil {
			return fmt.Errorf("invalid refresh_interval: %w", err)
		}
		c.RefreshInterval = d
	}
	return nil
}

// Loader reads the configuration file and applies environment
// overrides.
type Loader struct {
	path   string
	logger *zap.Logger
}

// NewLoader creates a configuration loader for the given file path.
func NewLoader(path string, logger *zap.Logger) *Loader {
	return &Loader{path: path, logger: logger}
}

// Load reads the YAML file (when present), applies FITCONNECT_*
// environment overrides, fills defaults and validates the result.
func (l *Loader) Load() (*Config, error) {
	cfg := &Config{}

	if l.path != "" {
		l.logger.Debug("Loading config file", zap.String("path", l.path))
		data, err := os.ReadFile(l.path)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("failed to read config file: %w", err)
			}
			l.logger.Warn("Config file not found, using environment only",
				zap.String("path", l.path))
		} else if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	applyEnvOverrides(cfg)
	applyDefaults(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	l.logger.Info("Configuration loaded",
		zap.String("base_url", cfg.BaseURL),
		zap.String("box", cfg.Box),
		zap.Duration("refresh_interval", cfg.RefreshInterval))
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("FITCONNECT_BASE_URL"); v != "" {
		cfg.BaseURL = v
	}
	if v := os.Getenv("FITCONNECT_BOX"); v != "" {
		cfg.Box = v
	}
	if v := os.Getenv("FITCONNECT_USERNAME"); v != "" {
		cfg.Username = v
	}
	if v := os.Getenv("FITCONNECT_PASSWORD"); v != "" {
		cfg.Password = v
	}
	if v := os.Getenv("FITCONNECT_DISPLAY_NAME"); v != "" {
		cfg.DisplayName = v
	}
	if v := os.Getenv("FITCONNECT_TIMEZONE"); v != "" {
		cfg.Timezone = v
	}
	if v := os.Getenv("FITCONNECT_LISTEN"); v != "" {
		cfg.ListenAddr = v
	}
	if v := os.Getenv("FITCONNECT_REFRESH_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.RefreshInterval = d
		}
	}
}

func applyDefaults(cfg *Config) {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.ListenAddr == "" {
		cfg.ListenAddr = DefaultListenAddr
	}
	if cfg.RefreshInterval <= 0 {
		cfg.RefreshInterval = DefaultRefreshInterval
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	cfg.Box = strings.Trim(cfg.Box, "/")
}

// Validate checks the required fields.
func (c *Config) Validate() error {
	if c.Box == "" {
		return fmt.Errorf("box is required")
	}
	if c.Username == "" {
		return fmt.Errorf("username is required")
	}
	if c.Password == "" {
		return fmt.Errorf("password is required")
	}
	return nil
}

// Location resolves the configured timezone, falling back to the
// system local zone on an empty or invalid value.
func (c *Config) Location(logger *zap.Logger) *time.Location {
	if c.Timezone == "" {
		return time.Local
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		logger.Warn("Invalid timezone, falling back to local",
			zap.String("timezone", c.Timezone), zap.Error(err))
		return time.Local
	}
	return loc
}

// DeriveDisplayName returns the configured display name, or one
// derived from the email local part ("jane.doe@x" -> "Jane Doe").
func (c *Config) DeriveDisplayName() string {
	if name := strings.TrimSpace(c.DisplayName); name != "" {
		return name
	}
	local := c.Username
	if at := strings.Index(local, "@"); at >= 0 {
		local = local[:at]
	}
	local = strings.NewReplacer(".", " ", "_", " ").Replace(local)
	words := strings.Fields(local)
	for i, word := range words {
		words[i] = strings.ToUpper(word[:1]) + strings.ToLower(word[1:])
	}
	if len(words) == 0 {
		return c.Username
	}
	return strings.Join(words, " ")
}
