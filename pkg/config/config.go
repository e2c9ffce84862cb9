package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/cuemby/mantle/pkg/auth"
	"github.com/cuemby/mantle/pkg/bulk"
	"github.com/cuemby/mantle/pkg/gateway"
	"github.com/cuemby/mantle/pkg/log"
	"github.com/cuemby/mantle/pkg/poller"
	"gopkg.in/yaml.v3"
)

// Power backends
const (
	BackendPCS   = "pcs"
	BackendCAPMC = "capmc"
)

// Config is the on-disk client configuration
type Config struct {
	Endpoint  string        `yaml:"endpoint"`
	TokenFile string        `yaml:"token_file,omitempty"`
	CACert    string        `yaml:"ca_cert,omitempty"`
	Proxy     string        `yaml:"proxy,omitempty"`
	Timeout   time.Duration `yaml:"timeout"`
	RateLimit float64       `yaml:"rate_limit"`
	RateBurst int           `yaml:"rate_burst"`

	APIVersions APIVersions `yaml:"api_versions"`
	Power       Power       `yaml:"power"`
	Bulk        Bulk        `yaml:"bulk"`
	Poll        Poll        `yaml:"poll"`
	Auth        Auth        `yaml:"auth"`
	Log         Log         `yaml:"log"`
}

type APIVersions struct {
	CFS string `yaml:"cfs"`
	BOS string `yaml:"bos"`
}

type Power struct {
	Backend string `yaml:"backend"`
}

// Bulk holds the per-request ceilings of the batched services
type Bulk struct {
	StatusBatchSize      int `yaml:"status_batch_size"`
	ComponentBatchSize   int `yaml:"component_batch_size"`
	PowerStatusBatchSize int `yaml:"power_status_batch_size"`
	MaxConcurrency       int `yaml:"max_concurrency"`
}

type PollPolicy struct {
	Interval    time.Duration `yaml:"interval"`
	MaxAttempts int           `yaml:"max_attempts"`
}

// Policy converts to the poller representation
func (p PollPolicy) Policy() poller.Policy {
	return poller.Policy{Interval: p.Interval, MaxAttempts: p.MaxAttempts}
}

type Poll struct {
	Transition PollPolicy `yaml:"transition"`
	Power      PollPolicy `yaml:"power"`
	Session    PollPolicy `yaml:"session"`
}

// Auth overrides the role filter lists
type Auth struct {
	AdminRole       string   `yaml:"admin_role"`
	IgnoredRoles    []string `yaml:"ignored_roles"`
	Roles           []string `yaml:"roles"`
	SubRoles        []string `yaml:"sub_roles"`
	SiteWideAliases []string `yaml:"site_wide_aliases"`
	FoldCase        bool     `yaml:"fold_case"`
}

// Filters converts to the auth representation
func (a Auth) Filters() auth.Filters {
	return auth.Filters{
		AdminRole:       a.AdminRole,
		IgnoredRoles:    a.IgnoredRoles,
		Roles:           a.Roles,
		SubRoles:        a.SubRoles,
		SiteWideAliases: a.SiteWideAliases,
		FoldCase:        a.FoldCase,
	}
}

type Log struct {
	Level string `yaml:"level"`
	JSON  bool   `yaml:"json"`
}

func policyFrom(p poller.Policy) PollPolicy {
	return PollPolicy{Interval: p.Interval, MaxAttempts: p.MaxAttempts}
}

// Default returns the configuration used when no file exists
func Default() *Config {
	filters := auth.DefaultFilters()
	return &Config{
		Timeout:     30 * time.Second,
		APIVersions: APIVersions{CFS: "v3", BOS: "v2"},
		Power:       Power{Backend: BackendPCS},
		Bulk: Bulk{
			StatusBatchSize:      bulk.StatusBatchSize,
			ComponentBatchSize:   bulk.ComponentBatchSize,
			PowerStatusBatchSize: bulk.StatusBatchSize,
			MaxConcurrency:       bulk.DefaultMaxConcurrency,
		},
		Poll: Poll{
			Transition: policyFrom(poller.TransitionPolicy()),
			Power:      policyFrom(poller.PowerPolicy()),
			Session:    policyFrom(poller.SessionPolicy()),
		},
		Auth: Auth{
			AdminRole:       filters.AdminRole,
			IgnoredRoles:    filters.IgnoredRoles,
			Roles:           filters.Roles,
			SubRoles:        filters.SubRoles,
			SiteWideAliases: filters.SiteWideAliases,
		},
		Log: Log{Level: string(log.InfoLevel)},
	}
}

// DefaultPath returns ~/.config/mantle/config.yaml
func DefaultPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".mantle", "config.yaml")
	}
	return filepath.Join(home, ".config", "mantle", "config.yaml")
}

// Load reads path over the defaults. A missing file yields the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return cfg, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

// Save writes cfg to path, creating the parent directory
func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	return os.WriteFile(path, data, 0o600)
}

// Validate checks value ranges and enumerations
func (c *Config) Validate() error {
	var errs []error

	switch c.APIVersions.CFS {
	case "v2", "v3":
	default:
		errs = append(errs, fmt.Errorf("api_versions.cfs must be v2 or v3, got %q", c.APIVersions.CFS))
	}
	switch c.APIVersions.BOS {
	case "v1", "v2":
	default:
		errs = append(errs, fmt.Errorf("api_versions.bos must be v1 or v2, got %q", c.APIVersions.BOS))
	}
	switch c.Power.Backend {
	case BackendPCS, BackendCAPMC:
	default:
		errs = append(errs, fmt.Errorf("power.backend must be pcs or capmc, got %q", c.Power.Backend))
	}

	if c.Timeout < 0 {
		errs = append(errs, fmt.Errorf("timeout must not be negative"))
	}
	if c.RateLimit < 0 || c.RateBurst < 0 {
		errs = append(errs, fmt.Errorf("rate_limit and rate_burst must not be negative"))
	}

	for name, v := range map[string]int{
		"bulk.status_batch_size":       c.Bulk.StatusBatchSize,
		"bulk.component_batch_size":    c.Bulk.ComponentBatchSize,
		"bulk.power_status_batch_size": c.Bulk.PowerStatusBatchSize,
		"bulk.max_concurrency":         c.Bulk.MaxConcurrency,
	} {
		if v <= 0 {
			errs = append(errs, fmt.Errorf("%s must be positive, got %d", name, v))
		}
	}

	for name, p := range map[string]PollPolicy{
		"poll.transition": c.Poll.Transition,
		"poll.power":      c.Poll.Power,
		"poll.session":    c.Poll.Session,
	} {
		if p.Interval <= 0 || p.MaxAttempts <= 0 {
			errs = append(errs, fmt.Errorf("%s needs a positive interval and max_attempts", name))
		}
	}

	switch log.Level(strings.ToLower(c.Log.Level)) {
	case log.DebugLevel, log.InfoLevel, log.WarnLevel, log.ErrorLevel:
	default:
		errs = append(errs, fmt.Errorf("log.level %q is not one of debug, info, warn, error", c.Log.Level))
	}

	return errors.Join(errs...)
}

// Gateway builds the gateway configuration. token is the bearer credential
// read by the caller.
func (c *Config) Gateway(token string) gateway.Config {
	return gateway.Config{
		BaseURL:    c.Endpoint,
		Token:      token,
		CACertFile: c.CACert,
		ProxyURL:   c.Proxy,
		Timeout:    c.Timeout,
		RateLimit:  c.RateLimit,
		RateBurst:  c.RateBurst,
		Versions:   gateway.Versions{CFS: c.APIVersions.CFS, BOS: c.APIVersions.BOS},
	}
}

// ReadToken reads the bearer token from TokenFile
func (c *Config) ReadToken() (string, error) {
	if c.TokenFile == "" {
		return "", fmt.Errorf("no token_file configured")
	}
	data, err := os.ReadFile(c.TokenFile)
	if err != nil {
		return "", fmt.Errorf("failed to read token: %w", err)
	}
	return strings.TrimSpace(string(data)), nil
}
