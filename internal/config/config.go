package config

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/idscout/idscout/internal/core"
)

// Supported account API types
const (
	APITypeSQL   = "sql"
	APITypeMongo = "mongo"
)

// Config represents the complete application configuration. Values are
// layered from defaults, an optional YAML file and IDSCOUT_* environment
// variables (see loader.go).
type Config struct {
	Account AccountConfig `mapstructure:"account"`
	Scan    ScanConfig    `mapstructure:"scan"`
	HTTP    HTTPConfig    `mapstructure:"http"`
	Logging LoggingConfig `mapstructure:"logging"`
	Metrics MetricsConfig `mapstructure:"metrics"`
	Server  ServerConfig  `mapstructure:"server"`
}

// AccountConfig identifies the document store account to scan.
type AccountConfig struct {
	// APIType selects the backend: sql (signed REST) or mongo (driver).
	APIType string `mapstructure:"api_type"`

	// Endpoint and Key authenticate the sql backend.
	Endpoint string `mapstructure:"endpoint"`
	Key      string `mapstructure:"key"`

	// ConnectionString configures the mongo backend.
	ConnectionString string `mapstructure:"connection_string"`
}

// ScanConfig holds the defaults for each scan run.
type ScanConfig struct {
	IndexAssist      bool          `mapstructure:"index_assist"`
	ShrinkBase       int           `mapstructure:"shrink_base"`
	MaxConcurrency   int           `mapstructure:"max_concurrency"`
	ComputedProperty string        `mapstructure:"computed_property"`
	Timeout          time.Duration `mapstructure:"timeout"`
}

// HTTPConfig tunes the sql backend's HTTP client.
type HTTPConfig struct {
	Timeout time.Duration `mapstructure:"timeout"`

	// RequestsPerSecond paces outgoing requests; zero or less disables pacing.
	RequestsPerSecond float64 `mapstructure:"requests_per_second"`
	Burst             int     `mapstructure:"burst"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	// Level controls the minimum log level
	// Valid values: trace, debug, info, warn, error
	Level string `mapstructure:"level"`

	// Profile selects the logger shape: simple or structured
	Profile string `mapstructure:"profile"`
}

// MetricsConfig contains Prometheus metrics configuration
type MetricsConfig struct {
	Enabled bool `mapstructure:"enabled"`
	Port    int  `mapstructure:"port"`
}

// ServerConfig contains HTTP server configuration
type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// ScanOptions converts the scan section into engine options.
func (c *Config) ScanOptions() core.ScanOptions {
	if c == nil {
		return core.ScanOptions{ShrinkBase: core.DefaultShrinkBase}
	}
	return core.ScanOptions{
		IndexAssist:    c.Scan.IndexAssist,
		ShrinkBase:     c.Scan.ShrinkBase,
		MaxConcurrency: c.Scan.MaxConcurrency,
	}
}

// Validate reports every configuration problem at once.
func (c *Config) Validate() error {
	if c == nil {
		return errors.New("config is nil")
	}

	var problems []error
	switch strings.ToLower(strings.TrimSpace(c.Account.APIType)) {
	case APITypeSQL:
		if strings.TrimSpace(c.Account.Endpoint) == "" {
			problems = append(problems, errors.New("account.endpoint is required for the sql api"))
		}
		if strings.TrimSpace(c.Account.Key) == "" {
			problems = append(problems, errors.New("account.key is required for the sql api"))
		}
	case APITypeMongo:
		if strings.TrimSpace(c.Account.ConnectionString) == "" {
			problems = append(problems, errors.New("account.connection_string is required for the mongo api"))
		}
	default:
		problems = append(problems, fmt.Errorf("account.api_type %q is not supported (want %s or %s)", c.Account.APIType, APITypeSQL, APITypeMongo))
	}

	problems = append(problems, c.Scan.validate()...)

	if c.HTTP.Timeout < 0 {
		problems = append(problems, errors.New("http.timeout must not be negative"))
	}
	if c.HTTP.RequestsPerSecond > 0 && c.HTTP.Burst < 1 {
		problems = append(problems, errors.New("http.burst must be at least 1 when pacing is enabled"))
	}

	return errors.Join(problems...)
}

// ValidateScan checks only the scan section, for callers that override
// options per run.
func (c *Config) ValidateScan() error {
	if c == nil {
		return errors.New("config is nil")
	}
	return errors.Join(c.Scan.validate()...)
}

// propertyName is what may follow "c." in a query without escaping.
var propertyName = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

func (s ScanConfig) validate() []error {
	var problems []error
	if s.ShrinkBase < 2 {
		problems = append(problems, fmt.Errorf("scan.shrink_base must be at least 2, got %d", s.ShrinkBase))
	}
	if s.MaxConcurrency < 0 {
		problems = append(problems, fmt.Errorf("scan.max_concurrency must not be negative, got %d", s.MaxConcurrency))
	}
	if s.Timeout < 0 {
		problems = append(problems, errors.New("scan.timeout must not be negative"))
	}
	property := strings.TrimSpace(s.ComputedProperty)
	switch {
	case s.IndexAssist && property == "":
		problems = append(problems, errors.New("scan.computed_property is required when index assist is enabled"))
	case property != "" && !propertyName.MatchString(property):
		problems = append(problems, fmt.Errorf("scan.computed_property %q must be a plain identifier", s.ComputedProperty))
	}
	return problems
}
