// Package config provides centralized configuration management for idscout.
// It layers built-in defaults, an optional YAML config file and IDSCOUT_*
// environment variables through viper, then decodes the merged settings into
// a typed Config with mapstructure.
package config

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"sync"

	gfconfig "github.com/fulmenhq/gofulmen/config"
	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"

	"github.com/idscout/idscout/internal/appid"
)

var (
	appConfig *Config
	configMu  sync.RWMutex
)

// SetDefaults registers a default for every known key. Every key needs one so
// that AllSettings sees environment overrides for it.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("account.api_type", APITypeSQL)
	v.SetDefault("account.endpoint", "")
	v.SetDefault("account.key", "")
	v.SetDefault("account.connection_string", "")

	v.SetDefault("scan.index_assist", false)
	v.SetDefault("scan.shrink_base", 2)
	v.SetDefault("scan.max_concurrency", 0)
	v.SetDefault("scan.computed_property", "cp_idLength")
	v.SetDefault("scan.timeout", "0s")

	v.SetDefault("http.timeout", "30s")
	v.SetDefault("http.requests_per_second", 0.0)
	v.SetDefault("http.burst", 10)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.profile", "structured")

	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.port", 9090)

	v.SetDefault("server.host", "localhost")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "5m")
	v.SetDefault("server.idle_timeout", "120s")
	v.SetDefault("server.shutdown_timeout", "10s")
}

// BindEnv wires IDSCOUT_<SECTION>_<KEY> environment variables into v.
func BindEnv(v *viper.Viper, identity *appid.Identity) {
	prefix := "IDSCOUT"
	if identity != nil && identity.ViperPrefix() != "" {
		prefix = identity.ViperPrefix()
	}
	v.SetEnvPrefix(prefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
}

// Decode unmarshals the merged settings of v into a Config without
// validating it.
func Decode(v *viper.Viper) (*Config, error) {
	cfg := &Config{}
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           cfg,
		WeaklyTypedInput: true,
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
			mapstructure.StringToFloat64HookFunc(),
		),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create decoder: %w", err)
	}

	if err := decoder.Decode(v.AllSettings()); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	cfg.Account.APIType = strings.ToLower(strings.TrimSpace(cfg.Account.APIType))
	cfg.Account.Endpoint = strings.TrimRight(strings.TrimSpace(cfg.Account.Endpoint), "/")
	return cfg, nil
}

// Load decodes v, stores the result as the current configuration and
// returns it. Validation is left to the command that needs an account.
//
// This function is safe to call multiple times (e.g., for config reload)
func Load(ctx context.Context, v *viper.Viper) (*Config, error) {
	if ctx != nil {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
	}
	if v == nil {
		v = viper.GetViper()
	}

	cfg, err := Decode(v)
	if err != nil {
		return nil, err
	}

	setConfig(cfg)
	return cfg, nil
}

// GetConfig returns the current application configuration (thread-safe)
func GetConfig() *Config {
	configMu.RLock()
	defer configMu.RUnlock()
	return appConfig
}

// setConfig updates the current configuration (thread-safe)
func setConfig(cfg *Config) {
	configMu.Lock()
	defer configMu.Unlock()
	appConfig = cfg
}

// DefaultConfigPath returns the XDG-compliant path to the user config file.
func DefaultConfigPath(identity *appid.Identity) string {
	name := "idscout"
	if identity != nil && strings.TrimSpace(identity.ConfigName) != "" {
		name = identity.ConfigName
	}
	configDir := gfconfig.GetAppConfigDir(name)
	if strings.TrimSpace(configDir) == "" {
		return ""
	}
	return filepath.Join(configDir, "config.yaml")
}
