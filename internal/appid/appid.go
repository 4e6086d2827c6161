// Package appid holds the static identity of the idscout binary: the names
// used for help text, config discovery, environment variables and telemetry.
package appid

import (
	"context"
	"os"
	"strings"
)

// EnvIdentityName overrides the binary name used in help output and logs.
const EnvIdentityName = "IDSCOUT_APP_NAME"

// Identity describes how the application presents itself.
type Identity struct {
	BinaryName         string
	ConfigName         string
	EnvPrefix          string
	Description        string
	TelemetryNamespace string
}

var defaultIdentity = Identity{
	BinaryName:         "idscout",
	ConfigName:         "idscout",
	EnvPrefix:          "IDSCOUT_",
	Description:        "Scan document stores for identifiers longer than 990 characters",
	TelemetryNamespace: "idscout",
}

// Get returns the application identity. The binary name can be overridden
// through EnvIdentityName for rebranded builds.
func Get(ctx context.Context) (*Identity, error) {
	if ctx != nil {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
	}

	identity := defaultIdentity
	if name := strings.TrimSpace(os.Getenv(EnvIdentityName)); name != "" {
		identity.BinaryName = name
	}
	return &identity, nil
}

// EnvKey joins the environment prefix with name, e.g. EnvKey("LOG_LEVEL").
func (i *Identity) EnvKey(name string) string {
	prefix := i.EnvPrefix
	if prefix != "" && !strings.HasSuffix(prefix, "_") {
		prefix += "_"
	}
	return prefix + strings.ToUpper(name)
}

// ViperPrefix returns the env prefix without its trailing underscore, the
// form viper.SetEnvPrefix expects.
func (i *Identity) ViperPrefix() string {
	return strings.TrimSuffix(i.EnvPrefix, "_")
}
