package handlers

import (
	"net/http"
	"runtime"
	"sync"

	"github.com/fulmenhq/gofulmen/crucible"

	"github.com/idscout/idscout/internal/config"
	"github.com/idscout/idscout/internal/core"
)

// BuildInfo identifies the running binary. Main fills it from ldflags.
type BuildInfo struct {
	Name      string `json:"name"`
	Version   string `json:"version"`
	Commit    string `json:"git_commit"`
	BuildDate string `json:"build_date"`
	GoVersion string `json:"go_version,omitempty"`
	Platform  string `json:"platform,omitempty"`
}

var (
	buildMu sync.RWMutex
	build   = BuildInfo{Name: "idscout", Version: "dev", Commit: "unknown", BuildDate: "unknown"}
)

// SetBuildInfo replaces the reported build metadata. Empty fields keep
// their current value.
func SetBuildInfo(info BuildInfo) {
	buildMu.Lock()
	defer buildMu.Unlock()
	if info.Name != "" {
		build.Name = info.Name
	}
	if info.Version != "" {
		build.Version = info.Version
	}
	if info.Commit != "" {
		build.Commit = info.Commit
	}
	if info.BuildDate != "" {
		build.BuildDate = info.BuildDate
	}
}

func currentBuild() BuildInfo {
	buildMu.RLock()
	defer buildMu.RUnlock()
	info := build
	info.GoVersion = runtime.Version()
	info.Platform = runtime.GOOS + "/" + runtime.GOARCH
	return info
}

// ScannerInfo describes the fixed limits every scan runs under.
type ScannerInfo struct {
	MaxIDLength       int      `json:"max_id_length"`
	DefaultShrinkBase int      `json:"default_shrink_base"`
	Backends          []string `json:"backends"`
}

// VersionResponse is the body of GET /version.
type VersionResponse struct {
	Build     BuildInfo         `json:"build"`
	Scanner   ScannerInfo       `json:"scanner"`
	Libraries map[string]string `json:"libraries"`
}

// VersionHandler reports build metadata and the scanner's limits.
func VersionHandler(w http.ResponseWriter, r *http.Request) {
	libs := crucible.GetVersion()
	writeJSON(w, http.StatusOK, VersionResponse{
		Build: currentBuild(),
		Scanner: ScannerInfo{
			MaxIDLength:       core.MaxIDLength,
			DefaultShrinkBase: core.DefaultShrinkBase,
			Backends:          []string{config.APITypeSQL, config.APITypeMongo},
		},
		Libraries: map[string]string{
			"gofulmen": libs.Gofulmen,
			"crucible": libs.Crucible,
		},
	})
}
