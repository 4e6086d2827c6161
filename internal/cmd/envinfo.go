package cmd

import (
	"fmt"
	"runtime"
	"strings"

	"github.com/fulmenhq/gofulmen/crucible"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/idscout/idscout/internal/config"
	"github.com/idscout/idscout/internal/observability"
)

var envInfoCmd = &cobra.Command{
	Use:   "envinfo",
	Short: "Display environment information",
	Long:  "Display environment, configuration, and version information. Secrets are reported as set or not set.",
	Run: func(cmd *cobra.Command, args []string) {
		logger := observability.CLILogger
		version := crucible.GetVersion()
		identity := GetAppIdentity()

		logger.Info("=== idscout Environment Information ===")
		logger.Info("")

		logger.Info("Application:")
		logger.Info("  Name:       " + identity.BinaryName)
		logger.Info("  Version:    " + versionInfo.Version)
		logger.Info("  Commit:     " + versionInfo.Commit)
		logger.Info("  Built:      " + versionInfo.BuildDate)
		logger.Info("")

		logger.Info("SSOT:")
		logger.Info("  Gofulmen:   "+version.Gofulmen, zap.String("gofulmen_version", version.Gofulmen))
		logger.Info("  Crucible:   "+version.Crucible, zap.String("crucible_version", version.Crucible))
		logger.Info("")

		logger.Info("Runtime:")
		logger.Info("  Go Version: "+runtime.Version(), zap.String("go_version", runtime.Version()))
		logger.Info("  GOOS:       "+runtime.GOOS, zap.String("goos", runtime.GOOS))
		logger.Info("  GOARCH:     "+runtime.GOARCH, zap.String("goarch", runtime.GOARCH))
		logger.Info(fmt.Sprintf("  NumCPU:     %d", runtime.NumCPU()), zap.Int("num_cpu", runtime.NumCPU()))
		logger.Info("")

		cfg, err := loadConfig(cmd)
		if err != nil {
			logger.Warn("Config load failed", zap.Error(err))
			return
		}

		logger.Info("Account:")
		logger.Info("  API Type:       "+cfg.Account.APIType, zap.String("api_type", cfg.Account.APIType))
		switch cfg.Account.APIType {
		case config.APITypeMongo:
			logger.Info("  Connection:     " + secretState(cfg.Account.ConnectionString))
		default:
			logger.Info("  Endpoint:       "+cfg.Account.Endpoint, zap.String("endpoint", cfg.Account.Endpoint))
			logger.Info("  Key:            " + secretState(cfg.Account.Key))
		}
		if err := cfg.Validate(); err != nil {
			logger.Warn("  Config invalid: "+err.Error(), zap.Error(err))
		}
		logger.Info("")

		logger.Info("Scan:")
		logger.Info(fmt.Sprintf("  Index Assist:   %t", cfg.Scan.IndexAssist), zap.Bool("index_assist", cfg.Scan.IndexAssist))
		logger.Info(fmt.Sprintf("  Shrink Base:    %d", cfg.Scan.ShrinkBase), zap.Int("shrink_base", cfg.Scan.ShrinkBase))
		logger.Info(fmt.Sprintf("  Concurrency:    %s", concurrencyLabel(cfg.Scan.MaxConcurrency)))
		logger.Info("  Length Property: " + cfg.Scan.ComputedProperty)
		logger.Info(fmt.Sprintf("  Pacing:         %.1f req/s, burst %d", cfg.HTTP.RequestsPerSecond, cfg.HTTP.Burst))
		logger.Info("")

		logger.Info("Server:")
		logger.Info("  Host:           "+cfg.Server.Host, zap.String("host", cfg.Server.Host))
		logger.Info(fmt.Sprintf("  Port:           %d", cfg.Server.Port), zap.Int("port", cfg.Server.Port))
		logger.Info("  Log Level:      "+cfg.Logging.Level, zap.String("log_level", cfg.Logging.Level))
		logger.Info("  Log Profile:    "+cfg.Logging.Profile, zap.String("log_profile", cfg.Logging.Profile))
		logger.Info(fmt.Sprintf("  Metrics:        %t (port %d)", cfg.Metrics.Enabled, cfg.Metrics.Port))
		logger.Info("  Config File:    "+config.DefaultConfigPath(identity), zap.String("config_file", config.DefaultConfigPath(identity)))
		logger.Info("")

		logger.Info("=== End Environment Information ===")
	},
}

func secretState(value string) string {
	if strings.TrimSpace(value) == "" {
		return "(not set)"
	}
	return "(set)"
}

func concurrencyLabel(n int) string {
	if n <= 0 {
		return "unbounded"
	}
	return fmt.Sprint(n)
}

func init() {
	rootCmd.AddCommand(envInfoCmd)
}
