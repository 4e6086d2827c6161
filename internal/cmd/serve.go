package cmd

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"github.com/fulmenhq/gofulmen/signals"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/idscout/idscout/internal/config"
	"github.com/idscout/idscout/internal/core"
	"github.com/idscout/idscout/internal/core/backend"
	errwrap "github.com/idscout/idscout/internal/errors"
	"github.com/idscout/idscout/internal/metrics"
	"github.com/idscout/idscout/internal/observability"
	"github.com/idscout/idscout/internal/server"
	"github.com/idscout/idscout/internal/server/handlers"
)

// telemetryHealthChecker ensures telemetry system and exporter are available
type telemetryHealthChecker struct{}

func (telemetryHealthChecker) CheckHealth(ctx context.Context) error {
	if observability.TelemetrySystem == nil || observability.PrometheusExporter == nil {
		return errwrap.NewInternalError("telemetry system not initialized")
	}
	return nil
}

// configHealthChecker fails when the current configuration cannot run a scan.
type configHealthChecker struct{}

func (configHealthChecker) CheckHealth(ctx context.Context) error {
	cfg := config.GetConfig()
	if cfg == nil {
		return errwrap.NewConfigInvalidError("configuration not loaded")
	}
	if err := cfg.Validate(); err != nil {
		return errwrap.WrapConfigInvalid(ctx, err, "configuration cannot run a scan")
	}
	return nil
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP server",
	Long: `Start the HTTP server that runs scans on POST /v1/scans.

Signal Handling:
  • Ctrl+C (SIGINT) or SIGTERM: Graceful shutdown
  • Ctrl+C twice within 2s: Force quit
  • SIGHUP: Reload the config file for the next scan`,
	RunE: func(cmd *cobra.Command, args []string) error {
		identity := GetAppIdentity()
		namespace := identity.TelemetryNamespace

		observability.InitServerLogger(identity.BinaryName, viper.GetString("logging.level"), namespace)
		logger := observability.ServerLogger

		cfg, err := loadConfig(cmd)
		if err != nil {
			return errwrap.WrapConfigInvalid(cmd.Context(), err, "config load failed")
		}
		if err := cfg.ValidateScan(); err != nil {
			return errwrap.WrapConfigInvalid(cmd.Context(), err, "invalid scan settings")
		}
		if err := cfg.Validate(); err != nil {
			logger.Warn("Account is not fully configured; scans will fail until it is", zap.Error(err))
		}

		if cfg.Metrics.Enabled {
			if err := observability.InitMetrics(identity.BinaryName, cfg.Metrics.Port, namespace); err != nil {
				logger.Error("Failed to initialize metrics", zap.Error(err))
				return errwrap.WrapInternal(cmd.Context(), err, "metrics initialization failed")
			}
		}

		handlers.SetBuildInfo(handlers.BuildInfo{Name: identity.BinaryName})

		opts := server.OptionsFromConfig(cfg, reloadingRunner{})
		opts.Version = versionInfo.Version
		opts.AdminToken = os.Getenv(identity.EnvKey("ADMIN_TOKEN"))
		opts.Checkers = map[string]handlers.HealthChecker{"config": configHealthChecker{}}
		if cfg.Metrics.Enabled {
			opts.Checkers["telemetry"] = telemetryHealthChecker{}
		}
		srv := server.New(opts)

		logger.Info("Initializing server",
			zap.String("service", identity.BinaryName),
			zap.String("namespace", namespace),
			zap.String("version", versionInfo.Version),
			zap.String("api_type", cfg.Account.APIType),
			zap.String("host", opts.Host),
			zap.Int("port", opts.Port),
			zap.Int("metrics_port", observability.GetMetricsPort()))

		// Shutdown handlers run LIFO: the HTTP server stops before the
		// exporter and the logger flush.
		signals.OnShutdown(func(ctx context.Context) error {
			if err := logger.Sync(); err != nil {
				logger.Warn("Logger sync returned error (may be benign)", zap.Error(err))
			}
			return nil
		})
		signals.OnShutdown(func(ctx context.Context) error {
			return observability.StopMetrics()
		})
		signals.OnShutdown(func(ctx context.Context) error {
			logger.Info("Shutting down HTTP server...")
			shutdownCtx, cancel := context.WithTimeout(ctx, srv.ShutdownTimeout())
			defer cancel()

			if err := srv.Shutdown(shutdownCtx); err != nil {
				return errwrap.WrapInternal(ctx, err, "server shutdown failed")
			}
			logger.Info("HTTP server stopped gracefully")
			return nil
		})

		signals.OnReload(func(ctx context.Context) error {
			logger.Info("Received SIGHUP: reloading config")
			if err := viper.ReadInConfig(); err != nil {
				var notFound viper.ConfigFileNotFoundError
				if !errors.As(err, &notFound) {
					logger.Error("Failed to reload config file",
						zap.String("file", viper.ConfigFileUsed()),
						zap.Error(err))
					return errwrap.WrapConfigInvalid(ctx, err, "config reload failed")
				}
			}
			if _, err := config.Load(ctx, viper.GetViper()); err != nil {
				return errwrap.WrapConfigInvalid(ctx, err, "config reload failed")
			}
			logger.Info("Configuration reloaded; the next scan uses it",
				zap.String("file", viper.ConfigFileUsed()))
			return nil
		})

		if err := signals.EnableDoubleTap(signals.DoubleTapConfig{
			Window:  2 * time.Second,
			Message: "Press Ctrl+C again within 2 seconds to force quit",
		}); err != nil {
			logger.Warn("Failed to enable double-tap force quit", zap.Error(err))
		}

		metrics.SetServerStartTime(time.Now().Unix())

		errChan := make(chan error, 1)
		go func() {
			if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errChan <- err
			}
		}()

		go func() {
			if err := signals.Listen(cmd.Context()); err != nil {
				logger.Error("Signal handler error", zap.Error(err))
				errChan <- err
			}
		}()

		if err := <-errChan; err != nil {
			return errwrap.WrapInternal(cmd.Context(), err, "server error")
		}
		return nil
	},
}

// reloadingRunner reads the current configuration on every scan so a SIGHUP
// reload applies to the next run.
type reloadingRunner struct{}

func (reloadingRunner) RunScan(ctx context.Context, opts core.ScanOptions) (*core.ScanReport, error) {
	cfg := config.GetConfig()
	if cfg == nil {
		return nil, errors.New("configuration not loaded")
	}
	if err := cfg.Validate(); err != nil {
		return nil, errwrap.WrapConfigInvalid(ctx, err, "configuration cannot run a scan")
	}
	return backend.NewRunner(cfg, observability.ServerLogger).RunScan(ctx, opts)
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().String("host", "localhost", "server host")
	serveCmd.Flags().IntP("port", "p", 8080, "server port")

	_ = viper.BindPFlag("server.host", serveCmd.Flags().Lookup("host"))
	_ = viper.BindPFlag("server.port", serveCmd.Flags().Lookup("port"))
}
