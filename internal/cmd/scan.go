package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/idscout/idscout/internal/core"
	"github.com/idscout/idscout/internal/core/backend"
	"github.com/idscout/idscout/internal/observability"
	"github.com/idscout/idscout/internal/output"
)

var scanOutput string

var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Scan the configured account for oversized identifiers",
	Long: `Scan every container of the configured account for a document whose
identifier is longer than 990 characters.

Exit codes:
  0  no identifier longer than 990 characters
  2  at least one oversized identifier was found
  1  the scan could not reach a verdict`,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		format, err := output.ParseFormat(scanOutput)
		if err != nil {
			return failure(fmt.Errorf("invalid --output: %w", err))
		}

		cfg, err := loadConfig(cmd)
		if err != nil {
			return failure(fmt.Errorf("load config: %w", err))
		}
		if err := cfg.Validate(); err != nil {
			return failure(fmt.Errorf("invalid config: %w", err))
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		if timeout := cfg.Scan.Timeout; timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, timeout)
			defer cancel()
		}

		logger := observability.CLILogger
		opts := cfg.ScanOptions()
		logger.Debug("Starting scan",
			zap.String("api_type", cfg.Account.APIType),
			zap.Bool("index_assist", opts.IndexAssist),
			zap.Int("shrink_base", opts.Base()),
			zap.Int("max_concurrency", opts.MaxConcurrency))

		started := time.Now()
		report, err := backend.NewRunner(cfg, logger).RunScan(ctx, opts)
		if err != nil {
			return failure(err)
		}

		if err := output.Write(cmd.OutOrStdout(), format, report); err != nil {
			return failure(fmt.Errorf("write report: %w", err))
		}

		logger.Debug("Scan finished",
			zap.String("run_id", report.RunID),
			zap.String("verdict", report.Verdict.String()),
			zap.Duration("elapsed", time.Since(started)))

		return verdictResult(report.Verdict)
	},
}

func init() {
	rootCmd.AddCommand(scanCmd)

	scanCmd.Flags().Bool("index-assist", false, "use the precomputed identifier length property")
	scanCmd.Flags().Int("shrink-base", core.DefaultShrinkBase, "factor the batch size shrinks by on every throttled retry")
	scanCmd.Flags().Int("max-concurrency", 0, "maximum concurrent probes (0 = unbounded)")
	scanCmd.Flags().Duration("timeout", 0, "abort the scan after this long (0 = no limit)")
	scanCmd.Flags().StringVarP(&scanOutput, "output", "o", string(output.FormatTable), "output format: table, json, yaml, markdown")

	_ = viper.BindPFlag("scan.index_assist", scanCmd.Flags().Lookup("index-assist"))
	_ = viper.BindPFlag("scan.shrink_base", scanCmd.Flags().Lookup("shrink-base"))
	_ = viper.BindPFlag("scan.max_concurrency", scanCmd.Flags().Lookup("max-concurrency"))
	_ = viper.BindPFlag("scan.timeout", scanCmd.Flags().Lookup("timeout"))
}
