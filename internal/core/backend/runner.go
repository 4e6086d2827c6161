package backend

import (
	"context"
	"fmt"
	"time"

	"github.com/fulmenhq/gofulmen/logging"
	"go.uber.org/zap"

	"github.com/idscout/idscout/internal/config"
	"github.com/idscout/idscout/internal/core"
	"github.com/idscout/idscout/internal/core/engine"
)

const closeTimeout = 5 * time.Second

// Runner opens a fresh backend for every scan and closes it afterwards.
type Runner struct {
	Config *config.Config
	Logger *logging.Logger

	// open is replaced in tests.
	open func(ctx context.Context, cfg *config.Config) (Client, error)
}

// NewRunner returns a Runner for cfg.
func NewRunner(cfg *config.Config, logger *logging.Logger) *Runner {
	return &Runner{Config: cfg, Logger: logger, open: Open}
}

// RunScan opens the backend and runs one scan. The error is non-nil only
// when the backend could not be opened.
func (r *Runner) RunScan(ctx context.Context, opts core.ScanOptions) (*core.ScanReport, error) {
	open := r.open
	if open == nil {
		open = Open
	}

	client, err := open(ctx, r.Config)
	if err != nil {
		return nil, fmt.Errorf("run scan: %w", err)
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), closeTimeout)
		defer cancel()
		if err := client.Close(closeCtx); err != nil && r.Logger != nil {
			r.Logger.Warn("closing backend failed", zap.Error(err))
		}
	}()

	scanner := &engine.Scanner{Logger: r.Logger}
	return scanner.Run(ctx, client, opts), nil
}
