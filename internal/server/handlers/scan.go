package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/idscout/idscout/internal/core"
	apperrors "github.com/idscout/idscout/internal/errors"
	"github.com/idscout/idscout/internal/observability"
)

const maxScanRequestBody = 4 << 10

// ScanRunner runs one scan against the configured account. An error means
// the scan could not start; a started scan always yields a report.
type ScanRunner interface {
	RunScan(ctx context.Context, opts core.ScanOptions) (*core.ScanReport, error)
}

// ScanRequest overrides the configured scan options for one run. Absent
// fields keep the configured value.
type ScanRequest struct {
	IndexAssist    *bool `json:"index_assist,omitempty"`
	ShrinkBase     *int  `json:"shrink_base,omitempty"`
	MaxConcurrency *int  `json:"max_concurrency,omitempty"`
}

// ScanHandler serves scan runs. Only one scan runs at a time.
type ScanHandler struct {
	Runner   ScanRunner
	Defaults core.ScanOptions

	// Timeout bounds each run; zero means the request context alone.
	Timeout time.Duration

	mu      sync.Mutex
	running bool
	since   time.Time
	last    *core.ScanReport
}

// NewScanHandler builds a handler that starts scans with defaults.
func NewScanHandler(runner ScanRunner, defaults core.ScanOptions, timeout time.Duration) *ScanHandler {
	return &ScanHandler{Runner: runner, Defaults: defaults, Timeout: timeout}
}

// Start handles POST /v1/scans.
func (h *ScanHandler) Start(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.Runner == nil {
		respondWithError(w, r, apperrors.NewUnavailableError("scanning is not configured"))
		return
	}

	opts, err := h.decodeOptions(r)
	if err != nil {
		respondWithError(w, r, apperrors.WrapInvalidInput(r.Context(), err, "invalid scan request"))
		return
	}

	if since, ok := h.acquire(time.Now().UTC()); !ok {
		respondWithError(w, r, apperrors.NewScanInProgressError(since))
		return
	}
	defer h.release()

	ctx := r.Context()
	if h.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.Timeout)
		defer cancel()
	}

	report, err := h.Runner.RunScan(ctx, opts)
	if err != nil {
		respondWithError(w, r, apperrors.ClassifyScanError(r.Context(), err))
		return
	}
	h.remember(report)

	if observability.ServerLogger != nil {
		observability.ServerLogger.Info("Scan finished",
			zap.String("run_id", report.RunID),
			zap.String("verdict", report.Verdict.String()),
			zap.Int("targets", report.Targets),
		)
	}

	if report.Verdict == core.VerdictUnexpectedFailure {
		respondWithError(w, r, apperrors.WrapScanFailure(r.Context(), report))
		return
	}
	writeJSON(w, http.StatusOK, report)
}

// Last handles GET /v1/scans/last.
func (h *ScanHandler) Last(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	report := h.last
	h.mu.Unlock()

	if report == nil {
		respondWithError(w, r, apperrors.NewNotFoundError("no scan has finished yet"))
		return
	}
	writeJSON(w, http.StatusOK, report)
}

// Ready fails while a scan holds the run slot, so readiness reflects
// whether a new scan would be accepted.
func (h *ScanHandler) Ready(ctx context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.running {
		return errors.New("scan in progress")
	}
	return nil
}

func (h *ScanHandler) decodeOptions(r *http.Request) (core.ScanOptions, error) {
	opts := h.Defaults
	if r.Body == nil {
		return opts, nil
	}

	var req ScanRequest
	decoder := json.NewDecoder(io.LimitReader(r.Body, maxScanRequestBody))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		return opts, fmt.Errorf("decode body: %w", err)
	}

	if req.IndexAssist != nil {
		opts.IndexAssist = *req.IndexAssist
	}
	if req.ShrinkBase != nil {
		if *req.ShrinkBase < 2 {
			return opts, fmt.Errorf("shrink_base must be at least 2, got %d", *req.ShrinkBase)
		}
		opts.ShrinkBase = *req.ShrinkBase
	}
	if req.MaxConcurrency != nil {
		if *req.MaxConcurrency < 0 {
			return opts, fmt.Errorf("max_concurrency must not be negative, got %d", *req.MaxConcurrency)
		}
		opts.MaxConcurrency = *req.MaxConcurrency
	}
	return opts, nil
}

// acquire claims the run slot. When a scan already holds it, acquire
// returns that scan's start time and false.
func (h *ScanHandler) acquire(now time.Time) (time.Time, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.running {
		return h.since, false
	}
	h.running = true
	h.since = now
	return now, true
}

func (h *ScanHandler) release() {
	h.mu.Lock()
	h.running = false
	h.mu.Unlock()
}

func (h *ScanHandler) remember(report *core.ScanReport) {
	h.mu.Lock()
	h.last = report
	h.mu.Unlock()
}
