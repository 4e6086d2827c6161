package cmd

import (
	stderrors "errors"
	"fmt"
	"os"

	"github.com/fulmenhq/gofulmen/errors"
	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/fulmenhq/gofulmen/logging"
	"go.uber.org/zap"

	"github.com/idscout/idscout/internal/core"
)

// Process exit codes for the scan verdicts.
const (
	ExitNoViolation       = 0
	ExitUnexpectedFailure = 1
	ExitViolation         = 2
)

// VerdictError carries a non-clean scan verdict out of a command. Err is set
// when the scan failed before producing a report.
type VerdictError struct {
	Verdict core.ScanVerdict
	Err     error
}

func (e *VerdictError) Error() string {
	if e.Err != nil {
		return e.Err.Error()
	}
	return "scan verdict: " + e.Verdict.String()
}

func (e *VerdictError) Unwrap() error {
	return e.Err
}

// ExitCode maps the verdict onto the process exit code.
func (e *VerdictError) ExitCode() int {
	return VerdictExitCode(e.Verdict)
}

// VerdictExitCode maps a verdict onto 0, 2 or 1.
func VerdictExitCode(v core.ScanVerdict) int {
	switch v {
	case core.VerdictNoViolationFound:
		return ExitNoViolation
	case core.VerdictViolationFound:
		return ExitViolation
	default:
		return ExitUnexpectedFailure
	}
}

// AsVerdictError reports whether err carries a scan verdict.
func AsVerdictError(err error) (*VerdictError, bool) {
	var verdictErr *VerdictError
	if stderrors.As(err, &verdictErr) {
		return verdictErr, true
	}
	return nil, false
}

func verdictResult(v core.ScanVerdict) error {
	if v == core.VerdictNoViolationFound {
		return nil
	}
	return &VerdictError{Verdict: v}
}

func failure(err error) error {
	return &VerdictError{Verdict: core.VerdictUnexpectedFailure, Err: err}
}

// ExitWithCode exits the program with a semantic foundry exit code and logs the error.
// logger may be nil for failures before logger initialization.
func ExitWithCode(logger *logging.Logger, exitCode foundry.ExitCode, msg string, err error) {
	info, ok := foundry.GetExitCodeInfo(exitCode)
	if !ok {
		fmt.Fprintf(os.Stderr, "FATAL: %s: %v (exit code: %d)\n", msg, err, exitCode)
		os.Exit(int(exitCode))
	}

	if logger == nil {
		ExitWithCodeStderr(exitCode, msg, err)
		return
	}

	fields := []zap.Field{
		zap.Int("exit_code", info.Code),
		zap.String("exit_name", info.Name),
		zap.String("exit_category", info.Category),
	}

	var envelope *errors.ErrorEnvelope
	if stderrors.As(err, &envelope) {
		fields = append(fields,
			zap.String("error_code", envelope.Code),
			zap.String("error_message", envelope.Message),
			zap.String("correlation_id", envelope.CorrelationID),
		)
		if envelope.Context != nil {
			fields = append(fields, zap.Any("error_context", envelope.Context))
		}
	}

	fields = append(fields, zap.Error(err))
	logger.Error(msg, fields...)

	os.Exit(info.Code)
}

// ExitWithCodeStderr is a variant that writes to stderr without a logger.
// Use this for early failures before logger initialization.
func ExitWithCodeStderr(exitCode foundry.ExitCode, msg string, err error) {
	info, ok := foundry.GetExitCodeInfo(exitCode)
	if !ok {
		if err != nil {
			fmt.Fprintf(os.Stderr, "FATAL: %s: %v (exit code: %d)\n", msg, err, exitCode)
		} else {
			fmt.Fprintf(os.Stderr, "FATAL: %s (exit code: %d)\n", msg, exitCode)
		}
		os.Exit(int(exitCode))
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: %s: %v\n", msg, err)
	} else {
		fmt.Fprintf(os.Stderr, "FATAL: %s\n", msg)
	}
	fmt.Fprintf(os.Stderr, "Exit Code: %d (%s) - %s\n", info.Code, info.Name, info.Description)

	os.Exit(info.Code)
}
