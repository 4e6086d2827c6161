// Package output renders scan reports for the terminal and for machines.
package output

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/idscout/idscout/internal/core"
)

// Format represents an output format.
type Format string

const (
	FormatTable    Format = "table"
	FormatJSON     Format = "json"
	FormatYAML     Format = "yaml"
	FormatMarkdown Format = "markdown"
)

// Formatter renders a scan report.
type Formatter interface {
	FormatReport(report *core.ScanReport) (string, error)
}

// ParseFormat validates and normalizes a format string.
func ParseFormat(value string) (Format, error) {
	normalized := strings.ToLower(strings.TrimSpace(value))
	switch normalized {
	case "", string(FormatTable):
		return FormatTable, nil
	case string(FormatJSON):
		return FormatJSON, nil
	case string(FormatYAML), "yml":
		return FormatYAML, nil
	case string(FormatMarkdown), "md":
		return FormatMarkdown, nil
	default:
		return "", fmt.Errorf("unsupported output format: %s", value)
	}
}

// NewFormatter returns a formatter for the requested format.
func NewFormatter(format Format) Formatter {
	switch format {
	case FormatJSON:
		return &JSONFormatter{Indent: true}
	case FormatYAML:
		return &YAMLFormatter{}
	case FormatMarkdown:
		return &MarkdownFormatter{}
	default:
		return &TableFormatter{}
	}
}

// Write renders report in format and writes it to w with a trailing newline.
func Write(w io.Writer, format Format, report *core.ScanReport) error {
	rendered, err := NewFormatter(format).FormatReport(report)
	if err != nil {
		return err
	}
	if rendered == "" {
		return nil
	}
	if !strings.HasSuffix(rendered, "\n") {
		rendered += "\n"
	}
	_, err = io.WriteString(w, rendered)
	return err
}

// interesting returns the outcomes worth listing in human output: clean
// probes are summarized, everything else is shown.
func interesting(report *core.ScanReport) []core.ProbeOutcome {
	var out []core.ProbeOutcome
	for _, outcome := range report.Outcomes {
		if outcome.Status != core.ProbeClean {
			out = append(out, outcome)
		}
	}
	return out
}

func summary(report *core.ScanReport) string {
	parts := []string{fmt.Sprintf("%d targets", report.Targets)}
	for _, status := range []core.ProbeStatus{core.ProbeClean, core.ProbeViolation, core.ProbeFatal, core.ProbeCancelled} {
		if n := report.Count(status); n > 0 {
			parts = append(parts, fmt.Sprintf("%d %s", n, status))
		}
	}
	return strings.Join(parts, ", ")
}

func elapsed(report *core.ScanReport) string {
	if report.StartedAt.IsZero() || report.FinishedAt.IsZero() {
		return ""
	}
	return report.FinishedAt.Sub(report.StartedAt).Round(time.Millisecond).String()
}

func verdictLabel(v core.ScanVerdict) string {
	switch v {
	case core.VerdictNoViolationFound:
		return "no identifier longer than " + fmt.Sprint(core.MaxIDLength) + " characters"
	case core.VerdictViolationFound:
		return "found an identifier longer than " + fmt.Sprint(core.MaxIDLength) + " characters"
	default:
		return "scan failed"
	}
}

func notes(outcome core.ProbeOutcome) string {
	var parts []string
	if outcome.Retries > 0 {
		parts = append(parts, fmt.Sprintf("%d throttled retries", outcome.Retries))
	}
	if outcome.BatchSize > 0 {
		parts = append(parts, fmt.Sprintf("batch %d", outcome.BatchSize))
	}
	if outcome.Error != "" {
		parts = append(parts, outcome.Error)
	}
	return strings.Join(parts, "; ")
}
