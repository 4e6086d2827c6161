package output

import (
	"fmt"
	"strings"

	"github.com/idscout/idscout/internal/core"
)

// MarkdownFormatter renders reports as a markdown table.
type MarkdownFormatter struct{}

// FormatReport renders a scan report as Markdown.
func (f *MarkdownFormatter) FormatReport(report *core.ScanReport) (string, error) {
	if report == nil {
		return "", nil
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("## Scan %s\n\n", escapeMarkdownCell(report.RunID)))
	sb.WriteString(fmt.Sprintf("**Verdict**: `%s` (%s)\n", report.Verdict, verdictLabel(report.Verdict)))
	if report.DiscoveryError != "" {
		sb.WriteString(fmt.Sprintf("\n**Discovery failed**: %s\n", report.DiscoveryError))
	} else if report.Cause != "" {
		sb.WriteString(fmt.Sprintf("\n**Cause**: %s\n", report.Cause))
	}

	if rows := interesting(report); len(rows) > 0 {
		sb.WriteString("\n| Database | Container | Status | Notes |\n")
		sb.WriteString("|----------|-----------|--------|-------|\n")
		for _, outcome := range rows {
			sb.WriteString(fmt.Sprintf("| %s | %s | %s | %s |\n",
				escapeMarkdownCell(outcome.Target.Database),
				escapeMarkdownCell(outcome.Target.Container),
				escapeMarkdownCell(string(outcome.Status)),
				escapeMarkdownCell(notes(outcome)),
			))
		}
	}

	sb.WriteString(fmt.Sprintf("\n**Summary**: %s\n", summary(report)))
	return sb.String(), nil
}

func escapeMarkdownCell(value string) string {
	return strings.ReplaceAll(value, "|", "\\|")
}
