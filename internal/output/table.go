package output

import (
	"fmt"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"github.com/idscout/idscout/internal/core"
)

// TableFormatter renders reports as an ASCII table.
type TableFormatter struct{}

// FormatReport renders the verdict line followed by every probe that did
// not finish clean.
func (f *TableFormatter) FormatReport(report *core.ScanReport) (string, error) {
	if report == nil {
		return "", nil
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Verdict: %s (%s)\n", report.Verdict, verdictLabel(report.Verdict))
	if report.DiscoveryError != "" {
		fmt.Fprintf(&sb, "Discovery failed: %s\n", report.DiscoveryError)
	} else if report.Cause != "" {
		fmt.Fprintf(&sb, "Cause: %s\n", report.Cause)
	}

	rows := interesting(report)
	if len(rows) > 0 {
		t := table.NewWriter()
		t.SetStyle(table.StyleRounded)
		t.Style().Format.Footer = text.FormatDefault
		t.AppendHeader(table.Row{"Database", "Container", "Status", "Notes"})
		for _, outcome := range rows {
			t.AppendRow(table.Row{
				outcome.Target.Database,
				outcome.Target.Container,
				string(outcome.Status),
				notes(outcome),
			})
		}
		t.AppendFooter(table.Row{"", "", summary(report), elapsed(report)})
		sb.WriteString(t.Render())
		sb.WriteString("\n")
	} else {
		line := summary(report)
		if took := elapsed(report); took != "" {
			line += " in " + took
		}
		sb.WriteString(line + "\n")
	}

	return sb.String(), nil
}
