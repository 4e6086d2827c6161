package output

import (
	"gopkg.in/yaml.v3"

	"github.com/idscout/idscout/internal/core"
)

// YAMLFormatter renders reports as YAML.
type YAMLFormatter struct{}

// FormatReport renders a scan report as YAML.
func (f *YAMLFormatter) FormatReport(report *core.ScanReport) (string, error) {
	if report == nil {
		return "", nil
	}
	data, err := yaml.Marshal(report)
	if err != nil {
		return "", err
	}
	return string(data), nil
}
