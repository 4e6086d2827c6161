package metrics

import (
	"time"

	"github.com/idscout/idscout/internal/observability"
)

// Scan metrics following Prometheus conventions
var (
	ScanRunsTotal          = "scan_runs_total"
	ScanDuration           = "scan_duration_ms"
	ProbeOutcomesTotal     = "probe_outcomes_total"
	ProbeDuration          = "probe_duration_ms"
	ProbeThrottlesTotal    = "probe_throttles_total"
	DiscoveryFailuresTotal = "discovery_failures_total"
	ServerStartTime        = "app_server_start_time_seconds"
)

// RecordScan records a finished scan run by verdict
func RecordScan(verdict string, duration time.Duration) {
	if observability.TelemetrySystem == nil {
		return
	}

	labels := map[string]string{"verdict": verdict}
	_ = observability.TelemetrySystem.Counter(ScanRunsTotal, 1, labels)
	_ = observability.TelemetrySystem.Histogram(ScanDuration, duration, labels)
}

// RecordProbeOutcome records the terminal status of one partition probe
func RecordProbeOutcome(status string, duration time.Duration) {
	if observability.TelemetrySystem == nil {
		return
	}

	labels := map[string]string{"status": status}
	_ = observability.TelemetrySystem.Counter(ProbeOutcomesTotal, 1, labels)
	_ = observability.TelemetrySystem.Histogram(ProbeDuration, duration, labels)
}

// RecordThrottle records one rate-limited probe request
func RecordThrottle() {
	if observability.TelemetrySystem != nil {
		_ = observability.TelemetrySystem.Counter(ProbeThrottlesTotal, 1, nil)
	}
}

// RecordDiscoveryFailure records a scan that could not enumerate its targets
func RecordDiscoveryFailure() {
	if observability.TelemetrySystem != nil {
		_ = observability.TelemetrySystem.Counter(DiscoveryFailuresTotal, 1, nil)
	}
}

// SetServerStartTime records the server start time (Unix timestamp)
func SetServerStartTime(timestamp int64) {
	if observability.TelemetrySystem != nil {
		_ = observability.TelemetrySystem.Gauge(
			ServerStartTime,
			float64(timestamp),
			nil,
		)
	}
}
