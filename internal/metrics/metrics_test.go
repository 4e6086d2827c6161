package metrics

import (
	"testing"
	"time"

	"github.com/fulmenhq/gofulmen/telemetry"
	telemetrytesting "github.com/fulmenhq/gofulmen/telemetry/testing"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/idscout/idscout/internal/observability"
)

func setupTelemetry(t *testing.T) *telemetrytesting.FakeCollector {
	t.Helper()

	collector := telemetrytesting.NewFakeCollector()
	sys, err := telemetry.NewSystem(&telemetry.Config{Enabled: true, Emitter: collector})
	require.NoError(t, err)

	original := observability.TelemetrySystem
	observability.TelemetrySystem = sys
	t.Cleanup(func() { observability.TelemetrySystem = original })
	return collector
}

func TestScanMetrics(t *testing.T) {
	collector := setupTelemetry(t)

	RecordScan("violation_found", 120*time.Millisecond)
	RecordProbeOutcome("cancelled", 5*time.Millisecond)
	RecordProbeOutcome("violation", 7*time.Millisecond)
	RecordThrottle()
	RecordDiscoveryFailure()
	SetServerStartTime(time.Now().Unix())

	assert.Equal(t, 1, collector.CountMetricsByName(ScanRunsTotal))
	assert.Positive(t, collector.CountMetricsByName(ScanDuration))
	assert.Equal(t, 2, collector.CountMetricsByName(ProbeOutcomesTotal))
	assert.Positive(t, collector.CountMetricsByName(ProbeDuration))
	assert.Equal(t, 1, collector.CountMetricsByName(ProbeThrottlesTotal))
	assert.Equal(t, 1, collector.CountMetricsByName(DiscoveryFailuresTotal))
	assert.Positive(t, collector.CountMetricsByName(ServerStartTime))
}

func TestErrorMetrics(t *testing.T) {
	collector := setupTelemetry(t)

	RecordError("SCAN_FAILED", 502)
	RecordErrorByEndpoint("/v1/scans", "SCAN_FAILED")
	RecordBackendError("sql", "probe", 403)
	RecordPanic()

	assert.Equal(t, 1, collector.CountMetricsByName(ErrorsTotalName))
	assert.Equal(t, 1, collector.CountMetricsByName(ErrorsByEndpointName))
	assert.Equal(t, 1, collector.CountMetricsByName(BackendErrorsTotalName))
	assert.Equal(t, 1, collector.CountMetricsByName(PanicsTotalName))
}

func TestMetricsWithoutTelemetryAreNoops(t *testing.T) {
	original := observability.TelemetrySystem
	observability.TelemetrySystem = nil
	t.Cleanup(func() { observability.TelemetrySystem = original })

	assert.NotPanics(t, func() {
		RecordScan("no_violation_found", time.Second)
		RecordProbeOutcome("clean", time.Second)
		RecordThrottle()
		RecordDiscoveryFailure()
		RecordError("INTERNAL_ERROR", 500)
		RecordBackendError("mongo", "count", 0)
		SetServerStartTime(0)
	})
}
