package metrics

import (
	"strconv"

	"github.com/idscout/idscout/internal/observability"
)

// Metric names
const (
	ErrorsTotalName        = "errors_total"
	PanicsTotalName        = "panics_total"
	ErrorsByEndpointName   = "errors_by_endpoint_total"
	BackendErrorsTotalName = "backend_errors_total"
)

// RecordError records an HTTP error response by code and status
func RecordError(errorCode string, httpStatus int) {
	if observability.TelemetrySystem == nil {
		return
	}
	_ = observability.TelemetrySystem.Counter(
		ErrorsTotalName,
		1,
		map[string]string{
			"error_code":  errorCode,
			"http_status": strconv.Itoa(httpStatus),
		},
	)
}

// RecordPanic records a recovered panic in the HTTP server
func RecordPanic() {
	if observability.TelemetrySystem != nil {
		_ = observability.TelemetrySystem.Counter(PanicsTotalName, 1, nil)
	}
}

// RecordErrorByEndpoint records an error response against the route it came from
func RecordErrorByEndpoint(endpoint string, errorCode string) {
	if observability.TelemetrySystem == nil {
		return
	}
	_ = observability.TelemetrySystem.Counter(
		ErrorsByEndpointName,
		1,
		map[string]string{
			"endpoint":   endpoint,
			"error_code": errorCode,
		},
	)
}

// RecordBackendError records an unexpected response from a remote backend.
// operation is one of list_databases, list_containers, probe, count.
func RecordBackendError(backend string, operation string, status int) {
	if observability.TelemetrySystem == nil {
		return
	}
	_ = observability.TelemetrySystem.Counter(
		BackendErrorsTotalName,
		1,
		map[string]string{
			"backend":   backend,
			"operation": operation,
			"status":    strconv.Itoa(status),
		},
	)
}
