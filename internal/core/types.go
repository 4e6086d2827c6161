package core

import "time"

// MaxIDLength is the longest document identifier the migration target accepts.
// Any identifier longer than this is a violation.
const MaxIDLength = 990

// DefaultShrinkBase halves the batch size on every throttled retry.
const DefaultShrinkBase = 2

// ScanTarget identifies one container inside one database.
type ScanTarget struct {
	Database  string `json:"database" yaml:"database"`
	Container string `json:"container" yaml:"container"`
}

// ID returns the partition identifier used as the throttle state key.
func (t ScanTarget) ID() string {
	return t.Database + "/" + t.Container
}

// ScanVerdict is the single result of a scan run.
type ScanVerdict int

const (
	VerdictNoViolationFound  ScanVerdict = 0
	VerdictViolationFound    ScanVerdict = 1
	VerdictUnexpectedFailure ScanVerdict = 2
)

func (v ScanVerdict) String() string {
	switch v {
	case VerdictNoViolationFound:
		return "no_violation_found"
	case VerdictViolationFound:
		return "violation_found"
	case VerdictUnexpectedFailure:
		return "unexpected_failure"
	default:
		return "unknown"
	}
}

// MarshalText renders the verdict in its snake_case form for JSON and YAML.
func (v ScanVerdict) MarshalText() ([]byte, error) {
	return []byte(v.String()), nil
}

// ProbeStatus is the terminal state of one partition probe.
type ProbeStatus string

const (
	ProbeClean     ProbeStatus = "clean"
	ProbeViolation ProbeStatus = "violation"
	ProbeFatal     ProbeStatus = "fatal"
	ProbeCancelled ProbeStatus = "cancelled"
)

// ProbeOutcome reports how one partition probe ended.
type ProbeOutcome struct {
	Target    ScanTarget    `json:"target" yaml:"target"`
	Status    ProbeStatus   `json:"status" yaml:"status"`
	Err       error         `json:"-" yaml:"-"`
	Error     string        `json:"error,omitempty" yaml:"error,omitempty"`
	Retries   int           `json:"retries" yaml:"retries"`
	BatchSize int64         `json:"batch_size,omitempty" yaml:"batch_size,omitempty"`
	Duration  time.Duration `json:"duration" yaml:"duration"`
}

// ViolationConfirmed reports whether the probe found an oversized identifier.
func (o ProbeOutcome) ViolationConfirmed() bool {
	return o.Status == ProbeViolation
}

// ScanOptions tunes a scan run.
type ScanOptions struct {
	// IndexAssist asks backends to evaluate the predicate against a
	// precomputed length property instead of computing it per document.
	IndexAssist bool `json:"index_assist" yaml:"index_assist"`

	// ShrinkBase is the exponential factor applied to the batch size per
	// throttled retry. Values below 2 fall back to DefaultShrinkBase.
	ShrinkBase int `json:"shrink_base" yaml:"shrink_base"`

	// MaxConcurrency bounds in-flight probes; 0 runs every probe at once.
	MaxConcurrency int `json:"max_concurrency" yaml:"max_concurrency"`
}

// Base returns the effective shrink base.
func (o ScanOptions) Base() int {
	if o.ShrinkBase < 2 {
		return DefaultShrinkBase
	}
	return o.ShrinkBase
}

// ScanReport captures everything a caller needs to present one run.
type ScanReport struct {
	RunID          string         `json:"run_id" yaml:"run_id"`
	Verdict        ScanVerdict    `json:"verdict" yaml:"verdict"`
	Targets        int            `json:"targets" yaml:"targets"`
	Outcomes       []ProbeOutcome `json:"outcomes" yaml:"outcomes"`
	Cause          string         `json:"cause,omitempty" yaml:"cause,omitempty"`
	DiscoveryError string         `json:"discovery_error,omitempty" yaml:"discovery_error,omitempty"`
	StartedAt      time.Time      `json:"started_at" yaml:"started_at"`
	FinishedAt     time.Time      `json:"finished_at" yaml:"finished_at"`
}

// Count returns how many outcomes ended in the given status.
func (r *ScanReport) Count(status ProbeStatus) int {
	if r == nil {
		return 0
	}
	n := 0
	for _, outcome := range r.Outcomes {
		if outcome.Status == status {
			n++
		}
	}
	return n
}
