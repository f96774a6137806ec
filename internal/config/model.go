package config

import "time"

// Model is the unified representation of an entire pipeline definition.
// Component order matches declaration order; the scheduler uses it as the
// deterministic tie-break between independently-ready components.
type Model struct {
	Components     []*Component
	Runtime        RuntimeSettings
	Endpoints      map[string]*Endpoint
	ParallelGroups [][]string
	Monitoring     Monitoring
	Overrides      Overrides
}

// Component is one declared unit of work. Immutable after load.
type Component struct {
	ID         string
	Enabled    bool
	Optional   bool
	Frequency  Frequency
	DependsOn  []string
	Provides   []string
	MaxRuntime time.Duration
	// Endpoints lists the quota-governed endpoint ids the component's task
	// intends to call.
	Endpoints       []string
	Source          Source
	ChangeDetection *ChangeDetection
}

// Source describes where a component's upstream data lives, for change
// detection probes. Either URL or Path may be empty.
type Source struct {
	URL  string
	Path string
}

// ChangeDetection configures the detection methods for one component.
type ChangeDetection struct {
	Methods []Method
	// HashAlgorithm applies to the content-hash method. Defaults to sha256.
	HashAlgorithm string
	// ValidatorTTL bounds how long an HTTP validator result stays fresh.
	ValidatorTTL time.Duration
	// CountThresholdPct is the record-count delta, in percent, below which
	// the count method reports unchanged.
	CountThresholdPct float64
}

// Method identifies one change detection strategy.
type Method string

const (
	MethodContentHash   Method = "content_hash"
	MethodHTTPValidator Method = "http_validator"
	MethodRecordCount   Method = "record_count"
	MethodLastModified  Method = "last_modified"
)

// Endpoint is a quota-governed external endpoint.
type Endpoint struct {
	ID         string
	DailyLimit int
	// RetryAfter is the deferral hint handed back on exhaustion. Zero means
	// "time remaining until the reset boundary".
	RetryAfter time.Duration
	Priority   bool
	// ResetHour is the local hour (0-23) at which the daily window rolls.
	ResetHour int
}

// RuntimeSettings bound the run as a whole.
type RuntimeSettings struct {
	MaxConcurrentComponents int
	ExecutionTimeout        time.Duration
	// DrainGrace is the secondary hard cutoff applied to in-flight work
	// after the global timeout fires.
	DrainGrace time.Duration
}

// Monitoring configures performance thresholds and alert routing.
type Monitoring struct {
	Enabled    bool
	Thresholds Thresholds
	Alerting   Alerting
}

// Thresholds are the limits a performance metric is compared against.
type Thresholds struct {
	MaxExecutionTime  time.Duration
	MaxMemoryMB       float64
	MaxAPIResponseMS  float64
	MinSuccessRatePct float64
}

// Alerting configures notification delivery.
type Alerting struct {
	Enabled    bool
	Emails     []string
	WebhookURL string
}

// Overrides are the per-invocation escape hatches. CLI flags take precedence
// over values declared in the pipeline file.
type Overrides struct {
	ForceRunAll         bool
	SkipFrequencyCheck  bool
	SkipDependencyCheck bool
	SkipChangeDetection bool
	DryRun              bool
}

// Component returns the component with the given id, or nil.
func (m *Model) Component(id string) *Component {
	for _, c := range m.Components {
		if c.ID == id {
			return c
		}
	}
	return nil
}
