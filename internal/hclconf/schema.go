package hclconf

// HCL-facing schema structs. These mirror the file format exactly; the
// loader translates them into the format-agnostic config.Model.

type rootConfig struct {
	Components     []*componentBlock     `hcl:"component,block"`
	Runtime        *runtimeBlock         `hcl:"runtime,block"`
	Endpoints      []*endpointBlock      `hcl:"endpoint,block"`
	ParallelGroups []*parallelGroupBlock `hcl:"parallel_group,block"`
	Monitoring     *monitoringBlock      `hcl:"monitoring,block"`
	Overrides      *overridesBlock       `hcl:"overrides,block"`
}

type componentBlock struct {
	ID                string                `hcl:"id,label"`
	Enabled           *bool                 `hcl:"enabled,optional"`
	Optional          bool                  `hcl:"optional,optional"`
	Frequency         string                `hcl:"frequency,optional"`
	DependsOn         []string              `hcl:"depends_on,optional"`
	Provides          []string              `hcl:"provides,optional"`
	MaxRuntimeMinutes int                   `hcl:"max_runtime_minutes,optional"`
	Endpoints         []string              `hcl:"endpoints,optional"`
	Source            *sourceBlock          `hcl:"source,block"`
	ChangeDetection   *changeDetectionBlock `hcl:"change_detection,block"`
}

type sourceBlock struct {
	URL  string `hcl:"url,optional"`
	Path string `hcl:"path,optional"`
}

type changeDetectionBlock struct {
	Methods             []string `hcl:"methods"`
	HashAlgorithm       string   `hcl:"hash_algorithm,optional"`
	ValidatorTTLMinutes int      `hcl:"validator_ttl_minutes,optional"`
	CountThresholdPct   *float64 `hcl:"count_threshold_pct,optional"`
}

type runtimeBlock struct {
	MaxConcurrentComponents *int `hcl:"max_concurrent_components,optional"`
	ExecutionTimeoutMinutes *int `hcl:"execution_timeout_minutes,optional"`
	DrainGraceSeconds       *int `hcl:"drain_grace_seconds,optional"`
}

type endpointBlock struct {
	ID                string `hcl:"id,label"`
	DailyLimit        int    `hcl:"daily_limit"`
	RetryAfterMinutes int    `hcl:"retry_after_minutes,optional"`
	Priority          bool   `hcl:"priority,optional"`
	ResetHour         int    `hcl:"reset_hour,optional"`
}

type parallelGroupBlock struct {
	Members []string `hcl:"members"`
}

type monitoringBlock struct {
	Enabled    *bool            `hcl:"enabled,optional"`
	Thresholds *thresholdsBlock `hcl:"thresholds,block"`
	Alerting   *alertingBlock   `hcl:"alerting,block"`
}

type thresholdsBlock struct {
	MaxExecutionTimeMinutes *int     `hcl:"max_execution_time_minutes,optional"`
	MaxMemoryMB             *float64 `hcl:"max_memory_mb,optional"`
	MaxAPIResponseMS        *float64 `hcl:"max_api_response_ms,optional"`
	MinSuccessRatePct       *float64 `hcl:"min_success_rate_percentage,optional"`
}

type alertingBlock struct {
	Enabled    bool     `hcl:"enabled,optional"`
	Emails     []string `hcl:"email_notifications,optional"`
	WebhookURL string   `hcl:"webhook_url,optional"`
}

type overridesBlock struct {
	ForceRunAll         bool `hcl:"force_run_all,optional"`
	SkipFrequencyCheck  bool `hcl:"skip_frequency_check,optional"`
	SkipDependencyCheck bool `hcl:"skip_dependency_check,optional"`
	SkipChangeDetection bool `hcl:"skip_change_detection,optional"`
	DryRun              bool `hcl:"dry_run,optional"`
}
