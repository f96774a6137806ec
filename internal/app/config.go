package app

import "errors"

// Config holds all the necessary configuration for an App instance to run.
type Config struct {
	// ConfigPath points at a pipeline .hcl file or a directory of them.
	ConfigPath string
	// StateDir is where history, quota, fingerprint, and metrics files live.
	StateDir string

	LogFormat  string
	LogLevel   string
	StatusPort int
	// Workers overrides the configured worker count when positive.
	Workers int

	ForceRunAll         bool
	SkipFrequencyCheck  bool
	SkipDependencyCheck bool
	SkipChangeDetection bool
	DryRun              bool
}

// NewConfig validates a Config and fills defaults.
func NewConfig(cfg Config) (*Config, error) {
	if cfg.ConfigPath == "" {
		return nil, errors.New("ConfigPath is a required configuration field and cannot be empty")
	}
	if cfg.StateDir == "" {
		cfg.StateDir = "state"
	}
	return &cfg, nil
}
