// Package config defines the format-agnostic configuration model for the
// orchestrator: the declarative component graph, runtime settings, endpoint
// quotas, parallel groups, monitoring thresholds, and override flags.
//
// The model is the single source of truth for the graph and engine packages.
// It is populated by a format-specific loader (see internal/hclconf),
// validated once at load, and read-only thereafter.
package config
