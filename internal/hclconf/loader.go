// Package hclconf loads pipeline definitions written in HCL and translates
// them into the format-agnostic config.Model. Expressions in the files may
// reference process environment variables through the `env` object, e.g.
// `url = "${env.PTV_BASE_URL}/v3/disruptions"`.
package hclconf

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/zclconf/go-cty/cty"

	"github.com/vk/conductor/internal/config"
	"github.com/vk/conductor/internal/ctxlog"
	"github.com/vk/conductor/internal/fsutil"
)

const (
	defaultMaxConcurrent    = 3
	defaultExecutionTimeout = 120 * time.Minute
	defaultDrainGrace       = 30 * time.Second
	defaultMaxRuntime       = 30 * time.Minute
	defaultValidatorTTL     = 60 * time.Minute
	defaultCountThreshold   = 5.0
)

// Loader parses HCL pipeline files.
type Loader struct{}

// NewLoader returns a ready Loader.
func NewLoader() *Loader {
	return &Loader{}
}

// Load reads one .hcl file or every .hcl file under a directory, decodes all
// of them against a shared eval context, merges the blocks, and validates the
// resulting model. Any failure here is a fatal configuration error.
func (l *Loader) Load(ctx context.Context, path string) (*config.Model, error) {
	logger := ctxlog.FromContext(ctx)

	files, err := collectFiles(path)
	if err != nil {
		return nil, &config.Error{Reason: err.Error()}
	}
	if len(files) == 0 {
		return nil, &config.Error{Reason: fmt.Sprintf("no .hcl files found at %s", path)}
	}
	logger.Debug("Loading pipeline definition.", "files", len(files))

	parser := hclparse.NewParser()
	evalCtx := envEvalContext()

	merged := &rootConfig{}
	for _, file := range files {
		hclFile, diags := parser.ParseHCLFile(file)
		if diags.HasErrors() {
			return nil, &config.Error{Reason: diags.Error()}
		}
		var root rootConfig
		if diags := gohcl.DecodeBody(hclFile.Body, evalCtx, &root); diags.HasErrors() {
			return nil, &config.Error{Reason: diags.Error()}
		}
		mergeRoot(merged, &root)
	}

	model, err := translate(merged)
	if err != nil {
		return nil, err
	}
	if err := model.Validate(); err != nil {
		return nil, err
	}
	logger.Debug("Pipeline definition loaded.", "components", len(model.Components), "endpoints", len(model.Endpoints))
	return model, nil
}

func collectFiles(path string) ([]string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read pipeline path %s: %w", path, err)
	}
	if !info.IsDir() {
		return []string{path}, nil
	}
	files, err := fsutil.FindFilesByExtension(path, ".hcl")
	if err != nil {
		return nil, fmt.Errorf("scanning %s: %w", path, err)
	}
	sort.Strings(files)
	return files, nil
}

// envEvalContext exposes the process environment as the `env` object.
func envEvalContext() *hcl.EvalContext {
	vals := make(map[string]cty.Value)
	for _, kv := range os.Environ() {
		if k, v, ok := strings.Cut(kv, "="); ok && k != "" {
			vals[k] = cty.StringVal(v)
		}
	}
	return &hcl.EvalContext{
		Variables: map[string]cty.Value{
			"env": cty.ObjectVal(vals),
		},
	}
}

func mergeRoot(dst, src *rootConfig) {
	dst.Components = append(dst.Components, src.Components...)
	dst.Endpoints = append(dst.Endpoints, src.Endpoints...)
	dst.ParallelGroups = append(dst.ParallelGroups, src.ParallelGroups...)
	if src.Runtime != nil {
		dst.Runtime = src.Runtime
	}
	if src.Monitoring != nil {
		dst.Monitoring = src.Monitoring
	}
	if src.Overrides != nil {
		dst.Overrides = src.Overrides
	}
}

// translate converts the HCL schema into the agnostic model, applying
// defaults.
func translate(root *rootConfig) (*config.Model, error) {
	model := &config.Model{
		Endpoints: make(map[string]*config.Endpoint),
		Runtime: config.RuntimeSettings{
			MaxConcurrentComponents: defaultMaxConcurrent,
			ExecutionTimeout:        defaultExecutionTimeout,
			DrainGrace:              defaultDrainGrace,
		},
	}

	if rt := root.Runtime; rt != nil {
		if rt.MaxConcurrentComponents != nil {
			model.Runtime.MaxConcurrentComponents = *rt.MaxConcurrentComponents
		}
		if rt.ExecutionTimeoutMinutes != nil {
			model.Runtime.ExecutionTimeout = time.Duration(*rt.ExecutionTimeoutMinutes) * time.Minute
		}
		if rt.DrainGraceSeconds != nil {
			model.Runtime.DrainGrace = time.Duration(*rt.DrainGraceSeconds) * time.Second
		}
	}

	for _, b := range root.Components {
		c, err := translateComponent(b)
		if err != nil {
			return nil, err
		}
		model.Components = append(model.Components, c)
	}

	for _, b := range root.Endpoints {
		if _, dup := model.Endpoints[b.ID]; dup {
			return nil, &config.Error{Reason: fmt.Sprintf("duplicate endpoint id %q", b.ID)}
		}
		model.Endpoints[b.ID] = &config.Endpoint{
			ID:         b.ID,
			DailyLimit: b.DailyLimit,
			RetryAfter: time.Duration(b.RetryAfterMinutes) * time.Minute,
			Priority:   b.Priority,
			ResetHour:  b.ResetHour,
		}
	}

	for _, g := range root.ParallelGroups {
		model.ParallelGroups = append(model.ParallelGroups, g.Members)
	}

	model.Monitoring = translateMonitoring(root.Monitoring)

	if o := root.Overrides; o != nil {
		model.Overrides = config.Overrides{
			ForceRunAll:         o.ForceRunAll,
			SkipFrequencyCheck:  o.SkipFrequencyCheck,
			SkipDependencyCheck: o.SkipDependencyCheck,
			SkipChangeDetection: o.SkipChangeDetection,
			DryRun:              o.DryRun,
		}
	}
	return model, nil
}

func translateComponent(b *componentBlock) (*config.Component, error) {
	freq, err := config.ParseFrequency(b.Frequency)
	if err != nil {
		return nil, &config.Error{Reason: fmt.Sprintf("component %q: %v", b.ID, err)}
	}

	c := &config.Component{
		ID:         b.ID,
		Enabled:    b.Enabled == nil || *b.Enabled,
		Optional:   b.Optional,
		Frequency:  freq,
		DependsOn:  b.DependsOn,
		Provides:   b.Provides,
		MaxRuntime: defaultMaxRuntime,
		Endpoints:  b.Endpoints,
	}
	if b.MaxRuntimeMinutes > 0 {
		c.MaxRuntime = time.Duration(b.MaxRuntimeMinutes) * time.Minute
	}
	if b.Source != nil {
		c.Source = config.Source{URL: b.Source.URL, Path: b.Source.Path}
	}
	if cd := b.ChangeDetection; cd != nil {
		out := &config.ChangeDetection{
			HashAlgorithm:     cd.HashAlgorithm,
			ValidatorTTL:      defaultValidatorTTL,
			CountThresholdPct: defaultCountThreshold,
		}
		if out.HashAlgorithm == "" {
			out.HashAlgorithm = "sha256"
		}
		if cd.ValidatorTTLMinutes > 0 {
			out.ValidatorTTL = time.Duration(cd.ValidatorTTLMinutes) * time.Minute
		}
		if cd.CountThresholdPct != nil {
			out.CountThresholdPct = *cd.CountThresholdPct
		}
		for _, m := range cd.Methods {
			out.Methods = append(out.Methods, config.Method(m))
		}
		c.ChangeDetection = out
	}
	return c, nil
}

func translateMonitoring(b *monitoringBlock) config.Monitoring {
	mon := config.Monitoring{
		Thresholds: config.Thresholds{
			MaxExecutionTime:  60 * time.Minute,
			MaxMemoryMB:       1024,
			MaxAPIResponseMS:  30000,
			MinSuccessRatePct: 95,
		},
	}
	if b == nil {
		return mon
	}
	mon.Enabled = b.Enabled == nil || *b.Enabled
	if t := b.Thresholds; t != nil {
		if t.MaxExecutionTimeMinutes != nil {
			mon.Thresholds.MaxExecutionTime = time.Duration(*t.MaxExecutionTimeMinutes) * time.Minute
		}
		if t.MaxMemoryMB != nil {
			mon.Thresholds.MaxMemoryMB = *t.MaxMemoryMB
		}
		if t.MaxAPIResponseMS != nil {
			mon.Thresholds.MaxAPIResponseMS = *t.MaxAPIResponseMS
		}
		if t.MinSuccessRatePct != nil {
			mon.Thresholds.MinSuccessRatePct = *t.MinSuccessRatePct
		}
	}
	if a := b.Alerting; a != nil {
		mon.Alerting = config.Alerting{
			Enabled:    a.Enabled,
			Emails:     a.Emails,
			WebhookURL: a.WebhookURL,
		}
	}
	return mon
}
