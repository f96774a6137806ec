package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"

	"github.com/vk/conductor/internal/config"
	"github.com/vk/conductor/internal/ctxlog"
	"github.com/vk/conductor/internal/graph"
	"github.com/vk/conductor/internal/hclconf"
	"github.com/vk/conductor/internal/perfmon"
	"github.com/vk/conductor/internal/report"
	"github.com/vk/conductor/internal/task"
)

// App encapsulates the application's dependencies, configuration, and
// lifecycle.
type App struct {
	outW     io.Writer
	logW     io.Writer
	logger   *slog.Logger
	cfg      *Config
	model    *config.Model
	graph    *graph.Graph
	registry *task.Registry

	statusSrv *http.Server

	mu      sync.Mutex
	phase   string
	lastRun *report.Run
	monitor *perfmon.Monitor
}

// NewApp is the constructor for the main application. It loads and validates
// the pipeline configuration, applies CLI overrides onto the model, and
// builds the dependency graph. A nil registry gets an empty one, which makes
// every dispatched component fail with a missing-task error; callers are
// expected to register their tasks first.
func NewApp(outW, logW io.Writer, appConfig *Config, registry *task.Registry) (*App, error) {
	logger := newLogger(appConfig.LogLevel, appConfig.LogFormat, logW)
	ctx := ctxlog.WithLogger(context.Background(), logger)
	logger.Debug("Logger configured successfully.")

	model, err := hclconf.NewLoader().Load(ctx, appConfig.ConfigPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	logger.Debug("Configuration loaded and translated into unified model.")

	applyOverrides(model, appConfig)

	g, err := graph.Build(model)
	if err != nil {
		return nil, fmt.Errorf("failed to build dependency graph: %w", err)
	}
	logger.Debug("Dependency graph built.", "node_count", g.Len())

	if registry == nil {
		registry = task.NewRegistry()
	}

	return &App{
		outW:     outW,
		logW:     logW,
		logger:   logger,
		cfg:      appConfig,
		model:    model,
		graph:    g,
		registry: registry,
		phase:    "idle",
	}, nil
}

// applyOverrides merges CLI override flags onto the model. Flags only turn
// overrides on; a flag left unset keeps whatever the pipeline file declared.
func applyOverrides(model *config.Model, cfg *Config) {
	if cfg.ForceRunAll {
		model.Overrides.ForceRunAll = true
	}
	if cfg.SkipFrequencyCheck {
		model.Overrides.SkipFrequencyCheck = true
	}
	if cfg.SkipDependencyCheck {
		model.Overrides.SkipDependencyCheck = true
	}
	if cfg.SkipChangeDetection {
		model.Overrides.SkipChangeDetection = true
	}
	if cfg.DryRun {
		model.Overrides.DryRun = true
	}
	if cfg.Workers > 0 {
		model.Runtime.MaxConcurrentComponents = cfg.Workers
	}
}

// Model returns the loaded pipeline model. Primarily for testing.
func (a *App) Model() *config.Model {
	return a.model
}

// Registry returns the application's task registry. Primarily for testing.
func (a *App) Registry() *task.Registry {
	return a.registry
}

func (a *App) setPhase(phase string) {
	a.mu.Lock()
	a.phase = phase
	a.mu.Unlock()
}
