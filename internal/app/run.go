package app

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/vk/conductor/internal/changedetect"
	"github.com/vk/conductor/internal/ctxlog"
	"github.com/vk/conductor/internal/engine"
	"github.com/vk/conductor/internal/history"
	"github.com/vk/conductor/internal/notify"
	"github.com/vk/conductor/internal/perfmon"
	"github.com/vk/conductor/internal/quota"
	"github.com/vk/conductor/internal/report"
)

// State file names under the state directory.
const (
	historyFile      = "history.yaml"
	quotaFile        = "quota.yaml"
	fingerprintsFile = "fingerprints.yaml"
	metricsFile      = "metrics.yaml"
)

// Run executes one pipeline invocation end to end: restore persisted state,
// run the engine, persist state back, and write the JSON summary. The
// returned run is never nil on a nil error.
func (a *App) Run(ctx context.Context) (*report.Run, error) {
	ctx = ctxlog.WithLogger(ctx, a.logger)
	a.logger.Debug("App.Run method started.")

	if a.cfg.StatusPort > 0 {
		a.startStatusServer(ctx)
		defer a.stopStatusServer(ctx)
	}

	if err := os.MkdirAll(a.cfg.StateDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating state directory: %w", err)
	}

	hist := history.Load(ctx, a.statePath(historyFile))

	tracker := quota.NewTracker(a.model.Endpoints)
	tracker.Load(ctx, a.statePath(quotaFile))

	detector := changedetect.NewDetector()
	detector.Load(ctx, a.statePath(fingerprintsFile))

	monitor := perfmon.NewMonitor(a.model.Monitoring)
	monitor.Load(ctx, a.statePath(metricsFile))
	a.mu.Lock()
	a.monitor = monitor
	a.mu.Unlock()

	notifier := a.buildNotifier()

	a.setPhase("running")
	eng := engine.New(engine.Options{
		Model:    a.model,
		Graph:    a.graph,
		Registry: a.registry,
		Quota:    tracker,
		Detector: detector,
		History:  hist,
		Monitor:  monitor,
		Notifier: notifier,
	})
	run := eng.Run(ctx)

	a.mu.Lock()
	a.lastRun = run
	a.phase = "finished"
	a.mu.Unlock()

	if a.model.Overrides.DryRun {
		a.logger.Info("Dry run: state files left untouched.")
	} else {
		hist.Append(run)
		a.persistState(ctx, hist, tracker, detector, monitor)
	}

	if err := report.WriteSummary(a.outW, run); err != nil {
		return run, fmt.Errorf("writing run summary: %w", err)
	}

	a.logger.Debug("App.Run method finished.")
	return run, nil
}

// persistState writes every state file. Persistence failures are logged and
// do not change the run outcome.
func (a *App) persistState(ctx context.Context, hist *history.Store, tracker *quota.Tracker, detector *changedetect.Detector, monitor *perfmon.Monitor) {
	logger := ctxlog.FromContext(ctx)
	if err := hist.Save(ctx, a.statePath(historyFile)); err != nil {
		logger.Error("Could not persist execution history.", "error", err)
	}
	if err := tracker.Save(ctx, a.statePath(quotaFile)); err != nil {
		logger.Error("Could not persist quota state.", "error", err)
	}
	if err := detector.Save(ctx, a.statePath(fingerprintsFile)); err != nil {
		logger.Error("Could not persist fingerprint cache.", "error", err)
	}
	if err := monitor.Save(ctx, a.statePath(metricsFile)); err != nil {
		logger.Error("Could not persist performance metrics.", "error", err)
	}
}

// buildNotifier subscribes the configured channels. The webhook channel
// receives every severity; email receives warnings and errors only.
func (a *App) buildNotifier() *notify.Manager {
	manager := notify.NewManager()
	alerting := a.model.Monitoring.Alerting
	if !alerting.Enabled {
		return manager
	}
	if alerting.WebhookURL != "" {
		manager.Subscribe(notify.NewWebhookChannel(alerting.WebhookURL),
			notify.SeverityInfo, notify.SeverityWarning, notify.SeverityError)
	}
	if len(alerting.Emails) > 0 {
		manager.Subscribe(&notify.EmailChannel{Recipients: alerting.Emails},
			notify.SeverityWarning, notify.SeverityError)
	}
	return manager
}

func (a *App) statePath(name string) string {
	return filepath.Join(a.cfg.StateDir, name)
}
