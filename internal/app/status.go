package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/vk/conductor/internal/ctxlog"
	"github.com/vk/conductor/internal/perfmon"
	"github.com/vk/conductor/internal/report"
)

// statusSnapshot is the /status response body.
type statusSnapshot struct {
	Phase    string                     `json:"phase"`
	RunID    string                     `json:"run_id,omitempty"`
	Success  *bool                      `json:"success,omitempty"`
	Counts   map[report.Status]int      `json:"counts,omitempty"`
	Insights map[string]perfmon.Insight `json:"insights,omitempty"`
}

func (a *App) healthHandler(w http.ResponseWriter, r *http.Request) {
	a.logger.Debug("Health check endpoint hit.", "remote_addr", r.RemoteAddr, "path", r.URL.Path)
	w.WriteHeader(http.StatusOK)
	fmt.Fprintln(w, "OK")
}

func (a *App) statusHandler(w http.ResponseWriter, r *http.Request) {
	a.mu.Lock()
	snap := statusSnapshot{Phase: a.phase}
	if a.lastRun != nil {
		snap.RunID = a.lastRun.ID
		success := a.lastRun.Success
		snap.Success = &success
		snap.Counts = a.lastRun.Counts()
	}
	monitor := a.monitor
	a.mu.Unlock()

	if monitor != nil {
		snap.Insights = monitor.Snapshot()
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(snap); err != nil {
		a.logger.Error("Could not encode status snapshot.", "error", err)
	}
}

// startStatusServer runs the status HTTP server in the background.
func (a *App) startStatusServer(ctx context.Context) {
	logger := ctxlog.FromContext(ctx)
	logger.Debug("Configuring status server.")

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", a.healthHandler)
	mux.HandleFunc("/status", a.statusHandler)

	addr := fmt.Sprintf(":%d", a.cfg.StatusPort)
	a.statusSrv = &http.Server{Addr: addr, Handler: mux}

	go func() {
		logger.Info("Status server starting.", "address", fmt.Sprintf("http://localhost%s/status", addr))
		if err := a.statusSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Status server failed unexpectedly.", "error", err)
		}
	}()
}

func (a *App) stopStatusServer(ctx context.Context) {
	logger := ctxlog.FromContext(ctx)
	if a.statusSrv == nil {
		return
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	logger.Debug("Shutting down status server.")
	if err := a.statusSrv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Status server shutdown failed.", "error", err)
	}
}
