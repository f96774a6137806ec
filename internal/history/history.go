// Package history is the append-only, file-backed record of past runs. It
// backs the frequency gate: "when did component X last succeed" must be
// answerable without replaying the whole log.
package history

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"sync"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/vk/conductor/internal/ctxlog"
	"github.com/vk/conductor/internal/report"
)

// maxRuns bounds the persisted log so the file never grows without limit.
const maxRuns = 50

// Store holds the loaded history plus any runs appended during this
// invocation. Multiple workers never touch it directly; the engine appends
// exactly once, at run end, but the mutex keeps concurrent readers safe.
type Store struct {
	mu   sync.RWMutex
	file historyFile
}

type historyFile struct {
	Runs []*report.Run `yaml:"runs"`
	// LastSuccessfulRun marks the most recent fully successful invocation.
	LastSuccessfulRun time.Time `yaml:"last_successful_run,omitempty"`
}

// Load reads the history file. A missing or corrupt file is treated as "no
// prior runs": every component becomes eligible by frequency, and the run
// proceeds.
func Load(ctx context.Context, path string) *Store {
	logger := ctxlog.FromContext(ctx)
	s := &Store{}

	data, err := os.ReadFile(path)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			logger.Warn("Could not read execution history, treating as empty.", "path", path, "error", err)
		}
		return s
	}
	if err := yaml.Unmarshal(data, &s.file); err != nil {
		logger.Warn("Corrupt execution history, treating as empty.", "path", path, "error", err)
		s.file = historyFile{}
		return s
	}
	logger.Debug("Execution history loaded.", "runs", len(s.file.Runs))
	return s
}

// Append adds a finished run to the log, trimming to the newest maxRuns.
func (s *Store) Append(run *report.Run) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.file.Runs = append(s.file.Runs, run)
	if len(s.file.Runs) > maxRuns {
		s.file.Runs = s.file.Runs[len(s.file.Runs)-maxRuns:]
	}
	if run.Success {
		s.file.LastSuccessfulRun = run.End
	}
}

// LastSuccess returns when the component last ended completed, scanning
// newest-first. ok is false when the component has never succeeded. A
// skipped-unchanged outcome also counts: the component's data was verified
// current at that time.
func (s *Store) LastSuccess(componentID string) (time.Time, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for i := len(s.file.Runs) - 1; i >= 0; i-- {
		rec, ok := s.file.Runs[i].Records[componentID]
		if !ok {
			continue
		}
		switch rec.Status {
		case report.StatusCompleted, report.StatusSkippedUnchanged:
			return rec.End, true
		}
	}
	return time.Time{}, false
}

// Runs returns the retained runs, oldest first.
func (s *Store) Runs() []*report.Run {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*report.Run, len(s.file.Runs))
	copy(out, s.file.Runs)
	return out
}

// Save writes the log back to disk.
func (s *Store) Save(ctx context.Context, path string) error {
	s.mu.RLock()
	data, err := yaml.Marshal(&s.file)
	s.mu.RUnlock()
	if err != nil {
		return fmt.Errorf("encoding execution history: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing execution history: %w", err)
	}
	ctxlog.FromContext(ctx).Debug("Execution history saved.", "path", path)
	return nil
}
