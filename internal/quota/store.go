package quota

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/vk/conductor/internal/ctxlog"
)

// stateFile is the on-disk shape of the persisted counters.
type stateFile struct {
	Endpoints map[string]*counter `yaml:"endpoints"`
}

// Load restores persisted counters from path. A missing or unreadable file
// yields pristine counters; quota state is advisory, never fatal.
func (t *Tracker) Load(ctx context.Context, path string) {
	logger := ctxlog.FromContext(ctx)

	data, err := os.ReadFile(path)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			logger.Warn("Could not read quota state, starting fresh.", "path", path, "error", err)
		}
		return
	}

	var state stateFile
	if err := yaml.Unmarshal(data, &state); err != nil {
		logger.Warn("Corrupt quota state, starting fresh.", "path", path, "error", err)
		return
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	for id, c := range state.Endpoints {
		if _, ok := t.endpoints[id]; ok {
			t.counters[id] = c
		}
	}
	logger.Debug("Quota state loaded.", "endpoints", len(state.Endpoints))
}

// Save writes the counters to path.
func (t *Tracker) Save(ctx context.Context, path string) error {
	t.mu.Lock()
	state := stateFile{Endpoints: make(map[string]*counter, len(t.counters))}
	for id, c := range t.counters {
		copied := *c
		state.Endpoints[id] = &copied
	}
	t.mu.Unlock()

	data, err := yaml.Marshal(&state)
	if err != nil {
		return fmt.Errorf("encoding quota state: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing quota state: %w", err)
	}
	ctxlog.FromContext(ctx).Debug("Quota state saved.", "path", path)
	return nil
}
