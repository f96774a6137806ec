package perfmon

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/vk/conductor/internal/ctxlog"
)

type metricsFile struct {
	Components map[string][]Sample `yaml:"components"`
}

// Load restores recorded windows from path. Missing or corrupt metrics mean
// trend analysis starts over; never fatal.
func (m *Monitor) Load(ctx context.Context, path string) {
	logger := ctxlog.FromContext(ctx)

	data, err := os.ReadFile(path)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			logger.Warn("Could not read metrics, starting fresh.", "path", path, "error", err)
		}
		return
	}
	var file metricsFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		logger.Warn("Corrupt metrics file, starting fresh.", "path", path, "error", err)
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	for id, window := range file.Components {
		if len(window) > windowSize {
			window = window[len(window)-windowSize:]
		}
		m.windows[id] = window
	}
	logger.Debug("Metrics loaded.", "components", len(file.Components))
}

// Save writes the windows to path.
func (m *Monitor) Save(ctx context.Context, path string) error {
	m.mu.Lock()
	file := metricsFile{Components: make(map[string][]Sample, len(m.windows))}
	for id, window := range m.windows {
		file.Components[id] = append([]Sample(nil), window...)
	}
	m.mu.Unlock()

	data, err := yaml.Marshal(&file)
	if err != nil {
		return fmt.Errorf("encoding metrics: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing metrics: %w", err)
	}
	ctxlog.FromContext(ctx).Debug("Metrics saved.", "path", path)
	return nil
}
