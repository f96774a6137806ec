package changedetect

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/vk/conductor/internal/ctxlog"
)

type cacheFile struct {
	Components map[string]*Fingerprint `yaml:"components"`
}

// Load restores committed fingerprints. Missing or corrupt cache means no
// prior fingerprints: every method reports indeterminate and every
// component runs, which is the safe direction.
func (d *Detector) Load(ctx context.Context, path string) {
	logger := ctxlog.FromContext(ctx)

	data, err := os.ReadFile(path)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			logger.Warn("Could not read fingerprint cache, starting fresh.", "path", path, "error", err)
		}
		return
	}
	var cache cacheFile
	if err := yaml.Unmarshal(data, &cache); err != nil {
		logger.Warn("Corrupt fingerprint cache, starting fresh.", "path", path, "error", err)
		return
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	for id, fp := range cache.Components {
		d.committed[id] = fp
	}
	logger.Debug("Fingerprint cache loaded.", "components", len(cache.Components))
}

// Save writes committed fingerprints to disk. Staged observations from
// components that never completed are not persisted.
func (d *Detector) Save(ctx context.Context, path string) error {
	d.mu.Lock()
	cache := cacheFile{Components: make(map[string]*Fingerprint, len(d.committed))}
	for id, fp := range d.committed {
		clone := *fp
		cache.Components[id] = &clone
	}
	d.mu.Unlock()

	data, err := yaml.Marshal(&cache)
	if err != nil {
		return fmt.Errorf("encoding fingerprint cache: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing fingerprint cache: %w", err)
	}
	ctxlog.FromContext(ctx).Debug("Fingerprint cache saved.", "path", path)
	return nil
}
