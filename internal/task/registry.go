package task

import (
	"fmt"
	"sort"
	"sync"
)

// Registry maps component ids to the tasks that implement them. It is
// populated during startup and read concurrently by workers afterwards.
type Registry struct {
	mu    sync.RWMutex
	tasks map[string]Task
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{tasks: make(map[string]Task)}
}

// Register binds a task to a component id, replacing any previous binding.
func (r *Registry) Register(componentID string, t Task) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tasks[componentID] = t
}

// Lookup returns the task for a component id. A missing task is a runtime
// failure for that component only, never a configuration error.
func (r *Registry) Lookup(componentID string) (Task, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tasks[componentID]
	if !ok {
		return nil, &ExecError{ComponentID: componentID, Err: fmt.Errorf("no task registered")}
	}
	return t, nil
}

// IDs returns the registered component ids, sorted.
func (r *Registry) IDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.tasks))
	for id := range r.tasks {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
