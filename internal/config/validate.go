package config

import "fmt"

// Error is a fatal configuration error. It is the only error class that
// aborts an invocation before any component runs.
type Error struct {
	Reason string
}

func (e *Error) Error() string {
	return "invalid pipeline configuration: " + e.Reason
}

func errf(format string, args ...any) *Error {
	return &Error{Reason: fmt.Sprintf(format, args...)}
}

// Validate checks the structural invariants of the model: unique component
// ids and provides tags, resolvable dependency references, no
// self-references, well-formed parallel groups, and sane runtime settings.
// Cycle detection belongs to the graph builder, which sees the edges.
func (m *Model) Validate() error {
	ids := make(map[string]*Component, len(m.Components))
	for _, c := range m.Components {
		if c.ID == "" {
			return errf("component with empty id")
		}
		if _, dup := ids[c.ID]; dup {
			return errf("duplicate component id %q", c.ID)
		}
		ids[c.ID] = c
	}

	// Provides tags share the id namespace: a tag owned by two components,
	// or colliding with a component id, would make references ambiguous.
	provides := make(map[string]string, len(m.Components))
	for _, c := range m.Components {
		for _, tag := range c.Provides {
			if _, ok := ids[tag]; ok {
				return errf("component %q provides tag %q which collides with a component id", c.ID, tag)
			}
			if owner, dup := provides[tag]; dup {
				return errf("components %q and %q both provide %q", owner, c.ID, tag)
			}
			provides[tag] = c.ID
		}
	}

	for _, c := range m.Components {
		for _, dep := range c.DependsOn {
			if dep == c.ID {
				return errf("component %q depends on itself", c.ID)
			}
			if _, ok := ids[dep]; !ok {
				return errf("component %q depends on unknown component %q", c.ID, dep)
			}
		}
		for _, ep := range c.Endpoints {
			if _, ok := m.Endpoints[ep]; !ok {
				return errf("component %q references unknown endpoint %q", c.ID, ep)
			}
		}
		if cd := c.ChangeDetection; cd != nil {
			for _, method := range cd.Methods {
				switch method {
				case MethodContentHash, MethodHTTPValidator, MethodRecordCount, MethodLastModified:
				default:
					return errf("component %q declares unknown change detection method %q", c.ID, method)
				}
			}
		}
	}

	for gi, group := range m.ParallelGroups {
		if len(group) < 2 {
			return errf("parallel group %d needs at least two members", gi)
		}
		members := make(map[string]bool, len(group))
		for _, id := range group {
			if _, ok := ids[id]; !ok {
				return errf("parallel group %d references unknown component %q", gi, id)
			}
			if members[id] {
				return errf("parallel group %d lists %q twice", gi, id)
			}
			members[id] = true
		}
		// No dependency edge may exist between members, in either direction.
		for _, id := range group {
			for _, dep := range ids[id].DependsOn {
				if members[dep] {
					return errf("parallel group %d members %q and %q are linked by a dependency", gi, dep, id)
				}
			}
		}
	}

	for id, ep := range m.Endpoints {
		if ep.DailyLimit < 0 {
			return errf("endpoint %q has negative daily_limit", id)
		}
		if ep.ResetHour < 0 || ep.ResetHour > 23 {
			return errf("endpoint %q reset_hour %d outside 0-23", id, ep.ResetHour)
		}
	}

	if m.Runtime.MaxConcurrentComponents < 1 {
		return errf("runtime max_concurrent_components must be at least 1")
	}
	if m.Runtime.ExecutionTimeout <= 0 {
		return errf("runtime execution_timeout_minutes must be positive")
	}
	if m.Runtime.DrainGrace <= 0 {
		return errf("runtime drain_grace_seconds must be positive")
	}
	return nil
}
