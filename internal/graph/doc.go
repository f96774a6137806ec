// Package graph builds and validates the component dependency graph and
// computes the deterministic execution order.
//
// The graph is constructed once per invocation from the configuration model.
// Cycles, dangling references, and parallel-group violations are rejected
// here, before any component executes.
package graph
