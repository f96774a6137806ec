// Package app contains the core application logic. It wires configuration
// loading, state restoration, the execution engine, and the status server
// into one lifecycle, decoupled from any specific entrypoint like a CLI.
package app
