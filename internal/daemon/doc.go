// Package daemon coordinates the long-running courier process.
//
// It wires configuration, the item store, and the queue orchestrator into a
// single lifecycle with flock-based locking to prevent multiple instances.
// Start gates on preflight checks, then launches the worker pools and the
// chi-based admin API. The daemon also exposes the operator helpers (list,
// show, retry, requeue-stale, purge) that the control socket and the HTTP API
// delegate to.
//
// Keep orchestration logic here: queue semantics live in the queue and
// orchestrator packages while the daemon focuses on startup, shutdown, and
// high level coordination.
package daemon
