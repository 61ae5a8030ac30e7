// Package api defines wire-format types and converters for the IPC and HTTP
// API layer. It translates internal queue and orchestrator models into
// transport-friendly DTOs that the CLI and other consumers can render without
// coupling to internal types.
//
// # Key Types
//
// QueueItem: transport representation of a queue entry including attempts,
// scheduling timestamps, and producer identity.
//
// QueueStatus: orchestrator lifecycle state, pool sizes, and per-status counts.
//
// DaemonStatus: aggregated runtime information including preflight checks.
//
// EnqueueRequest: producer input accepted by both the HTTP API and the control
// socket, validated with struct tags.
//
// # Design Notes
//
// DTOs use camelCase JSON tags. Internal enums (queue.Status, queue.Priority,
// queue.TaskType) are exposed as lowercase strings. Timestamps use RFC3339 with
// milliseconds.
package api
