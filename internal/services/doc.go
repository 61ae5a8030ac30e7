// Package services defines shared utilities consumed by the task handlers and
// external integrations.
//
// Key responsibilities:
//   - Context helpers that stamp queue item IDs, task types, worker pools, and
//     correlation identifiers for logging and tracing.
//   - Structured error markers plus the Wrap helper so failures carry a
//     classification that callers can test with errors.Is.
//
// Collaborator clients live in subpackages (gateway, llm, gemini).
package services
