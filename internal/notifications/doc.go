// Package notifications delivers operator alerts via ntfy.
//
// The orchestrator calls NotifyItemDead when an item exhausts its attempts and
// NotifyError for failures it cannot recover from on its own. When no ntfy
// topic is configured, or dead-letter alerts are disabled, NewService returns a
// no-op implementation so callers never need to nil-check.
package notifications
