// Package logs reads the daemon log file for the CLI and the control socket.
//
// Tail returns either the last N lines or everything after a byte offset, and
// can wait briefly for new lines so callers can implement follow mode by
// polling with the returned offset.
package logs
