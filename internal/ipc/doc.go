// Package ipc exposes daemon control over JSON-RPC on a Unix domain socket.
//
// The server registers a single "Courier" service backed by the daemon; the
// client is what the courier CLI uses when a daemon is running. Queue views
// reuse the api package DTOs so socket and HTTP callers see the same shapes.
package ipc
