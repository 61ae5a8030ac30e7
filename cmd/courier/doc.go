// Command courier runs and manages the courier task queue daemon.
//
// `courier run` hosts the daemon in the foreground; `courier start` launches
// it detached. Queue commands talk to the daemon over its control socket and
// fall back to opening the store directly when no daemon is running.
package main
