// Package orchestrator owns courier's worker pools.
//
// Start spawns interactive workers (priority band 0-1, short poll), background
// workers (band 2-3, long poll) and one housekeeping loop. Workers claim items
// through queue.Store.Dequeue, hand them to a Processor (normally the
// dispatch.Dispatcher), and report the Result back with Complete or Fail. The
// store's atomic claim is the only mutual exclusion between workers; the
// orchestrator itself only guards its own bookkeeping.
//
// Stop drains: housekeeping is cancelled first, workers get the drain timeout
// to finish their current item, stragglers are force-cancelled, and a final
// RequeueStale(0) returns anything still PROCESSING to QUEUED.
//
// Lifecycle: STOPPED -> STARTING -> RUNNING -> STOPPING -> STOPPED.
package orchestrator
