// Package queue defines the work item model shared by every courier
// component and the storage contract the orchestrator depends on.
//
// An Item moves through a small state machine: QUEUED items are claimed into
// PROCESSING by exactly one worker, then either COMPLETED or, on failure,
// returned to QUEUED with a backoff until max_attempts is exhausted and the
// item is dead-lettered. FAILED is never persisted; Fail resolves it to QUEUED
// or DEAD in the same store operation.
//
// Backends live in subpackages (sqlitestore, pgstore, redisstore) and share the
// conformance suite in queuetest. Keep lifecycle rules here so backends only
// decide how to make each transition atomic.
package queue
