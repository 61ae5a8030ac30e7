// Package redisstore implements queue.AdminStore on Redis.
//
// Each item is a hash at <prefix>item:<id>. Queued items are indexed in one
// sorted set per priority scored by scheduled_for (unix microseconds); ties
// fall back to member order, which for ULID ids is creation order. Claims and
// stale recovery run as Lua scripts so selection and transition are atomic;
// Complete, Fail, and Retry use WATCH/MULTI optimistic transactions.
//
// Scripts address item hashes by prefix rather than declared keys, so the
// store expects a single Redis node rather than a cluster.
package redisstore
