// Package sqlitestore implements queue.AdminStore on an embedded SQLite
// database (modernc.org/sqlite, no cgo).
//
// Claims are a single UPDATE ... RETURNING statement so selection and the
// QUEUED to PROCESSING transition cannot be split. Fail runs in an immediate
// transaction and updates with a status guard. Timestamps are stored as
// fixed-width UTC strings so ordering by text matches ordering by time.
package sqlitestore
