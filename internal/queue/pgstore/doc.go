// Package pgstore implements queue.AdminStore on PostgreSQL through the pgx
// database/sql driver. Schema changes are goose migrations embedded in the
// binary and applied on Open.
//
// Claims use UPDATE ... WHERE id = (SELECT ... FOR UPDATE SKIP LOCKED), so
// concurrent workers in any number of processes never block on or share a row.
package pgstore
