// Package postgres persists posts, slot configuration, and the publish
// attempt log in PostgreSQL, implementing queue.Repository on pgx/v5.
//
// Status transitions are single UPDATE statements guarded by the expected
// source status in the WHERE clause, which gives the compare-and-set
// semantics the queue and dispatcher rely on without explicit row locks.
// Schema migrations are embedded and applied through pg.Migrate.
package postgres
