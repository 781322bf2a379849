// Package pg bootstraps the PostgreSQL layer of the publishing engine: a
// pgx/v5 connection pool with startup retries, goose schema migrations run
// from an embedded filesystem, a health probe, and pgx error helpers.
//
// Config is populated from PG_* environment variables. Connect retries with
// a growing delay so the engine survives a database that comes up slower
// than the process. Migrate runs before anything touches the schema, taking
// the migration files as an fs.FS so binaries stay self-contained.
package pg
