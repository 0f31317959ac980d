// Package storage is the object backend behind reminder backups.
//
// A backend stores named, opaque blobs. The persistence gateway keeps a
// single object (the task snapshot) and addresses it by name:
//   - "file": one directory with an index and one file per object
//   - "sqlite": a table in a local SQLite database (modernc, cgo-free)
//   - "postgres": a table in a PostgreSQL database (pgx pool)
package storage
