// Package database provides the SQLite connection wrapper and the
// embedded-migration runner.
//
// SQLite is run with WAL mode, foreign keys on, and a single open
// connection: the platform's only mutable shared state lives here, and a
// single writer keeps uniqueness checks and inserts atomic without
// application-level locking.
package database
