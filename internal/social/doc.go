// Package social holds the platform's content domain: study posts,
// study rooms with capacity-bounded membership, direct messages, and
// friend requests.
//
// Each record type has a repository interface backed by SQLite. Records
// reference accounts by integer ID; deleting an account cascades through
// its content but the ID itself is never reused.
package social
