// Package pool provides SQLite-based storage for the egress identity pool.
//
// The pool stores one row per outbound identity (proxy) and answers
// "give me an identity for region R, excluding recently-used ones".
// Selection and usage stamping happen in a single SQL statement so that
// concurrent workers never receive the same identity when alternatives
// exist and never lose usage increments.
//
// Design decision: We use SQLite (via modernc.org/sqlite) because:
//  1. No external dependencies - the pool is a single file
//  2. CGO-free implementation allows easy cross-compilation
//  3. WAL mode plus a single writer connection gives us the durability
//     the pool requires: every mutation is committed before the call
//     returns, so a crash loses at most the in-flight call
//  4. UPDATE ... RETURNING makes acquire-and-stamp one atomic operation
package pool
