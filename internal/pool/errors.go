package pool

import "errors"

// Pool errors.
// Sentinel errors allow callers to branch with errors.Is(): PoolExhausted is
// fatal for one exchange but not for the process, while a duplicate insert
// during import is merely counted and skipped.
var (
	// ErrPoolExhausted is returned by Acquire when zero active, non-banned
	// identities match the region filter. It is not returned merely because
	// every candidate has been used recently; in that case the globally
	// least-recently-used identity is returned instead.
	ErrPoolExhausted = errors.New("egress pool exhausted: no eligible identity")

	// ErrNotFound is returned when an identity ID does not exist.
	ErrNotFound = errors.New("identity not found")

	// ErrDuplicate is returned when inserting an identity whose
	// (host, port, username) already exists in the pool.
	ErrDuplicate = errors.New("identity already exists")
)
