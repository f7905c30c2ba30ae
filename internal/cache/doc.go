// Package cache persists short-lived artifacts (solved challenge tokens,
// one-time codes) as JSON files on disk.
//
// The cache is append-only: every Store writes a new timestamped file and
// atomically repoints the per-class "latest" file at it. Readers only ever
// see complete artifacts because pointer updates go through a rename.
// Historical artifacts stay on disk until Sweep removes the ones older than
// the retention window.
package cache
