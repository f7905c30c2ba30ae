// Package orchestrator ties the egress pool, the token cache, and the
// challenge executor into complete exchange runs.
//
// One exchange run acquires an identity, pins the whole exchange (including
// any solve retry) to it, and classifies the result. Network-level failures
// feed the identity's demotion counter and trigger a bounded re-acquisition
// with a different identity; content-level rejections are final. Batch runs
// fan exchanges out over a bounded worker group.
package orchestrator
