// Package model defines the core data structures used throughout visagate.
//
// This package contains the following main types:
//   - EgressIdentity: An outbound network path (proxy) with health and usage metadata
//   - CachedArtifact: A short-lived credential or code produced by a solve or delivery event
//   - ChallengeExchange: One request/response exchange, including its single solve-and-retry
//   - Outcome: The classified result of an exchange
//
// Design decision: We separate models into their own package to avoid circular
// dependencies. Multiple packages (pool, cache, challenge, orchestrator, report)
// need to use these types, so centralizing them prevents import cycles.
//
// The models are designed to be serializable to JSON for report output and
// database storage.
package model
