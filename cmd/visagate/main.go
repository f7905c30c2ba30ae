// Package main provides the entry point for the visagate CLI.
//
// visagate orchestrates challenge-aware exchanges against a bot-mitigated
// portal: it maintains a pool of egress identities, solves bot-mitigation
// challenges through an external solver, and caches solved tokens for reuse.
//
// Usage:
//
//	visagate exchange <spec-file>
//	visagate import <identity-file>
//	visagate proxies list
//
// See --help for all available options.
package main

// main is the entry point for visagate.
func main() {
	Execute()
}
