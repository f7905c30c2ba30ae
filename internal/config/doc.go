// Package config holds runtime configuration for visagate.
//
// Configuration flows from three sources, in increasing priority:
//  1. Compiled defaults (the Default* constants)
//  2. An optional YAML configuration file (.visagate)
//  3. CLI flags
//
// Design decision: the Config struct is populated once after CLI parsing and
// passed through the application via dependency injection rather than global
// state. Validation happens up front in Validate() so that misconfiguration
// fails fast with a specific sentinel error.
package config
