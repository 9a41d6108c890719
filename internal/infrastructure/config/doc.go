// Package config loads and validates the platform configuration.
//
// Configuration comes from a YAML file with environment variable overrides
// (STUDYSOCIAL_* prefix). Validation runs at load time so misconfiguration
// is a startup failure, not a runtime surprise. In particular the JWT
// signing secret is mandatory: there is no built-in default.
package config
