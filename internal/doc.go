// Package internal documents the account server internals.
//
// The internal tree is organized by responsibility:
// - api: HTTP router, handlers, middleware and error bodies
// - domain: account business logic and identifiers
// - storage: PostgreSQL access and schema migrations
// - jobs, notify, email: background delivery of signup side effects
// - auth, audit, config, metrics, telemetry: shared infrastructure
//
// Code in internal/ is not meant for external import.
package internal
