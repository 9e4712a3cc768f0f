// Package stronghold is the engine's public facade: Engine wires
// together a crypto provider, a shared storage backend, and every live
// Client, and exposes Commit/Load against the password-sealed snapshot
// file. Callers that only need one client's record log or the
// procedure runner can use pkg/client and pkg/procedure directly; this
// package exists for callers (notably cmd/stronghold-cli) that want a
// single entry point across many clients.
package stronghold
