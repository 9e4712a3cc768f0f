// Package crypto defines the engine's cryptographic capability surface
// and its default implementation.
//
// Every component that needs randomness, sealing, key derivation, or
// signing goes through the Provider interface rather than calling the
// standard library directly, the way the teacher's secrets manager
// centralizes AES-GCM behind a small set of package-level functions.
// This keeps every cryptographic primitive swappable (a future HSM or
// FIPS-mode provider can implement the same interface) and keeps the
// choice of algorithm in exactly one place.
package crypto
