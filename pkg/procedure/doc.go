// Package procedure implements the engine's C7 component: the
// procedure runner. A Procedure declares which record Locations it
// reads, which Location (if any) it writes its secret result to, and a
// Run function computing the result from the decrypted sources. Runner
// executes one or a chain of Procedures under a single exclusive lock
// on the target client, rolling back every target write of a chain on
// a later failure so chains are all-or-nothing at the level of
// persisted secrets.
package procedure
