/*
Package storage defines the engine's persistence contract and two
implementations of it.

Every snapshot write and load goes through the Backend interface rather
than touching a file or database directly, the way the teacher's
pkg/storage wraps BoltDB behind a Store interface. stronghold.NewEngine
picks between the two implementations by configuration: BoltStore when
a SnapshotDirectory is set, so transactions and blobs durably survive a
process restart between Commit calls, and MemStore otherwise, the shape
most tests use.

Neither implementation interprets the bytes it stores — sealing and
deserialization are the snapshot package's job. Backend only ever sees
opaque (kind, id, bytes) triples.
*/
package storage
