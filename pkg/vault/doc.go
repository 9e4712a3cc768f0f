/*
Package vault implements the engine's append-only record log.

A vault is a sequence of sealed transactions — Init, Data, Revoke — all
encrypted under one VaultKey and persisted through a storage.Backend.
The package never interprets a transaction list as a flat log: Load
groups sealed transactions into chains and replays each chain's
counters to produce a View, the deterministic projection the rest of
the engine reads and writes through. Writer and the PrepareRead/
FinishRead pair are the only ways to mutate or read a View; GC lists
everything a chain no longer needs.

Grounded on the teacher's pkg/manager/fsm.go Apply/Snapshot/Restore
replay pattern, generalized from a single Raft-replicated command log to
a per-vault, key-sealed transaction log with chain/counter semantics.
*/
package vault
