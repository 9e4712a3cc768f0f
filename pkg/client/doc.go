/*
Package client implements the engine's C6 component: a Client bundles
one key store, one record-log view per vault, and one Store cache,
plus the VaultHandle and sync_with surface that operate on them. The
key store and the views share one composite read-write lock; the Store
has its own.

Read-only record operations take the composite lock shared; writes,
procedure execution, and sync import take it exclusively; Store
operations only ever touch the Store's own lock. Grounded on the
teacher's pkg/manager/manager.go wiring of a store+token manager+secrets
manager behind one struct, and pkg/manager/token.go's RWMutex-guarded
map for the TTL Store cache.
*/
package client
