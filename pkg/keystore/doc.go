/*
Package keystore implements the engine's per-vault key store: a
VaultId → VaultKey map whose keys live in guarded memory and are never
observed in plaintext outside of the encryption/decryption calls that
need them.

Grounded on the teacher's pkg/manager/token.go TokenManager — a
map[string]*T behind sync.RWMutex with generate/validate entry points —
generalized to hold guarded.KeyMaterial values (a guarded buffer or
non-contiguous memory, per Strategy) instead of plain structs, and to
support the take/insert pattern C4 requires: Take checks a key out for
scoped use and the caller must Insert it back, even
on an error path, to preserve the invariant that holding a VaultId
implies key availability. TakeForScope wraps that pattern in a single
critical section so the re-insert can never be skipped, resolving the
fallible take/insert race the original design left open.
*/
package keystore
