/*
Package snapshot implements the engine's on-disk format: a magic-and-
version header followed by an AEAD-sealed, zstd-compressed body holding
every client's state, each sub-encrypted under its own ephemeral key.

Layout (current version 0x03 0x00):

	offset 0 : 5 bytes  magic = "PARTI" (0x50 0x41 0x52 0x54 0x49)
	offset 5 : 2 bytes  version = major, minor
	offset 7 : …        nonce || ciphertext || tag

The outer ciphertext, once opened under the password-derived master
key and decompressed, is not a client's plaintext state directly: it is
a deterministic (sorted-key-order) list of per-client entries, each
holding a freshly generated 32-byte key, a nonce, and that one client's
ClientState sealed under its own key (see sealSnapshot/openSnapshot in
snapshot.go). Load eagerly opens every entry; OpenSnapshot plus
Snapshot.LoadClient let a caller decrypt only the clients it needs,
leaving the rest sealed.

The master key is derived from the caller's password with Blake2b-256
(golang.org/x/crypto/blake2b) for the current format; legacy version
0x02 0x00 bodies use a PBKDF2-derived key, have no per-client sub-
encryption, and are recognized for reading and one-shot migration only
— Write always emits the current version.

Grounded on the teacher's pkg/manager/fsm.go WarrenSnapshot.Persist /
Restore (JSON-encode to a sink, decode and replay on load) for the
overall serialize-then-seal / verify-then-deserialize shape, and on
pkg/security/secrets.go's AES-GCM EncryptSecret/DecryptSecret for the
nonce-prefixed-ciphertext sealing convention — generalized from a single
AES-256-GCM secret to a compressed, multi-client, password-derived
XChaCha20-Poly1305 body with a second per-client sealing layer nested
inside it. Atomic file replacement follows the other_examples/ pureclaw
vault's write-to-temp-then-rename pattern.
*/
package snapshot
