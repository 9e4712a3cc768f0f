/*
Package guarded implements the engine's guarded-memory allocator.

Every secret ever placed in memory by this engine — vault keys, decrypted
payloads, snapshot master keys, procedure inputs and outputs — lives in a
Region obtained from this package, never in a plain Go slice. A Region is
an mmap'd block bracketed by PROT_NONE guard pages with an 8-byte canary
on each side of the user data; it is mlock'd to keep it out of swap, kept
PROT_NONE by default, and only briefly switched to PROT_READ or
PROT_READ|PROT_WRITE while a caller holds a scoped guard obtained from
Buffer.Borrow / Buffer.BorrowMut.

Canary corruption, a failed zero-on-release, or an munmap/mprotect
syscall failure are not recoverable conditions: they mean something
outside Go's memory-safety guarantees has gone wrong, and continuing to
run risks leaking or corrupting secret material. Those paths call the
package's fatal hook, which logs and calls os.Exit(2) rather than
panicking — a recovered panic could let a defer elsewhere observe freed
or zeroed memory.

Buffer[T] wraps a Region with a typed, reference-counted borrow API
modeled on a guarded-vec pattern: Borrow/BorrowMut hand back a ReadGuard
or WriteGuard that un-protects the region on creation and re-protects it
when released, so the plaintext is mapped and readable for the shortest
possible window. Debug/Format output never includes contents, only size.
*/
package guarded
