// Package engineerr defines the sentinel error kinds surfaced by the
// engine, per the error handling design: every error is returned to the
// immediate caller, authentication failures are never folded into
// corruption errors, and nothing is retried.
package engineerr

import "errors"

var (
	// ErrBadPassword is returned when snapshot authentication fails.
	ErrBadPassword = errors.New("stronghold: bad password")

	// ErrCorruptedSnapshot is returned for any non-authentication failure
	// decoding a snapshot: bad magic, unknown version, decompression
	// error, or deserialization error.
	ErrCorruptedSnapshot = errors.New("stronghold: corrupted snapshot")

	// ErrVaultNotFound is returned when a Location resolves to a vault
	// with no key in the key store.
	ErrVaultNotFound = errors.New("stronghold: vault not found")

	// ErrRecordNotFound is returned when a chain has no init transaction.
	ErrRecordNotFound = errors.New("stronghold: record not found")

	// ErrRecordIsEmpty is returned when a chain has an init but no valid
	// data transaction (revoked or never written).
	ErrRecordIsEmpty = errors.New("stronghold: record is empty")

	// ErrInvalidLocation is returned when identifier derivation fails.
	ErrInvalidLocation = errors.New("stronghold: invalid location")

	// ErrAllocationFailed is returned when the guarded allocator cannot
	// satisfy a request (page allocation, mlock, or mprotect failure).
	ErrAllocationFailed = errors.New("stronghold: guarded allocation failed")

	// ErrLockPoisoned names the poisoned-lock error kind. No Client
	// method returns it: a panic inside a Client operation propagates to
	// the caller, and later calls on that Client are not refused.
	ErrLockPoisoned = errors.New("stronghold: client lock poisoned")

	// ErrIO is returned for snapshot file I/O failures.
	ErrIO = errors.New("stronghold: snapshot io error")

	// ErrKeyInUse is returned when a caller attempts to Take a vault key
	// that is already checked out by another caller.
	ErrKeyInUse = errors.New("stronghold: vault key already checked out")
)

// ProcedureErrorKind enumerates the ways a procedure can fail.
type ProcedureErrorKind int

const (
	ProcedureErrNone ProcedureErrorKind = iota
	ProcedureErrVaultNotFound
	ProcedureErrRecordNotFound
	ProcedureErrAuth
	ProcedureErrAllocation
	ProcedureErrFatal
	ProcedureErrInvalidLocation
)

func (k ProcedureErrorKind) String() string {
	switch k {
	case ProcedureErrVaultNotFound:
		return "VaultNotFound"
	case ProcedureErrRecordNotFound:
		return "RecordNotFound"
	case ProcedureErrAuth:
		return "AuthError"
	case ProcedureErrAllocation:
		return "Allocation"
	case ProcedureErrFatal:
		return "Fatal"
	case ProcedureErrInvalidLocation:
		return "InvalidLocation"
	default:
		return "None"
	}
}

// ProcedureError is returned by the procedure runner. It wraps the
// underlying cause so callers can still errors.Is/errors.As through it.
type ProcedureError struct {
	Kind ProcedureErrorKind
	Err  error
}

func (e *ProcedureError) Error() string {
	if e.Err == nil {
		return "stronghold: procedure error: " + e.Kind.String()
	}
	return "stronghold: procedure error: " + e.Kind.String() + ": " + e.Err.Error()
}

func (e *ProcedureError) Unwrap() error {
	return e.Err
}

// NewProcedureError builds a ProcedureError of the given kind wrapping err.
func NewProcedureError(kind ProcedureErrorKind, err error) *ProcedureError {
	return &ProcedureError{Kind: kind, Err: err}
}
