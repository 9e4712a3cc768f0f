package storage

import "fmt"

// Kind distinguishes the handful of opaque blob classes the engine ever
// persists. Storage backends key on (Kind, ID); they never look inside
// Bytes.
type Kind string

const (
	// KindSnapshot identifies a full sealed snapshot body.
	KindSnapshot Kind = "snapshot"

	// KindTransaction identifies a sealed vault log transaction.
	KindTransaction Kind = "transaction"

	// KindBlob identifies a sealed vault record payload.
	KindBlob Kind = "blob"
)

// WriteRequest asks a Backend to durably store bytes under (Kind, ID),
// replacing any existing value.
type WriteRequest struct {
	Kind  Kind
	ID    string
	Bytes []byte
}

// DeleteRequest asks a Backend to remove whatever is stored under
// (Kind, ID). Deleting a key that doesn't exist is not an error.
type DeleteRequest struct {
	Kind Kind
	ID   string
}

// ReadResult is returned by Backend.Read.
type ReadResult struct {
	Kind  Kind
	ID    string
	Bytes []byte
}

// ErrNotFound is returned by Read when (Kind, ID) has no stored value.
var ErrNotFound = fmt.Errorf("storage: not found")

// Backend is the engine's persistence contract. Implementations must be
// safe for concurrent use.
type Backend interface {
	Write(req WriteRequest) error
	Read(kind Kind, id string) (ReadResult, error)
	Delete(req DeleteRequest) error
	List(kind Kind) ([]string, error)
	Close() error
}
