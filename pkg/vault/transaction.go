package vault

import (
	"encoding/binary"
	"encoding/hex"
	"fmt"

	"github.com/vaultcore/stronghold/pkg/crypto"
	"github.com/vaultcore/stronghold/pkg/storage"
)

// TxKind enumerates the three transaction kinds a chain can carry.
type TxKind uint8

const (
	TxInit TxKind = iota
	TxData
	TxRevoke
)

func (k TxKind) String() string {
	switch k {
	case TxInit:
		return "init"
	case TxData:
		return "data"
	case TxRevoke:
		return "revoke"
	default:
		return "unknown"
	}
}

const hintSize = 24

// Transaction is one sealed entry in a chain. Id is recovered from the
// storage key rather than stored in the plaintext payload; it is the
// associated data every transaction is authenticated against.
type Transaction struct {
	Id      [idSize]byte
	ChainId ChainId
	Counter uint64
	Kind    TxKind

	BlobId     BlobId   // only meaningful for TxData
	RecordHint [hintSize]byte // only meaningful for TxData
}

// serialize produces the transaction's plaintext body (everything but
// its id, which is carried by the storage key and used as AD instead).
func (t *Transaction) serialize() []byte {
	buf := make([]byte, 0, idSize+8+1+idSize+hintSize)
	buf = append(buf, t.ChainId[:]...)
	var counterBuf [8]byte
	binary.BigEndian.PutUint64(counterBuf[:], t.Counter)
	buf = append(buf, counterBuf[:]...)
	buf = append(buf, byte(t.Kind))
	if t.Kind == TxData {
		buf = append(buf, t.BlobId[:]...)
		buf = append(buf, t.RecordHint[:]...)
	}
	return buf
}

func deserializeTransaction(id [idSize]byte, body []byte) (*Transaction, error) {
	if len(body) < idSize+8+1 {
		return nil, fmt.Errorf("vault: truncated transaction body")
	}
	t := &Transaction{Id: id}
	copy(t.ChainId[:], body[:idSize])
	t.Counter = binary.BigEndian.Uint64(body[idSize : idSize+8])
	t.Kind = TxKind(body[idSize+8])
	rest := body[idSize+9:]
	if t.Kind == TxData {
		if len(rest) < idSize+hintSize {
			return nil, fmt.Errorf("vault: truncated data transaction body")
		}
		copy(t.BlobId[:], rest[:idSize])
		copy(t.RecordHint[:], rest[idSize:idSize+hintSize])
	}
	return t, nil
}

// Seal encrypts the transaction under vaultKey, returning the storage
// write request that persists it. The transaction id is bound as
// associated data, so a transaction can never be replayed under a
// different id than the one it was sealed with.
func (t *Transaction) Seal(provider crypto.Provider, vaultKey []byte) (storage.WriteRequest, error) {
	nonce := make([]byte, provider.NonceSize())
	if err := provider.Random(nonce); err != nil {
		return storage.WriteRequest{}, fmt.Errorf("vault: seal transaction nonce: %w", err)
	}
	ciphertext, err := provider.Seal(vaultKey, nonce, t.serialize(), t.Id[:])
	if err != nil {
		return storage.WriteRequest{}, fmt.Errorf("vault: seal transaction: %w", err)
	}
	return storage.WriteRequest{
		Kind:  storage.KindTransaction,
		ID:    hex.EncodeToString(t.Id[:]),
		Bytes: append(nonce, ciphertext...),
	}, nil
}

// OpenTransaction decrypts a stored transaction. A failure here means
// either the wrong vault key or tampering, never a structural defect;
// callers drop the transaction from the view rather than aborting.
func OpenTransaction(provider crypto.Provider, vaultKey []byte, rec storage.ReadResult) (*Transaction, error) {
	idBytes, err := hex.DecodeString(rec.ID)
	if err != nil || len(idBytes) != idSize {
		return nil, fmt.Errorf("vault: malformed transaction id %q", rec.ID)
	}
	var id [idSize]byte
	copy(id[:], idBytes)

	nonceSize := provider.NonceSize()
	if len(rec.Bytes) < nonceSize {
		return nil, fmt.Errorf("vault: truncated sealed transaction")
	}
	nonce, ciphertext := rec.Bytes[:nonceSize], rec.Bytes[nonceSize:]
	plaintext, err := provider.Open(vaultKey, nonce, ciphertext, id[:])
	if err != nil {
		return nil, err
	}
	return deserializeTransaction(id, plaintext)
}

// SealBlob encrypts a data transaction's payload under vaultKey, bound
// to the blob's own id rather than the transaction's.
func SealBlob(provider crypto.Provider, vaultKey []byte, id BlobId, payload []byte) (storage.WriteRequest, error) {
	nonce := make([]byte, provider.NonceSize())
	if err := provider.Random(nonce); err != nil {
		return storage.WriteRequest{}, fmt.Errorf("vault: seal blob nonce: %w", err)
	}
	ciphertext, err := provider.Seal(vaultKey, nonce, payload, id[:])
	if err != nil {
		return storage.WriteRequest{}, fmt.Errorf("vault: seal blob: %w", err)
	}
	return storage.WriteRequest{
		Kind:  storage.KindBlob,
		ID:    hex.EncodeToString(id[:]),
		Bytes: append(nonce, ciphertext...),
	}, nil
}

// OpenBlob decrypts a stored blob payload.
func OpenBlob(provider crypto.Provider, vaultKey []byte, id BlobId, rec storage.ReadResult) ([]byte, error) {
	nonceSize := provider.NonceSize()
	if len(rec.Bytes) < nonceSize {
		return nil, fmt.Errorf("vault: truncated sealed blob")
	}
	nonce, ciphertext := rec.Bytes[:nonceSize], rec.Bytes[nonceSize:]
	return provider.Open(vaultKey, nonce, ciphertext, id[:])
}
