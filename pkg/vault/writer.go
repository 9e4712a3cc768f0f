package vault

import (
	"fmt"

	"github.com/vaultcore/stronghold/pkg/crypto"
	"github.com/vaultcore/stronghold/pkg/metrics"
	"github.com/vaultcore/stronghold/pkg/storage"
)

// Writer appends transactions to one chain within a View, persisting
// each through backend and keeping the in-memory View's replay state
// consistent so a caller never needs to reload after writing.
type Writer struct {
	view     *View
	chainID  RecordId
	provider crypto.Provider
	vaultKey []byte
	backend  storage.Backend
}

// NewWriter returns a Writer scoped to one chain of view.
func NewWriter(view *View, chainID RecordId, provider crypto.Provider, vaultKey []byte, backend storage.Backend) *Writer {
	return &Writer{view: view, chainID: chainID, provider: provider, vaultKey: vaultKey, backend: backend}
}

func (w *Writer) chain() *chain { return w.view.chainFor(w.chainID) }

// Truncate emits an init transaction for the chain if one does not
// already exist. It is a no-op if the chain is already initialized.
func (w *Writer) Truncate() error {
	c := w.chain()
	if c.init != nil {
		return nil
	}
	id, err := randomID24(w.provider)
	if err != nil {
		return err
	}
	tx := &Transaction{Id: id, ChainId: w.chainID, Counter: 0, Kind: TxInit}
	req, err := tx.Seal(w.provider, w.vaultKey)
	if err != nil {
		return err
	}
	if err := w.backend.Write(req); err != nil {
		return fmt.Errorf("vault: persist init transaction: %w", err)
	}
	c.init = tx
	return nil
}

// Write appends a new data transaction (and its sealed blob) to the
// chain, superseding whatever was previously valid. The new record's
// counter is one greater than the chain's current highest counter.
func (w *Writer) Write(payload, hint []byte) error {
	if err := w.Truncate(); err != nil {
		return err
	}
	c := w.chain()

	blobID, err := randomID24(w.provider)
	if err != nil {
		return err
	}
	blobReq, err := SealBlob(w.provider, w.vaultKey, blobID, payload)
	if err != nil {
		return err
	}

	txID, err := randomID24(w.provider)
	if err != nil {
		return err
	}
	tx := &Transaction{
		Id:      txID,
		ChainId: w.chainID,
		Counter: w.view.nextCounter(w.chainID),
		Kind:    TxData,
		BlobId:  blobID,
	}
	copy(tx.RecordHint[:], hint)
	txReq, err := tx.Seal(w.provider, w.vaultKey)
	if err != nil {
		return err
	}

	if err := w.backend.Write(blobReq); err != nil {
		return fmt.Errorf("vault: persist blob: %w", err)
	}
	if err := w.backend.Write(txReq); err != nil {
		return fmt.Errorf("vault: persist data transaction: %w", err)
	}

	if c.valid != nil {
		c.garbage = append(c.garbage, c.valid)
	}
	c.data = append(c.data, tx)
	c.valid = tx
	if tx.Counter > c.maxCount {
		c.maxCount = tx.Counter
	}
	metrics.RecordsWrittenTotal.Inc()
	return nil
}

// Revoke appends a revocation transaction against the chain's current
// valid record. It is a no-op if the chain has no valid record.
func (w *Writer) Revoke() error {
	c := w.chain()
	if c.valid == nil {
		return nil
	}

	id, err := randomID24(w.provider)
	if err != nil {
		return err
	}
	tx := &Transaction{Id: id, ChainId: w.chainID, Counter: w.view.nextCounter(w.chainID), Kind: TxRevoke}
	req, err := tx.Seal(w.provider, w.vaultKey)
	if err != nil {
		return err
	}
	if err := w.backend.Write(req); err != nil {
		return fmt.Errorf("vault: persist revoke transaction: %w", err)
	}

	c.revokes = append(c.revokes, tx)
	c.garbage = append(c.garbage, c.valid, tx)
	c.valid = nil
	if tx.Counter > c.maxCount {
		c.maxCount = tx.Counter
	}
	metrics.RecordsRevokedTotal.Inc()
	return nil
}
