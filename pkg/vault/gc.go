package vault

import (
	"github.com/vaultcore/stronghold/pkg/metrics"
	"github.com/vaultcore/stronghold/pkg/storage"
)

// GC lists every transaction and blob in the vault that is safe to
// delete — shadowed data transactions, consumed revocations, and blobs
// no longer referenced by any valid data transaction — and removes
// them from the in-memory View's garbage lists. It does not touch
// storage itself; the caller is expected to apply the returned delete
// requests.
func (v *View) GC() []storage.DeleteRequest {
	var deletes []storage.DeleteRequest
	referenced := make(map[BlobId]bool)

	for _, c := range v.chains {
		if c.valid != nil {
			referenced[c.valid.BlobId] = true
		}
	}

	for _, c := range v.chains {
		for _, tx := range c.garbage {
			deletes = append(deletes, storage.DeleteRequest{Kind: storage.KindTransaction, ID: hexID(tx.Id)})
			if tx.Kind == TxData && !referenced[tx.BlobId] {
				deletes = append(deletes, storage.DeleteRequest{Kind: storage.KindBlob, ID: hexID(tx.BlobId)})
			}
		}
		c.data = keepOnly(c.data, c.valid)
		c.garbage = nil
		c.revokes = nil
	}

	metrics.GarbageCollectedTotal.Add(float64(len(deletes)))
	return deletes
}

func keepOnly(data []*Transaction, valid *Transaction) []*Transaction {
	if valid == nil {
		return nil
	}
	for _, d := range data {
		if d.Id == valid.Id {
			return []*Transaction{d}
		}
	}
	return nil
}
