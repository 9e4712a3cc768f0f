package client

import (
	"bytes"
	"errors"

	"github.com/vaultcore/stronghold/pkg/engineerr"
	"github.com/vaultcore/stronghold/pkg/vault"
)

// MergePolicy selects which side wins when both self and other hold a
// valid record at the same mapped destination location.
type MergePolicy int

const (
	// KeepSelf never overwrites an existing destination record.
	KeepSelf MergePolicy = iota
	// KeepOther always imports the source record, overwriting self's.
	KeepOther
	// KeepNewer imports the source record only if its chain counter is
	// strictly higher than the destination's current counter. Chain
	// counters are the only recency signal the record log carries — the
	// log has no wall-clock timestamps — so "newer" here means "written
	// later in its own chain's sequence", not a comparison of real time.
	KeepNewer
)

// VaultMapping selects one of the source client's vaults to sync and,
// optionally, renames it on import. An empty DestPath means the
// destination vault has the same path as the source.
type VaultMapping struct {
	SourcePath []byte
	DestPath   []byte
}

// SyncConfig restricts a sync_with call to specific vaults and specific
// record locations within them. The record log has no way to enumerate
// "every record path that was ever written" — paths are one-way hashed
// into RecordIds on write — so the caller must name the Locations it
// wants merged; this mirrors how the engine's own tests drive
// synchronization from a known fixture set rather than blind discovery.
type SyncConfig struct {
	Policy  MergePolicy
	Vaults  []VaultMapping
	Records []vault.Location // Locations expressed in the source client's vault paths
}

// SyncWith merges the records named in cfg.Records from other into c,
// under cfg.Policy. Imported records are re-encrypted under c's own key
// for the destination vault; other's vault key is never read or
// written into c's key store.
func (c *Client) SyncWith(other *Client, cfg SyncConfig) error {
	for _, loc := range cfg.Records {
		mapping, ok := findMapping(cfg.Vaults, loc.VaultPath)
		if !ok {
			return errors.New("client: sync record references a vault not listed in SyncConfig.Vaults")
		}
		destPath := mapping.DestPath
		if len(destPath) == 0 {
			destPath = mapping.SourcePath
		}

		if err := c.syncOne(other, loc, destPath, cfg.Policy); err != nil {
			return err
		}
	}
	return nil
}

func findMapping(mappings []VaultMapping, sourcePath []byte) (VaultMapping, bool) {
	for _, m := range mappings {
		if bytes.Equal(m.SourcePath, sourcePath) {
			return m, true
		}
	}
	return VaultMapping{}, false
}

func (c *Client) syncOne(other *Client, sourceLoc vault.Location, destPath []byte, policy MergePolicy) error {
	destLoc := rebaseLocation(sourceLoc, destPath)

	srcVid, srcRid, err := other.Resolve(sourceLoc)
	if err != nil {
		return err
	}
	destVid, destRid, err := c.Resolve(destLoc)
	if err != nil {
		return err
	}

	srcCounter, hint, srcOK, err := other.validRecord(srcVid, srcRid)
	if err != nil {
		return err
	}
	if !srcOK {
		return nil // nothing valid at the source; nothing to import
	}

	destCounter, _, destOK, err := c.validRecord(destVid, destRid)
	if err != nil {
		return err
	}

	switch policy {
	case KeepSelf:
		if destOK {
			return nil
		}
	case KeepOther:
		// always import
	case KeepNewer:
		if destOK && destCounter >= srcCounter {
			return nil
		}
	default:
		return errors.New("client: unknown merge policy")
	}

	payload, err := other.Read(sourceLoc)
	if err != nil {
		if errors.Is(err, engineerr.ErrRecordNotFound) || errors.Is(err, engineerr.ErrRecordIsEmpty) {
			return nil
		}
		return err
	}
	return c.Write(destLoc, payload, hint[:])
}

// rebaseLocation rebuilds loc with its vault path replaced by destPath,
// preserving whichever record-addressing form (generic or counter) the
// original used.
func rebaseLocation(loc vault.Location, destPath []byte) vault.Location {
	if loc.IsCounter() {
		return vault.NewCounterLocation(destPath, loc.Counter())
	}
	return vault.NewGenericLocation(destPath, loc.RecordPath)
}
