package main

import (
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/vaultcore/stronghold/pkg/stronghold"
	"github.com/vaultcore/stronghold/pkg/vault"
)

// openEngine builds an Engine from the root command's persistent flags
// and loads the snapshot file if one already exists at that path. A
// missing snapshot is not an error: it means the caller is starting
// from an empty engine (e.g. the first "client create").
func openEngine(cmd *cobra.Command) (*stronghold.Engine, string, []byte, error) {
	dir, _ := cmd.Flags().GetString("snapshot-dir")
	name, _ := cmd.Flags().GetString("snapshot")
	password, _ := cmd.Flags().GetString("password")

	e, err := stronghold.NewEngine(stronghold.EngineConfig{SnapshotDirectory: dir})
	if err != nil {
		return nil, "", nil, err
	}

	path := filepath.Join(dir, name)
	if _, statErr := os.Stat(path); statErr == nil {
		if password == "" {
			return nil, "", nil, fmt.Errorf("--password is required to open existing snapshot %s", path)
		}
		if loadErr := e.Load(name, []byte(password)); loadErr != nil {
			return nil, "", nil, loadErr
		}
	}

	return e, name, []byte(password), nil
}

func parseClientID(s string) (vault.ClientId, error) {
	var id vault.ClientId
	b, err := hex.DecodeString(s)
	if err != nil || len(b) != len(id) {
		return vault.ClientId{}, fmt.Errorf("invalid client id %q: want %d hex bytes", s, len(id))
	}
	copy(id[:], b)
	return id, nil
}
