package main

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/vaultcore/stronghold/pkg/vault"
)

var clientCmd = &cobra.Command{
	Use:   "client",
	Short: "Manage clients within a snapshot",
}

var clientCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a new client and commit it to the snapshot",
	RunE: func(cmd *cobra.Command, args []string) error {
		e, name, password, err := openEngine(cmd)
		if err != nil {
			return err
		}
		if len(password) == 0 {
			return fmt.Errorf("--password is required")
		}

		var id vault.ClientId
		if _, err := rand.Read(id[:]); err != nil {
			return fmt.Errorf("generate client id: %w", err)
		}
		if _, err := e.CreateClient(id); err != nil {
			return err
		}
		if err := e.Commit(name, password); err != nil {
			return err
		}
		fmt.Printf("created client %s\n", hex.EncodeToString(id[:]))
		return nil
	},
}

var clientListCmd = &cobra.Command{
	Use:   "list",
	Short: "List every client in the snapshot",
	RunE: func(cmd *cobra.Command, args []string) error {
		e, _, _, err := openEngine(cmd)
		if err != nil {
			return err
		}
		for _, id := range e.Clients() {
			fmt.Println(id.String())
		}
		return nil
	},
}

func init() {
	clientCmd.AddCommand(clientCreateCmd)
	clientCmd.AddCommand(clientListCmd)
}
