package main

import (
	"encoding/hex"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/vaultcore/stronghold/pkg/engineerr"
)

var vaultCmd = &cobra.Command{
	Use:   "vault",
	Short: "Read, write, and inspect records within a client's vaults",
}

func clientFlag(cmd *cobra.Command) string {
	s, _ := cmd.Flags().GetString("client")
	return s
}

var vaultWriteCmd = &cobra.Command{
	Use:   "write <vault-path> <record-path> <payload>",
	Short: "Write payload to a record, creating the vault key on first reference",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		e, name, password, err := openEngine(cmd)
		if err != nil {
			return err
		}
		id, err := parseClientID(clientFlag(cmd))
		if err != nil {
			return err
		}
		c := e.Client(id)
		if c == nil {
			return engineerr.ErrVaultNotFound
		}
		hint := make([]byte, e.RecordHintSize())
		if err := c.Vault([]byte(args[0])).Write([]byte(args[1]), []byte(args[2]), hint); err != nil {
			return err
		}
		return e.Commit(name, password)
	},
}

var vaultReadCmd = &cobra.Command{
	Use:   "read <vault-path> <record-path>",
	Short: "Read the current valid payload at a record",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		e, _, _, err := openEngine(cmd)
		if err != nil {
			return err
		}
		id, err := parseClientID(clientFlag(cmd))
		if err != nil {
			return err
		}
		c := e.Client(id)
		if c == nil {
			return engineerr.ErrVaultNotFound
		}
		payload, err := c.Vault([]byte(args[0])).Read([]byte(args[1]))
		if err != nil {
			return err
		}
		fmt.Println(hex.EncodeToString(payload))
		return nil
	},
}

var vaultListCmd = &cobra.Command{
	Use:   "list <vault-path>",
	Short: "List every valid record in a vault",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		e, _, _, err := openEngine(cmd)
		if err != nil {
			return err
		}
		id, err := parseClientID(clientFlag(cmd))
		if err != nil {
			return err
		}
		c := e.Client(id)
		if c == nil {
			return engineerr.ErrVaultNotFound
		}
		records, err := c.Vault([]byte(args[0])).List()
		if err != nil {
			return err
		}
		for _, rec := range records {
			fmt.Printf("%s\thint=%s\n", rec.RecordId.String(), hex.EncodeToString(rec.Hint[:]))
		}
		return nil
	},
}

var vaultRevokeCmd = &cobra.Command{
	Use:   "revoke <vault-path> <record-path>",
	Short: "Revoke a record and garbage-collect its vault",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		e, name, password, err := openEngine(cmd)
		if err != nil {
			return err
		}
		id, err := parseClientID(clientFlag(cmd))
		if err != nil {
			return err
		}
		c := e.Client(id)
		if c == nil {
			return engineerr.ErrVaultNotFound
		}
		h := c.Vault([]byte(args[0]))
		if err := h.Revoke([]byte(args[1])); err != nil {
			return err
		}
		if err := h.GC(); err != nil {
			return err
		}
		return e.Commit(name, password)
	},
}

func init() {
	for _, c := range []*cobra.Command{vaultWriteCmd, vaultReadCmd, vaultListCmd, vaultRevokeCmd} {
		c.Flags().String("client", "", "client id (hex, required)")
		_ = c.MarkFlagRequired("client")
	}
	vaultCmd.AddCommand(vaultWriteCmd)
	vaultCmd.AddCommand(vaultReadCmd)
	vaultCmd.AddCommand(vaultListCmd)
	vaultCmd.AddCommand(vaultRevokeCmd)
}
