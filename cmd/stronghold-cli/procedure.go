package main

import (
	"encoding/hex"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/vaultcore/stronghold/pkg/engineerr"
	"github.com/vaultcore/stronghold/pkg/procedure"
	"github.com/vaultcore/stronghold/pkg/stronghold"
	"github.com/vaultcore/stronghold/pkg/vault"
)

var procedureCmd = &cobra.Command{
	Use:   "procedure",
	Short: "Run one-shot procedures against a client's vaults",
}

func loc(vaultPath, recordPath string) vault.Location {
	return vault.NewGenericLocation([]byte(vaultPath), []byte(recordPath))
}

func runnerFor(cmd *cobra.Command) (*procedure.Runner, *stronghold.Engine, string, []byte, error) {
	e, name, password, err := openEngine(cmd)
	if err != nil {
		return nil, nil, "", nil, err
	}
	id, err := parseClientID(clientFlag(cmd))
	if err != nil {
		return nil, nil, "", nil, err
	}
	c := e.Client(id)
	if c == nil {
		return nil, nil, "", nil, engineerr.ErrVaultNotFound
	}
	return procedure.New(c), e, name, password, nil
}

var procedureGenerateKeyCmd = &cobra.Command{
	Use:   "generate-key <target-vault-path> <target-record-path>",
	Short: "Generate a fresh Ed25519 seed and write it to the target record",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		r, e, name, password, err := runnerFor(cmd)
		if err != nil {
			return err
		}
		target := loc(args[0], args[1])
		if _, err := r.Execute(procedure.GenerateKey(procedure.Ed25519, target)); err != nil {
			return err
		}
		return e.Commit(name, password)
	},
}

var procedurePublicKeyCmd = &cobra.Command{
	Use:   "public-key <source-vault-path> <source-record-path>",
	Short: "Derive and print the public key for a stored Ed25519 seed",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		r, _, _, _, err := runnerFor(cmd)
		if err != nil {
			return err
		}
		source := loc(args[0], args[1])
		out, err := r.Execute(procedure.PublicKey(source, procedure.Ed25519))
		if err != nil {
			return err
		}
		fmt.Println(hex.EncodeToString(out))
		return nil
	},
}

var procedureSignCmd = &cobra.Command{
	Use:   "sign <source-vault-path> <source-record-path> <message>",
	Short: "Sign message with a stored Ed25519 seed and print the signature",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		r, _, _, _, err := runnerFor(cmd)
		if err != nil {
			return err
		}
		source := loc(args[0], args[1])
		out, err := r.Execute(procedure.Ed25519Sign(source, []byte(args[2])))
		if err != nil {
			return err
		}
		fmt.Println(hex.EncodeToString(out))
		return nil
	},
}

var procedureHmacCmd = &cobra.Command{
	Use:   "hmac <source-vault-path> <source-record-path> <message>",
	Short: "Compute an HMAC over message keyed by a stored secret",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		r, _, _, _, err := runnerFor(cmd)
		if err != nil {
			return err
		}
		source := loc(args[0], args[1])
		out, err := r.Execute(procedure.Hmac(source, []byte(args[2])))
		if err != nil {
			return err
		}
		fmt.Println(hex.EncodeToString(out))
		return nil
	},
}

func init() {
	for _, c := range []*cobra.Command{procedureGenerateKeyCmd, procedurePublicKeyCmd, procedureSignCmd, procedureHmacCmd} {
		c.Flags().String("client", "", "client id (hex, required)")
		_ = c.MarkFlagRequired("client")
	}
	procedureCmd.AddCommand(procedureGenerateKeyCmd)
	procedureCmd.AddCommand(procedurePublicKeyCmd)
	procedureCmd.AddCommand(procedureSignCmd)
	procedureCmd.AddCommand(procedureHmacCmd)
}
