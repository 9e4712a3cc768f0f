package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var snapshotCmd = &cobra.Command{
	Use:   "snapshot",
	Short: "Inspect and commit the snapshot file directly",
}

var snapshotCommitCmd = &cobra.Command{
	Use:   "commit",
	Short: "Commit the current engine state to the snapshot file",
	RunE: func(cmd *cobra.Command, args []string) error {
		e, name, password, err := openEngine(cmd)
		if err != nil {
			return err
		}
		if len(password) == 0 {
			return fmt.Errorf("--password is required")
		}
		return e.Commit(name, password)
	},
}

var snapshotInspectCmd = &cobra.Command{
	Use:   "inspect",
	Short: "Load the snapshot and print the clients it contains",
	RunE: func(cmd *cobra.Command, args []string) error {
		e, _, _, err := openEngine(cmd)
		if err != nil {
			return err
		}
		ids := e.Clients()
		if len(ids) == 0 {
			fmt.Println("(no clients)")
			return nil
		}
		for _, id := range ids {
			fmt.Println(id.String())
		}
		return nil
	},
}

func init() {
	snapshotCmd.AddCommand(snapshotCommitCmd)
	snapshotCmd.AddCommand(snapshotInspectCmd)
}
