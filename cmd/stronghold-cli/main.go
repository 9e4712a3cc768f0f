package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/vaultcore/stronghold/pkg/log"
)

var (
	// Version information (set via ldflags during build)
	Version = "dev"
	Commit  = "unknown"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "stronghold-cli",
	Short: "Inspect and drive a Stronghold secret-engine snapshot",
	Long: `stronghold-cli opens a Stronghold snapshot, lists the clients,
vaults, and records it contains, and can run one-shot procedures
against it. It is an operator and test tool, not part of the engine
itself — every engine operation it drives goes through the same public
packages (pkg/client, pkg/procedure, pkg/stronghold) any Go program
would use.`,
	Version: Version,
}

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf("stronghold-cli version %s\nCommit: %s\n", Version, Commit))

	rootCmd.PersistentFlags().String("log-level", "info", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().Bool("log-json", false, "Output logs in JSON format")
	rootCmd.PersistentFlags().String("snapshot-dir", ".", "Directory holding the snapshot file")
	rootCmd.PersistentFlags().String("snapshot", "stronghold.snap", "Snapshot file name within --snapshot-dir")
	rootCmd.PersistentFlags().String("password", "", "Snapshot password (required for any command that reads or writes state)")

	cobra.OnInitialize(initLogging)

	rootCmd.AddCommand(clientCmd)
	rootCmd.AddCommand(vaultCmd)
	rootCmd.AddCommand(procedureCmd)
	rootCmd.AddCommand(snapshotCmd)
}

func initLogging() {
	logLevel, _ := rootCmd.PersistentFlags().GetString("log-level")
	logJSON, _ := rootCmd.PersistentFlags().GetBool("log-json")
	log.Init(log.Config{
		Level:      log.Level(logLevel),
		JSONOutput: logJSON,
	})
}
