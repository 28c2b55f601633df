// Command vaultctl manages SecureVault users and their encrypted password
// vaults from the command line.
package main

import (
	"fmt"
	"os"

	"github.com/awnumar/memguard"
	"github.com/spf13/cobra"
)

func main() {
	memguard.CatchInterrupt()
	defer memguard.Purge()

	root, a := newRootCmd()
	err := root.Execute()
	a.close()
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		memguard.SafeExit(1)
	}
}

// newRootCmd builds a fresh command tree bound to its own app state, so
// tests can run commands in isolation.
func newRootCmd() (*cobra.Command, *app) {
	a := &app{getenv: os.Getenv}
	root := &cobra.Command{
		Use:   "vaultctl",
		Short: "Local multi-user password vault",
		Long: `vaultctl keeps each user's website credentials in an encrypted vault file.
Users log in with a master password; entries are organised in groups and
every change is written to disk before the command returns.`,
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: a.setup,
	}

	pf := root.PersistentFlags()
	pf.StringVar(&a.cfgFile, "config", "", "config file (default is <user config dir>/securevault/securevault.yaml)")
	pf.String("data-dir", "", "directory holding the user registry and vaults")
	pf.String("log-level", "", "log level (debug, info, warn, error)")
	pf.Bool("audit", false, "append every operation to the audit log")
	pf.StringVarP(&a.user, "user", "u", "", "user to log in as (or "+envUser+")")

	root.AddCommand(
		newUserCmd(a),
		newGroupCmd(a),
		newEntryCmd(a),
		newExportCmd(a),
		newImportCmd(a),
		newBackupCmd(a),
		newSyncCmd(a),
		newRecoverCmd(a),
		newAuditCmd(a),
		newConfigCmd(a),
	)
	return root, a
}
